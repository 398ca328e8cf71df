package engine

// collectLocked deletes locally owned beans that are no longer reachable,
// repeating until nothing more becomes unreachable. Beans owned by the other
// side are never collected here; their owner decides and sends a delete.
// Must be called with e.mu held.
func (e *Engine) collectLocked() []string {
	var deleted []string
	for {
		progress := false
		for _, id := range e.tracker.Collect() {
			inst, ok := e.instances[id]
			if !ok {
				e.tracker.Untrack(id)
				continue
			}
			if inst.owner != e.side {
				continue
			}
			e.removeLocked(inst, "unreachable")
			deleted = append(deleted, id)
			progress = true
		}
		if !progress {
			break
		}
	}
	if len(deleted) > 0 {
		e.metrics.collect(e.side, len(deleted))
		e.logger.Info("beans collected", "count", len(deleted))
	}
	return deleted
}
