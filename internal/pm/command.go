package pm

import "fmt"

// CommandKind distinguishes the three store events carried by the transport.
type CommandKind string

const (
	// CommandCreate carries a newly created presentation model.
	CommandCreate CommandKind = "create"
	// CommandChange carries one attribute value change.
	CommandChange CommandKind = "change"
	// CommandDelete carries a model deletion.
	CommandDelete CommandKind = "delete"
)

// Command is the logical unit the transport must deliver, in order, from one
// store to the other.
type Command struct {
	Kind      CommandKind
	ModelID   string
	ModelType string

	// Attributes is set for CommandCreate.
	Attributes []Attribute

	// Property, Old and New are set for CommandChange.
	Property string
	Old      Value
	New      Value
}

// CreateCommand builds a create command from a model snapshot.
func CreateCommand(s Snapshot) Command {
	attrs := make([]Attribute, len(s.Attributes))
	copy(attrs, s.Attributes)
	return Command{Kind: CommandCreate, ModelID: s.ID, ModelType: s.Type, Attributes: attrs}
}

// ChangeCommand builds an attribute change command.
func ChangeCommand(modelID, property string, old, value Value) Command {
	return Command{Kind: CommandChange, ModelID: modelID, Property: property, Old: OrNull(old), New: OrNull(value)}
}

// DeleteCommand builds a delete command.
func DeleteCommand(modelID, modelType string) Command {
	return Command{Kind: CommandDelete, ModelID: modelID, ModelType: modelType}
}

// Snapshot returns the model carried by a create command.
func (c Command) Snapshot() Snapshot {
	return Snapshot{ID: c.ModelID, Type: c.ModelType, Attributes: c.Attributes}
}

// Validate checks that the command carries the fields its kind requires.
func (c Command) Validate() error {
	if c.ModelID == "" {
		return fmt.Errorf("command %s: model id is required", c.Kind)
	}
	switch c.Kind {
	case CommandCreate:
		if c.ModelType == "" {
			return fmt.Errorf("command create %s: model type is required", c.ModelID)
		}
	case CommandChange:
		if c.Property == "" {
			return fmt.Errorf("command change %s: property is required", c.ModelID)
		}
	case CommandDelete:
	default:
		return fmt.Errorf("unknown command kind %q", c.Kind)
	}
	return nil
}

// String renders the command for logs and traces.
func (c Command) String() string {
	switch c.Kind {
	case CommandCreate:
		return fmt.Sprintf("create %s type=%s attrs=%d", c.ModelID, c.ModelType, len(c.Attributes))
	case CommandChange:
		return fmt.Sprintf("change %s.%s %s -> %s", c.ModelID, c.Property, FormatValue(c.Old), FormatValue(c.New))
	default:
		return fmt.Sprintf("%s %s", c.Kind, c.ModelID)
	}
}
