package journal

import (
	"errors"
	"fmt"

	"github.com/roach88/pmsync/internal/pm"
)

// Entry is one journaled command.
type Entry struct {
	Seq       int64
	Side      pm.Side // sender
	Kind      pm.CommandKind
	ModelID   string
	ModelType string
	Payload   []byte // canonical JSON of the command

	// ErrorCode and Error are set when the receiver failed to apply it.
	ErrorCode pm.ErrorCode
	Error     string
}

// NewEntry builds the entry for cmd sent by side. applyErr is the receiver's
// result, nil on success.
func NewEntry(seq int64, side pm.Side, cmd pm.Command, applyErr error) (Entry, error) {
	payload, err := pm.EncodeCommand(cmd)
	if err != nil {
		return Entry{}, fmt.Errorf("journal entry %d: %w", seq, err)
	}
	e := Entry{
		Seq:       seq,
		Side:      side,
		Kind:      cmd.Kind,
		ModelID:   cmd.ModelID,
		ModelType: cmd.ModelType,
		Payload:   payload,
	}
	if applyErr != nil {
		e.ErrorCode = pm.CodeOf(applyErr)
		e.Error = applyErr.Error()
	}
	return e, nil
}

// Command decodes the journaled command.
func (e Entry) Command() (pm.Command, error) {
	return pm.DecodeCommand(e.Payload)
}

// Failed reports whether the receiver rejected the command.
func (e Entry) Failed() bool {
	return e.Error != ""
}

var errNoSide = errors.New("entry has no valid side")

func (e Entry) validate() error {
	if !e.Side.Valid() {
		return errNoSide
	}
	if e.ModelID == "" {
		return fmt.Errorf("entry %d has no model id", e.Seq)
	}
	if len(e.Payload) == 0 {
		return fmt.Errorf("entry %d has no payload", e.Seq)
	}
	return nil
}
