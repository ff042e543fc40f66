package eventbus

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyConfigured is returned by a second Configure call.
	ErrAlreadyConfigured = errors.New("eventbus: adapter already configured")

	// ErrNilAdapter is returned when Configure is given a nil adapter.
	ErrNilAdapter = errors.New("eventbus: adapter cannot be nil")
)

// Persistence stages reported by PersistError.
const (
	StageEvent  = "event"
	StageMemory = "memory"
)

// PersistError reports a failed adapter write during Publish. The event was
// still derived and broadcast; only durability is in question.
type PersistError struct {
	Stage       string
	EventID     string
	CharacterID string
	Err         error
}

func (e *PersistError) Error() string {
	if e.CharacterID != "" {
		return fmt.Sprintf("eventbus: persist %s for event %s character %s: %v", e.Stage, e.EventID, e.CharacterID, e.Err)
	}
	return fmt.Sprintf("eventbus: persist %s %s: %v", e.Stage, e.EventID, e.Err)
}

func (e *PersistError) Unwrap() error {
	return e.Err
}
