package log

import (
	"time"

	"github.com/google/uuid"
)

// NewBootID returns a fresh boot identifier.
func NewBootID() string {
	return uuid.NewString()
}

// Journal stamps events with the boot ID, operating mode and time before
// handing them to a Logger.
type Journal struct {
	logger Logger
	bootID string
	now    func() time.Time
	mode   string
}

// NewJournal creates a Journal. A nil logger discards events and a nil now
// uses time.Now.
func NewJournal(logger Logger, bootID string, now func() time.Time) *Journal {
	if logger == nil {
		logger = NoopLogger{}
	}
	if now == nil {
		now = time.Now
	}
	return &Journal{logger: logger, bootID: bootID, now: now}
}

// BootID returns the boot identifier.
func (j *Journal) BootID() string { return j.bootID }

// SetMode sets the mode recorded on later events.
func (j *Journal) SetMode(mode string) { j.mode = mode }

func (j *Journal) event(c Category) Event {
	return Event{
		Timestamp: j.now(),
		BootID:    j.bootID,
		Category:  c,
		Mode:      j.mode,
	}
}

// State records a state transition.
func (j *Journal) State(oldState, newState, reason string) {
	e := j.event(CategoryState)
	e.StateChange = &StateChangeEvent{OldState: oldState, NewState: newState, Reason: reason}
	j.logger.Log(e)
}

// Request records a handled request.
func (j *Journal) Request(remote string, req RequestEvent) {
	e := j.event(CategoryRequest)
	e.RemoteAddr = remote
	e.Request = &req
	j.logger.Log(e)
}

// Storage records a persistent record operation.
func (j *Journal) Storage(op StorageOp, n int) {
	e := j.event(CategoryStorage)
	e.Storage = &StorageEvent{Op: op, Bytes: n}
	j.logger.Log(e)
}

// Radio records a radio operation.
func (j *Journal) Radio(ev RadioEvent) {
	e := j.event(CategoryRadio)
	e.Radio = &ev
	j.logger.Log(e)
}

// Error records err with a description of the failed operation.
func (j *Journal) Error(context string, err error) {
	if err == nil {
		return
	}
	e := j.event(CategoryError)
	e.Error = &ErrorEventData{Message: err.Error(), Context: context}
	j.logger.Log(e)
}
