package events

import "viewledger/core/types"

// Committed wraps an event that has been durably logged. Subscribers that need
// the log sequence number type-assert for it.
type Committed struct {
	Record *types.EventRecord
}

func (c Committed) EventType() string {
	if c.Record == nil || c.Record.Event == nil {
		return ""
	}
	return c.Record.Event.Type
}

func (c Committed) Event() *types.Event {
	if c.Record == nil {
		return nil
	}
	return c.Record.Event
}
