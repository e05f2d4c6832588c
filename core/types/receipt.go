package types

// EventRecord is a committed event as stored in the durable receipt log.
// Seq is assigned at commit and increases by one per event.
type EventRecord struct {
	Seq       uint64   `json:"seq"`
	Height    uint64   `json:"height"`
	TxHash    [32]byte `json:"-"`
	Timestamp int64    `json:"timestamp"`
	Event     *Event   `json:"event"`
}

// Clone returns a deep copy of the record.
func (r *EventRecord) Clone() *EventRecord {
	if r == nil {
		return nil
	}
	clone := *r
	clone.Event = r.Event.Clone()
	return &clone
}
