package state

import (
	"fmt"

	"viewledger/core/types"
)

type storedEvent struct {
	Seq        uint64
	Height     uint64
	TxHash     [32]byte
	Timestamp  uint64
	Type       string
	Attributes []types.Attribute
}

func eventLogKey(seq uint64) []byte {
	return prefixedKey(eventLogPrefix, uint64Bytes(seq))
}

// EventSeq returns the sequence number of the last logged event, 0 if none.
func (m *Manager) EventSeq() (uint64, error) {
	var seq uint64
	if _, err := m.KVGet(eventLogSeqKey, &seq); err != nil {
		return 0, err
	}
	return seq, nil
}

// AppendEvent assigns the next sequence number to rec and stores it.
func (m *Manager) AppendEvent(rec *types.EventRecord) (uint64, error) {
	if rec == nil || rec.Event == nil {
		return 0, fmt.Errorf("events: nil record")
	}
	seq, err := m.EventSeq()
	if err != nil {
		return 0, err
	}
	seq++
	stored := &storedEvent{
		Seq:        seq,
		Height:     rec.Height,
		TxHash:     rec.TxHash,
		Timestamp:  uint64(rec.Timestamp),
		Type:       rec.Event.Type,
		Attributes: append([]types.Attribute{}, rec.Event.Attributes...),
	}
	if err := m.KVPut(eventLogKey(seq), stored); err != nil {
		return 0, err
	}
	if err := m.KVPut(eventLogSeqKey, seq); err != nil {
		return 0, err
	}
	rec.Seq = seq
	return seq, nil
}

// EventAt loads the logged event with the given sequence number.
func (m *Manager) EventAt(seq uint64) (*types.EventRecord, bool, error) {
	var stored storedEvent
	ok, err := m.KVGet(eventLogKey(seq), &stored)
	if err != nil || !ok {
		return nil, false, err
	}
	return &types.EventRecord{
		Seq:       stored.Seq,
		Height:    stored.Height,
		TxHash:    stored.TxHash,
		Timestamp: int64(stored.Timestamp),
		Event:     &types.Event{Type: stored.Type, Attributes: stored.Attributes},
	}, true, nil
}

// EventsAfter returns up to limit logged events with sequence numbers greater
// than afterSeq, oldest first.
func (m *Manager) EventsAfter(afterSeq uint64, limit int) ([]*types.EventRecord, error) {
	last, err := m.EventSeq()
	if err != nil {
		return nil, err
	}
	out := []*types.EventRecord{}
	for seq := afterSeq + 1; seq <= last && (limit <= 0 || len(out) < limit); seq++ {
		rec, ok, err := m.EventAt(seq)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, rec)
		}
	}
	return out, nil
}
