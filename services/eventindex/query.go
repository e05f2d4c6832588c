package eventindex

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"viewledger/core/types"
)

const (
	DefaultQueryLimit = 100
	MaxQueryLimit     = 1000
)

// Filter narrows an index query. Zero values match everything.
type Filter struct {
	Type     string
	VideoID  uint64
	Address  string
	AfterSeq uint64
	Limit    int
}

func (f Filter) limit() int {
	switch {
	case f.Limit <= 0:
		return DefaultQueryLimit
	case f.Limit > MaxQueryLimit:
		return MaxQueryLimit
	default:
		return f.Limit
	}
}

func (f Filter) apply(tx *gorm.DB) *gorm.DB {
	if t := strings.TrimSpace(f.Type); t != "" {
		tx = tx.Where("type = ?", t)
	}
	if f.VideoID != 0 {
		tx = tx.Where("video_id = ?", f.VideoID)
	}
	if addr := strings.TrimSpace(f.Address); addr != "" {
		tx = tx.Where("actor = ? OR subject = ?", addr, addr)
	}
	if f.AfterSeq > 0 {
		tx = tx.Where("seq > ?", f.AfterSeq)
	}
	return tx
}

// Query returns indexed events matching filter, oldest first.
func (s *Store) Query(ctx context.Context, filter Filter) ([]*types.EventRecord, error) {
	var rows []EventRow
	if err := filter.apply(s.db.WithContext(ctx).Model(&EventRow{})).Order("seq ASC").Limit(filter.limit()).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*types.EventRecord, 0, len(rows))
	for i := range rows {
		record, err := rows[i].record()
		if err != nil {
			return nil, err
		}
		out = append(out, record)
	}
	return out, nil
}

// Count returns how many indexed events match filter, ignoring its limit.
func (s *Store) Count(ctx context.Context, filter Filter) (int64, error) {
	var n int64
	err := filter.apply(s.db.WithContext(ctx).Model(&EventRow{})).Count(&n).Error
	return n, err
}
