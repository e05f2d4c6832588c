package eventindex

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"viewledger/core/events"
	"viewledger/core/types"
)

const catchUpBatch = 500

var ErrUnsupportedDriver = errors.New("eventindex: unsupported driver")

// Source supplies committed events from the durable receipt log.
type Source interface {
	Events(afterSeq uint64, limit int) ([]*types.EventRecord, error)
}

// Open connects to the index database using the named driver.
func Open(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "sqlite":
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("eventindex: open %s: %w", driver, err)
	}
	return db, nil
}

// Store keeps a queryable relational copy of committed events. It consumes
// events.Committed from the processor and ignores everything else.
type Store struct {
	db     *gorm.DB
	logger *slog.Logger
	mu     sync.Mutex
}

// New migrates the schema and returns a store over db.
func New(db *gorm.DB, log *slog.Logger) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("eventindex: database required")
	}
	if log == nil {
		log = slog.Default()
	}
	if err := AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("eventindex: migrate: %w", err)
	}
	return &Store{db: db, logger: log}, nil
}

// DB exposes the underlying handle.
func (s *Store) DB() *gorm.DB { return s.db }

// Emit indexes committed events. Failures are logged; the receipt log stays
// authoritative and CatchUp repairs gaps.
func (s *Store) Emit(evt events.Event) {
	committed, ok := evt.(events.Committed)
	if !ok || committed.Record == nil {
		return
	}
	if err := s.Index(context.Background(), committed.Record); err != nil {
		s.logger.Error("eventindex: index event failed",
			slog.Uint64("seq", committed.Record.Seq),
			slog.String("type", committed.EventType()),
			slog.Any("error", err))
	}
}

// Index stores record. Re-indexing an existing sequence number is a no-op.
func (s *Store) Index(ctx context.Context, record *types.EventRecord) error {
	row, err := rowFromRecord(record)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "seq"}}, DoNothing: true}).
		Create(row).Error
}

// LastSeq returns the highest indexed sequence number, or zero when empty.
func (s *Store) LastSeq(ctx context.Context) (uint64, error) {
	var row EventRow
	err := s.db.WithContext(ctx).Order("seq DESC").Limit(1).Find(&row).Error
	if err != nil {
		return 0, err
	}
	return row.Seq, nil
}

// CatchUp indexes every event in src newer than the last indexed sequence
// and returns how many rows were added.
func (s *Store) CatchUp(ctx context.Context, src Source) (int, error) {
	after, err := s.LastSeq(ctx)
	if err != nil {
		return 0, err
	}
	indexed := 0
	for {
		if err := ctx.Err(); err != nil {
			return indexed, err
		}
		batch, err := src.Events(after, catchUpBatch)
		if err != nil {
			return indexed, fmt.Errorf("eventindex: read receipt log: %w", err)
		}
		if len(batch) == 0 {
			return indexed, nil
		}
		for _, record := range batch {
			if err := s.Index(ctx, record); err != nil {
				return indexed, err
			}
			after = record.Seq
			indexed++
		}
		if len(batch) < catchUpBatch {
			return indexed, nil
		}
	}
}

func rowFromRecord(record *types.EventRecord) (*EventRow, error) {
	if record == nil || record.Event == nil {
		return nil, fmt.Errorf("eventindex: empty record")
	}
	attrs, err := json.Marshal(record.Event.Attributes)
	if err != nil {
		return nil, err
	}
	row := &EventRow{
		ID:         uuid.New(),
		Seq:        record.Seq,
		Height:     record.Height,
		TxHash:     common.Hash(record.TxHash).Hex(),
		Type:       record.Event.Type,
		Attributes: string(attrs),
		Timestamp:  record.Timestamp,
	}
	if raw, ok := record.Event.Attr("id"); ok {
		if id, err := strconv.ParseUint(raw, 10, 64); err == nil {
			row.VideoID = id
		}
	}
	row.Actor, row.Subject = participants(record.Event)
	return row, nil
}

// participants picks the initiating and counterparty identities by event
// shape rather than by type so transfer and paywall events share one column.
func participants(evt *types.Event) (string, string) {
	for _, pair := range [][2]string{
		{"viewer", "creator"},
		{"from", "to"},
		{"creator", ""},
		{"caller", ""},
		{"owner", ""},
	} {
		actor, ok := evt.Attr(pair[0])
		if !ok {
			continue
		}
		subject := ""
		if pair[1] != "" {
			subject, _ = evt.Attr(pair[1])
		}
		return actor, subject
	}
	return "", ""
}

func (r *EventRow) record() (*types.EventRecord, error) {
	var attrs []types.Attribute
	if r.Attributes != "" {
		if err := json.Unmarshal([]byte(r.Attributes), &attrs); err != nil {
			return nil, fmt.Errorf("eventindex: decode attributes for seq %d: %w", r.Seq, err)
		}
	}
	if attrs == nil {
		attrs = []types.Attribute{}
	}
	return &types.EventRecord{
		Seq:       r.Seq,
		Height:    r.Height,
		TxHash:    common.HexToHash(r.TxHash),
		Timestamp: r.Timestamp,
		Event:     &types.Event{Type: r.Type, Attributes: attrs},
	}, nil
}
