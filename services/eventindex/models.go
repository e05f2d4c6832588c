package eventindex

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// EventRow mirrors one committed ledger event. Actor is the identity that
// initiated the event and Subject the counterparty, when there is one.
type EventRow struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	Seq        uint64    `gorm:"uniqueIndex;not null"`
	Height     uint64    `gorm:"index;not null"`
	TxHash     string    `gorm:"size:66;index"`
	Type       string    `gorm:"size:64;index;not null"`
	VideoID    uint64    `gorm:"index"`
	Actor      string    `gorm:"size:96;index"`
	Subject    string    `gorm:"size:96;index"`
	Attributes string    `gorm:"type:text"`
	Timestamp  int64     `gorm:"index"`
	CreatedAt  time.Time
}

// TableName pins the table name independent of gorm's pluralisation rules.
func (EventRow) TableName() string { return "ledger_events" }

// AutoMigrate performs all schema migrations for the index.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&EventRow{})
}
