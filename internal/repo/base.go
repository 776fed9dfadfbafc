package repo

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// Base provides the shared connection handling for the card repositories.
type Base struct {
	db  *gorm.DB
	now func() time.Time
}

// NewBase constructs a Base repository backed by the provided GORM connection.
func NewBase(db *gorm.DB) Base {
	return Base{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// DB returns the GORM connection bound to the supplied context (if any).
func (b Base) DB(ctx context.Context) *gorm.DB {
	if ctx == nil {
		return b.db
	}
	return b.db.WithContext(ctx)
}

// Bind returns a copy of the base running on tx. A nil tx keeps the current connection.
func (b Base) Bind(tx *gorm.DB) Base {
	if tx == nil {
		return b
	}
	b.db = tx
	return b
}

// Now is the clock used for explicit timestamp columns.
func (b Base) Now() time.Time {
	if b.now == nil {
		return time.Now().UTC()
	}
	return b.now()
}
