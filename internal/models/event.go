package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Event is owned by the event catalogue. The registration engine only reads
// it, except for Capacity which organisers may change at any time.
type Event struct {
	bun.BaseModel `bun:"table:events"`

	ID         string    `bun:"id,pk" json:"id"`
	Name       string    `bun:"name,notnull" json:"name"`
	Capacity   int       `bun:"capacity,notnull" json:"capacity"`
	PriceMinor int64     `bun:"price_minor,notnull" json:"price_minor"`
	Currency   string    `bun:"currency,notnull" json:"currency"`
	StartDate  time.Time `bun:"start_date,nullzero" json:"start_date"`
	EndDate    time.Time `bun:"end_date,nullzero" json:"end_date"`
	CreatedAt  time.Time `bun:"created_at,notnull" json:"created_at"`
}

// IsFree reports whether registrations for the event cost nothing.
func (e *Event) IsFree() bool {
	return e.PriceMinor <= 0
}
