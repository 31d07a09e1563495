// Package store persists per-identifier check outcomes. The stored
// table is the resume point for interrupted runs and the hand-off the
// downstream enrichment pipeline reads positives from.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jvanderlaan/branchscan/internal/kvk"
)

// Outcome is the three-valued result recorded per identifier.
type Outcome int

const (
	// OutcomeFailed records an error or rate-limit exhaustion; it is
	// not a semantic negative and can be retried.
	OutcomeFailed Outcome = iota
	// OutcomeNegative records a confirmed absence of a branch
	// relationship.
	OutcomeNegative
	// OutcomePositive records a detected branch relationship; it is
	// never retried.
	OutcomePositive
)

// String implements fmt.Stringer for log fields.
func (o Outcome) String() string {
	switch o {
	case OutcomePositive:
		return "positive"
	case OutcomeNegative:
		return "negative"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// The storage layer keeps the original numeric encoding so existing
// databases remain readable: 1 positive, 0 negative, -1 failed. The
// tagged Outcome type exists everywhere else; encoding happens only
// at this boundary.
func (o Outcome) encode() (int, error) {
	switch o {
	case OutcomePositive:
		return 1, nil
	case OutcomeNegative:
		return 0, nil
	case OutcomeFailed:
		return -1, nil
	default:
		return 0, fmt.Errorf("encode outcome: unknown value %d", int(o))
	}
}

func decodeOutcome(v int) (Outcome, error) {
	switch v {
	case 1:
		return OutcomePositive, nil
	case 0:
		return OutcomeNegative, nil
	case -1:
		return OutcomeFailed, nil
	default:
		return 0, fmt.Errorf("decode outcome: unknown value %d", v)
	}
}

// Record is one stored row.
type Record struct {
	Number    kvk.Number
	Name      string
	Outcome   Outcome
	CheckedAt time.Time
}

// Store is the persistence interface for check outcomes. At most one
// record exists per identifier; Put overwrites the prior row
// entirely in a single statement.
type Store interface {
	// Get returns the record for a number, or found=false when the
	// identifier has never been checked.
	Get(ctx context.Context, n kvk.Number) (Record, bool, error)

	// Put upserts the record for rec.Number.
	Put(ctx context.Context, rec Record) error

	// ListPositive returns all records with a positive outcome, in
	// identifier order.
	ListPositive(ctx context.Context) ([]Record, error)

	// Migrate creates the schema if it does not exist.
	Migrate(ctx context.Context) error

	Close() error
}
