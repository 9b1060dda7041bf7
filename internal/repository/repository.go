// Package repository provides persistence for the dispatch engine.
//
// Two backends implement the same contracts: PostgreSQL (with Redis for the
// pricing cache and trip tracking) and an in-process MemoryStore. Every
// state change is a single conditional write so concurrent callers cannot
// both win the same booking or driver.
package repository

import (
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/shiva/ridedispatch/internal/model"
)

// ─── Errors ─────────────────────────────────────────────────

var (
	// ErrNotFound is returned when a row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrStaleState is returned when a conditional update matched no row
	// because the current state no longer satisfies the condition.
	ErrStaleState = errors.New("state changed concurrently")
	// ErrDuplicate is returned when a uniqueness invariant would be broken.
	ErrDuplicate = errors.New("duplicate")
)

const pgUniqueViolation = "23505"

// translate maps driver errors to the package sentinels.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return ErrDuplicate
	}
	return err
}

// ─── Shared request types ───────────────────────────────────

// BookingFilter narrows a booking listing. Empty fields match everything.
type BookingFilter struct {
	PassengerID string
	DriverID    string
	Status      model.BookingStatus
	Limit       int
}

func (f BookingFilter) matches(b *model.Booking) bool {
	if f.PassengerID != "" && b.PassengerID != f.PassengerID {
		return false
	}
	if f.DriverID != "" && b.DriverID != f.DriverID {
		return false
	}
	if f.Status != "" && b.Status != f.Status {
		return false
	}
	return true
}

// Transition is a compare-and-swap on a booking's status. The write only
// applies if the persisted status is one of From. The history row, the
// optional assignment and the optional settlement are written in the same
// unit of work.
type Transition struct {
	BookingID  string
	From       []model.BookingStatus
	To         model.BookingStatus
	DriverID   string // bound on requested → accepted
	At         time.Time
	Assignment *model.BookingAssignment
	Settlement *model.Settlement
}

func (t Transition) allows(s model.BookingStatus) bool {
	for _, f := range t.From {
		if f == s {
			return true
		}
	}
	return false
}

// RatingTarget selects which rating column is written.
type RatingTarget string

const (
	RatePassenger RatingTarget = "passenger"
	RateDriver    RatingTarget = "driver"
)

// Rating sets a post-completion rating once.
type Rating struct {
	BookingID string
	Target    RatingTarget
	Value     int
	Comment   string
	At        time.Time
}

func statusStrings(ss []model.BookingStatus) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = string(s)
	}
	return out
}
