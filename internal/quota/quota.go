// Package quota implements the free-question gate of a session.
package quota

import (
	"errors"

	"github.com/xaenox/kontify-triage/internal/models"
)

// DefaultMax is the number of free questions a session gets.
const DefaultMax = 3

// ErrExhausted is returned by Consume once the gate is closed.
var ErrExhausted = errors.New("question quota exhausted")

// Gate counts accepted questions. It is Open while used < max and Closed
// afterwards; only Reset reopens it. Gate is not safe for concurrent use;
// the owning session serializes access.
type Gate struct {
	used int
	max  int
}

// New returns an open gate allowing limit questions. Non-positive limit falls
// back to DefaultMax.
func New(limit int) *Gate {
	if limit <= 0 {
		limit = DefaultMax
	}
	return &Gate{max: limit}
}

// Restore returns a gate that has already accepted used questions, clamped
// to [0, limit].
func Restore(used, limit int) *Gate {
	g := New(limit)
	switch {
	case used < 0:
		used = 0
	case used > g.max:
		used = g.max
	}
	g.used = used
	return g
}

func (g *Gate) CanAccept() bool { return g.used < g.max }

func (g *Gate) Closed() bool { return !g.CanAccept() }

// Consume records one accepted question. On a closed gate it changes
// nothing and returns ErrExhausted.
func (g *Gate) Consume() (models.QuestionQuota, error) {
	if !g.CanAccept() {
		return g.Snapshot(), ErrExhausted
	}
	g.used++
	return g.Snapshot(), nil
}

// Reset reopens the gate with no questions used.
func (g *Gate) Reset() { g.used = 0 }

func (g *Gate) Used() int { return g.used }

func (g *Gate) Max() int { return g.max }

func (g *Gate) Remaining() int { return g.Snapshot().Remaining() }

func (g *Gate) Snapshot() models.QuestionQuota {
	return models.QuestionQuota{Used: g.used, Max: g.max}
}
