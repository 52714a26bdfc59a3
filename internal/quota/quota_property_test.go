package quota

import (
	"testing"

	"pgregory.net/rapid"
)

// Property: used never decreases under Consume and never exceeds max.
func TestProperty_UsedMonotonicAndBounded(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		limit := rapid.IntRange(1, 10).Draw(t, "max")
		g := New(limit)
		calls := rapid.IntRange(0, 30).Draw(t, "calls")

		prev := g.Used()
		for i := 0; i < calls; i++ {
			wasOpen := g.CanAccept()
			_, err := g.Consume()
			if wasOpen != (err == nil) {
				t.Fatalf("consume error %v while open=%v", err, wasOpen)
			}
			if g.Used() < prev {
				t.Fatalf("used decreased from %d to %d", prev, g.Used())
			}
			if g.Used() > limit {
				t.Fatalf("used %d exceeds max %d", g.Used(), limit)
			}
			prev = g.Used()
		}
		if calls >= limit && !g.Closed() {
			t.Fatalf("gate still open after %d consumes with max %d", calls, limit)
		}
	})
}
