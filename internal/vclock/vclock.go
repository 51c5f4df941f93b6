// Package vclock implements the vector clock algebra used to order and
// compare replica history: per-replica logical counters, singleton
// timestamps for creation events, and the join/leq operations the
// reconciliation engine uses to decide every synchronization action.
package vclock

import (
	"fmt"
	"sort"
	"strings"
)

// Clock is a finite mapping from replica id to logical counter. Entries with
// a value of 0 are semantically absent and may be elided; a nil Clock behaves
// as the empty clock. Clock is not safe for concurrent use by multiple
// goroutines without external synchronization — callers holding a tree node's
// lock already serialize access.
type Clock map[int32]uint64

// New returns a new, empty vector clock.
func New() Clock {
	return make(Clock)
}

// Singleton is a single (replica_id, counter) pair, used for creation
// timestamps and for lifting a single replica's knowledge into vector-clock
// comparisons.
type Singleton struct {
	Replica int32
	Time    uint64
}

// Zero is the singleton timestamp used for base nodes, which exist before any
// replica-local event has occurred.
var Zero = Singleton{}

// Get returns the logical counter recorded for the given replica, or 0 if the
// replica has no entry.
func (c Clock) Get(replica int32) uint64 {
	if c == nil {
		return 0
	}
	return c[replica]
}

// Set assigns the logical counter for the given replica. Set panics if the
// requested value is not an advance on whatever was already present — vector
// clock components must be monotonic for the owning replica, and a component
// going backward indicates a programmer or OS-sequencing bug (spec.md §7).
func (c Clock) Set(replica int32, t uint64) {
	if existing, ok := c[replica]; ok && t <= existing {
		panic(fmt.Sprintf("vector clock component for replica %d moved backward (%d -> %d)", replica, existing, t))
	}
	c[replica] = t
}

// Bump is an alias for Set, matching the terminology used in spec.md's
// V.bump(id, t) operation.
func (c Clock) Bump(replica int32, t uint64) {
	c.Set(replica, t)
}

// Leq reports whether c is less than or equal to other: every component of c
// is less than or equal to the corresponding component of other.
func (c Clock) Leq(other Clock) bool {
	for replica, t := range c {
		if t > other.Get(replica) {
			return false
		}
	}
	return true
}

// Join returns the pointwise maximum of c and other as a new Clock, leaving
// both operands unmodified.
func (c Clock) Join(other Clock) Clock {
	result := make(Clock, len(c)+len(other))
	for replica, t := range c {
		result[replica] = t
	}
	for replica, t := range other {
		if t > result[replica] {
			result[replica] = t
		}
	}
	return result
}

// JoinInPlace merges other into c, mutating c to hold the pointwise maximum.
func (c Clock) JoinInPlace(other Clock) {
	for replica, t := range other {
		if t > c[replica] {
			c[replica] = t
		}
	}
}

// Lift returns a new Clock containing a single (replica, t) entry. It is the
// vector-clock equivalent of a Singleton.
func Lift(replica int32, t uint64) Clock {
	return Clock{replica: t}
}

// Clone returns an independent copy of c.
func (c Clock) Clone() Clock {
	result := make(Clock, len(c))
	for replica, t := range c {
		result[replica] = t
	}
	return result
}

// IsZero reports whether the clock has no (non-zero) entries.
func (c Clock) IsZero() bool {
	for _, t := range c {
		if t != 0 {
			return false
		}
	}
	return true
}

// String renders the clock as a sorted, comma-separated list of
// replica:counter pairs, for logging and diagnostics.
func (c Clock) String() string {
	if len(c) == 0 {
		return "{}"
	}
	replicas := make([]int32, 0, len(c))
	for replica := range c {
		replicas = append(replicas, replica)
	}
	sort.Slice(replicas, func(i, j int) bool { return replicas[i] < replicas[j] })
	parts := make([]string, 0, len(replicas))
	for _, replica := range replicas {
		parts = append(parts, fmt.Sprintf("%d:%d", replica, c[replica]))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// LeqVec reports whether the singleton timestamp s is already known to v,
// i.e. s.Time <= v[s.Replica]. This is the comparison used throughout the
// reconciliation decision table to test whether a creation event has already
// been observed by a peer.
func (s Singleton) LeqVec(v Clock) bool {
	return s.Time <= v.Get(s.Replica)
}

// Leq reports whether the singleton timestamp s precedes or equals another
// singleton timestamp from the same replica. Singletons from different
// replicas are incomparable and always report false, mirroring the
// create_time field's role as a single originating event rather than a
// causal history.
func (s Singleton) Leq(other Singleton) bool {
	return s.Replica == other.Replica && s.Time <= other.Time
}

// String renders the singleton as "(replica, time)".
func (s Singleton) String() string {
	return fmt.Sprintf("(%d, %d)", s.Replica, s.Time)
}
