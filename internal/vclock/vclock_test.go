package vclock

import "testing"

func TestLeqEmpty(t *testing.T) {
	a := New()
	b := Clock{1: 3, 2: 1}
	if !a.Leq(b) {
		t.Fatal("empty clock must be leq any clock")
	}
}

func TestLeqComponentwise(t *testing.T) {
	a := Clock{1: 2, 2: 1}
	b := Clock{1: 2, 2: 2}
	if !a.Leq(b) {
		t.Fatal("expected a.Leq(b)")
	}
	if b.Leq(a) {
		t.Fatal("expected !b.Leq(a)")
	}
}

func TestJoinIsPointwiseMax(t *testing.T) {
	a := Clock{1: 2, 2: 5}
	b := Clock{1: 3, 3: 1}
	j := a.Join(b)
	if j.Get(1) != 3 || j.Get(2) != 5 || j.Get(3) != 1 {
		t.Fatalf("unexpected join result: %v", j)
	}
	// Operands must be untouched.
	if a.Get(1) != 2 || b.Get(2) != 0 {
		t.Fatal("join mutated an operand")
	}
}

func TestJoinInPlace(t *testing.T) {
	a := Clock{1: 1}
	a.JoinInPlace(Clock{1: 5, 2: 2})
	if a.Get(1) != 5 || a.Get(2) != 2 {
		t.Fatalf("unexpected join-in-place result: %v", a)
	}
}

func TestSetPanicsOnRegression(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on backward-moving component")
		}
	}()
	c := Clock{1: 5}
	c.Set(1, 3)
}

func TestSetAllowsFirstAssignment(t *testing.T) {
	c := New()
	c.Set(1, 0)
	if c.Get(1) != 0 {
		t.Fatal("expected first assignment to succeed even at zero")
	}
}

func TestSingletonLeqVec(t *testing.T) {
	s := Singleton{Replica: 2, Time: 4}
	if !s.LeqVec(Clock{2: 4}) {
		t.Fatal("expected singleton to be known at equal time")
	}
	if s.LeqVec(Clock{2: 3}) {
		t.Fatal("expected singleton to be unknown when time exceeds clock")
	}
	if s.LeqVec(Clock{}) {
		t.Fatal("expected singleton with nonzero time unknown to empty clock")
	}
}

func TestSingletonLeqAcrossReplicasIsFalse(t *testing.T) {
	a := Singleton{Replica: 1, Time: 1}
	b := Singleton{Replica: 2, Time: 100}
	if a.Leq(b) {
		t.Fatal("singletons from different replicas must not compare leq")
	}
}

func TestLiftAndClone(t *testing.T) {
	c := Lift(3, 7)
	clone := c.Clone()
	clone.Set(3, 8)
	if c.Get(3) != 7 {
		t.Fatal("clone must be independent of the original")
	}
}
