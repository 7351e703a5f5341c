package sched

import (
	"testing"
)

func TestMapOrderIndependentOfWorkers(t *testing.T) {
	n := 1000
	fn := func(i int) int64 { return int64(i * i) }

	serial := Map(1, n, fn)
	for _, workers := range []int{2, 4, 8, 33} {
		parallel := Map(workers, n, fn)
		for i := range serial {
			if serial[i] != parallel[i] {
				t.Fatalf("workers=%d: slot %d = %d, want %d", workers, i, parallel[i], serial[i])
			}
		}
	}
}

func TestFoldAscendingOrder(t *testing.T) {
	// Non-commutative merge: order shows up in the result.
	slots := []string{"a", "b", "c", "d"}
	got := Fold("", slots, func(acc, s string) string { return acc + s })
	if got != "abcd" {
		t.Fatalf("fold = %q", got)
	}
}

func TestMapEmpty(t *testing.T) {
	if got := Map(4, 0, func(i int) int { return i }); len(got) != 0 {
		t.Fatalf("expected empty, got %v", got)
	}
}

func TestWorkersCappedAtN(t *testing.T) {
	got := Map(64, 3, func(i int) int { return i + 1 })
	want := []int{1, 2, 3}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("slot %d = %d", i, got[i])
		}
	}
}
