package rake_test

import (
	"testing"

	"holdem-service/internal/service/rake"
)

func TestComputeRake(t *testing.T) {
	cases := []struct {
		name   string
		pot    int64
		rateBP int64
		cap    int64
		want   int64
	}{
		{"five percent capped out of reach", 1000, 500, 50, 50},
		{"small pot floors to one unit", 20, 500, 50, 1},
		{"cap binds", 10000, 500, 50, 50},
		{"zero pot", 0, 500, 50, 0},
		{"zero rate", 1000, 0, 50, 0},
		{"uncapped", 1000, 500, 0, 50},
		{"sub-unit pot rakes nothing", 10, 500, 50, 0},
	}
	for _, tc := range cases {
		if got := rake.Compute(tc.pot, tc.rateBP, tc.cap); got != tc.want {
			t.Fatalf("%s: Compute(%d, %d, %d) = %d, want %d", tc.name, tc.pot, tc.rateBP, tc.cap, got, tc.want)
		}
	}
}

func TestDistributeExactness(t *testing.T) {
	winnings := []int64{700, 200, 100}
	cuts := rake.Distribute(winnings, 50)

	var sum int64
	for _, c := range cuts {
		sum += c
	}
	if sum != 50 {
		t.Fatalf("cuts sum to %d, want exactly 50", sum)
	}
	if cuts[0] != 35 || cuts[1] != 10 {
		t.Fatalf("unexpected proportional cuts: %v", cuts)
	}
	if cuts[2] != 5 {
		t.Fatalf("last winner should absorb the remainder, got %v", cuts)
	}
}

func TestDistributeRemainderOnLastWinner(t *testing.T) {
	// 10 across a 3-way even split leaves a remainder of 1.
	cuts := rake.Distribute([]int64{100, 100, 100}, 10)
	if cuts[0] != 3 || cuts[1] != 3 || cuts[2] != 4 {
		t.Fatalf("unexpected cuts: %v", cuts)
	}
}

func TestDistributeSingleWinner(t *testing.T) {
	cuts := rake.Distribute([]int64{500}, 25)
	if len(cuts) != 1 || cuts[0] != 25 {
		t.Fatalf("unexpected cuts: %v", cuts)
	}
}

func TestDistributeNoRake(t *testing.T) {
	cuts := rake.Distribute([]int64{500, 500}, 0)
	if cuts[0] != 0 || cuts[1] != 0 {
		t.Fatalf("expected no deductions, got %v", cuts)
	}
}
