package rake

// Compute returns the house commission on a pot as
// min(pot * rateBP / 10000, cap), floored. Rates are integer basis points so
// the math never touches floating point.
func Compute(pot, rateBP, cap int64) int64 {
	if pot <= 0 || rateBP <= 0 {
		return 0
	}
	r := pot * rateBP / 10000
	if cap > 0 && r > cap {
		r = cap
	}
	if r > pot {
		r = pot
	}
	return r
}

// Distribute splits a total rake across winners proportional to their share
// of total winnings. The final winner absorbs the rounding remainder, so the
// deductions always sum to exactly total.
func Distribute(winnings []int64, total int64) []int64 {
	cuts := make([]int64, len(winnings))
	if len(winnings) == 0 || total <= 0 {
		return cuts
	}

	var sum int64
	for _, w := range winnings {
		sum += w
	}
	if sum <= 0 {
		cuts[len(cuts)-1] = total
		return cuts
	}

	var assigned int64
	for i := 0; i < len(winnings)-1; i++ {
		cuts[i] = total * winnings[i] / sum
		assigned += cuts[i]
	}
	cuts[len(cuts)-1] = total - assigned
	return cuts
}
