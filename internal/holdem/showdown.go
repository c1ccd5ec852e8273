package holdem

import (
	"sort"

	"github.com/paulhankin/poker"
)

// pot is one layer of the (possibly side-potted) pot structure.
type pot struct {
	amount   int64
	eligible []int
}

// showdown layers the pot by commitment level, scores every eligible player
// with the 7-card evaluator and pays winners into their stacks. Odd chips go
// to the earliest eligible winner in canonical order.
func (g *Game) showdown() {
	pots := g.buildPots()
	payouts := make([]int64, len(g.players))

	for _, pt := range pots {
		winners := g.bestOf(pt.eligible)
		share := pt.amount / int64(len(winners))
		rem := pt.amount - share*int64(len(winners))
		for k, w := range winners {
			amt := share
			if k == 0 {
				amt += rem
			}
			payouts[w] += amt
		}
	}

	g.winners = g.winners[:0]
	for i := range g.players {
		if payouts[i] == 0 {
			continue
		}
		g.players[i].stack += payouts[i]
		rank, best := g.describeHand(i)
		g.winners = append(g.winners, Winner{
			Player: i,
			Amount: payouts[i],
			Rank:   rank,
			Best:   best,
		})
	}
	g.actor = -1
	g.complete = true
}

// buildPots slices total commitments into main and side pots. Folded money
// stays in the pots it was committed to; folded players are never eligible.
func (g *Game) buildPots() []pot {
	levelSet := make(map[int64]struct{})
	for i := range g.players {
		if !g.players[i].folded && g.players[i].totalBet > 0 {
			levelSet[g.players[i].totalBet] = struct{}{}
		}
	}
	levels := make([]int64, 0, len(levelSet))
	for l := range levelSet {
		levels = append(levels, l)
	}
	sort.Slice(levels, func(i, j int) bool { return levels[i] < levels[j] })

	pots := make([]pot, 0, len(levels))
	var prev int64
	for _, level := range levels {
		var amount int64
		var eligible []int
		for i := range g.players {
			committed := g.players[i].totalBet
			if committed > prev {
				slice := committed - prev
				if width := level - prev; slice > width {
					slice = width
				}
				amount += slice
			}
			if !g.players[i].folded && committed >= level {
				eligible = append(eligible, i)
			}
		}
		if amount > 0 {
			pots = append(pots, pot{amount: amount, eligible: eligible})
		}
		prev = level
	}
	return pots
}

// bestOf returns the eligible players holding the strongest 7-card hand,
// in canonical order.
func (g *Game) bestOf(eligible []int) []int {
	if len(eligible) == 1 {
		return eligible
	}
	var winners []int
	var bestScore int16
	for _, i := range eligible {
		score := g.score7(i)
		if len(winners) == 0 || score > bestScore {
			winners = winners[:0]
			winners = append(winners, i)
			bestScore = score
		} else if score == bestScore {
			winners = append(winners, i)
		}
	}
	return winners
}

func (g *Game) score7(i int) int16 {
	var seven [7]poker.Card
	for k, c := range g.board {
		seven[k] = libCard(c)
	}
	seven[5] = libCard(g.players[i].hole[0])
	seven[6] = libCard(g.players[i].hole[1])
	return poker.Eval7(&seven)
}

// describeHand reports the winner's hand rank and the best five cards out of
// the seven available.
func (g *Game) describeHand(i int) (string, []Card) {
	all := make([]Card, 0, 7)
	all = append(all, g.board...)
	all = append(all, g.players[i].hole...)
	if len(all) != 7 {
		return "uncontested", nil
	}

	lib := make([]poker.Card, 7)
	for k, c := range all {
		lib[k] = libCard(c)
	}
	desc, err := poker.Describe(lib)
	if err != nil {
		desc = ""
	}

	// Best five: drop every pair of cards, keep the strongest remainder.
	var best []Card
	var bestScore int16
	first := true
	for a := 0; a < 7; a++ {
		for b := a + 1; b < 7; b++ {
			var five [5]poker.Card
			var fiveCards []Card
			k := 0
			for idx := 0; idx < 7; idx++ {
				if idx == a || idx == b {
					continue
				}
				five[k] = lib[idx]
				fiveCards = append(fiveCards, all[idx])
				k++
			}
			score := poker.Eval5(&five)
			if first || score > bestScore {
				first = false
				bestScore = score
				best = fiveCards
			}
		}
	}
	return desc, best
}

func libCard(c Card) poker.Card {
	var suit poker.Suit
	switch c.Suit {
	case SuitClubs:
		suit = poker.Club
	case SuitDiamonds:
		suit = poker.Diamond
	case SuitHearts:
		suit = poker.Heart
	case SuitSpades:
		suit = poker.Spade
	}
	rank := int(c.Rank)
	if c.Rank == RankAce {
		rank = 1
	}
	card, _ := poker.MakeCard(suit, poker.Rank(rank))
	return card
}
