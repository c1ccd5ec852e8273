package holdem_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"math/rand"
	"testing"

	"holdem-service/internal/holdem"
)

func newGame(t *testing.T, n int, stack int64) *holdem.Game {
	t.Helper()

	stacks := make([]int64, n)
	for i := range stacks {
		stacks[i] = stack
	}
	g, err := holdem.New(holdem.Config{
		Stacks:     stacks,
		SmallBlind: 10,
		BigBlind:   20,
	}, rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatalf("new game failed: %v", err)
	}
	return g
}

func runOut(t *testing.T, g *holdem.Game) {
	t.Helper()

	for g.PendingActor() < 0 && !g.Complete() {
		if err := g.DealNextStreet(); err != nil {
			t.Fatalf("deal next street failed: %v", err)
		}
	}
}

func TestBlindsPostedOnDeal(t *testing.T) {
	g := newGame(t, 3, 1000)

	if got := g.Pot(); got != 30 {
		t.Fatalf("expected pot=30 after blinds, got %d", got)
	}
	snap := g.Serialize()
	if len(snap.Deck) != 52-6 {
		t.Fatalf("expected 46 undealt cards, got %d", len(snap.Deck))
	}
	for i, p := range snap.Players {
		if len(p.Hole) != 2 {
			t.Fatalf("player %d has %d hole cards", i, len(p.Hole))
		}
	}
	if g.PendingActor() != 0 {
		t.Fatalf("expected UTG (player 0) to act, got %d", g.PendingActor())
	}
}

func TestFoldRejectedWhenCheckAvailable(t *testing.T) {
	for n := 2; n <= 8; n++ {
		g := newGame(t, n, 1000)

		checksSeen := 0
		for g.PendingActor() >= 0 {
			actor := g.PendingActor()
			la := g.LegalActions(actor)
			if la.CanCheck {
				checksSeen++
				if err := g.Fold(actor); !errors.Is(err, holdem.ErrCannotFold) {
					t.Fatalf("n=%d: expected ErrCannotFold with call=0, got %v", n, err)
				}
			}
			if err := g.CheckCall(actor); err != nil {
				t.Fatalf("n=%d: check/call failed: %v", n, err)
			}
		}
		if checksSeen == 0 {
			t.Fatalf("n=%d: expected at least the big blind option", n)
		}

		// Same property on the flop, where nothing is owed.
		if err := g.DealNextStreet(); err != nil {
			t.Fatalf("n=%d: deal flop failed: %v", n, err)
		}
		actor := g.PendingActor()
		if actor < 0 {
			t.Fatalf("n=%d: expected a flop actor", n)
		}
		if err := g.Fold(actor); !errors.Is(err, holdem.ErrCannotFold) {
			t.Fatalf("n=%d: expected ErrCannotFold on unopened flop, got %v", n, err)
		}
	}
}

func TestHeadsUpAllInRunOut(t *testing.T) {
	g := newGame(t, 2, 1000)

	// Button posts the small blind heads-up and acts first.
	if g.PendingActor() != 0 {
		t.Fatalf("expected button to act first, got %d", g.PendingActor())
	}
	if err := g.BetRaiseTo(0, 1000); err != nil {
		t.Fatalf("all-in raise failed: %v", err)
	}
	if err := g.CheckCall(1); err != nil {
		t.Fatalf("all-in call failed: %v", err)
	}

	runOut(t, g)

	if !g.Complete() {
		t.Fatalf("expected hand complete after run-out")
	}
	if got := len(g.Board()); got != 5 {
		t.Fatalf("expected 5 community cards, got %d", got)
	}
	pot := g.Pot()
	if pot != 2000 {
		t.Fatalf("expected pot=2000, got %d", pot)
	}
	var winnerSum int64
	for _, w := range g.Winners() {
		winnerSum += w.Amount
		if w.Rank == "" {
			t.Fatalf("winner %d missing hand rank", w.Player)
		}
	}
	if winnerSum <= 0 || winnerSum > pot {
		t.Fatalf("winner amounts sum %d out of range (pot %d)", winnerSum, pot)
	}
	// Chips are conserved: stacks plus nothing else account for both buy-ins.
	snap := g.Serialize()
	var stackSum int64
	for _, p := range snap.Players {
		stackSum += p.Stack
	}
	if stackSum != 2000 {
		t.Fatalf("expected stacks to sum to 2000, got %d", stackSum)
	}
}

func TestThreeHandedFoldKeepsSeatOccupied(t *testing.T) {
	g := newGame(t, 3, 1000)

	if err := g.Fold(0); err != nil {
		t.Fatalf("UTG fold failed: %v", err)
	}

	snap := g.Serialize()
	inHand := 0
	for _, p := range snap.Players {
		if !p.Folded {
			inHand++
		}
	}
	if inHand != 2 {
		t.Fatalf("expected 2 players in hand, got %d", inHand)
	}
	if !snap.Players[0].Folded {
		t.Fatalf("expected player 0 folded")
	}
	if g.Complete() {
		t.Fatalf("hand should continue with 2 players")
	}
}

func TestFoldOutAwardsPot(t *testing.T) {
	g := newGame(t, 2, 1000)

	if err := g.BetRaiseTo(0, 60); err != nil {
		t.Fatalf("raise failed: %v", err)
	}
	if err := g.Fold(1); err != nil {
		t.Fatalf("fold failed: %v", err)
	}

	if !g.Complete() {
		t.Fatalf("expected fold-out completion")
	}
	winners := g.Winners()
	if len(winners) != 1 || winners[0].Player != 0 {
		t.Fatalf("unexpected winners: %+v", winners)
	}
	if winners[0].Amount != 80 {
		t.Fatalf("expected winner amount 80, got %d", winners[0].Amount)
	}
	if winners[0].Rank != "uncontested" {
		t.Fatalf("unexpected rank %q", winners[0].Rank)
	}
}

func TestOutOfTurnRejected(t *testing.T) {
	g := newGame(t, 3, 1000)

	if err := g.CheckCall(1); !errors.Is(err, holdem.ErrNotPlayersTurn) {
		t.Fatalf("expected ErrNotPlayersTurn, got %v", err)
	}
}

func TestRaiseBelowMinimumRejected(t *testing.T) {
	g := newGame(t, 3, 1000)

	// Min raise preflop is to 40; 30 is neither legal nor an all-in.
	if err := g.BetRaiseTo(0, 30); !errors.Is(err, holdem.ErrRaiseTooSmall) {
		t.Fatalf("expected ErrRaiseTooSmall, got %v", err)
	}
	if err := g.BetRaiseTo(0, 2000); !errors.Is(err, holdem.ErrRaiseTooLarge) {
		t.Fatalf("expected ErrRaiseTooLarge, got %v", err)
	}
}

func TestLegalActionsForActor(t *testing.T) {
	g := newGame(t, 3, 1000)

	la := g.LegalActions(0)
	if !la.CanFold || la.CanCheck {
		t.Fatalf("UTG should fold/call, not check: %+v", la)
	}
	if la.CallAmount != 20 {
		t.Fatalf("expected call 20, got %d", la.CallAmount)
	}
	if la.MinRaiseTo != 40 {
		t.Fatalf("expected min raise to 40, got %d", la.MinRaiseTo)
	}
	if la.MaxRaiseTo != 1000 {
		t.Fatalf("expected max raise to 1000, got %d", la.MaxRaiseTo)
	}
	if got := g.LegalActions(1); got != (holdem.LegalActions{}) {
		t.Fatalf("non-actor should have no legal actions: %+v", got)
	}
}

func mustMarshal(t *testing.T, v interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	return data
}

func assertRoundTrip(t *testing.T, g *holdem.Game) {
	t.Helper()

	first := g.Serialize()
	restored, err := holdem.Restore(first)
	if err != nil {
		t.Fatalf("restore failed: %v", err)
	}
	second := restored.Serialize()
	if !bytes.Equal(mustMarshal(t, first), mustMarshal(t, second)) {
		t.Fatalf("snapshot round trip mismatch:\n%s\n%s", mustMarshal(t, first), mustMarshal(t, second))
	}
}

func TestSnapshotRoundTripPreflop(t *testing.T) {
	assertRoundTrip(t, newGame(t, 4, 1000))
}

func TestSnapshotRoundTripPostFlop(t *testing.T) {
	g := newGame(t, 3, 1000)
	for g.PendingActor() >= 0 {
		if err := g.CheckCall(g.PendingActor()); err != nil {
			t.Fatalf("check/call failed: %v", err)
		}
	}
	if err := g.DealNextStreet(); err != nil {
		t.Fatalf("deal flop failed: %v", err)
	}
	if got := g.Street(); got != holdem.StreetFlop {
		t.Fatalf("expected flop, got %v", got)
	}
	assertRoundTrip(t, g)
}

func TestSnapshotRoundTripAllInRunOut(t *testing.T) {
	g := newGame(t, 2, 500)
	if err := g.BetRaiseTo(0, 500); err != nil {
		t.Fatalf("all-in failed: %v", err)
	}
	if err := g.CheckCall(1); err != nil {
		t.Fatalf("call failed: %v", err)
	}
	runOut(t, g)
	if !g.Complete() {
		t.Fatalf("expected completed hand")
	}
	assertRoundTrip(t, g)
}

func TestRestoreResumesPlay(t *testing.T) {
	g := newGame(t, 3, 1000)
	if err := g.CheckCall(0); err != nil {
		t.Fatalf("call failed: %v", err)
	}

	restored, err := holdem.Restore(g.Serialize())
	if err != nil {
		t.Fatalf("restore failed: %v", err)
	}
	if restored.PendingActor() != g.PendingActor() {
		t.Fatalf("actor mismatch after restore: %d vs %d", restored.PendingActor(), g.PendingActor())
	}
	if err := restored.CheckCall(restored.PendingActor()); err != nil {
		t.Fatalf("restored engine rejected a legal action: %v", err)
	}
}

func TestSidePotsPayShortStackAtMostItsMatch(t *testing.T) {
	stacks := []int64{100, 1000, 1000}
	g, err := holdem.New(holdem.Config{Stacks: stacks, SmallBlind: 10, BigBlind: 20}, rand.New(rand.NewSource(7)))
	if err != nil {
		t.Fatalf("new game failed: %v", err)
	}

	// UTG shoves short, both blinds shove over the top.
	if err := g.BetRaiseTo(0, 100); err != nil {
		t.Fatalf("short shove failed: %v", err)
	}
	if err := g.BetRaiseTo(1, 1000); err != nil {
		t.Fatalf("sb shove failed: %v", err)
	}
	if err := g.CheckCall(2); err != nil {
		t.Fatalf("bb call failed: %v", err)
	}
	runOut(t, g)

	if !g.Complete() {
		t.Fatalf("expected completed hand")
	}
	pot := g.Pot()
	if pot != 100+1000+1000 {
		t.Fatalf("unexpected pot %d", pot)
	}
	var sum int64
	for _, w := range g.Winners() {
		sum += w.Amount
		if w.Player == 0 && w.Amount > 300 {
			t.Fatalf("short stack won %d, can match at most 300", w.Amount)
		}
	}
	if sum != pot {
		t.Fatalf("payouts %d do not account for pot %d", sum, pot)
	}
}
