package holdem

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"strings"
)

type Suit byte

const (
	SuitClubs Suit = iota
	SuitDiamonds
	SuitHearts
	SuitSpades
)

type Rank byte

const (
	RankTwo Rank = iota + 2
	RankThree
	RankFour
	RankFive
	RankSix
	RankSeven
	RankEight
	RankNine
	RankTen
	RankJack
	RankQueen
	RankKing
	RankAce
)

const (
	rankChars = "23456789TJQKA"
	suitChars = "cdhs"
)

type Card struct {
	Rank Rank
	Suit Suit
}

func (c Card) valid() bool {
	return c.Rank >= RankTwo && c.Rank <= RankAce && c.Suit <= SuitSpades
}

// String renders the wire form: "As", "Td", "2c".
func (c Card) String() string {
	if !c.valid() {
		return "??"
	}
	return string([]byte{rankChars[c.Rank-RankTwo], suitChars[c.Suit]})
}

func (c Card) MarshalJSON() ([]byte, error) {
	if !c.valid() {
		return nil, fmt.Errorf("invalid card rank=%d suit=%d", c.Rank, c.Suit)
	}
	return json.Marshal(c.String())
}

// UnmarshalJSON accepts "As", "td", "2C"; ten must be T, not 10.
func (c *Card) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	s = strings.TrimSpace(s)
	if len(s) != 2 {
		return fmt.Errorf("invalid card literal %q (want 2 chars like As, Td)", s)
	}
	ri := strings.IndexByte(rankChars, upperByte(s[0]))
	if ri < 0 {
		return fmt.Errorf("invalid rank char %q", s[0])
	}
	si := strings.IndexByte(suitChars, lowerByte(s[1]))
	if si < 0 {
		return fmt.Errorf("invalid suit char %q (use c/d/h/s)", s[1])
	}
	c.Rank = RankTwo + Rank(ri)
	c.Suit = Suit(si)
	return nil
}

func upperByte(b byte) byte {
	if b >= 'a' && b <= 'z' {
		return b - ('a' - 'A')
	}
	return b
}

func lowerByte(b byte) byte {
	if b >= 'A' && b <= 'Z' {
		return b + ('a' - 'A')
	}
	return b
}

// newDeck returns a full 52-card deck shuffled with Fisher-Yates.
func newDeck(r *rand.Rand) []Card {
	deck := make([]Card, 0, 52)
	for s := SuitClubs; s <= SuitSpades; s++ {
		for rk := RankTwo; rk <= RankAce; rk++ {
			deck = append(deck, Card{Rank: rk, Suit: s})
		}
	}
	for i := len(deck) - 1; i > 0; i-- {
		j := r.Intn(i + 1)
		deck[i], deck[j] = deck[j], deck[i]
	}
	return deck
}
