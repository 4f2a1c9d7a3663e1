// Package outcome scores games and game pairs and reduces accumulated
// counters to the sufficient statistics used by the SPRT.
package outcome

import (
	"errors"
	"fmt"
)

// GameResult is the result of a single game from the dev engine's side.
type GameResult int

const (
	Loss GameResult = iota
	Draw
	Win
)

// Pair is the joint outcome of two games played with colours swapped.
type Pair int

// Pairs are ordered by total points, which is also the index used by
// Counters.Pentanomial.
const (
	LL Pair = iota
	LD
	DD // also covers a win and a loss
	DW
	WW
)

func (p Pair) String() string {
	switch p {
	case LL:
		return "LL"
	case LD:
		return "LD"
	case DD:
		return "DD"
	case DW:
		return "DW"
	case WW:
		return "WW"
	}
	return fmt.Sprintf("Pair(%d)", int(p))
}

// PairOf classifies a colour-swapped game pair by the points dev scored.
func PairOf(first, second GameResult) Pair {
	return Pair(int(first) + int(second))
}

// ErrInconsistent is wrapped by every error returned from Validate.
var ErrInconsistent = errors.New("inconsistent outcome counters")

// Counters are the accumulated results of a test or of one result batch.
type Counters struct {
	Games  int `json:"games" gorm:"column:games"`
	Wins   int `json:"wins" gorm:"column:wins"`
	Draws  int `json:"draws" gorm:"column:draws"`
	Losses int `json:"losses" gorm:"column:losses"`

	// Pentanomial counters, only populated for paired tests.
	LL int `json:"ll" gorm:"column:ll"`
	LD int `json:"ld" gorm:"column:ld"`
	DD int `json:"dd" gorm:"column:dd"`
	DW int `json:"dw" gorm:"column:dw"`
	WW int `json:"ww" gorm:"column:ww"`
}

// Single returns the counters for one independently scored game.
func Single(r GameResult) Counters {
	c := Counters{Games: 1}
	c.addGame(r)
	return c
}

// Paired returns the counters for one colour-swapped game pair.
func Paired(first, second GameResult) Counters {
	c := Counters{Games: 2}
	c.addGame(first)
	c.addGame(second)
	switch PairOf(first, second) {
	case LL:
		c.LL = 1
	case LD:
		c.LD = 1
	case DD:
		c.DD = 1
	case DW:
		c.DW = 1
	case WW:
		c.WW = 1
	}
	return c
}

func (c *Counters) addGame(r GameResult) {
	switch r {
	case Win:
		c.Wins++
	case Draw:
		c.Draws++
	default:
		c.Losses++
	}
}

// Add returns the field-wise sum of c and d.
func (c Counters) Add(d Counters) Counters {
	return Counters{
		Games:  c.Games + d.Games,
		Wins:   c.Wins + d.Wins,
		Draws:  c.Draws + d.Draws,
		Losses: c.Losses + d.Losses,
		LL:     c.LL + d.LL,
		LD:     c.LD + d.LD,
		DD:     c.DD + d.DD,
		DW:     c.DW + d.DW,
		WW:     c.WW + d.WW,
	}
}

// Pairs returns the number of game pairs recorded.
func (c Counters) Pairs() int {
	return c.LL + c.LD + c.DD + c.DW + c.WW
}

// Units returns the number of scoring units: pairs when paired, games otherwise.
func (c Counters) Units(paired bool) int {
	if paired {
		return c.Pairs()
	}
	return c.Games
}

// Trinomial returns the counts ordered [L, D, W].
func (c Counters) Trinomial() []int {
	return []int{c.Losses, c.Draws, c.Wins}
}

// Pentanomial returns the counts ordered [LL, LD, DD, DW, WW].
func (c Counters) Pentanomial() []int {
	return []int{c.LL, c.LD, c.DD, c.DW, c.WW}
}

// Results returns the per-unit histogram for the accounting mode.
func (c Counters) Results(paired bool) []int {
	if paired {
		return c.Pentanomial()
	}
	return c.Trinomial()
}

// Validate checks that the counters are non-negative and internally
// consistent. In paired mode the pair counts must reduce to the game
// totals: with k win-loss pairs hidden in DD,
//
//	Wins   = 2WW + DW + k
//	Losses = 2LL + LD + k
//	Draws  = DW + LD + 2(DD - k)
func (c Counters) Validate(paired bool) error {
	for name, v := range map[string]int{
		"games": c.Games, "wins": c.Wins, "draws": c.Draws, "losses": c.Losses,
		"ll": c.LL, "ld": c.LD, "dd": c.DD, "dw": c.DW, "ww": c.WW,
	} {
		if v < 0 {
			return fmt.Errorf("%w: %s is negative", ErrInconsistent, name)
		}
	}
	if c.Wins+c.Draws+c.Losses != c.Games {
		return fmt.Errorf("%w: wins+draws+losses=%d, games=%d",
			ErrInconsistent, c.Wins+c.Draws+c.Losses, c.Games)
	}
	if !paired {
		if c.Pairs() != 0 {
			return fmt.Errorf("%w: pair counts on an unpaired test", ErrInconsistent)
		}
		return nil
	}
	if c.Games%2 != 0 {
		return fmt.Errorf("%w: odd game count %d in paired mode", ErrInconsistent, c.Games)
	}
	if c.Pairs()*2 != c.Games {
		return fmt.Errorf("%w: %d pairs for %d games", ErrInconsistent, c.Pairs(), c.Games)
	}
	k := c.Wins - 2*c.WW - c.DW
	if k < 0 || k > c.DD || c.Losses-2*c.LL-c.LD != k || c.Draws != c.DW+c.LD+2*(c.DD-k) {
		return fmt.Errorf("%w: pair counts do not reduce to W/D/L %d/%d/%d",
			ErrInconsistent, c.Wins, c.Draws, c.Losses)
	}
	return nil
}

// Stats returns the mean score, score variance and number of scoring units.
// Paired units score {0, 1/4, 1/2, 3/4, 1}, unpaired units score {0, 1/2, 1}.
// An empty histogram yields zeros.
func Stats(c Counters, paired bool) (mean, variance float64, n int) {
	results := c.Results(paired)
	div := float64(len(results) - 1)
	for _, v := range results {
		n += v
	}
	if n == 0 {
		return 0, 0, 0
	}
	for i, v := range results {
		mean += float64(i) / div * float64(v)
	}
	mean /= float64(n)
	for i, v := range results {
		d := float64(i)/div - mean
		variance += d * d * float64(v)
	}
	variance /= float64(n)
	return mean, variance, n
}
