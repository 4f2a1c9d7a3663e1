package sprt

import (
	"fmt"
	"math"

	"github.com/leelachesszero/sprt-server/internal/outcome"
)

// Mode selects the stopping rule of a test.
type Mode string

const (
	ModeSPRT  Mode = "SPRT"
	ModeGames Mode = "GAMES"
	ModeSPSA  Mode = "SPSA"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	return m == ModeSPRT || m == ModeGames || m == ModeSPSA
}

// Model selects how the LLR is computed.
type Model string

const (
	// Logistic is the normal approximation of the LLR on logistic Elo.
	Logistic Model = "logistic"
	// Normalized is the GSPRT on normalized Elo.
	Normalized Model = "normalized"
)

// Verdict is the decision reached by Evaluate.
type Verdict int

const (
	Continue Verdict = iota
	Pass
	Fail
)

func (v Verdict) String() string {
	switch v {
	case Pass:
		return "PASS"
	case Fail:
		return "FAIL"
	}
	return "CONTINUE"
}

// Params are the per-test inputs of Evaluate. LowerLLR and UpperLLR come from
// Bounds and are fixed when the test is created.
type Params struct {
	Mode     Mode
	Paired   bool
	Model    Model
	EloLower float64
	EloUpper float64
	LowerLLR float64
	UpperLLR float64
	// MaxGames is the game cap, 0 for none.
	MaxGames int
	// Confidence of the Elo interval used for GAMES verdicts.
	Confidence float64
}

// Result is the outcome of one evaluation.
type Result struct {
	LLR     float64
	Verdict Verdict
}

// Bounds returns the LLR stop bounds for type I error alpha and type II error beta.
func Bounds(alpha, beta float64) (lower, upper float64) {
	return math.Log(beta / (1 - alpha)), math.Log((1 - beta) / alpha)
}

// LLR returns the log-likelihood ratio of elo1 against elo0 for the counters.
// It is zero while the score variance is zero, which includes the empty test.
func LLR(c outcome.Counters, paired bool, model Model, elo0, elo1 float64) (float64, error) {
	mean, variance, n := outcome.Stats(c, paired)
	if n == 0 || variance <= 0 {
		return 0, nil
	}
	if model == Normalized {
		if paired {
			return PentanomialSPRT(c.Pentanomial(), elo0, elo1)
		}
		return TrinomialSPRT(c.Trinomial(), elo0, elo1)
	}
	s0, s1 := expectedScore(elo0), expectedScore(elo1)
	return float64(n) * (s1 - s0) * (2*mean - s0 - s1) / (2 * variance), nil
}

// Evaluate computes the LLR for c and decides whether the test should stop.
// It is pure and must be given a consistent snapshot of the counters.
func Evaluate(c outcome.Counters, p Params) (Result, error) {
	res := Result{Verdict: Continue}
	capped := p.MaxGames > 0 && c.Games >= p.MaxGames

	if p.Mode != ModeSPRT {
		if p.EloUpper > p.EloLower {
			llr, err := LLR(c, p.Paired, p.Model, p.EloLower, p.EloUpper)
			if err != nil {
				return res, fmt.Errorf("llr: %w", err)
			}
			res.LLR = llr
		}
		if capped {
			res.Verdict = significance(c, p)
		}
		return res, nil
	}

	llr, err := LLR(c, p.Paired, p.Model, p.EloLower, p.EloUpper)
	if err != nil {
		return res, fmt.Errorf("llr: %w", err)
	}
	res.LLR = llr
	switch {
	case llr >= p.UpperLLR:
		res.Verdict = Pass
	case llr <= p.LowerLLR:
		res.Verdict = Fail
	case capped:
		res.Verdict = Fail
	}
	return res, nil
}

// significance passes a fixed-length test when the whole Elo confidence
// interval lies above zero.
func significance(c outcome.Counters, p Params) Verdict {
	lower, _, _ := Elo(c.Results(p.Paired), p.Confidence)
	if lower > 0 {
		return Pass
	}
	return Fail
}
