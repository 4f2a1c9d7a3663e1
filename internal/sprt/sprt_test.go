package sprt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leelachesszero/sprt-server/internal/outcome"
)

// pentaBatch builds the counters for a batch of pairs ordered [LL, LD, DD, DW, WW],
// treating every DD pair as two draws.
func pentaBatch(ll, ld, dd, dw, ww int) outcome.Counters {
	return outcome.Counters{
		Games:  2 * (ll + ld + dd + dw + ww),
		Wins:   2*ww + dw,
		Draws:  dw + ld + 2*dd,
		Losses: 2*ll + ld,
		LL:     ll, LD: ld, DD: dd, DW: dw, WW: ww,
	}
}

func sprtParams() Params {
	lower, upper := Bounds(0.05, 0.05)
	return Params{
		Mode:     ModeSPRT,
		Paired:   true,
		Model:    Logistic,
		EloLower: 0,
		EloUpper: 5,
		LowerLLR: lower,
		UpperLLR: upper,
	}
}

func TestBounds(t *testing.T) {
	lower, upper := Bounds(0.05, 0.05)
	assert.InDelta(t, -2.944439, lower, 1e-6)
	assert.InDelta(t, 2.944439, upper, 1e-6)

	lower, upper = Bounds(0.05, 0.10)
	assert.InDelta(t, -2.251292, lower, 1e-6)
	assert.InDelta(t, 2.890372, upper, 1e-6)
}

func TestEvaluateEmptyContinues(t *testing.T) {
	res, err := Evaluate(outcome.Counters{}, sprtParams())
	require.NoError(t, err)
	assert.Equal(t, Continue, res.Verdict)
	assert.Zero(t, res.LLR)
}

func TestEvaluateZeroVarianceContinues(t *testing.T) {
	// Every pair drawn: the score variance is zero.
	res, err := Evaluate(pentaBatch(0, 0, 50, 0, 0), sprtParams())
	require.NoError(t, err)
	assert.Equal(t, Continue, res.Verdict)
	assert.Zero(t, res.LLR)
}

func TestEvaluatePassesWithGain(t *testing.T) {
	// Roughly +10 Elo per batch of 200 pairs.
	batch := pentaBatch(2, 37, 114, 42, 5)
	require.NoError(t, batch.Validate(true))

	p := sprtParams()
	var total outcome.Counters
	var res Result
	var err error
	batches := 0
	for batches < 20 {
		total = total.Add(batch)
		batches++
		res, err = Evaluate(total, p)
		require.NoError(t, err)
		if res.Verdict != Continue {
			break
		}
		assert.Greater(t, res.LLR, 0.0)
	}
	assert.Equal(t, Pass, res.Verdict)
	assert.GreaterOrEqual(t, res.LLR, p.UpperLLR)
	assert.LessOrEqual(t, batches, 10)
}

func TestEvaluateFailsWithoutGain(t *testing.T) {
	batch := pentaBatch(2, 40, 116, 40, 2)
	p := sprtParams()

	first, err := Evaluate(batch, p)
	require.NoError(t, err)
	assert.Equal(t, Continue, first.Verdict)
	assert.Less(t, first.LLR, 0.0)

	total := batch
	res := first
	for i := 0; i < 40 && res.Verdict == Continue; i++ {
		total = total.Add(batch)
		res, err = Evaluate(total, p)
		require.NoError(t, err)
	}
	assert.Equal(t, Fail, res.Verdict)
}

func TestEvaluateNormalizedModel(t *testing.T) {
	p := sprtParams()
	p.Model = Normalized
	p.EloLower, p.EloUpper = 0.5, 2.5

	c := pentaBatch(39, 8843, 26675, 9240, 44)
	res, err := Evaluate(c, p)
	require.NoError(t, err)
	assert.InDelta(t, 2.941675, res.LLR, 1e-6)
	assert.Equal(t, Continue, res.Verdict)
}

func TestEvaluateSPRTCapFails(t *testing.T) {
	p := sprtParams()
	p.MaxGames = 400
	res, err := Evaluate(pentaBatch(2, 40, 116, 40, 2), p)
	require.NoError(t, err)
	assert.Equal(t, Fail, res.Verdict)
}

func TestEvaluateGamesMode(t *testing.T) {
	p := Params{Mode: ModeGames, MaxGames: 1000, Confidence: 0.95}

	strong := outcome.Counters{Games: 1000, Wins: 520, Draws: 300, Losses: 180}
	res, err := Evaluate(strong, p)
	require.NoError(t, err)
	assert.Equal(t, Pass, res.Verdict)

	even := outcome.Counters{Games: 1000, Wins: 350, Draws: 300, Losses: 350}
	res, err = Evaluate(even, p)
	require.NoError(t, err)
	assert.Equal(t, Fail, res.Verdict)

	partial := outcome.Counters{Games: 500, Wins: 260, Draws: 150, Losses: 90}
	res, err = Evaluate(partial, p)
	require.NoError(t, err)
	assert.Equal(t, Continue, res.Verdict)
}

func TestEloInterval(t *testing.T) {
	lower, elo, upper := Elo([]int{180, 300, 520}, 0.95)
	assert.Less(t, lower, elo)
	assert.Less(t, elo, upper)
	assert.InDelta(t, 123.0, elo, 1.0)
	assert.Greater(t, lower, 0.0)

	lower, elo, upper = Elo([]int{0, 1, 0}, 0.95)
	assert.Zero(t, lower)
	assert.Zero(t, elo)
	assert.Zero(t, upper)
}
