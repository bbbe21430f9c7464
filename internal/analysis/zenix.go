// Package analysis implements the ZENIX signal kernel: pure functions over
// a tick window producing a mean-reversion parity signal. The kernel holds
// no state and performs no I/O.
package analysis

import (
	"fmt"
	"strings"

	"zeenix-trading-bot/internal/ticks"
)

// Bonus points contributed by the complementary analyses
const (
	StreakBonus   = 12.0
	TrendBonus    = 8.0
	VelocityBonus = 10.0

	MaxConfidence = 95.0

	streakMinRun      = 5
	trendShortWindow  = 10
	trendLongWindow   = 20
	trendMinDelta     = 0.10
	velocityMinDelta  = 0.05
)

// ModeParams are the per-mode kernel thresholds
type ModeParams struct {
	Mode          string
	WindowSize    int
	ImbalanceMin  float64 // minimum majority share, exclusive
	ConfidenceMin float64 // minimum final confidence, 0..1
}

var (
	// VelozParams trades fast on a short window
	VelozParams = ModeParams{Mode: "veloz", WindowSize: 10, ImbalanceMin: 0.50, ConfidenceMin: 0.50}
	// ModeradoParams balances window size and threshold
	ModeradoParams = ModeParams{Mode: "moderado", WindowSize: 20, ImbalanceMin: 0.60, ConfidenceMin: 0.60}
	// PrecisoParams only fires on strong imbalances over a long window
	PrecisoParams = ModeParams{Mode: "preciso", WindowSize: 50, ImbalanceMin: 0.70, ConfidenceMin: 0.70}
)

// ParamsForMode maps a mode name to its kernel parameters
func ParamsForMode(mode string) (ModeParams, bool) {
	switch mode {
	case "veloz":
		return VelozParams, true
	case "moderado":
		return ModeradoParams, true
	case "preciso":
		return PrecisoParams, true
	}
	return ModeParams{}, false
}

// Detail is the audit snapshot stored with the trade's analysis_data
type Detail struct {
	Mode           string  `json:"mode"`
	WindowSize     int     `json:"window_size"`
	ParCount       int     `json:"par_count"`
	ImparCount     int     `json:"impar_count"`
	ParShare       float64 `json:"par_share"`
	ImparShare     float64 `json:"impar_share"`
	BaseConfidence float64 `json:"base_confidence"`
	StreakLength   int     `json:"streak_length"`
	StreakBonus    float64 `json:"streak_bonus"`
	TrendBonus     float64 `json:"trend_bonus"`
	VelocityBonus  float64 `json:"velocity_bonus"`
	LastDigits     []int   `json:"last_digits"`
}

// Signal is the kernel output: trade the minority parity
type Signal struct {
	Direction  ticks.Parity
	Confidence float64 // final confidence, 0..100
	Rationale  string
	Detail     Detail
}

// Evaluate runs the full ZENIX analysis over the supplied ticks. The last
// WindowSize ticks form the base window; the complementary analyses may
// look at the whole slice. Returns nil when no signal clears the
// thresholds.
func Evaluate(slice []ticks.Tick, params ModeParams) *Signal {
	if len(slice) < params.WindowSize {
		return nil
	}

	window := slice[len(slice)-params.WindowSize:]
	par := countPar(window)
	impar := len(window) - par

	pShare := float64(par) / float64(len(window))
	qShare := 1 - pShare

	majority := pShare
	direction := ticks.ParityImpar // PAR majority -> trade the IMPAR minority
	if qShare > pShare {
		majority = qShare
		direction = ticks.ParityPar
	}

	// Exactly at the threshold (or balanced) is not a signal
	if majority <= params.ImbalanceMin || pShare == qShare {
		return nil
	}

	base := majority * 100

	detail := Detail{
		Mode:           params.Mode,
		WindowSize:     params.WindowSize,
		ParCount:       par,
		ImparCount:     impar,
		ParShare:       pShare,
		ImparShare:     qShare,
		BaseConfidence: base,
		LastDigits:     lastDigits(window, 10),
	}

	var reasons []string
	confidence := base

	if n := streakLength(slice); n >= streakMinRun {
		confidence += StreakBonus
		detail.StreakLength = n
		detail.StreakBonus = StreakBonus
		reasons = append(reasons, fmt.Sprintf("streak=%d(+%.0f)", n, StreakBonus))
	}

	if d, ok := microTrendDelta(slice); ok && d > trendMinDelta {
		confidence += TrendBonus
		detail.TrendBonus = TrendBonus
		reasons = append(reasons, fmt.Sprintf("trend=%.2f(+%.0f)", d, TrendBonus))
	}

	if d, ok := velocityDelta(window); ok && d > velocityMinDelta {
		confidence += VelocityBonus
		detail.VelocityBonus = VelocityBonus
		reasons = append(reasons, fmt.Sprintf("velocity=%.3f(+%.0f)", d, VelocityBonus))
	}

	if confidence > MaxConfidence {
		confidence = MaxConfidence
	}
	if confidence < params.ConfidenceMin*100 {
		return nil
	}

	rationale := fmt.Sprintf("desequilibrio %.0f%% PAR/%.0f%% IMPAR", pShare*100, qShare*100)
	if len(reasons) > 0 {
		rationale += " | " + strings.Join(reasons, " ")
	}

	return &Signal{
		Direction:  direction,
		Confidence: confidence,
		Rationale:  rationale,
		Detail:     detail,
	}
}

// Imbalance returns the PAR share over the last n ticks of the slice
func Imbalance(slice []ticks.Tick, n int) (float64, bool) {
	if n <= 0 || len(slice) < n {
		return 0, false
	}
	tail := slice[len(slice)-n:]
	return float64(countPar(tail)) / float64(n), true
}

// streakLength is the run length of the final tick's parity, counted
// backwards from the end of the slice
func streakLength(slice []ticks.Tick) int {
	if len(slice) == 0 {
		return 0
	}
	last := slice[len(slice)-1].Parity
	n := 0
	for i := len(slice) - 1; i >= 0 && slice[i].Parity == last; i-- {
		n++
	}
	return n
}

// microTrendDelta compares the short and long imbalances
func microTrendDelta(slice []ticks.Tick) (float64, bool) {
	short, ok := Imbalance(slice, trendShortWindow)
	if !ok {
		return 0, false
	}
	long, ok := Imbalance(slice, trendLongWindow)
	if !ok {
		return 0, false
	}
	return abs(short - long), true
}

// velocityDelta measures how much the newest tick moved the window imbalance
func velocityDelta(window []ticks.Tick) (float64, bool) {
	if len(window) < 2 {
		return 0, false
	}
	cur := float64(countPar(window)) / float64(len(window))
	prev := float64(countPar(window[:len(window)-1])) / float64(len(window)-1)
	return abs(cur - prev), true
}

func countPar(slice []ticks.Tick) int {
	n := 0
	for _, t := range slice {
		if t.Parity == ticks.ParityPar {
			n++
		}
	}
	return n
}

func lastDigits(slice []ticks.Tick, n int) []int {
	if n > len(slice) {
		n = len(slice)
	}
	out := make([]int, 0, n)
	for _, t := range slice[len(slice)-n:] {
		out = append(out, t.Digit)
	}
	return out
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
