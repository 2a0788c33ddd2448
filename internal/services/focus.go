package services

import "math"

const (
	interruptPenalty = 8.0
	pausePenalty     = 40.0
	zenModeBonus     = 5.0
)

// focusScore rates a finished session from 0 to 100. Each interruption
// costs a fixed amount and the share of time spent paused costs up to
// pausePenalty; zen mode sessions get a small bonus.
func focusScore(activeSeconds, pausedSeconds, interrupts int, zenMode bool) float64 {
	score := 100.0 - interruptPenalty*float64(interrupts)

	if total := activeSeconds + pausedSeconds; total > 0 {
		score -= pausePenalty * float64(pausedSeconds) / float64(total)
	}
	if zenMode {
		score += zenModeBonus
	}

	score = math.Max(0, math.Min(100, score))
	return math.Round(score*100) / 100
}
