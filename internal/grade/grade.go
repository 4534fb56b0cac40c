// Package grade maps a finished run to its letter grade.
package grade

import (
	"github.com/shopspring/decimal"

	"cyberquiz/internal/domain"
)

// The composite blends accuracy and speed 70/30:
//
//	composite = 70*score/MaxScore + 30*timeRemaining/QuizSeconds
//
// Tier checks are cross-multiplied over the common denominator
// MaxScore*QuizSeconds, so a composite landing exactly on a tier boundary is
// never rounded below it.
const weightedScale = int64(domain.MaxScore) * int64(domain.QuizSeconds)

var tiers = []struct {
	threshold int64
	label     string
}{
	{90, "S+ ELITE HACKER"},
	{80, "S MASTER HACKER"},
	{70, "A+ EXPERT HACKER"},
	{60, "A ADVANCED HACKER"},
	{50, "B+ SKILLED HACKER"},
	{40, "B COMPETENT HACKER"},
	{30, "C+ NOVICE HACKER"},
	{20, "C SCRIPT KIDDIE"},
}

const bottomTier = "D WANNABE"

// Calculate returns the grade for a completing session.
func Calculate(score, timeRemaining int) string {
	weighted := decimal.NewFromInt(70 * int64(score) * int64(domain.QuizSeconds)).
		Add(decimal.NewFromInt(30 * int64(timeRemaining) * int64(domain.MaxScore)))

	for _, t := range tiers {
		if weighted.GreaterThanOrEqual(decimal.NewFromInt(t.threshold * weightedScale)) {
			return t.label
		}
	}

	return bottomTier
}
