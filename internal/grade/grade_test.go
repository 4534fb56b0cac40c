package grade_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"cyberquiz/internal/grade"
)

func TestCalculate(t *testing.T) {
	tests := map[string]struct {
		score         int
		timeRemaining int
		want          string
	}{
		"perfect run with full clock": {
			score:         4000,
			timeRemaining: 2700,
			want:          "S+ ELITE HACKER",
		},
		"zero score and no time": {
			score:         0,
			timeRemaining: 0,
			want:          "D WANNABE",
		},
		// 70% score, 50% time: composite 0.7*70 + 0.3*50 = 64.
		"seventy percent score at half time": {
			score:         2800,
			timeRemaining: 1350,
			want:          "A ADVANCED HACKER",
		},
		// 100% score, no time left: composite exactly 70.
		"perfect score at the buzzer": {
			score:         4000,
			timeRemaining: 0,
			want:          "A+ EXPERT HACKER",
		},
		// 50% score, no time: composite exactly 35.
		"half score no time": {
			score:         2000,
			timeRemaining: 0,
			want:          "C+ NOVICE HACKER",
		},
		// Composite 0.7*25 + 0.3*10 = 20.5.
		"just above script kiddie floor": {
			score:         1000,
			timeRemaining: 270,
			want:          "C SCRIPT KIDDIE",
		},
		// 80% score, 360/2700 time: composite 0.7*80 + 0.3*(40/3) is
		// exactly 60 even though the time fraction does not terminate.
		"non-terminating fraction on a boundary": {
			score:         3200,
			timeRemaining: 360,
			want:          "A ADVANCED HACKER",
		},
		// 100% score, 2/3 time: composite exactly 90.
		"exactly on the top boundary": {
			score:         4000,
			timeRemaining: 1800,
			want:          "S+ ELITE HACKER",
		},
		// One second less: composite 89.988..., just under the boundary.
		"one second under the top boundary": {
			score:         4000,
			timeRemaining: 1799,
			want:          "S MASTER HACKER",
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			require.Equal(t, tt.want, grade.Calculate(tt.score, tt.timeRemaining))
		})
	}
}

func TestCalculate_Deterministic(t *testing.T) {
	for score := 0; score <= 4000; score += 250 {
		for rem := 0; rem <= 2700; rem += 300 {
			require.Equal(t, grade.Calculate(score, rem), grade.Calculate(score, rem))
		}
	}
}
