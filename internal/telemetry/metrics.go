package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SessionsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cyberquiz_sessions_created_total",
		Help: "Number of quiz sessions created.",
	})

	// AnswersEvaluated counts answer submissions by outcome:
	// correct, incorrect or timeout.
	AnswersEvaluated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cyberquiz_answers_total",
		Help: "Number of answer submissions evaluated.",
	}, []string{"outcome"})

	RunsCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cyberquiz_runs_completed_total",
		Help: "Number of runs that answered every question.",
	})
)
