// Package api exposes the REST surface of the quiz service.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"cyberquiz/internal/domain"
	"cyberquiz/internal/errors"
	"cyberquiz/internal/event"
	"cyberquiz/internal/leaderboard"
	"cyberquiz/internal/session"
)

type Config struct {
	Engine      *gin.Engine
	Session     *session.Service
	Leaderboard *leaderboard.Service
	EventBus    *event.Bus

	// Redis and PubsubPrefix enable the leaderboard fanout; both may be
	// left zero when no Redis is configured.
	Redis        Redis
	PubsubPrefix string
}

type API struct {
	session *session.Service
	board   *leaderboard.Service

	redis  Redis
	prefix string
}

func New(c Config) *API {
	a := &API{
		session: c.Session,
		board:   c.Leaderboard,
		redis:   c.Redis,
		prefix:  c.PubsubPrefix,
	}

	e := c.Engine
	e.POST("/session", a.createSession)
	e.GET("/session/:id", a.getSession)
	e.GET("/session/:id/question", a.getQuestion)
	e.POST("/session/:id/answer", a.submitAnswer)
	e.GET("/leaderboard", a.getLeaderboard)

	if a.redis != nil {
		c.EventBus.Subscribe(domain.EventNameLeaderboardUpdated, func(ctx context.Context, e event.Event) error {
			return a.publishLeaderboardUpdated(ctx, e.(domain.EventLeaderboardUpdated))
		})
	}

	return a
}

type createSessionRequest struct {
	Username string `json:"username"`
}

func (a *API) createSession(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		a.renderError(c, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("invalid request body"),
			errors.WithCause(err)))
		return
	}

	ss, err := a.session.Create(c.Request.Context(), req.Username)
	if err != nil {
		a.renderError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"sessionId": ss.SessionID,
		"session":   ss,
	})
}

func (a *API) getSession(c *gin.Context) {
	ss, err := a.session.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		a.renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, ss)
}

func (a *API) getQuestion(c *gin.Context) {
	q, err := a.session.Question(c.Request.Context(), c.Param("id"))
	if err != nil {
		a.renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":      q.ID,
		"text":    q.Text,
		"options": q.Options,
	})
}

type submitAnswerRequest struct {
	QuestionIndex int `json:"questionIndex"`
	// AnswerIndex is a position in the shuffled option order the client saw.
	AnswerIndex int `json:"answerIndex"`
}

type submitAnswerResponse struct {
	IsCorrect  bool            `json:"isCorrect"`
	Timeout    bool            `json:"timeout,omitempty"`
	Completed  bool            `json:"completed,omitempty"`
	Eliminated bool            `json:"eliminated,omitempty"`
	Grade      string          `json:"grade,omitempty"`
	Session    *domain.Session `json:"session"`
}

func (a *API) submitAnswer(c *gin.Context) {
	var req submitAnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		a.renderError(c, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("invalid request body"),
			errors.WithCause(err)))
		return
	}

	res, err := a.session.SubmitAnswer(c.Request.Context(), c.Param("id"), req.QuestionIndex, req.AnswerIndex)
	if err != nil {
		a.renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, submitAnswerResponse{
		IsCorrect:  res.Correct,
		Timeout:    res.Timeout,
		Completed:  res.Completed,
		Eliminated: res.Eliminated,
		Grade:      res.Grade,
		Session:    &res.Session,
	})
}

func (a *API) getLeaderboard(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			a.renderError(c, errors.New(errors.CodeInvalidArgument,
				errors.WithMessagef("limit must be a non-negative integer")))
			return
		}
		limit = n
	}

	entries, err := a.board.List(c.Request.Context(), limit)
	if err != nil {
		a.renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, entries)
}

func (a *API) renderError(c *gin.Context, err error) {
	e := errors.Convert(err)

	if e.HTTPStatusCode() >= http.StatusInternalServerError {
		slog.ErrorContext(c.Request.Context(), "api: request failed",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"error", err,
		)
		// Backend details stay out of the response.
		c.JSON(e.HTTPStatusCode(), gin.H{"error": "internal server error"})
		return
	}

	c.JSON(e.HTTPStatusCode(), gin.H{"error": e.Message})
}
