package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cyberquiz/internal/api"
	"cyberquiz/internal/bank"
	"cyberquiz/internal/domain"
	"cyberquiz/internal/event"
	"cyberquiz/internal/leaderboard"
	"cyberquiz/internal/session"
	"cyberquiz/internal/shuffle"
	"cyberquiz/internal/store/memory"
)

func TestAPI_CreateSession(t *testing.T) {
	tests := map[string]struct {
		body       string
		wantStatus int
	}{
		"created": {
			body:       `{"username": "Neo"}`,
			wantStatus: http.StatusCreated,
		},
		"invalid body": {
			body:       `{"username": 1}`,
			wantStatus: http.StatusBadRequest,
		},
		"empty username": {
			body:       `{"username": ""}`,
			wantStatus: http.StatusBadRequest,
		},
		"reserved username": {
			body:       `{"username": "admin"}`,
			wantStatus: http.StatusBadRequest,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			ts := makeServer(t)

			w := ts.do(http.MethodPost, "/session", tt.body)
			require.Equal(t, tt.wantStatus, w.Code, w.Body.String())

			if tt.wantStatus != http.StatusCreated {
				return
			}

			var resp struct {
				SessionID string         `json:"sessionId"`
				Session   domain.Session `json:"session"`
			}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.NotEmpty(t, resp.SessionID)
			assert.Equal(t, resp.SessionID, resp.Session.SessionID)
			assert.Equal(t, domain.InitialScore, resp.Session.Score)
			assert.True(t, resp.Session.Active)
		})
	}
}

func TestAPI_CreateSession_DuplicateUsername(t *testing.T) {
	ts := makeServer(t)

	w := ts.do(http.MethodPost, "/session", `{"username": "Neo"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	w = ts.do(http.MethodPost, "/session", `{"username": "neo"}`)
	require.Equal(t, http.StatusConflict, w.Code)
}

func TestAPI_GetSession(t *testing.T) {
	ts := makeServer(t)
	id := ts.createSession(t, "Neo")

	w := ts.do(http.MethodGet, "/session/"+id, "")
	require.Equal(t, http.StatusOK, w.Code)

	var ss domain.Session
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ss))
	assert.Equal(t, id, ss.SessionID)
	assert.Equal(t, "Neo", ss.Username)

	w = ts.do(http.MethodGet, "/session/missing", "")
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestAPI_GetQuestion(t *testing.T) {
	ts := makeServer(t)
	id := ts.createSession(t, "Neo")

	w := ts.do(http.MethodGet, "/session/"+id+"/question", "")
	require.Equal(t, http.StatusOK, w.Code)

	var q struct {
		ID      int      `json:"id"`
		Text    string   `json:"text"`
		Options []string `json:"options"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &q))
	assert.Equal(t, 0, q.ID)
	assert.NotEmpty(t, q.Text)
	assert.Len(t, q.Options, 4)

	// The answer key never appears in the payload.
	assert.NotContains(t, w.Body.String(), "correct")
}

func TestAPI_SubmitAnswer(t *testing.T) {
	ts := makeServer(t)
	id := ts.createSession(t, "Neo")

	body := fmt.Sprintf(`{"questionIndex": 0, "answerIndex": %d}`, ts.correctIndex(t, id, 0))
	w := ts.do(http.MethodPost, "/session/"+id+"/answer", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		IsCorrect bool           `json:"isCorrect"`
		Session   domain.Session `json:"session"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.IsCorrect)
	assert.Equal(t, domain.InitialScore+domain.ScoreStep, resp.Session.Score)
	assert.Equal(t, 1, resp.Session.CurrentQuestion)

	// Replaying the answered question is rejected.
	w = ts.do(http.MethodPost, "/session/"+id+"/answer", body)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(http.MethodPost, "/session/missing/answer", `{"questionIndex": 0, "answerIndex": 0}`)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestAPI_FullRunReachesLeaderboard(t *testing.T) {
	ts := makeServer(t)
	id := ts.createSession(t, "Neo")

	for i := 0; i < domain.QuestionCount; i++ {
		body := fmt.Sprintf(`{"questionIndex": %d, "answerIndex": %d}`, i, ts.correctIndex(t, id, i))
		w := ts.do(http.MethodPost, "/session/"+id+"/answer", body)
		require.Equal(t, http.StatusOK, w.Code, "question %d: %s", i, w.Body.String())
	}

	w := ts.do(http.MethodGet, "/leaderboard", "")
	require.Equal(t, http.StatusOK, w.Code)

	var entries []domain.LeaderboardEntry
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "Neo", entries[0].Username)
	assert.Equal(t, domain.MaxScore, entries[0].Score)
	assert.Equal(t, "S+ ELITE HACKER", entries[0].Grade)

	// Further answers bounce off the completed run.
	w = ts.do(http.MethodPost, "/session/"+id+"/answer", `{"questionIndex": 0, "answerIndex": 0}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAPI_Leaderboard_Limit(t *testing.T) {
	ts := makeServer(t)

	ctx := context.Background()
	require.NoError(t, ts.board.Submit(ctx, domain.LeaderboardEntry{Username: "Neo", Score: 4000, TimeUsed: 900}))
	require.NoError(t, ts.board.Submit(ctx, domain.LeaderboardEntry{Username: "Trinity", Score: 3500, TimeUsed: 1200}))

	w := ts.do(http.MethodGet, "/leaderboard?limit=1", "")
	require.Equal(t, http.StatusOK, w.Code)

	var entries []domain.LeaderboardEntry
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "Neo", entries[0].Username)

	w = ts.do(http.MethodGet, "/leaderboard?limit=-1", "")
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(http.MethodGet, "/leaderboard?limit=abc", "")
	require.Equal(t, http.StatusBadRequest, w.Code)
}

type testServer struct {
	engine *gin.Engine
	bank   *bank.StaticBank
	board  *leaderboard.Service
}

func makeServer(t *testing.T) *testServer {
	t.Helper()

	gin.SetMode(gin.TestMode)

	b, err := bank.NewStaticBank()
	require.NoError(t, err)

	eb := event.NewBus()
	t.Cleanup(eb.Stop)

	board := leaderboard.NewService(leaderboard.Config{
		Store:    memory.NewLeaderboard(),
		EventBus: eb,
	})

	engine := gin.New()
	api.New(api.Config{
		Engine: engine,
		Session: session.NewService(session.Config{
			Store:       memory.NewStore(),
			Bank:        b,
			Leaderboard: board,
			EventBus:    eb,
		}),
		Leaderboard: board,
		EventBus:    eb,
	})

	return &testServer{engine: engine, bank: b, board: board}
}

func (ts *testServer) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader([]byte(body)))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	w := httptest.NewRecorder()
	ts.engine.ServeHTTP(w, req)
	return w
}

func (ts *testServer) createSession(t *testing.T, username string) string {
	t.Helper()

	w := ts.do(http.MethodPost, "/session", fmt.Sprintf(`{"username": %q}`, username))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp struct {
		SessionID string `json:"sessionId"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.SessionID
}

func (ts *testServer) correctIndex(t *testing.T, sessionID string, questionIndex int) int {
	t.Helper()

	q, err := ts.bank.Question(context.Background(), questionIndex)
	require.NoError(t, err)

	perm := shuffle.New(shuffle.Seed(sessionID, questionIndex), len(q.Options))
	return perm.Inverse()[q.Correct]
}
