package routes

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/playloop/arena/handlers"
	"github.com/playloop/arena/middleware"
	"github.com/playloop/arena/models"
	"github.com/playloop/arena/realtime"
	"github.com/playloop/arena/repositories"
	"github.com/playloop/arena/services"
	"github.com/playloop/arena/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, roundDuration time.Duration) *httptest.Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	svc := services.NewTournamentService(
		services.NewRegistry(),
		repositories.NewMemorySnapshotRepository(),
		storage.NoopArchiver{},
		logger,
	)
	assembler := services.NewReconnectAssembler(svc)
	tokens := middleware.NewTokenManager("test-secret", time.Hour)
	hub := realtime.NewHub(logger)
	gateway := realtime.NewGateway(svc, assembler, hub, tokens, logger, roundDuration)
	t.Cleanup(gateway.Shutdown)

	router := chi.NewRouter()
	SetupRoutes(router, logger, []string{"*"}, tokens,
		handlers.NewTournamentHandler(svc, assembler, gateway, tokens),
		handlers.NewHealthHandler(nil),
		handlers.NewWebSocketHandler(hub, gateway, logger))

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return server
}

func doJSON(t *testing.T, method, url, token string, body any, out any) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func TestHealthEndpoint(t *testing.T) {
	server := newTestServer(t, 0)

	var body struct {
		Status string `json:"status"`
	}
	resp := doJSON(t, http.MethodGet, server.URL+"/healthz", "", nil, &body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body.Status)
}

func TestTournamentLifecycleOverHTTP(t *testing.T) {
	server := newTestServer(t, 0)
	base := server.URL + "/tournaments"

	var created struct {
		Tournament *models.Tournament `json:"tournament"`
	}
	resp := doJSON(t, http.MethodPost, base, "", map[string]any{
		"game_sequence": []string{"jetpack", "runner"},
		"max_rounds":    2,
	}, &created)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.NotNil(t, created.Tournament)
	id := created.Tournament.ID
	assert.Equal(t, models.StatusWaiting, created.Tournament.Status)

	var listed struct {
		Tournaments []*models.Tournament `json:"tournaments"`
	}
	resp = doJSON(t, http.MethodGet, base, "", nil, &listed)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, listed.Tournaments, 1)

	var joined struct {
		Player      *models.Player `json:"player"`
		ResumeToken string         `json:"resume_token"`
	}
	resp = doJSON(t, http.MethodPost, base+"/"+id+"/join", "", map[string]any{
		"user_id": "alice", "display_name": "Alice",
	}, &joined)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.NotEmpty(t, joined.ResumeToken)
	aliceToken := joined.ResumeToken

	resp = doJSON(t, http.MethodPost, base+"/"+id+"/join", "", map[string]any{
		"user_id": "bob", "display_name": "Bob",
	}, &joined)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	bobToken := joined.ResumeToken

	var started struct {
		Tournament *models.Tournament `json:"tournament"`
	}
	resp = doJSON(t, http.MethodPost, base+"/"+id+"/start", "", nil, &started)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, models.StatusRoundActive, started.Tournament.Status)

	var submitted struct {
		Snapshot *services.LeaderboardSnapshot `json:"leaderboard_snapshot"`
	}
	resp = doJSON(t, http.MethodPost, base+"/"+id+"/rounds/scores", aliceToken, map[string]any{
		"round_index": 0, "score": 100,
	}, &submitted)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.NotNil(t, submitted.Snapshot)
	assert.False(t, submitted.Snapshot.AllSubmitted)

	resp = doJSON(t, http.MethodPost, base+"/"+id+"/rounds/scores", bobToken, map[string]any{
		"round_index": 0, "score": 80,
	}, &submitted)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.True(t, submitted.Snapshot.AllSubmitted)

	// All scores in means the round auto-advanced.
	var fetched struct {
		Tournament *models.Tournament `json:"tournament"`
	}
	resp = doJSON(t, http.MethodGet, base+"/"+id, "", nil, &fetched)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, fetched.Tournament.CurrentRoundIndex)
	assert.Equal(t, models.StatusRoundActive, fetched.Tournament.Status)

	var board struct {
		Leaderboard []models.LeaderboardEntry `json:"leaderboard"`
	}
	resp = doJSON(t, http.MethodGet, base+"/"+id+"/leaderboard", "", nil, &board)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, board.Leaderboard, 2)
	assert.Equal(t, "alice", board.Leaderboard[0].UserID)
	assert.Equal(t, 1, board.Leaderboard[0].Rank)

	var ghost struct {
		GhostData *models.GhostData `json:"ghost_data"`
	}
	resp = doJSON(t, http.MethodGet, base+"/"+id+"/ghost", "", nil, &ghost)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotNil(t, ghost.GhostData)
	assert.Len(t, ghost.GhostData.Traces, 2)

	// Manually advancing the last round completes the tournament.
	resp = doJSON(t, http.MethodPost, base+"/"+id+"/advance", "", map[string]any{
		"round_index": 1,
	}, &fetched)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, models.StatusCompleted, fetched.Tournament.Status)
}

func TestScoreSubmissionAuth(t *testing.T) {
	server := newTestServer(t, 0)
	base := server.URL + "/tournaments"

	var created struct {
		Tournament *models.Tournament `json:"tournament"`
	}
	doJSON(t, http.MethodPost, base, "", map[string]any{
		"game_sequence": []string{"jetpack"}, "max_rounds": 1,
	}, &created)
	id := created.Tournament.ID

	var joined struct {
		ResumeToken string `json:"resume_token"`
	}
	doJSON(t, http.MethodPost, base+"/"+id+"/join", "", map[string]any{
		"user_id": "alice", "display_name": "Alice",
	}, &joined)
	doJSON(t, http.MethodPost, base+"/"+id+"/start", "", nil, nil)

	t.Run("no token", func(t *testing.T) {
		resp := doJSON(t, http.MethodPost, base+"/"+id+"/rounds/scores", "", map[string]any{
			"round_index": 0, "score": 10,
		}, nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("token scoped to another tournament", func(t *testing.T) {
		var other struct {
			Tournament *models.Tournament `json:"tournament"`
		}
		doJSON(t, http.MethodPost, base, "", map[string]any{
			"game_sequence": []string{"jetpack"}, "max_rounds": 1,
		}, &other)

		var body struct {
			Error struct {
				Code string `json:"code"`
			} `json:"error"`
		}
		resp := doJSON(t, http.MethodPost, base+"/"+other.Tournament.ID+"/rounds/scores", joined.ResumeToken, map[string]any{
			"round_index": 0, "score": 10,
		}, &body)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
		assert.Equal(t, "FORBIDDEN", body.Error.Code)
	})

	t.Run("valid token", func(t *testing.T) {
		resp := doJSON(t, http.MethodPost, base+"/"+id+"/rounds/scores", joined.ResumeToken, map[string]any{
			"round_index": 0, "score": 10,
		}, nil)
		assert.Equal(t, http.StatusCreated, resp.StatusCode)
	})
}

func TestErrorMapping(t *testing.T) {
	server := newTestServer(t, 0)
	base := server.URL + "/tournaments"

	var body struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}

	resp := doJSON(t, http.MethodGet, base+"/missing", "", nil, &body)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "NOT_FOUND", body.Error.Code)

	resp = doJSON(t, http.MethodPost, base, "", map[string]any{
		"game_sequence": []string{}, "max_rounds": 0,
	}, &body)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "VALIDATION", body.Error.Code)

	var created struct {
		Tournament *models.Tournament `json:"tournament"`
	}
	doJSON(t, http.MethodPost, base, "", map[string]any{
		"game_sequence": []string{"jetpack"}, "max_rounds": 1,
	}, &created)
	resp = doJSON(t, http.MethodPost, base+"/"+created.Tournament.ID+"/start", "", nil, &body)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "INVALID_STATE", body.Error.Code)
}

// awaitWsEvent reads frames until one of the wanted type arrives.
func awaitWsEvent(t *testing.T, conn *websocket.Conn, eventType string) json.RawMessage {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	require.NoError(t, conn.SetReadDeadline(deadline))
	for time.Now().Before(deadline) {
		_, raw, err := conn.ReadMessage()
		require.NoError(t, err)
		var env realtime.Envelope
		require.NoError(t, json.Unmarshal(raw, &env))
		if env.Type == eventType {
			return env.Payload
		}
	}
	t.Fatalf("no %s event before deadline", eventType)
	return nil
}

func dialWs(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// A round started over HTTP must still time out via the gateway's round
// timer, exactly like a round started over the websocket path.
func TestStartOverHTTPArmsRoundTimer(t *testing.T) {
	server := newTestServer(t, 40*time.Millisecond)
	base := server.URL + "/tournaments"

	var created struct {
		Tournament *models.Tournament `json:"tournament"`
	}
	doJSON(t, http.MethodPost, base, "", map[string]any{
		"game_sequence": []string{"jetpack"}, "max_rounds": 1,
	}, &created)
	id := created.Tournament.ID
	doJSON(t, http.MethodPost, base+"/"+id+"/join", "", map[string]any{
		"user_id": "alice", "display_name": "Alice",
	}, nil)

	resp := doJSON(t, http.MethodPost, base+"/"+id+"/start", "", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.Eventually(t, func() bool {
		var fetched struct {
			Tournament *models.Tournament `json:"tournament"`
		}
		doJSON(t, http.MethodGet, base+"/"+id, "", nil, &fetched)
		return fetched.Tournament != nil && fetched.Tournament.Status == models.StatusCompleted
	}, 2*time.Second, 10*time.Millisecond)
}

// HTTP start and score submissions must reach connected websocket clients.
func TestHTTPActionsBroadcastToRoom(t *testing.T) {
	server := newTestServer(t, 0)
	base := server.URL + "/tournaments"

	var created struct {
		Tournament *models.Tournament `json:"tournament"`
	}
	doJSON(t, http.MethodPost, base, "", map[string]any{
		"game_sequence": []string{"jetpack"}, "max_rounds": 1,
	}, &created)
	id := created.Tournament.ID

	var joined struct {
		ResumeToken string `json:"resume_token"`
	}
	doJSON(t, http.MethodPost, base+"/"+id+"/join", "", map[string]any{
		"user_id": "alice", "display_name": "Alice",
	}, &joined)
	doJSON(t, http.MethodPost, base+"/"+id+"/join", "", map[string]any{
		"user_id": "bob", "display_name": "Bob",
	}, nil)

	// Alice also listens on the websocket; re-joining before start is
	// idempotent and places the connection in the room.
	conn := dialWs(t, server)
	join, err := json.Marshal(map[string]any{
		"type": "join_tournament",
		"payload": map[string]any{
			"tournament_id": id, "user_id": "alice", "display_name": "Alice",
		},
	})
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, join))
	awaitWsEvent(t, conn, "session:token")

	resp := doJSON(t, http.MethodPost, base+"/"+id+"/start", "", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var started realtime.RoundStartedPayload
	require.NoError(t, json.Unmarshal(awaitWsEvent(t, conn, "round:started"), &started))
	assert.Equal(t, id, started.TournamentID)
	assert.Equal(t, "jetpack", started.Round.GameID)
	awaitWsEvent(t, conn, "tournament:updated") // the start's own update

	// A mid-round submission over HTTP still fans out the standings.
	resp = doJSON(t, http.MethodPost, base+"/"+id+"/rounds/scores", joined.ResumeToken, map[string]any{
		"round_index": 0, "score": 55,
	}, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var updated realtime.TournamentUpdatedPayload
	require.NoError(t, json.Unmarshal(awaitWsEvent(t, conn, "tournament:updated"), &updated))
	require.NotEmpty(t, updated.Leaderboard)
	assert.Equal(t, "alice", updated.Leaderboard[0].UserID)
	assert.Equal(t, float64(55), updated.Leaderboard[0].TotalScore)
}

func TestAdvanceBeforeStartIsConflict(t *testing.T) {
	server := newTestServer(t, 0)
	base := server.URL + "/tournaments"

	var created struct {
		Tournament *models.Tournament `json:"tournament"`
	}
	doJSON(t, http.MethodPost, base, "", map[string]any{
		"game_sequence": []string{"jetpack"}, "max_rounds": 1,
	}, &created)

	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	resp := doJSON(t, http.MethodPost, base+"/"+created.Tournament.ID+"/advance", "", map[string]any{
		"round_index": 0,
	}, &body)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "INVALID_STATE", body.Error.Code)
}
