package services

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"matchmaking-service/matchmaking"
	"matchmaking-service/matchmaking/matchmakingtest"
	"matchmaking-service/middleware"
	"matchmaking-service/models"
)

func fastConfig(timeout time.Duration) matchmaking.Config {
	cfg := matchmaking.DefaultConfig()
	cfg.PollInterval = 5 * time.Millisecond
	cfg.Timeout = timeout
	return cfg
}

func newMatchApp(t *testing.T, store *matchmakingtest.Store, cfg matchmaking.Config) *fiber.App {
	t.Helper()
	engine := matchmaking.NewEngine(store, store, cfg)
	svc := NewMatchmakingService(context.Background(), engine, 4, time.Second, zerolog.Nop())

	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(zerolog.Nop())})
	app.Use(middleware.UserContext())
	app.Post("/match", svc.FindMatch)
	app.Post("/match/stream", svc.StreamMatch)
	return app
}

func postJSON(t *testing.T, app *fiber.App, path, body string, headers ...string) (*http.Response, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out map[string]any
	if len(raw) > 0 && !strings.HasPrefix(resp.Header.Get("Content-Type"), "text/event-stream") {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp, out
}

func seededStore() *matchmakingtest.Store {
	store := matchmakingtest.NewStore()
	store.AddPlayer(models.Player{ID: "alice", Area: models.AreaNorth, Rating: 1500})
	store.AddTicket(models.Ticket{PlayerID: "bob", Area: models.AreaNorth, Rating: 1520, CreatedAt: time.Now()})
	return store
}

func TestFindMatchHandler_Matched(t *testing.T) {
	store := seededStore()
	app := newMatchApp(t, store, fastConfig(time.Second))

	resp, body := postJSON(t, app, "/match", `{"user_id":"alice"}`)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["matched"])
	assert.Equal(t, "self", body["matched_by"])
	assert.Equal(t, 9.0, body["threshold_used"])
	assert.Equal(t, 10.0, body["compat_score"])

	contests := store.Contests()
	require.Len(t, contests, 1)
	assert.Equal(t, contests[0].ID, body["match_id"])
}

func TestFindMatchHandler_UsesGatewayIdentity(t *testing.T) {
	app := newMatchApp(t, seededStore(), fastConfig(time.Second))

	resp, body := postJSON(t, app, "/match", "", "X-User-ID", "alice")
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["matched"])
}

func TestFindMatchHandler_MissingUser(t *testing.T) {
	store := seededStore()
	app := newMatchApp(t, store, fastConfig(time.Second))

	resp, body := postJSON(t, app, "/match", `{"user_id":"  "}`)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Missing user_id", body["error"])
	assert.Len(t, store.Tickets(), 1, "no ticket is created")
}

func TestFindMatchHandler_UnknownUser(t *testing.T) {
	app := newMatchApp(t, seededStore(), fastConfig(time.Second))

	resp, body := postJSON(t, app, "/match", `{"user_id":"ghost"}`)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "User not found", body["error"])
}

func TestFindMatchHandler_AlreadyActive(t *testing.T) {
	store := seededStore()
	store.AddContest(models.Contest{ID: "c-1", PlayerOneID: "alice", PlayerTwoID: "carol"})
	app := newMatchApp(t, store, fastConfig(time.Second))

	resp, body := postJSON(t, app, "/match", `{"user_id":"alice"}`)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "c-1", body["active_match_id"])
}

func TestFindMatchHandler_Timeout(t *testing.T) {
	store := matchmakingtest.NewStore()
	store.AddPlayer(models.Player{ID: "alice", Area: models.AreaNorth, Rating: 1500})
	app := newMatchApp(t, store, fastConfig(30*time.Millisecond))

	resp, body := postJSON(t, app, "/match", `{"user_id":"alice"}`)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, false, body["matched"])
	assert.Equal(t, "timeout", body["reason"])
	assert.GreaterOrEqual(t, body["attempts"], 1.0)

	tickets := store.TicketsFor("alice")
	require.Len(t, tickets, 1)
	assert.Equal(t, models.TicketClosed, tickets[0].Status)
}

func TestFindMatchHandler_EnqueueFailure(t *testing.T) {
	store := seededStore()
	store.Fail(matchmakingtest.OpUpsertQueued, errors.New("db down"), 1)
	app := newMatchApp(t, store, fastConfig(time.Second))

	resp, body := postJSON(t, app, "/match", `{"user_id":"alice"}`)
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "internal server error", body["error"])
}

// readStream collects the JSON payload of every data line.
func readStream(t *testing.T, r io.Reader) []map[string]any {
	t.Helper()
	var out []map[string]any
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := sc.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &m))
		out = append(out, m)
	}
	require.NoError(t, sc.Err())
	return out
}

func streamMatch(t *testing.T, app *fiber.App, body string) []map[string]any {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/match/stream", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	return readStream(t, resp.Body)
}

func TestStreamMatch_Matched(t *testing.T) {
	app := newMatchApp(t, seededStore(), fastConfig(time.Second))

	got := streamMatch(t, app, `{"user_id":"alice"}`)
	require.Len(t, got, 2)
	assert.Equal(t, "queued", got[0]["status"])
	assert.Equal(t, 1.0, got[0]["queue_size"])
	assert.Equal(t, "north", got[0]["area"])
	assert.Equal(t, "matched", got[1]["status"])
	assert.Equal(t, "self", got[1]["matched_by"])
	assert.NotEmpty(t, got[1]["match_id"])
}

func TestStreamMatch_SearchesUntilTimeout(t *testing.T) {
	store := matchmakingtest.NewStore()
	store.AddPlayer(models.Player{ID: "alice", Area: models.AreaNorth, Rating: 1500})
	app := newMatchApp(t, store, fastConfig(30*time.Millisecond))

	got := streamMatch(t, app, `{"user_id":"alice"}`)
	require.GreaterOrEqual(t, len(got), 3)
	assert.Equal(t, "queued", got[0]["status"])
	assert.Equal(t, "searching", got[1]["status"])
	assert.Equal(t, 9.0, got[1]["threshold"])
	assert.Equal(t, 0.0, got[1]["candidates"])

	last := got[len(got)-1]
	assert.Equal(t, "timeout", last["status"])
	assert.GreaterOrEqual(t, last["attempts"], 1.0)
}

func TestStreamMatch_UnknownUser(t *testing.T) {
	app := newMatchApp(t, seededStore(), fastConfig(time.Second))

	got := streamMatch(t, app, `{"user_id":"ghost"}`)
	require.Len(t, got, 1)
	assert.Equal(t, "not_found", got[0]["status"])
}

func TestStreamMatch_MissingUser(t *testing.T) {
	app := newMatchApp(t, seededStore(), fastConfig(time.Second))

	resp, body := postJSON(t, app, "/match/stream", `{}`)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Missing user_id", body["error"])
}

// dropAfter accepts n writes and then fails like a closed connection.
type dropAfter struct {
	n       int
	written []string
}

func (d *dropAfter) Write(p []byte) (int, error) {
	if len(d.written) >= d.n {
		return 0, io.ErrClosedPipe
	}
	d.written = append(d.written, string(p))
	return len(p), nil
}

func TestStreamMatch_ClientGoneSearchStillCloses(t *testing.T) {
	store := matchmakingtest.NewStore()
	store.AddPlayer(models.Player{ID: "alice", Area: models.AreaNorth, Rating: 1500})
	engine := matchmaking.NewEngine(store, store, fastConfig(40*time.Millisecond))
	svc := NewMatchmakingService(context.Background(), engine, 1, time.Second, zerolog.Nop())

	stream := svc.startSearch("alice", zerolog.Nop())
	conn := &dropAfter{n: 1}
	svc.pump(bufio.NewWriter(conn), stream, zerolog.Nop())

	require.Len(t, conn.written, 1)
	assert.True(t, strings.HasPrefix(conn.written[0], "data: "))
	assert.Contains(t, conn.written[0], `"status":"queued"`)

	select {
	case err := <-stream.done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("search did not finish after the client went away")
	}

	tickets := store.TicketsFor("alice")
	require.Len(t, tickets, 1)
	assert.Equal(t, models.TicketClosed, tickets[0].Status)
}
