package services

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"matchmaking-service/matchmaking"
	"matchmaking-service/middleware"
	"matchmaking-service/models"
	"matchmaking-service/store"
)

type memPlayers struct {
	byID map[string]models.Player
}

func (m *memPlayers) Get(_ context.Context, id string) (models.Player, error) {
	p, ok := m.byID[id]
	if !ok {
		return models.Player{}, matchmaking.ErrPlayerNotFound
	}
	return p, nil
}

func (m *memPlayers) Create(_ context.Context, p models.Player) (models.Player, error) {
	for _, existing := range m.byID {
		if existing.ID == p.ID || existing.Username == p.Username || existing.Email == p.Email {
			return models.Player{}, store.ErrDuplicatePlayer
		}
	}
	m.byID[p.ID] = p
	return p, nil
}

func (m *memPlayers) Leaderboard(_ context.Context, area string, limit int) ([]models.Player, error) {
	var out []models.Player
	for _, p := range m.byID {
		if area == "" || p.Area == area {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Rating > out[j].Rating })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func newPlayerApp(players *memPlayers) *fiber.App {
	svc := NewPlayerService(players, 10)
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(zerolog.Nop())})
	app.Use(middleware.UserContext())
	app.Post("/players", svc.CreatePlayer)
	app.Get("/players/:id", svc.GetPlayer)
	app.Get("/leaderboard", svc.Leaderboard)
	return app
}

func getJSON(t *testing.T, app *fiber.App, path string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, path, nil), -1)
	require.NoError(t, err)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(raw, &out))
	return resp, out
}

func TestPlayerService_CreateWithDefaults(t *testing.T) {
	players := &memPlayers{byID: map[string]models.Player{}}
	app := newPlayerApp(players)

	resp, body := postJSON(t, app, "/players",
		`{"id":"p-1","username":"Ace_01","email":"Ace@Example.com","area":" North "}`)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	assert.Equal(t, "north", body["area"])
	assert.Equal(t, 1200.0, body["rating"])

	p := players.byID["p-1"]
	assert.Equal(t, "ace@example.com", p.Email)
	assert.Equal(t, models.DefaultPreferences(), p.Preferences)
}

func TestPlayerService_CreateKeepsDeclaredPreferences(t *testing.T) {
	players := &memPlayers{byID: map[string]models.Player{}}
	app := newPlayerApp(players)

	resp, _ := postJSON(t, app, "/players",
		`{"username":"grinder","email":"g@example.com","area":"west","preferences":{"playing_style":"aggressive","communication":false}}`,
		"X-User-ID", "gateway-user")
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	p, ok := players.byID["gateway-user"]
	require.True(t, ok, "id falls back to the gateway identity")
	assert.Equal(t, "aggressive", p.Preferences.PlayingStyle)
	assert.Equal(t, "medium", p.Preferences.Intensity)
	require.NotNil(t, p.Preferences.Communication)
	assert.False(t, *p.Preferences.Communication)
}

func TestPlayerService_CreateValidation(t *testing.T) {
	testCases := []struct {
		name string
		body string
		want int
	}{
		{name: "short username", body: `{"username":"ab","email":"a@b.co","area":"north"}`, want: fiber.StatusBadRequest},
		{name: "username with spaces", body: `{"username":"bad name","email":"a@b.co","area":"north"}`, want: fiber.StatusBadRequest},
		{name: "bad email", body: `{"username":"player","email":"nope","area":"north"}`, want: fiber.StatusBadRequest},
		{name: "unknown area", body: `{"username":"player","email":"a@b.co","area":"mars"}`, want: fiber.StatusBadRequest},
		{name: "bad intensity", body: `{"username":"player","email":"a@b.co","area":"north","preferences":{"intensity":"extreme"}}`, want: fiber.StatusBadRequest},
		{name: "duplicate username", body: `{"username":"taken","email":"new@b.co","area":"north"}`, want: fiber.StatusConflict},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			players := &memPlayers{byID: map[string]models.Player{
				"x": {ID: "x", Username: "taken", Email: "x@b.co"},
			}}
			resp, _ := postJSON(t, newPlayerApp(players), "/players", tc.body)
			assert.Equal(t, tc.want, resp.StatusCode)
			assert.Len(t, players.byID, 1)
		})
	}
}

func TestPlayerService_Get(t *testing.T) {
	players := &memPlayers{byID: map[string]models.Player{"p-1": {ID: "p-1", Username: "ace"}}}
	app := newPlayerApp(players)

	resp, body := getJSON(t, app, "/players/p-1")
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "ace", body["username"])

	resp, _ = getJSON(t, app, "/players/ghost")
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestPlayerService_Leaderboard(t *testing.T) {
	players := &memPlayers{byID: map[string]models.Player{
		"a": {ID: "a", Username: "a", Area: models.AreaNorth, Rating: 1300},
		"b": {ID: "b", Username: "b", Area: models.AreaNorth, Rating: 1700},
		"c": {ID: "c", Username: "c", Area: models.AreaSouth, Rating: 1900},
	}}
	app := newPlayerApp(players)

	resp, body := getJSON(t, app, "/leaderboard?area=North")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	board := body["leaderboard"].([]any)
	require.Len(t, board, 2)
	first := board[0].(map[string]any)
	assert.Equal(t, "b", first["id"])
	assert.Equal(t, 1.0, first["rank"])

	resp, body = getJSON(t, app, "/leaderboard?limit=1")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Len(t, body["leaderboard"].([]any), 1)

	resp, _ = getJSON(t, app, "/leaderboard?limit=500")
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	resp, _ = getJSON(t, app, "/leaderboard?area=mars")
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestNormalizeArea(t *testing.T) {
	assert.Equal(t, "north", NormalizeArea(" North "))
	assert.Equal(t, "central", NormalizeArea("CENTRAL"))
}
