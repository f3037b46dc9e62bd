package services

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"matchmaking-service/matchmaking"
	"matchmaking-service/middleware"
)

// Finder is the engine as seen by the HTTP layer.
type Finder interface {
	FindMatch(ctx context.Context, playerID string, obs matchmaking.Observer) (matchmaking.Outcome, error)
}

// MatchmakingService exposes the engine over HTTP, either as one blocking
// request or as a server-sent event stream.
type MatchmakingService struct {
	Engine       Finder
	StreamBuffer int
	Heartbeat    time.Duration

	// Searches run under base rather than the request so a dropped client
	// does not abandon its ticket mid-cycle. Cancelling base ends every
	// search on shutdown.
	base context.Context
	log  zerolog.Logger
}

func NewMatchmakingService(base context.Context, engine Finder, streamBuffer int, heartbeat time.Duration, log zerolog.Logger) *MatchmakingService {
	return &MatchmakingService{
		Engine:       engine,
		StreamBuffer: streamBuffer,
		Heartbeat:    heartbeat,
		base:         base,
		log:          log.With().Str("component", "matchmaking_service").Logger(),
	}
}

type matchRequest struct {
	UserID string `json:"user_id"`
}

// playerID takes user_id from the body, falling back to the gateway identity.
func (s *MatchmakingService) playerID(c *fiber.Ctx) (string, error) {
	var req matchRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return "", fiber.NewError(fiber.StatusBadRequest, "invalid JSON")
		}
	}
	id := strings.TrimSpace(req.UserID)
	if id == "" {
		id = middleware.UserID(c)
	}
	if id == "" {
		return "", fiber.NewError(fiber.StatusBadRequest, "Missing user_id")
	}
	return id, nil
}

// FindMatch blocks until the search for the caller ends.
func (s *MatchmakingService) FindMatch(c *fiber.Ctx) error {
	playerID, err := s.playerID(c)
	if err != nil {
		return err
	}

	out, err := s.Engine.FindMatch(s.base, playerID, matchmaking.Discard)
	if errors.Is(err, matchmaking.ErrInvalidPlayer) {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if err != nil {
		return err
	}

	switch out.Status {
	case matchmaking.StatusNotFound:
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "User not found"})
	case matchmaking.StatusAlreadyActive:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":           "Already in active match",
			"active_match_id": out.ContestID,
		})
	case matchmaking.StatusMatched:
		body := fiber.Map{
			"matched":      true,
			"match_id":     out.ContestID,
			"compat_score": out.Score,
			"wait_time":    out.WaitSeconds,
			"attempts":     out.Attempts,
			"matched_by":   out.Provenance,
		}
		if out.Provenance == matchmaking.MatchedBySelf {
			body["threshold_used"] = out.Threshold
		}
		return c.JSON(body)
	default:
		return c.JSON(fiber.Map{
			"matched":   false,
			"reason":    out.Status,
			"message":   "No suitable opponent found",
			"wait_time": out.WaitSeconds,
			"attempts":  out.Attempts,
		})
	}
}

// StreamMatch runs the search and streams every observation as an SSE data
// line. The search itself is detached from the connection: if the client
// goes away the stream stops, and the search runs on until it ends and
// finalizes its ticket.
func (s *MatchmakingService) StreamMatch(c *fiber.Ctx) error {
	playerID, err := s.playerID(c)
	if err != nil {
		return err
	}
	log := s.log.With().Str("player_id", playerID).Logger()

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	stream := s.startSearch(playerID, log)
	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		s.pump(w, stream, log)
	})
	return nil
}

// searchStream connects a detached search to the connection writing its
// events. gone is closed once the writer stops reading.
type searchStream struct {
	events chan matchmaking.Observation
	done   chan error
	gone   chan struct{}
}

// startSearch runs the search in its own goroutine. Non-terminal observations
// are dropped while the writer lags; the terminal one waits for the writer
// unless it has gone.
func (s *MatchmakingService) startSearch(playerID string, log zerolog.Logger) *searchStream {
	buffer := s.StreamBuffer
	if buffer < 1 {
		buffer = 1
	}
	st := &searchStream{
		events: make(chan matchmaking.Observation, buffer),
		done:   make(chan error, 1),
		gone:   make(chan struct{}),
	}

	obs := matchmaking.ObserverFunc(func(o matchmaking.Observation) {
		if o.Status.Terminal() {
			select {
			case st.events <- o:
			case <-st.gone:
			}
			return
		}
		select {
		case st.events <- o:
		case <-st.gone:
		default:
			log.Debug().Str("status", string(o.Status)).Msg("stream behind, dropping observation")
		}
	})

	go func() {
		_, err := s.Engine.FindMatch(s.base, playerID, obs)
		if err != nil {
			log.Error().Err(err).Msg("streamed search failed")
		}
		st.done <- err
		close(st.events)
	}()
	return st
}

// pump writes observations as SSE data lines until the search ends or a
// write fails.
func (s *MatchmakingService) pump(w *bufio.Writer, st *searchStream, log zerolog.Logger) {
	defer close(st.gone)

	heartbeat := s.Heartbeat
	if heartbeat <= 0 {
		heartbeat = 15 * time.Second
	}
	ticker := time.NewTicker(heartbeat)
	defer ticker.Stop()

	for {
		select {
		case o, ok := <-st.events:
			if !ok {
				if err := <-st.done; err != nil {
					_ = writeEvent(w, fiber.Map{"status": "error", "error": "matchmaking failed"})
				}
				return
			}
			if err := writeEvent(w, o.Payload()); err != nil {
				log.Info().Err(err).Msg("stream client gone")
				return
			}
		case <-ticker.C:
			if _, err := w.WriteString(": keep-alive\n\n"); err != nil {
				return
			}
			if err := w.Flush(); err != nil {
				log.Info().Err(err).Msg("stream client gone")
				return
			}
		}
	}
}

func writeEvent(w *bufio.Writer, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return err
	}
	return w.Flush()
}
