// Package matchmakingtest provides an in-memory Store and ProfileStore for
// exercising the matchmaking engine without a database.
//
// Row locking follows the PostgreSQL behaviour the engine relies on: a scan
// skips tickets locked by another in-flight cycle, writes inside a cycle are
// buffered until it commits, and plain writes outside a cycle wait for row
// locks to be released. A write inside a cycle that hits a row locked by a
// different cycle fails with matchmaking.ErrContention instead of waiting,
// which is how a deadlock abort surfaces from the real store.
package matchmakingtest

import (
	"context"
	"sort"
	"sync"

	"matchmaking-service/matchmaking"
	"matchmaking-service/models"
)

// Op names an injectable store operation.
type Op string

const (
	OpActiveContest  Op = "active_contest"
	OpCountQueued    Op = "count_queued"
	OpUpsertQueued   Op = "upsert_queued"
	OpMarkClosed     Op = "mark_closed"
	OpCycleActive    Op = "cycle_active_contest"
	OpScanCandidates Op = "scan_candidates"
	OpCreateContest  Op = "create_contest"
	OpMarkMatched    Op = "mark_matched"
	OpDeleteQueued   Op = "delete_queued"
)

type fault struct {
	err   error
	times int
}

// Store is a goroutine-safe in-memory ticket, contest and player table.
type Store struct {
	mu       sync.Mutex
	unlocked *sync.Cond

	nextTicketID uint64
	nextTxID     uint64
	tickets      []*models.Ticket
	contests     []models.Contest
	players      map[string]models.Player
	locks        map[uint64]uint64 // ticket id -> owning cycle
	faults       map[Op]*fault

	createContestCalls int
}

var (
	_ matchmaking.Store        = (*Store)(nil)
	_ matchmaking.ProfileStore = (*Store)(nil)
)

func NewStore() *Store {
	s := &Store{
		players: map[string]models.Player{},
		locks:   map[uint64]uint64{},
		faults:  map[Op]*fault{},
	}
	s.unlocked = sync.NewCond(&s.mu)
	return s
}

// AddPlayer registers a profile.
func (s *Store) AddPlayer(p models.Player) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.players[p.ID] = p
}

// AddTicket inserts a ticket as-is and returns its id.
func (s *Store) AddTicket(t models.Ticket) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextTicketID++
	t.ID = s.nextTicketID
	if t.Status == "" {
		t.Status = models.TicketQueued
	}
	s.tickets = append(s.tickets, &t)
	return t.ID
}

// AddContest inserts a contest as-is.
func (s *Store) AddContest(c models.Contest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contests = append(s.contests, c)
}

// Fail makes the next times calls of op return err.
func (s *Store) Fail(op Op, err error, times int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[op] = &fault{err: err, times: times}
}

// Tickets returns a copy of every ticket row.
func (s *Store) Tickets() []models.Ticket {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Ticket, 0, len(s.tickets))
	for _, t := range s.tickets {
		out = append(out, *t)
	}
	return out
}

// TicketsFor returns a copy of every ticket row of playerID.
func (s *Store) TicketsFor(playerID string) []models.Ticket {
	var out []models.Ticket
	for _, t := range s.Tickets() {
		if t.PlayerID == playerID {
			out = append(out, t)
		}
	}
	return out
}

// Contests returns a copy of every committed contest.
func (s *Store) Contests() []models.Contest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Contest(nil), s.contests...)
}

// CreateContestCalls counts CreateContest calls, committed or not.
func (s *Store) CreateContestCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createContestCalls
}

func (s *Store) Profile(_ context.Context, playerID string) (matchmaking.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.players[playerID]
	if !ok {
		return matchmaking.Profile{}, matchmaking.ErrPlayerNotFound
	}
	return matchmaking.Profile{
		PlayerID:    p.ID,
		Area:        p.Area,
		Rating:      p.Rating,
		Preferences: p.Preferences,
	}, nil
}

func (s *Store) ActiveContest(_ context.Context, playerID string) (*matchmaking.ActiveContest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected(OpActiveContest); err != nil {
		return nil, err
	}
	return s.activeContestLocked(playerID), nil
}

func (s *Store) CountQueued(_ context.Context, area string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected(OpCountQueued); err != nil {
		return 0, err
	}
	var n int64
	for _, t := range s.tickets {
		if t.Status == models.TicketQueued && t.Area == area {
			n++
		}
	}
	return n, nil
}

func (s *Store) UpsertQueued(_ context.Context, t models.Ticket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected(OpUpsertQueued); err != nil {
		return err
	}
	if existing := s.queuedLocked(t.PlayerID); existing != nil {
		s.waitUnlockedLocked(existing.ID)
		// the row may have been consumed while we waited
		if existing.Status == models.TicketQueued {
			existing.Area = t.Area
			existing.Rating = t.Rating
			existing.Preferences = t.Preferences
			existing.CreatedAt = t.CreatedAt
			return nil
		}
	}
	s.nextTicketID++
	t.ID = s.nextTicketID
	t.Status = models.TicketQueued
	s.tickets = append(s.tickets, &t)
	return nil
}

func (s *Store) MarkClosed(_ context.Context, playerID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected(OpMarkClosed); err != nil {
		return false, err
	}
	t := s.queuedLocked(playerID)
	if t == nil {
		return false, nil
	}
	s.waitUnlockedLocked(t.ID)
	if t.Status != models.TicketQueued {
		return false, nil
	}
	t.Status = models.TicketClosed
	return true, nil
}

func (s *Store) Cycle(ctx context.Context, fn func(tx matchmaking.CycleTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	s.nextTxID++
	tx := &cycleTx{store: s, id: s.nextTxID}
	s.mu.Unlock()

	err := fn(tx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		for _, apply := range tx.pending {
			apply()
		}
	}
	for ticketID, owner := range s.locks {
		if owner == tx.id {
			delete(s.locks, ticketID)
		}
	}
	s.unlocked.Broadcast()
	return err
}

func (s *Store) injected(op Op) error {
	f, ok := s.faults[op]
	if !ok || f.times == 0 {
		return nil
	}
	f.times--
	return f.err
}

// activeContestLocked returns the newest incomplete contest of playerID.
// Contests created at the same instant resolve to the one inserted last.
func (s *Store) activeContestLocked(playerID string) *matchmaking.ActiveContest {
	var newest *models.Contest
	for i := range s.contests {
		c := &s.contests[i]
		if c.IsComplete || !c.Involves(playerID) {
			continue
		}
		if newest == nil || !c.CreatedAt.Before(newest.CreatedAt) {
			newest = c
		}
	}
	if newest == nil {
		return nil
	}
	return &matchmaking.ActiveContest{ID: newest.ID, Score: newest.CompatScore}
}

func (s *Store) queuedLocked(playerID string) *models.Ticket {
	for _, t := range s.tickets {
		if t.PlayerID == playerID && t.Status == models.TicketQueued {
			return t
		}
	}
	return nil
}

func (s *Store) waitUnlockedLocked(ticketID uint64) {
	for {
		if _, held := s.locks[ticketID]; !held {
			return
		}
		s.unlocked.Wait()
	}
}

// lockLocked takes the row lock for tx, failing if another cycle holds it.
func (s *Store) lockLocked(ticketID, txID uint64) error {
	if owner, held := s.locks[ticketID]; held && owner != txID {
		return matchmaking.ErrContention
	}
	s.locks[ticketID] = txID
	return nil
}

type cycleTx struct {
	store   *Store
	id      uint64
	pending []func()
}

func (tx *cycleTx) ActiveContest(playerID string) (*matchmaking.ActiveContest, error) {
	s := tx.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected(OpCycleActive); err != nil {
		return nil, err
	}
	return s.activeContestLocked(playerID), nil
}

func (tx *cycleTx) ScanCandidates(area, excludePlayerID string, limit int) ([]models.Ticket, error) {
	s := tx.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected(OpScanCandidates); err != nil {
		return nil, err
	}

	var rows []*models.Ticket
	for _, t := range s.tickets {
		if t.Status != models.TicketQueued || t.Area != area || t.PlayerID == excludePlayerID {
			continue
		}
		if owner, held := s.locks[t.ID]; held && owner != tx.id {
			continue
		}
		rows = append(rows, t)
	}
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].CreatedAt.Before(rows[j].CreatedAt)
	})
	if len(rows) > limit {
		rows = rows[:limit]
	}

	out := make([]models.Ticket, 0, len(rows))
	for _, t := range rows {
		s.locks[t.ID] = tx.id
		out = append(out, *t)
	}
	return out, nil
}

func (tx *cycleTx) CreateContest(c models.Contest) (models.Contest, error) {
	s := tx.store
	s.mu.Lock()
	defer s.mu.Unlock()
	s.createContestCalls++
	if err := s.injected(OpCreateContest); err != nil {
		return models.Contest{}, err
	}
	tx.pending = append(tx.pending, func() { s.contests = append(s.contests, c) })
	return c, nil
}

func (tx *cycleTx) MarkMatched(ticketID uint64) error {
	s := tx.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected(OpMarkMatched); err != nil {
		return err
	}
	if err := s.lockLocked(ticketID, tx.id); err != nil {
		return err
	}
	tx.pending = append(tx.pending, func() {
		for _, t := range s.tickets {
			if t.ID == ticketID && t.Status == models.TicketQueued {
				t.Status = models.TicketMatched
			}
		}
	})
	return nil
}

func (tx *cycleTx) DeleteQueued(playerID string) error {
	s := tx.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected(OpDeleteQueued); err != nil {
		return err
	}
	t := s.queuedLocked(playerID)
	if t == nil {
		return nil
	}
	if err := s.lockLocked(t.ID, tx.id); err != nil {
		return err
	}
	ticketID := t.ID
	tx.pending = append(tx.pending, func() {
		for i, t := range s.tickets {
			if t.ID == ticketID && t.Status == models.TicketQueued {
				s.tickets = append(s.tickets[:i], s.tickets[i+1:]...)
				return
			}
		}
	})
	return nil
}
