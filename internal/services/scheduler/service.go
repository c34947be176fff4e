package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"titan/internal/logger"
	"titan/internal/services/connection"
)

const defaultPingTimeout = 5 * time.Second

// ErrAlreadyWatched is returned when a session is watched twice
var ErrAlreadyWatched = errors.New("session already watched")

type watch struct {
	entryID cron.EntryID
	target  Pinger
	entry   Entry
}

// Service pings open sessions on a cron schedule
type Service struct {
	ctx       context.Context
	cron      *cron.Cron
	schedule  string
	timeout   time.Duration
	watched   map[string]*watch // session ID -> watch
	mu        sync.RWMutex
	onFailure FailureHandler
}

// NewService creates a keepalive scheduler. The default schedule is validated here.
func NewService(ctx context.Context, opts Options) (*Service, error) {
	schedule, err := normalizeCron(opts.Schedule)
	if err != nil {
		return nil, fmt.Errorf("invalid keepalive schedule: %w", err)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultPingTimeout
	}

	return &Service{
		ctx:      ctx,
		cron:     cron.New(cron.WithSeconds()),
		schedule: schedule,
		timeout:  opts.Timeout,
		watched:  make(map[string]*watch),
	}, nil
}

// OnFailure registers fn for failed pings
func (s *Service) OnFailure(fn FailureHandler) {
	s.mu.Lock()
	s.onFailure = fn
	s.mu.Unlock()
}

// Start begins running scheduled pings
func (s *Service) Start() {
	s.cron.Start()
	logger.Info("Keepalive scheduler started", "schedule", s.schedule)
}

// Stop halts the scheduler and waits for running pings
func (s *Service) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	logger.Info("Keepalive scheduler stopped")
}

// Watch schedules keepalive pings for session. An empty spec uses the default schedule.
func (s *Service) Watch(session *connection.Session, spec string) error {
	if session == nil {
		return errors.New("session is required")
	}
	return s.watch(session.ID, session.Profile.Name, session, spec)
}

func (s *Service) watch(id, name string, target Pinger, spec string) error {
	schedule := s.schedule
	if strings.TrimSpace(spec) != "" {
		normalized, err := normalizeCron(spec)
		if err != nil {
			return err
		}
		schedule = normalized
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.watched[id]; exists {
		return fmt.Errorf("%w: %s", ErrAlreadyWatched, id)
	}

	entryID, err := s.cron.AddFunc(schedule, func() {
		s.ping(id)
	})
	if err != nil {
		return fmt.Errorf("failed to add keepalive: %w", err)
	}

	s.watched[id] = &watch{
		entryID: entryID,
		target:  target,
		entry: Entry{
			SessionID:   id,
			ProfileName: name,
			Schedule:    schedule,
		},
	}
	logger.Debug("Watching session", "session", id, "profile", name, "schedule", schedule)
	return nil
}

// Unwatch stops pinging a session and reports whether it was watched
func (s *Service) Unwatch(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, exists := s.watched[id]
	if !exists {
		return false
	}
	s.cron.Remove(w.entryID)
	delete(s.watched, id)
	return true
}

// Watched lists watched sessions ordered by profile name
func (s *Service) Watched() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]Entry, 0, len(s.watched))
	for _, w := range s.watched {
		entry := w.entry
		if next := s.cron.Entry(w.entryID).Next; !next.IsZero() {
			entry.NextPingAt = &next
		}
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].ProfileName == entries[j].ProfileName {
			return entries[i].SessionID < entries[j].SessionID
		}
		return entries[i].ProfileName < entries[j].ProfileName
	})
	return entries
}

// ping runs one keepalive for a watched session
func (s *Service) ping(id string) {
	s.mu.RLock()
	w, exists := s.watched[id]
	s.mu.RUnlock()
	if !exists {
		return
	}

	ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
	err := w.target.Ping(ctx)
	cancel()

	now := time.Now()
	s.mu.Lock()
	w.entry.Pings++
	w.entry.LastPingAt = &now
	if err != nil {
		w.entry.Failures++
		w.entry.LastError = err.Error()
	} else {
		w.entry.LastError = ""
	}
	onFailure := s.onFailure
	s.mu.Unlock()

	if err != nil {
		logger.Warn("Keepalive ping failed", "session", id, "profile", w.entry.ProfileName, "error", err)
		if onFailure != nil {
			onFailure(id, err)
		}
		return
	}
	logger.Debug("Keepalive ping ok", "session", id)
}

// normalizeCron converts 5-field cron to 6-field format by prepending seconds.
// Descriptors such as @hourly or @every 30s pass through.
// 5-field: "minute hour day month dow"
// 6-field: "second minute hour day month dow" (robfig/cron with WithSeconds)
func normalizeCron(cronExpr string) (string, error) {
	cronExpr = strings.TrimSpace(cronExpr)

	if strings.HasPrefix(cronExpr, "@") {
		if _, err := cron.ParseStandard(cronExpr); err != nil {
			return "", fmt.Errorf("invalid cron descriptor: %w", err)
		}
		return cronExpr, nil
	}

	fields := strings.Fields(cronExpr)
	if len(fields) == 6 {
		parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
		if _, err := parser.Parse(cronExpr); err != nil {
			return "", fmt.Errorf("invalid 6-field cron expression: %w", err)
		}
		return cronExpr, nil
	}

	if len(fields) == 5 {
		if _, err := cron.ParseStandard(cronExpr); err != nil {
			return "", fmt.Errorf("invalid 5-field cron expression: %w", err)
		}
		return "0 " + cronExpr, nil
	}

	return "", fmt.Errorf("invalid cron expression: expected 5 or 6 fields, got %d", len(fields))
}
