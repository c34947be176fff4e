package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"gorm.io/gorm"

	"titan/internal/api"
	"titan/internal/config"
	"titan/internal/crypto"
	"titan/internal/database"
	"titan/internal/logger"
	"titan/internal/models"
	"titan/internal/services/connection"
	"titan/internal/services/history"
	"titan/internal/services/profiles"
	"titan/internal/services/scheduler"
)

// App struct - main application state
type App struct {
	ctx        context.Context
	cfg        *config.Config
	db         *gorm.DB
	profiles   *profiles.Service
	history    *history.Service
	keepalive  *scheduler.Service
	newWorker  connection.WorkerFactory
	sessions   map[string]*connection.Session // session ID -> open session
	sessionsMu sync.RWMutex
}

// NewApp creates a new App application struct
func NewApp(cfg *config.Config) *App {
	return &App{
		cfg:      cfg,
		sessions: make(map[string]*connection.Session),
	}
}

// startup opens the store and wires the services
func (a *App) startup(ctx context.Context) error {
	a.ctx = ctx
	logger.Debug("Application starting up")

	box, err := crypto.Open(a.cfg.EncryptionKey)
	if err != nil {
		return fmt.Errorf("encryption initialization failed, profiles cannot be saved: %w", err)
	}

	db, err := database.Open(a.cfg.DatabaseURL, a.cfg.Store, logger.ParseLevel(a.cfg.LogLevel) == slog.LevelDebug)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	a.db = db

	a.profiles = profiles.NewService(db, box)
	a.history = history.NewService(db)
	a.newWorker = connection.Factory(connection.Options{
		Timeout: a.cfg.Connect.Timeout,
		Pool:    a.cfg.Session,
	})

	a.keepalive, err = scheduler.NewService(ctx, scheduler.Options{
		Schedule: a.cfg.Keepalive.Schedule,
		Timeout:  a.cfg.Connect.Timeout,
	})
	if err != nil {
		database.Close(db)
		return err
	}
	a.keepalive.OnFailure(a.keepaliveFailed)
	a.keepalive.Start()

	logger.Debug("Startup complete")
	return nil
}

// startupHTTP prepares an App that only sends HTTP requests. Profile,
// connection and history methods are unavailable.
func (a *App) startupHTTP(ctx context.Context) {
	a.ctx = ctx
	logger.Debug("Application starting up without store")
}

// shutdown stops the scheduler, closes sessions and the store
func (a *App) shutdown() {
	logger.Debug("Application shutting down")

	if a.keepalive != nil {
		a.keepalive.Stop()
	}

	a.sessionsMu.Lock()
	for id, session := range a.sessions {
		if err := session.Close(); err != nil {
			logger.Warn("Error closing session", "session", id, "error", err)
		}
		delete(a.sessions, id)
	}
	a.sessionsMu.Unlock()

	if err := database.Close(a.db); err != nil {
		logger.Error("Error closing database", "error", err)
	}
}

// ====================================================================================
// PROFILES
// ====================================================================================

// ListProfiles returns all connection profiles
func (a *App) ListProfiles() ([]models.ConnectionProfile, error) {
	return a.profiles.List()
}

// GetProfile returns a profile by name or ID with its password masked
func (a *App) GetProfile(nameOrID string) (*models.ConnectionProfile, error) {
	profile, err := a.profiles.Resolve(nameOrID)
	if err != nil {
		return nil, err
	}
	redacted := profile.Redacted()
	return &redacted, nil
}

// profileRequest loads a stored profile, password included, as a request
func (a *App) profileRequest(nameOrID string) (ProfileRequest, error) {
	p, err := a.profiles.Resolve(nameOrID)
	if err != nil {
		return ProfileRequest{}, err
	}
	return ProfileRequest{
		Name:           p.Name,
		Driver:         p.Driver,
		Host:           p.Host,
		Port:           p.Port,
		Username:       p.User.Username,
		Password:       p.Password,
		Database:       p.Database,
		SSLMode:        p.SSLMode,
		SaveToKeychain: p.SaveToKeychain,
	}, nil
}

// CreateProfile stores a new profile and returns its ID
func (a *App) CreateProfile(req ProfileRequest) (string, error) {
	profile := req.toProfile()
	if err := a.profiles.Create(profile); err != nil {
		return "", err
	}
	return profile.ID, nil
}

// UpdateProfile updates an existing profile; an empty password keeps the stored one
func (a *App) UpdateProfile(nameOrID string, req ProfileRequest) error {
	existing, err := a.profiles.Resolve(nameOrID)
	if err != nil {
		return err
	}
	return a.profiles.Update(existing.ID, req.toProfile())
}

// DeleteProfile deletes a profile by name or ID
func (a *App) DeleteProfile(nameOrID string) error {
	existing, err := a.profiles.Resolve(nameOrID)
	if err != nil {
		return err
	}
	return a.profiles.Delete(existing.ID)
}

// ExportProfiles writes all profiles, without passwords
func (a *App) ExportProfiles(w io.Writer, format string) error {
	f, err := profiles.ParseFormat(format)
	if err != nil {
		return err
	}
	return a.profiles.Export(w, f)
}

// ImportProfiles merges profiles read from r
func (a *App) ImportProfiles(r io.Reader, format string) (*profiles.ImportResult, error) {
	f, err := profiles.ParseFormat(format)
	if err != nil {
		return nil, err
	}
	return a.profiles.Import(r, f)
}

// PullProfiles merges the profiles published by a remote catalogue
func (a *App) PullProfiles(baseURL, team string) (*profiles.ImportResult, error) {
	client, err := a.apiClient(baseURL)
	if err != nil {
		return nil, err
	}
	defer client.Close()
	return a.profiles.Pull(a.ctx, client, team)
}

// ====================================================================================
// CONNECTIONS
// ====================================================================================

// Connect opens a session for a saved profile. The session stays open until
// Disconnect or shutdown, and is pinged on the keepalive schedule when asked.
func (a *App) Connect(req ConnectRequest) ConnectResponse {
	profile, err := a.profiles.Resolve(req.Profile)
	if err != nil {
		return ConnectResponse{Error: err.Error()}
	}

	presenter := &sessionPresenter{app: a, profile: profile, req: req, started: time.Now()}
	connection.NewInteractor(presenter, a.newWorker).Connect(a.ctx, profile)
	return presenter.resp
}

// TestConnection connects with an unsaved profile and closes the session right away
func (a *App) TestConnection(req ProfileRequest) ConnectResponse {
	presenter := &testPresenter{started: time.Now()}
	connection.NewInteractor(presenter, a.newWorker).Connect(a.ctx, req.toProfile())
	return presenter.resp
}

// Disconnect closes an open session
func (a *App) Disconnect(sessionID string) error {
	a.keepalive.Unwatch(sessionID)

	a.sessionsMu.Lock()
	session, ok := a.sessions[sessionID]
	delete(a.sessions, sessionID)
	a.sessionsMu.Unlock()

	if !ok {
		return fmt.Errorf("session %s not found", sessionID)
	}
	return session.Close()
}

// Sessions lists open sessions, oldest first
func (a *App) Sessions() []SessionResponse {
	watched := make(map[string]scheduler.Entry)
	for _, e := range a.keepalive.Watched() {
		watched[e.SessionID] = e
	}

	a.sessionsMu.RLock()
	out := make([]SessionResponse, 0, len(a.sessions))
	for _, s := range a.sessions {
		resp := SessionResponse{
			SessionID:     s.ID,
			Profile:       s.Profile.Name,
			Driver:        s.Driver,
			ServerVersion: s.ServerVersion,
			ConnectedAt:   s.ConnectedAt.Format(time.RFC3339),
		}
		if e, ok := watched[s.ID]; ok {
			resp.Keepalive = e.Schedule
			resp.KeepaliveFailures = e.Failures
		}
		out = append(out, resp)
	}
	a.sessionsMu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ConnectedAt < out[j].ConnectedAt })
	return out
}

// ListHistory retrieves recent connect outcomes, optionally for one profile
func (a *App) ListHistory(profile string, limit int) ([]HistoryResponse, error) {
	var (
		events []models.ConnectionEvent
		err    error
	)
	if profile != "" {
		p, resolveErr := a.profiles.Resolve(profile)
		if resolveErr != nil {
			return nil, resolveErr
		}
		events, err = a.history.ForProfile(p.ID, limit)
	} else {
		events, err = a.history.Recent(limit)
	}
	if err != nil {
		return nil, err
	}

	out := make([]HistoryResponse, 0, len(events))
	for i := range events {
		e := &events[i]
		out = append(out, HistoryResponse{
			EventID:    e.ID,
			Profile:    e.ProfileName,
			Status:     e.Status,
			ErrorKind:  e.ErrorKind,
			Error:      e.Error,
			At:         e.CreatedAt.Format(time.RFC3339),
			DurationMs: e.DurationMs,
			Summary:    history.Summary(e),
		})
	}
	return out, nil
}

// ====================================================================================
// HTTP REQUESTS
// ====================================================================================

// Request executes req against baseURL and returns the decoded JSON body.
// Cancelling ctx aborts the request.
func (a *App) Request(ctx context.Context, baseURL string, req api.Request) (interface{}, error) {
	client, err := a.apiClient(baseURL)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	call := api.Send[interface{}](a.ctx, client, req)
	select {
	case result, ok := <-call.Done():
		if !ok {
			return nil, context.Canceled
		}
		return result.Value, result.Err
	case <-ctx.Done():
		call.Cancel()
		return nil, ctx.Err()
	}
}

func (a *App) apiClient(baseURL string) (*api.Client, error) {
	if baseURL == "" {
		baseURL = a.cfg.API.BaseURL
	}
	if baseURL == "" {
		return nil, errors.New("no base URL given and api.base_url is not configured")
	}
	return api.NewClient(baseURL, api.WithTimeout(a.cfg.API.Timeout)), nil
}

func (a *App) keepaliveFailed(sessionID string, err error) {
	a.sessionsMu.RLock()
	session, ok := a.sessions[sessionID]
	a.sessionsMu.RUnlock()
	if !ok {
		return
	}

	event := history.NewEvent(&session.Profile, nil, err, 0)
	if recErr := a.history.Record(a.ctx, event); recErr != nil {
		logger.Warn("Failed to record keepalive failure", "session", sessionID, "error", recErr)
	}
}

// ====================================================================================
// PRESENTERS
// ====================================================================================

// sessionPresenter keeps the session, records history and starts keepalive
type sessionPresenter struct {
	app     *App
	profile *models.ConnectionProfile
	req     ConnectRequest
	started time.Time
	resp    ConnectResponse
}

func (p *sessionPresenter) PresentConnectedSession(session *connection.Session) {
	took := time.Since(p.started)
	p.app.sessionsMu.Lock()
	p.app.sessions[session.ID] = session
	p.app.sessionsMu.Unlock()

	p.resp = ConnectResponse{
		Success:       true,
		SessionID:     session.ID,
		ServerVersion: session.ServerVersion,
		DurationMs:    took.Milliseconds(),
	}
	p.record(history.NewEvent(p.profile, session, nil, took))

	if p.req.Keepalive {
		if err := p.app.keepalive.Watch(session, p.req.Schedule); err != nil {
			p.resp.Error = fmt.Sprintf("connected, but keepalive not started: %v", err)
		}
	}
}

func (p *sessionPresenter) PresentError(err error) {
	took := time.Since(p.started)
	p.resp = ConnectResponse{
		Error:      err.Error(),
		ErrorKind:  connection.ErrorKind(err),
		DurationMs: took.Milliseconds(),
	}
	p.record(history.NewEvent(p.profile, nil, err, took))
}

func (p *sessionPresenter) record(event *models.ConnectionEvent) {
	if err := p.app.history.Record(p.app.ctx, event); err != nil {
		logger.Warn("Failed to record connection event", "profile", p.profile.Name, "error", err)
	}
}

// testPresenter reports the outcome and discards the session
type testPresenter struct {
	started time.Time
	resp    ConnectResponse
}

func (p *testPresenter) PresentConnectedSession(session *connection.Session) {
	p.resp = ConnectResponse{
		Success:       true,
		ServerVersion: session.ServerVersion,
		DurationMs:    time.Since(p.started).Milliseconds(),
	}
	if err := session.Close(); err != nil {
		logger.Warn("Error closing test session", "error", err)
	}
}

func (p *testPresenter) PresentError(err error) {
	p.resp = ConnectResponse{
		Error:      err.Error(),
		ErrorKind:  connection.ErrorKind(err),
		DurationMs: time.Since(p.started).Milliseconds(),
	}
}

// ====================================================================================
// REQUEST/RESPONSE TYPES
// ====================================================================================

// ProfileRequest represents a request to create/update a connection profile
type ProfileRequest struct {
	Name           string `json:"name"`
	Driver         string `json:"driver"`
	Host           string `json:"host"`
	Port           int    `json:"port"`
	Username       string `json:"username"`
	Password       string `json:"password"` // Plain text, will be encrypted or sent to the keychain
	Database       string `json:"database"`
	SSLMode        string `json:"ssl_mode"`
	SaveToKeychain bool   `json:"save_to_keychain"`
}

func (r ProfileRequest) toProfile() *models.ConnectionProfile {
	return &models.ConnectionProfile{
		Name:           r.Name,
		Driver:         r.Driver,
		Host:           r.Host,
		Port:           r.Port,
		User:           models.User{Username: r.Username},
		Password:       r.Password,
		Database:       r.Database,
		SSLMode:        r.SSLMode,
		SaveToKeychain: r.SaveToKeychain,
	}
}

// ConnectRequest asks to open a session for a saved profile
type ConnectRequest struct {
	Profile   string `json:"profile"` // name or ID
	Keepalive bool   `json:"keepalive"`
	Schedule  string `json:"schedule"` // empty uses keepalive.schedule
}

// ConnectResponse represents the connect result
type ConnectResponse struct {
	Success       bool   `json:"success"`
	SessionID     string `json:"session_id,omitempty"`
	ServerVersion string `json:"server_version,omitempty"`
	Error         string `json:"error,omitempty"`
	ErrorKind     string `json:"error_kind,omitempty"`
	DurationMs    int64  `json:"duration_ms"`
}

// SessionResponse describes an open session
type SessionResponse struct {
	SessionID         string `json:"session_id"`
	Profile           string `json:"profile"`
	Driver            string `json:"driver"`
	ServerVersion     string `json:"server_version"`
	ConnectedAt       string `json:"connected_at"` // ISO 8601 timestamp
	Keepalive         string `json:"keepalive,omitempty"`
	KeepaliveFailures int    `json:"keepalive_failures"`
}

// HistoryResponse represents one connect outcome in the history
type HistoryResponse struct {
	EventID    string `json:"event_id"`
	Profile    string `json:"profile"`
	Status     string `json:"status"` // "connected", "failed"
	ErrorKind  string `json:"error_kind,omitempty"`
	Error      string `json:"error,omitempty"`
	At         string `json:"at"` // ISO 8601 timestamp
	DurationMs int64  `json:"duration_ms"`
	Summary    string `json:"summary"`
}
