package scheduler

import (
	"context"
	"time"
)

// Pinger is anything the scheduler can keep alive
type Pinger interface {
	Ping(ctx context.Context) error
}

// FailureHandler is told about every failed keepalive ping
type FailureHandler func(sessionID string, err error)

// Entry describes one watched session
type Entry struct {
	SessionID   string     `json:"session_id"`
	ProfileName string     `json:"profile_name"`
	Schedule    string     `json:"schedule"`
	Pings       int        `json:"pings"`
	Failures    int        `json:"failures"`
	LastPingAt  *time.Time `json:"last_ping_at"`
	LastError   string     `json:"last_error,omitempty"`
	NextPingAt  *time.Time `json:"next_ping_at"`
}

// Options configure the keepalive scheduler
type Options struct {
	// Schedule is the default cron spec; 5-field expressions get a seconds field
	Schedule string
	// Timeout bounds each ping
	Timeout time.Duration
}
