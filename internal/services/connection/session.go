package connection

import (
	"context"
	"database/sql"
	"time"

	"titan/internal/models"
)

// Session is an established connection to the database a profile describes
type Session struct {
	ID            string
	Profile       models.ConnectionProfile // redacted
	Driver        string
	ServerVersion string
	ConnectedAt   time.Time

	db *sql.DB
}

// DB exposes the session's connection pool
func (s *Session) DB() *sql.DB {
	return s.db
}

// Ping checks the session is still usable
func (s *Session) Ping(ctx context.Context) error {
	if s.db == nil {
		return ErrConnectFailed
	}
	return s.db.PingContext(ctx)
}

// Close releases the session's connections
func (s *Session) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
