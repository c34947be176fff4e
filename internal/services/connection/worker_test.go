package connection

import (
	"context"
	"crypto/tls"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	mssql "github.com/denisenkom/go-mssqldb"
	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"titan/internal/models"
)

func sqliteProfile(t *testing.T) *models.ConnectionProfile {
	t.Helper()
	path := filepath.Join(t.TempDir(), "local.db")
	require.NoError(t, os.WriteFile(path, nil, 0644))
	return &models.ConnectionProfile{
		Name:     "local",
		Driver:   models.DriverSQLite,
		Database: path,
		Password: "unused",
	}
}

// closedPort returns a localhost port nothing listens on
func closedPort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())
	return port
}

func TestWorkerExecute(t *testing.T) {
	ctx := context.Background()

	t.Run("Should connect to a SQLite file", func(t *testing.T) {
		profile := sqliteProfile(t)

		session, err := NewWorker(profile, Options{Timeout: 5 * time.Second}).Execute(ctx)
		require.NoError(t, err)
		defer session.Close()

		assert.NotEmpty(t, session.ID)
		assert.Equal(t, "sqlite", session.Driver)
		assert.NotEmpty(t, session.ServerVersion)
		assert.Equal(t, "local", session.Profile.Name)
		assert.Equal(t, "********", session.Profile.Password)
		assert.NoError(t, session.Ping(ctx))
	})

	t.Run("Should report missing SQLite file as unreachable", func(t *testing.T) {
		profile := sqliteProfile(t)
		profile.Database = filepath.Join(t.TempDir(), "missing.db")

		_, err := NewWorker(profile, Options{}).Execute(ctx)
		assert.ErrorIs(t, err, ErrUnreachable)
	})

	t.Run("Should report refused port as unreachable", func(t *testing.T) {
		for _, driver := range []string{models.DriverPostgres, models.DriverMySQL} {
			t.Run(driver, func(t *testing.T) {
				profile := &models.ConnectionProfile{
					Name:     "down",
					Driver:   driver,
					Host:     "127.0.0.1",
					Port:     closedPort(t),
					User:     models.User{Username: "nobody"},
					Password: "x",
					Database: "none",
				}

				_, err := NewWorker(profile, Options{Timeout: 3 * time.Second}).Execute(ctx)
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrUnreachable)
				assert.Equal(t, "unreachable", ErrorKind(err))
			})
		}
	})

	t.Run("Should reject unknown driver", func(t *testing.T) {
		profile := &models.ConnectionProfile{Name: "odd", Driver: "oracle", Host: "db"}

		_, err := NewWorker(profile, Options{}).Execute(ctx)
		assert.ErrorIs(t, err, ErrInvalidProfile)
		assert.Contains(t, err.Error(), "unsupported driver")
	})

	t.Run("Should reject missing host", func(t *testing.T) {
		profile := &models.ConnectionProfile{Name: "nohost", Driver: models.DriverPostgres}

		_, err := NewWorker(profile, Options{}).Execute(ctx)
		assert.ErrorIs(t, err, ErrInvalidProfile)
	})

	t.Run("Should reject nil profile", func(t *testing.T) {
		_, err := NewWorker(nil, Options{}).Execute(ctx)
		assert.ErrorIs(t, err, ErrInvalidProfile)
	})

	t.Run("Should close the pool when ping fails", func(t *testing.T) {
		var opened *sql.DB
		opts := Options{
			Timeout: time.Second,
			Open: func(driverName, dsn string) (*sql.DB, error) {
				db, err := sql.Open(driverName, dsn)
				opened = db
				return db, err
			},
		}
		profile := &models.ConnectionProfile{Name: "down", Host: "127.0.0.1", Port: closedPort(t)}

		_, err := NewWorker(profile, opts).Execute(ctx)
		require.Error(t, err)
		require.NotNil(t, opened)
		assert.Error(t, opened.Ping(), "pool should be closed")
	})
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected error
	}{
		{"postgres bad password", &pgconn.PgError{Code: "28P01"}, ErrAuthRejected},
		{"postgres no pg_hba entry", &pgconn.PgError{Code: "28000"}, ErrAuthRejected},
		{"postgres protocol violation", &pgconn.PgError{Code: "08P01"}, ErrProtocolMismatch},
		{"postgres missing database", &pgconn.PgError{Code: "3D000"}, ErrConnectFailed},
		{"mysql access denied", &mysql.MySQLError{Number: 1045}, ErrAuthRejected},
		{"mysql db access denied", &mysql.MySQLError{Number: 1044}, ErrAuthRejected},
		{"mysql malformed packet", mysql.ErrMalformPkt, ErrProtocolMismatch},
		{"mysql old protocol", fmt.Errorf("handshake: %w", mysql.ErrOldProtocol), ErrProtocolMismatch},
		{"sqlserver login failed", mssql.Error{Number: 18456}, ErrAuthRejected},
		{"tls record header", tls.RecordHeaderError{Msg: "first record does not look like a TLS handshake"}, ErrProtocolMismatch},
		{"connection refused", &net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED}, ErrUnreachable},
		{"dns failure", &net.DNSError{Err: "no such host", Name: "nowhere.invalid"}, ErrUnreachable},
		{"deadline", fmt.Errorf("ping: %w", context.DeadlineExceeded), ErrUnreachable},
		{"unknown", errors.New("boom"), ErrConnectFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, classify(tt.err))
		})
	}
}

func TestErrorKind(t *testing.T) {
	assert.Equal(t, "", ErrorKind(nil))
	assert.Equal(t, "auth_rejected", ErrorKind(&ConnectError{Kind: ErrAuthRejected}))
	assert.Equal(t, "protocol_mismatch", ErrorKind(&ConnectError{Kind: ErrProtocolMismatch}))
	assert.Equal(t, "invalid_profile", ErrorKind(&ConnectError{Kind: ErrInvalidProfile}))
	assert.Equal(t, "connect_failed", ErrorKind(errors.New("other")))
}

func TestConnectError(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := &ConnectError{Kind: ErrUnreachable, Profile: "prod", Address: "db:5432", Err: cause}

	assert.ErrorIs(t, err, ErrUnreachable)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrAuthRejected)
	assert.Equal(t, `connect "prod" (db:5432): database unreachable: dial tcp: refused`, err.Error())
}

func TestDSN(t *testing.T) {
	profile := &models.ConnectionProfile{
		Host:     "db.internal",
		User:     models.User{Username: "app"},
		Password: "p@ss word",
		Database: "orders",
	}

	t.Run("Should build postgres URL with defaults", func(t *testing.T) {
		dsn := postgresDSN(profile, 15*time.Second)
		u, err := url.Parse(dsn)
		require.NoError(t, err)

		assert.Equal(t, "postgres", u.Scheme)
		assert.Equal(t, "db.internal:5432", u.Host)
		assert.Equal(t, "/orders", u.Path)
		password, _ := u.User.Password()
		assert.Equal(t, "p@ss word", password)
		assert.Equal(t, "disable", u.Query().Get("sslmode"))
		assert.Equal(t, "15", u.Query().Get("connect_timeout"))
	})

	t.Run("Should build mysql DSN", func(t *testing.T) {
		p := *profile
		p.Port = 3307
		dsn := mysqlDSN(&p, 5*time.Second)

		cfg, err := mysql.ParseDSN(dsn)
		require.NoError(t, err)
		assert.Equal(t, "app", cfg.User)
		assert.Equal(t, "p@ss word", cfg.Passwd)
		assert.Equal(t, "db.internal:3307", cfg.Addr)
		assert.Equal(t, "orders", cfg.DBName)
		assert.Equal(t, 5*time.Second, cfg.Timeout)
	})

	t.Run("Should build sqlserver URL", func(t *testing.T) {
		dsn := sqlserverDSN(profile, 10*time.Second)
		u, err := url.Parse(dsn)
		require.NoError(t, err)

		assert.Equal(t, "sqlserver", u.Scheme)
		assert.Equal(t, "db.internal:1433", u.Host)
		assert.Equal(t, "orders", u.Query().Get("database"))
		assert.True(t, strings.Contains(dsn, "dial+timeout=10"))
	})

	t.Run("Should list supported drivers", func(t *testing.T) {
		for _, name := range SupportedDrivers() {
			_, ok := lookupDriver(name)
			assert.True(t, ok, name)
		}
		spec, ok := lookupDriver("")
		require.True(t, ok)
		assert.Equal(t, "pgx", spec.sqlName)
	})
}
