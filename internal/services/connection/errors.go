package connection

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"syscall"

	mssql "github.com/denisenkom/go-mssqldb"
	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
)

// Connect failure kinds, matched with errors.Is
var (
	ErrUnreachable      = errors.New("database unreachable")
	ErrAuthRejected     = errors.New("authentication rejected")
	ErrProtocolMismatch = errors.New("protocol mismatch")
	ErrInvalidProfile   = errors.New("invalid connection profile")
	ErrConnectFailed    = errors.New("connection failed")
)

// ConnectError is returned by Worker.Execute
type ConnectError struct {
	Kind    error
	Profile string
	Address string
	Err     error
}

func (e *ConnectError) Error() string {
	msg := fmt.Sprintf("connect %q", e.Profile)
	if e.Address != "" {
		msg += fmt.Sprintf(" (%s)", e.Address)
	}
	msg += ": " + e.Kind.Error()
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Is matches the failure kind
func (e *ConnectError) Is(target error) bool {
	return target == e.Kind
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}

// ErrorKind names the failure kind of err for logs and history records
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnreachable):
		return "unreachable"
	case errors.Is(err, ErrAuthRejected):
		return "auth_rejected"
	case errors.Is(err, ErrProtocolMismatch):
		return "protocol_mismatch"
	case errors.Is(err, ErrInvalidProfile):
		return "invalid_profile"
	default:
		return "connect_failed"
	}
}

// classify maps a driver error onto a failure kind
func classify(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "28P01", "28000":
			return ErrAuthRejected
		case "08P01", "0A000":
			return ErrProtocolMismatch
		}
		return ErrConnectFailed
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case 1044, 1045, 1698:
			return ErrAuthRejected
		}
		return ErrConnectFailed
	}
	if errors.Is(err, mysql.ErrMalformPkt) || errors.Is(err, mysql.ErrOldProtocol) || errors.Is(err, mysql.ErrNoTLS) {
		return ErrProtocolMismatch
	}

	var msErr mssql.Error
	if errors.As(err, &msErr) {
		if msErr.Number == 18456 {
			return ErrAuthRejected
		}
		return ErrConnectFailed
	}

	var tlsErr tls.RecordHeaderError
	if errors.As(err, &tlsErr) {
		return ErrProtocolMismatch
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, syscall.ECONNREFUSED) {
		return ErrUnreachable
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return ErrUnreachable
	}

	return ErrConnectFailed
}
