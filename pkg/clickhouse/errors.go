package clickhouse

import (
	"context"
	"database/sql/driver"
	"fmt"
	"io"
	"net"
	"syscall"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/pkg/errors"
)

type (
	// StatementError is returned when the server rejected a statement. The
	// session is still usable afterwards.
	StatementError struct {
		// Statement is the SQL text that failed, when known.
		Statement string

		// Code is the ClickHouse exception code.
		Code int32

		// Name is the ClickHouse exception name (e.g. UNKNOWN_TABLE).
		Name string

		Err error
	}

	// ConnectivityError is returned when the session to the server failed
	// (refused, reset, timed out) rather than the statement itself.
	ConnectivityError struct {
		Err error
	}
)

func (e *StatementError) Error() string {
	if e.Statement == "" {
		return fmt.Sprintf("statement failed: %v", e.Err)
	}

	return fmt.Sprintf("statement failed: %v\n%s", e.Err, e.Statement)
}

func (e *StatementError) Unwrap() error { return e.Err }

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("clickhouse connection failed: %v", e.Err)
}

func (e *ConnectivityError) Unwrap() error { return e.Err }

// IsConnectivity reports whether err is (or wraps) a ConnectivityError.
func IsConnectivity(err error) bool {
	var ce *ConnectivityError
	return errors.As(err, &ce)
}

// IsStatement reports whether err is (or wraps) a StatementError.
func IsStatement(err error) bool {
	var se *StatementError
	return errors.As(err, &se)
}

// classify maps driver errors onto StatementError or ConnectivityError. Errors
// that fit neither are returned unchanged so callers can treat them as
// unexpected.
func classify(stmt string, err error) error {
	if err == nil {
		return nil
	}

	if IsStatement(err) || IsConnectivity(err) {
		return err
	}

	var exc *clickhouse.Exception
	if errors.As(err, &exc) {
		return &StatementError{Statement: stmt, Code: exc.Code, Name: exc.Name, Err: err}
	}

	if isConnectivity(err) {
		return &ConnectivityError{Err: err}
	}

	return err
}

func isConnectivity(err error) bool {
	switch {
	case errors.Is(err, driver.ErrBadConn),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.EPIPE),
		errors.Is(err, clickhouse.ErrAcquireConnTimeout),
		errors.Is(err, context.DeadlineExceeded):
		return true
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}
