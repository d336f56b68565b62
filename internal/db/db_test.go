package db

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// fakeState records transaction outcomes and optionally fails the
// first N commits with a given pq error code.
type fakeState struct {
	commits     int64
	rollbacks   int64
	failCommits int64
	failCode    string
}

type fakeDriver struct {
	state *fakeState
}

func (d *fakeDriver) Open(string) (driver.Conn, error) {
	return &fakeConn{state: d.state}, nil
}

type fakeConn struct {
	state *fakeState
}

func (c *fakeConn) Prepare(string) (driver.Stmt, error) { return &fakeStmt{}, nil }
func (c *fakeConn) Close() error                        { return nil }
func (c *fakeConn) Begin() (driver.Tx, error)           { return &fakeTx{state: c.state}, nil }

func (c *fakeConn) BeginTx(context.Context, driver.TxOptions) (driver.Tx, error) {
	return &fakeTx{state: c.state}, nil
}

type fakeTx struct {
	state *fakeState
}

func (t *fakeTx) Commit() error {
	call := atomic.AddInt64(&t.state.commits, 1)
	if call <= t.state.failCommits {
		code := t.state.failCode
		if code == "" {
			code = "40001"
		}
		return &pq.Error{Code: pq.ErrorCode(code)}
	}
	return nil
}

func (t *fakeTx) Rollback() error {
	atomic.AddInt64(&t.state.rollbacks, 1)
	return nil
}

type fakeStmt struct{}

func (s *fakeStmt) Close() error                                  { return nil }
func (s *fakeStmt) NumInput() int                                 { return -1 }
func (s *fakeStmt) Exec([]driver.Value) (driver.Result, error)    { return nil, nil }
func (s *fakeStmt) Query([]driver.Value) (driver.Rows, error)     { return nil, nil }

var driverCounter uint64

func openFakeDB(t *testing.T, state *fakeState) *sqlx.DB {
	t.Helper()
	name := fmt.Sprintf("fake-%d", atomic.AddUint64(&driverCounter, 1))
	sql.Register(name, &fakeDriver{state: state})
	sqlDB, err := sql.Open(name, "")
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	t.Cleanup(func() { sqlDB.Close() })
	return sqlx.NewDb(sqlDB, name)
}

func TestWithTxCommits(t *testing.T) {
	state := &fakeState{}
	xdb := openFakeDB(t, state)

	if err := WithTx(context.Background(), xdb, func(*sqlx.Tx) error { return nil }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state.commits != 1 || state.rollbacks != 0 {
		t.Fatalf("expected commit=1 rollback=0, got %d/%d", state.commits, state.rollbacks)
	}
}

func TestWithTxRollsBackOnError(t *testing.T) {
	state := &fakeState{}
	xdb := openFakeDB(t, state)

	if err := WithTx(context.Background(), xdb, func(*sqlx.Tx) error { return errors.New("boom") }); err == nil {
		t.Fatalf("expected error")
	}
	if state.rollbacks != 1 {
		t.Fatalf("expected rollback=1, got %d", state.rollbacks)
	}
}

func TestWithTxRetriesOnSerializationFailure(t *testing.T) {
	state := &fakeState{failCommits: 1}
	xdb := openFakeDB(t, state)

	if err := WithTx(context.Background(), xdb, func(*sqlx.Tx) error { return nil }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state.commits != 2 {
		t.Fatalf("expected 2 commit attempts, got %d", state.commits)
	}
}

func TestWithTxRetryCapExceeded(t *testing.T) {
	state := &fakeState{failCommits: 10, failCode: "40P01"}
	xdb := openFakeDB(t, state)

	if err := WithTx(context.Background(), xdb, func(*sqlx.Tx) error { return nil }); err == nil {
		t.Fatalf("expected retry limit error")
	}
	if state.commits != 5 {
		t.Fatalf("expected 5 commit attempts, got %d", state.commits)
	}
}

func TestIsRetryablePGError(t *testing.T) {
	if !isRetryablePGError(&pq.Error{Code: "40001"}) {
		t.Fatalf("serialization failure should retry")
	}
	if !isRetryablePGError(&pq.Error{Code: "40P01"}) {
		t.Fatalf("deadlock should retry")
	}
	if isRetryablePGError(&pq.Error{Code: "23505"}) {
		t.Fatalf("unique violation should not retry")
	}
	if isRetryablePGError(errors.New("plain")) {
		t.Fatalf("non-pq error should not retry")
	}
}
