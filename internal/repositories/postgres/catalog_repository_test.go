package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

// recordingDriver hands out a single shared connection that records every
// statement, standing in for a live server in statement-order tests.
type recordingDriver struct {
	conn *recordingConn
}

func (d *recordingDriver) Open(string) (driver.Conn, error) { return d.conn, nil }

type recordingConn struct {
	mu    sync.Mutex
	execs []string
}

func (c *recordingConn) Prepare(string) (driver.Stmt, error) {
	return nil, errors.New("prepare not supported")
}

func (c *recordingConn) Close() error { return nil }

func (c *recordingConn) Begin() (driver.Tx, error) { return recordingTx{}, nil }

func (c *recordingConn) BeginTx(context.Context, driver.TxOptions) (driver.Tx, error) {
	return recordingTx{}, nil
}

func (c *recordingConn) ExecContext(_ context.Context, query string, _ []driver.NamedValue) (driver.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.execs = append(c.execs, query)
	return driver.RowsAffected(1), nil
}

func (c *recordingConn) statements() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.execs...)
}

type recordingTx struct{}

func (recordingTx) Commit() error   { return nil }
func (recordingTx) Rollback() error { return nil }

var sharedRecordingConn = &recordingConn{}

func init() {
	sql.Register("recording", &recordingDriver{conn: sharedRecordingConn})
}

// The partial unique index on (product_id) WHERE is_default rejects a second
// default per statement, so the sibling default has to be cleared before the
// new one is set.
func TestSetDefaultVariantClearsSiblingBeforePromoting(t *testing.T) {
	db, err := sql.Open("recording", "")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	registry := NewRegistry(db)
	if err := registry.Catalog().SetDefaultVariant(context.Background(), "prd-1", "var-2", time.Unix(1700000000, 0)); err != nil {
		t.Fatalf("SetDefaultVariant: %v", err)
	}

	execs := sharedRecordingConn.statements()
	if len(execs) != 2 {
		t.Fatalf("expected 2 statements, got %d: %v", len(execs), execs)
	}
	if !strings.Contains(execs[0], "is_default = FALSE") {
		t.Fatalf("sibling default must be cleared first, got %q", execs[0])
	}
	if !strings.Contains(execs[1], "is_default = TRUE") {
		t.Fatalf("new default must be set last, got %q", execs[1])
	}
}
