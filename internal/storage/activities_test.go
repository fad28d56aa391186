package storage

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

type fakeExec struct {
	calls [][]any
	sql   []string
	fail  int
}

func (f *fakeExec) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.calls = append(f.calls, args)
	f.sql = append(f.sql, sql)
	if f.fail > 0 && len(f.calls) == f.fail {
		return pgconn.CommandTag{}, errors.New("boom")
	}
	return pgconn.NewCommandTag("INSERT 0 " + strconv.Itoa(len(args))), nil
}

// TestValuesClause verifies placeholder numbering across rows.
func TestValuesClause(t *testing.T) {
	if got, want := valuesClause(2, 3), "($1,$2,$3),($4,$5,$6)"; got != want {
		t.Errorf("valuesClause(2,3) = %q, want %q", got, want)
	}
	if got := valuesClause(0, 3); got != "" {
		t.Errorf("valuesClause(0,3) = %q, want empty", got)
	}
}

// TestBatchInsertChunks verifies statements stay under the bind parameter limit.
// A long recording easily exceeds 65535 parameters in a single INSERT.
func TestBatchInsertChunks(t *testing.T) {
	const cols = 12
	n := maxParams/cols*2 + 7

	ex := &fakeExec{}
	total, err := batchInsert(context.Background(), ex, "INSERT INTO t VALUES ", cols, n, func(i int) []any {
		row := make([]any, cols)
		row[0] = i
		return row
	})
	if err != nil {
		t.Fatalf("batchInsert: %v", err)
	}
	if len(ex.calls) != 3 {
		t.Fatalf("statements = %d, want 3", len(ex.calls))
	}
	for i, args := range ex.calls {
		if len(args) > maxParams {
			t.Errorf("statement %d has %d params", i, len(args))
		}
		if !strings.HasSuffix(ex.sql[i], "ON CONFLICT DO NOTHING") {
			t.Errorf("statement %d lacks conflict clause", i)
		}
	}
	if got := len(ex.calls[2]); got != 7*cols {
		t.Errorf("last statement params = %d, want %d", got, 7*cols)
	}
	// The fake reports one affected row per parameter.
	if total != int64(n*cols) {
		t.Errorf("total = %d, want %d", total, n*cols)
	}
	if first := ex.calls[1][0]; first != maxParams/cols {
		t.Errorf("second statement starts at row %v, want %d", first, maxParams/cols)
	}
}

// TestBatchInsertEmpty verifies no statement is issued for zero rows.
func TestBatchInsertEmpty(t *testing.T) {
	ex := &fakeExec{}
	total, err := batchInsert(context.Background(), ex, "INSERT ", 3, 0, nil)
	if err != nil || total != 0 || len(ex.calls) != 0 {
		t.Errorf("got total=%d err=%v calls=%d, want 0/nil/0", total, err, len(ex.calls))
	}
}

// TestBatchInsertError verifies the failing chunk aborts the batch.
func TestBatchInsertError(t *testing.T) {
	ex := &fakeExec{fail: 1}
	_, err := batchInsert(context.Background(), ex, "INSERT ", 2, 3, func(int) []any { return []any{1, 2} })
	if err == nil {
		t.Fatal("expected error")
	}
	if len(ex.calls) != 1 {
		t.Errorf("statements = %d, want 1", len(ex.calls))
	}
}
