package datasource

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
)

func newTestDataSource(t *testing.T) *SQLiteDataSource {
	t.Helper()
	ds, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { ds.Close() })
	if err := ds.CreateSchema(context.Background()); err != nil {
		t.Fatalf("CreateSchema() error = %v", err)
	}
	return ds
}

func TestU_CreateSchema_IsIdempotent(t *testing.T) {
	ds := newTestDataSource(t)
	if err := ds.CreateSchema(context.Background()); err != nil {
		t.Fatalf("second CreateSchema() error = %v", err)
	}
}

func TestU_ConnReturnConn_RoundTrips(t *testing.T) {
	ds := newTestDataSource(t)
	ctx := context.Background()

	conn, err := ds.Conn(ctx)
	if err != nil {
		t.Fatalf("Conn() error = %v", err)
	}
	if err := conn.PingContext(ctx); err != nil {
		t.Fatalf("connection is not usable: %v", err)
	}
	if err := ds.ReturnConn(conn); err != nil {
		t.Fatalf("ReturnConn() error = %v", err)
	}
	if err := conn.PingContext(ctx); err == nil {
		t.Error("connection should be closed after ReturnConn()")
	}
}

func TestU_GetMax_EmptyTableReturnsZero(t *testing.T) {
	ds := newTestDataSource(t)
	ctx := context.Background()
	conn, err := ds.Conn(ctx)
	if err != nil {
		t.Fatalf("Conn() error = %v", err)
	}
	defer ds.ReturnConn(conn)

	max, err := ds.GetMax(ctx, conn, "CERT", "ID")
	if err != nil {
		t.Fatalf("GetMax() error = %v", err)
	}
	if max != 0 {
		t.Errorf("GetMax() on empty table = %d, want 0", max)
	}
}

func TestU_GetMax_ReflectsInsertedRows(t *testing.T) {
	ds := newTestDataSource(t)
	ctx := context.Background()
	conn, err := ds.Conn(ctx)
	if err != nil {
		t.Fatalf("Conn() error = %v", err)
	}
	defer ds.ReturnConn(conn)

	if _, err := ds.Exec(ctx, conn, "INSERT INTO CERT (ID,IID,SN,REV,LUPDATE) VALUES (5,1,'aa',0,0)"); err != nil {
		t.Fatalf("Exec(insert) error = %v", err)
	}

	max, err := ds.GetMax(ctx, conn, "CERT", "ID")
	if err != nil {
		t.Fatalf("GetMax() error = %v", err)
	}
	if max != 5 {
		t.Errorf("GetMax() = %d, want 5", max)
	}
}

func TestU_Prepare_ExecutesAndTranslatesErrors(t *testing.T) {
	ds := newTestDataSource(t)
	ctx := context.Background()
	conn, err := ds.Conn(ctx)
	if err != nil {
		t.Fatalf("Conn() error = %v", err)
	}
	defer ds.ReturnConn(conn)

	stmt, err := ds.Prepare(ctx, conn, "INSERT INTO CERT (ID,IID,SN,REV,LUPDATE) VALUES (?,?,?,?,?)")
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	defer stmt.Close()

	if _, err := stmt.ExecContext(ctx, 1, 1, "aa", 0, 0); err != nil {
		t.Fatalf("stmt.ExecContext() error = %v", err)
	}

	_, err = ds.Prepare(ctx, conn, "INSERT INTO NO_SUCH_TABLE (X) VALUES (?)")
	if err == nil {
		t.Fatal("Prepare() against a nonexistent table should fail")
	}
	var se *StoreError
	if !errors.As(err, &se) {
		t.Errorf("err = %v (%T), want *StoreError", err, err)
	}
}

func TestU_BuildSelectFirst_AppendsLimit(t *testing.T) {
	ds := newTestDataSource(t)
	got := ds.BuildSelectFirst(1, "ID FROM CERT WHERE IID=? AND SN=?")
	want := "SELECT ID FROM CERT WHERE IID=? AND SN=? LIMIT 1"
	if got != want {
		t.Errorf("BuildSelectFirst() = %q, want %q", got, want)
	}
}

func TestU_BuildSelectFirst_IsQueryable(t *testing.T) {
	ds := newTestDataSource(t)
	ctx := context.Background()
	conn, err := ds.Conn(ctx)
	if err != nil {
		t.Fatalf("Conn() error = %v", err)
	}
	defer ds.ReturnConn(conn)

	if _, err := ds.Exec(ctx, conn, "INSERT INTO CERT (ID,IID,SN,REV,LUPDATE) VALUES (1,1,'aa',0,0)"); err != nil {
		t.Fatalf("Exec(insert) error = %v", err)
	}

	query := ds.BuildSelectFirst(1, "ID FROM CERT WHERE IID=? AND SN=?")
	stmt, err := ds.Prepare(ctx, conn, query)
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	defer stmt.Close()

	var id int64
	if err := stmt.QueryRowContext(ctx, 1, "aa").Scan(&id); err != nil {
		t.Fatalf("QueryRowContext() error = %v", err)
	}
	if id != 1 {
		t.Errorf("id = %d, want 1", id)
	}

	err = stmt.QueryRowContext(ctx, 1, "bb").Scan(&id)
	if !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("err = %v, want sql.ErrNoRows", err)
	}
}

func TestU_Exec_ReturnsRowsAffected(t *testing.T) {
	ds := newTestDataSource(t)
	ctx := context.Background()
	conn, err := ds.Conn(ctx)
	if err != nil {
		t.Fatalf("Conn() error = %v", err)
	}
	defer ds.ReturnConn(conn)

	n, err := ds.Exec(ctx, conn, "INSERT INTO CERT (ID,IID,SN,REV,LUPDATE) VALUES (1,1,'aa',0,0)")
	if err != nil {
		t.Fatalf("Exec() error = %v", err)
	}
	if n != 1 {
		t.Errorf("rows affected = %d, want 1", n)
	}

	n, err = ds.Exec(ctx, conn, "DELETE FROM CERT WHERE IID=1")
	if err != nil {
		t.Fatalf("Exec(delete) error = %v", err)
	}
	if n != 1 {
		t.Errorf("rows affected = %d, want 1", n)
	}
}

func TestU_Translate_WrapsNonNilErrors(t *testing.T) {
	ds := newTestDataSource(t)
	if got := ds.Translate("SELECT 1", nil); got != nil {
		t.Errorf("Translate(nil) = %v, want nil", got)
	}

	wrapped := ds.Translate("SELECT 1", sql.ErrNoRows)
	var se *StoreError
	if !errors.As(wrapped, &se) {
		t.Fatalf("Translate() = %v (%T), want *StoreError", wrapped, wrapped)
	}
	if !errors.Is(wrapped, sql.ErrNoRows) {
		t.Error("Translate() result should unwrap to the original error")
	}
}
