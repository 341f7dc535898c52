package db

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestRebind(t *testing.T) {
	cases := []struct {
		driver Driver
		in     string
		want   string
	}{
		{DriverPostgres, "SELECT * FROM exams WHERE id=? AND user_id=?", "SELECT * FROM exams WHERE id=$1 AND user_id=$2"},
		{DriverPostgres, "UPDATE t SET s='?' WHERE id=?", "UPDATE t SET s='?' WHERE id=$1"},
		{DriverSQLite, "SELECT 1 WHERE a=?", "SELECT 1 WHERE a=?"},
		{DriverMySQL, "SELECT 1 WHERE a=?", "SELECT 1 WHERE a=?"},
	}
	for _, c := range cases {
		if got := Rebind(c.driver, c.in); got != c.want {
			t.Errorf("Rebind(%s, %q) = %q, want %q", c.driver, c.in, got, c.want)
		}
	}
}

func TestOpen_SQLiteMemory(t *testing.T) {
	ctx := context.Background()
	dbh, err := Open(ctx, DriverSQLite, "file:connecttest?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer dbh.Close()

	// schema is idempotent
	if err := ensureSchema(ctx, dbh, DriverSQLite); err != nil {
		t.Fatalf("ensureSchema again: %v", err)
	}

	id, err := InsertID(ctx, dbh, DriverSQLite,
		`INSERT INTO users (registration,name,password_hash,role,created_at) VALUES (?,?,?,?,?)`,
		"2024001", "Ana", "x", "teacher", 1)
	if err != nil {
		t.Fatalf("InsertID: %v", err)
	}
	if id <= 0 {
		t.Fatalf("expected positive id, got %d", id)
	}
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	if _, err := Open(context.Background(), Driver("oracle"), ""); err == nil {
		t.Fatal("expected error for unsupported driver")
	}
}

func TestSplitSQL(t *testing.T) {
	got := splitSQL("CREATE TABLE a (x INT);\n\n CREATE TABLE b (y INT);  ")
	if len(got) != 2 {
		t.Fatalf("expected 2 statements, got %d: %q", len(got), got)
	}
}

func TestIsUniqueViolation(t *testing.T) {
	ctx := context.Background()
	dbh, err := Open(ctx, DriverSQLite, "file:uniquetest?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer dbh.Close()

	const ins = `INSERT INTO users (registration,name,password_hash,role,created_at) VALUES (?,?,?,?,?)`
	if _, err := dbh.ExecContext(ctx, ins, "dup", "A", "x", "teacher", 1); err != nil {
		t.Fatal(err)
	}
	_, err = dbh.ExecContext(ctx, ins, "dup", "B", "x", "teacher", 1)
	if !IsUniqueViolation(err) {
		t.Fatalf("sqlite duplicate not recognised: %v", err)
	}
	if !IsUniqueViolation(fmt.Errorf("insert user: %w", &pgconn.PgError{Code: "23505"})) {
		t.Fatal("postgres 23505 not recognised")
	}
	if !IsUniqueViolation(&mysql.MySQLError{Number: 1062}) {
		t.Fatal("mysql 1062 not recognised")
	}
	if IsUniqueViolation(errors.New("boom")) || IsUniqueViolation(nil) {
		t.Fatal("unrelated error reported as unique violation")
	}
}
