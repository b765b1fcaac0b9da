package migrations

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	chstore "onchain-analytics/internal/storage/clickhouse"
)

// RunClickhouseMigrations creates the DSN's database when missing and applies
// every embedded statement. ClickHouse migrations must be idempotent
// (IF NOT EXISTS) since they are re-applied on every run.
// The returned connection targets the DSN's database.
func RunClickhouseMigrations(ctx context.Context, dsn string) (*chstore.Conn, error) {
	migrations, err := load(ClickhouseFS, "clickhouse")
	if err != nil {
		return nil, err
	}
	dbName, err := databaseFromDSN(dsn)
	if err != nil {
		return nil, err
	}
	if err := createDatabase(ctx, dsn, dbName); err != nil {
		return nil, err
	}

	conn, err := chstore.NewConnWithDatabase(ctx, dsn, dbName)
	if err != nil {
		return nil, fmt.Errorf("connect clickhouse %s: %w", dbName, err)
	}
	for _, m := range migrations {
		if err := applyClickhouse(ctx, conn, m); err != nil {
			conn.Close()
			return nil, err
		}
	}
	return conn, nil
}

func createDatabase(ctx context.Context, dsn, name string) error {
	admin, err := chstore.NewConnWithDatabase(ctx, dsn, "")
	if err != nil {
		return fmt.Errorf("connect clickhouse admin: %w", err)
	}
	defer admin.Close()

	if err := admin.Exec(ctx, fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", name)); err != nil {
		return fmt.Errorf("create database %s: %w", name, err)
	}
	return nil
}

// applyClickhouse runs a file statement by statement; the driver rejects multi-statement Exec.
func applyClickhouse(ctx context.Context, conn *chstore.Conn, m migration) error {
	if err := validateNoSemicolonInStrings(m.SQL); err != nil {
		return fmt.Errorf("validate migration %s: %w", m.Version, err)
	}
	for i, stmt := range splitStatements(m.SQL) {
		if err := conn.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply migration %s statement %d: %w", m.Version, i+1, err)
		}
	}
	return nil
}

// splitStatements splits on semicolons after dropping blank and -- comment lines.
// It does not understand string literals or block comments; migrations must
// keep semicolons out of both, which validateNoSemicolonInStrings enforces for literals.
func splitStatements(input string) []string {
	var kept []string
	for line := range strings.Lines(input) {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		kept = append(kept, line)
	}

	var stmts []string
	for part := range strings.SplitSeq(strings.Join(kept, ""), ";") {
		if stmt := strings.TrimSpace(part); stmt != "" {
			stmts = append(stmts, stmt)
		}
	}
	return stmts
}

// validateNoSemicolonInStrings rejects SQL with a semicolon inside a
// single-quoted literal. A doubled quote ('') is an escaped quote.
func validateNoSemicolonInStrings(sql string) error {
	inString := false
	for i := 0; i < len(sql); i++ {
		switch sql[i] {
		case '\'':
			if inString && i+1 < len(sql) && sql[i+1] == '\'' {
				i++
				continue
			}
			inString = !inString
		case ';':
			if inString {
				return fmt.Errorf("semicolon inside string literal at offset %d", i)
			}
		}
	}
	return nil
}

func databaseFromDSN(dsn string) (string, error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return "", fmt.Errorf("parse clickhouse dsn: %w", err)
	}
	db := strings.TrimPrefix(u.Path, "/")
	if db == "" {
		return "", fmt.Errorf("clickhouse dsn %q names no database", u.Redacted())
	}
	return db, nil
}
