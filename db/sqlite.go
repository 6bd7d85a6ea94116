// Copyright 2024 The docai Authors.
// Licensed under the Apache License, Version 2.0.
// See LICENSE file in the project root for full license information.

package db

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const inMemoryDataSource = "IN_MEMORY"

// NewSqliteClient creates Client for SQLite database stored in given file.
// Schema is created, if it doesn't exist yet. SQLite allows single writer at
// the time, so the client uses single connection and database operations are
// serialized. When logger is nil, slog with WARN level is used.
func NewSqliteClient(dbFilePath string, logger *slog.Logger) (*Client, error) {
	dsn := fmt.Sprintf(
		"file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)",
		dbFilePath,
	)
	dbConn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	dbConn.SetMaxOpenConns(1)
	if schemaErr := setupSqliteSchema(dbConn); schemaErr != nil {
		dbConn.Close()
		return nil, schemaErr
	}
	if logger == nil {
		logger = defaultLogger()
	}
	sqliteDB := SqliteDB{dbConn: dbConn, dbFilePath: dbFilePath}
	return &Client{dbConn: &sqliteDB, dbDriver: Sqlite, logger: logger}, nil
}

// NewSqliteInMemoryClient creates Client for in-memory SQLite database with
// the schema. Data is lost, when the client is closed.
func NewSqliteInMemoryClient(logger *slog.Logger) (*Client, error) {
	dbConn, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, err
	}
	// Each connection to :memory: is a separate database.
	dbConn.SetMaxOpenConns(1)
	dbConn.SetConnMaxLifetime(0)
	dbConn.SetConnMaxIdleTime(0)
	if schemaErr := setupSqliteSchema(dbConn); schemaErr != nil {
		dbConn.Close()
		return nil, schemaErr
	}
	if logger == nil {
		logger = defaultLogger()
	}
	sqliteDB := SqliteDB{dbConn: dbConn, dbFilePath: inMemoryDataSource}
	return &Client{dbConn: &sqliteDB, dbDriver: Sqlite, logger: logger}, nil
}

// NewSqliteTmpClient creates Client for SQLite database in a new file in
// temporary directory. It's meant for tests, use CleanUpSqliteTmp to remove
// the file afterwards.
func NewSqliteTmpClient(logger *slog.Logger) (*Client, error) {
	path := filepath.Join(os.TempDir(), "dagruns_"+uuid.NewString()+".db")
	return NewSqliteClient(path, logger)
}

func setupSqliteSchema(dbConn *sql.DB) error {
	stmts, err := SchemaStatements(Sqlite)
	if err != nil {
		return err
	}
	return execSqlStatements(context.Background(), dbConn, stmts)
}

// SqliteDB wraps SQLite database connection.
type SqliteDB struct {
	dbConn     *sql.DB
	dbFilePath string
}

func (s *SqliteDB) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error) {
	return s.dbConn.BeginTx(ctx, opts)
}

func (s *SqliteDB) ExecContext(
	ctx context.Context, query string, args ...any,
) (sql.Result, error) {
	return s.dbConn.ExecContext(ctx, query, args...)
}

func (s *SqliteDB) Close() error {
	return s.dbConn.Close()
}

func (s *SqliteDB) DataSource() string {
	return s.dbFilePath
}

func (s *SqliteDB) PingContext(ctx context.Context) error {
	return s.dbConn.PingContext(ctx)
}

func (s *SqliteDB) QueryContext(
	ctx context.Context, query string, args ...any,
) (*sql.Rows, error) {
	return s.dbConn.QueryContext(ctx, query, args...)
}

func (s *SqliteDB) QueryRowContext(
	ctx context.Context, query string, args ...any,
) *sql.Row {
	return s.dbConn.QueryRowContext(ctx, query, args...)
}
