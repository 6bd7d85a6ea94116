// Copyright 2024 The docai Authors.
// Licensed under the Apache License, Version 2.0.
// See LICENSE file in the project root for full license information.

/*
Package db contains all communication between the DAG run tracker and the
database.

# Introduction

Client exposes methods for reading and writing DAG runs and their status
stacks. Operations which need to read and modify a DAG run atomically are
executed within a transaction via Client.RunInTx and methods of Tx.

Queries are written once with '?' placeholders and rebound for the target
database.

# Supported databases

  - SQLite - used as the default database. It's also used as in-memory database
    and database on /tmp files for unit and integration tests.
  - Postgres
*/
package db

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"
)

// Supported database drivers.
const (
	Sqlite   = "sqlite"
	Postgres = "postgres"
)

// DB defines a set of operations required from a database. Most of methods are
// identical with standard `*sql.DB` type.
type DB interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	Close() error
	DataSource() string
	PingContext(ctx context.Context) error
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// querier is satisfied by both DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Scannable is satisfied by *sql.Row and *sql.Rows.
type Scannable interface {
	Scan(dest ...any) error
}

// Client represents the main database client.
type Client struct {
	dbConn   DB
	dbDriver string
	logger   *slog.Logger
}

// NewClient creates Client for already opened database connection. Schema is
// not created, use it for databases managed elsewhere or in tests with
// sqlmock. Driver should be either Sqlite or Postgres.
func NewClient(dbConn *sql.DB, dbDriver string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = defaultLogger()
	}
	var conn DB
	if dbDriver == Postgres {
		conn = &PostgresDB{dbConn: dbConn}
	} else {
		conn = &SqliteDB{dbConn: dbConn}
	}
	return &Client{dbConn: conn, dbDriver: dbDriver, logger: logger}
}

// Driver returns name of the database driver.
func (c *Client) Driver() string {
	return c.dbDriver
}

// DataSource returns database data source, file path for SQLite.
func (c *Client) DataSource() string {
	return c.dbConn.DataSource()
}

// Ping checks database connection.
func (c *Client) Ping(ctx context.Context) error {
	return c.dbConn.PingContext(ctx)
}

// Close closes the database connection.
func (c *Client) Close() error {
	return c.dbConn.Close()
}

// Tx is a database transaction opened by Client.RunInTx.
type Tx struct {
	tx     *sql.Tx
	client *Client
}

// RunInTx runs given function within a database transaction. When the
// function returns an error or panics, the transaction is rolled back,
// otherwise it's committed. The function must not use Client methods, only
// Tx, because SQLite clients have a single connection.
func (c *Client) RunInTx(ctx context.Context, fn func(ctx context.Context, tx *Tx) error) (err error) {
	start := time.Now()
	sqlTx, beginErr := c.dbConn.BeginTx(ctx, nil)
	if beginErr != nil {
		c.logger.Error("Cannot begin transaction", "err", beginErr)
		return fmt.Errorf("cannot begin transaction: %w", beginErr)
	}
	defer func() {
		if r := recover(); r != nil {
			_ = sqlTx.Rollback()
			panic(r)
		}
	}()

	if fnErr := fn(ctx, &Tx{tx: sqlTx, client: c}); fnErr != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil {
			c.logger.Error("Cannot rollback transaction", "err", rbErr,
				"cause", fnErr)
		}
		return fnErr
	}
	if commitErr := sqlTx.Commit(); commitErr != nil {
		c.logger.Error("Cannot commit transaction", "err", commitErr)
		return fmt.Errorf("cannot commit transaction: %w", commitErr)
	}
	c.logger.Debug("Transaction committed", "duration", time.Since(start))
	return nil
}

// rebind replaces '?' placeholders with '$n' for Postgres.
func (c *Client) rebind(query string) string {
	if c.dbDriver != Postgres {
		return query
	}
	var sb strings.Builder
	sb.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(n))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

func execSqlStatements(ctx context.Context, db *sql.DB, stmts []string) error {
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("cannot execute schema statement: %w", err)
		}
	}
	return nil
}

func defaultLogger() *slog.Logger {
	opts := slog.HandlerOptions{Level: slog.LevelWarn}
	return slog.New(slog.NewTextHandler(os.Stdout, &opts))
}

// CleanUpSqliteTmp deletes SQLite database source file if all tests in the
// scope passed. In at least one test failed, database will not be deleted, to
// enable futher debugging. Even though this function takes generic *Client,
// it's mainly meant for SQLite-based database clients which are used in
// testing.
func CleanUpSqliteTmp(c *Client, t *testing.T) {
	if closeErr := c.dbConn.Close(); closeErr != nil {
		t.Errorf("Error while closing connection to DB: %s", closeErr.Error())
	}
	if c.dbDriver != Sqlite || c.dbConn.DataSource() == inMemoryDataSource {
		return
	}
	if t.Failed() {
		t.Logf("Database was not deleted. Please check: sqlite3 %s",
			c.dbConn.DataSource())
		return
	}
	// tests passed, we can proceed to remove DB file
	for _, suffix := range []string{"", "-wal", "-shm"} {
		path := c.dbConn.DataSource() + suffix
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			t.Errorf("Cannot remove database source file %s: %s", path,
				err.Error())
		}
	}
}
