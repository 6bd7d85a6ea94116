// Copyright 2024 The docai Authors.
// Licensed under the Apache License, Version 2.0.
// See LICENSE file in the project root for full license information.

package db

import (
	"context"
	"database/sql"
	"log/slog"

	_ "github.com/lib/pq"
)

// NewPostgresClient produces new Client based on given connection to
// PostgreSQL database. If given database doesn't contain required tables,
// they will be created on the client initialization.
func NewPostgresClient(ctx context.Context, dbConn *sql.DB, dbName string, logger *slog.Logger) (*Client, error) {
	schemaIsAlreadySet, schemaCheckErr := isPostgresSchemaSet(ctx, dbConn, TableNames)
	if schemaCheckErr != nil {
		return nil, schemaCheckErr
	}
	if !schemaIsAlreadySet {
		stmts, err := SchemaStatements(Postgres)
		if err != nil {
			return nil, err
		}
		if setErr := execSqlStatements(ctx, dbConn, stmts); setErr != nil {
			return nil, setErr
		}
	}
	if logger == nil {
		logger = defaultLogger()
	}
	postgresDB := PostgresDB{dbConn: dbConn, dbName: dbName}
	return &Client{
		dbConn:   &postgresDB,
		dbDriver: Postgres,
		logger:   logger,
	}, nil
}

func isPostgresSchemaSet(ctx context.Context, dbConn *sql.DB, expectedTableNames []string) (bool, error) {
	query := "SELECT tablename FROM pg_tables WHERE schemaname = 'public';"
	rows, qErr := dbConn.QueryContext(ctx, query)
	if qErr != nil {
		return false, qErr
	}
	defer rows.Close()

	existingTables := make(map[string]struct{})
	for rows.Next() {
		var tablename string
		if err := rows.Scan(&tablename); err != nil {
			return false, err
		}
		existingTables[tablename] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return false, err
	}

	for _, expTableName := range expectedTableNames {
		if _, ok := existingTables[expTableName]; !ok {
			return false, nil
		}
	}
	return true, nil
}

// PostgresDB represents Client for PostgreSQL database.
type PostgresDB struct {
	dbConn *sql.DB
	dbName string
}

func (s *PostgresDB) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error) {
	return s.dbConn.BeginTx(ctx, opts)
}

func (s *PostgresDB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.dbConn.ExecContext(ctx, query, args...)
}

func (s *PostgresDB) Close() error {
	return s.dbConn.Close()
}

func (s *PostgresDB) DataSource() string {
	return s.dbName
}

func (s *PostgresDB) PingContext(ctx context.Context) error {
	return s.dbConn.PingContext(ctx)
}

func (s *PostgresDB) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.dbConn.QueryContext(ctx, query, args...)
}

func (s *PostgresDB) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return s.dbConn.QueryRowContext(ctx, query, args...)
}
