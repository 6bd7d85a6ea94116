// Copyright 2024 The docai Authors.
// Licensed under the Apache License, Version 2.0.
// See LICENSE file in the project root for full license information.

package db

import (
	"fmt"
)

// TableNames is a list of tracker database table names.
var TableNames []string = []string{
	"dagruns",
	"dagrunstatusstack",
}

// SchemaStatements returns a list of SQL statements that setups new instance
// of the tracker database. It can differ a little bit between SQL databases,
// so exact list of statements are prepared based on given database driver
// name. If given database driver is not supported, then non-nil error is
// returned. All statements are idempotent.
func SchemaStatements(dbDriver string) ([]string, error) {
	switch dbDriver {
	case Sqlite, "sqlite3":
		return []string{
			sqliteCreateDagrunsTable(),
			createDagrunsOwnerIndex(),
			createDagrunsStatusIndex(),
			sqliteCreateDagrunStatusStackTable(),
		}, nil
	case Postgres:
		return []string{
			postgresCreateDagrunsTable(),
			createDagrunsOwnerIndex(),
			createDagrunsStatusIndex(),
			postgresCreateDagrunStatusStackTable(),
		}, nil
	}
	return []string{}, fmt.Errorf("there is no schema for %s driver defined",
		dbDriver)
}

func sqliteCreateDagrunsTable() string {
	return `
-- Table dagruns stores DAG runs and their aggregate status. Seq gives
-- creation order, RunId is the public identifier.
CREATE TABLE IF NOT EXISTS dagruns (
    Seq INTEGER PRIMARY KEY AUTOINCREMENT,  -- Creation order
    RunId TEXT NOT NULL UNIQUE,              -- DAG run UUID
    Tenant TEXT NOT NULL,                    -- Tenant owning the run
    OwnerId TEXT NOT NULL,                   -- User (or other owner) ID
    OwnerType TEXT NOT NULL,                 -- Owner type, like "user"
    DagName TEXT NOT NULL,                   -- Normalized DAG name
    Status TEXT NOT NULL,                    -- Aggregate DAG run status
    Accepted INTEGER NOT NULL DEFAULT 0,     -- 1 when executor accepted the run
    Params TEXT NOT NULL,                    -- DAG run parameters as JSON
    ChatbotId TEXT NULL,                     -- Optional related chatbot
    CreateTs TEXT NOT NULL,                  -- Creation timestamp
    UpdateTs TEXT NOT NULL                   -- Latest update timestamp
);
`
}

func postgresCreateDagrunsTable() string {
	return `
CREATE TABLE IF NOT EXISTS dagruns (
    Seq BIGSERIAL PRIMARY KEY,
    RunId TEXT NOT NULL UNIQUE,
    Tenant TEXT NOT NULL,
    OwnerId TEXT NOT NULL,
    OwnerType TEXT NOT NULL,
    DagName TEXT NOT NULL,
    Status TEXT NOT NULL,
    Accepted INTEGER NOT NULL DEFAULT 0,
    Params TEXT NOT NULL,
    ChatbotId TEXT NULL,
    CreateTs TEXT NOT NULL,
    UpdateTs TEXT NOT NULL
);
`
}

func createDagrunsOwnerIndex() string {
	return `CREATE INDEX IF NOT EXISTS dagruns_tenant_owner ON dagruns (Tenant, OwnerId, Seq);`
}

func createDagrunsStatusIndex() string {
	return `CREATE INDEX IF NOT EXISTS dagruns_tenant_status ON dagruns (Tenant, Status);`
}

func sqliteCreateDagrunStatusStackTable() string {
	return `
-- Table dagrunstatusstack stores the latest reported status of each task of a
-- DAG run. Position keeps order of the first report.
CREATE TABLE IF NOT EXISTS dagrunstatusstack (
    RunId TEXT NOT NULL,        -- DAG run UUID
    TaskName TEXT NOT NULL,     -- Task name
    Position INTEGER NOT NULL,  -- Position in the status stack
    Content TEXT NOT NULL,      -- Task status content as JSON
    Function TEXT NULL,         -- Optional function tag
    InsertTs TEXT NOT NULL,     -- Timestamp of the first report
    ReceivedTs TEXT NOT NULL,   -- Timestamp of the latest report

    PRIMARY KEY (RunId, TaskName)
);
`
}

func postgresCreateDagrunStatusStackTable() string {
	return `
CREATE TABLE IF NOT EXISTS dagrunstatusstack (
    RunId TEXT NOT NULL,
    TaskName TEXT NOT NULL,
    Position INTEGER NOT NULL,
    Content TEXT NOT NULL,
    Function TEXT NULL,
    InsertTs TEXT NOT NULL,
    ReceivedTs TEXT NOT NULL,

    PRIMARY KEY (RunId, TaskName)
);
`
}
