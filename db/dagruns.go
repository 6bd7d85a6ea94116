// Copyright 2024 The docai Authors.
// Licensed under the Apache License, Version 2.0.
// See LICENSE file in the project root for full license information.

package db

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// DagRun represent a row of data in dagruns table.
type DagRun struct {
	Seq       int64
	RunId     string
	Tenant    string
	OwnerId   string
	OwnerType string
	DagName   string
	Status    string
	Accepted  bool
	Params    string
	ChatbotId *string
	CreateTs  string
	UpdateTs  string
}

// InsertDagRun inserts new row into dagruns table. Seq of just inserted DAG
// run is returned or -1 in case when error is not nil.
func (c *Client) InsertDagRun(ctx context.Context, dr DagRun) (int64, error) {
	start := time.Now()
	c.logger.Debug("Start inserting dag run", "runId", dr.RunId, "tenant",
		dr.Tenant, "dagName", dr.DagName)
	var seq int64
	err := c.dbConn.QueryRowContext(
		ctx, c.rebind(c.insertDagRunQuery()),
		dr.RunId, dr.Tenant, dr.OwnerId, dr.OwnerType, dr.DagName, dr.Status,
		boolToInt(dr.Accepted), dr.Params, dr.ChatbotId, dr.CreateTs,
		dr.UpdateTs,
	).Scan(&seq)
	if err != nil {
		c.logger.Error("Cannot insert new dag run", "runId", dr.RunId,
			"tenant", dr.Tenant, "err", err)
		return -1, err
	}
	c.logger.Debug("Finished inserting dag run", "runId", dr.RunId, "seq",
		seq, "duration", time.Since(start))
	return seq, nil
}

// ReadDagRun reads DAG run of given id within given tenant. If there is no
// such DAG run, sql.ErrNoRows is returned.
func (c *Client) ReadDagRun(ctx context.Context, tenant, runId string) (DagRun, error) {
	return readDagRun(ctx, c.dbConn, c, c.readDagRunQuery(""), tenant, runId)
}

// ReadDagRunsByOwner reads topN latest DAG runs of given owner within given
// tenant, the most recent first. When topN is not positive, all DAG runs are
// read.
func (c *Client) ReadDagRunsByOwner(ctx context.Context, tenant, ownerId string, topN int) ([]DagRun, error) {
	start := time.Now()
	c.logger.Debug("Start reading dag runs by owner", "tenant", tenant,
		"ownerId", ownerId, "topN", topN)
	capacity := topN
	if topN <= 0 {
		capacity = 100
	}
	dagruns := make([]DagRun, 0, capacity)
	args := []any{tenant, ownerId}
	if topN > 0 {
		args = append(args, topN)
	}
	rows, qErr := c.dbConn.QueryContext(
		ctx, c.rebind(c.readDagRunsByOwnerQuery(topN)), args...,
	)
	if qErr != nil {
		c.logger.Error("Failed querying dag runs by owner", "tenant", tenant,
			"ownerId", ownerId, "err", qErr)
		return nil, qErr
	}
	defer rows.Close()

	for rows.Next() {
		select {
		case <-ctx.Done():
			c.logger.Warn("Context done while processing rows", "tenant",
				tenant, "ownerId", ownerId, "err", ctx.Err())
			return nil, ctx.Err()
		default:
		}
		dagrun, scanErr := parseDagRun(rows)
		if scanErr != nil {
			c.logger.Error("Failed scanning dagrun record", "tenant", tenant,
				"err", scanErr)
			return nil, scanErr
		}
		dagruns = append(dagruns, dagrun)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	c.logger.Debug("Finished reading dag runs by owner", "tenant", tenant,
		"ownerId", ownerId, "count", len(dagruns), "duration",
		time.Since(start))
	return dagruns, nil
}

// ReadDagRunsAggByStatus counts DAG runs of given tenant by status.
func (c *Client) ReadDagRunsAggByStatus(ctx context.Context, tenant string) (map[string]int, error) {
	start := time.Now()
	c.logger.Debug("Start reading dag runs aggregated by status", "tenant",
		tenant)
	rows, qErr := c.dbConn.QueryContext(
		ctx, c.rebind(c.readDagRunsAggByStatusQuery()), tenant,
	)
	if qErr != nil {
		c.logger.Error("Failed querying dag runs by status", "tenant", tenant,
			"err", qErr)
		return nil, qErr
	}
	defer rows.Close()

	result, err := groupBy2[string, int](rows)
	if err != nil {
		c.logger.Error("Failed scanning dag runs by status", "tenant", tenant,
			"err", err)
		return nil, err
	}
	c.logger.Debug("Finished reading dag runs aggregated by status",
		"tenant", tenant, "duration", time.Since(start))
	return result, nil
}

// ReadDagRun reads DAG run within the transaction. On Postgres the row is
// share locked until the end of the transaction, so concurrent updates of
// the DAG run wait and other reads in the same transaction see it unchanged.
func (tx *Tx) ReadDagRun(ctx context.Context, tenant, runId string) (DagRun, error) {
	c := tx.client
	return readDagRun(ctx, tx.tx, c, c.readDagRunQuery(c.rowLock("FOR SHARE")),
		tenant, runId)
}

// ReadDagRunForUpdate reads DAG run and locks its row until the end of the
// transaction on databases which support row locks. SQLite clients are
// serialized on a single connection, so no extra locking is needed there.
func (tx *Tx) ReadDagRunForUpdate(ctx context.Context, tenant, runId string) (DagRun, error) {
	c := tx.client
	return readDagRun(ctx, tx.tx, c, c.readDagRunQuery(c.rowLock("FOR UPDATE")),
		tenant, runId)
}

// rowLock returns given locking clause for databases supporting row locks and
// empty string otherwise.
func (c *Client) rowLock(clause string) string {
	if c.dbDriver != Postgres {
		return ""
	}
	return clause
}

// UpdateDagRunState updates status, accepted flag and update timestamp of
// given DAG run. If there is no such DAG run, sql.ErrNoRows is returned.
func (tx *Tx) UpdateDagRunState(
	ctx context.Context, tenant, runId, status string, accepted bool,
	updateTs string,
) error {
	start := time.Now()
	c := tx.client
	c.logger.Debug("Start updating dag run state", "runId", runId, "status",
		status, "accepted", accepted)
	res, err := tx.tx.ExecContext(
		ctx, c.rebind(c.updateDagRunStateQuery()),
		status, boolToInt(accepted), updateTs, tenant, runId,
	)
	if err != nil {
		c.logger.Error("Cannot update dag run state", "runId", runId, "err",
			err)
		return err
	}
	rowsUpdated, _ := res.RowsAffected()
	if rowsUpdated == 0 {
		return sql.ErrNoRows
	}
	if rowsUpdated > 1 {
		return errors.New("too many rows updated")
	}
	c.logger.Debug("Finished updating dag run state", "runId", runId,
		"status", status, "duration", time.Since(start))
	return nil
}

func readDagRun(ctx context.Context, q querier, c *Client, query, tenant, runId string) (DagRun, error) {
	start := time.Now()
	c.logger.Debug("Start reading dag run", "tenant", tenant, "runId", runId)
	row := q.QueryRowContext(ctx, c.rebind(query), tenant, runId)
	dagrun, err := parseDagRun(row)
	if err == sql.ErrNoRows {
		return DagRun{}, err
	}
	if err != nil {
		c.logger.Error("Failed reading dag run", "tenant", tenant, "runId",
			runId, "err", err)
		return DagRun{}, err
	}
	c.logger.Debug("Finished reading dag run", "runId", runId, "duration",
		time.Since(start))
	return dagrun, nil
}

func parseDagRun(row Scannable) (DagRun, error) {
	var dr DagRun
	var accepted int
	var chatbotId sql.NullString
	err := row.Scan(
		&dr.Seq, &dr.RunId, &dr.Tenant, &dr.OwnerId, &dr.OwnerType,
		&dr.DagName, &dr.Status, &accepted, &dr.Params, &chatbotId,
		&dr.CreateTs, &dr.UpdateTs,
	)
	if err != nil {
		return DagRun{}, err
	}
	dr.Accepted = accepted != 0
	if chatbotId.Valid {
		dr.ChatbotId = &chatbotId.String
	}
	return dr, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

const dagRunColumns = `
			Seq,
			RunId,
			Tenant,
			OwnerId,
			OwnerType,
			DagName,
			Status,
			Accepted,
			Params,
			ChatbotId,
			CreateTs,
			UpdateTs
`

func (c *Client) insertDagRunQuery() string {
	return `
		INSERT INTO dagruns (
			RunId, Tenant, OwnerId, OwnerType, DagName, Status, Accepted,
			Params, ChatbotId, CreateTs, UpdateTs
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING Seq
	`
}

func (c *Client) readDagRunQuery(lockClause string) string {
	query := `
		SELECT` + dagRunColumns + `
		FROM
			dagruns
		WHERE
				Tenant = ?
			AND RunId = ?
	`
	if lockClause != "" {
		query += " " + lockClause
	}
	return query
}

func (c *Client) readDagRunsByOwnerQuery(topN int) string {
	query := `
		SELECT` + dagRunColumns + `
		FROM
			dagruns
		WHERE
				Tenant = ?
			AND OwnerId = ?
		ORDER BY
			Seq DESC
	`
	if topN > 0 {
		query += " LIMIT ?"
	}
	return query
}

func (c *Client) readDagRunsAggByStatusQuery() string {
	return `
		SELECT
			Status,
			COUNT(*) AS CNT
		FROM
			dagruns
		WHERE
			Tenant = ?
		GROUP BY
			Status
	`
}

func (c *Client) updateDagRunStateQuery() string {
	return `
	UPDATE
		dagruns
	SET
		Status = ?,
		Accepted = ?,
		UpdateTs = ?
	WHERE
			Tenant = ?
		AND RunId = ?
	`
}
