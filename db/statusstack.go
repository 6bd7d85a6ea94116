// Copyright 2024 The docai Authors.
// Licensed under the Apache License, Version 2.0.
// See LICENSE file in the project root for full license information.

package db

import (
	"context"
	"database/sql"
	"time"
)

// StatusStackEntry represent a row of data in dagrunstatusstack table.
type StatusStackEntry struct {
	RunId      string
	TaskName   string
	Position   int
	Content    string
	Function   *string
	InsertTs   string
	ReceivedTs string
}

// ReadStatusStack reads status stack entries of given DAG run ordered by
// position.
func (c *Client) ReadStatusStack(ctx context.Context, runId string) ([]StatusStackEntry, error) {
	return readStatusStack(ctx, c.dbConn, c, runId)
}

// ReadStatusStack reads status stack entries of given DAG run within the
// transaction.
func (tx *Tx) ReadStatusStack(ctx context.Context, runId string) ([]StatusStackEntry, error) {
	return readStatusStack(ctx, tx.tx, tx.client, runId)
}

// InsertStatusStackEntry inserts new status stack entry.
func (tx *Tx) InsertStatusStackEntry(ctx context.Context, e StatusStackEntry) error {
	start := time.Now()
	c := tx.client
	c.logger.Debug("Start inserting status stack entry", "runId", e.RunId,
		"taskName", e.TaskName, "position", e.Position)
	_, err := tx.tx.ExecContext(
		ctx, c.rebind(c.insertStatusStackEntryQuery()),
		e.RunId, e.TaskName, e.Position, e.Content, e.Function, e.InsertTs,
		e.ReceivedTs,
	)
	if err != nil {
		c.logger.Error("Cannot insert status stack entry", "runId", e.RunId,
			"taskName", e.TaskName, "err", err)
		return err
	}
	c.logger.Debug("Finished inserting status stack entry", "runId",
		e.RunId, "taskName", e.TaskName, "duration", time.Since(start))
	return nil
}

// UpdateStatusStackEntry updates content, function and received timestamp of
// existing status stack entry. Position and insert timestamp are kept. If
// there is no such entry, sql.ErrNoRows is returned.
func (tx *Tx) UpdateStatusStackEntry(ctx context.Context, e StatusStackEntry) error {
	start := time.Now()
	c := tx.client
	c.logger.Debug("Start updating status stack entry", "runId", e.RunId,
		"taskName", e.TaskName)
	res, err := tx.tx.ExecContext(
		ctx, c.rebind(c.updateStatusStackEntryQuery()),
		e.Content, e.Function, e.ReceivedTs, e.RunId, e.TaskName,
	)
	if err != nil {
		c.logger.Error("Cannot update status stack entry", "runId", e.RunId,
			"taskName", e.TaskName, "err", err)
		return err
	}
	rowsUpdated, _ := res.RowsAffected()
	if rowsUpdated == 0 {
		return sql.ErrNoRows
	}
	c.logger.Debug("Finished updating status stack entry", "runId", e.RunId,
		"taskName", e.TaskName, "duration", time.Since(start))
	return nil
}

// DeleteStatusStack deletes all status stack entries of given DAG run.
// Number of deleted entries is returned.
func (tx *Tx) DeleteStatusStack(ctx context.Context, runId string) (int64, error) {
	start := time.Now()
	c := tx.client
	res, err := tx.tx.ExecContext(
		ctx, c.rebind(c.deleteStatusStackQuery()), runId,
	)
	if err != nil {
		c.logger.Error("Cannot delete status stack", "runId", runId, "err",
			err)
		return 0, err
	}
	deleted, _ := res.RowsAffected()
	c.logger.Debug("Deleted status stack", "runId", runId, "deleted",
		deleted, "duration", time.Since(start))
	return deleted, nil
}

func readStatusStack(ctx context.Context, q querier, c *Client, runId string) ([]StatusStackEntry, error) {
	start := time.Now()
	c.logger.Debug("Start reading status stack", "runId", runId)
	rows, qErr := q.QueryContext(
		ctx, c.rebind(c.readStatusStackQuery()), runId,
	)
	if qErr != nil {
		c.logger.Error("Failed querying status stack", "runId", runId, "err",
			qErr)
		return nil, qErr
	}
	defer rows.Close()

	entries := make([]StatusStackEntry, 0, 8)
	for rows.Next() {
		select {
		case <-ctx.Done():
			c.logger.Warn("Context done while processing status stack rows",
				"runId", runId, "err", ctx.Err())
			return nil, ctx.Err()
		default:
		}
		entry, scanErr := parseStatusStackEntry(rows)
		if scanErr != nil {
			c.logger.Error("Failed scanning status stack record", "runId",
				runId, "err", scanErr)
			return nil, scanErr
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	c.logger.Debug("Finished reading status stack", "runId", runId,
		"entries", len(entries), "duration", time.Since(start))
	return entries, nil
}

func parseStatusStackEntry(row Scannable) (StatusStackEntry, error) {
	var e StatusStackEntry
	var function sql.NullString
	err := row.Scan(
		&e.RunId, &e.TaskName, &e.Position, &e.Content, &function,
		&e.InsertTs, &e.ReceivedTs,
	)
	if err != nil {
		return StatusStackEntry{}, err
	}
	if function.Valid {
		e.Function = &function.String
	}
	return e, nil
}

func (c *Client) readStatusStackQuery() string {
	return `
		SELECT
			RunId,
			TaskName,
			Position,
			Content,
			Function,
			InsertTs,
			ReceivedTs
		FROM
			dagrunstatusstack
		WHERE
			RunId = ?
		ORDER BY
			Position ASC
	`
}

func (c *Client) insertStatusStackEntryQuery() string {
	return `
		INSERT INTO dagrunstatusstack (
			RunId, TaskName, Position, Content, Function, InsertTs, ReceivedTs
		)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
}

func (c *Client) updateStatusStackEntryQuery() string {
	return `
	UPDATE
		dagrunstatusstack
	SET
		Content = ?,
		Function = ?,
		ReceivedTs = ?
	WHERE
			RunId = ?
		AND TaskName = ?
	`
}

func (c *Client) deleteStatusStackQuery() string {
	return `DELETE FROM dagrunstatusstack WHERE RunId = ?`
}
