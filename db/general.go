// Copyright 2024 The docai Authors.
// Licensed under the Apache License, Version 2.0.
// See LICENSE file in the project root for full license information.

package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Count returns count of rows for given table. If case of errors -1 is
// returned and error is logged.
func (c *Client) Count(ctx context.Context, table string) int {
	start := time.Now()
	c.logger.Debug("Start COUNT query", "table", table)

	query := fmt.Sprintf("SELECT COUNT(*) FROM %s", table)
	row := c.dbConn.QueryRowContext(ctx, query)
	var count int
	err := row.Scan(&count)
	if err != nil {
		c.logger.Error("Cannot execute COUNT(*)", "table", table, "err", err)
		return -1
	}
	c.logger.Debug("Finished COUNT(*) query", "table", table, "duration",
		time.Since(start))
	return count
}

// groupBy2 reads two-column rows into a map.
func groupBy2[K comparable, V any](rows *sql.Rows) (map[K]V, error) {
	result := make(map[K]V)
	for rows.Next() {
		var key K
		var value V
		if err := rows.Scan(&key, &value); err != nil {
			return nil, err
		}
		result[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
