package db

import (
	"context"
	"testing"
)

func TestGroupBy2EmptyTable(t *testing.T) {
	c, err := NewSqliteInMemoryClient(testLogger())
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	ctx := context.Background()

	res, qErr := c.ReadDagRunsAggByStatus(ctx, "acme")
	if qErr != nil {
		t.Errorf("Error while groupBy2 on empty table: %s", qErr.Error())
	}
	if len(res) != 0 {
		t.Errorf("Expected 0 results, got: %d", len(res))
	}
}

func TestCountOnMissingTable(t *testing.T) {
	c, err := NewSqliteInMemoryClient(testLogger())
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	if cnt := c.Count(context.Background(), "nosuchtable"); cnt != -1 {
		t.Errorf("Expected -1 for missing table, got: %d", cnt)
	}
}
