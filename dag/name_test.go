// Copyright 2024 The docai Authors.
// Licensed under the Apache License, Version 2.0.
// See LICENSE file in the project root for full license information.

package dag

import (
	"errors"
	"strings"
	"testing"
)

func TestNormalizeName(t *testing.T) {
	inputs := []struct {
		name     string
		expected Id
	}{
		{"etl_pipeline", "etl_pipeline"},
		{"ETL Pipeline", "etl_pipeline"},
		{"  ETL   Pipeline  ", "etl_pipeline"},
		{" invoice-ocr.v2 ", "invoice_ocr_v2"},
		{"__Daily__Report__", "daily_report"},
		{"reports/monthly", "reports_monthly"},
		{"a", "a"},
		{"x1_2", "x1_2"},
	}
	for _, input := range inputs {
		id, err := NormalizeName(input.name)
		if err != nil {
			t.Errorf("Unexpected error for %q: %s", input.name, err.Error())
			continue
		}
		if id != input.expected {
			t.Errorf("Expected %q for %q, got: %q", input.expected,
				input.name, id)
		}
	}
}

func TestNormalizeNameIsIdempotent(t *testing.T) {
	names := []string{"ETL Pipeline", "a-b-c", "Doc.Summary v3"}
	for _, name := range names {
		first, err := NormalizeName(name)
		if err != nil {
			t.Fatalf("Unexpected error for %q: %s", name, err.Error())
		}
		second, err := NormalizeName(string(first))
		if err != nil {
			t.Fatalf("Unexpected error for %q: %s", first, err.Error())
		}
		if first != second {
			t.Errorf("Expected normalization to be idempotent: %q -> %q",
				first, second)
		}
	}
}

func TestNormalizeNameInvalid(t *testing.T) {
	inputs := []struct {
		name string
		err  error
	}{
		{"", ErrEmptyName},
		{"   ", ErrEmptyName},
		{"---", ErrInvalidName},
		{"1st_pipeline", ErrInvalidName},
		{"pipe$line", ErrInvalidName},
		{"zażółć", ErrInvalidName},
		{strings.Repeat("a", MaxNameLength+1), ErrInvalidName},
	}
	for _, input := range inputs {
		_, err := NormalizeName(input.name)
		if err == nil {
			t.Errorf("Expected error for %q, got nil", input.name)
			continue
		}
		if !errors.Is(err, input.err) {
			t.Errorf("Expected %v for %q, got: %v", input.err, input.name, err)
		}
	}
}
