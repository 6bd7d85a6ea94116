// Copyright 2024 The docai Authors.
// Licensed under the Apache License, Version 2.0.
// See LICENSE file in the project root for full license information.

package dag

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

// MaxNameLength is the maximum length of normalized DAG name.
const MaxNameLength = 128

var (
	ErrEmptyName   = errors.New("DAG name is empty")
	ErrInvalidName = errors.New("invalid DAG name")
)

var validName = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// NormalizeName maps user supplied DAG name into canonical Id. Leading and
// trailing whitespaces are removed, letters are lower-cased and every run of
// whitespaces, '-', '.' and '/' is replaced by a single '_'. Repeated '_' are
// collapsed and stripped from both ends. The result must start with a letter
// and contain only lower-case letters, digits and '_', otherwise
// ErrInvalidName is returned.
//
// Examples:
//
//	"ETL Pipeline"     -> "etl_pipeline"
//	" invoice-ocr.v2 " -> "invoice_ocr_v2"
//	"__Daily__Report"  -> "daily_report"
func NormalizeName(name string) (Id, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return "", ErrEmptyName
	}

	var sb strings.Builder
	sb.Grow(len(trimmed))
	lastUnderscore := true // drops leading separators
	for _, r := range strings.ToLower(trimmed) {
		if r == '_' || r == '-' || r == '.' || r == '/' || unicode.IsSpace(r) {
			if !lastUnderscore {
				sb.WriteByte('_')
				lastUnderscore = true
			}
			continue
		}
		sb.WriteRune(r)
		lastUnderscore = false
	}
	normalized := strings.TrimRight(sb.String(), "_")

	if normalized == "" {
		return "", fmt.Errorf("%w: %q has no name characters", ErrInvalidName,
			name)
	}
	if len(normalized) > MaxNameLength {
		return "", fmt.Errorf("%w: %q is longer than %d characters",
			ErrInvalidName, name, MaxNameLength)
	}
	if !validName.MatchString(normalized) {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return Id(normalized), nil
}
