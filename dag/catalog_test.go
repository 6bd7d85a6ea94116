// Copyright 2024 The docai Authors.
// Licensed under the Apache License, Version 2.0.
// See LICENSE file in the project root for full license information.

package dag

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

const catalogYaml = `
dags:
  - name: ETL Pipeline
    tasks: [extract, load]
    attributes:
      description: nightly warehouse load
      tags: [etl]
  - name: invoice-ocr
    tasks: [ocr]
`

func TestParseCatalog(t *testing.T) {
	registry, err := ParseCatalog([]byte(catalogYaml))
	if err != nil {
		t.Fatalf("Cannot parse catalog: %s", err.Error())
	}
	if len(registry) != 2 {
		t.Errorf("Expected 2 DAGs, got: %d", len(registry))
	}
	etl, exists := registry.Lookup("etl_pipeline")
	if !exists {
		t.Fatal("Expected etl_pipeline to be in the catalog")
	}
	if len(etl.Tasks) != 2 || etl.Tasks[0] != "extract" {
		t.Errorf("Unexpected etl_pipeline tasks: %v", etl.Tasks)
	}
	if etl.Attr.Description != "nightly warehouse load" {
		t.Errorf("Unexpected description: %s", etl.Attr.Description)
	}
	if _, exists := registry.Lookup("invoice_ocr"); !exists {
		t.Error("Expected invoice_ocr to be in the catalog")
	}
}

func TestParseCatalogInvalid(t *testing.T) {
	inputs := []string{
		"dags: [",
		"dags:\n  - name: '!!!'\n",
		"dags:\n  - name: a\n  - name: A\n",
		"dags:\n  - name: a\n    tasks: [x, x]\n",
	}
	for _, input := range inputs {
		if _, err := ParseCatalog([]byte(input)); err == nil {
			t.Errorf("Expected error for catalog:\n%s", input)
		}
	}
}

func TestFileCatalogReloadKeepsPreviousOnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dags.yaml")
	writeFile(t, path, catalogYaml)

	fc, err := NewFileCatalog(path, nil)
	if err != nil {
		t.Fatalf("Cannot create FileCatalog: %s", err.Error())
	}
	if len(fc.Ids()) != 2 {
		t.Errorf("Expected 2 DAGs, got: %v", fc.Ids())
	}

	writeFile(t, path, "dags: [")
	if err := fc.Reload(); err == nil {
		t.Error("Expected reload error for broken YAML")
	}
	if _, exists := fc.Lookup("etl_pipeline"); !exists {
		t.Error("Expected previous definitions to be kept after failed reload")
	}
}

func TestFileCatalogMissingFile(t *testing.T) {
	_, err := NewFileCatalog(filepath.Join(t.TempDir(), "nope.yaml"), nil)
	if err == nil {
		t.Error("Expected error for missing catalog file")
	}
}

func TestFileCatalogWatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dags.yaml")
	writeFile(t, path, catalogYaml)
	fc, err := NewFileCatalog(path, nil)
	if err != nil {
		t.Fatalf("Cannot create FileCatalog: %s", err.Error())
	}

	ctx, cancel := context.WithCancel(context.Background())
	watchErr := make(chan error, 1)
	go func() {
		watchErr <- fc.Watch(ctx)
	}()
	// give the watcher a moment to register the directory
	time.Sleep(100 * time.Millisecond)

	writeFile(t, path, "dags:\n  - name: summarize\n    tasks: [split, summarize]\n")

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if _, exists := fc.Lookup("summarize"); exists {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if _, exists := fc.Lookup("summarize"); !exists {
		t.Error("Expected catalog to be reloaded with summarize DAG")
	}
	if _, exists := fc.Lookup("etl_pipeline"); exists {
		t.Error("Expected etl_pipeline to be removed after reload")
	}

	cancel()
	select {
	case err := <-watchErr:
		if err != nil {
			t.Errorf("Unexpected Watch error: %s", err.Error())
		}
	case <-time.After(5 * time.Second):
		t.Error("Watch did not return after context cancellation")
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Cannot write %s: %s", path, err.Error())
	}
}
