// Copyright 2024 The docai Authors.
// Licensed under the Apache License, Version 2.0.
// See LICENSE file in the project root for full license information.

package dag

import (
	"testing"
)

func TestDefinitionValidate(t *testing.T) {
	inputs := []struct {
		def     Definition
		isValid bool
	}{
		{Definition{Id: "etl_pipeline", Tasks: []string{"extract", "load"}}, true},
		{Definition{Id: "no_tasks"}, true},
		{Definition{Id: "ETL Pipeline", Tasks: []string{"extract"}}, false},
		{Definition{Id: "", Tasks: []string{"extract"}}, false},
		{Definition{Id: "dup", Tasks: []string{"a", "b", "a"}}, false},
		{Definition{Id: "blank", Tasks: []string{"a", "  "}}, false},
	}

	for _, input := range inputs {
		err := input.def.Validate()
		if input.isValid && err != nil {
			t.Errorf("Expected %s to be valid, got: %s", input.def,
				err.Error())
		}
		if !input.isValid && err == nil {
			t.Errorf("Expected %s to be invalid, got nil error", input.def)
		}
	}
}

func TestDefinitionHashIgnoresTaskOrder(t *testing.T) {
	d1 := Definition{Id: "etl", Tasks: []string{"extract", "transform", "load"}}
	d2 := Definition{Id: "etl", Tasks: []string{"load", "extract", "transform"}}
	d3 := Definition{Id: "etl", Tasks: []string{"extract", "load"}}
	d4 := Definition{Id: "etl", Tasks: []string{"extract", "load"},
		Attr: Attr{Tags: []string{"nightly"}}}

	if d1.Hash() != d2.Hash() {
		t.Errorf("Expected the same hash for %s and %s", d1, d2)
	}
	if d1.Hash() == d3.Hash() {
		t.Errorf("Expected different hashes for %s and %s", d1, d3)
	}
	if d3.Hash() == d4.Hash() {
		t.Error("Expected attributes to change the hash")
	}
}

func TestDefinitionHasTask(t *testing.T) {
	d := Definition{Id: "etl", Tasks: []string{"extract", "load"}}
	if !d.HasTask("load") {
		t.Error("Expected task load to be declared")
	}
	if d.HasTask("transform") {
		t.Error("Expected task transform to not be declared")
	}
}

func TestRegistryAddUnique(t *testing.T) {
	r := make(Registry)
	defs := []Definition{
		{Id: "dag1", Tasks: []string{"t1"}},
		{Id: "dag2"},
		{Id: "dag3", Tasks: []string{"t1", "t2"}},
	}

	for _, d := range defs {
		addErr := r.Add(d)
		if addErr != nil {
			t.Errorf("Unexpected error while adding DAG %+v: %s",
				d, addErr.Error())
		}
	}

	for _, d := range defs {
		if _, exist := r.Lookup(d.Id); !exist {
			t.Errorf("Expected DAG %s to exist in registry, but it does not",
				string(d.Id))
		}
	}
	ids := r.Ids()
	if len(ids) != 3 || ids[0] != "dag1" || ids[2] != "dag3" {
		t.Errorf("Expected sorted [dag1 dag2 dag3], got: %v", ids)
	}
}

func TestRegistryAddDuplicate(t *testing.T) {
	r := make(Registry)
	if err := r.Add(Definition{Id: "dag1"}); err != nil {
		t.Errorf("Unexpected error while adding dag1: %s", err.Error())
	}
	if err := r.Add(Definition{Id: "dag1", Tasks: []string{"x"}}); err == nil {
		t.Error("Expected non-nil error for duplicated DAG ID, but got nil")
	}
	d, _ := r.Lookup("dag1")
	if len(d.Tasks) != 0 {
		t.Errorf("Expected the first definition to be kept, got: %s", d)
	}
}
