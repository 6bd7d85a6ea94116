// Copyright 2024 The docai Authors.
// Licensed under the Apache License, Version 2.0.
// See LICENSE file in the project root for full license information.

/*
Package dag provides DAG templates known to the tracker and DAG run statuses.

# Introduction

DAG runs are executed by an external executor (Airflow or alike), so the
tracker does not need to know task bodies. What it needs is the set of tasks
which must report back before a run can be considered completed. That's
exactly what Definition describes.

# Catalog

Definitions are looked up through the Catalog interface. There are two
implementations: Registry, a plain map, and FileCatalog which reads
definitions from a YAML file and reloads them when the file changes:

	dags:
	  - name: etl_pipeline
	    tasks: [extract, load]
	    attributes:
	      tags: [etl]
*/
package dag

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"slices"
	"strings"
)

// DAG string identifier. Valid identifiers are results of NormalizeName.
type Id string

// Definition describes a DAG template: its identifier and declared tasks
// which are required for a DAG run to complete.
type Definition struct {
	Id    Id       `yaml:"name"`
	Tasks []string `yaml:"tasks"`
	Attr  Attr     `yaml:"attributes"`
}

// Attr represents additional attributes of a DAG. They are not interpreted by
// the tracker.
type Attr struct {
	Description string   `yaml:"description"`
	Tags        []string `yaml:"tags"`
}

// HasTask checks if given task is declared in the definition.
func (d Definition) HasTask(taskName string) bool {
	return slices.Contains(d.Tasks, taskName)
}

// Validate checks if DAG identifier is already normalized and declared task
// names are non-empty and unique.
func (d Definition) Validate() error {
	normalized, err := NormalizeName(string(d.Id))
	if err != nil {
		return err
	}
	if normalized != d.Id {
		return fmt.Errorf("DAG name %q is not normalized, expected %q", d.Id,
			normalized)
	}
	seen := make(map[string]struct{}, len(d.Tasks))
	for _, task := range d.Tasks {
		if strings.TrimSpace(task) == "" {
			return fmt.Errorf("DAG %s declares task with empty name", d.Id)
		}
		if _, exists := seen[task]; exists {
			return fmt.Errorf("DAG %s declares task %s more than once", d.Id,
				task)
		}
		seen[task] = struct{}{}
	}
	return nil
}

// Hash calculates SHA256 hash of the definition. Order of declared tasks does
// not matter.
func (d Definition) Hash() string {
	tasks := slices.Clone(d.Tasks)
	slices.Sort(tasks)
	tags := slices.Clone(d.Attr.Tags)
	slices.Sort(tags)

	hasher := sha256.New()
	hasher.Write([]byte(d.Id))
	for _, task := range tasks {
		hasher.Write([]byte{0})
		hasher.Write([]byte(task))
	}
	hasher.Write([]byte{1})
	hasher.Write([]byte(d.Attr.Description))
	for _, tag := range tags {
		hasher.Write([]byte{0})
		hasher.Write([]byte(tag))
	}
	return hex.EncodeToString(hasher.Sum(nil))
}

// String returns short information about the definition.
func (d Definition) String() string {
	return fmt.Sprintf("Dag: %s [%s]", d.Id, strings.Join(d.Tasks, ", "))
}

// Registry for DAG definitions. It implements Catalog.
type Registry map[Id]Definition

// Add adds new definition to the registry. If definition is invalid or DAG of
// the same identifier already exists in the registry, then non-nil error is
// returned.
func (r Registry) Add(d Definition) error {
	if err := d.Validate(); err != nil {
		return err
	}
	if _, exists := r[d.Id]; exists {
		return fmt.Errorf("DAG %s already exists in the registry", d.Id)
	}
	r[d.Id] = d
	return nil
}

// Lookup returns definition of given DAG.
func (r Registry) Lookup(id Id) (Definition, bool) {
	d, exists := r[id]
	return d, exists
}

// Ids returns sorted identifiers of DAGs in the registry.
func (r Registry) Ids() []Id {
	ids := make([]Id, 0, len(r))
	for id := range r {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
