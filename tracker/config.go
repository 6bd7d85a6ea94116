// Copyright 2024 The docai Authors.
// Licensed under the Apache License, Version 2.0.
// See LICENSE file in the project root for full license information.

package tracker

import (
	"time"

	"github.com/docai/core/dagrun"
	"github.com/docai/core/notify"
)

// Config represents main configuration for the Tracker.
type Config struct {
	// Capacity of the cache of finished DAG runs statuses. Zero disables the
	// cache.
	FinishedCacheLen int

	// When true, DAG runs can be created only for DAGs present in the
	// catalog.
	RequireKnownDag bool

	// Maximum number of DAG runs returned by List. Non-positive means no
	// limit.
	ListLimit int

	// Base URL of the tracker as seen by the executor. It's used to build
	// callback URL passed in StartRequest. When empty, no callback URL is
	// passed.
	CallbackBaseUrl string

	// Shared secret expected in callback requests. Empty disables the check.
	CallbackToken string

	// Timeout applied on context of every HTTP request handled by the
	// tracker.
	RequestTimeout time.Duration

	// Status policy. When nil, dagrun.DefaultPolicy is used.
	Policy dagrun.Policy

	// Template of notifications about failed DAG runs. When nil,
	// notify.DefaultTemplate is used.
	NotifyTemplate notify.Template
}

// Default Tracker configuration.
var DefaultConfig Config = Config{
	FinishedCacheLen: 1000,
	RequireKnownDag:  false,
	ListLimit:        100,
	RequestTimeout:   30 * time.Second,
}

// ClientConfig represents configuration of the tracker Client.
type ClientConfig struct {
	HttpClientTimeout time.Duration

	// Bearer token sent with requests to user endpoints.
	Token string

	// Token sent in callback requests.
	CallbackToken string
}

// Default Client configuration.
var DefaultClientConfig ClientConfig = ClientConfig{
	HttpClientTimeout: 15 * time.Second,
}
