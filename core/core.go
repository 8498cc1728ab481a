// Package core holds the domain types shared by the client façade and
// both transport implementations: Config, FrameBatch, ModelInfo, the
// ResultCallback contract, and the Client interface itself (spec.md §3,
// §4.6). It exists so the concrete tcp and httpws transports can satisfy
// Client without importing the façade/factory package, which in turn
// imports them — mirroring the teacher's api/apc split (protocol-level
// shared types in their own leaf package, consumed by everything above).
/*
 * Copyright (c) 2024-2026, DeGirum Corp. All rights reserved.
 */
package core

import (
	"time"

	"github.com/degirum/gosdk/metrics"
	"github.com/degirum/gosdk/modelparams"
)

// FrameBatch is spec.md §3's ordered sequence of opaque byte buffers
// making up one logical inference input.
type FrameBatch [][]byte

// ResultCallback matches spec.md §3 exactly: invoked without the
// pipeline mutex held, at most once per submitted frame, in submission
// order.
type ResultCallback func(resultDoc map[string]any, frameTag string)

// ModelInfo is one entry of a modelzoo listing (spec.md §3).
type ModelInfo struct {
	Name           string
	ExtendedParams *modelparams.Params
}

// Config bundles the options the factory threads into either transport:
// timeouts (spec.md §5), the opaque auth token (spec.md §1's only
// supported auth), and an optional metrics recorder (SPEC_FULL.md).
type Config struct {
	ConnectionTimeout time.Duration
	InferenceTimeout  time.Duration
	MaxConnectRetries int
	Token             string
	Metrics           *metrics.Recorder
}

// DefaultConfig matches the teacher's own defaults idiom (small constants
// close to their call sites rather than a sprawling global config file).
func DefaultConfig() Config {
	return Config{
		ConnectionTimeout: 10 * time.Second,
		InferenceTimeout:  30 * time.Second,
		MaxConnectRetries: 3,
		Metrics:           metrics.NoOp(),
	}
}

// Option customizes a Config; passed to NewClient.
type Option func(*Config)

func WithConnectionTimeout(d time.Duration) Option { return func(c *Config) { c.ConnectionTimeout = d } }
func WithInferenceTimeout(d time.Duration) Option  { return func(c *Config) { c.InferenceTimeout = d } }
func WithToken(tok string) Option                  { return func(c *Config) { c.Token = tok } }
func WithMetrics(r *metrics.Recorder) Option       { return func(c *Config) { c.Metrics = r } }
func WithMaxConnectRetries(n int) Option           { return func(c *Config) { c.MaxConnectRetries = n } }

// Client is the single polymorphic handle spec.md §4.6 describes; the
// factory returns a variant bound to the transport picked from the
// server URL (addr.ServerAddress.Transport).
type Client interface {
	ModelZooList() ([]ModelInfo, error)
	SystemInfo() (map[string]any, error)
	LabelDictionary(name string) (map[string]any, error)
	TraceManage(args map[string]any) (map[string]any, error)
	ZooManage(args map[string]any) (map[string]any, error)
	DevCtrl(args map[string]any) (map[string]any, error)
	Ping(sleepMs int, ignoreErrors bool) (bool, error)
	Shutdown() error

	OpenStream(model string, depth int, extraParams map[string]any) error
	CloseStream() error
	InstallCallback(cb ResultCallback) error
	Submit(batch FrameBatch, tag string) error
	Finish()
	Predict(batch FrameBatch) (map[string]any, error)
	PredictBatch(batches []FrameBatch) ([]map[string]any, error)

	OutstandingCount() int
	LastError() string
	Close() error
}
