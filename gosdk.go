// Package gosdk is the client façade spec.md §4.6 describes: a single
// NewClient factory that resolves a server URL to a ServerAddress, picks a
// transport, and returns a polymorphic Client handle. Mirrors the
// teacher's api package as the one public surface consumers import,
// though here the factory itself — not a BaseParams struct passed to
// every call — is the entry point, since spec.md names a stateful
// per-connection handle rather than a stateless REST client.
/*
 * Copyright (c) 2024-2026, DeGirum Corp. All rights reserved.
 */
package gosdk

import (
	"github.com/degirum/gosdk/addr"
	"github.com/degirum/gosdk/cmn"
	"github.com/degirum/gosdk/core"
	"github.com/degirum/gosdk/httpws"
	"github.com/degirum/gosdk/metrics"
	"github.com/degirum/gosdk/modelparams"
	"github.com/degirum/gosdk/tcp"
)

// Re-exported so callers need only import this one package for the
// common surface (spec.md's "single polymorphic handle").
type (
	Config          = core.Config
	Option          = core.Option
	FrameBatch      = core.FrameBatch
	ModelInfo       = core.ModelInfo
	ResultCallback  = core.ResultCallback
	Client          = core.Client
	Params          = modelparams.Params
	MetricsRecorder = metrics.Recorder
)

var (
	WithConnectionTimeout = core.WithConnectionTimeout
	WithInferenceTimeout  = core.WithInferenceTimeout
	WithToken             = core.WithToken
	WithMetrics           = core.WithMetrics
	WithMaxConnectRetries = core.WithMaxConnectRetries
	DefaultConfig         = core.DefaultConfig
	NewMetricsRecorder    = metrics.New
)

// NewClient implements spec.md §4.1's address resolution plus §4.6's
// factory dispatch: "asio://" or bare host selects the TCP transport,
// "http://" selects HTTP/WebSocket.
func NewClient(serverURL string, opts ...Option) (Client, error) {
	a, err := addr.Parse(serverURL)
	if err != nil {
		return nil, err
	}

	cfg := core.DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NoOp()
	}

	switch a.Transport {
	case addr.HttpWebsocket:
		return httpws.NewClient(a, cfg)
	case addr.TcpProprietary:
		return tcp.NewClient(a, cfg)
	default:
		return nil, cmn.NewBadParameter("unrecognized transport %v for %q", a.Transport, serverURL)
	}
}
