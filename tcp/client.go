// Package tcp implements the proprietary length-prefixed TCP/JSON
// transport (spec.md §4.2–§4.4 on TCP). Grounded on the teacher's
// transport/tinit.go dial setup and transport/sendmsg.go's
// channel-driven receiver loop, reworked from aistore's intra-cluster
// object-transfer stream into a single inference stream per client plus
// short-lived control-socket request/response exchanges.
/*
 * Copyright (c) 2024-2026, DeGirum Corp. All rights reserved.
 */
package tcp

import (
	"io"
	"net"
	"sync"
	"time"

	"github.com/OneOfOne/xxhash"
	jsoniter "github.com/json-iterator/go"
	"github.com/teris-io/shortid"
	"golang.org/x/sync/errgroup"

	"github.com/degirum/gosdk/addr"
	"github.com/degirum/gosdk/apc"
	"github.com/degirum/gosdk/cmn"
	"github.com/degirum/gosdk/core"
	"github.com/degirum/gosdk/internal/log"
	"github.com/degirum/gosdk/modelparams"
	"github.com/degirum/gosdk/pipeline"
	"github.com/degirum/gosdk/wire"
)

var json = jsoniter.ConfigFastest

// Client is the TCP-transport variant of core.Client.
type Client struct {
	address addr.ServerAddress
	cfg     core.Config
	sid     string // internal session id, surfaced only in logs/traces

	mu         sync.Mutex
	streamConn net.Conn
	streamWG   *errgroup.Group
	cancelRead chan struct{}

	pipeline *pipeline.Pipeline
}

var _ core.Client = (*Client)(nil)

// NewClient validates reachability (spec.md §3: "control channel is
// opened during construction" for TCP) and returns a ready handle.
func NewClient(a addr.ServerAddress, cfg core.Config) (*Client, error) {
	core.WarnIfTokenExpiring(cfg.Token)

	conn, err := dialWithRetry(a.HostPort(), cfg.ConnectionTimeout, cfg.MaxConnectRetries)
	if err != nil {
		return nil, err
	}
	_ = conn.Close()

	sid, err := shortid.Generate()
	if err != nil {
		sid = "unknown"
	}
	return &Client{
		address:  a,
		cfg:      cfg,
		sid:      sid,
		pipeline: pipeline.New(0, cfg.InferenceTimeout, cfg.Metrics),
	}, nil
}

// doControl implements spec.md §4.3: a short-lived command socket per
// request, JSON-over-length-prefixed-frame.
func (c *Client) doControl(op string, payload any) (map[string]any, error) {
	conn, err := dialWithRetry(c.address.HostPort(), c.cfg.ConnectionTimeout, c.cfg.MaxConnectRetries)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	_ = conn.SetDeadline(time.Now().Add(c.cfg.ConnectionTimeout))

	body, err := wire.EncodeCommand(op, c.withToken(payload))
	if err != nil {
		return nil, err
	}
	if err := wire.WriteFrame(conn, body); err != nil {
		return nil, err
	}
	resp, err := wire.ReadFrame(conn)
	if err != nil {
		if err == io.EOF {
			return nil, cmn.NewOperationFailed("%s: connection closed before a response arrived", op)
		}
		return nil, cmn.WrapSystem(err, "%s: read response", op)
	}
	return wire.DecodeControl(resp)
}

// withToken merges the configured opaque auth token into a command
// payload (spec.md §1: "an opaque token field passed through in
// configuration" — the only supported auth). Never rejects or inspects
// the token's contents.
func (c *Client) withToken(payload any) any {
	if c.cfg.Token == "" {
		return payload
	}
	out := map[string]any{"token": c.cfg.Token}
	if m, ok := payload.(map[string]any); ok {
		for k, v := range m {
			out[k] = v
		}
	}
	return out
}

func (c *Client) ModelZooList() ([]core.ModelInfo, error) {
	doc, err := c.doControl(apc.OpModelZoo, nil)
	if err != nil {
		return nil, err
	}
	raw, _ := doc["models"].([]any)
	out := make([]core.ModelInfo, 0, len(raw))
	for _, item := range raw {
		entry, ok := item.(map[string]any)
		if !ok {
			continue
		}
		name, _ := entry["name"].(string)
		paramsDoc, err := json.Marshal(entry["ModelParams"])
		if err != nil {
			return nil, cmn.WrapParseError(err, "re-encode ModelParams for %q", name)
		}
		params, err := modelparams.Decode(paramsDoc)
		if err != nil {
			return nil, err
		}
		out = append(out, core.ModelInfo{Name: name, ExtendedParams: params})
	}
	return out, nil
}

func (c *Client) SystemInfo() (map[string]any, error) {
	return c.doControl(apc.OpSystemInfo, nil)
}

func (c *Client) LabelDictionary(name string) (map[string]any, error) {
	return c.doControl(apc.OpLabelDictionary, map[string]any{"name": name})
}

func (c *Client) TraceManage(args map[string]any) (map[string]any, error) {
	return c.doControl(apc.OpTraceManage, map[string]any{"args": args})
}

func (c *Client) ZooManage(args map[string]any) (map[string]any, error) {
	return c.doControl(apc.OpZooManage, map[string]any{"args": args})
}

func (c *Client) DevCtrl(args map[string]any) (map[string]any, error) {
	return c.doControl(apc.OpDevCtrl, map[string]any{"args": args})
}

// Ping implements spec.md §4.3's "sleep" op and spec.md §7's propagation
// policy: like every other control op it raises on error, except that
// ignoreErrors=true swallows the error into a false return instead.
func (c *Client) Ping(sleepMs int, ignoreErrors bool) (bool, error) {
	_, err := c.doControl(apc.OpSleep, map[string]any{"sleep_time_ms": sleepMs})
	if err == nil {
		return true, nil
	}
	if ignoreErrors {
		log.Warnf("ping: ignoring error: %v", err)
		return false, nil
	}
	return false, err
}

// Shutdown asks the server to terminate, then performs the TCP-specific
// epilogue (spec.md §4.3): open a fresh connection and send a zero-byte
// frame to push the server past its accept loop. Epilogue errors are
// ignored.
func (c *Client) Shutdown() error {
	_, err := c.doControl(apc.OpShutdown, nil)
	if conn, dialErr := dialWithRetry(c.address.HostPort(), c.cfg.ConnectionTimeout, 0); dialErr == nil {
		_ = wire.WriteFrame(conn, nil)
		_ = conn.Close()
	}
	return err
}

func (c *Client) OutstandingCount() int { return c.pipeline.OutstandingCount() }
func (c *Client) LastError() string     { return c.pipeline.LastError() }

// Close implements spec.md §4.6's Close plus SPEC_FULL.md's Open Question
// decision #1: allow up to 2*inference_timeout (capped at 5s) for
// in-flight results to drain before force-closing the stream socket and
// abandoning its receiver goroutine. Idempotent; errors from the forced
// teardown are swallowed.
func (c *Client) Close() error {
	c.pipeline.FinishWithGrace(closeGrace(c.cfg.InferenceTimeout))
	_ = c.CloseStream()
	return nil
}

func closeGrace(inferenceTimeout time.Duration) time.Duration {
	grace := 2 * inferenceTimeout
	if grace > 5*time.Second {
		grace = 5 * time.Second
	}
	return grace
}

func (c *Client) writeBatch(conn net.Conn, batch core.FrameBatch) error {
	if log.Verbose() {
		log.Infof("tcp[%s]: submitting frame, checksum=%x", c.sid, checksum(batch))
	}
	for _, buf := range batch {
		if err := wire.WriteFrame(conn, buf); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) Submit(batch core.FrameBatch, tag string) error {
	c.mu.Lock()
	conn := c.streamConn
	c.mu.Unlock()
	if conn == nil {
		return cmn.NewIncorrectAPIUse("submit: no stream is open")
	}
	return c.pipeline.Submit(tag, func() error { return c.writeBatch(conn, batch) })
}

func (c *Client) Finish() { c.pipeline.Finish() }

func (c *Client) InstallCallback(cb core.ResultCallback) error {
	if cb == nil {
		return c.pipeline.InstallCallback(nil)
	}
	return c.pipeline.InstallCallback(pipeline.ResultCallback(cb))
}

func (c *Client) Predict(batch core.FrameBatch) (map[string]any, error) {
	c.mu.Lock()
	conn := c.streamConn
	c.mu.Unlock()
	if conn == nil {
		return nil, cmn.NewIncorrectAPIUse("predict: no stream is open")
	}
	return c.pipeline.Predict(batch, func(_ string, b core.FrameBatch) error { return c.writeBatch(conn, b) })
}

func (c *Client) PredictBatch(batches []core.FrameBatch) ([]map[string]any, error) {
	c.mu.Lock()
	conn := c.streamConn
	c.mu.Unlock()
	if conn == nil {
		return nil, cmn.NewIncorrectAPIUse("predict_batch: no stream is open")
	}
	return c.pipeline.PredictBatch(batches, func(_ string, b core.FrameBatch) error { return c.writeBatch(conn, b) })
}

func checksum(batch core.FrameBatch) uint64 {
	h := xxhash.New64()
	for _, b := range batch {
		_, _ = h.Write(b)
	}
	return h.Sum64()
}
