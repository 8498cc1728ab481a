// Package pipeline implements the bounded-window, in-order, sticky-error
// submit/receive engine shared by both transports (spec.md §4.5 — "the
// pipeline core"). It is transport-agnostic: a transport hands raw bytes
// to Submit's writeFrame callback and feeds decoded results back through
// DeliverResult/DeliverTransportError from its own receiver goroutine.
//
// There is no single teacher file this is lifted from — it is the spec's
// own novel component. The implementation borrows the teacher's
// channel-driven I/O loop shape from transport/sendmsg.go (MsgStream) and
// the dedup/first-wins error bookkeeping shape from cmn/cos/err.go's Errs,
// but the bounded-window wait loop itself is assembled directly from
// spec.md §4.5's algorithm description using a broadcast-channel
// condition variable (closed-and-replaced on every state change) instead
// of a raw sync.Cond, since sync.Cond has no built-in timeout support and
// spec.md §4.5 step 3 requires one.
/*
 * Copyright (c) 2024-2026, DeGirum Corp. All rights reserved.
 */
package pipeline

import (
	"strconv"
	"sync"
	"time"

	"github.com/degirum/gosdk/cmn"
	"github.com/degirum/gosdk/core"
	"github.com/degirum/gosdk/internal/log"
	"github.com/degirum/gosdk/metrics"
)

// ResultCallback matches spec.md §3: invoked without the pipeline mutex
// held, at most once per submitted frame, in submission order; after the
// first error no further results are dispatched. Panics raised by
// the callback are recovered and discarded (spec.md §9, "callback
// exception safety").
type ResultCallback func(doc map[string]any, tag string)

// Pipeline is the per-stream engine. Zero value is not usable; use New.
type Pipeline struct {
	mu            sync.Mutex
	changed       chan struct{}
	pending       []string
	depth         int
	callback      ResultCallback
	lastErr       error
	stopRequested bool
	timeout       time.Duration
	rec           *metrics.Recorder
}

// New creates a pipeline bound to the given queue_depth and
// inference_timeout (spec.md §3's Client State fields).
func New(depth int, timeout time.Duration, rec *metrics.Recorder) *Pipeline {
	if rec == nil {
		rec = metrics.NoOp()
	}
	return &Pipeline{
		changed: make(chan struct{}),
		depth:   depth,
		timeout: timeout,
		rec:     rec,
	}
}

func (p *Pipeline) notifyLocked() {
	close(p.changed)
	p.changed = make(chan struct{})
}

// InstallCallback implements spec.md §4.5's install_callback transition.
// Installing nil while frames are outstanding fails with IncorrectAPIUse
// since the receiver may still be mid-dispatch.
func (p *Pipeline) InstallCallback(cb ResultCallback) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if cb == nil && p.callback != nil && len(p.pending) > 0 {
		return cmn.NewIncorrectAPIUse("cannot uninstall callback while %d results are outstanding", len(p.pending))
	}
	p.callback = cb
	return nil
}

// HasCallback reports whether streaming mode is active (callback
// installed), vs. idle/single-shot mode.
func (p *Pipeline) HasCallback() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.callback != nil
}

// Reset clears sticky error, pending queue, and stop flag for a freshly
// (re)opened stream, per spec.md §9: "clearing happens only on
// open_stream."
func (p *Pipeline) Reset(depth int, timeout time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pending = nil
	p.lastErr = nil
	p.stopRequested = false
	p.callback = nil
	p.depth = depth
	p.timeout = timeout
	p.notifyLocked()
}

// Submit implements spec.md §4.5's backpressure algorithm. writeFrame is
// invoked outside the pipeline mutex so stream I/O never blocks the
// receiver. Submit returns a Timeout error if the window-full wait
// exceeds inference_timeout; any other condition (sticky error already
// set, queue has room) returns nil — per spec.md §7, streaming submit
// never raises for server-side errors, only for caller misuse and
// queue-wait timeout.
func (p *Pipeline) Submit(tag string, writeFrame func() error) error {
	p.mu.Lock()
	if p.callback == nil {
		p.mu.Unlock()
		return cmn.NewIncorrectAPIUse("submit called before a callback was installed")
	}
	if p.lastErr != nil {
		p.mu.Unlock()
		return nil // sticky error: silently discard
	}

	deadline := time.Now().Add(p.timeout)
	for len(p.pending) >= p.depth && !p.stopRequested && p.lastErr == nil {
		ch := p.changed
		remaining := time.Until(deadline)
		if remaining <= 0 {
			err := cmn.NewTimeout("submit: queue depth %d full after %s", p.depth, p.timeout)
			p.lastErr = err
			p.stopRequested = true
			p.notifyLocked()
			p.mu.Unlock()
			return err
		}
		p.mu.Unlock()
		select {
		case <-ch:
		case <-time.After(remaining):
		}
		p.mu.Lock()
	}
	if p.lastErr != nil {
		err := p.lastErr
		p.mu.Unlock()
		if cmn.Is(err, cmn.Timeout) {
			return err
		}
		return nil
	}
	if p.stopRequested {
		p.mu.Unlock()
		return nil // Draining: finish() was called, no new submissions
	}
	p.pending = append(p.pending, tag)
	p.rec.SetOutstanding(len(p.pending))
	p.notifyLocked()
	p.mu.Unlock()

	if err := writeFrame(); err != nil {
		p.setTransportError(cmn.WrapSystem(err, "write frame"))
		return nil
	}
	p.rec.IncSubmitted()
	return nil
}

// DeliverResult is called by a transport's receiver goroutine with one
// decoded response document, in the same order frames were submitted
// (spec.md §4.4's framing contract: one FrameBatch in, one response out).
func (p *Pipeline) DeliverResult(doc map[string]any) {
	p.mu.Lock()
	if len(p.pending) == 0 {
		p.mu.Unlock()
		log.Warnf("pipeline: received a result with no outstanding frame")
		return
	}
	tag := p.pending[0]
	p.pending = p.pending[1:]

	suppressed := false
	if success, ok := doc["success"].(bool); ok && !success {
		if p.lastErr == nil {
			msg, _ := doc["msg"].(string)
			p.lastErr = cmn.NewOperationFailed("%s", msg)
			p.stopRequested = true
			p.pending = nil
		} else {
			suppressed = true
		}
	}
	cb := p.callback
	p.rec.SetOutstanding(len(p.pending))
	p.notifyLocked()
	p.mu.Unlock()

	if cb != nil && !suppressed {
		p.rec.IncDispatched()
		safeInvoke(cb, doc, tag)
	}
}

// DeliverTransportError is called when the receiver goroutine itself
// fails (read timeout, connection reset, parse error) rather than
// decoding a server response. No result document exists, so no callback
// fires; the error becomes the sticky last_error and unblocks any waiter.
func (p *Pipeline) DeliverTransportError(err error) {
	p.setTransportError(err)
}

func (p *Pipeline) setTransportError(err error) {
	p.mu.Lock()
	if p.lastErr == nil {
		p.lastErr = err
	}
	p.stopRequested = true
	p.pending = nil
	p.rec.SetOutstanding(0)
	p.rec.IncErrors()
	p.notifyLocked()
	p.mu.Unlock()
}

// Finish implements spec.md §4.5's finish transition: stop new
// submissions, wake the receiver, and block until pending is empty or an
// error is set. It never returns an error value itself (spec.md §7:
// "finish propagates the sticky error only via last_error — never
// throws"); callers read LastError() afterwards. Idempotent: a second
// call observes stopRequested already set and an already-empty queue, so
// it returns immediately.
func (p *Pipeline) Finish() {
	p.mu.Lock()
	p.stopRequested = true
	p.notifyLocked()
	for len(p.pending) > 0 && p.lastErr == nil {
		ch := p.changed
		p.mu.Unlock()
		<-ch
		p.mu.Lock()
	}
	p.mu.Unlock()
}

// FinishWithGrace is Finish bounded by a grace period, used only by a
// transport's Close/destructor path (SPEC_FULL.md Open Question decision
// #1: bounded grace then force-close). Unlike Finish, it gives up and
// returns once the grace period elapses even if frames are still
// outstanding. The transports' Close then calls CloseStream, whose
// receiver exits on its cancel signal without reporting an error, so
// frames still outstanding at that point stay counted until the next
// Reset.
func (p *Pipeline) FinishWithGrace(grace time.Duration) {
	p.mu.Lock()
	p.stopRequested = true
	p.notifyLocked()
	deadline := time.Now().Add(grace)
	for len(p.pending) > 0 && p.lastErr == nil {
		ch := p.changed
		remaining := time.Until(deadline)
		if remaining <= 0 {
			p.mu.Unlock()
			return
		}
		p.mu.Unlock()
		select {
		case <-ch:
		case <-time.After(remaining):
			return
		}
		p.mu.Lock()
	}
	p.mu.Unlock()
}

// WaitIdle blocks until OutstandingCount() reaches zero, a sticky error
// is set, or timeout elapses — without requesting stop. Supplemented
// feature (SPEC_FULL.md) for health checks and tests.
func (p *Pipeline) WaitIdle(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	p.mu.Lock()
	for len(p.pending) > 0 && p.lastErr == nil {
		ch := p.changed
		remaining := time.Until(deadline)
		if remaining <= 0 {
			p.mu.Unlock()
			return cmn.NewTimeout("wait idle: still %d outstanding after %s", len(p.pending), timeout)
		}
		p.mu.Unlock()
		select {
		case <-ch:
		case <-time.After(remaining):
		}
		p.mu.Lock()
	}
	p.mu.Unlock()
	return nil
}

// OutstandingCount returns |pending|, per spec.md §8's invariant.
func (p *Pipeline) OutstandingCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}

// LastError returns the sticky error message, or "" if none is set.
func (p *Pipeline) LastError() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.lastErr == nil {
		return ""
	}
	return p.lastErr.Error()
}

// LastErrorValue exposes the underlying error (for cmn.Is checks), e.g.
// to distinguish Timeout from OperationFailed in predict().
func (p *Pipeline) LastErrorValue() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastErr
}

// Predict implements spec.md §4.5's single-shot mode: temporarily install
// an internal callback that captures the result into a local slot, submit
// one frame under an empty tag, finish, then uninstall. send is the
// transport's frame-write function. Fails with IncorrectAPIUse if a
// streaming callback is already installed (spec.md §7).
func (p *Pipeline) Predict(batch core.FrameBatch, send func(tag string, batch core.FrameBatch) error) (map[string]any, error) {
	if p.HasCallback() {
		return nil, cmn.NewIncorrectAPIUse("predict: a streaming callback is already installed")
	}
	var result map[string]any
	done := make(chan struct{})
	if err := p.InstallCallback(func(doc map[string]any, tag string) {
		result = doc
		close(done)
	}); err != nil {
		return nil, err
	}
	defer func() { _ = p.InstallCallback(nil) }()

	if err := p.Submit("", func() error { return send("", batch) }); err != nil {
		return nil, err
	}
	p.Finish()
	if err := p.LastErrorValue(); err != nil {
		return nil, err
	}
	<-done
	return result, nil
}

// PredictBatch is the supplemented convenience (SPEC_FULL.md): predicts N
// frames using the existing streaming machinery (one install_callback,
// N submits tagged by index, one finish) and returns N results in order.
// No new wire behavior over repeated Predict calls, just ergonomics and
// pipelining across the bounded window.
func (p *Pipeline) PredictBatch(batches []core.FrameBatch, send func(tag string, batch core.FrameBatch) error) ([]map[string]any, error) {
	if len(batches) == 0 {
		return nil, nil
	}
	if p.HasCallback() {
		return nil, cmn.NewIncorrectAPIUse("predict_batch: a streaming callback is already installed")
	}
	results := make([]map[string]any, len(batches))
	var mu sync.Mutex
	if err := p.InstallCallback(func(doc map[string]any, tag string) {
		idx, convErr := strconv.Atoi(tag)
		if convErr != nil || idx < 0 || idx >= len(results) {
			return
		}
		mu.Lock()
		results[idx] = doc
		mu.Unlock()
	}); err != nil {
		return nil, err
	}
	defer func() { _ = p.InstallCallback(nil) }()

	for i, b := range batches {
		tag := strconv.Itoa(i)
		batch := b
		if err := p.Submit(tag, func() error { return send(tag, batch) }); err != nil {
			return nil, err
		}
	}
	p.Finish()
	if err := p.LastErrorValue(); err != nil {
		return nil, err
	}
	return results, nil
}

func safeInvoke(cb ResultCallback, doc map[string]any, tag string) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("result callback panicked for tag %q: %v", tag, r)
		}
	}()
	cb(doc, tag)
}
