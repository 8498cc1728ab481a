package tcp

import (
	"io"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/degirum/gosdk/apc"
	"github.com/degirum/gosdk/cmn"
	"github.com/degirum/gosdk/internal/log"
	"github.com/degirum/gosdk/wire"
)

// OpenStream implements spec.md §4.4: send an opening control record on
// the stream socket itself, naming the model and merged config; a
// success:false reply aborts open. Opening a second stream implicitly
// closes the first (spec.md §3's Stream lifecycle).
func (c *Client) OpenStream(model string, depth int, extraParams map[string]any) error {
	if depth <= 0 {
		return cmn.NewBadParameter("queue_depth must be positive, got %d", depth)
	}
	_ = c.CloseStream() // idempotent; implicit close of any prior stream

	conn, err := dialWithRetry(c.address.HostPort(), c.cfg.ConnectionTimeout, c.cfg.MaxConnectRetries)
	if err != nil {
		return err
	}

	_ = conn.SetDeadline(time.Now().Add(c.cfg.ConnectionTimeout))
	body, err := wire.EncodeCommand(apc.OpStreamOpen, c.withToken(map[string]any{
		"name":   model,
		"config": extraParams,
	}))
	if err != nil {
		conn.Close()
		return err
	}
	if err := wire.WriteFrame(conn, body); err != nil {
		conn.Close()
		return err
	}
	resp, err := wire.ReadFrame(conn)
	if err != nil {
		conn.Close()
		return cmn.WrapSystem(err, "open_stream: read ack")
	}
	if _, err := wire.DecodeControl(resp); err != nil {
		conn.Close()
		return err
	}
	_ = conn.SetDeadline(time.Time{})

	c.pipeline.Reset(depth, c.cfg.InferenceTimeout)

	c.mu.Lock()
	c.streamConn = conn
	c.cancelRead = make(chan struct{})
	g := &errgroup.Group{}
	c.streamWG = g
	cancel := c.cancelRead
	c.mu.Unlock()

	g.Go(func() error {
		c.receiveLoop(conn, cancel)
		return nil
	})
	return nil
}

// receiveLoop is the consumer side of spec.md §4.5: one goroutine per
// active stream, reading framed MessagePack responses and handing them
// to the pipeline in order. Grounded on the teacher's
// transport/sendmsg.go MsgStream.Read loop shape (select between new
// work and a stop signal), adapted to the receive direction.
func (c *Client) receiveLoop(conn io.ReadWriteCloser, cancel chan struct{}) {
	type readResult struct {
		payload []byte
		err     error
	}
	for {
		select {
		case <-cancel:
			return
		default:
		}
		if deadliner, ok := conn.(interface{ SetReadDeadline(time.Time) error }); ok {
			_ = deadliner.SetReadDeadline(time.Now().Add(c.cfg.InferenceTimeout))
		}

		resCh := make(chan readResult, 1)
		go func() {
			payload, err := wire.ReadFrame(conn)
			resCh <- readResult{payload, err}
		}()

		select {
		case <-cancel:
			return
		case res := <-resCh:
			if res.err != nil {
				if res.err == io.EOF {
					return
				}
				if isTimeout(res.err) {
					c.pipeline.DeliverTransportError(cmn.NewTimeout("stream read: no response within %s", c.cfg.InferenceTimeout))
				} else {
					c.pipeline.DeliverTransportError(cmn.WrapSystem(res.err, "stream read"))
				}
				return
			}
			if res.payload == nil {
				return // close sentinel
			}
			rd, err := wire.DecodeResult(res.payload)
			if err != nil {
				c.pipeline.DeliverTransportError(err)
				return
			}
			c.pipeline.DeliverResult(rd.Doc)
			if c.pipeline.OutstandingCount() == 0 {
				// nothing more expected until the next submit; loop back
				// around and block in ReadFrame again.
			}
		}
	}
}

func isTimeout(err error) bool {
	type timeoutter interface{ Timeout() bool }
	t, ok := err.(timeoutter)
	return ok && t.Timeout()
}

// CloseStream implements spec.md §4.4: send an empty frame, drain the
// receiver, close the socket. Idempotent.
func (c *Client) CloseStream() error {
	c.mu.Lock()
	conn := c.streamConn
	cancel := c.cancelRead
	g := c.streamWG
	c.streamConn = nil
	c.cancelRead = nil
	c.streamWG = nil
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	if err := wire.WriteFrame(conn, nil); err != nil {
		log.Warnf("tcp: close-sentinel write failed: %v", err)
	}
	if cancel != nil {
		close(cancel)
	}
	if g != nil {
		_ = g.Wait()
	}
	return conn.Close()
}
