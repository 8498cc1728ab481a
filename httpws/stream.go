package httpws

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/degirum/gosdk/cmn"
	"github.com/degirum/gosdk/core"
	"github.com/degirum/gosdk/internal/log"
	"github.com/degirum/gosdk/pipeline"
	"github.com/degirum/gosdk/wire"
)

// wsConn bundles the gorilla connection with the mutex gorilla itself
// requires for concurrent writers (the library permits only one writer
// goroutine at a time; our writer is the Submit caller, our reader is the
// receive loop, so only writes need serializing here).
type wsConn struct {
	conn    *websocket.Conn
	writeMu chan struct{} // 1-buffered semaphore
}

func newWSConn(c *websocket.Conn) *wsConn {
	w := &wsConn{conn: c, writeMu: make(chan struct{}, 1)}
	w.writeMu <- struct{}{}
	return w
}

func (w *wsConn) writeBinary(b []byte) error {
	<-w.writeMu
	defer func() { w.writeMu <- struct{}{} }()
	return w.conn.WriteMessage(websocket.BinaryMessage, b)
}

// handshakeRequest is the first text frame a client sends on
// ws://host:port/v1/stream (spec.md §6).
type handshakeRequest struct {
	Name   string         `json:"name"`
	Config map[string]any `json:"config"`
}

// OpenStream implements spec.md §6's WebSocket handshake: dial, send a
// text frame {name, config}, read the server's ACK text frame, then
// switch to binary frames for the data plane. Opening a second stream
// implicitly closes the first.
func (c *Client) OpenStream(model string, depth int, extraParams map[string]any) error {
	if depth <= 0 {
		return cmn.NewBadParameter("queue_depth must be positive, got %d", depth)
	}
	_ = c.CloseStream()

	dialer := websocket.Dialer{HandshakeTimeout: c.cfg.ConnectionTimeout}
	header := http.Header{}
	if c.cfg.Token != "" {
		header.Set("Authorization", "Bearer "+c.cfg.Token)
	}
	url := fmt.Sprintf("ws://%s/v1/stream", c.address.HostPort())
	conn, resp, err := dialer.Dial(url, header)
	if err != nil {
		if resp != nil {
			return cmn.WrapSystem(err, "open_stream: dial %s (HTTP %d)", url, resp.StatusCode)
		}
		return cmn.WrapSystem(err, "open_stream: dial %s", url)
	}
	if resp != nil {
		_ = resp.Body.Close()
	}

	hreq := handshakeRequest{Name: model, Config: extraParams}
	body, err := json.Marshal(hreq)
	if err != nil {
		conn.Close()
		return cmn.WrapParseError(err, "encode stream handshake")
	}
	_ = conn.SetWriteDeadline(time.Now().Add(c.cfg.ConnectionTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, body); err != nil {
		conn.Close()
		return cmn.WrapSystem(err, "open_stream: write handshake")
	}

	_ = conn.SetReadDeadline(time.Now().Add(c.cfg.ConnectionTimeout))
	mt, ack, err := conn.ReadMessage()
	if err != nil {
		conn.Close()
		return cmn.WrapSystem(err, "open_stream: read ack")
	}
	if mt != websocket.TextMessage {
		conn.Close()
		return cmn.NewOperationFailed("open_stream: expected text ACK frame, got type %d", mt)
	}
	if _, err := wire.DecodeControl(ack); err != nil {
		conn.Close()
		return err
	}
	_ = conn.SetReadDeadline(time.Time{})

	c.pipeline.Reset(depth, c.cfg.InferenceTimeout)

	ws := newWSConn(conn)
	cancel := make(chan struct{})
	g := &errgroup.Group{}

	c.mu.Lock()
	c.ws = ws
	c.cancel = cancel
	c.streamWG = g
	c.mu.Unlock()

	g.Go(func() error {
		c.receiveLoop(ws, cancel)
		return nil
	})
	return nil
}

// receiveLoop is the consumer side of spec.md §4.5 for the WebSocket
// transport: "one WebSocket poll-and-dispatch thread" (spec.md §4.5).
// Binary frames carry MessagePack-encoded results; frames of any other
// type are logged and skipped, and a read error ends the loop.
func (c *Client) receiveLoop(ws *wsConn, cancel chan struct{}) {
	for {
		select {
		case <-cancel:
			return
		default:
		}
		_ = ws.conn.SetReadDeadline(time.Now().Add(c.cfg.InferenceTimeout))
		mt, payload, err := ws.conn.ReadMessage()
		if err != nil {
			select {
			case <-cancel:
				return
			default:
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) || err == io.EOF {
				return
			}
			if ne, ok := err.(interface{ Timeout() bool }); ok && ne.Timeout() {
				c.pipeline.DeliverTransportError(cmn.NewTimeout("stream read: no response within %s", c.cfg.InferenceTimeout))
			} else {
				c.pipeline.DeliverTransportError(cmn.WrapSystem(err, "stream read"))
			}
			return
		}
		if mt != websocket.BinaryMessage {
			log.Warnf("httpws: ignoring non-binary frame of type %d on data channel", mt)
			continue
		}
		rd, err := wire.DecodeResult(payload)
		if err != nil {
			c.pipeline.DeliverTransportError(err)
			return
		}
		c.pipeline.DeliverResult(rd.Doc)
	}
}

// CloseStream sends a WebSocket close frame and tears down the receiver.
// Idempotent.
func (c *Client) CloseStream() error {
	c.mu.Lock()
	ws := c.ws
	cancel := c.cancel
	g := c.streamWG
	c.ws = nil
	c.cancel = nil
	c.streamWG = nil
	c.mu.Unlock()

	if ws == nil {
		return nil
	}
	deadline := time.Now().Add(c.cfg.ConnectionTimeout)
	_ = ws.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	if cancel != nil {
		close(cancel)
	}
	if g != nil {
		_ = g.Wait()
	}
	return ws.conn.Close()
}

func (c *Client) writeBatch(ws *wsConn, batch core.FrameBatch) error {
	for _, buf := range batch {
		if err := ws.writeBinary(buf); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) Submit(batch core.FrameBatch, tag string) error {
	c.mu.Lock()
	ws := c.ws
	c.mu.Unlock()
	if ws == nil {
		return cmn.NewIncorrectAPIUse("submit: no stream is open")
	}
	return c.pipeline.Submit(tag, func() error { return c.writeBatch(ws, batch) })
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
	ws := c.ws
	c.mu.Unlock()
	if ws == nil {
		return nil, cmn.NewIncorrectAPIUse("predict: no stream is open")
	}
	return c.pipeline.Predict(batch, func(_ string, b core.FrameBatch) error { return c.writeBatch(ws, b) })
}

func (c *Client) PredictBatch(batches []core.FrameBatch) ([]map[string]any, error) {
	c.mu.Lock()
	ws := c.ws
	c.mu.Unlock()
	if ws == nil {
		return nil, cmn.NewIncorrectAPIUse("predict_batch: no stream is open")
	}
	return c.pipeline.PredictBatch(batches, func(_ string, b core.FrameBatch) error { return c.writeBatch(ws, b) })
}
