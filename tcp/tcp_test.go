package tcp_test

import (
	"encoding/json"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/degirum/gosdk/addr"
	"github.com/degirum/gosdk/cmn"
	"github.com/degirum/gosdk/core"
	"github.com/degirum/gosdk/tcp"
	"github.com/degirum/gosdk/wire"
)

// fakeServer is a minimal stand-in for a DeGirum AI server speaking the
// proprietary TCP/JSON protocol (spec.md §4.2-§4.4): enough of the control
// surface and the stream echo-back to exercise tcp.Client end to end.
type fakeServer struct {
	ln        net.Listener
	failOpens bool // make every stream_open fail
	failSleep bool // make every sleep (ping) fail
	delay     time.Duration
	noReply   bool // accept stream frames but never send a result back
}

func startFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	s := &fakeServer{ln: ln}
	go s.serve()
	return s
}

func (s *fakeServer) addr() string { return s.ln.Addr().String() }

func (s *fakeServer) serve() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		go s.handle(conn)
	}
}

func (s *fakeServer) handle(conn net.Conn) {
	defer conn.Close()
	first, err := wire.ReadFrame(conn)
	if err != nil || first == nil {
		return
	}
	var cmd map[string]any
	if err := json.Unmarshal(first, &cmd); err != nil {
		return
	}
	op, _ := cmd["op"].(string)

	switch op {
	case "stream_open":
		if s.failOpens {
			_ = wire.WriteFrame(conn, []byte(`{"VERSION":4,"success":false,"msg":"no such model"}`))
			return
		}
		_ = wire.WriteFrame(conn, []byte(`{"VERSION":4,"success":true}`))
		s.streamLoop(conn)
	case "modelzoo":
		_ = wire.WriteFrame(conn, []byte(`{"VERSION":4,"success":true,"models":[`+
			`{"name":"yolo","ModelParams":{"Device":{"DeviceType":"CPU"}}}]}`))
	case "sleep":
		if s.delay > 0 {
			time.Sleep(s.delay)
		}
		if s.failSleep {
			_ = wire.WriteFrame(conn, []byte(`{"VERSION":4,"success":false,"msg":"sleep refused"}`))
			return
		}
		_ = wire.WriteFrame(conn, []byte(`{"VERSION":4,"success":true}`))
	case "shutdown":
		_ = wire.WriteFrame(conn, []byte(`{"VERSION":4,"success":true}`))
	default:
		_ = wire.WriteFrame(conn, []byte(`{"VERSION":4,"success":true}`))
	}
}

// streamLoop echoes one MessagePack result per submitted frame, in order,
// until a zero-length close frame arrives.
func (s *fakeServer) streamLoop(conn net.Conn) {
	for {
		payload, err := wire.ReadFrame(conn)
		if err != nil {
			return
		}
		if payload == nil {
			return // close sentinel
		}
		if s.noReply {
			continue
		}
		res, err := wire.EncodeResult(map[string]any{"success": true, "echoed": len(payload)})
		if err != nil {
			return
		}
		if err := wire.WriteFrame(conn, res); err != nil {
			return
		}
	}
}

func (s *fakeServer) close() { _ = s.ln.Close() }

func dial(t *testing.T, s *fakeServer, opts ...core.Option) *tcp.Client {
	t.Helper()
	a, err := addr.Parse("asio://" + s.addr())
	if err != nil {
		t.Fatalf("addr.Parse: %v", err)
	}
	cfg := core.DefaultConfig()
	cfg.ConnectionTimeout = 2 * time.Second
	cfg.InferenceTimeout = 2 * time.Second
	cfg.MaxConnectRetries = 0
	for _, o := range opts {
		o(&cfg)
	}
	c, err := tcp.NewClient(a, cfg)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func TestModelZooList(t *testing.T) {
	s := startFakeServer(t)
	defer s.close()
	c := dial(t, s)
	defer c.Close()

	models, err := c.ModelZooList()
	if err != nil {
		t.Fatalf("ModelZooList: %v", err)
	}
	if len(models) != 1 || models[0].Name != "yolo" {
		t.Fatalf("ModelZooList = %+v, want one model named yolo", models)
	}
	dt, err := models[0].ExtendedParams.GetString("DeviceType")
	if err != nil {
		t.Fatalf("GetString(DeviceType): %v", err)
	}
	if dt != "CPU" {
		t.Errorf("DeviceType = %q, want CPU", dt)
	}
}

func TestPingHappyPath(t *testing.T) {
	s := startFakeServer(t)
	defer s.close()
	c := dial(t, s)
	defer c.Close()

	ok, err := c.Ping(1, false)
	if err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if !ok {
		t.Error("Ping() = false, want true")
	}
}

// TestPingFailurePropagatesWhenNotIgnored exercises spec.md §7's
// propagation policy: ignore_errors=false must raise like any other
// control op, not just return false.
func TestPingFailurePropagatesWhenNotIgnored(t *testing.T) {
	s := startFakeServer(t)
	s.failSleep = true
	defer s.close()
	c := dial(t, s)
	defer c.Close()

	if _, err := c.Ping(1, false); err == nil {
		t.Fatal("Ping(ignoreErrors=false) = nil error, want the server failure")
	}

	ok, err := c.Ping(1, true)
	if err != nil {
		t.Fatalf("Ping(ignoreErrors=true): %v", err)
	}
	if ok {
		t.Error("Ping(ignoreErrors=true) = true, want false on server failure")
	}
}

func TestStreamingHappyPath(t *testing.T) {
	s := startFakeServer(t)
	defer s.close()
	c := dial(t, s)
	defer c.Close()

	if err := c.OpenStream("yolo", 4, nil); err != nil {
		t.Fatalf("OpenStream: %v", err)
	}

	var mu sync.Mutex
	results := map[string]map[string]any{}
	done := make(chan struct{})
	count := 0
	if err := c.InstallCallback(func(doc map[string]any, tag string) {
		mu.Lock()
		results[tag] = doc
		count++
		if count == 3 {
			close(done)
		}
		mu.Unlock()
	}); err != nil {
		t.Fatalf("InstallCallback: %v", err)
	}

	for _, tag := range []string{"a", "b", "c"} {
		if err := c.Submit(core.FrameBatch{[]byte("frame-" + tag)}, tag); err != nil {
			t.Fatalf("Submit(%s): %v", tag, err)
		}
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for all results")
	}
	c.Finish()
	if le := c.LastError(); le != "" {
		t.Errorf("LastError() = %q, want empty", le)
	}
	for _, tag := range []string{"a", "b", "c"} {
		if results[tag] == nil {
			t.Errorf("missing result for tag %q", tag)
		}
	}
}

func TestPredictSingleShot(t *testing.T) {
	s := startFakeServer(t)
	defer s.close()
	c := dial(t, s)
	defer c.Close()

	if err := c.OpenStream("yolo", 4, nil); err != nil {
		t.Fatalf("OpenStream: %v", err)
	}
	doc, err := c.Predict(core.FrameBatch{[]byte("single-frame")})
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if doc["success"] != true {
		t.Errorf("Predict result = %v, want success:true", doc)
	}
}

func TestOpenStreamServerRejects(t *testing.T) {
	s := startFakeServer(t)
	s.failOpens = true
	defer s.close()
	c := dial(t, s)
	defer c.Close()

	err := c.OpenStream("nosuchmodel", 4, nil)
	if !cmn.Is(err, cmn.OperationFailed) {
		t.Errorf("OpenStream error = %v, want OperationFailed", err)
	}
}

func TestSubmitWithoutOpenStream(t *testing.T) {
	s := startFakeServer(t)
	defer s.close()
	c := dial(t, s)
	defer c.Close()

	err := c.Submit(core.FrameBatch{[]byte("x")}, "t")
	if !cmn.Is(err, cmn.IncorrectAPIUse) {
		t.Errorf("Submit without open stream = %v, want IncorrectAPIUse", err)
	}
}

func TestInferenceTimeoutWithNoServerReply(t *testing.T) {
	s := startFakeServer(t)
	s.noReply = true
	defer s.close()
	c := dial(t, s, core.WithInferenceTimeout(100*time.Millisecond))
	defer c.Close()

	if err := c.OpenStream("yolo", 1, nil); err != nil {
		t.Fatalf("OpenStream: %v", err)
	}
	// fill the single-slot window so the next submit blocks on backpressure
	if err := c.InstallCallback(func(map[string]any, string) {}); err != nil {
		t.Fatalf("InstallCallback: %v", err)
	}
	if err := c.Submit(core.FrameBatch{[]byte("first")}, "1"); err != nil {
		t.Fatalf("Submit(1): %v", err)
	}
	err := c.Submit(core.FrameBatch{[]byte("second")}, "2")
	if !cmn.Is(err, cmn.Timeout) {
		t.Errorf("Submit(2) under full window = %v, want Timeout", err)
	}
}
