package tcp

import (
	"net"
	"time"

	"github.com/degirum/gosdk/cmn"
	"github.com/degirum/gosdk/internal/log"
)

// dialWithRetry implements spec.md §5's "Connect: connection_timeout
// with up to 3 retries" (here, cfg.MaxConnectRetries).
func dialWithRetry(hostport string, timeout time.Duration, maxRetries int) (net.Conn, error) {
	dialer := net.Dialer{Timeout: timeout, Control: tuneSocket}
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			log.Warnf("tcp: retrying connect to %s (attempt %d/%d): %v", hostport, attempt, maxRetries, lastErr)
		}
		conn, err := dialer.Dial("tcp4", hostport)
		if err == nil {
			return conn, nil
		}
		lastErr = err
	}
	return nil, cmn.WrapSystem(lastErr, "connect to %s after %d attempts", hostport, maxRetries+1)
}
