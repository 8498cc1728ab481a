//go:build linux

// Socket tuning for the proprietary TCP transport. Grounded on the
// teacher's ios/fsutils_linux.go pattern (a linux-only file paired with a
// portable fallback) using golang.org/x/sys/unix directly against the
// raw fd via net.Dialer.Control, rather than the smaller surface
// net.TCPConn exposes.
/*
 * Copyright (c) 2024-2026, DeGirum Corp. All rights reserved.
 */
package tcp

import (
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/degirum/gosdk/internal/log"
)

func tuneSocket(network, address string, c syscall.RawConn) error {
	var sockErr error
	err := c.Control(func(fd uintptr) {
		if e := unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_NODELAY, 1); e != nil {
			sockErr = e
			return
		}
		if e := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_KEEPALIVE, 1); e != nil {
			sockErr = e
			return
		}
	})
	if err != nil {
		log.Warnf("tcp: dialer control failed: %v", err)
		return nil // non-fatal: connection can proceed without tuning
	}
	if sockErr != nil {
		log.Warnf("tcp: socket option tuning failed: %v", sockErr)
	}
	return nil
}
