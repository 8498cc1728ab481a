//go:build !linux

package tcp

import "syscall"

func tuneSocket(network, address string, c syscall.RawConn) error { return nil }
