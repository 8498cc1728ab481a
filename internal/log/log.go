// Package log is a small leveled logger adapted from the teacher's
// cmn/nlog: a severity-tagged writer to stderr with lazy formatting,
// rather than a generic third-party logging façade — this client has no
// log-rotation or multi-sink requirement that would justify one.
/*
 * Copyright (c) 2024-2026, DeGirum Corp. All rights reserved.
 */
package log

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

type severity int32

const (
	sevInfo severity = iota
	sevWarn
	sevError
)

func (s severity) tag() string {
	switch s {
	case sevWarn:
		return "W"
	case sevError:
		return "E"
	default:
		return "I"
	}
}

var (
	mu      sync.Mutex
	level   int32 // atomic: 0=info, 1=warn, 2=error-only
	verbose int32
)

// SetLevel adjusts the minimum severity written out. 0=info (default),
// 1=warn, 2=error.
func SetLevel(l int) { atomic.StoreInt32(&level, int32(l)) }

// SetVerbose toggles frame-level trace logging (checksum lines, etc.)
func SetVerbose(v bool) {
	if v {
		atomic.StoreInt32(&verbose, 1)
	} else {
		atomic.StoreInt32(&verbose, 0)
	}
}

func Verbose() bool { return atomic.LoadInt32(&verbose) != 0 }

func write(sev severity, format string, a ...any) {
	if int32(sev) < atomic.LoadInt32(&level) {
		return
	}
	msg := fmt.Sprintf(format, a...)
	mu.Lock()
	fmt.Fprintf(os.Stderr, "%s %s %s\n", time.Now().Format("2006-01-02T15:04:05.000"), sev.tag(), msg)
	mu.Unlock()
}

func Infof(format string, a ...any)  { write(sevInfo, format, a...) }
func Warnf(format string, a ...any)  { write(sevWarn, format, a...) }
func Errorf(format string, a ...any) { write(sevError, format, a...) }

func Infoln(a ...any)  { write(sevInfo, "%s", fmt.Sprint(a...)) }
func Warnln(a ...any)  { write(sevWarn, "%s", fmt.Sprint(a...)) }
func Errorln(a ...any) { write(sevError, "%s", fmt.Sprint(a...)) }
