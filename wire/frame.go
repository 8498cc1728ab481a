// Package wire implements the proprietary TCP framing used by spec.md §4.2:
// a 4-byte big-endian length prefix followed by payload. It frames both the
// JSON control exchange and the raw/MessagePack stream payloads;
// WriteFrame and ReadFrame never parse payload contents (decoding is done
// separately by DecodeControl and DecodeResult).
//
// Grounded on the teacher's transport/pdu.go header-framing approach
// (proto header + length-delimited body), reworked from aistore's internal
// object-transfer PDU into a simple request/response frame since this
// client has no chunked-object-streaming requirement.
/*
 * Copyright (c) 2024-2026, DeGirum Corp. All rights reserved.
 */
package wire

import (
	"encoding/binary"
	"io"

	"github.com/degirum/gosdk/cmn"
)

const lengthPrefixSize = 4

// MaxFrameSize bounds a single decoded frame; guards against a corrupt or
// malicious length prefix causing an unbounded allocation.
const MaxFrameSize = 256 << 20

// WriteFrame writes the length prefix then the payload as two writes on w,
// retrying partial writes to completion.
func WriteFrame(w io.Writer, payload []byte) error {
	var hdr [lengthPrefixSize]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(payload)))
	if err := writeFull(w, hdr[:]); err != nil {
		return cmn.WrapSystem(err, "write frame header")
	}
	if len(payload) == 0 {
		return nil
	}
	if err := writeFull(w, payload); err != nil {
		return cmn.WrapSystem(err, "write frame payload")
	}
	return nil
}

func writeFull(w io.Writer, b []byte) error {
	for len(b) > 0 {
		n, err := w.Write(b)
		if err != nil {
			return err
		}
		b = b[n:]
	}
	return nil
}

// ReadFrame reads one length-prefixed frame from r. A zero-length frame
// (used as the stream-close sentinel) returns a nil, non-error payload.
func ReadFrame(r io.Reader) ([]byte, error) {
	var hdr [lengthPrefixSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err // let caller distinguish io.EOF from mid-frame errors
	}
	n := binary.BigEndian.Uint32(hdr[:])
	if n == 0 {
		return nil, nil
	}
	if n > MaxFrameSize {
		return nil, cmn.NewParseError("frame length %d exceeds max %d", n, MaxFrameSize)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, cmn.WrapSystem(err, "read frame payload")
	}
	return buf, nil
}
