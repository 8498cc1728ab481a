// Package apc holds the protocol-level constants shared by both
// transports: the control-channel opcode names named in spec.md §4.3's
// op table. Grounded on the teacher's api/apc package, which plays the
// same role for aistore's own control-plane verbs.
/*
 * Copyright (c) 2024-2026, DeGirum Corp. All rights reserved.
 */
package apc

// Control-channel opcodes (spec.md §4.3's op table). The TCP transport
// sends these as the "op" field of a JSON command; the HTTP transport
// maps each to its own literal path per spec.md §6's HTTP surface table,
// since those paths are not uniformly "/v1/<op>".
const (
	OpModelZoo        = "modelzoo"
	OpSystemInfo      = "system_info"
	OpLabelDictionary = "label_dictionary"
	OpSleep           = "sleep"
	OpShutdown        = "shutdown"
	OpTraceManage     = "trace_manage"
	OpZooManage       = "zoo_manage"
	OpDevCtrl         = "dev_ctrl"
	OpStreamOpen      = "stream_open"
)
