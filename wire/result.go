package wire

import (
	"bytes"

	"github.com/tinylib/msgp/msgp"

	"github.com/degirum/gosdk/cmn"
)

// ResultDoc is the decoded form of a stream-channel response: an opaque
// structured document (spec.md §3's "result_doc") plus the error signal
// extracted from it, if any.
type ResultDoc struct {
	Doc map[string]any
	Err error // OperationFailed if Doc carries success:false
}

// DecodeResult decodes a MessagePack-serialized JSON document from a
// stream-channel response payload. Grounded on the teacher's
// dsort/dsort.go usage of msgp.Writer/EncodeMsg; here we walk the generic
// msgp.Reader API instead of codegen'd Marshal methods, since the result
// schema is server-defined and opaque to the client (spec.md §3).
func DecodeResult(payload []byte) (ResultDoc, error) {
	r := msgp.NewReader(bytes.NewReader(payload))
	v, err := r.ReadIntf()
	if err != nil {
		return ResultDoc{}, cmn.WrapParseError(err, "decode msgpack result")
	}
	doc, ok := v.(map[string]any)
	if !ok {
		// tinylib/msgp decodes maps with non-string keys as map[string]interface{}
		// only when keys are strings; fall back to wrapping a bare scalar/array.
		doc = map[string]any{"value": v}
	}
	rd := ResultDoc{Doc: doc}
	if success, ok := doc["success"].(bool); ok && !success {
		msg, _ := doc["msg"].(string)
		rd.Err = cmn.NewOperationFailed("%s", msg)
	}
	return rd, nil
}

// EncodeResult is the inverse used by tests to build fixture server
// replies without a real DeGirum server.
func EncodeResult(doc map[string]any) ([]byte, error) {
	var buf bytes.Buffer
	w := msgp.NewWriter(&buf)
	if err := w.WriteIntf(doc); err != nil {
		return nil, cmn.WrapParseError(err, "encode msgpack result")
	}
	if err := w.Flush(); err != nil {
		return nil, cmn.WrapParseError(err, "flush msgpack writer")
	}
	return buf.Bytes(), nil
}
