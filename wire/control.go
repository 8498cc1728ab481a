package wire

import (
	jsoniter "github.com/json-iterator/go"

	"github.com/degirum/gosdk/cmn"
)

// MinVersion is the minimum VERSION a control response must carry.
const MinVersion = 4

var json = jsoniter.ConfigFastest

// EncodeCommand marshals op plus an arbitrary payload merged at top level,
// producing a control-channel request: {"op": "<name>", ...fields}.
func EncodeCommand(op string, payload any) ([]byte, error) {
	base := map[string]any{"op": op}
	if payload != nil {
		pb, err := json.Marshal(payload)
		if err != nil {
			return nil, cmn.WrapParseError(err, "encode command payload")
		}
		var fields map[string]any
		if err := json.Unmarshal(pb, &fields); err != nil {
			return nil, cmn.WrapParseError(err, "flatten command payload")
		}
		for k, v := range fields {
			base[k] = v
		}
	}
	b, err := json.Marshal(base)
	if err != nil {
		return nil, cmn.WrapParseError(err, "encode command")
	}
	return b, nil
}

// DecodeControl parses b as a JSON object, validates VERSION, and surfaces
// success:false as an OperationFailed error carrying msg.
func DecodeControl(b []byte) (map[string]any, error) {
	var doc map[string]any
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, cmn.WrapParseError(err, "decode control response")
	}
	if err := checkVersion(doc); err != nil {
		return nil, err
	}
	if err := checkSuccess(doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func checkVersion(doc map[string]any) error {
	v, ok := doc["VERSION"]
	if !ok {
		return cmn.NewNotSupportedVersion("response missing VERSION field")
	}
	f, ok := v.(float64)
	if !ok {
		return cmn.NewNotSupportedVersion("VERSION field is not a number: %v", v)
	}
	if int(f) < MinVersion {
		return cmn.NewNotSupportedVersion("server VERSION %d below minimum %d", int(f), MinVersion)
	}
	return nil
}

func checkSuccess(doc map[string]any) error {
	s, ok := doc["success"]
	if !ok {
		return nil
	}
	ok2, _ := s.(bool)
	if ok2 {
		return nil
	}
	msg, _ := doc["msg"].(string)
	return cmn.NewOperationFailed("%s", msg)
}
