package protocol

import (
	"encoding/json"

	"github.com/tidwall/gjson"
)

var nullPayload = json.RawMessage("null")

// Decode parses a text frame into an Inbound message.
//
// Frames that are not a JSON object return ErrMalformedFrame. Frames with an
// unrecognised or missing type decode to Unknown and no error.
func Decode(data []byte) (Inbound, error) {
	if !gjson.ValidBytes(data) {
		return Inbound{}, ErrMalformedFrame
	}
	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return Inbound{}, ErrMalformedFrame
	}

	in := Inbound{ClientType: stringField(root, "clientType")}

	typ := root.Get("type")
	if typ.Type != gjson.String {
		in.Msg = Unknown{Type: typ.Raw}
		return in, nil
	}

	switch Kind(typ.Str) {
	case KindAuth:
		in.Msg = Auth{
			ClientType: in.ClientType,
			Password:   stringField(root, "password"),
		}
	case KindPhoneData:
		in.Msg = PhoneData{Payload: rawField(root, "payload", nullPayload)}
	case KindCommand:
		in.Msg = Command{
			Command: root.Get("command").String(),
			Data:    rawField(root, "data", nil),
		}
	case KindPing:
		in.Msg = Ping{}
	case KindPong:
		in.Msg = Pong{}
	default:
		in.Msg = Unknown{Type: typ.Str}
	}

	return in, nil
}

// stringField returns a top-level string field, or "" when it is absent or
// not a JSON string. Numbers and booleans are never coerced.
func stringField(root gjson.Result, key string) string {
	if v := root.Get(key); v.Type == gjson.String {
		return v.Str
	}
	return ""
}

// rawField returns the verbatim JSON of a top-level field, or def when absent.
func rawField(root gjson.Result, key string, def json.RawMessage) json.RawMessage {
	v := root.Get(key)
	if !v.Exists() {
		return def
	}
	return json.RawMessage(v.Raw)
}
