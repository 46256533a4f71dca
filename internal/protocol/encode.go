package protocol

import "encoding/json"

// Static frames, encoded once.
var (
	pingFrame = mustMarshal(bareWire{Type: KindPing})
	pongFrame = mustMarshal(bareWire{Type: KindPong})
)

// EncodePing returns the heartbeat frame sent to every peer.
func EncodePing() []byte { return pingFrame }

// EncodePong returns the reply to a peer ping.
func EncodePong() []byte { return pongFrame }

// EncodeAuthResult returns an auth_result frame.
func EncodeAuthResult(success bool, message string) []byte {
	return mustMarshal(authResultWire{Type: KindAuthResult, Success: success, Message: message})
}

// EncodePhoneStatus returns the aggregate source status frame sent to controllers.
func EncodePhoneStatus(connected bool) []byte {
	return mustMarshal(phoneStatusWire{Type: KindPhoneStatus, Connected: connected})
}

// EncodeWelcome returns the greeting sent on connect by permissive relays.
func EncodeWelcome(clientID, message string) []byte {
	return mustMarshal(welcomeWire{Type: KindWelcome, ClientID: clientID, Message: message})
}

// EncodeCommand wraps a controller command for delivery to sources.
// A nil data is omitted from the frame.
func EncodeCommand(command string, data json.RawMessage) ([]byte, error) {
	return json.Marshal(commandWire{Type: KindCommand, Command: command, Data: data})
}

// EncodeAuth returns an auth frame as sent by a peer.
func EncodeAuth(clientType, password string) []byte {
	return mustMarshal(authWire{Type: KindAuth, ClientType: clientType, Password: password})
}

// EncodePhoneData returns a phoneData frame as sent by a source.
func EncodePhoneData(payload json.RawMessage) ([]byte, error) {
	if payload == nil {
		payload = nullPayload
	}
	return json.Marshal(phoneDataWire{Type: KindPhoneData, Payload: payload})
}

// mustMarshal encodes wire structs made only of strings and bools, which cannot fail.
func mustMarshal(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		panic("protocol: marshal " + err.Error())
	}
	return data
}
