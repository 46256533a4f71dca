package protocol

import (
	"encoding/json"
	"errors"
)

// Errors
var (
	ErrMalformedFrame = errors.New("malformed frame")
)

// Kind is the value of the "type" field of a frame.
type Kind string

const (
	KindAuth        Kind = "auth"
	KindAuthResult  Kind = "auth_result"
	KindPhoneData   Kind = "phoneData"
	KindCommand     Kind = "command"
	KindPing        Kind = "ping"
	KindPong        Kind = "pong"
	KindPhoneStatus Kind = "phone_status"
	KindWelcome     Kind = "welcome"
)

// Wire names of the two peer populations.
const (
	ClientTypeWebsite = "website"
	ClientTypeTermux  = "termux"
)

// Message is a decoded inbound frame. The concrete type is one of
// Auth, PhoneData, Command, Ping, Pong or Unknown.
type Message interface {
	Kind() Kind
	isMessage()
}

// Inbound is the result of decoding a single frame.
type Inbound struct {
	Msg Message

	// ClientType is the frame's "clientType" field, empty when absent.
	// Permissive relays use it to classify peers on first sight.
	ClientType string
}

// Auth is a credential presentation from a peer.
type Auth struct {
	ClientType string
	Password   string
}

// PhoneData carries a source payload that is forwarded verbatim.
type PhoneData struct {
	Payload json.RawMessage // Raw JSON of the "payload" field; "null" when absent
}

// Command is a controller instruction for the sources.
type Command struct {
	Command string
	Data    json.RawMessage // Raw JSON of the "data" field; nil when absent
}

// Ping asks the relay for a pong.
type Ping struct{}

// Pong answers a server heartbeat.
type Pong struct{}

// Unknown is any frame whose type is not recognised.
type Unknown struct {
	Type string
}

func (Auth) Kind() Kind      { return KindAuth }
func (PhoneData) Kind() Kind { return KindPhoneData }
func (Command) Kind() Kind   { return KindCommand }
func (Ping) Kind() Kind      { return KindPing }
func (Pong) Kind() Kind      { return KindPong }
func (u Unknown) Kind() Kind { return Kind(u.Type) }

func (Auth) isMessage()      {}
func (PhoneData) isMessage() {}
func (Command) isMessage()   {}
func (Ping) isMessage()      {}
func (Pong) isMessage()      {}
func (Unknown) isMessage()   {}

// Wire types for outbound frames

type authWire struct {
	Type       Kind   `json:"type"`
	ClientType string `json:"clientType"`
	Password   string `json:"password"`
}

type authResultWire struct {
	Type    Kind   `json:"type"`
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type phoneStatusWire struct {
	Type      Kind `json:"type"`
	Connected bool `json:"connected"`
}

type phoneDataWire struct {
	Type    Kind            `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type commandWire struct {
	Type    Kind            `json:"type"`
	Command string          `json:"command"`
	Data    json.RawMessage `json:"data,omitempty"`
}

type welcomeWire struct {
	Type     Kind   `json:"type"`
	ClientID string `json:"clientId"`
	Message  string `json:"message"`
}

type bareWire struct {
	Type Kind `json:"type"`
}
