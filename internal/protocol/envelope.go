// Package protocol is the signaling wire schema: a tagged envelope keyed by
// "type", carried as one UTF-8 JSON object per text frame.
package protocol

import (
	"encoding/json"
	"strings"
)

type Type int

const (
	TypeUnknown Type = iota
	TypeLogin
	TypeEnter
	TypeOffer
	TypeAnswer
	TypeIce
	TypeNewMember
	TypeLeave
	TypeLogout
	TypeAck
	TypeKeepAlive
)

var typeNames = map[Type]string{
	TypeLogin:     "Login",
	TypeEnter:     "Enter",
	TypeOffer:     "Offer",
	TypeAnswer:    "Answer",
	TypeIce:       "Ice",
	TypeNewMember: "NewMember",
	TypeLeave:     "Leave",
	TypeLogout:    "Logout",
	TypeAck:       "Ack",
	TypeKeepAlive: "KeepAlive",
}

var typesByLowerName = func() map[string]Type {
	m := make(map[string]Type, len(typeNames))
	for t, name := range typeNames {
		m[strings.ToLower(name)] = t
	}
	return m
}()

func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return "Unknown"
}

// ParseType matches tag case-insensitively; older clients send "offer", "ICE", etc.
func ParseType(tag string) (Type, bool) {
	t, ok := typesByLowerName[strings.ToLower(tag)]
	return t, ok
}

// CodeUserNotFound covers both an unknown identity and a failed delivery.
const CodeUserNotFound = 1000

type Error struct {
	Code   int    `json:"code"`
	Reason string `json:"reason"`
}

func UserNotFound() *Error {
	return &Error{Code: CodeUserNotFound, Reason: "user not found"}
}

// Envelope is one signaling message in either direction. Payload holds the
// payload bytes exactly as received so relayed payloads are never re-encoded.
type Envelope struct {
	Type    Type
	From    string
	To      string
	Tx      string
	Payload json.RawMessage
	Error   *Error
}

type DataPayload struct {
	Data string `json:"data"`
}

type SDPPayload struct {
	SDP string `json:"sdp"`
}

type ICEPayload struct {
	SDPMid        string `json:"sdpMid"`
	SDPMLineIndex int    `json:"sdpMLineIndex"`
	SDP           string `json:"sdp"`
}

func (e Envelope) Data() (DataPayload, error) {
	var p DataPayload
	err := json.Unmarshal(e.Payload, &p)
	return p, err
}

func (e Envelope) SDP() (SDPPayload, error) {
	var p SDPPayload
	err := json.Unmarshal(e.Payload, &p)
	return p, err
}

func (e Envelope) ICE() (ICEPayload, error) {
	var p ICEPayload
	err := json.Unmarshal(e.Payload, &p)
	return p, err
}

func (e Envelope) IsRequest() bool {
	switch e.Type {
	case TypeLogin, TypeEnter, TypeOffer, TypeAnswer, TypeIce, TypeLeave, TypeLogout, TypeKeepAlive:
		return true
	}
	return false
}

// NewAck answers a request. A nil err means success.
func NewAck(to, tx string, err *Error) Envelope {
	return Envelope{Type: TypeAck, To: to, Tx: tx, Error: err}
}

// NewLoginResponse carries the server-issued identity back to the client.
func NewLoginResponse(id, tx string) Envelope {
	return Envelope{Type: TypeLogin, To: id, Tx: tx, Payload: mustPayload(DataPayload{Data: id})}
}

// NewMember tells an existing participant that member joined its room.
func NewMember(member, to string) Envelope {
	return Envelope{Type: TypeNewMember, From: member, To: to, Payload: mustPayload(DataPayload{Data: member})}
}

// Forward strips the correlation token from a request before it is relayed.
func Forward(req Envelope) Envelope {
	return Envelope{Type: req.Type, From: req.From, To: req.To, Payload: req.Payload}
}

func mustPayload(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
