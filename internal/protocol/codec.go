package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrMalformedEnvelope = errors.New("malformed envelope")
	ErrUnrecognizedType  = errors.New("unrecognized envelope type")
)

type wireEnvelope struct {
	Type    *string         `json:"type"`
	From    *string         `json:"from"`
	To      *string         `json:"to"`
	Tx      *string         `json:"tx"`
	Payload json.RawMessage `json:"payload"`
	Error   *Error          `json:"error"`
}

// Decode parses one inbound client frame. Requests must carry tx. Errors
// wrap ErrMalformedEnvelope or ErrUnrecognizedType; Decode never panics on
// client input.
func Decode(data []byte) (Envelope, error) {
	return decode(data, true)
}

// DecodeServerFrame parses a frame the server emits: Acks, Login responses,
// NewMember pushes and relayed Offer/Answer/Ice, which carry no tx.
func DecodeServerFrame(data []byte) (Envelope, error) {
	return decode(data, false)
}

func decode(data []byte, needTx bool) (Envelope, error) {
	var w wireEnvelope
	if err := json.Unmarshal(data, &w); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	if w.Type == nil {
		return Envelope{}, fmt.Errorf("%w: missing type", ErrMalformedEnvelope)
	}
	t, ok := ParseType(*w.Type)
	if !ok {
		return Envelope{}, fmt.Errorf("%w: %q", ErrUnrecognizedType, *w.Type)
	}

	env := Envelope{
		Type:  t,
		From:  deref(w.From),
		To:    deref(w.To),
		Tx:    deref(w.Tx),
		Error: w.Error,
	}
	if !isNull(w.Payload) {
		env.Payload = w.Payload
	}

	if err := validate(t, &w, env.Payload, needTx); err != nil {
		return Envelope{}, fmt.Errorf("%w: %s: %v", ErrMalformedEnvelope, t, err)
	}
	return env, nil
}

func validate(t Type, w *wireEnvelope, payload json.RawMessage, needTx bool) error {
	switch t {
	case TypeLogin:
		return requireData(payload)
	case TypeEnter:
		if err := requireHeader(w, false, needTx); err != nil {
			return err
		}
		return requireData(payload)
	case TypeOffer, TypeAnswer:
		if err := requireHeader(w, true, needTx); err != nil {
			return err
		}
		var p struct {
			SDP *string `json:"sdp"`
		}
		if err := unmarshalPayload(payload, &p); err != nil {
			return err
		}
		if p.SDP == nil {
			return errors.New("payload.sdp required")
		}
	case TypeIce:
		if err := requireHeader(w, true, needTx); err != nil {
			return err
		}
		var p struct {
			SDPMid        *string `json:"sdpMid"`
			SDPMLineIndex *int    `json:"sdpMLineIndex"`
			SDP           *string `json:"sdp"`
		}
		if err := unmarshalPayload(payload, &p); err != nil {
			return err
		}
		if p.SDPMid == nil || p.SDPMLineIndex == nil || p.SDP == nil {
			return errors.New("payload.sdpMid, payload.sdpMLineIndex and payload.sdp required")
		}
	case TypeLeave, TypeLogout, TypeKeepAlive:
		return requireHeader(w, false, needTx)
	case TypeNewMember:
		return requireData(payload)
	case TypeAck:
		// Responses are decoded leniently.
	}
	return nil
}

func requireHeader(w *wireEnvelope, needTarget, needTx bool) error {
	if w.From == nil {
		return errors.New("from required")
	}
	if needTx && w.Tx == nil {
		return errors.New("tx required")
	}
	if needTarget && w.To == nil {
		return errors.New("to required")
	}
	return nil
}

func requireData(payload json.RawMessage) error {
	var p struct {
		Data *string `json:"data"`
	}
	if err := unmarshalPayload(payload, &p); err != nil {
		return err
	}
	if p.Data == nil {
		return errors.New("payload.data required")
	}
	return nil
}

func unmarshalPayload(payload json.RawMessage, v any) error {
	if payload == nil {
		return errors.New("payload required")
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("payload: %w", err)
	}
	return nil
}

type wireHeader struct {
	Type  string  `json:"type"`
	From  string  `json:"from"`
	To    string  `json:"to"`
	Tx    *string `json:"tx,omitempty"`
	Error *Error  `json:"error,omitempty"`
}

// Encode serializes e. The payload is spliced in byte for byte.
func Encode(e Envelope) ([]byte, error) {
	h := wireHeader{
		Type:  e.Type.String(),
		From:  e.From,
		To:    e.To,
		Error: e.Error,
	}
	if e.Tx != "" || e.Type == TypeAck || e.Type == TypeLogin {
		tx := e.Tx
		h.Tx = &tx
	}
	b, err := json.Marshal(h)
	if err != nil {
		return nil, err
	}
	if len(e.Payload) == 0 {
		return b, nil
	}
	out := make([]byte, 0, len(b)+len(e.Payload)+12)
	out = append(out, b[:len(b)-1]...)
	out = append(out, `,"payload":`...)
	out = append(out, e.Payload...)
	out = append(out, '}')
	return out, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
