package signal

import (
	"bytes"
	"encoding/json"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/dkeye/Converse/internal/core"
	"github.com/dkeye/Converse/internal/domain"
)

const (
	SubprotocolJSON    = "converse.json"
	SubprotocolMsgpack = "converse.msgpack"
)

// payloadEncoding values tell a receiver how to read a payload that came
// from the other framing.
const (
	payloadEncodingBase64 = "base64"
	payloadEncodingJSON   = "json"
)

// codec frames envelopes for one negotiated subprotocol.
type codec interface {
	Name() string
	MessageType() int
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
	// Binary reports whether payloads read through this codec are raw bytes
	// rather than JSON text.
	Binary() bool
	// payload maps relayed bytes to their wire value plus the payloadEncoding
	// to announce, if any.
	payload(p []byte, binary bool) (any, string)
}

func codecFor(subprotocol string) codec {
	if subprotocol == SubprotocolMsgpack {
		return msgpackCodec{}
	}
	return jsonCodec{}
}

type jsonCodec struct{}

func (jsonCodec) Name() string                       { return SubprotocolJSON }
func (jsonCodec) MessageType() int                   { return websocket.TextMessage }
func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Binary() bool                       { return false }

// JSON text from a JSON sender goes inline; bytes from a binary sender
// become a base64 string.
func (jsonCodec) payload(p []byte, binary bool) (any, string) {
	if len(p) == 0 {
		return nil, ""
	}
	if binary {
		return p, payloadEncodingBase64
	}
	return json.RawMessage(p), ""
}

// msgpackCodec reuses the json field names so both framings share one schema.
type msgpackCodec struct{}

func (msgpackCodec) Name() string     { return SubprotocolMsgpack }
func (msgpackCodec) MessageType() int { return websocket.BinaryMessage }

func (msgpackCodec) Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	enc.SetOmitEmpty(true)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (msgpackCodec) Unmarshal(data []byte, v any) error {
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	dec.SetCustomStructTag("json")
	return dec.Decode(v)
}

func (msgpackCodec) Binary() bool { return true }

func (msgpackCodec) payload(p []byte, binary bool) (any, string) {
	if len(p) == 0 {
		return nil, ""
	}
	if binary {
		return p, ""
	}
	return p, payloadEncodingJSON
}

// Payload is an opaque inbound blob: the raw JSON value under JSON framing,
// the bin contents under msgpack.
type Payload []byte

func (p *Payload) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*p = nil
		return nil
	}
	*p = append((*p)[:0], b...)
	return nil
}

func (p *Payload) DecodeMsgpack(dec *msgpack.Decoder) error {
	b, err := dec.DecodeBytes()
	if err != nil {
		return err
	}
	*p = b
	return nil
}

type envelope struct {
	Type string `json:"type"`
}

type registerRequest struct {
	UserID string `json:"userId" validate:"required,max=64"`
}

type signalRequest struct {
	SessionID string  `json:"sessionId" validate:"omitempty,max=64"`
	Payload   Payload `json:"payload" validate:"required"`
}

type endCallRequest struct {
	SessionID string `json:"sessionId" validate:"omitempty,max=64"`
}

// outbound is the wire form of core.Event.
type outbound struct {
	Type          string             `json:"type"`
	UserID        domain.UserID      `json:"userId,omitempty"`
	SessionID     domain.SessionID   `json:"sessionId,omitempty"`
	PartnerUserID domain.UserID      `json:"partnerUserId,omitempty"`
	FromUserID    domain.UserID      `json:"fromUserId,omitempty"`
	Partner       *domain.Profile    `json:"partner,omitempty"`
	Profile       *domain.Profile    `json:"profile,omitempty"`
	Initiator     *bool              `json:"initiator,omitempty"`
	Waiting       *bool              `json:"waiting,omitempty"`
	Payload       any                `json:"payload,omitempty"`
	PayloadEnc    string             `json:"payloadEncoding,omitempty"`
	ICEServers    []webrtc.ICEServer `json:"iceServers,omitempty"`
	Reason        string             `json:"reason,omitempty"`
	Error         string             `json:"error,omitempty"`
	Ref           string             `json:"ref,omitempty"`
}

func toWire(ev core.Event, c codec) outbound {
	out := outbound{
		Type:          string(ev.Type),
		UserID:        ev.UserID,
		SessionID:     ev.SessionID,
		PartnerUserID: ev.PartnerUserID,
		FromUserID:    ev.FromUserID,
		Partner:       ev.Partner,
		Profile:       ev.Profile,
		ICEServers:    ev.ICEServers,
		Reason:        ev.Reason,
		Error:         ev.Error,
		Ref:           ev.Ref,
	}
	out.Payload, out.PayloadEnc = c.payload(ev.Payload, ev.BinaryPayload)
	switch ev.Type {
	case core.EventPaired:
		out.Initiator = &ev.Initiator
	case core.EventWaiting, core.EventWhoAmI:
		out.Waiting = &ev.Waiting
	}
	return out
}
