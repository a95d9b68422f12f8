package domain

type SignalKind string

const (
	SignalOffer     SignalKind = "offer"
	SignalAnswer    SignalKind = "answer"
	SignalCandidate SignalKind = "candidate"
)

func (k SignalKind) Valid() bool {
	switch k {
	case SignalOffer, SignalAnswer, SignalCandidate:
		return true
	}
	return false
}

// SignalingMessage is relayed and discarded, never stored.
// Payload is opaque to the server. Binary marks raw bytes as opposed to
// JSON text, so the receiving side can frame it without guessing.
type SignalingMessage struct {
	Kind    SignalKind
	From    ConnID
	Session SessionID
	Payload []byte
	Binary  bool
}
