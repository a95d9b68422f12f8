package core

// Frame is a raw encoded message as written to the wire.
type Frame []byte

// SignalConnection abstracts for a system messaging transport.
// Owned by the adapter; the adapter must Close() it.
// TrySend must never block: it either queues the event or fails.
type SignalConnection interface {
	TrySend(Event) error
	Close()
}
