package app

import "github.com/dkeye/Converse/internal/domain"

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	DropMessage
	DisconnectPeer
)

// Policy decides what a failed delivery to conn means.
type Policy interface {
	OnBackPressure(conn domain.ConnID, err error) BackpressureAction
}

// SimplePolicy treats every failed delivery as a lost link.
type SimplePolicy struct{}

func (SimplePolicy) OnBackPressure(domain.ConnID, error) BackpressureAction {
	return DisconnectPeer
}
