package core

import "errors"

var (
	ErrNotRegistered    = errors.New("connection not registered")
	ErrAlreadyInSession = errors.New("connection already in a session")
	ErrSessionConflict  = errors.New("participant already in an active session")
	ErrSameParticipant  = errors.New("session participants must be distinct")
	ErrNotParticipant   = errors.New("connection is not a session participant")
	ErrUnknownPolicy    = errors.New("unknown match policy")
)
