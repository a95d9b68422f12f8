// Package domain contains entity without logic, just meta-data
package domain

import (
	"errors"
	"strings"
	"unicode/utf8"
)

const (
	MaxUserIDLen   = 64
	MaxUsernameLen = 36
)

var (
	ErrUserIDEmpty   = errors.New("user id empty")
	ErrUserIDTooLong = errors.New("user id too long")
)

// UserID is the durable identity a connection registers under.
type UserID string

func (id UserID) String() string { return string(id) }

// ParseUserID trims and validates a client supplied identity.
func ParseUserID(raw string) (UserID, error) {
	s := strings.TrimSpace(raw)
	if len(s) == 0 {
		return "", ErrUserIDEmpty
	}
	if len(s) > MaxUserIDLen {
		return "", ErrUserIDTooLong
	}
	return UserID(s), nil
}

// Profile is what the user directory knows about a user.
// Only UserID is guaranteed; the rest is best effort.
type Profile struct {
	UserID       UserID `json:"userId"`
	Username     string `json:"username,omitempty"`
	Country      string `json:"country,omitempty"`
	FluencyLevel string `json:"fluencyLevel,omitempty"`
}

// BareProfile is used when nothing beyond the identity is known.
func BareProfile(id UserID) Profile {
	return Profile{UserID: id}
}

// DisplayName is the username cut to MaxUsernameLen runes, or the id when
// no username is known.
func (p Profile) DisplayName() string {
	if p.Username == "" {
		return string(p.UserID)
	}
	if utf8.RuneCountInString(p.Username) <= MaxUsernameLen {
		return p.Username
	}
	return string([]rune(p.Username)[:MaxUsernameLen])
}
