// Package domain contains entity without logic, just meta-data
// and the validation rules the boundary relies on.
package domain

import "errors"

const (
	MaxRoomNameLen = 128
	MaxIdentityLen = 64
)

var (
	// ErrInvalidInput covers an empty room name or identity on join.
	ErrInvalidInput = errors.New("room name and identity are required")
	// ErrNameTaken means the identity already occupies the room.
	ErrNameTaken = errors.New("identity already taken in this room")
)

// Roster is the ordered set of identities occupying a room, in join order.
type Roster []string

// ValidateJoin checks the two fields a join must carry. Both have to be
// non-empty; oversized values are rejected the same way so the registry
// never stores unbounded strings.
func ValidateJoin(room, identity string) error {
	if room == "" || identity == "" {
		return ErrInvalidInput
	}
	if len(room) > MaxRoomNameLen || len(identity) > MaxIdentityLen {
		return ErrInvalidInput
	}
	return nil
}
