package registry

import (
	"errors"

	"github.com/google/uuid"
)

// roomCodeLen is the number of UUID characters kept as the shareable code.
const roomCodeLen = 8

const maxCodeAttempts = 16

// NewRoomCode creates a room under a fresh 8-character code and returns the
// code. Codes are the leading characters of a random UUID; collisions are
// retried.
func (r *Registry) NewRoomCode() (string, error) {
	for i := 0; i < maxCodeAttempts; i++ {
		code := uuid.NewString()[:roomCodeLen]
		if r.CreateRoom(code) {
			return code, nil
		}
	}
	return "", errors.New("could not allocate an unused room code")
}
