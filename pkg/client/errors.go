package client

import (
	"errors"
	"fmt"

	"github.com/omochice/fcchat/pkg/protocol"
)

var (
	// ErrNotConnected is returned when an operation needs a connection and
	// Connect was never called, or the caller asked not to wait for one.
	ErrNotConnected = errors.New("client is not connected")
	// ErrConnecting is returned for commands sent while a connection is
	// still being established.
	ErrConnecting = errors.New("client is connecting and cannot send commands yet")
	// ErrManualDisconnect is returned to connection waiters when Disconnect
	// is called before a connection was established.
	ErrManualDisconnect = errors.New("disconnect requested before connection could be established")
	// ErrConnectionLost is returned to a pending login when the connection
	// drops.
	ErrConnectionLost = errors.New("connection lost")
	// ErrTimeout is returned when a wait ran out of time.
	ErrTimeout = errors.New("timed out")
	// ErrLoginFailed is returned when the server refuses the credentials.
	ErrLoginFailed = errors.New("login failed")
	// ErrNotRoomHelper is returned for room helper commands on rooms where
	// the client has no room helper rights.
	ErrNotRoomHelper = errors.New("client is not room helper")
	// ErrModelOffline is returned for room helper commands the server could
	// not run because the model is offline.
	ErrModelOffline = errors.New("model is offline")
	// ErrNoClubAccess is returned when joining a club show without a valid
	// membership.
	ErrNoClubAccess = errors.New("no valid membership for club show")
	// ErrUserNotFound is returned when a user lookup came back empty.
	ErrUserNotFound = errors.New("user not found")
	// ErrNoStream is returned when a model has no public stream.
	ErrNoStream = errors.New("no stream available")
	// ErrNoChallenger is returned for modern logins without a Challenger.
	ErrNoChallenger = errors.New("modern login needs a challenger")
)

// RejectedError is returned when the server answered a request with a
// refusal. Packet holds the answer.
type RejectedError struct {
	Packet *protocol.Packet
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("request rejected: %s", e.Packet)
}
