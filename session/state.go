/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package session

import "fmt"

type Status int

const (
	StatusDisabled Status = iota
	StatusConnecting
	StatusConnected
	StatusClosed
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusDisabled:
		return "disabled"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusClosed:
		return "closed"
	case StatusError:
		return "error"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// State is a read-only snapshot of a session, shared by every UI surface.
type State struct {
	Status           Status
	Error            string
	Online           bool
	Enabled          bool
	ConnectedDevices int
	HasEverSynced    bool
}

// WaitingForDevice is true while connected to a room no device has synced with yet.
func (s State) WaitingForDevice() bool {
	return s.Status == StatusConnected && !s.HasEverSynced
}

func (s State) Synced() bool {
	return s.Status == StatusConnected && s.HasEverSynced
}

// OtherDevices excludes this device from the room count.
func (s State) OtherDevices() int {
	return max(0, s.ConnectedDevices-1)
}

// Text renders the state for a status line.
func (s State) Text() string {
	switch {
	case !s.Enabled:
		return "Sync off"
	case !s.Online:
		return "Offline - sync paused"
	case s.Status == StatusError:
		return s.Error
	case s.Status == StatusConnecting:
		return "Connecting..."
	case s.Status != StatusConnected:
		return "Disconnected"
	case s.WaitingForDevice():
		return "Waiting for another device"
	case s.OtherDevices() > 0:
		return fmt.Sprintf("%d other device%s connected", s.OtherDevices(), plural(s.OtherDevices()))
	default:
		return "Synced"
	}
}

// Notification is a user-facing message produced by incoming sync data.
type Notification struct {
	Message   string
	Added     int
	PuzzleKey string
}

func plural(n int) string {
	if n == 1 {
		return ""
	}

	return "s"
}
