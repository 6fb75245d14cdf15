// Package relay defines the delivery-platform boundary: inbound events bound
// to a user identity, and outbound render requests sent back to it.
package relay

import (
	"context"
	"errors"

	"edurelay/internal/model"
)

// ErrDeliveryFailed reports that an outbound send did not reach the peer.
// Persistence is the system of record; delivery is best-effort.
var ErrDeliveryFailed = errors.New("delivery failed")

type Button struct {
	Label  string
	Action string
}

// Render is one outbound message: text plus optional rows of inline choices.
type Render struct {
	Recipient int64
	Text      string
	Buttons   [][]Button
}

type Relay interface {
	Send(ctx context.Context, r Render) error
}

type EventKind int

const (
	EventCommand EventKind = iota
	EventAction
	EventContent
)

// Event is one inbound unit of user input: a command, a button press carrying
// an opaque action id, or free-form content.
type Event struct {
	Identity    int64
	DisplayName string
	Handle      string
	Kind        EventKind
	Command     string
	Action      string
	Text        string
	ContentKind model.ContentKind
}
