// Package agent defines the contract with the external agent runner: the
// engine that executes conversational turns and streams response events back.
package agent

import (
	"context"
	"errors"
)

// ErrSessionNotFound is reported when the runner no longer knows a session id.
var ErrSessionNotFound = errors.New("agent session not found")

// Blob is inline binary content tagged with its mime type.
type Blob struct {
	Mime string `json:"mime"`
	Data []byte `json:"data"`
}

// Part is one piece of turn content: either text or inline binary.
type Part struct {
	Text   string `json:"text,omitempty"`
	Inline *Blob  `json:"inline,omitempty"`
}

// Content is the full input of one turn.
type Content struct {
	Parts []Part `json:"parts"`
}

// Event is one element of the runner's response stream. Final events carry
// the text fragments that make up the user-visible reply.
type Event struct {
	Final        bool     `json:"is_final"`
	TextParts    []string `json:"text_parts,omitempty"`
	TurnComplete bool     `json:"turn_complete,omitempty"`
	Interrupted  bool     `json:"interrupted,omitempty"`
}

// Runner executes conversational turns. Implementations are external
// collaborators; this package only fixes the shape the router depends on.
type Runner interface {
	// CreateSession opens a new runner session for the user.
	CreateSession(ctx context.Context, userID string) (string, error)
	// GetSession verifies a session id is still live; ErrSessionNotFound otherwise.
	GetSession(ctx context.Context, sessionID string) error
	// Run submits one turn and streams response events. The event channel is
	// closed when the stream ends; a terminal error, if any, arrives on the
	// error channel afterwards.
	Run(ctx context.Context, userID, sessionID string, content Content) (<-chan Event, <-chan error)
}
