// Package channel defines the transport-agnostic message envelope and the
// contracts adapters implement to feed the router.
package channel

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// ChannelType identifies a chat transport.
type ChannelType string

// Supported channel types.
const (
	ChannelTelegram ChannelType = "telegram"
	ChannelWeb      ChannelType = "web"
)

func (c ChannelType) String() string {
	return string(c)
}

// ParseChannelType normalizes a raw channel name.
func ParseChannelType(raw string) (ChannelType, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "telegram":
		return ChannelTelegram, nil
	case "web", "websocket":
		return ChannelWeb, nil
	default:
		return "", fmt.Errorf("unsupported channel type: %s", raw)
	}
}

// ContentType classifies the primary payload of an inbound message.
type ContentType string

const (
	ContentText     ContentType = "text"
	ContentAudio    ContentType = "audio"
	ContentImage    ContentType = "image"
	ContentFile     ContentType = "file"
	ContentVoice    ContentType = "voice"
	ContentLocation ContentType = "location"
	ContentContact  ContentType = "contact"
)

// Attachment is one binary payload riding along with a message.
type Attachment struct {
	Data []byte
	Mime string
	Name string
}

// InboundMessage is the transport-agnostic envelope for one inbound chat
// event. It is immutable once constructed; the constructing adapter owns it
// until it is handed to the router.
type InboundMessage struct {
	Channel ChannelType
	// UserID is the internal user identity; ChannelUserID is the
	// channel-native id kept for reverse routing.
	UserID        string
	ChannelUserID string
	SessionID     string
	ContentType   ContentType
	Text          string
	Attachments   []Attachment
	// Raw holds an opaque reference to the original channel event.
	Raw        any
	ReceivedAt time.Time
	Metadata   map[string]any
}

// Preview returns a truncated text preview safe for activity logs.
func (m InboundMessage) Preview(max int) string {
	text := strings.TrimSpace(m.Text)
	if max <= 0 || len(text) <= max {
		return text
	}
	return text[:max] + "..."
}

// Sender delivers a reply back over a channel to a channel-native user id.
type Sender interface {
	Send(ctx context.Context, channelUserID, text string) error
}

// Handler consumes normalized inbound messages.
type Handler interface {
	Handle(ctx context.Context, msg InboundMessage)
}
