package relay

import (
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/coachpo/foghorn/core/message"
)

// EnvelopeKind tags payloads produced by the forwarder. Receivers ignore
// payloads carrying any other kind.
const EnvelopeKind = "log-forward"

// Envelope is the wire form of one forwarded log call.
type Envelope struct {
	Kind      string          `json:"kind"`
	MessageID string          `json:"message_id"`
	App       string          `json:"app,omitempty"`
	Level     message.Level   `json:"level"`
	Text      string          `json:"text"`
	DebugRank int             `json:"debug_rank,omitempty"`
	Options   message.Options `json:"options"`
	SentAt    time.Time       `json:"sent_at"`
}

// NewEnvelope wraps a log call for transport, stamping a fresh message ID.
func NewEnvelope(app string, msg message.Message, opts message.Options) Envelope {
	return Envelope{
		Kind:      EnvelopeKind,
		MessageID: uuid.NewString(),
		App:       app,
		Level:     msg.Level,
		Text:      msg.Text,
		DebugRank: msg.DebugRank,
		Options:   opts,
		SentAt:    msg.At,
	}
}

// Message reconstructs the original log call carried by the envelope.
func (e Envelope) Message() message.Message {
	return message.Message{
		Level:     e.Level,
		Text:      e.Text,
		DebugRank: e.DebugRank,
		At:        e.SentAt,
	}
}

// Encode serializes the envelope for transport.
func (e Envelope) Encode() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("envelope encode: %w", err)
	}
	return data, nil
}

// DecodeEnvelope parses a transport payload. Payloads that do not carry the
// log-forward kind are rejected so receivers can skip foreign traffic.
func DecodeEnvelope(data []byte) (Envelope, error) {
	if len(data) == 0 {
		return Envelope{}, fmt.Errorf("envelope decode: empty payload")
	}
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("envelope decode: %w", err)
	}
	if env.Kind != EnvelopeKind {
		return Envelope{}, fmt.Errorf("envelope decode: unexpected kind %q", env.Kind)
	}
	return env, nil
}
