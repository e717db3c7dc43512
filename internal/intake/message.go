package intake

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"chatguard/internal/moderation"
)

// Message is one line of the intake stream as sent by the chat transport.
type Message struct {
	ID        string    `json:"id"`
	Channel   string    `json:"channel"`
	Author    string    `json:"author"`
	Content   string    `json:"content"`
	Timestamp Timestamp `json:"timestamp"`
	Exempt    bool      `json:"exempt"`
	Bot       bool      `json:"bot"`
}

// Timestamp accepts either unix seconds (fractions allowed) or an RFC 3339 string.
type Timestamp struct {
	time.Time
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		t.Time = time.Time{}
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		parsed, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return fmt.Errorf("invalid timestamp %q: %w", s, err)
		}
		t.Time = parsed
		return nil
	}

	var secs float64
	if err := json.Unmarshal(data, &secs); err != nil {
		return fmt.Errorf("invalid timestamp %s: %w", data, err)
	}
	whole, frac := math.Modf(secs)
	t.Time = time.Unix(int64(whole), int64(frac*1e9)).UTC()
	return nil
}

var errNoAuthor = errors.New("message has no author")

// decodeMessage parses one line. A missing timestamp is replaced by now.
func decodeMessage(line []byte, now func() time.Time) (Message, error) {
	var msg Message
	if err := json.Unmarshal(line, &msg); err != nil {
		return Message{}, err
	}
	if msg.Author == "" {
		return Message{}, errNoAuthor
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp.Time = now()
	}
	return msg, nil
}

func (m Message) Event() moderation.Event {
	return moderation.Event{
		ID:        m.ID,
		Channel:   m.Channel,
		Identity:  m.Author,
		Text:      m.Content,
		Timestamp: m.Timestamp.Time,
		Exempt:    m.Exempt,
	}
}
