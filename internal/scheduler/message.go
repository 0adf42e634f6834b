// Package scheduler delivers delayed reclaim requests for holds. Delivery is
// at-least-once and may be early or late; the reclaimer tolerates both.
package scheduler

import (
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
)

const dueAtHeader = "due-at"

type reclaimMessage struct {
	HoldID string    `json:"hold_id"`
	DueAt  time.Time `json:"due_at"`
}

func encodeMessage(holdID string, dueAt time.Time) (kafka.Message, error) {
	body, err := json.Marshal(reclaimMessage{HoldID: holdID, DueAt: dueAt.UTC()})
	if err != nil {
		return kafka.Message{}, errors.Wrap(err, "encode reclaim message")
	}
	return kafka.Message{
		Key:   []byte(holdID),
		Value: body,
		Headers: []kafka.Header{
			{Key: dueAtHeader, Value: []byte(dueAt.UTC().Format(time.RFC3339Nano))},
		},
	}, nil
}

func decodeMessage(msg kafka.Message) (reclaimMessage, error) {
	var m reclaimMessage
	if err := json.Unmarshal(msg.Value, &m); err != nil {
		return reclaimMessage{}, errors.Wrap(err, "decode reclaim message")
	}
	if m.HoldID == "" {
		return reclaimMessage{}, errors.New("reclaim message without hold_id")
	}
	if m.DueAt.IsZero() {
		if v := header(msg.Headers, dueAtHeader); v != "" {
			if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
				m.DueAt = t
			}
		}
	}
	return m, nil
}

func header(headers []kafka.Header, key string) string {
	for _, h := range headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

// headerCarrier adapts kafka headers to propagation.TextMapCarrier.
type headerCarrier struct {
	headers *[]kafka.Header
}

func (c headerCarrier) Get(key string) string {
	return header(*c.headers, key)
}

func (c headerCarrier) Set(key, value string) {
	for i, h := range *c.headers {
		if h.Key == key {
			(*c.headers)[i].Value = []byte(value)
			return
		}
	}
	*c.headers = append(*c.headers, kafka.Header{Key: key, Value: []byte(value)})
}

func (c headerCarrier) Keys() []string {
	keys := make([]string, 0, len(*c.headers))
	for _, h := range *c.headers {
		keys = append(keys, h.Key)
	}
	return keys
}
