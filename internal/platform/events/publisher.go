// Package events provides a fire-and-forget NATS publisher for comment
// domain events. Consumers (notifications, moderation tooling) subscribe to
// comments.events.> on the COMMENTS_EVENTS stream.
package events

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

const (
	StreamName    = "COMMENTS_EVENTS"
	StreamSubject = "comments.events.>"
)

// Subject constants for every event type.
const (
	SubjectCommentCreated    = "comments.events.created"
	SubjectCommentDeleted    = "comments.events.deleted"
	SubjectCommentTombstoned = "comments.events.tombstoned"
	SubjectPostLiked         = "comments.events.liked"
)

// Event is the canonical envelope sent to all comments.events.* subjects.
type Event struct {
	EventID    string         `json:"event_id"`
	EventName  string         `json:"event_name"`
	PostID     string         `json:"post_id"`
	OccurredAt time.Time      `json:"occurred_at"`
	Properties map[string]any `json:"properties,omitempty"`
}

// Publisher publishes events to NATS JetStream.
// A nil pointer and a Publisher without JetStream are both safe no-op stubs.
type Publisher struct {
	js  nats.JetStreamContext
	log *zap.Logger
	now func() time.Time
}

// New creates a Publisher using an existing JetStream context.
// Pass js=nil to get a no-op stub (useful in tests and without NATS).
func New(js nats.JetStreamContext, log *zap.Logger) *Publisher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Publisher{js: js, log: log, now: time.Now}
}

// EnsureStream creates the events stream, or widens its subjects if an older
// definition exists.
func (p *Publisher) EnsureStream() error {
	if p == nil || p.js == nil {
		return nil
	}
	info, err := p.js.StreamInfo(StreamName)
	if err == nil {
		for _, s := range info.Config.Subjects {
			if s == StreamSubject {
				return nil
			}
		}
		cfg := info.Config
		cfg.Subjects = []string{StreamSubject}
		_, err = p.js.UpdateStream(&cfg)
		return err
	}
	if !errors.Is(err, nats.ErrStreamNotFound) {
		return err
	}
	_, err = p.js.AddStream(&nats.StreamConfig{
		Name:     StreamName,
		Subjects: []string{StreamSubject},
		Storage:  nats.FileStorage,
		MaxAge:   7 * 24 * time.Hour,
	})
	return err
}

func (p *Publisher) envelope(eventName, postID string, props map[string]any) Event {
	return Event{
		EventID:    uuid.NewString(),
		EventName:  eventName,
		PostID:     postID,
		OccurredAt: p.now().UTC(),
		Properties: props,
	}
}

// Publish sends an event asynchronously. Failures are logged as warnings
// and never surface to the caller.
func (p *Publisher) Publish(subject, eventName, postID string, props map[string]any) {
	if p == nil || p.js == nil {
		return
	}
	data, err := json.Marshal(p.envelope(eventName, postID, props))
	if err != nil {
		p.log.Warn("events: marshal failed", zap.String("event", eventName), zap.Error(err))
		return
	}
	if _, err := p.js.PublishAsync(subject, data); err != nil {
		p.log.Warn("events: publish failed", zap.String("subject", subject), zap.Error(err))
	}
}
