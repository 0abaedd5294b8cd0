package events

import (
	"context"
	log "github.com/sirupsen/logrus"
	"time"
)

type Type string

const (
	UserCreated   Type = "user.created"
	UserUpdated   Type = "user.updated"
	FollowToggled Type = "follow.toggled"
	PostCreated   Type = "post.created"
	PostUpdated   Type = "post.updated"
	PostDeleted   Type = "post.deleted"
	LikeToggled   Type = "like.toggled"
	SaveToggled   Type = "save.toggled"
)

// Event tells clients which rows changed so they can re-fetch. Active holds
// the post-toggle state for toggle events; OwnerID is the creator of the
// subject when the subject is a post.
type Event struct {
	Type      Type      `json:"type"`
	ActorID   string    `json:"actor_id"`
	SubjectID string    `json:"subject_id"`
	OwnerID   string    `json:"owner_id,omitempty"`
	Active    *bool     `json:"active,omitempty"`
	At        time.Time `json:"at"`
}

func NewEvent(eventType Type, actorID, subjectID string) Event {
	return Event{
		Type:      eventType,
		ActorID:   actorID,
		SubjectID: subjectID,
		At:        time.Now().UTC(),
	}
}

func NewToggleEvent(eventType Type, actorID, subjectID string, active bool) Event {
	event := NewEvent(eventType, actorID, subjectID)
	event.Active = &active
	return event
}

type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Bus fans events out to every publisher. Delivery is best-effort: a failing
// publisher is logged and never fails the mutation that emitted the event.
// A nil *Bus discards everything.
type Bus struct {
	publishers []Publisher
	listeners  []func(Event)
}

func NewBus(publishers ...Publisher) *Bus {
	return &Bus{publishers: publishers}
}

// Subscribe registers an in-process listener, called synchronously on Emit.
func (b *Bus) Subscribe(listener func(Event)) {
	b.listeners = append(b.listeners, listener)
}

func (b *Bus) Emit(ctx context.Context, event Event) {
	if b == nil {
		return
	}
	for _, listener := range b.listeners {
		listener(event)
	}
	for _, publisher := range b.publishers {
		if err := publisher.Publish(ctx, event); err != nil {
			log.WithFields(log.Fields{
				"type":    event.Type,
				"subject": event.SubjectID,
			}).Errorf("Error publishing event: %v", err)
		}
	}
}
