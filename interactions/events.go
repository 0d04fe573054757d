package interactions

import (
	"context"
	"log/slog"
	"time"
)

type EventType string

const (
	EventPostUpvoted    EventType = "interaction.upvoted"
	EventPostDownvoted  EventType = "interaction.downvoted"
	EventCommentCreated EventType = "interaction.commented"
	EventReplyCreated   EventType = "interaction.replied"
)

type Event struct {
	Type          EventType
	InteractionID string
	PostID        string
	UserID        string
	OccurredAt    time.Time
}

type Publisher interface {
	Publish(ctx context.Context, event *Event) (err error)
}

type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, *Event) error {
	return nil
}

// LogPublisher writes events to the default logger.
type LogPublisher struct{}

func (LogPublisher) Publish(ctx context.Context, event *Event) error {
	slog.InfoContext(
		ctx,
		"interaction event",
		"type", event.Type,
		"interactionId", event.InteractionID,
		"postId", event.PostID,
		"userId", event.UserID,
	)

	return nil
}
