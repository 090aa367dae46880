package domain

import "context"

type EventRepository interface {
	Publish(ctx context.Context, topic string, events ...Event) error
	RegisterEventsHandler(topic string, handler func(events []Event))
	ClearRegisteredHandlers(topics ...string)
	Close()
}
