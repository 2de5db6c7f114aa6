package broker

import (
	"context"
	"fmt"

	"returns-service/internal/models"
)

// EventPublisher handles publishing domain events
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

// PublishReturnCreated publishes ReturnCreated event
func (ep *EventPublisher) PublishReturnCreated(ctx context.Context, event *models.ReturnCreatedEvent) error {
	key := fmt.Sprintf("return-%d", event.OrderID)
	return ep.producer.PublishEvent(ctx, key, event)
}

// PublishReportGenerated publishes ReportGenerated event
func (ep *EventPublisher) PublishReportGenerated(ctx context.Context, event *models.ReportGeneratedEvent) error {
	return ep.producer.PublishEvent(ctx, "report", event)
}
