package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQPPublisher publishes appointment events to RabbitMQ. It dials per
// publish so a broker restart never wedges the service; the booking path
// treats every error here as non-fatal anyway.
type AMQPPublisher struct {
	url string
}

func NewAMQPPublisher(url string) *AMQPPublisher {
	return &AMQPPublisher{url: url}
}

func (p *AMQPPublisher) AppointmentCreated(ctx context.Context, ev AppointmentEvent) error {
	return p.publish(ctx, QueueAppointmentCreated, ev)
}

func (p *AMQPPublisher) AppointmentCancelled(ctx context.Context, ev AppointmentEvent) error {
	return p.publish(ctx, QueueAppointmentCancelled, ev)
}

func (p *AMQPPublisher) publish(ctx context.Context, queue string, ev AppointmentEvent) error {
	conn, err := amqp.Dial(p.url)
	if err != nil {
		log.Printf("amqp: dial failed: %v", err)
		return fmt.Errorf("amqp dial: %w", err)
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		log.Printf("amqp: channel open failed: %v", err)
		return fmt.Errorf("amqp channel: %w", err)
	}
	defer func() { _ = ch.Close() }()

	// Idempotent declare; durable so messages survive broker restarts.
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		log.Printf("amqp: queue declare failed: %v", err)
		return fmt.Errorf("amqp queue declare: %w", err)
	}

	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	pubCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err = ch.PublishWithContext(pubCtx, "", queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
	if err != nil {
		log.Printf("amqp: publish to %s failed: %v", queue, err)
		return fmt.Errorf("amqp publish: %w", err)
	}
	return nil
}
