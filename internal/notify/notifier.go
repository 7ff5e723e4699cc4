package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"
	"github.com/rs/zerolog/log"

	"example.com/venuehub/services/events/config"
	"example.com/venuehub/services/events/internal/models"
)

// Dispatcher delivers key-field change notifications. Delivery failures are
// the dispatcher's own concern; callers fire and forget.
type Dispatcher interface {
	SendChangeNotification(ctx context.Context, recipient, eventTitle string, diffs []models.FieldDiff) error
	Close() error
}

// ChangeNotification is the message published for each key-field change.
type ChangeNotification struct {
	Recipient  string             `json:"recipient"`
	EventTitle string             `json:"eventTitle"`
	Changes    []models.FieldDiff `json:"changes"`
	SentAt     string             `json:"sentAt"`
}

// serviceBusDispatcher publishes notifications to an Azure Service Bus queue.
type serviceBusDispatcher struct {
	client    *azservicebus.Client
	sender    *azservicebus.Sender
	queueName string
}

// NewDispatcher creates a notification dispatcher. Without a connection
// string, notifications are logged and dropped instead of published.
func NewDispatcher(cfg config.ServiceBusConfig) (Dispatcher, error) {
	if cfg.ConnectionString == "" {
		log.Warn().Msg("Service Bus connection string not provided, change notifications will be logged only")
		return &loggingDispatcher{}, nil
	}

	client, err := azservicebus.NewClientFromConnectionString(cfg.ConnectionString, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Service Bus client: %w", err)
	}

	sender, err := client.NewSender(cfg.QueueName, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Service Bus sender: %w", err)
	}

	return &serviceBusDispatcher{
		client:    client,
		sender:    sender,
		queueName: cfg.QueueName,
	}, nil
}

// SendChangeNotification publishes one notification message to the queue.
func (d *serviceBusDispatcher) SendChangeNotification(ctx context.Context, recipient, eventTitle string, diffs []models.FieldDiff) error {
	notification := ChangeNotification{
		Recipient:  recipient,
		EventTitle: eventTitle,
		Changes:    diffs,
		SentAt:     time.Now().UTC().Format(time.RFC3339),
	}

	data, err := json.Marshal(notification)
	if err != nil {
		return fmt.Errorf("failed to marshal change notification: %w", err)
	}

	msg := &azservicebus.Message{
		Body: data,
		ApplicationProperties: map[string]interface{}{
			"source":    "events-service",
			"recipient": recipient,
		},
	}

	return d.sender.SendMessage(ctx, msg, nil)
}

// Close closes the Service Bus sender and client.
func (d *serviceBusDispatcher) Close() error {
	if d.sender != nil {
		if err := d.sender.Close(context.Background()); err != nil {
			return err
		}
	}
	if d.client != nil {
		return d.client.Close(context.Background())
	}
	return nil
}

// loggingDispatcher records notifications in the log instead of publishing.
type loggingDispatcher struct{}

func (d *loggingDispatcher) SendChangeNotification(ctx context.Context, recipient, eventTitle string, diffs []models.FieldDiff) error {
	log.Info().
		Str("recipient", recipient).
		Str("event_title", eventTitle).
		Int("changes", len(diffs)).
		Msg("Change notification (dispatcher disabled)")
	return nil
}

func (d *loggingDispatcher) Close() error { return nil }
