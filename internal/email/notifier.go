package email

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/servicebook/booking-api/internal/model"
	"github.com/servicebook/booking-api/internal/repository"
	"github.com/servicebook/booking-api/internal/service/event"
	"github.com/servicebook/booking-api/pkg/logger"
)

// Notifier turns booking events into customer mail
type Notifier struct {
	mail    Service
	catalog repository.CatalogRepository
	logger  *logger.Logger
}

func NewNotifier(mail Service, catalog repository.CatalogRepository, log *logger.Logger) *Notifier {
	return &Notifier{mail: mail, catalog: catalog, logger: log}
}

// Channels lists the event types the notifier subscribes to.
func (n *Notifier) Channels() []string {
	return []string{
		event.BookingCreated,
		event.BookingStatusChanged,
		event.BookingRescheduled,
		event.PaymentUpdated,
	}
}

// Handle decodes one broker message. Unknown event types are ignored.
func (n *Notifier) Handle(ctx context.Context, raw []byte) error {
	var env event.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("decode envelope: %w", err)
	}

	var (
		customerID int64
		subject    string
		body       string
	)
	switch env.Type {
	case event.BookingCreated:
		var p event.BookingCreatedPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return fmt.Errorf("decode %s: %w", env.Type, err)
		}
		customerID = p.CustomerID
		subject = fmt.Sprintf("Booking #%d received", p.BookingID)
		body = fmt.Sprintf("Your booking #%d is waiting for the vendor to confirm.", p.BookingID)
	case event.BookingStatusChanged:
		var p event.BookingStatusChangedPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return fmt.Errorf("decode %s: %w", env.Type, err)
		}
		customerID = p.CustomerID
		subject = fmt.Sprintf("Booking #%d %s", p.BookingID, p.To)
		body = statusBody(p)
	case event.BookingRescheduled:
		var p event.BookingRescheduledPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return fmt.Errorf("decode %s: %w", env.Type, err)
		}
		customerID = p.CustomerID
		subject = fmt.Sprintf("Booking #%d rescheduled", p.BookingID)
		body = fmt.Sprintf("Your booking #%d moved to a new time and is pending confirmation again.", p.BookingID)
	case event.PaymentUpdated:
		var p event.PaymentPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return fmt.Errorf("decode %s: %w", env.Type, err)
		}
		if p.Status == model.PaymentStatusInitiated {
			return nil
		}
		customerID = p.CustomerID
		subject = fmt.Sprintf("Payment for booking #%d %s", p.BookingID, p.Status)
		body = fmt.Sprintf("Your payment of %.2f via %s was %s.", p.Amount, p.Method, verb(p.Status))
	default:
		return nil
	}

	user, err := n.catalog.GetUser(ctx, customerID)
	if err != nil {
		return fmt.Errorf("load customer %d: %w", customerID, err)
	}

	if err := n.mail.Send(ctx, Message{
		To:      user.Email,
		Subject: subject,
		Body:    fmt.Sprintf("Hi %s,\n\n%s\n", user.Name, body),
	}); err != nil {
		return err
	}

	n.logger.Debug("Notification sent", "event_id", env.ID, "event_type", env.Type, "user_id", customerID)
	return nil
}

func statusBody(p event.BookingStatusChangedPayload) string {
	switch p.To {
	case model.BookingStatusAccepted:
		return fmt.Sprintf("Your booking #%d was confirmed.", p.BookingID)
	case model.BookingStatusRejected:
		return fmt.Sprintf("Your booking #%d was declined by the vendor.", p.BookingID)
	case model.BookingStatusCompleted:
		return fmt.Sprintf("Your booking #%d is complete. Thanks for booking with us.", p.BookingID)
	case model.BookingStatusCancelled:
		return fmt.Sprintf("Your booking #%d was cancelled.", p.BookingID)
	}
	return fmt.Sprintf("Your booking #%d is now %s.", p.BookingID, p.To)
}

func verb(s model.PaymentStatus) string {
	if s == model.PaymentStatusSuccess {
		return "received"
	}
	return "declined"
}
