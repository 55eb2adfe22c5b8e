package notify

import (
	"context"
	"fmt"
	"log"

	"floorbot/internal/domain"
	"floorbot/internal/metrics"
)

// MaxRecipients caps a single escalation fan-out.
const MaxRecipients = 10

// Gateway delivers a text to one phone number. Each call may fail on its own.
type Gateway interface {
	Send(ctx context.Context, companyID, phone, text string) error
}

// Resolver turns escalation tiers into directory users.
type Resolver interface {
	Resolve(ctx context.Context, companyID string, targets []domain.Target, department string) ([]domain.User, error)
}

type Notifier struct {
	resolver Resolver
	gateway  Gateway
}

func NewNotifier(resolver Resolver, gateway Gateway) *Notifier {
	return &Notifier{resolver: resolver, gateway: gateway}
}

// Recipients picks the usable, distinct phones of users in order, capped at
// MaxRecipients.
func Recipients(users []domain.User) []string {
	seen := make(map[string]bool)
	var phones []string
	for _, u := range users {
		phone := u.ContactPhone()
		if phone == "" || seen[phone] {
			continue
		}
		seen[phone] = true
		phones = append(phones, phone)
		if len(phones) == MaxRecipients {
			break
		}
	}
	return phones
}

// Notify sends body to everyone holding targets and returns the phones that
// accepted it. A failed send is logged and skipped. Only a directory failure
// is returned as an error.
func (n *Notifier) Notify(ctx context.Context, companyID, body string, targets []domain.Target, department string) ([]string, error) {
	users, err := n.resolver.Resolve(ctx, companyID, targets, department)
	if err != nil {
		return nil, fmt.Errorf("notify: %w", err)
	}

	var sent []string
	for _, phone := range Recipients(users) {
		if err := n.gateway.Send(ctx, companyID, phone, body); err != nil {
			log.Printf("notify send error company=%s phone=%s: %v", companyID, phone, err)
			metrics.NotificationFailed()
			continue
		}
		metrics.NotificationSent()
		sent = append(sent, phone)
	}
	log.Printf("notify company=%s targets=%v users=%d sent=%d", companyID, targets, len(users), len(sent))
	return sent, nil
}
