package service

import "lifescore_backend/internal/domain"

// Notifier receives ledger events for a user. Delivery is best effort.
type Notifier interface {
	Notify(userID string, ev domain.Event)
}

type nopNotifier struct{}

func (nopNotifier) Notify(string, domain.Event) {}
