package storage

import (
	"context"
	"errors"
	"time"

	"github.com/ecowatt/tourate/pkg/types"
)

var (
	ErrInvalidEmail = errors.New("invalid email address")
	ErrInvalidRange = errors.New("invalid time range")
)

// Database persists computed rates and reads the alert subscriber list.
type Database interface {
	// Rates
	// AppendRate stores a new rate record and returns its generated ID.
	AppendRate(ctx context.Context, record types.TOURateRecord) (string, error)
	// GetRateHistory returns records of category with start <= timestamp < end
	// in chronological order.
	GetRateHistory(ctx context.Context, category types.RateCategory, start, end time.Time) ([]types.TOURateRecord, error)

	// Subscribers
	// ListEmailSubscribers returns every user who opted in to email alerts.
	// Users without an email are skipped and addresses are deduplicated
	// case-insensitively.
	ListEmailSubscribers(ctx context.Context) ([]types.NotificationRecipient, error)
	// AddEmailSubscriber opts email in to alerts. created is false when the
	// address was already subscribed.
	AddEmailSubscriber(ctx context.Context, email string) (recipient types.NotificationRecipient, created bool, err error)

	// Lifecycle
	Close() error
}
