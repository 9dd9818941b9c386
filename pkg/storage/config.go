package storage

import (
	"context"
	"fmt"
	"net/mail"
	"strings"

	"github.com/levenlabs/go-lflag"
	"github.com/samber/lo"

	"github.com/ecowatt/tourate/pkg/types"
)

// Configured sets up the Storage provider based on flags.
func Configured() Database {
	provider := lflag.String("storage-provider", "firestore", "Storage provider to use (available: firestore, postgres)")

	var p struct{ Database }

	fs := configuredFirestore()
	pg := configuredPostgres()

	lflag.Do(func() {
		switch *provider {
		case "firestore":
			if err := fs.Validate(); err != nil {
				panic(fmt.Sprintf("firestore validation failed: %v", err))
			}
			p.Database = fs
			if err := fs.Init(context.Background()); err != nil {
				panic(fmt.Sprintf("firestore init failed: %v", err))
			}
		case "postgres":
			if err := pg.Validate(); err != nil {
				panic(fmt.Sprintf("postgres validation failed: %v", err))
			}
			p.Database = pg
			if err := pg.Init(context.Background()); err != nil {
				panic(fmt.Sprintf("postgres init failed: %v", err))
			}
		default:
			panic(fmt.Sprintf("unknown storage provider: %s", *provider))
		}
	})

	return &p
}

// NormalizeEmail lowercases and validates a bare email address.
func NormalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", fmt.Errorf("%w: %q", ErrInvalidEmail, email)
	}
	return email, nil
}

// uniqueRecipients drops recipients without an email and keeps the first
// recipient for each address, compared case-insensitively.
func uniqueRecipients(recipients []types.NotificationRecipient) []types.NotificationRecipient {
	recipients = lo.Filter(recipients, func(r types.NotificationRecipient, _ int) bool {
		return strings.TrimSpace(r.Email) != ""
	})
	return lo.UniqBy(recipients, func(r types.NotificationRecipient) string {
		return strings.ToLower(strings.TrimSpace(r.Email))
	})
}
