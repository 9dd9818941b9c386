package storage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/levenlabs/go-lflag"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/ecowatt/tourate/pkg/log"
	"github.com/ecowatt/tourate/pkg/types"
)

const (
	ratesCollection = "tou-rates"
	usersCollection = "users"

	notificationMethodEmail = "email"
)

// FirestoreProvider implements the Database interface using Google Cloud
// Firestore. Rates are appended to the "tou-rates" collection and subscribers
// are read from "users".
type FirestoreProvider struct {
	client    *firestore.Client
	projectID string
	database  string
}

// configuredFirestore sets up the Firestore provider.
// It registers flags for configuration.
func configuredFirestore() *FirestoreProvider {
	projectID := lflag.String("firestore-project-id", "", "Google Cloud Project ID for Firestore")
	database := lflag.String("firestore-database", "", "Google Cloud Firestore Database")
	emulator := lflag.String("firestore-emulator", "", "Use Firestore emulator")

	f := &FirestoreProvider{}

	lflag.Do(func() {
		f.projectID = *projectID
		f.database = *database

		// set this because that's how firestore client expects it
		if *emulator != "" {
			os.Setenv("FIRESTORE_EMULATOR_HOST", *emulator)
		}
	})

	return f
}

// Validate checks if the provider is properly configured.
func (f *FirestoreProvider) Validate() error {
	// an empty project ID is detected from the environment
	return nil
}

// Init initializes the Firestore client.
// This must be called before using the provider methods.
func (f *FirestoreProvider) Init(ctx context.Context) error {
	projectID := f.projectID
	if projectID == "" {
		projectID = firestore.DetectProjectID
	}
	database := f.database
	if database == "" {
		database = firestore.DefaultDatabaseID
	}
	client, err := firestore.NewClientWithDatabase(ctx, projectID, database)
	if err != nil {
		return fmt.Errorf("failed to create firestore client (project=%s, database=%s): %w", projectID, database, err)
	}
	f.client = client
	return nil
}

// Close closes the Firestore client connection.
func (f *FirestoreProvider) Close() error {
	if f.client != nil {
		return f.client.Close()
	}
	return nil
}

// AppendRate adds a document with an auto-generated ID to "tou-rates".
func (f *FirestoreProvider) AppendRate(ctx context.Context, record types.TOURateRecord) (string, error) {
	ref, _, err := f.client.Collection(ratesCollection).Add(ctx, map[string]interface{}{
		"category":  string(record.Category),
		"rate":      record.Rate,
		"timestamp": record.FormatTimestamp(),
	})
	if err != nil {
		return "", fmt.Errorf("failed to append %s rate: %w", record.Category, err)
	}
	return ref.ID, nil
}

// GetRateHistory queries "tou-rates" by category and timestamp. Timestamps are
// stored as fixed-width UTC strings so the range comparison is lexicographic.
func (f *FirestoreProvider) GetRateHistory(ctx context.Context, category types.RateCategory, start, end time.Time) ([]types.TOURateRecord, error) {
	if !start.Before(end) {
		return nil, ErrInvalidRange
	}

	iter := f.client.Collection(ratesCollection).
		Where("category", "==", string(category)).
		Where("timestamp", ">=", start.UTC().Format(types.TimestampLayout)).
		Where("timestamp", "<", end.UTC().Format(types.TimestampLayout)).
		OrderBy("timestamp", firestore.Asc).
		Documents(ctx)
	defer iter.Stop()

	var records []types.TOURateRecord
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			if status.Code(err) == codes.FailedPrecondition {
				return nil, fmt.Errorf("rate history query needs a composite index on (category, timestamp): %w", err)
			}
			return nil, fmt.Errorf("error iterating rates: %w", err)
		}

		r, err := rateFromDoc(doc)
		if err != nil {
			log.Ctx(ctx).WarnContext(ctx, "skipping malformed rate doc", slog.String("docID", doc.Ref.ID), slog.Any("err", err))
			continue
		}
		records = append(records, r)
	}
	return records, nil
}

func rateFromDoc(doc *firestore.DocumentSnapshot) (types.TOURateRecord, error) {
	r := types.TOURateRecord{ID: doc.Ref.ID}

	cat, err := doc.DataAt("category")
	if err != nil {
		return r, fmt.Errorf("missing 'category' field: %w", err)
	}
	catStr, ok := cat.(string)
	if !ok {
		return r, fmt.Errorf("'category' field is not a string")
	}
	r.Category = types.RateCategory(catStr)

	rate, err := doc.DataAt("rate")
	if err != nil {
		return r, fmt.Errorf("missing 'rate' field: %w", err)
	}
	switch v := rate.(type) {
	case float64:
		r.Rate = v
	case int64:
		// whole-number rates come back as integers
		r.Rate = float64(v)
	default:
		return r, fmt.Errorf("'rate' field has unexpected type %T", rate)
	}

	ts, err := doc.DataAt("timestamp")
	if err != nil {
		return r, fmt.Errorf("missing 'timestamp' field: %w", err)
	}
	switch v := ts.(type) {
	case string:
		t, err := types.ParseTimestamp(v)
		if err != nil {
			return r, err
		}
		r.Timestamp = t
	case time.Time:
		r.Timestamp = v.UTC()
	default:
		return r, fmt.Errorf("'timestamp' field has unexpected type %T", ts)
	}
	return r, nil
}

// ListEmailSubscribers queries "users" for documents whose notificationMethod
// is "email".
func (f *FirestoreProvider) ListEmailSubscribers(ctx context.Context) ([]types.NotificationRecipient, error) {
	iter := f.client.Collection(usersCollection).
		Where("notificationMethod", "==", notificationMethodEmail).
		Documents(ctx)
	defer iter.Stop()

	var recipients []types.NotificationRecipient
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error iterating users: %w", err)
		}

		email, _ := doc.Data()["email"].(string)
		if email == "" {
			log.Ctx(ctx).DebugContext(ctx, "email subscriber has no email", slog.String("userID", doc.Ref.ID))
			continue
		}
		recipients = append(recipients, types.NotificationRecipient{
			ID:    doc.Ref.ID,
			Email: email,
		})
	}
	return uniqueRecipients(recipients), nil
}

// AddEmailSubscriber creates a user document for email, or switches an
// existing user with that email to email notifications.
func (f *FirestoreProvider) AddEmailSubscriber(ctx context.Context, email string) (types.NotificationRecipient, bool, error) {
	email, err := NormalizeEmail(email)
	if err != nil {
		return types.NotificationRecipient{}, false, err
	}

	users := f.client.Collection(usersCollection)
	iter := users.Where("email", "==", email).Limit(1).Documents(ctx)
	defer iter.Stop()

	doc, err := iter.Next()
	if err != nil && err != iterator.Done {
		return types.NotificationRecipient{}, false, fmt.Errorf("failed to look up subscriber: %w", err)
	}
	if err == nil {
		if method, _ := doc.Data()["notificationMethod"].(string); method != notificationMethodEmail {
			_, err := doc.Ref.Update(ctx, []firestore.Update{
				{Path: "notificationMethod", Value: notificationMethodEmail},
			})
			if err != nil {
				return types.NotificationRecipient{}, false, fmt.Errorf("failed to update subscriber %s: %w", doc.Ref.ID, err)
			}
		}
		return types.NotificationRecipient{ID: doc.Ref.ID, Email: email}, false, nil
	}

	ref, _, err := users.Add(ctx, map[string]interface{}{
		"email":              email,
		"notificationMethod": notificationMethodEmail,
		"createdAt":          time.Now().UTC().Format(types.TimestampLayout),
	})
	if err != nil {
		return types.NotificationRecipient{}, false, fmt.Errorf("failed to add subscriber: %w", err)
	}
	return types.NotificationRecipient{ID: ref.ID, Email: email}, true, nil
}
