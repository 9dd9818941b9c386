package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/levenlabs/go-lflag"

	"github.com/ecowatt/tourate/pkg/types"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS tou_rates (
	id        BIGSERIAL PRIMARY KEY,
	category  TEXT NOT NULL,
	rate      DOUBLE PRECISION NOT NULL,
	ts        TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS tou_rates_category_ts ON tou_rates (category, ts);
CREATE TABLE IF NOT EXISTS users (
	id                  BIGSERIAL PRIMARY KEY,
	email               TEXT NOT NULL UNIQUE,
	notification_method TEXT NOT NULL DEFAULT 'email',
	created_at          TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// PostgresProvider implements the Database interface on PostgreSQL. It is
// meant for deployments outside Google Cloud.
type PostgresProvider struct {
	pool *pgxpool.Pool
	dsn  string
}

func configuredPostgres() *PostgresProvider {
	dsn := lflag.String("postgres-dsn", "", "PostgreSQL connection string, used when storage-provider is postgres")

	p := &PostgresProvider{}

	lflag.Do(func() {
		p.dsn = *dsn
	})

	return p
}

// NewPostgresProvider returns a provider for dsn. Init must be called before
// use.
func NewPostgresProvider(dsn string) *PostgresProvider {
	return &PostgresProvider{dsn: dsn}
}

// Validate checks if the provider is properly configured.
func (p *PostgresProvider) Validate() error {
	if p.dsn == "" {
		return errors.New("postgres-dsn is required")
	}
	return nil
}

// Init connects the pool and creates the tables if they do not exist.
func (p *PostgresProvider) Init(ctx context.Context) error {
	pool, err := pgxpool.New(ctx, p.dsn)
	if err != nil {
		return fmt.Errorf("failed to create postgres pool: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return fmt.Errorf("failed to create postgres schema: %w", err)
	}
	p.pool = pool
	return nil
}

// Close closes the pool.
func (p *PostgresProvider) Close() error {
	if p.pool != nil {
		p.pool.Close()
	}
	return nil
}

func (p *PostgresProvider) AppendRate(ctx context.Context, record types.TOURateRecord) (string, error) {
	var id int64
	err := p.pool.QueryRow(ctx,
		`INSERT INTO tou_rates (category, rate, ts) VALUES ($1, $2, $3) RETURNING id`,
		string(record.Category), record.Rate, record.Timestamp.UTC(),
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("failed to append %s rate: %w", record.Category, err)
	}
	return strconv.FormatInt(id, 10), nil
}

func (p *PostgresProvider) GetRateHistory(ctx context.Context, category types.RateCategory, start, end time.Time) ([]types.TOURateRecord, error) {
	if !start.Before(end) {
		return nil, ErrInvalidRange
	}
	rows, err := p.pool.Query(ctx,
		`SELECT id, category, rate, ts FROM tou_rates
		WHERE category = $1 AND ts >= $2 AND ts < $3
		ORDER BY ts ASC, id ASC`,
		string(category), start.UTC(), end.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query rates: %w", err)
	}
	records, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (types.TOURateRecord, error) {
		var (
			r   types.TOURateRecord
			id  int64
			cat string
		)
		if err := row.Scan(&id, &cat, &r.Rate, &r.Timestamp); err != nil {
			return r, err
		}
		r.ID = strconv.FormatInt(id, 10)
		r.Category = types.RateCategory(cat)
		r.Timestamp = r.Timestamp.UTC()
		return r, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read rates: %w", err)
	}
	return records, nil
}

func (p *PostgresProvider) ListEmailSubscribers(ctx context.Context) ([]types.NotificationRecipient, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT id, email FROM users
		WHERE notification_method = $1 AND email <> ''
		ORDER BY id ASC`,
		notificationMethodEmail,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query subscribers: %w", err)
	}
	recipients, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (types.NotificationRecipient, error) {
		var (
			r  types.NotificationRecipient
			id int64
		)
		if err := row.Scan(&id, &r.Email); err != nil {
			return r, err
		}
		r.ID = strconv.FormatInt(id, 10)
		return r, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read subscribers: %w", err)
	}
	return uniqueRecipients(recipients), nil
}

func (p *PostgresProvider) AddEmailSubscriber(ctx context.Context, email string) (types.NotificationRecipient, bool, error) {
	email, err := NormalizeEmail(email)
	if err != nil {
		return types.NotificationRecipient{}, false, err
	}
	var (
		id      int64
		created bool
	)
	// xmax is zero only for a freshly inserted row
	err = p.pool.QueryRow(ctx,
		`INSERT INTO users (email, notification_method) VALUES ($1, $2)
		ON CONFLICT (email) DO UPDATE SET notification_method = EXCLUDED.notification_method
		RETURNING id, (xmax = 0)`,
		email, notificationMethodEmail,
	).Scan(&id, &created)
	if err != nil {
		return types.NotificationRecipient{}, false, fmt.Errorf("failed to add subscriber: %w", err)
	}
	return types.NotificationRecipient{ID: strconv.FormatInt(id, 10), Email: email}, created, nil
}
