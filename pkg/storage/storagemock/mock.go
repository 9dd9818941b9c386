package storagemock

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/ecowatt/tourate/pkg/storage"
	"github.com/ecowatt/tourate/pkg/types"
)

type MockDatabase struct {
	mock.Mock
}

var _ storage.Database = (*MockDatabase)(nil)

func (m *MockDatabase) AppendRate(ctx context.Context, record types.TOURateRecord) (string, error) {
	args := m.Called(ctx, record)
	if len(args) > 0 {
		return args.String(0), args.Error(1)
	}
	return "", nil
}

func (m *MockDatabase) GetRateHistory(ctx context.Context, category types.RateCategory, start, end time.Time) ([]types.TOURateRecord, error) {
	args := m.Called(ctx, category, start, end)
	if len(args) > 0 {
		if args.Get(0) == nil {
			return nil, args.Error(1)
		}
		return args.Get(0).([]types.TOURateRecord), args.Error(1)
	}
	return nil, nil
}

func (m *MockDatabase) ListEmailSubscribers(ctx context.Context) ([]types.NotificationRecipient, error) {
	args := m.Called(ctx)
	if len(args) > 0 {
		if args.Get(0) == nil {
			return nil, args.Error(1)
		}
		return args.Get(0).([]types.NotificationRecipient), args.Error(1)
	}
	return nil, nil
}

func (m *MockDatabase) AddEmailSubscriber(ctx context.Context, email string) (types.NotificationRecipient, bool, error) {
	args := m.Called(ctx, email)
	if len(args) > 0 {
		return args.Get(0).(types.NotificationRecipient), args.Bool(1), args.Error(2)
	}
	return types.NotificationRecipient{}, false, nil
}

func (m *MockDatabase) Close() error {
	args := m.Called()
	if len(args) > 0 {
		return args.Error(0)
	}
	return nil
}
