package analytics_test

import (
	"context"
	"errors"
	"testing"

	"ms-registration/internal/analytics"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockStore struct {
	mock.Mock
}

func (m *MockStore) GetRegistrationStatusCounts(ctx context.Context, eventID string) ([]analytics.StatusCount, error) {
	args := m.Called(ctx, eventID)
	return args.Get(0).([]analytics.StatusCount), args.Error(1)
}

func (m *MockStore) GetPaymentTotals(ctx context.Context, eventID string) ([]analytics.PaymentTotals, error) {
	args := m.Called(ctx, eventID)
	return args.Get(0).([]analytics.PaymentTotals), args.Error(1)
}

func (m *MockStore) GetDailyRegistrations(ctx context.Context, eventID string) ([]analytics.DailyCount, error) {
	args := m.Called(ctx, eventID)
	return args.Get(0).([]analytics.DailyCount), args.Error(1)
}

func (m *MockStore) CountWaitingList(ctx context.Context, eventID string) (int, error) {
	args := m.Called(ctx, eventID)
	return args.Int(0), args.Error(1)
}

func TestGetEventAnalytics(t *testing.T) {
	store := new(MockStore)
	ctx := context.Background()
	store.On("GetRegistrationStatusCounts", ctx, "ev-1").Return([]analytics.StatusCount{
		{Status: "ATTENDED", Count: 3},
		{Status: "NO_SHOW", Count: 1},
		{Status: "CONFIRMED", Count: 2},
	}, nil)
	store.On("GetPaymentTotals", ctx, "ev-1").Return([]analytics.PaymentTotals{
		{Status: "PROCESSED", Count: 4, Participants: 6, AmountMinor: 270000},
		{Status: "AWAITING_PAYMENT", Count: 1, Participants: 1, AmountMinor: 45000},
		{Status: "EXPIRED", Count: 2, Participants: 2, AmountMinor: 90000},
	}, nil)
	store.On("GetDailyRegistrations", ctx, "ev-1").Return([]analytics.DailyCount{{Day: "2026-03-01", Count: 6}}, nil)
	store.On("CountWaitingList", ctx, "ev-1").Return(2, nil)

	report, err := analytics.NewService(store).GetEventAnalytics(ctx, "ev-1")
	require.NoError(t, err)

	assert.Equal(t, 3, report.Registrations["ATTENDED"])
	assert.Equal(t, int64(270000), report.CollectedMinor)
	assert.Equal(t, int64(45000), report.OutstandingMinor)
	assert.Equal(t, 2, report.WaitingListLength)
	assert.InDelta(t, 0.75, report.AttendanceRate, 1e-9)
	assert.Len(t, report.Daily, 1)
	store.AssertExpectations(t)
}

func TestGetEventAnalyticsPropagatesErrors(t *testing.T) {
	store := new(MockStore)
	ctx := context.Background()
	store.On("GetRegistrationStatusCounts", ctx, "ev-1").Return([]analytics.StatusCount(nil), errors.New("db down"))

	_, err := analytics.NewService(store).GetEventAnalytics(ctx, "ev-1")
	assert.ErrorContains(t, err, "db down")
}
