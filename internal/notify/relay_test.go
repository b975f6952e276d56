package notify_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"ms-registration/internal/logger"
	"ms-registration/internal/models"
	"ms-registration/internal/notify"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockOutbox struct {
	mock.Mock
}

func (m *MockOutbox) ListUnpublished(ctx context.Context, maxAttempts, limit int) ([]models.NotificationIntent, error) {
	args := m.Called(maxAttempts, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.NotificationIntent), args.Error(1)
}

func (m *MockOutbox) MarkPublished(ctx context.Context, id string, at time.Time) error {
	args := m.Called(id, at)
	return args.Error(0)
}

func (m *MockOutbox) MarkFailed(ctx context.Context, id, reason string) error {
	args := m.Called(id, reason)
	return args.Error(0)
}

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, topic, key string, value []byte) error {
	args := m.Called(topic, key, value)
	return args.Error(0)
}

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newRelay(outbox *MockOutbox, pub *MockPublisher) *notify.Relay {
	r := notify.NewRelay(outbox, pub, logger.NewNop(), "registration.", 10, 5)
	r.Now = func() time.Time { return now }
	return r
}

func TestRelayOnce_PublishesAndMarks(t *testing.T) {
	outbox := new(MockOutbox)
	pub := new(MockPublisher)
	intent := models.NotificationIntent{
		ID:        "n1",
		Kind:      models.NotifyWaitingListPromoted,
		Recipient: "user-1",
		EventID:   "event-1",
		Payload:   `{"payment_id":"p1","variable_symbol":"1234567890"}`,
		CreatedAt: now.Add(-time.Minute),
	}
	outbox.On("ListUnpublished", 5, 10).Return([]models.NotificationIntent{intent}, nil)
	pub.On("Publish", "registration.waiting-list-promoted", "event-1", mock.Anything).Return(nil)
	outbox.On("MarkPublished", "n1", now).Return(nil)

	n, err := newRelay(outbox, pub).RelayOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	var msg notify.Message
	value := pub.Calls[0].Arguments.Get(2).([]byte)
	require.NoError(t, json.Unmarshal(value, &msg))
	assert.Equal(t, "n1", msg.ID)
	assert.Equal(t, "user-1", msg.Recipient)
	assert.JSONEq(t, intent.Payload, string(msg.Payload))

	outbox.AssertExpectations(t)
	pub.AssertExpectations(t)
}

func TestRelayOnce_FailureIsRecordedAndBatchContinues(t *testing.T) {
	outbox := new(MockOutbox)
	pub := new(MockPublisher)
	intents := []models.NotificationIntent{
		{ID: "n1", Kind: models.NotifyPaymentVerified, EventID: "e1", Payload: `{}`},
		{ID: "n2", Kind: models.NotifyPaymentRejected, EventID: "e2", Payload: `{}`},
	}
	outbox.On("ListUnpublished", 5, 10).Return(intents, nil)
	pub.On("Publish", "registration.payment-verified", "e1", mock.Anything).Return(errors.New("broker down"))
	pub.On("Publish", "registration.payment-rejected", "e2", mock.Anything).Return(nil)
	outbox.On("MarkFailed", "n1", mock.MatchedBy(func(reason string) bool { return reason == "broker down" })).Return(nil)
	outbox.On("MarkPublished", "n2", now).Return(nil)

	n, err := newRelay(outbox, pub).RelayOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	outbox.AssertExpectations(t)
	outbox.AssertNotCalled(t, "MarkPublished", "n1", mock.Anything)
}

func TestRelayOnce_OutboxError(t *testing.T) {
	outbox := new(MockOutbox)
	outbox.On("ListUnpublished", 5, 10).Return(nil, errors.New("db gone"))

	_, err := newRelay(outbox, new(MockPublisher)).RelayOnce(context.Background())
	assert.Error(t, err)
}
