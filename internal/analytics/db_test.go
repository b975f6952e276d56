package analytics_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"ms-registration/internal/analytics"
	"ms-registration/internal/lock"
	"ms-registration/internal/logger"
	"ms-registration/internal/models"
	"ms-registration/internal/registration"
	"ms-registration/internal/registration/db"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

func TestDBAggregatesRegistrations(t *testing.T) {
	ctx := context.Background()
	sqldb, err := sql.Open(sqliteshim.ShimName, "file::memory:")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)
	bunDB := bun.NewDB(sqldb, sqlitedialect.New())
	defer bunDB.Close()
	require.NoError(t, db.CreateSchema(ctx, bunDB))

	store := db.New(bunDB)
	engine := registration.New(store, lock.NewLocal(), logger.NewNop(), registration.Config{DefaultPaymentTTL: time.Hour})
	ev := &models.Event{ID: uuid.NewString(), Name: "Stats", Capacity: 2, PriceMinor: 10000, Currency: "CZK", CreatedAt: time.Now()}
	require.NoError(t, store.CreateEvent(ctx, ev))

	var paymentIDs []string
	for i := 0; i < 3; i++ {
		out, err := engine.Register(ctx, registration.Request{EventID: ev.ID, UserID: uuid.NewString()})
		require.NoError(t, err)
		if out.PendingPayment != nil {
			paymentIDs = append(paymentIDs, out.PendingPayment.ID)
		}
	}
	require.Len(t, paymentIDs, 2)
	_, err = engine.Verify(ctx, paymentIDs[0], registration.VerifyInput{VerifiedBy: "admin"})
	require.NoError(t, err)

	report, err := analytics.NewService(analytics.NewDB(bunDB)).GetEventAnalytics(ctx, ev.ID)
	require.NoError(t, err)

	assert.Equal(t, 1, report.Registrations[string(models.RegistrationConfirmed)])
	assert.Equal(t, int64(10000), report.CollectedMinor)
	assert.Equal(t, int64(10000), report.OutstandingMinor)
	assert.Equal(t, 1, report.WaitingListLength)
	require.Len(t, report.Daily, 1)
	assert.Equal(t, 1, report.Daily[0].Count)
}
