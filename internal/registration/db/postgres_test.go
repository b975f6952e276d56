package db_test

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"sync"
	"testing"
	"time"

	"ms-registration/internal/database/migrations"
	"ms-registration/internal/lock"
	"ms-registration/internal/logger"
	"ms-registration/internal/models"
	"ms-registration/internal/registration"
	"ms-registration/internal/registration/db"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
)

// setupPostgres starts a throwaway PostgreSQL container and applies the
// migrations. It skips when Docker is not reachable.
func setupPostgres(t *testing.T) (*db.DB, *bytes.Buffer) {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping PostgreSQL integration test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	pg, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "registration",
				"POSTGRES_PASSWORD": "registration",
				"POSTGRES_DB":       "registration",
			},
			// the entrypoint restarts the server once after initdb
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(90 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("Failed to start PostgreSQL container: %v", err)
	}
	t.Cleanup(func() { _ = pg.Terminate(context.Background()) })

	host, err := pg.Host(ctx)
	require.NoError(t, err)
	port, err := pg.MappedPort(ctx, "5432")
	require.NoError(t, err)

	dsn := fmt.Sprintf("postgres://registration:registration@%s:%s/registration?sslmode=disable", host, port.Port())
	sqldb, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return sqldb.PingContext(ctx) == nil }, 30*time.Second, 250*time.Millisecond)

	bunDB := bun.NewDB(sqldb, pgdialect.New())
	t.Cleanup(func() { bunDB.Close() })

	var logs bytes.Buffer
	runner := migrations.NewRunner(bunDB, migrations.Options{Dir: "../../../migrations"}, logger.NewWriter("test", &logs, logger.INFO))
	require.NoError(t, runner.RunMigrations())
	require.NoError(t, runner.Close())
	require.NoError(t, bunDB.PingContext(ctx), "closing the migrator must not close the pool")

	return db.New(bunDB), &logs
}

func pgEngine(store *db.DB, opts ...registration.Option) *registration.Engine {
	return registration.New(store, lock.NewLocal(), logger.NewNop(), registration.Config{
		IBAN:              "CZ65 0800 0000 1920 0014 5399",
		AccountName:       "GameOne",
		DefaultPaymentTTL: 48 * time.Hour,
	}, opts...)
}

func TestPostgres(t *testing.T) {
	store, logs := setupPostgres(t)

	t.Run("migrations are logged", func(t *testing.T) {
		assert.Contains(t, logs.String(), "schema_migrations")
	})

	t.Run("racing for the last spot", func(t *testing.T) {
		ev := seedEvent(t, store, 1)
		// separate in-process locks stand in for two service instances, so
		// only the event row lock serialises them
		engines := []*registration.Engine{pgEngine(store), pgEngine(store)}

		const n = 8
		outcomes := make([]*registration.Outcome, n)
		errs := make([]error, n)
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				outcomes[i], errs[i] = engines[i%2].Register(context.Background(), registration.Request{
					EventID: ev.ID,
					UserID:  fmt.Sprintf("racer-%d", i),
				})
			}(i)
		}
		wg.Wait()

		admitted := 0
		for i := 0; i < n; i++ {
			require.NoError(t, errs[i])
			if outcomes[i].Result == registration.ResultAdmitted {
				admitted++
			} else {
				assert.Equal(t, registration.ResultWaitlisted, outcomes[i].Result)
			}
		}
		assert.Equal(t, 1, admitted)

		queue, err := store.ListWaitingList(context.Background(), ev.ID)
		require.NoError(t, err)
		require.Len(t, queue, n-1)
		for i, e := range queue {
			assert.Equal(t, i+1, e.Position)
		}
	})

	t.Run("withdraw renumbers the queue in place", func(t *testing.T) {
		ctx := context.Background()
		ev := seedEvent(t, store, 0)
		engine := pgEngine(store)

		var ids []string
		for i := 0; i < 4; i++ {
			out, err := engine.Register(ctx, registration.Request{EventID: ev.ID, UserID: fmt.Sprintf("queued-%d", i)})
			require.NoError(t, err)
			require.Equal(t, registration.ResultWaitlisted, out.Result)
			ids = append(ids, out.WaitingListEntry.ID)
		}

		require.NoError(t, engine.Withdraw(ctx, ids[0], "user"))

		queue, err := store.ListWaitingList(ctx, ev.ID)
		require.NoError(t, err)
		require.Len(t, queue, 3)
		for i, e := range queue {
			assert.Equal(t, ids[i+1], e.ID)
			assert.Equal(t, i+1, e.Position)
		}
	})

	t.Run("variable symbol collision", func(t *testing.T) {
		ctx := context.Background()
		ev := seedEvent(t, store, 5)

		require.NoError(t, store.InTx(ctx, func(ctx context.Context, tx registration.Tx) error {
			return tx.InsertPendingPayment(ctx, newPayment(ev.ID, "7000000001"))
		}))
		clash := newPayment(ev.ID, "7000000001")
		clash.UserID = "someone-else"
		err := store.InTx(ctx, func(ctx context.Context, tx registration.Tx) error {
			return tx.InsertPendingPayment(ctx, clash)
		})
		assert.ErrorIs(t, err, registration.ErrConcurrencyConflict)

		stuck := pgEngine(store, registration.WithSymbolSource(func(int) (string, error) { return "7000000001", nil }))
		_, err = stuck.Register(ctx, registration.Request{EventID: ev.ID, UserID: "unlucky"})
		assert.ErrorIs(t, err, registration.ErrConcurrencyConflict)

		payments, err := store.ListCapacityPayments(ctx, ev.ID)
		require.NoError(t, err)
		assert.Len(t, payments, 1)
	})

	t.Run("friend on an open payment blocks a second group", func(t *testing.T) {
		ctx := context.Background()
		ev := seedEvent(t, store, 5)
		engine := pgEngine(store)
		eve := models.Friend{Name: "Eve", Email: "eve@example.com"}

		first, err := engine.Register(ctx, registration.Request{EventID: ev.ID, UserID: "alice", Friends: []models.Friend{eve}})
		require.NoError(t, err)
		require.Equal(t, registration.ResultAdmitted, first.Result)

		second, err := engine.Register(ctx, registration.Request{EventID: ev.ID, UserID: "bob", Friends: []models.Friend{eve}})
		require.NoError(t, err)
		assert.Equal(t, registration.ResultAlreadyRegistered, second.Result)

		_, err = engine.Verify(ctx, first.PendingPayment.ID, registration.VerifyInput{VerifiedBy: "admin"})
		require.NoError(t, err)
	})
}
