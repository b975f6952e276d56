package registration_api_test

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"ms-registration/internal/auth"
	"ms-registration/internal/lock"
	"ms-registration/internal/logger"
	"ms-registration/internal/models"
	"ms-registration/internal/payments/qr"
	"ms-registration/internal/registration"
	"ms-registration/internal/registration/db"
	"ms-registration/internal/registration/registration_api"
	"ms-registration/internal/sse"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

const adminRole = "admin"

type apiFixture struct {
	store  *db.DB
	router chi.Router
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	sqldb, err := sql.Open(sqliteshim.ShimName, "file::memory:")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)
	bunDB := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { bunDB.Close() })
	require.NoError(t, db.CreateSchema(context.Background(), bunDB))

	store := db.New(bunDB)
	changes := sse.NewCapacityEmitter()
	engine := registration.New(store, lock.NewLocal(), logger.NewNop(), registration.Config{
		IBAN:                 "CZ6508000000192000145399",
		AccountName:          "GameOne",
		DefaultPaymentTTL:    48 * time.Hour,
		AmountToleranceMinor: 1,
	}, registration.WithChangeHook(changes.Emit))
	h := registration_api.NewHandler(engine, qr.NewGenerator(128), logger.NewNop(), adminRole, changes)

	r := chi.NewRouter()
	r.Use(registration_api.LogRequests(logger.NewNop()))
	h.RegisterRoutes(r)
	return &apiFixture{store: store, router: r}
}

func (f *apiFixture) event(t *testing.T, capacity int) *models.Event {
	t.Helper()
	ev := &models.Event{
		ID:         uuid.NewString(),
		Name:       "Board game night",
		Capacity:   capacity,
		PriceMinor: 20000,
		Currency:   "CZK",
		CreatedAt:  time.Now(),
	}
	require.NoError(t, f.store.CreateEvent(context.Background(), ev))
	return ev
}

// do sends a request as the given identity; a nil identity is a guest.
func (f *apiFixture) do(t *testing.T, method, path string, body interface{}, id *auth.Identity) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if id != nil {
		req = req.WithContext(auth.WithIdentity(req.Context(), *id))
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, dst interface{}) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	if dst != nil {
		require.NoError(t, json.Unmarshal(env.Data, dst))
	}
	return env
}

func member() *auth.Identity {
	return &auth.Identity{UserID: uuid.NewString()}
}

func admin() *auth.Identity {
	return &auth.Identity{UserID: "admin-1", Roles: []string{adminRole}}
}

func TestRegisterAdmitsThenWaitlists(t *testing.T) {
	f := newAPIFixture(t)
	ev := f.event(t, 1)

	rec := f.do(t, http.MethodPost, "/events/"+ev.ID+"/registrations", nil, member())
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var out registration.Outcome
	env := decodeData(t, rec, &out)
	assert.True(t, env.Success)
	assert.Equal(t, registration.ResultAdmitted, out.Result)
	require.NotNil(t, out.PendingPayment)
	assert.Len(t, out.PendingPayment.VariableSymbol, 10)

	rec = f.do(t, http.MethodPost, "/events/"+ev.ID+"/registrations", nil, member())
	require.Equal(t, http.StatusAccepted, rec.Code)
	decodeData(t, rec, &out)
	assert.Equal(t, registration.ResultWaitlisted, out.Result)
	require.NotNil(t, out.WaitingListEntry)
	assert.Equal(t, 1, out.WaitingListEntry.Position)
}

func TestRegisterTwiceReturnsExisting(t *testing.T) {
	f := newAPIFixture(t)
	ev := f.event(t, 5)
	who := member()

	require.Equal(t, http.StatusCreated, f.do(t, http.MethodPost, "/events/"+ev.ID+"/registrations", nil, who).Code)
	rec := f.do(t, http.MethodPost, "/events/"+ev.ID+"/registrations", nil, who)
	require.Equal(t, http.StatusOK, rec.Code)
	var out registration.Outcome
	decodeData(t, rec, &out)
	assert.Equal(t, registration.ResultAlreadyRegistered, out.Result)
}

func TestGuestRegistrationValidation(t *testing.T) {
	f := newAPIFixture(t)
	ev := f.event(t, 5)

	rec := f.do(t, http.MethodPost, "/events/"+ev.ID+"/registrations", map[string]interface{}{
		"guest": map[string]string{"name": "Eva"},
	}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	env := decodeData(t, rec, nil)
	assert.False(t, env.Success)

	rec = f.do(t, http.MethodPost, "/events/"+ev.ID+"/registrations", map[string]interface{}{
		"guest":   map[string]string{"name": "Eva", "email": "eva@example.com"},
		"friends": []map[string]string{{"name": "Jan"}},
	}, nil)
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestUnknownEventIsNotFound(t *testing.T) {
	f := newAPIFixture(t)
	rec := f.do(t, http.MethodPost, "/events/missing/registrations", nil, member())
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminRoutesRequireRole(t *testing.T) {
	f := newAPIFixture(t)
	ev := f.event(t, 1)

	assert.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodGet, "/events/"+ev.ID+"/waiting-list", nil, nil).Code)
	assert.Equal(t, http.StatusForbidden, f.do(t, http.MethodGet, "/events/"+ev.ID+"/waiting-list", nil, member()).Code)
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/events/"+ev.ID+"/waiting-list", nil, admin()).Code)
}

func TestVerifyFlow(t *testing.T) {
	f := newAPIFixture(t)
	ev := f.event(t, 2)

	rec := f.do(t, http.MethodPost, "/events/"+ev.ID+"/registrations", nil, member())
	var out registration.Outcome
	decodeData(t, rec, &out)
	paymentID := out.PendingPayment.ID

	wrong := int64(100)
	rec = f.do(t, http.MethodPost, "/payments/"+paymentID+"/verify", map[string]interface{}{"reported_amount_minor": wrong}, admin())
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = f.do(t, http.MethodPost, "/payments/"+paymentID+"/verify", nil, admin())
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var v registration.Verification
	decodeData(t, rec, &v)
	assert.Equal(t, models.PaymentProcessed, v.Payment.Status)
	require.Len(t, v.Registrations, 1)
	assert.Equal(t, models.RegistrationConfirmed, v.Registrations[0].Status)

	rec = f.do(t, http.MethodPost, "/payments/"+paymentID+"/verify", nil, admin())
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(t, http.MethodGet, "/events/"+ev.ID+"/capacity", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var report registration.CapacityReport
	decodeData(t, rec, &report)
	assert.Equal(t, 1, report.EffectiveCount)
	assert.Equal(t, 1, report.AvailableSpots)
}

func TestPaymentQR(t *testing.T) {
	f := newAPIFixture(t)
	ev := f.event(t, 2)

	rec := f.do(t, http.MethodPost, "/events/"+ev.ID+"/registrations", nil, member())
	var out registration.Outcome
	decodeData(t, rec, &out)

	rec = f.do(t, http.MethodGet, "/payments/"+out.PendingPayment.ID+"/qr.png", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("\x89PNG")))
}

func TestRejectPromotesWaitingList(t *testing.T) {
	f := newAPIFixture(t)
	ev := f.event(t, 1)

	var first, second registration.Outcome
	decodeData(t, f.do(t, http.MethodPost, "/events/"+ev.ID+"/registrations", nil, member()), &first)
	decodeData(t, f.do(t, http.MethodPost, "/events/"+ev.ID+"/registrations", nil, member()), &second)
	require.Equal(t, registration.ResultWaitlisted, second.Result)

	rec := f.do(t, http.MethodPost, "/payments/"+first.PendingPayment.ID+"/reject", map[string]string{"reason": "no transfer"}, admin())
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodGet, "/events/"+ev.ID+"/waiting-list", nil, admin())
	var queue []models.WaitingListEntry
	decodeData(t, rec, &queue)
	assert.Empty(t, queue)

	rec = f.do(t, http.MethodGet, "/events/"+ev.ID+"/capacity", nil, nil)
	var report registration.CapacityReport
	decodeData(t, rec, &report)
	assert.Equal(t, 1, report.Held)
	assert.Equal(t, 0, report.AvailableSpots)
}

func TestCancelOwnership(t *testing.T) {
	f := newAPIFixture(t)
	ev := f.event(t, 2)
	owner := member()

	var out registration.Outcome
	decodeData(t, f.do(t, http.MethodPost, "/events/"+ev.ID+"/registrations", nil, owner), &out)
	rec := f.do(t, http.MethodPost, "/payments/"+out.PendingPayment.ID+"/verify", nil, admin())
	var v registration.Verification
	decodeData(t, rec, &v)
	regID := v.Registrations[0].ID

	assert.Equal(t, http.StatusForbidden, f.do(t, http.MethodPost, "/registrations/"+regID+"/cancel", nil, member()).Code)

	rec = f.do(t, http.MethodPost, "/registrations/"+regID+"/cancel", nil, owner)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var reg models.Registration
	decodeData(t, rec, &reg)
	assert.Equal(t, models.RegistrationCancelled, reg.Status)
}

func TestWithdrawFromWaitingList(t *testing.T) {
	f := newAPIFixture(t)
	ev := f.event(t, 1)
	f.do(t, http.MethodPost, "/events/"+ev.ID+"/registrations", nil, member())
	waiter := member()

	var out registration.Outcome
	decodeData(t, f.do(t, http.MethodPost, "/events/"+ev.ID+"/registrations", nil, waiter), &out)
	require.NotNil(t, out.WaitingListEntry)

	assert.Equal(t, http.StatusForbidden, f.do(t, http.MethodDelete, "/waiting-list/"+out.WaitingListEntry.ID, nil, member()).Code)
	assert.Equal(t, http.StatusNoContent, f.do(t, http.MethodDelete, "/waiting-list/"+out.WaitingListEntry.ID, nil, waiter).Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodDelete, "/waiting-list/"+out.WaitingListEntry.ID, nil, admin()).Code)
}

func TestAdminRegisterForce(t *testing.T) {
	f := newAPIFixture(t)
	ev := f.event(t, 1)
	f.do(t, http.MethodPost, "/events/"+ev.ID+"/registrations", nil, member())

	body := map[string]interface{}{"user_id": uuid.NewString()}
	rec := f.do(t, http.MethodPost, "/events/"+ev.ID+"/admin-registrations", body, admin())
	assert.Equal(t, http.StatusConflict, rec.Code)

	body["force"] = true
	rec = f.do(t, http.MethodPost, "/events/"+ev.ID+"/admin-registrations", body, admin())
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var regs []models.Registration
	decodeData(t, rec, &regs)
	require.Len(t, regs, 1)
	assert.Equal(t, models.RegistrationConfirmed, regs[0].Status)
}

func TestMarkAttendance(t *testing.T) {
	f := newAPIFixture(t)
	ev := f.event(t, 2)

	var out registration.Outcome
	decodeData(t, f.do(t, http.MethodPost, "/events/"+ev.ID+"/registrations", nil, member()), &out)
	var v registration.Verification
	decodeData(t, f.do(t, http.MethodPost, "/payments/"+out.PendingPayment.ID+"/verify", nil, admin()), &v)

	rec := f.do(t, http.MethodPost, "/registrations/"+v.Registrations[0].ID+"/attendance", map[string]bool{"attended": true}, admin())
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var reg models.Registration
	decodeData(t, rec, &reg)
	assert.Equal(t, models.RegistrationAttended, reg.Status)
}
