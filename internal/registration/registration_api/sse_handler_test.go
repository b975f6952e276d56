package registration_api_test

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"ms-registration/internal/registration"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCapacityStreamFollowsRegistrations(t *testing.T) {
	f := newAPIFixture(t)
	ev := f.event(t, 2)

	srv := httptest.NewServer(f.router)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/events/"+ev.ID+"/capacity/stream", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.HasPrefix(resp.Header.Get("Content-Type"), "text/event-stream"))

	reports := make(chan registration.CapacityReport, 4)
	go func() {
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			var r registration.CapacityReport
			if json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &r) == nil {
				reports <- r
			}
		}
	}()

	next := func() registration.CapacityReport {
		select {
		case r := <-reports:
			return r
		case <-time.After(2 * time.Second):
			t.Fatal("no capacity report received")
			return registration.CapacityReport{}
		}
	}

	assert.Equal(t, 2, next().AvailableSpots)

	rec := f.do(t, http.MethodPost, "/events/"+ev.ID+"/registrations", nil, member())
	require.Equal(t, http.StatusCreated, rec.Code)

	r := next()
	assert.Equal(t, 1, r.Held)
	assert.Equal(t, 1, r.AvailableSpots)
}

func TestCapacityStreamUnknownEvent(t *testing.T) {
	f := newAPIFixture(t)
	rec := f.do(t, http.MethodGet, "/events/missing/capacity/stream", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
