package session

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/evolve-healthtech/evolve-go/api"
	"github.com/evolve-healthtech/evolve-go/credentials/storefakes"
	"github.com/evolve-healthtech/evolve-go/users"
)

func mintToken(t *testing.T, expiry time.Time) string {
	t.Helper()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"exp": expiry.Unix()})
	signed, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return signed
}

func monitorFixture(t *testing.T) (*Manager, *int32) {
	t.Helper()

	var refreshCalls int32
	mux := http.NewServeMux()
	mux.HandleFunc(api.RouteTokenRefresh, func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&refreshCalls, 1)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"access": mintToken(t, time.Now().Add(time.Hour))})
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	client, err := api.New(server.URL)
	require.NoError(t, err)

	manager, err := NewManager(storefakes.NewFakeStore(), client,
		WithRenewal(time.Hour, 15*time.Minute))
	require.NoError(t, err)
	t.Cleanup(manager.Close)

	return manager, &refreshCalls
}

func TestTokenExpiry(t *testing.T) {
	expiry := time.Now().Add(42 * time.Minute).Truncate(time.Second)
	got, err := tokenExpiry(mintToken(t, expiry))
	require.NoError(t, err)
	require.WithinDuration(t, expiry, got, time.Second)

	_, err = tokenExpiry("not-a-jwt")
	require.Error(t, err)

	noExp := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "user-1"})
	signed, err := noExp.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	_, err = tokenExpiry(signed)
	require.Error(t, err)
}

func TestMonitorRefreshesNearExpiry(t *testing.T) {
	manager, refreshCalls := monitorFixture(t)

	expiring := mintToken(t, time.Now().Add(5*time.Minute))
	require.NoError(t, manager.Login(&users.User{ID: "user-1"}, expiring, "R1"))

	manager.monitor.evaluate()

	require.EqualValues(t, 1, atomic.LoadInt32(refreshCalls))
	require.NotEqual(t, expiring, manager.AccessToken(), "near-expiry token must be replaced")
}

func TestMonitorSkipsFreshToken(t *testing.T) {
	manager, refreshCalls := monitorFixture(t)

	fresh := mintToken(t, time.Now().Add(2*time.Hour))
	require.NoError(t, manager.Login(&users.User{ID: "user-1"}, fresh, "R1"))

	manager.monitor.evaluate()

	require.Zero(t, atomic.LoadInt32(refreshCalls))
	require.Equal(t, fresh, manager.AccessToken())
}

func TestMonitorRefreshesWhenNoAccessTokenHeld(t *testing.T) {
	manager, refreshCalls := monitorFixture(t)

	require.NoError(t, manager.Login(&users.User{ID: "user-1"}, "", "R1"))

	manager.monitor.evaluate()

	require.EqualValues(t, 1, atomic.LoadInt32(refreshCalls))
}

func TestMonitorDoesNothingWhenLoggedOut(t *testing.T) {
	manager, refreshCalls := monitorFixture(t)

	manager.monitor.evaluate()

	require.Zero(t, atomic.LoadInt32(refreshCalls))
	require.Equal(t, StateLoggedOut, manager.State())
}

func TestMonitorStartStopIdempotent(t *testing.T) {
	manager, _ := monitorFixture(t)

	monitor := manager.monitor
	monitor.Start()
	monitor.Start()
	monitor.Stop()
	monitor.Stop()
	monitor.Start()
	monitor.Stop()
}
