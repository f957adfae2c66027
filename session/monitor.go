package session

import (
	"context"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	defaultRenewalInterval  = 30 * time.Minute
	defaultRenewalThreshold = 15 * time.Minute
)

// RenewalMonitor periodically inspects the access token's expiry claim while
// the session is authenticated and proactively refreshes it when its
// remaining lifetime drops below the threshold. It never mutates session
// state itself: it only drives the same single-flight refresh path that
// request-triggered refreshes use.
type RenewalMonitor struct {
	lock      sync.Mutex
	scheduler *gocron.Scheduler

	manager   *Manager
	interval  time.Duration
	threshold time.Duration
}

func newRenewalMonitor(manager *Manager) *RenewalMonitor {
	return &RenewalMonitor{
		manager:   manager,
		interval:  defaultRenewalInterval,
		threshold: defaultRenewalThreshold,
	}
}

// Start begins periodic evaluation. Starting an already-running monitor is a
// no-op.
func (r *RenewalMonitor) Start() {
	r.lock.Lock()
	defer r.lock.Unlock()

	if r.scheduler != nil {
		return
	}
	scheduler := gocron.NewScheduler(time.UTC)
	if _, err := scheduler.Every(r.interval).Do(r.evaluate); err != nil {
		log.Error().Err(err).Msg("failed to schedule token renewal job")
		return
	}
	scheduler.StartAsync()
	r.scheduler = scheduler
	log.Debug().Dur("interval", r.interval).Msg("token renewal monitor started")
}

// Stop halts periodic evaluation. Stopping an already-stopped monitor is a
// no-op.
func (r *RenewalMonitor) Stop() {
	r.lock.Lock()
	defer r.lock.Unlock()

	if r.scheduler == nil {
		return
	}
	r.scheduler.Stop()
	r.scheduler = nil
	log.Debug().Msg("token renewal monitor stopped")
}

func (r *RenewalMonitor) evaluate() {
	if r.manager.State() != StateAuthenticated {
		return
	}

	token := r.manager.AccessToken()
	if token != "" {
		expiry, err := tokenExpiry(token)
		if err != nil {
			log.Debug().Err(err).Msg("access token expiry undecodable, refreshing")
		} else if expiry.Sub(r.manager.nowTime()) > r.threshold {
			return
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
	defer cancel()

	if !r.manager.RefreshAccessToken(ctx) {
		log.Warn().Msg("proactive token renewal failed")
	}
}

// tokenExpiry extracts the exp claim without verifying the signature; the
// client holds no verification keys and treats tokens as otherwise opaque.
func tokenExpiry(rawToken string) (time.Time, error) {
	token, _, err := jwt.NewParser().ParseUnverified(rawToken, jwt.MapClaims{})
	if err != nil {
		return time.Time{}, errors.Wrap(err, "[tokenExpiry] parse token")
	}
	exp, err := token.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, errors.New("[tokenExpiry] token has no exp claim")
	}
	return exp.Time, nil
}
