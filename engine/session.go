package engine

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tradekit/optrader/broker"
)

var sessionLog = logrus.WithField("module", "session")

// SessionConfig controls the connect/retry state machine. Zero MaxAttempts
// means retry forever — the intended policy for an unattended process.
type SessionConfig struct {
	Host           string
	Port           int
	ClientID       int // zero picks a random identity per connect
	ConnectTimeout time.Duration
	RetryBackoff   time.Duration
	MaxAttempts    int
	MarketDataType broker.MarketDataType
}

func (c SessionConfig) withDefaults() SessionConfig {
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 60 * time.Second
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 65 * time.Second
	}
	if c.MarketDataType == 0 {
		c.MarketDataType = broker.DataDelayedFrozen
	}
	return c
}

// Session owns the gateway connection. It is passed explicitly to every
// component that needs the gateway; there is no ambient shared handle.
type Session struct {
	gw    broker.Gateway
	cfg   SessionConfig
	clock Clock
}

func NewSession(gw broker.Gateway, cfg SessionConfig, clock Clock) *Session {
	if clock == nil {
		clock = RealClock()
	}
	return &Session{gw: gw, cfg: cfg.withDefaults(), clock: clock}
}

// Gateway exposes the underlying gateway for read-only calls (snapshots,
// status polls). Submissions should go through Submitter.
func (s *Session) Gateway() broker.Gateway { return s.gw }

// Connect runs the blocking retry loop: one handshake attempt, then a fixed
// backoff on failure, indefinitely unless MaxAttempts caps it. Every gateway
// error during connect is retryable; only context cancellation or the
// attempt cap end the loop early. After a successful handshake the market
// data subscription tier is re-applied — it is not part of negotiated
// session state and is lost on every reconnect.
func (s *Session) Connect(ctx context.Context) error {
	clientID := s.cfg.ClientID
	if clientID == 0 {
		clientID = 1 + rand.Intn(998)
	}
	opts := broker.ConnectOptions{
		Host:     s.cfg.Host,
		Port:     s.cfg.Port,
		ClientID: clientID,
		Timeout:  s.cfg.ConnectTimeout,
	}

	attempts := 0
	for {
		err := s.gw.Connect(ctx, opts)
		if err == nil {
			mtxConnects.Inc()
			sessionLog.WithFields(logrus.Fields{
				"host":      opts.Host,
				"port":      opts.Port,
				"client_id": opts.ClientID,
			}).Info("gateway connected")

			if err := s.gw.SetMarketDataType(ctx, s.cfg.MarketDataType); err != nil {
				return fmt.Errorf("set market data type: %w", err)
			}
			return nil
		}

		attempts++
		mtxConnectFailures.Inc()
		sessionLog.WithError(err).WithField("attempt", attempts).Warn("gateway connect failed")

		if s.cfg.MaxAttempts > 0 && attempts >= s.cfg.MaxAttempts {
			return &ConnectionError{Attempts: attempts, Err: err}
		}
		if serr := s.clock.Sleep(ctx, s.cfg.RetryBackoff); serr != nil {
			return &ConnectionError{Attempts: attempts, Err: serr}
		}
	}
}

// IsConnected probes gateway liveness. A false result means the session is
// dead: call Connect again for a fresh one rather than repairing this one.
func (s *Session) IsConnected() bool { return s.gw.IsConnected() }

// Ensure reconnects if the liveness probe fails.
func (s *Session) Ensure(ctx context.Context) error {
	if s.gw.IsConnected() {
		return nil
	}
	sessionLog.Warn("gateway connection lost, reconnecting")
	return s.Connect(ctx)
}

func (s *Session) Disconnect() error { return s.gw.Disconnect() }
