// Package ibkr talks to the Interactive Brokers Client Portal gateway, the
// local HTTPS process that proxies an authenticated brokerage session. The
// gateway serves a self-signed certificate on localhost, hence the relaxed
// TLS config.
package ibkr

import (
	"context"
	"crypto/tls"
	"fmt"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"

	"github.com/tradekit/optrader/broker"
)

var log = logrus.WithField("module", "ibkr")

const tickleInterval = 60 * time.Second

// Gateway implements broker.Gateway against the Client Portal REST API.
type Gateway struct {
	rest *resty.Client

	// baseURL overrides the https://host:port/v1/api derivation when set.
	baseURL string

	mu        sync.Mutex
	connected bool
	accountID string
	dataType  broker.MarketDataType

	localSeq int
	epoch    int64 // makes client order ids unique across sessions
	orders   map[int]*cpOrder
	pending  map[int]*pendingOrder

	tickleStop chan struct{}
}

func New() *Gateway {
	return &Gateway{
		orders:  make(map[int]*cpOrder),
		pending: make(map[int]*pendingOrder),
	}
}

// Connect verifies the Client Portal session is authenticated and selects
// the brokerage account. The gateway process handles the actual brokerage
// login; an unauthenticated session is surfaced as an error after one
// reauthentication attempt.
func (g *Gateway) Connect(ctx context.Context, opts broker.ConnectOptions) error {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	base := g.baseURL
	if base == "" {
		base = fmt.Sprintf("https://%s:%d/v1/api", opts.Host, opts.Port)
	}
	rest := resty.New().
		SetBaseURL(base).
		SetTimeout(timeout).
		SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})

	g.mu.Lock()
	g.rest = rest
	g.epoch = time.Now().Unix()
	g.mu.Unlock()

	status, err := g.authStatus(ctx)
	if err != nil {
		return fmt.Errorf("auth status: %w", err)
	}
	if !status.Authenticated {
		if _, err := g.rest.R().SetContext(ctx).Post("/iserver/reauthenticate"); err != nil {
			return fmt.Errorf("reauthenticate: %w", err)
		}
		status, err = g.authStatus(ctx)
		if err != nil {
			return fmt.Errorf("auth status: %w", err)
		}
		if !status.Authenticated {
			return fmt.Errorf("gateway session not authenticated")
		}
	}

	var accounts struct {
		Accounts []string `json:"accounts"`
		Selected string   `json:"selectedAccount"`
	}
	if err := g.get(ctx, "/iserver/accounts", nil, &accounts); err != nil {
		return fmt.Errorf("select account: %w", err)
	}
	acct := accounts.Selected
	if acct == "" && len(accounts.Accounts) > 0 {
		acct = accounts.Accounts[0]
	}
	if acct == "" {
		return fmt.Errorf("no brokerage account available")
	}

	g.mu.Lock()
	g.accountID = acct
	g.connected = true
	g.tickleStop = make(chan struct{})
	stop := g.tickleStop
	g.mu.Unlock()

	go g.keepalive(stop)

	log.WithField("account", acct).Info("client portal session ready")
	return nil
}

type authStatusResponse struct {
	Authenticated bool `json:"authenticated"`
	Connected     bool `json:"connected"`
}

func (g *Gateway) authStatus(ctx context.Context) (authStatusResponse, error) {
	var out authStatusResponse
	resp, err := g.rest.R().SetContext(ctx).SetResult(&out).Post("/iserver/auth/status")
	if err != nil {
		return out, err
	}
	if !resp.IsSuccess() {
		return out, fmt.Errorf("status %d: %s", resp.StatusCode(), resp.String())
	}
	return out, nil
}

// keepalive tickles the gateway so the brokerage session does not idle out.
func (g *Gateway) keepalive(stop <-chan struct{}) {
	t := time.NewTicker(tickleInterval)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			if _, err := g.rest.R().Post("/tickle"); err != nil {
				log.WithError(err).Warn("session tickle failed")
			}
		}
	}
}

func (g *Gateway) IsConnected() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.connected
}

func (g *Gateway) Disconnect() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.connected {
		return nil
	}
	close(g.tickleStop)
	g.connected = false
	return nil
}

// SetMarketDataType records the requested feed. The Client Portal API picks
// delayed data by itself when the account lacks a live subscription, so
// there is nothing to send; the recorded value is what the session reapplies
// after a reconnect.
func (g *Gateway) SetMarketDataType(ctx context.Context, t broker.MarketDataType) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.connected {
		return broker.ErrNotConnected
	}
	g.dataType = t
	return nil
}

func (g *Gateway) ensureConnected() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.connected {
		return "", broker.ErrNotConnected
	}
	return g.accountID, nil
}

func (g *Gateway) get(ctx context.Context, path string, params map[string]string, out any) error {
	req := g.rest.R().SetContext(ctx)
	if params != nil {
		req.SetQueryParams(params)
	}
	if out != nil {
		req.SetResult(out)
	}
	resp, err := req.Get(path)
	if err != nil {
		return err
	}
	if !resp.IsSuccess() {
		return fmt.Errorf("%s: status %d: %s", path, resp.StatusCode(), resp.String())
	}
	return nil
}

func (g *Gateway) post(ctx context.Context, path string, body, out any) error {
	req := g.rest.R().SetContext(ctx)
	if body != nil {
		req.SetBody(body)
	}
	if out != nil {
		req.SetResult(out)
	}
	resp, err := req.Post(path)
	if err != nil {
		return err
	}
	if !resp.IsSuccess() {
		return fmt.Errorf("%s: status %d: %s", path, resp.StatusCode(), resp.String())
	}
	return nil
}
