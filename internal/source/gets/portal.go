// Package gets drives the maintenance portal through a headless Chrome.
package gets

import (
	"context"
	"fmt"
	"iter"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/willianribas/bots/internal/config"
	"github.com/willianribas/bots/internal/logger"
	"github.com/willianribas/bots/internal/source"
)

const (
	usernameSelector = `#j_username`
	passwordSelector = `input[type=password]`
	submitSelector   = `input[type="submit"]`
	rowSelector      = `#fm1\:tbPendencias_data tr[data-ri]`
	invalidPassword  = "Senha inválida"
)

// rowsScript collects every row of the pending orders table in one round trip.
const rowsScript = `Array.from(document.querySelectorAll('#fm1\\:tbPendencias_data tr[data-ri]')).map((tr, i) => {
	const text = el => ((el && el.textContent) || '').trim();
	const cells = tr.querySelectorAll('td');
	const origin = tr.querySelector('td div.MP-fontcolor, td div.MC-fontcolor') || tr.querySelector('td div');
	return {
		index: i,
		orderNumber: text(tr.querySelector('td.columnOS a')),
		rowText: text(tr),
		originText: text(origin),
		equipmentText: cells.length > 4 ? text(cells[4]) : '',
		criticalMarker: !!tr.querySelector('i.fa.fa-exclamation-triangle[title*="Equipamento Crítico"]'),
		executorText: text(tr.querySelector('td.columnRight')),
	};
})`

const invalidPasswordScript = `document.body ? document.body.innerText.includes("` + invalidPassword + `") : false`

// State is the session lifecycle.
type State int32

const (
	StateLoggedOut State = iota
	StateLoggingIn
	StateActive
)

func (s State) String() string {
	switch s {
	case StateLoggingIn:
		return "logging_in"
	case StateActive:
		return "active"
	default:
		return "logged_out"
	}
}

// Portal is a chromedp-backed source.Portal.
type Portal struct {
	cfg   config.ScraperConfig
	state atomic.Int32

	mu            sync.Mutex
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
}

var _ source.Portal = (*Portal)(nil)

func NewPortal(cfg config.ScraperConfig) *Portal {
	return &Portal{cfg: cfg}
}

// State reports the current session state.
func (p *Portal) State() State {
	return State(p.state.Load())
}

func allocatorOptions(headless bool) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	return append(opts,
		chromedp.Flag("headless", headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.WindowSize(1366, 900),
	)
}

// Open launches the browser, logs in and lands on the pending orders view.
func (p *Portal) Open(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.closeLocked()

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocatorOptions(p.cfg.Headless)...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	p.allocCancel = allocCancel
	p.browserCtx = browserCtx
	p.browserCancel = browserCancel

	// Start the browser on the long-lived context; a first Run on a
	// timeout-bound child would tie the browser to that timeout.
	if err := chromedp.Run(browserCtx); err != nil {
		p.closeLocked()
		return fmt.Errorf("start browser: %w", err)
	}

	if err := p.login(ctx); err != nil {
		p.closeLocked()
		return err
	}
	if err := p.run(ctx, p.cfg.LoginTimeout, chromedp.Navigate(p.cfg.TargetURL())); err != nil {
		p.closeLocked()
		return fmt.Errorf("%w: open target view: %v", source.ErrExtraction, err)
	}
	logger.CtxInfo(ctx, "portal session active")
	return nil
}

// Recover discards the current browser and opens a fresh session.
func (p *Portal) Recover(ctx context.Context) error {
	logger.CtxWarn(ctx, "recovering portal session")
	return p.Open(ctx)
}

// Close releases the browser.
func (p *Portal) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closeLocked()
	return nil
}

func (p *Portal) closeLocked() {
	if p.browserCancel != nil {
		p.browserCancel()
	}
	if p.allocCancel != nil {
		p.allocCancel()
	}
	p.browserCtx, p.browserCancel, p.allocCancel = nil, nil, nil
	p.state.Store(int32(StateLoggedOut))
}

// run executes actions on the browser tab bounded by timeout and by ctx.
func (p *Portal) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	if p.browserCtx == nil {
		return fmt.Errorf("portal session is not open")
	}
	tctx, cancel := context.WithTimeout(p.browserCtx, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	return chromedp.Run(tctx, actions...)
}

func (p *Portal) login(ctx context.Context) error {
	p.state.Store(int32(StateLoggingIn))

	if err := p.run(ctx, p.cfg.LoginTimeout, chromedp.Navigate(p.cfg.LoginURL())); err != nil {
		return fmt.Errorf("%w: load login page: %v", source.ErrLoginFailed, err)
	}
	if err := p.run(ctx, 2*p.cfg.ElementTimeout+time.Second,
		chromedp.WaitVisible(usernameSelector, chromedp.ByQuery),
		chromedp.SetValue(usernameSelector, p.cfg.Username, chromedp.ByQuery),
		chromedp.SetValue(passwordSelector, p.cfg.Password, chromedp.ByQuery),
		chromedp.Click(submitSelector, chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("%w: submit credentials: %v", source.ErrLoginFailed, err)
	}

	for attempt := 1; attempt <= p.cfg.LoginAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.cfg.LoginPoll):
		}

		var location string
		var invalid bool
		err := p.run(ctx, p.cfg.ElementTimeout,
			chromedp.Location(&location),
			chromedp.Evaluate(invalidPasswordScript, &invalid),
		)
		if err != nil {
			logger.FromContext(ctx).WithField(logger.FieldAttempt, attempt).WithError(err).Debug("login probe failed")
			continue
		}
		if loginSucceeded(location, invalid) {
			p.state.Store(int32(StateActive))
			logger.With(logger.Fields{logger.FieldAttempt: attempt}).Info(ctx, "login succeeded")
			return nil
		}
	}

	p.state.Store(int32(StateLoggedOut))
	return fmt.Errorf("%w: still on login page after %d attempts", source.ErrLoginFailed, p.cfg.LoginAttempts)
}

// loginSucceeded is true once the browser left the login URL without an
// invalid password banner.
func loginSucceeded(location string, invalidPassword bool) bool {
	return location != "" && !strings.Contains(strings.ToLower(location), "login") && !invalidPassword
}

// Rows reloads the target view and pulls the current table rows.
func (p *Portal) Rows(ctx context.Context) (iter.Seq[source.RawRow], error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.State() != StateActive {
		return nil, fmt.Errorf("%w: session is %s", source.ErrExtraction, p.State())
	}
	if err := p.run(ctx, p.cfg.ReloadTimeout, chromedp.Reload()); err != nil {
		return nil, fmt.Errorf("%w: reload: %v", source.ErrExtraction, err)
	}
	if err := p.run(ctx, p.cfg.ElementTimeout, chromedp.WaitReady(rowSelector, chromedp.ByQuery)); err != nil {
		return nil, fmt.Errorf("%w: wait for rows: %v", source.ErrExtraction, err)
	}

	var rows []source.RawRow
	if err := p.run(ctx, p.cfg.ElementTimeout, chromedp.Evaluate(rowsScript, &rows)); err != nil {
		return nil, fmt.Errorf("%w: read rows: %v", source.ErrExtraction, err)
	}
	return slices.Values(rows), nil
}
