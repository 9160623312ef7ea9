package auth

// preflight.go — pre-trade verification state machine.
//
// Before the bridge is allowed to place live orders, a preflight check must
// prove the installed credentials still work: connectivity first, then a
// cheap signed probe. Failures push the next attempt out with exponential
// backoff so a broken configuration cannot hammer the exchange.

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/alejandrodnm/polybridge/internal/domain"
	"github.com/alejandrodnm/polybridge/internal/ports"
)

// ErrNoCredentials is returned by Check when nothing is installed in the
// signing context; run the negotiator (or the matrix prober) first.
var ErrNoCredentials = errors.New("auth: no credentials installed")

const (
	preflightBaseBackoff = time.Second
	preflightMaxBackoff  = 5 * time.Minute

	connectivityAttempts = 5
	connectivityBaseWait = 500 * time.Millisecond

	// authFailInvalidateAfter is how many consecutive AUTH_FAIL probes it
	// takes before cached credentials are dropped and re-negotiated.
	authFailInvalidateAfter = 3
)

// PreflightConfig bounds the verifier's backoff. Zero values fall back to
// the defaults (1s base, 5m cap).
type PreflightConfig struct {
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

// Verifier runs preflight checks against the exchange, spacing attempts out
// with exponential backoff. Safe for concurrent use; checks are serialized.
type Verifier struct {
	gateway  ports.AuthGateway
	authCtx  *Context
	resolver *Resolver
	limiter  *FailureLimiter
	journal  ports.Journal
	log      *slog.Logger

	// now and sleep are swappable so tests run without real time.
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	baseBackoff time.Duration
	maxBackoff  time.Duration

	mu             sync.Mutex
	backoff        time.Duration
	lastAttemptAt  time.Time
	authFailStreak int
}

// NewVerifier wires the verifier. journal may be nil when no persistence is
// configured.
func NewVerifier(gw ports.AuthGateway, authCtx *Context, resolver *Resolver, limiter *FailureLimiter, journal ports.Journal, cfg PreflightConfig, log *slog.Logger) *Verifier {
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = preflightBaseBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = preflightMaxBackoff
	}
	return &Verifier{
		gateway:     gw,
		authCtx:     authCtx,
		resolver:    resolver,
		limiter:     limiter,
		journal:     journal,
		log:         log,
		now:         time.Now,
		sleep:       sleepCtx,
		baseBackoff: cfg.BaseBackoff,
		maxBackoff:  cfg.MaxBackoff,
		backoff:     cfg.BaseBackoff,
	}
}

// Backoff returns the current wait the next failure has to respect.
func (v *Verifier) Backoff() time.Duration {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.backoff
}

// Check runs one preflight attempt. A (nil, nil) return means the check was
// skipped because the previous attempt is still inside its backoff window —
// callers treat that as "no new information", never as success.
func (v *Verifier) Check(ctx context.Context) (*domain.PreflightResult, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	start := v.now()
	if wait := v.backoff - start.Sub(v.lastAttemptAt); wait > 0 {
		v.log.Debug("preflight: inside backoff window, skipping", "remaining", wait)
		return nil, nil
	}

	creds, ok := v.authCtx.Creds()
	if !ok {
		return nil, ErrNoCredentials
	}
	v.lastAttemptAt = start

	res := v.runCheck(ctx, creds)
	res.CheckedAt = start
	res.Elapsed = v.now().Sub(start)
	res.Options = v.authCtx.Options()

	v.applyOutcome(res)
	v.record(ctx, res)
	return res, nil
}

// runCheck does the network part: connectivity, then the signed probe.
func (v *Verifier) runCheck(ctx context.Context, creds domain.Credentials) *domain.PreflightResult {
	if err := v.ensureConnectivity(ctx); err != nil {
		return &domain.PreflightResult{
			Status:  domain.PreflightNetworkFail,
			Message: err.Error(),
		}
	}

	sigType, useEffective := v.authCtx.AuthMode()
	id := v.resolver.Identity(sigType)

	outcome, err := v.gateway.ProbeBalanceAllowance(ctx, creds, id, useEffective, v.authCtx.Options())
	if err != nil {
		return &domain.PreflightResult{
			Status:  domain.PreflightNetworkFail,
			Message: err.Error(),
		}
	}

	status, reason := classifyProbe(outcome)
	return &domain.PreflightResult{
		Status:     status,
		HTTPStatus: outcome.HTTPStatus,
		Reason:     reason,
		Message:    outcome.Message,
	}
}

// ensureConnectivity checks the exchange is reachable at all, retrying only
// transient transport errors. An HTTP-level failure comes back immediately:
// retrying it would not change the answer.
func (v *Verifier) ensureConnectivity(ctx context.Context) error {
	var err error
	for attempt := 0; attempt < connectivityAttempts; attempt++ {
		if attempt > 0 {
			wait := connectivityBaseWait * time.Duration(1<<(attempt-1))
			if serr := v.sleep(ctx, wait); serr != nil {
				return serr
			}
		}
		err = v.gateway.CheckConnectivity(ctx)
		if err == nil {
			return nil
		}
		if !isTransientNetErr(err) {
			return err
		}
		v.log.Debug("preflight: connectivity attempt failed",
			"attempt", attempt+1, "err", err)
	}
	return err
}

// applyOutcome updates backoff and the failure streak. Success and
// parameter errors prove auth works and reset the clock; everything else —
// funds problems included — doubles it up to the cap.
func (v *Verifier) applyOutcome(res *domain.PreflightResult) {
	if res.Status == domain.PreflightOK || res.Status == domain.PreflightParamFail {
		if res.Status != domain.PreflightOK {
			v.log.Warn("preflight: auth verified but check did not pass",
				"status", res.Status, "http_status", res.HTTPStatus, "msg", res.Message)
		}
		v.backoff = v.baseBackoff
		v.authFailStreak = 0
		// Fresh start for log suppression too: the next failure after a
		// working cycle is news and must log in full.
		v.limiter.Reset()
		return
	}

	v.backoff = min(v.backoff*2, v.maxBackoff)

	if res.Status == domain.PreflightAuthFail {
		v.authFailStreak++
		v.logAuthFailure(res)
		if v.authFailStreak >= authFailInvalidateAfter {
			v.log.Warn("preflight: dropping cached credentials after repeated auth failures",
				"streak", v.authFailStreak)
			v.authCtx.InvalidateCreds()
			v.authFailStreak = 0
		}
		return
	}

	v.authFailStreak = 0
	v.log.Warn("preflight: check failed",
		"status", res.Status, "http_status", res.HTTPStatus,
		"msg", res.Message, "next_backoff", v.backoff)
}

// logAuthFailure routes auth failures through the rate limiter: the first
// occurrence of a failure shape logs in full, repeats collapse to a summary.
func (v *Verifier) logAuthFailure(res *domain.PreflightResult) {
	sigType, _ := v.authCtx.AuthMode()
	key := FailureKey{
		Endpoint:      "/balance-allowance",
		StatusCode:    res.HTTPStatus,
		SignerAddress: v.resolver.DerivedAddress(),
		SignatureType: sigType,
	}
	dec := v.limiter.ShouldLog(key)

	if dec.LogFull {
		v.log.Error("preflight: authentication failed",
			"http_status", res.HTTPStatus,
			"reason", res.Reason,
			"msg", res.Message,
			"secret_mode", res.Options.SecretMode,
			"sig_encoding", res.Options.SigEncoding,
			"next_backoff", v.backoff,
			"suppressed_since_last", dec.SuppressedCount,
		)
		return
	}
	v.log.Warn("preflight: authentication still failing",
		"http_status", res.HTTPStatus,
		"suppressed", dec.SuppressedCount,
		"quiet_until", dec.Cooldown,
	)
}

// record persists the check when a journal is configured.
func (v *Verifier) record(ctx context.Context, res *domain.PreflightResult) {
	if v.journal == nil {
		return
	}
	rec := domain.PreflightRecord{
		Status:     res.Status,
		Reason:     res.Reason,
		HTTPStatus: res.HTTPStatus,
		BackoffMs:  v.backoff.Milliseconds(),
		CheckedAt:  res.CheckedAt,
	}
	if err := v.journal.SavePreflight(ctx, rec); err != nil {
		v.log.Warn("preflight: journal write failed", "err", err)
	}
}

// classifyProbe maps a probe response onto the preflight status buckets.
func classifyProbe(outcome domain.ProbeOutcome) (domain.PreflightStatus, domain.AuthFailReason) {
	switch {
	case outcome.HTTPStatus == 200:
		return domain.PreflightOK, ""
	case outcome.HTTPStatus == 401 || outcome.HTTPStatus == 403:
		reason := ClassifyAuthFailure(outcome.HTTPStatus, outcome.Message,
			outcome.QuerySent, strings.Contains(outcome.SignedPath, "?"))
		return domain.PreflightAuthFail, reason
	case outcome.HTTPStatus == 400 && looksLikeFundsError(outcome.Message):
		return domain.PreflightFundsFail, ""
	case outcome.HTTPStatus >= 500:
		return domain.PreflightNetworkFail, ""
	default:
		// Remaining 4xx are request-shape problems: auth got through.
		return domain.PreflightParamFail, ""
	}
}

// ClassifyAuthFailure decides why a 401/403 happened. The canonicalization
// check must come first: the exchange reports a signature computed over the
// wrong path with the same generic message as genuinely bad credentials,
// and only the query mismatch tells them apart.
func ClassifyAuthFailure(status int, message string, querySent, signedPathHasQuery bool) domain.AuthFailReason {
	lower := strings.ToLower(message)

	if strings.Contains(lower, "invalid l1 request headers") && querySent && !signedPathHasQuery {
		return domain.ReasonMessageCanonicalization
	}
	if strings.Contains(lower, "timestamp") || strings.Contains(lower, "too old") ||
		strings.Contains(lower, "expired") {
		return domain.ReasonClockSkew
	}
	if strings.Contains(lower, "api key") || strings.Contains(lower, "api-key") ||
		strings.Contains(lower, "passphrase") || strings.Contains(lower, "invalid signature") {
		return domain.ReasonBadCredentials
	}
	return domain.ReasonUnknown
}

func looksLikeFundsError(message string) bool {
	lower := strings.ToLower(message)
	return strings.Contains(lower, "insufficient") ||
		strings.Contains(lower, "balance") ||
		strings.Contains(lower, "allowance")
}

// isTransientNetErr reports whether an error is worth retrying: timeouts and
// connection-level failures, never a context cancellation.
func isTransientNetErr(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	lower := strings.ToLower(err.Error())
	for _, pattern := range networkErrorPatterns {
		if strings.Contains(lower, pattern) {
			return true
		}
	}
	return false
}

// sleepCtx waits for d unless the context ends first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
