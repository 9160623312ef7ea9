package auth

// ladder.go — fallback authentication ladder.
//
// The exchange's auth mode is not discoverable from the private key alone:
// it depends on off-chain account configuration we cannot query. So the
// negotiator walks a fixed, empirically-ranked list of (signature type,
// auth address) combinations, cheapest and most likely first, deriving and
// verifying credentials for each until one works.

import (
	"context"
	"errors"
	"log/slog"

	"github.com/alejandrodnm/polybridge/internal/domain"
	"github.com/alejandrodnm/polybridge/internal/ports"
)

// ErrAllRungsFailed is returned when every rung was tried and none
// verified. Callers degrade to detect-only mode; this is never a crash.
var ErrAllRungsFailed = errors.New("auth: all ladder rungs failed")

// fallbackLadder is configuration data, not code: the order encodes the
// observed likelihood of each account shape. Exactly five entries.
var fallbackLadder = [5]domain.FallbackAttempt{
	{SignatureType: domain.SigTypeEOA, UseEffectiveAddress: false, Label: "EOA / signer"},
	{SignatureType: domain.SigTypeSafe, UseEffectiveAddress: false, Label: "Safe / signer"},
	{SignatureType: domain.SigTypeSafe, UseEffectiveAddress: true, Label: "Safe / effective"},
	{SignatureType: domain.SigTypeProxy, UseEffectiveAddress: false, Label: "Proxy / signer"},
	{SignatureType: domain.SigTypeProxy, UseEffectiveAddress: true, Label: "Proxy / effective"},
}

// Ladder returns a copy of the fallback ladder for inspection and tests.
func Ladder() []domain.FallbackAttempt {
	out := make([]domain.FallbackAttempt, len(fallbackLadder))
	copy(out, fallbackLadder[:])
	return out
}

// AuthOutcome is the result of a full authentication run.
type AuthOutcome struct {
	Success       bool
	Credentials   domain.Credentials
	Identity      domain.Identity
	UsedEffective bool
	Options       domain.SigningOptions
	Source        domain.CredSource
	// Attempts holds every attempt made, in order: the explicit-credentials
	// check (when configured) followed by the ladder rungs tried.
	Attempts []domain.AttemptResult
	// Diagnosis is filled on failure only.
	Diagnosis domain.Diagnosis
}

// Negotiator runs the authentication pipeline: explicit credentials first
// when the operator supplied them, then the fallback ladder.
type Negotiator struct {
	gateway   ports.AuthGateway
	authCtx   *Context
	resolver  *Resolver
	limiter   *FailureLimiter
	log       *slog.Logger
	userCreds domain.Credentials
}

// NewNegotiator wires the negotiator. userCreds may be zero when the
// operator did not configure explicit credentials.
func NewNegotiator(gw ports.AuthGateway, authCtx *Context, resolver *Resolver, limiter *FailureLimiter, userCreds domain.Credentials, log *slog.Logger) *Negotiator {
	return &Negotiator{
		gateway:   gw,
		authCtx:   authCtx,
		resolver:  resolver,
		limiter:   limiter,
		log:       log,
		userCreds: userCreds,
	}
}

// Authenticate finds a working authentication configuration and installs it
// in the signing context. On exhaustion it returns the full attempt history
// with a diagnosis and ErrAllRungsFailed.
func (n *Negotiator) Authenticate(ctx context.Context) (*AuthOutcome, error) {
	out := &AuthOutcome{}

	if !n.userCreds.IsZero() {
		res := n.tryExplicit(ctx)
		out.Attempts = append(out.Attempts, res)
		if res.Success {
			n.install(out, res)
			return out, nil
		}
		n.log.Warn("auth: explicit credentials rejected, falling back to ladder",
			"status", res.StatusCode, "err", res.Error)
	}

	rungs := n.RunLadder(ctx)
	out.Attempts = append(out.Attempts, rungs...)

	for _, res := range rungs {
		if res.Success {
			n.install(out, res)
			return out, nil
		}
	}

	out.Diagnosis = Diagnose(n.diagnosisInput(out.Attempts))
	n.log.Error("auth: ladder exhausted",
		"attempts", len(out.Attempts),
		"cause", out.Diagnosis.Cause,
		"confidence", out.Diagnosis.Confidence,
	)
	return out, ErrAllRungsFailed
}

// RunLadder walks the five rungs in order, stopping at the first success.
// The returned history contains one result per rung actually tried.
func (n *Negotiator) RunLadder(ctx context.Context) []domain.AttemptResult {
	opts := n.authCtx.Options()
	results := make([]domain.AttemptResult, 0, len(fallbackLadder))

	for i, att := range fallbackLadder {
		res := n.tryRung(ctx, att, opts)
		results = append(results, res)

		if res.Success {
			n.log.Info("auth: ladder rung verified",
				"rung", i+1,
				"label", att.Label,
				"signature_type", att.SignatureType.String(),
				"effective_address", att.UseEffectiveAddress,
			)
			return results
		}
		n.logRungFailure(i, att, res)

		if ctx.Err() != nil {
			return results
		}
	}
	return results
}

// tryExplicit verifies operator-supplied credentials under the configured
// base identity without deriving anything.
func (n *Negotiator) tryExplicit(ctx context.Context) domain.AttemptResult {
	id := n.resolver.Base()
	opts := n.authCtx.Options()
	// Exchange-issued secrets are always base64url, but operator configs
	// arrive in whatever encoding the operator pasted. Sign with the
	// detected mode and record it; on success it gets installed.
	opts.SecretMode = DetectSecretMode(n.userCreds.Secret)
	res := domain.AttemptResult{
		Label:         "explicit credentials",
		SignatureType: id.SignatureType,
		Source:        domain.CredSourceExplicit,
		Options:       opts,
	}

	res.Stage = "verify"
	outcome, err := n.probeWithRetry(ctx, n.userCreds, id, false, opts)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	res.StatusCode = outcome.HTTPStatus

	status, _ := classifyProbe(outcome)
	if status.AuthOK() {
		res.Success = true
		res.Credentials = n.userCreds
		return res
	}
	res.Error = outcome.Message
	return res
}

// tryRung derives credentials and verifies them for one ladder entry.
func (n *Negotiator) tryRung(ctx context.Context, att domain.FallbackAttempt, opts domain.SigningOptions) domain.AttemptResult {
	id := n.resolver.Identity(att.SignatureType)
	res := domain.AttemptResult{
		Label:                att.Label,
		SignatureType:        att.SignatureType,
		UsedEffectiveAddress: att.UseEffectiveAddress,
		Source:               domain.CredSourceDerived,
		Options:              opts,
	}

	res.Stage = "derive"
	creds, outcome, err := n.deriveWithRetry(ctx, id, att.UseEffectiveAddress)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	if creds.IsZero() {
		res.StatusCode = outcome.HTTPStatus
		res.Error = outcome.Message
		return res
	}

	res.Stage = "verify"
	probe, err := n.probeWithRetry(ctx, creds, id, att.UseEffectiveAddress, opts)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	res.StatusCode = probe.HTTPStatus

	status, _ := classifyProbe(probe)
	if status.AuthOK() {
		res.Success = true
		res.Credentials = creds
		return res
	}
	res.Error = probe.Message
	return res
}

// deriveWithRetry gives the derive call one in-place retry when the failure
// is a transient transport error, so a network blip is not misread as a
// wrong-configuration signal.
func (n *Negotiator) deriveWithRetry(ctx context.Context, id domain.Identity, useEffective bool) (domain.Credentials, domain.ProbeOutcome, error) {
	creds, outcome, err := n.gateway.DeriveCreds(ctx, id, useEffective)
	if err != nil && isTransientNetErr(err) && ctx.Err() == nil {
		n.log.Debug("auth: transient derive failure, retrying once", "err", err)
		creds, outcome, err = n.gateway.DeriveCreds(ctx, id, useEffective)
	}
	return creds, outcome, err
}

// probeWithRetry is the same single-retry policy for the verification probe.
func (n *Negotiator) probeWithRetry(ctx context.Context, creds domain.Credentials, id domain.Identity, useEffective bool, opts domain.SigningOptions) (domain.ProbeOutcome, error) {
	outcome, err := n.gateway.ProbeBalanceAllowance(ctx, creds, id, useEffective, opts)
	if err != nil && isTransientNetErr(err) && ctx.Err() == nil {
		n.log.Debug("auth: transient probe failure, retrying once", "err", err)
		outcome, err = n.gateway.ProbeBalanceAllowance(ctx, creds, id, useEffective, opts)
	}
	return outcome, err
}

// install records the winning combination in the signing context.
func (n *Negotiator) install(out *AuthOutcome, res domain.AttemptResult) {
	out.Success = true
	out.Credentials = res.Credentials
	out.Identity = n.resolver.Identity(res.SignatureType)
	out.UsedEffective = res.UsedEffectiveAddress
	out.Options = res.Options
	out.Source = res.Source

	n.authCtx.Install(res.SignatureType, res.UsedEffectiveAddress, res.Options, res.Source)
	n.authCtx.SetCreds(res.Credentials)
	n.limiter.Reset()
}

// logRungFailure routes rung failures through the rate limiter so a wallet
// that fails every rung on every cycle does not flood the log.
func (n *Negotiator) logRungFailure(i int, att domain.FallbackAttempt, res domain.AttemptResult) {
	key := FailureKey{
		Endpoint:      "ladder:" + att.Label,
		StatusCode:    res.StatusCode,
		SignerAddress: n.resolver.DerivedAddress(),
		SignatureType: att.SignatureType,
	}
	dec := n.limiter.ShouldLog(key)

	if dec.LogFull {
		n.log.Warn("auth: ladder rung failed",
			"rung", i+1,
			"label", att.Label,
			"status", res.StatusCode,
			"err", res.Error,
			"suppressed_since_last", dec.SuppressedCount,
		)
		return
	}
	n.log.Debug("auth: ladder rung failed (suppressed)",
		"rung", i+1,
		"suppressed", dec.SuppressedCount,
	)
}

// diagnosisInput condenses the attempt history for the diagnostician.
func (n *Negotiator) diagnosisInput(attempts []domain.AttemptResult) DiagnosisInput {
	in := DiagnosisInput{
		UserProvidedKeys: !n.userCreds.IsZero(),
		DeriveEnabled:    true,
	}

	for _, res := range attempts {
		if res.Success {
			continue
		}
		if res.Source == domain.CredSourceExplicit {
			in.UserKeysFailed = true
			in.VerifyStatus = res.StatusCode
			in.VerifyMessage = res.Error
			continue
		}
		switch res.Stage {
		case "derive":
			in.DeriveFailed = true
			in.DeriveError = res.Error
		case "verify":
			in.VerifyFailed = true
			in.VerifyStatus = res.StatusCode
			in.VerifyMessage = res.Error
		}
	}
	return in
}
