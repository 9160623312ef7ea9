package auth

// matrix.go — exhaustive signing-variant prober.
//
// When the ladder fails and the operator asks for it, the prober crosses
// every candidate signing variant (signature type × secret decoding × digest
// encoding × credential source) and probes each until one returns HTTP 200.
// It is a diagnostic of last resort: expensive, explicit opt-in, and run at
// most once per process.

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/alejandrodnm/polybridge/internal/domain"
	"github.com/alejandrodnm/polybridge/internal/ports"
)

// ErrAlreadyProbed guards the one-shot rule: the matrix never runs twice
// in a process, a second sweep would tell us nothing the first did not.
var ErrAlreadyProbed = errors.New("auth: matrix probe already ran in this process")

// MatrixConfig lists the candidate values for each matrix dimension.
type MatrixConfig struct {
	SignatureTypes []domain.SignatureType
	SecretModes    []domain.SecretMode
	SigEncodings   []domain.SigEncoding
	Sources        []domain.CredSource
}

// DefaultMatrixConfig covers the account shapes seen in the wild:
// 2 signature types × 3 secret modes × 2 encodings × 2 sources = 24 cells.
func DefaultMatrixConfig() MatrixConfig {
	return MatrixConfig{
		SignatureTypes: []domain.SignatureType{domain.SigTypeEOA, domain.SigTypeSafe},
		SecretModes:    []domain.SecretMode{domain.SecretModeBase64, domain.SecretModeBase64URL, domain.SecretModeRaw},
		SigEncodings:   []domain.SigEncoding{domain.SigEncodingBase64URL, domain.SigEncodingBase64},
		Sources:        []domain.CredSource{domain.CredSourceExplicit, domain.CredSourceDerived},
	}
}

// Cells returns how many cells the config spans before any skipping.
func (c MatrixConfig) Cells() int {
	return len(c.SignatureTypes) * len(c.SecretModes) * len(c.SigEncodings) * len(c.Sources)
}

// deriveEntry caches one derivation attempt per signature type so a 24-cell
// sweep does not hit the derive endpoint 24 times.
type deriveEntry struct {
	creds   domain.Credentials
	outcome domain.ProbeOutcome
	err     error
}

// Prober sweeps the signing-variant matrix.
type Prober struct {
	gateway   ports.AuthGateway
	authCtx   *Context
	resolver  *Resolver
	notifier  ports.Notifier
	log       *slog.Logger
	userCreds domain.Credentials
	cfg       MatrixConfig

	mu  sync.Mutex
	ran bool
}

// NewProber wires the prober. userCreds may be zero: explicit-source cells
// are then skipped without producing a row.
func NewProber(gw ports.AuthGateway, authCtx *Context, resolver *Resolver, notifier ports.Notifier, userCreds domain.Credentials, cfg MatrixConfig, log *slog.Logger) *Prober {
	return &Prober{
		gateway:   gw,
		authCtx:   authCtx,
		resolver:  resolver,
		notifier:  notifier,
		log:       log,
		userCreds: userCreds,
		cfg:       cfg,
	}
}

// Run sweeps the matrix in fixed order, stopping at the first cell that
// returns HTTP 200. The report covers every cell actually tried, win or not,
// and is always emitted.
func (p *Prober) Run(ctx context.Context) ([]domain.AttemptResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ran {
		return nil, ErrAlreadyProbed
	}
	p.ran = true

	p.log.Info("matrix: starting probe sweep",
		"cells", p.cfg.Cells(), "signer", p.resolver.DerivedAddress())

	results := make([]domain.AttemptResult, 0, p.cfg.Cells())
	derived := make(map[domain.SignatureType]deriveEntry)
	var winner *domain.AttemptResult

sweep:
	for _, sigType := range p.cfg.SignatureTypes {
		for _, secretMode := range p.cfg.SecretModes {
			for _, sigEnc := range p.cfg.SigEncodings {
				for _, source := range p.cfg.Sources {
					if ctx.Err() != nil {
						break sweep
					}
					res, skipped := p.tryCell(ctx, sigType, secretMode, sigEnc, source, derived)
					if skipped {
						continue
					}
					results = append(results, res)
					if res.Success {
						winner = &results[len(results)-1]
						break sweep
					}
				}
			}
		}
	}

	p.notifier.MatrixReport(results)

	if winner != nil {
		p.install(*winner)
		p.log.Info("matrix: found working combination",
			"label", winner.Label,
			"signature_type", winner.SignatureType.String(),
			"secret_mode", winner.Options.SecretMode,
			"sig_encoding", winner.Options.SigEncoding,
			"source", winner.Source,
			"cells_tried", len(results),
		)
		return results, nil
	}

	p.log.Warn("matrix: no combination worked", "cells_tried", len(results))
	return results, ctx.Err()
}

// Reset re-arms the prober. Exists for tests; production code never calls it.
func (p *Prober) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ran = false
}

// tryCell probes one combination. skipped is true when the cell cannot be
// tried at all (explicit source without configured credentials).
func (p *Prober) tryCell(ctx context.Context, sigType domain.SignatureType, secretMode domain.SecretMode, sigEnc domain.SigEncoding, source domain.CredSource, derived map[domain.SignatureType]deriveEntry) (domain.AttemptResult, bool) {
	opts := domain.SigningOptions{SecretMode: secretMode, SigEncoding: sigEnc}
	res := domain.AttemptResult{
		Label:         fmt.Sprintf("%s/%s/%s/%s", sigType, secretMode, sigEnc, source),
		SignatureType: sigType,
		Source:        source,
		Options:       opts,
	}

	var creds domain.Credentials
	switch source {
	case domain.CredSourceExplicit:
		if p.userCreds.IsZero() {
			return domain.AttemptResult{}, true
		}
		creds = p.userCreds
	case domain.CredSourceDerived:
		entry, ok := derived[sigType]
		if !ok {
			id := p.resolver.Identity(sigType)
			entry.creds, entry.outcome, entry.err = p.gateway.DeriveCreds(ctx, id, false)
			derived[sigType] = entry
		}
		if entry.err != nil {
			res.Stage = "derive"
			res.Error = entry.err.Error()
			return res, false
		}
		if entry.creds.IsZero() {
			res.Stage = "derive"
			res.StatusCode = entry.outcome.HTTPStatus
			res.Error = entry.outcome.Message
			return res, false
		}
		creds = entry.creds
	}

	res.Stage = "verify"
	outcome, err := p.gateway.ProbeBalanceAllowance(ctx, creds, p.resolver.Identity(sigType), false, opts)
	if err != nil {
		res.Error = err.Error()
		return res, false
	}
	res.StatusCode = outcome.HTTPStatus

	// Matrix success is a literal 200: any softer bucket would let a
	// request-shape error masquerade as a working signing variant.
	if outcome.HTTPStatus == 200 {
		res.Success = true
		res.Credentials = creds
		return res, false
	}
	res.Error = outcome.Message
	return res, false
}

// install records the winning cell in the signing context.
func (p *Prober) install(res domain.AttemptResult) {
	p.authCtx.Install(res.SignatureType, false, res.Options, res.Source)
	p.authCtx.SetCreds(res.Credentials)
}
