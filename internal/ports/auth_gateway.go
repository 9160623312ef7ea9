package ports

import (
	"context"

	"github.com/alejandrodnm/polybridge/internal/domain"
)

// AuthGateway performs the exchange calls the verification pipeline needs.
//
// Error convention: a non-nil error means the call never produced an HTTP
// answer (transport failure, cancellation). Rejections arrive as a
// ProbeOutcome with the status and message filled in — they are results to
// classify, not errors. Every method issues exactly one attempt; retry and
// backoff policy belongs to the callers.
type AuthGateway interface {
	// CheckConnectivity hits a stable unauthenticated endpoint (server time).
	CheckConnectivity(ctx context.Context) error

	// DeriveCreds performs the L1-signed credential derivation call,
	// falling back to credential creation when the wallet has none yet.
	// useEffective picks which address goes in the auth headers.
	DeriveCreds(ctx context.Context, id domain.Identity, useEffective bool) (domain.Credentials, domain.ProbeOutcome, error)

	// ProbeBalanceAllowance issues the signed, side-effect-free verification
	// GET under the given credentials and signing options.
	ProbeBalanceAllowance(ctx context.Context, creds domain.Credentials, id domain.Identity, useEffective bool, opts domain.SigningOptions) (domain.ProbeOutcome, error)
}
