package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/alejandrodnm/polybridge/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestNegotiator(t *testing.T, gw *fakeGateway, userCreds domain.Credentials) (*Negotiator, *Context, *Resolver) {
	t.Helper()
	authCtx := NewContext()
	resolver, err := NewResolver(IdentityInputs{
		PrivateKey:    testPrivKey,
		FunderAddress: testFunder,
	}, testLogger())
	require.NoError(t, err)

	limiter := NewFailureLimiter(0, 0, nil)
	return NewNegotiator(gw, authCtx, resolver, limiter, userCreds, testLogger()), authCtx, resolver
}

// --- Ladder ---

func TestLadder_FixedOrder(t *testing.T) {
	rungs := Ladder()
	require.Len(t, rungs, 5)

	assert.Equal(t, domain.SigTypeEOA, rungs[0].SignatureType)
	assert.False(t, rungs[0].UseEffectiveAddress)

	assert.Equal(t, domain.SigTypeSafe, rungs[1].SignatureType)
	assert.False(t, rungs[1].UseEffectiveAddress)

	assert.Equal(t, domain.SigTypeSafe, rungs[2].SignatureType)
	assert.True(t, rungs[2].UseEffectiveAddress)

	assert.Equal(t, domain.SigTypeProxy, rungs[3].SignatureType)
	assert.False(t, rungs[3].UseEffectiveAddress)

	assert.Equal(t, domain.SigTypeProxy, rungs[4].SignatureType)
	assert.True(t, rungs[4].UseEffectiveAddress)
}

func TestLadder_ReturnsCopy(t *testing.T) {
	rungs := Ladder()
	rungs[0].Label = "mutated"
	assert.NotEqual(t, "mutated", Ladder()[0].Label)
}

func TestLadder_EffectiveRungsAuthAsFunder(t *testing.T) {
	resolver, err := NewResolver(IdentityInputs{
		PrivateKey:    testPrivKey,
		FunderAddress: testFunder,
	}, testLogger())
	require.NoError(t, err)

	for _, rung := range Ladder() {
		if !rung.UseEffectiveAddress {
			continue
		}
		id := resolver.Identity(rung.SignatureType)
		assert.NotEqual(t, id.DerivedAddress, id.AuthAddress(true), "rung %s", rung.Label)
	}

	// Funder equal to the signer collapses the split: every rung then
	// authenticates as the derived address.
	same, err := NewResolver(IdentityInputs{
		PrivateKey:    testPrivKey,
		FunderAddress: testSigner,
	}, testLogger())
	require.NoError(t, err)
	for _, rung := range Ladder() {
		id := same.Identity(rung.SignatureType)
		assert.Equal(t, id.DerivedAddress, id.AuthAddress(rung.UseEffectiveAddress), "rung %s", rung.Label)
	}
}

// --- RunLadder ---

func TestRunLadder_StopsAtFirstSuccess(t *testing.T) {
	// Only the third rung (Safe + effective address) verifies: the run must
	// produce exactly three results and never touch the remaining rungs.
	gw := &fakeGateway{
		probeFn: func(creds domain.Credentials, id domain.Identity, useEffective bool, opts domain.SigningOptions) (domain.ProbeOutcome, error) {
			if id.SignatureType == domain.SigTypeSafe && useEffective {
				return domain.ProbeOutcome{HTTPStatus: 200}, nil
			}
			return domain.ProbeOutcome{HTTPStatus: 401, Message: "Unauthorized"}, nil
		},
	}
	neg, _, _ := newTestNegotiator(t, gw, domain.Credentials{})

	results := neg.RunLadder(context.Background())

	require.Len(t, results, 3)
	assert.False(t, results[0].Success)
	assert.False(t, results[1].Success)
	assert.True(t, results[2].Success)
	assert.Equal(t, domain.SigTypeSafe, results[2].SignatureType)
	assert.True(t, results[2].UsedEffectiveAddress)
	assert.Equal(t, domain.CredSourceDerived, results[2].Source)

	assert.Equal(t, 401, results[0].StatusCode)
	assert.Equal(t, "verify", results[0].Stage)
}

func TestRunLadder_TransientDeriveRetriedOnce(t *testing.T) {
	deriveAttempts := 0
	gw := &fakeGateway{
		deriveFn: func(id domain.Identity, useEffective bool) (domain.Credentials, domain.ProbeOutcome, error) {
			deriveAttempts++
			if deriveAttempts == 1 {
				return domain.Credentials{}, domain.ProbeOutcome{}, errors.New("dial tcp: connection refused")
			}
			return testCreds("derived"), domain.ProbeOutcome{HTTPStatus: 200}, nil
		},
	}
	neg, _, _ := newTestNegotiator(t, gw, domain.Credentials{})

	results := neg.RunLadder(context.Background())

	require.Len(t, results, 1)
	assert.True(t, results[0].Success)
	assert.Equal(t, 2, gw.deriveCalls)
}

func TestRunLadder_PermanentTransportErrorNotRetried(t *testing.T) {
	gw := &fakeGateway{
		probeFn: func(creds domain.Credentials, id domain.Identity, useEffective bool, opts domain.SigningOptions) (domain.ProbeOutcome, error) {
			return domain.ProbeOutcome{}, errors.New("x509: certificate signed by unknown authority")
		},
	}
	neg, _, _ := newTestNegotiator(t, gw, domain.Credentials{})

	results := neg.RunLadder(context.Background())

	require.Len(t, results, 5)
	// One probe per rung: not transient, so no in-place retries.
	assert.Equal(t, 5, gw.probeCalls)
}

// --- Authenticate ---

func TestAuthenticate_InstallsWinner(t *testing.T) {
	gw := &fakeGateway{
		probeFn: func(creds domain.Credentials, id domain.Identity, useEffective bool, opts domain.SigningOptions) (domain.ProbeOutcome, error) {
			if id.SignatureType == domain.SigTypeSafe && useEffective {
				return domain.ProbeOutcome{HTTPStatus: 200}, nil
			}
			return domain.ProbeOutcome{HTTPStatus: 401, Message: "Unauthorized"}, nil
		},
	}
	neg, authCtx, _ := newTestNegotiator(t, gw, domain.Credentials{})

	out, err := neg.Authenticate(context.Background())
	require.NoError(t, err)

	assert.True(t, out.Success)
	assert.Equal(t, domain.SigTypeSafe, out.Identity.SignatureType)
	assert.Equal(t, testFunder, out.Identity.EffectiveAddress)
	assert.True(t, out.UsedEffective)
	assert.Equal(t, domain.CredSourceDerived, out.Source)
	assert.Len(t, out.Attempts, 3)

	// The winning combination is installed in the signing context.
	assert.True(t, authCtx.Negotiated())
	sigType, useEffective := authCtx.AuthMode()
	assert.Equal(t, domain.SigTypeSafe, sigType)
	assert.True(t, useEffective)
	creds, ok := authCtx.Creds()
	require.True(t, ok)
	assert.Equal(t, out.Credentials, creds)
}

func TestAuthenticate_ExplicitCredsFirst(t *testing.T) {
	user := testCreds("user")
	gw := &fakeGateway{}
	neg, authCtx, _ := newTestNegotiator(t, gw, user)

	out, err := neg.Authenticate(context.Background())
	require.NoError(t, err)

	require.Len(t, out.Attempts, 1)
	assert.Equal(t, domain.CredSourceExplicit, out.Source)
	assert.Equal(t, user, out.Credentials)
	assert.Equal(t, 0, gw.deriveCalls, "must not derive when explicit creds verify")

	src := authCtx.Source()
	assert.Equal(t, domain.CredSourceExplicit, src)
}

func TestAuthenticate_DetectsExplicitSecretMode(t *testing.T) {
	// "AAAABBBB" looks like std base64; the explicit attempt must sign with
	// that mode, record it in the result, and install it on success.
	user := domain.Credentials{Key: "k", Secret: "AAAABBBB", Passphrase: "p"}
	gw := &fakeGateway{}
	neg, authCtx, _ := newTestNegotiator(t, gw, user)

	out, err := neg.Authenticate(context.Background())
	require.NoError(t, err)

	assert.Equal(t, domain.SecretModeBase64, out.Options.SecretMode)
	assert.Equal(t, domain.SecretModeBase64, authCtx.Options().SecretMode)
}

func TestAuthenticate_ExplicitRejectedFallsToLadder(t *testing.T) {
	user := testCreds("user")
	gw := &fakeGateway{
		probeFn: func(creds domain.Credentials, id domain.Identity, useEffective bool, opts domain.SigningOptions) (domain.ProbeOutcome, error) {
			if creds == user {
				return domain.ProbeOutcome{HTTPStatus: 401, Message: "Invalid api key"}, nil
			}
			return domain.ProbeOutcome{HTTPStatus: 200}, nil
		},
	}
	neg, _, _ := newTestNegotiator(t, gw, user)

	out, err := neg.Authenticate(context.Background())
	require.NoError(t, err)

	// Explicit attempt plus the first (winning) rung.
	require.Len(t, out.Attempts, 2)
	assert.False(t, out.Attempts[0].Success)
	assert.Equal(t, domain.CredSourceExplicit, out.Attempts[0].Source)
	assert.True(t, out.Attempts[1].Success)
	assert.Equal(t, domain.CredSourceDerived, out.Source)
}

func TestAuthenticate_Exhausted(t *testing.T) {
	gw := &fakeGateway{
		probeFn: func(creds domain.Credentials, id domain.Identity, useEffective bool, opts domain.SigningOptions) (domain.ProbeOutcome, error) {
			return domain.ProbeOutcome{HTTPStatus: 401, Message: "Invalid api key"}, nil
		},
	}
	neg, authCtx, _ := newTestNegotiator(t, gw, domain.Credentials{})

	out, err := neg.Authenticate(context.Background())
	require.ErrorIs(t, err, ErrAllRungsFailed)

	assert.False(t, out.Success)
	assert.Len(t, out.Attempts, 5)
	assert.Equal(t, domain.CauseDeriveFailed, out.Diagnosis.Cause)
	assert.False(t, authCtx.Negotiated())
	_, haveCreds := authCtx.Creds()
	assert.False(t, haveCreds)
}

func TestAuthenticate_WalletNotActivated(t *testing.T) {
	// Derivation refused on every rung with the activation message: the
	// diagnosis must point at the wallet, with high confidence.
	gw := &fakeGateway{
		deriveFn: func(id domain.Identity, useEffective bool) (domain.Credentials, domain.ProbeOutcome, error) {
			return domain.Credentials{}, domain.ProbeOutcome{
				HTTPStatus: 400,
				Message:    "Could not create api key",
			}, nil
		},
	}
	neg, _, _ := newTestNegotiator(t, gw, domain.Credentials{})

	out, err := neg.Authenticate(context.Background())
	require.ErrorIs(t, err, ErrAllRungsFailed)

	assert.Equal(t, domain.CauseWalletNotActivated, out.Diagnosis.Cause)
	assert.Equal(t, domain.ConfidenceHigh, out.Diagnosis.Confidence)
	assert.NotEmpty(t, out.Diagnosis.Remediation)
	assert.Equal(t, 0, gw.probeCalls, "nothing to verify when derivation fails")

	for _, res := range out.Attempts {
		assert.Equal(t, "derive", res.Stage)
	}
}
