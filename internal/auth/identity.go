package auth

// identity.go — signer identity resolution.
//
// The private key determines the signer address; the signature type and an
// optional funder address determine which address trades are attributed to.
// Identity is resolved once at startup and is immutable afterwards — only
// the operator override can change the effective address, and that is a
// deliberate, logged action.

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/alejandrodnm/polybridge/internal/domain"
)

var (
	// ErrInvalidKeyFormat means the private key hex cannot be parsed. Fatal.
	ErrInvalidKeyFormat = errors.New("auth: invalid private key format")
	// ErrAddressMismatch means the configured public address does not match
	// the key. Fatal unless the force-mismatch escape hatch is set.
	ErrAddressMismatch = errors.New("auth: configured address does not match derived address")
)

// DeriveAddress recovers the checksummed public address from a private key
// hex string (with or without 0x prefix). Pure and deterministic.
func DeriveAddress(privateKeyHex string) (string, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidKeyFormat, err)
	}
	return crypto.PubkeyToAddress(key.PublicKey).Hex(), nil
}

// ResolveEffectiveAddress computes the address trades are attributed to.
// The operator override wins unconditionally. Otherwise Proxy/Safe accounts
// trade through their funder when one is set; everything else falls back to
// the derived signer address.
func ResolveEffectiveAddress(derived string, sigType domain.SignatureType, funder, operatorOverride string) string {
	if operatorOverride != "" {
		return operatorOverride
	}
	if (sigType == domain.SigTypeProxy || sigType == domain.SigTypeSafe) && funder != "" {
		return funder
	}
	return derived
}

// CheckConfiguredKeyMatches compares the operator-configured public address
// against the derived one, case-insensitively. An empty configured address
// always matches.
func CheckConfiguredKeyMatches(configured, derived string) bool {
	if configured == "" {
		return true
	}
	return strings.EqualFold(configured, derived)
}

// IdentityInputs is everything the resolver needs from config.
type IdentityInputs struct {
	PrivateKey        string
	SignatureType     domain.SignatureType
	FunderAddress     string
	OverrideAddress   string
	ConfiguredAddress string
	ForceMismatch     bool
}

// Resolver holds the resolved signer identity and derives per-signature-type
// variants for ladder rungs and matrix cells.
type Resolver struct {
	derived        string
	funder         string
	override       string
	defaultSigType domain.SignatureType
}

// NewResolver derives the signer address and runs the startup sanity checks.
// A configured-address mismatch is fatal unless ForceMismatch is set, in
// which case it is logged and execution continues with the derived address.
func NewResolver(in IdentityInputs, log *slog.Logger) (*Resolver, error) {
	derived, err := DeriveAddress(in.PrivateKey)
	if err != nil {
		return nil, err
	}

	if !CheckConfiguredKeyMatches(in.ConfiguredAddress, derived) {
		if !in.ForceMismatch {
			return nil, fmt.Errorf("%w: configured=%s derived=%s",
				ErrAddressMismatch, in.ConfiguredAddress, derived)
		}
		log.Warn("identity: address mismatch forced by operator",
			"configured", in.ConfiguredAddress,
			"derived", derived,
		)
	}

	if in.OverrideAddress != "" {
		log.Warn("identity: operator override address in effect",
			"override", in.OverrideAddress,
			"derived", derived,
		)
	}

	return &Resolver{
		derived:        derived,
		funder:         in.FunderAddress,
		override:       in.OverrideAddress,
		defaultSigType: in.SignatureType,
	}, nil
}

// Identity returns the identity under the given signature type. The
// effective address is re-resolved because it depends on the type.
func (r *Resolver) Identity(sigType domain.SignatureType) domain.Identity {
	return domain.Identity{
		DerivedAddress:   r.derived,
		EffectiveAddress: ResolveEffectiveAddress(r.derived, sigType, r.funder, r.override),
		SignatureType:    sigType,
		FunderAddress:    r.funder,
	}
}

// Base returns the identity under the configured default signature type.
func (r *Resolver) Base() domain.Identity {
	return r.Identity(r.defaultSigType)
}

// DerivedAddress returns the signer address recovered from the key.
func (r *Resolver) DerivedAddress() string {
	return r.derived
}
