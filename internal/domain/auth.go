package domain

import (
	"fmt"
	"strings"
)

// SignatureType classifies how trades are attributed on the CLOB.
// The wire values (0/1/2) are fixed by the exchange API.
type SignatureType int

const (
	SigTypeEOA   SignatureType = 0 // self-custodied wallet, key signs and holds funds
	SigTypeProxy SignatureType = 1 // legacy custodial proxy wallet (email/magic-link accounts)
	SigTypeSafe  SignatureType = 2 // Gnosis Safe smart-contract wallet (browser wallets)
)

// String returns the exchange-facing name of the signature type.
func (s SignatureType) String() string {
	switch s {
	case SigTypeProxy:
		return "POLY_PROXY"
	case SigTypeSafe:
		return "POLY_GNOSIS_SAFE"
	default:
		return "EOA"
	}
}

// ParseSignatureType accepts both the exchange names and the numeric wire values.
func ParseSignatureType(s string) (SignatureType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "EOA", "0":
		return SigTypeEOA, nil
	case "POLY_PROXY", "PROXY", "1":
		return SigTypeProxy, nil
	case "POLY_GNOSIS_SAFE", "GNOSIS_SAFE", "SAFE", "2":
		return SigTypeSafe, nil
	}
	return SigTypeEOA, fmt.Errorf("domain.ParseSignatureType: unknown signature type %q", s)
}

// SecretMode selects how the API secret string is decoded into key bytes.
type SecretMode string

const (
	SecretModeRaw       SecretMode = "raw"
	SecretModeBase64    SecretMode = "base64"
	SecretModeBase64URL SecretMode = "base64url"
)

// ParseSecretMode validates an operator-supplied secret-decoding name.
func ParseSecretMode(s string) (SecretMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "raw":
		return SecretModeRaw, nil
	case "base64":
		return SecretModeBase64, nil
	case "base64url":
		return SecretModeBase64URL, nil
	}
	return "", fmt.Errorf("domain.ParseSecretMode: unknown secret mode %q", s)
}

// SigEncoding selects how the HMAC digest is encoded on the wire.
type SigEncoding string

const (
	SigEncodingBase64    SigEncoding = "base64"
	SigEncodingBase64URL SigEncoding = "base64url"
)

// ParseSigEncoding validates an operator-supplied digest-encoding name.
func ParseSigEncoding(s string) (SigEncoding, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "base64":
		return SigEncodingBase64, nil
	case "base64url":
		return SigEncodingBase64URL, nil
	}
	return "", fmt.Errorf("domain.ParseSigEncoding: unknown signature encoding %q", s)
}

// CredSource says where the API credentials came from.
type CredSource string

const (
	CredSourceExplicit CredSource = "explicit" // operator-supplied via config/env
	CredSourceDerived  CredSource = "derived"  // obtained from the exchange via L1 signature
)

// SigningOptions is the pair of encodings actually used to sign a request.
// Every result that involved signing carries the options used, never the
// heuristic guess.
type SigningOptions struct {
	SecretMode  SecretMode
	SigEncoding SigEncoding
}

// DefaultSigningOptions is what the exchange documents and what works for
// the vast majority of accounts.
func DefaultSigningOptions() SigningOptions {
	return SigningOptions{
		SecretMode:  SecretModeBase64URL,
		SigEncoding: SigEncodingBase64URL,
	}
}

// Credentials is the exchange-issued API triple. Never mutated, only replaced.
type Credentials struct {
	Key        string
	Secret     string
	Passphrase string
}

// IsZero reports whether no credentials are set.
func (c Credentials) IsZero() bool {
	return c.Key == "" && c.Secret == "" && c.Passphrase == ""
}

// Identity is the resolved signer identity, computed once per process.
type Identity struct {
	// DerivedAddress is recovered from the private key.
	DerivedAddress string
	// EffectiveAddress is the address trades are attributed to. Equals
	// DerivedAddress for EOA; the funder for Proxy/Safe when one is set.
	EffectiveAddress string
	SignatureType    SignatureType
	// FunderAddress is the on-chain wallet holding funds, when it differs
	// from the signer.
	FunderAddress string
}

// AuthAddress returns the address to put in the auth headers for this
// identity: the effective address when useEffective is set, else the signer.
func (id Identity) AuthAddress(useEffective bool) string {
	if useEffective {
		return id.EffectiveAddress
	}
	return id.DerivedAddress
}

// FallbackAttempt is one rung of the fixed authentication ladder.
type FallbackAttempt struct {
	SignatureType SignatureType
	// UseEffectiveAddress picks which address goes in the L1/L2 auth
	// headers: the effective (funder) address or the signer address.
	UseEffectiveAddress bool
	Label               string
}

// AttemptResult records the outcome of one ladder rung or matrix cell.
// Never mutated after creation.
type AttemptResult struct {
	Label                string
	SignatureType        SignatureType
	UsedEffectiveAddress bool
	Source               CredSource
	Options              SigningOptions
	Success              bool
	Credentials          Credentials
	StatusCode           int
	Error                string
	// Stage names the step that produced the outcome: "derive" when
	// credential derivation itself failed, "verify" for the probe.
	Stage string
}

// Outcome returns a short table-friendly result string.
func (r AttemptResult) Outcome() string {
	if r.Success {
		return "OK"
	}
	if r.Error != "" {
		return "FAIL"
	}
	return fmt.Sprintf("HTTP %d", r.StatusCode)
}

// ProbeOutcome is the exchange's answer to a signed (or L1) call.
// A transport-level failure is reported as an error alongside, not here.
type ProbeOutcome struct {
	HTTPStatus int
	// Message is the error text extracted from the response body, if any.
	Message string
	// SignedPath is the exact path string that went into the HMAC message.
	SignedPath string
	// QuerySent reports whether the request URL carried query parameters.
	QuerySent bool
}
