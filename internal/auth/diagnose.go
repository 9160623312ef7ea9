package auth

// diagnose.go — failure root-cause classification.
//
// A fixed decision tree maps what happened (whose credentials, which stage,
// what status and message) to a closed cause taxonomy. More specific and
// actionable diagnoses are checked first. Remediation steps are data for
// the operator, keyed by cause — tests match on the cause code, never on
// message text.

import (
	"strings"

	"github.com/alejandrodnm/polybridge/internal/domain"
)

// DiagnosisInput is the failure context collected by the ladder and the
// preflight verifier.
type DiagnosisInput struct {
	UserProvidedKeys bool // operator supplied explicit credentials
	UserKeysFailed   bool // those explicit credentials were tried and rejected
	DeriveEnabled    bool // credential derivation was attempted or available
	DeriveFailed     bool // the derivation call itself failed
	DeriveError      string
	VerifyFailed     bool // credentials were obtained but the signed probe failed
	VerifyStatus     int
	VerifyMessage    string
	PreviouslyWorked bool // verified successfully earlier in the process lifetime
}

var networkErrorPatterns = []string{
	"connection refused",
	"connection reset",
	"timeout",
	"timed out",
	"no such host",
	"network is unreachable",
	"eof",
}

// Diagnose maps the failure context to a cause with confidence and
// remediation steps. Pure function; never errors — the fallback is
// CauseUnknown with low confidence, which must not block anything.
func Diagnose(in DiagnosisInput) domain.Diagnosis {
	verifyMsg := strings.ToLower(in.VerifyMessage)
	deriveMsg := strings.ToLower(in.DeriveError)

	switch {
	case in.UserProvidedKeys && in.VerifyStatus == 401 &&
		(strings.Contains(verifyMsg, "invalid") || strings.Contains(verifyMsg, "unauthorized")):
		return build(domain.CauseWrongKeyType, domain.ConfidenceHigh,
			"the supplied API credentials were rejected outright")

	case in.DeriveFailed && strings.Contains(deriveMsg, "could not create"):
		return build(domain.CauseWalletNotActivated, domain.ConfidenceHigh,
			"the exchange refuses to issue credentials for this wallet")

	case in.UserProvidedKeys && in.UserKeysFailed && in.DeriveEnabled && (in.DeriveFailed || in.VerifyFailed):
		return build(domain.CauseWrongWalletBinding, domain.ConfidenceMedium,
			"both the supplied and the derived credentials fail for this signer")

	case in.PreviouslyWorked && in.VerifyStatus == 401:
		return build(domain.CauseExpiredCredentials, domain.ConfidenceMedium,
			"credentials that used to verify are now rejected")

	case in.DeriveEnabled && !in.DeriveFailed && in.VerifyFailed:
		return build(domain.CauseDeriveFailed, domain.ConfidenceMedium,
			"derivation returned credentials that do not verify")

	case matchesAny(deriveMsg, networkErrorPatterns) || matchesAny(verifyMsg, networkErrorPatterns):
		return build(domain.CauseNetworkError, domain.ConfidenceMedium,
			"the failure pattern looks like connectivity, not credentials")

	default:
		return build(domain.CauseUnknown, domain.ConfidenceLow,
			"no known failure pattern matched")
	}
}

func matchesAny(msg string, patterns []string) bool {
	if msg == "" {
		return false
	}
	for _, p := range patterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

func build(cause domain.Cause, conf domain.Confidence, summary string) domain.Diagnosis {
	return domain.Diagnosis{
		Cause:       cause,
		Confidence:  conf,
		Summary:     summary,
		Remediation: remediationSteps[cause],
	}
}

// remediationSteps is operator guidance per cause. Ordered: try the first
// step first.
var remediationSteps = map[domain.Cause][]string{
	domain.CauseWrongKeyType: {
		"Check that CLOB_API_KEY/CLOB_SECRET/CLOB_PASS_PHRASE belong to this wallet, not another account.",
		"If the account is a browser wallet, set the signature type to POLY_GNOSIS_SAFE and retry.",
		"Delete the explicit credentials from the environment and let the bridge derive fresh ones.",
	},
	domain.CauseWalletNotActivated: {
		"Log into the exchange UI with this wallet and accept the terms of use.",
		"Enable trading (this deploys the proxy/Safe wallet on-chain) and place one minimal order manually.",
		"Re-run authentication afterwards; derivation should now succeed.",
	},
	domain.CauseWrongWalletBinding: {
		"Verify the funder address: it must be the wallet shown in the exchange UI, not the signing key's address.",
		"Check the signature type matches the account kind (EOA, proxy, or Safe).",
		"Run the matrix probe to search all signing combinations.",
	},
	domain.CauseExpiredCredentials: {
		"Drop the cached credentials and re-derive.",
		"If explicit credentials are configured, regenerate them in the exchange UI.",
	},
	domain.CauseDeriveFailed: {
		"Check the system clock; a skewed timestamp invalidates every signature.",
		"Confirm the signed path matches the requested path, including query parameters.",
		"Run the matrix probe to test alternative secret decodings and signature encodings.",
	},
	domain.CauseNetworkError: {
		"Check connectivity to the exchange endpoints.",
		"If behind a VPN or proxy, confirm the exchange is reachable through it.",
		"Retry; transient network failures back off and recover on their own.",
	},
	domain.CauseUnknown: {
		"Enable debug logging (AUTH_DEBUG=1) and capture a full failure dump.",
		"Run the matrix probe to rule out signing-parameter issues.",
	},
}
