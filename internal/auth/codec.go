package auth

// codec.go — secret decoding and request signing.
//
// The exchange hands out API secrets as base64url strings, but operator
// configs have been seen carrying them raw or std-base64 re-encoded. The
// codec decodes under an explicit mode and signs the canonical message
//   timestamp ∥ METHOD ∥ path ∥ body
// with HMAC-SHA256. A wrong mode guess is not detectable locally — the
// decode is deliberately lenient and the server answers 401 downstream.

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"strings"

	"github.com/alejandrodnm/polybridge/internal/domain"
)

// DecodeSecret turns the secret string into HMAC key bytes under the given
// mode. Decoding is best-effort: malformed input yields whatever bytes the
// decoder produced before failing, never an error. The caller finds out
// about a bad guess by signature rejection, not here.
func DecodeSecret(secret string, mode domain.SecretMode) []byte {
	switch mode {
	case domain.SecretModeBase64:
		return lenientBase64(secret)
	case domain.SecretModeBase64URL:
		s := strings.ReplaceAll(secret, "-", "+")
		s = strings.ReplaceAll(s, "_", "/")
		if pad := len(s) % 4; pad != 0 {
			s += strings.Repeat("=", 4-pad)
		}
		return lenientBase64(s)
	default:
		return []byte(secret)
	}
}

// lenientBase64 decodes std base64, keeping whatever bytes were produced
// before the first error.
func lenientBase64(s string) []byte {
	buf := make([]byte, base64.StdEncoding.DecodedLen(len(s)))
	n, _ := base64.StdEncoding.Decode(buf, []byte(s))
	return buf[:n]
}

// EncodeSecret is the inverse of DecodeSecret for well-formed inputs.
func EncodeSecret(key []byte, mode domain.SecretMode) string {
	switch mode {
	case domain.SecretModeBase64:
		return base64.StdEncoding.EncodeToString(key)
	case domain.SecretModeBase64URL:
		s := base64.StdEncoding.EncodeToString(key)
		s = strings.ReplaceAll(s, "+", "-")
		return strings.ReplaceAll(s, "/", "_")
	default:
		return string(key)
	}
}

// DetectSecretMode guesses how a secret string is encoded. The guess is
// advisory only: results always carry the mode actually used, and a
// server-accepted signature overrides whatever this says.
func DetectSecretMode(secret string) domain.SecretMode {
	if secret == "" {
		return domain.SecretModeRaw
	}

	hasURLChars := strings.ContainsAny(secret, "-_")
	if hasURLChars && cleanAlphabet(secret, urlAlphabet) {
		return domain.SecretModeBase64URL
	}

	hasStdChars := strings.ContainsAny(secret, "+/") || strings.HasSuffix(secret, "=")
	if hasStdChars && cleanAlphabet(secret, stdAlphabet) {
		return domain.SecretModeBase64
	}
	if cleanAlphabet(secret, stdAlphabet) && len(secret)%4 == 0 {
		return domain.SecretModeBase64
	}

	return domain.SecretModeRaw
}

const (
	stdAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+/="
	urlAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_="
)

func cleanAlphabet(s, alphabet string) bool {
	for _, r := range s {
		if !strings.ContainsRune(alphabet, r) {
			return false
		}
	}
	return true
}

// BuildSignature computes the HMAC-SHA256 signature of the canonical request
// message. The method string goes into the message verbatim — callers pass
// the canonical uppercase verb. body == nil means no body at all (the
// message simply ends at the path); an empty non-nil body still contributes
// nothing but is kept distinct for clarity at call sites.
//
// The digest is always std-base64 first; base64url output replaces +/ with
// -_ and keeps the padding, matching what the exchange verifies.
func BuildSignature(secret string, mode domain.SecretMode, timestamp, method, path string, body []byte, enc domain.SigEncoding) string {
	msg := timestamp + method + path
	if body != nil {
		msg += string(body)
	}

	mac := hmac.New(sha256.New, DecodeSecret(secret, mode))
	mac.Write([]byte(msg))
	sig := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	if enc == domain.SigEncodingBase64URL {
		sig = strings.ReplaceAll(sig, "+", "-")
		sig = strings.ReplaceAll(sig, "/", "_")
	}
	return sig
}
