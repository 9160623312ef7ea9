package polymarket

// auth.go — Polymarket CLOB authenticated client.
//
// Implements two-level authentication:
//   L1: EIP-712 signature with wallet private key → derive API credentials
//   L2: HMAC-SHA256 signing of every authenticated request
//
// The ports.AuthGateway methods (CheckConnectivity, DeriveCreds,
// ProbeBalanceAllowance) issue exactly one HTTP attempt each: the fallback
// ladder and the preflight verifier own all retry and backoff policy. The
// doL2 helper keeps retries because it serves trading calls under an
// already-verified signing context.

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/polymarket/go-order-utils/pkg/builder"
	gomodel "github.com/polymarket/go-order-utils/pkg/model"

	"github.com/alejandrodnm/polybridge/internal/auth"
	"github.com/alejandrodnm/polybridge/internal/domain"
)

const (
	polygonChainID = int64(137)

	// CLOB EIP-712 auth domain
	clobDomainName    = "ClobAuthDomain"
	clobDomainVersion = "1"
	// Message signed for deriving API keys
	clobAuthMessage = "This message attests that I control the given wallet"

	// Taker address — zero address = public order
	zeroAddress = "0x0000000000000000000000000000000000000000"

	deriveAPIKeyPath = "/auth/derive-api-key"
	createAPIKeyPath = "/auth/api-key"
)

// balanceAllowancePath builds the probe path. The query string is part of
// the returned path on purpose: the HMAC must be computed over path+query,
// and building them together makes signing the wrong thing impossible.
func balanceAllowancePath(sigType domain.SignatureType) string {
	return "/balance-allowance?asset_type=COLLATERAL&signature_type=" + strconv.Itoa(int(sigType))
}

// AuthClient wraps the base Client with L1/L2 auth capabilities. The signing
// context decides which address, signature type, and encodings every
// authenticated call uses — nothing here guesses.
type AuthClient struct {
	*Client
	privateKey   *ecdsa.PrivateKey
	derived      common.Address
	authCtx      *auth.Context
	resolver     *auth.Resolver
	orderBuilder builder.ExchangeOrderBuilder
	log          *slog.Logger
}

// NewAuthClient creates an authenticated trading client.
// privateKeyHex is the Polygon private key, with or without 0x prefix.
func NewAuthClient(clobBase, gammaBase, privateKeyHex string, authCtx *auth.Context, resolver *auth.Resolver, log *slog.Logger) (*AuthClient, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("auth: invalid private key: %w", err)
	}

	ob := builder.NewExchangeOrderBuilderImpl(big.NewInt(polygonChainID), nil)

	return &AuthClient{
		Client:       NewClient(clobBase, gammaBase),
		privateKey:   key,
		derived:      crypto.PubkeyToAddress(key.PublicKey),
		authCtx:      authCtx,
		resolver:     resolver,
		orderBuilder: ob,
		log:          log,
	}, nil
}

// Address returns the signer wallet address.
func (ac *AuthClient) Address() string {
	return ac.derived.Hex()
}

// CheckConnectivity hits the unauthenticated /time endpoint once.
func (ac *AuthClient) CheckConnectivity(ctx context.Context) error {
	if _, err := ac.ServerTime(ctx); err != nil {
		return fmt.Errorf("auth: connectivity: %w", err)
	}
	return nil
}

// DeriveCreds performs L1-signed credential derivation for the given
// identity. The exchange answers 400 on derive when the wallet has no key
// yet; creation is then attempted with a fresh signature. One logical
// attempt, no retries.
func (ac *AuthClient) DeriveCreds(ctx context.Context, id domain.Identity, useEffective bool) (domain.Credentials, domain.ProbeOutcome, error) {
	addr := common.HexToAddress(id.AuthAddress(useEffective))

	status, body, err := ac.l1Request(ctx, http.MethodGet, deriveAPIKeyPath, addr)
	if err != nil {
		return domain.Credentials{}, domain.ProbeOutcome{}, err
	}

	if status == http.StatusBadRequest {
		// No key to derive — try to create one.
		ac.log.Debug("auth: derive returned 400, creating api key",
			"address", addr.Hex(), "signature_type", id.SignatureType.String())
		status, body, err = ac.l1Request(ctx, http.MethodPost, createAPIKeyPath, addr)
		if err != nil {
			return domain.Credentials{}, domain.ProbeOutcome{}, err
		}
	}

	outcome := domain.ProbeOutcome{HTTPStatus: status}
	if status != http.StatusOK && status != http.StatusCreated {
		outcome.Message = extractAPIError(body)
		return domain.Credentials{}, outcome, nil
	}

	var creds apiCredsResponse
	if err := json.Unmarshal(body, &creds); err != nil {
		return domain.Credentials{}, outcome, fmt.Errorf("auth: parse creds: %w", err)
	}
	return domain.Credentials{
		Key:        creds.APIKey,
		Secret:     creds.Secret,
		Passphrase: creds.Passphrase,
	}, outcome, nil
}

// ProbeBalanceAllowance issues the signed verification GET. It never fails
// on an HTTP rejection — the status and server message come back in the
// outcome for the caller to classify.
func (ac *AuthClient) ProbeBalanceAllowance(ctx context.Context, creds domain.Credentials, id domain.Identity, useEffective bool, opts domain.SigningOptions) (domain.ProbeOutcome, error) {
	signedPath := balanceAllowancePath(id.SignatureType)
	outcome := domain.ProbeOutcome{
		SignedPath: signedPath,
		QuerySent:  true,
	}

	if err := ac.clobLimiter.Wait(ctx); err != nil {
		return outcome, fmt.Errorf("rate limiter: %w", err)
	}

	headers := l2Headers(creds, id.AuthAddress(useEffective), http.MethodGet, signedPath, nil, opts)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ac.clobBase+signedPath, nil)
	if err != nil {
		return outcome, fmt.Errorf("auth: probe request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := ac.http.Do(req)
	if err != nil {
		return outcome, fmt.Errorf("auth: probe: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	outcome.HTTPStatus = resp.StatusCode
	if resp.StatusCode != http.StatusOK {
		outcome.Message = extractAPIError(body)
	}
	return outcome, nil
}

// l1Request issues one L1-authenticated call: EIP-712 headers, no body.
// The claimed address goes both in POLY_ADDRESS and inside the signed
// struct; the signature always comes from the private key.
func (ac *AuthClient) l1Request(ctx context.Context, method, path string, addr common.Address) (int, []byte, error) {
	if err := ac.clobLimiter.Wait(ctx); err != nil {
		return 0, nil, fmt.Errorf("rate limiter: %w", err)
	}

	ts := strconv.FormatInt(time.Now().Unix(), 10)
	sig, err := ac.signClobAuth(addr, ts, "0")
	if err != nil {
		return 0, nil, fmt.Errorf("auth: sign l1: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, ac.clobBase+path, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("auth: l1 request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("POLY_ADDRESS", addr.Hex())
	req.Header.Set("POLY_SIGNATURE", sig)
	req.Header.Set("POLY_TIMESTAMP", ts)
	req.Header.Set("POLY_NONCE", "0")

	resp, err := ac.http.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("auth: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, body, nil
}

// EIP-712 type hashes (computed once).
var (
	eip712DomainTypeHash = crypto.Keccak256Hash([]byte(
		"EIP712Domain(string name,string version,uint256 chainId)",
	))
	clobAuthTypeHash = crypto.Keccak256Hash([]byte(
		"ClobAuth(address address,string timestamp,uint256 nonce,string message)",
	))
)

// clobAuthDomainSeparator computes the EIP-712 domain separator for ClobAuthDomain.
func clobAuthDomainSeparator() common.Hash {
	var buf []byte
	buf = append(buf, eip712DomainTypeHash.Bytes()...)
	buf = append(buf, crypto.Keccak256Hash([]byte(clobDomainName)).Bytes()...)
	buf = append(buf, crypto.Keccak256Hash([]byte(clobDomainVersion)).Bytes()...)
	buf = append(buf, common.LeftPadBytes(big.NewInt(polygonChainID).Bytes(), 32)...)
	return crypto.Keccak256Hash(buf)
}

// signClobAuth signs the ClobAuth EIP-712 typed data for L1 auth. addr is
// the address being claimed, which for proxy/Safe accounts may differ from
// the signing key's own address.
func (ac *AuthClient) signClobAuth(addr common.Address, timestamp, nonce string) (string, error) {
	nonceInt, ok := new(big.Int).SetString(nonce, 10)
	if !ok {
		return "", fmt.Errorf("invalid nonce: %s", nonce)
	}

	var structBuf []byte
	structBuf = append(structBuf, clobAuthTypeHash.Bytes()...)
	structBuf = append(structBuf, common.LeftPadBytes(addr.Bytes(), 32)...)
	structBuf = append(structBuf, crypto.Keccak256Hash([]byte(timestamp)).Bytes()...)
	structBuf = append(structBuf, common.LeftPadBytes(nonceInt.Bytes(), 32)...)
	structBuf = append(structBuf, crypto.Keccak256Hash([]byte(clobAuthMessage)).Bytes()...)
	structHash := crypto.Keccak256Hash(structBuf)

	var rawBuf []byte
	rawBuf = append(rawBuf, 0x19, 0x01)
	rawBuf = append(rawBuf, clobAuthDomainSeparator().Bytes()...)
	rawBuf = append(rawBuf, structHash.Bytes()...)
	msgHash := crypto.Keccak256Hash(rawBuf)

	sig, err := crypto.Sign(msgHash.Bytes(), ac.privateKey)
	if err != nil {
		return "", err
	}
	sig[64] += 27
	return "0x" + fmt.Sprintf("%x", sig), nil
}

// l2Headers builds the authenticated headers for an L2 call. All signing
// parameters are explicit; nothing is read from globals or guessed.
func l2Headers(creds domain.Credentials, address, method, path string, body []byte, opts domain.SigningOptions) map[string]string {
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	sig := auth.BuildSignature(creds.Secret, opts.SecretMode, ts, method, path, body, opts.SigEncoding)

	return map[string]string{
		"POLY_ADDRESS":    address,
		"POLY_SIGNATURE":  sig,
		"POLY_TIMESTAMP":  ts,
		"POLY_API_KEY":    creds.Key,
		"POLY_PASSPHRASE": creds.Passphrase,
	}
}

// doL2 executes an authenticated L2 request under the installed signing
// context, with rate limiting and retries. HMAC headers are regenerated on
// every attempt so the timestamp stays fresh. path must include the query
// string when there is one: it is signed verbatim.
func (ac *AuthClient) doL2(ctx context.Context, method, path string, reqBody, out any) error {
	creds, ok := ac.authCtx.Creds()
	if !ok {
		return fmt.Errorf("clob: %w", auth.ErrNoCredentials)
	}
	sigType, useEffective := ac.authCtx.AuthMode()
	address := ac.resolver.Identity(sigType).AuthAddress(useEffective)
	opts := ac.authCtx.Options()

	var bodyBytes []byte
	if reqBody != nil {
		b, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("marshal: %w", err)
		}
		bodyBytes = b
	}

	fullURL := ac.clobBase + path

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := ac.clobLimiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}

		headers := l2Headers(creds, address, method, path, bodyBytes, opts)

		var bodyReader io.Reader
		if bodyBytes != nil {
			bodyReader = strings.NewReader(string(bodyBytes))
		}

		req, err := http.NewRequestWithContext(ctx, method, fullURL, bodyReader)
		if err != nil {
			return fmt.Errorf("new request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := ac.http.Do(req)
		if err != nil {
			if attempt == maxRetries {
				return fmt.Errorf("request failed after %d retries: %w", maxRetries, err)
			}
			ac.sleep(ctx, attempt, 0)
			continue
		}

		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests {
			ac.sleep(ctx, attempt, retryAfterHint(resp))
			continue
		}
		if resp.StatusCode >= 500 {
			if attempt == maxRetries {
				return fmt.Errorf("server error %d: %s", resp.StatusCode, respBody)
			}
			ac.sleep(ctx, attempt, 0)
			continue
		}
		if resp.StatusCode >= 400 {
			return fmt.Errorf("client error %d: %s", resp.StatusCode, extractAPIError(respBody))
		}

		if out != nil {
			if err := json.Unmarshal(respBody, out); err != nil {
				return fmt.Errorf("decode response: %w", err)
			}
		}
		return nil
	}
	return fmt.Errorf("exhausted %d retries", maxRetries)
}

// extractAPIError pulls the server's error text out of a 4xx body. The CLOB
// uses "error" on some endpoints and "message" on others; anything
// unparseable comes back raw and truncated.
func extractAPIError(body []byte) string {
	var apiErr apiErrorBody
	if err := json.Unmarshal(body, &apiErr); err == nil {
		if apiErr.Error != "" {
			return apiErr.Error
		}
		if apiErr.Message != "" {
			return apiErr.Message
		}
	}
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}

// buildSignedOrder creates an EIP-712 signed order for the given parameters.
// The maker is the effective (funder) address from the signing context, the
// signer is always the key's own address — for proxy/Safe accounts the two
// differ and mixing them up is rejected server-side.
//
// Uses integer arithmetic to avoid floating-point precision errors that the
// CLOB API rejects. The API verifies: makerAmount == price * takerAmount exactly.
func (ac *AuthClient) buildSignedOrder(req domain.PlaceOrderRequest) (*gomodel.SignedOrder, error) {
	sigType, _ := ac.authCtx.AuthMode()
	id := ac.resolver.Identity(sigType)

	pricePrecision := detectPricePrecision(req.Price)
	priceInt := int64(math.Round(req.Price * float64(pricePrecision)))
	amountFactor := int64(1_000_000) / (100 * pricePrecision)

	var makerAmount, takerAmount int64
	switch req.Side {
	case "BUY":
		// Size is USDC to spend; shares bought at the limit price.
		sharesCents := int64(math.Floor(req.Size / req.Price * 100))
		makerAmount = sharesCents * priceInt * amountFactor
		takerAmount = sharesCents * 10000
	case "SELL":
		// Size is shares to sell; USDC received at the limit price.
		sharesCents := int64(math.Round(req.Size * 100))
		makerAmount = sharesCents * 10000
		takerAmount = sharesCents * priceInt * amountFactor
	default:
		return nil, fmt.Errorf("invalid side: %q", req.Side)
	}

	if makerAmount <= 0 || takerAmount <= 0 {
		return nil, fmt.Errorf("invalid amounts: maker=%d taker=%d (price=%.4f size=%.4f)", makerAmount, takerAmount, req.Price, req.Size)
	}

	var verifyingContract gomodel.VerifyingContract
	if req.NegRisk {
		verifyingContract = gomodel.NegRiskCTFExchange
	} else {
		verifyingContract = gomodel.CTFExchange
	}

	side := gomodel.BUY
	if req.Side == "SELL" {
		side = gomodel.SELL
	}

	orderData := &gomodel.OrderData{
		Maker:         id.EffectiveAddress,
		Taker:         zeroAddress,
		TokenId:       req.TokenID,
		MakerAmount:   strconv.FormatInt(makerAmount, 10),
		TakerAmount:   strconv.FormatInt(takerAmount, 10),
		FeeRateBps:    "0",
		Nonce:         "0",
		Signer:        ac.derived.Hex(),
		Expiration:    "0",
		Side:          side,
		SignatureType: gomodelSigType(sigType),
	}

	signed, err := ac.orderBuilder.BuildSignedOrder(ac.privateKey, orderData, verifyingContract)
	if err != nil {
		return nil, fmt.Errorf("build signed order: %w", err)
	}
	return signed, nil
}

// gomodelSigType maps the domain signature type onto the order-utils enum.
func gomodelSigType(t domain.SignatureType) gomodel.SignatureType {
	switch t {
	case domain.SigTypeProxy:
		return gomodel.POLY_PROXY
	case domain.SigTypeSafe:
		return gomodel.POLY_GNOSIS_SAFE
	default:
		return gomodel.EOA
	}
}

// detectPricePrecision returns the multiplier matching the market's tick size.
// e.g. price=0.60 → 100 (tick 0.01), price=0.673 → 1000 (tick 0.001).
func detectPricePrecision(price float64) int64 {
	for _, prec := range []int64{100, 1000, 10000} {
		rounded := math.Round(price * float64(prec))
		if math.Abs(rounded/float64(prec)-price) < 1e-10 {
			return prec
		}
	}
	return 100
}
