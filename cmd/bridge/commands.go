package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/polybridge/config"
	"github.com/alejandrodnm/polybridge/internal/auth"
	"github.com/alejandrodnm/polybridge/internal/domain"
	"github.com/alejandrodnm/polybridge/internal/ports"
)

// maxLineBytes bounds a single stdin command line.
const maxLineBytes = 1 << 20

// command is one JSON line read from stdin.
type command struct {
	Cmd     string  `json:"cmd"`
	TokenID string  `json:"token_id,omitempty"`
	Side    string  `json:"side,omitempty"`
	Price   float64 `json:"price,omitempty"`
	Size    float64 `json:"size,omitempty"`
	OrderID string  `json:"order_id,omitempty"`
	Limit   int     `json:"limit,omitempty"`
}

type okReply struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

type authReply struct {
	OK            bool   `json:"ok"`
	Address       string `json:"address,omitempty"`
	SignatureType string `json:"signature_type,omitempty"`
	UsedEffective bool   `json:"used_effective,omitempty"`
	Source        string `json:"source,omitempty"`
	Attempts      int    `json:"attempts"`
	Cause         string `json:"cause,omitempty"`
	Error         string `json:"error,omitempty"`
}

type preflightReply struct {
	OK         bool   `json:"ok"`
	Skipped    bool   `json:"skipped,omitempty"`
	Status     string `json:"status,omitempty"`
	Reason     string `json:"reason,omitempty"`
	HTTPStatus int    `json:"http_status,omitempty"`
	BackoffMs  int64  `json:"backoff_ms,omitempty"`
	Error      string `json:"error,omitempty"`
}

type matrixReply struct {
	OK     bool   `json:"ok"`
	Cells  int    `json:"cells"`
	Winner string `json:"winner,omitempty"`
	Error  string `json:"error,omitempty"`
}

type balanceReply struct {
	OK          bool   `json:"ok"`
	BalanceUSDC string `json:"balance_usdc,omitempty"`
	Error       string `json:"error,omitempty"`
}

type orderReply struct {
	OK      bool    `json:"ok"`
	OrderID string  `json:"order_id,omitempty"`
	Status  string  `json:"status,omitempty"`
	Taken   float64 `json:"taken,omitempty"`
	Made    float64 `json:"made,omitempty"`
	Error   string  `json:"error,omitempty"`
}

type openOrderJSON struct {
	OrderID  string  `json:"order_id"`
	TokenID  string  `json:"token_id"`
	Side     string  `json:"side"`
	Price    float64 `json:"price"`
	Size     float64 `json:"size"`
	Filled   float64 `json:"filled"`
	Status   string  `json:"status"`
	Outcome  string  `json:"outcome,omitempty"`
	PlacedAt string  `json:"placed_at,omitempty"`
}

type ordersReply struct {
	OK     bool            `json:"ok"`
	Orders []openOrderJSON `json:"orders"`
	Error  string          `json:"error,omitempty"`
}

type tokenJSON struct {
	TokenID string  `json:"token_id"`
	Outcome string  `json:"outcome"`
	Price   float64 `json:"price"`
}

type marketJSON struct {
	ConditionID string      `json:"condition_id"`
	Question    string      `json:"question"`
	Slug        string      `json:"slug,omitempty"`
	EndDate     string      `json:"end_date,omitempty"`
	Volume24h   float64     `json:"volume_24h"`
	NegRisk     bool        `json:"neg_risk,omitempty"`
	Tokens      []tokenJSON `json:"tokens"`
}

type marketsReply struct {
	OK      bool         `json:"ok"`
	Markets []marketJSON `json:"markets"`
	Error   string       `json:"error,omitempty"`
}

type storyJSON struct {
	RunID         string `json:"run_id"`
	Status        string `json:"status"`
	SignerAddress string `json:"signer_address"`
	SignatureType string `json:"signature_type"`
	UsedEffective bool   `json:"used_effective"`
	BalanceUSDC   string `json:"balance_usdc,omitempty"`
	Cause         string `json:"cause,omitempty"`
	CreatedAt     string `json:"created_at"`
}

type storiesReply struct {
	OK      bool        `json:"ok"`
	Stories []storyJSON `json:"stories"`
	Error   string      `json:"error,omitempty"`
}

// balanceFetcher is the signed balance surface the bridge exposes directly.
// *polymarket.AuthClient satisfies it.
type balanceFetcher interface {
	GetBalanceAllowance(ctx context.Context) (decimal.Decimal, error)
}

// marketLister is the Gamma listing surface. *polymarket.AuthClient
// satisfies it through its embedded client.
type marketLister interface {
	ListMarkets(ctx context.Context, limit int) ([]domain.Market, error)
}

// bridge owns the command loop and the subsystems wired behind it.
type bridge struct {
	cfg        *config.Config
	negotiator *auth.Negotiator
	verifier   *auth.Verifier
	prober     *auth.Prober
	resolver   *auth.Resolver
	trading    ports.OrderExecutor
	balance    balanceFetcher
	markets    marketLister
	journal    ports.Journal
	console    ports.Notifier
	gate       *domain.LiveGate
	log        *slog.Logger
}

// Run reads one JSON command per line from in and writes one JSON response
// per line to out, until "exit", stdin EOF, or context cancellation. Logs
// never touch out; the protocol owns it.
func (b *bridge) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	w := bufio.NewWriter(out)
	enc := json.NewEncoder(w)

	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- sc.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			b.log.Info("bridge: shutdown signal received")
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					if err != nil {
						return fmt.Errorf("bridge: read stdin: %w", err)
					}
				default:
				}
				// stdin closed: the parent process went away
				return nil
			}

			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}

			var cmd command
			if err := json.Unmarshal([]byte(line), &cmd); err != nil {
				b.reply(enc, w, okReply{Error: "malformed command: " + err.Error()})
				continue
			}

			if cmd.Cmd == "exit" {
				b.reply(enc, w, okReply{OK: true})
				b.log.Info("bridge: exit requested")
				return nil
			}

			b.reply(enc, w, b.dispatch(ctx, cmd))
		}
	}
}

func (b *bridge) reply(enc *json.Encoder, w *bufio.Writer, v any) {
	if err := enc.Encode(v); err != nil {
		b.log.Error("bridge: failed to encode response", "err", err)
		return
	}
	if err := w.Flush(); err != nil {
		b.log.Error("bridge: failed to flush response", "err", err)
	}
}

func (b *bridge) dispatch(ctx context.Context, cmd command) any {
	start := time.Now()
	defer func() {
		b.log.Debug("bridge: command handled", "cmd", cmd.Cmd, "elapsed", time.Since(start))
	}()

	switch cmd.Cmd {
	case "auth":
		return b.handleAuth(ctx)
	case "preflight":
		return b.handlePreflight(ctx)
	case "matrix":
		return b.handleMatrix(ctx)
	case "balance":
		return b.handleBalance(ctx)
	case "order":
		return b.handleOrder(ctx, cmd)
	case "cancel":
		return b.handleCancel(ctx, cmd)
	case "cancel_all":
		return b.handleCancelAll(ctx)
	case "orders":
		return b.handleOrders(ctx)
	case "markets":
		return b.handleMarkets(ctx, cmd.Limit)
	case "stories":
		return b.handleStories(ctx, cmd.Limit)
	}
	return okReply{Error: fmt.Sprintf("unknown command %q", cmd.Cmd)}
}

// handleAuth runs the full negotiation pipeline, prints the attempt table,
// and persists an AuthStory either way. The gate is not opened here: only a
// passing preflight does that.
func (b *bridge) handleAuth(ctx context.Context) any {
	outcome, err := b.negotiator.Authenticate(ctx)

	b.console.LadderReport(outcome.Attempts)

	story := b.buildStory(ctx, outcome, err)
	if jerr := b.journal.SaveStory(ctx, story); jerr != nil {
		b.log.Warn("journal: failed to persist auth story", "err", jerr)
	}

	if err != nil {
		b.gate.RecordFailure("authentication failed: " + string(outcome.Diagnosis.Cause))
		b.console.Diagnosis(outcome.Diagnosis)
		return authReply{
			Attempts: len(outcome.Attempts),
			Cause:    string(outcome.Diagnosis.Cause),
			Error:    err.Error(),
		}
	}

	return authReply{
		OK:            true,
		Address:       outcome.Identity.AuthAddress(outcome.UsedEffective),
		SignatureType: outcome.Identity.SignatureType.String(),
		UsedEffective: outcome.UsedEffective,
		Source:        string(outcome.Source),
		Attempts:      len(outcome.Attempts),
	}
}

func (b *bridge) buildStory(ctx context.Context, out *auth.AuthOutcome, authErr error) domain.AuthStory {
	story := domain.AuthStory{
		RunID:     domain.NewRunID(),
		CreatedAt: time.Now(),
	}

	id := out.Identity
	if authErr != nil {
		id = b.resolver.Base()
	}
	story.SignerAddress = id.DerivedAddress
	story.FunderAddress = id.FunderAddress
	story.SignatureType = id.SignatureType
	story.UsedEffective = out.UsedEffective

	if authErr != nil {
		story.Status = domain.AuthStatusFailed
		story.DiagnosisCause = out.Diagnosis.Cause
		story.ErrorDetails = lastAttemptError(out.Attempts)
		return story
	}

	story.Status = domain.AuthStatusOK
	if bal, err := b.balance.GetBalanceAllowance(ctx); err == nil {
		story.BalanceUSDC = bal.String()
	} else {
		b.log.Debug("auth: balance fetch after login failed", "err", err)
	}
	return story
}

// lastAttemptError pulls the most recent failure detail out of the history.
func lastAttemptError(attempts []domain.AttemptResult) string {
	for i := len(attempts) - 1; i >= 0; i-- {
		a := attempts[i]
		if a.Success {
			continue
		}
		if a.Error != "" {
			return a.Error
		}
		if a.StatusCode != 0 {
			return fmt.Sprintf("%s: HTTP %d", a.Stage, a.StatusCode)
		}
	}
	return ""
}

// handlePreflight runs one verification cycle and moves the live gate.
// The gate opens whenever the exchange accepted the signature, even if the
// check itself reported a parameter or funds problem; those are not auth
// failures and must not block signing.
func (b *bridge) handlePreflight(ctx context.Context) any {
	res, err := b.verifier.Check(ctx)
	if err != nil {
		if errors.Is(err, auth.ErrNoCredentials) {
			return preflightReply{Error: "no credentials installed; run auth first"}
		}
		return preflightReply{Error: err.Error()}
	}
	if res == nil {
		// Inside the backoff window: no new information.
		return preflightReply{OK: true, Skipped: true, BackoffMs: b.verifier.Backoff().Milliseconds()}
	}

	if res.Status.AuthOK() {
		b.gate.RecordSuccess()
	} else {
		b.gate.RecordFailure(fmt.Sprintf("preflight %s: %s", res.Status, res.Message))
	}

	return preflightReply{
		OK:         res.OK(),
		Status:     string(res.Status),
		Reason:     string(res.Reason),
		HTTPStatus: res.HTTPStatus,
		BackoffMs:  b.verifier.Backoff().Milliseconds(),
	}
}

func (b *bridge) handleMatrix(ctx context.Context) any {
	if !b.cfg.Auth.MatrixProbe {
		return matrixReply{Error: "matrix probe disabled; set AUTH_MATRIX_PROBE=1 to enable"}
	}

	cells, err := b.prober.Run(ctx)
	if err != nil {
		return matrixReply{Cells: len(cells), Error: err.Error()}
	}

	for _, c := range cells {
		if c.Success {
			return matrixReply{OK: true, Cells: len(cells), Winner: c.Label}
		}
	}
	return matrixReply{Cells: len(cells), Error: "no combination accepted"}
}

func (b *bridge) handleBalance(ctx context.Context) any {
	bal, err := b.balance.GetBalanceAllowance(ctx)
	if err != nil {
		return balanceReply{Error: err.Error()}
	}
	return balanceReply{OK: true, BalanceUSDC: bal.String()}
}

// handleOrder places a live order. Refused outright while the gate is
// closed, before anything gets signed.
func (b *bridge) handleOrder(ctx context.Context, cmd command) any {
	if !b.gate.Allow() {
		return orderReply{Error: "live gate closed: " + b.gate.Reason()}
	}
	if cmd.TokenID == "" || cmd.Side == "" || cmd.Price <= 0 || cmd.Size <= 0 {
		return orderReply{Error: "order requires token_id, side, price > 0 and size > 0"}
	}

	negRisk, err := b.trading.IsNegRisk(ctx, cmd.TokenID)
	if err != nil {
		return orderReply{Error: "neg-risk lookup: " + err.Error()}
	}

	placed, err := b.trading.PlaceOrder(ctx, domain.PlaceOrderRequest{
		TokenID: cmd.TokenID,
		Side:    strings.ToUpper(cmd.Side),
		Price:   cmd.Price,
		Size:    cmd.Size,
		NegRisk: negRisk,
	})
	if err != nil {
		return orderReply{Error: err.Error()}
	}

	b.log.Info("order placed",
		"order_id", placed.CLOBOrderID, "token", cmd.TokenID,
		"side", cmd.Side, "price", cmd.Price, "size", cmd.Size)

	return orderReply{
		OK:      true,
		OrderID: placed.CLOBOrderID,
		Status:  placed.Status,
		Taken:   placed.TakenAmount,
		Made:    placed.MadeAmount,
	}
}

func (b *bridge) handleCancel(ctx context.Context, cmd command) any {
	if cmd.OrderID == "" {
		return okReply{Error: "cancel requires order_id"}
	}
	if err := b.trading.CancelOrder(ctx, cmd.OrderID); err != nil {
		return okReply{Error: err.Error()}
	}
	return okReply{OK: true}
}

func (b *bridge) handleCancelAll(ctx context.Context) any {
	if err := b.trading.CancelAll(ctx); err != nil {
		return okReply{Error: err.Error()}
	}
	return okReply{OK: true}
}

func (b *bridge) handleOrders(ctx context.Context) any {
	orders, err := b.trading.GetOpenOrders(ctx)
	if err != nil {
		return ordersReply{Error: err.Error()}
	}

	out := make([]openOrderJSON, 0, len(orders))
	for _, o := range orders {
		oj := openOrderJSON{
			OrderID: o.CLOBOrderID,
			TokenID: o.TokenID,
			Side:    o.Side,
			Price:   o.Price,
			Size:    o.Size,
			Filled:  o.FilledSize,
			Status:  string(o.Status),
			Outcome: o.Outcome,
		}
		if !o.PlacedAt.IsZero() {
			oj.PlacedAt = o.PlacedAt.UTC().Format(time.RFC3339)
		}
		out = append(out, oj)
	}
	return ordersReply{OK: true, Orders: out}
}

func (b *bridge) handleMarkets(ctx context.Context, limit int) any {
	if limit <= 0 {
		limit = b.cfg.Bridge.MarketsLimit
	}

	markets, err := b.markets.ListMarkets(ctx, limit)
	if err != nil {
		return marketsReply{Error: err.Error()}
	}

	out := make([]marketJSON, 0, len(markets))
	for _, m := range markets {
		mj := marketJSON{
			ConditionID: m.ConditionID,
			Question:    m.Question,
			Slug:        m.Slug,
			Volume24h:   m.Volume24h,
			NegRisk:     m.NegRisk,
		}
		if !m.EndDate.IsZero() {
			mj.EndDate = m.EndDate.UTC().Format(time.RFC3339)
		}
		for _, t := range m.Tokens {
			mj.Tokens = append(mj.Tokens, tokenJSON{TokenID: t.TokenID, Outcome: t.Outcome, Price: t.Price})
		}
		out = append(out, mj)
	}
	return marketsReply{OK: true, Markets: out}
}

func (b *bridge) handleStories(ctx context.Context, limit int) any {
	if limit <= 0 {
		limit = b.cfg.Bridge.StoriesLimit
	}

	stories, err := b.journal.RecentStories(ctx, limit)
	if err != nil {
		return storiesReply{Error: err.Error()}
	}

	b.console.StoryReport(stories)

	out := make([]storyJSON, 0, len(stories))
	for _, s := range stories {
		out = append(out, storyJSON{
			RunID:         s.RunID,
			Status:        string(s.Status),
			SignerAddress: s.SignerAddress,
			SignatureType: s.SignatureType.String(),
			UsedEffective: s.UsedEffective,
			BalanceUSDC:   s.BalanceUSDC,
			Cause:         string(s.DiagnosisCause),
			CreatedAt:     s.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	return storiesReply{OK: true, Stories: out}
}
