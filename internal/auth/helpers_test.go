package auth

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alejandrodnm/polybridge/internal/domain"
	"github.com/stretchr/testify/require"
)

// Well-known Hardhat test keys. Public, unfunded, safe to commit.
const (
	testPrivKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	testSigner  = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
	testFunder  = "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestResolver(t *testing.T) *Resolver {
	t.Helper()
	r, err := NewResolver(IdentityInputs{PrivateKey: testPrivKey}, testLogger())
	require.NoError(t, err)
	return r
}

func testCreds(tag string) domain.Credentials {
	return domain.Credentials{
		Key:        "key-" + tag,
		Secret:     "c2VjcmV0LQ" + tag,
		Passphrase: "pass-" + tag,
	}
}

// fakeGateway implements ports.AuthGateway with per-test behavior. Call
// counters let tests assert exactly how many attempts were made.
type fakeGateway struct {
	connErr  error
	connFn   func() error
	deriveFn func(id domain.Identity, useEffective bool) (domain.Credentials, domain.ProbeOutcome, error)
	probeFn  func(creds domain.Credentials, id domain.Identity, useEffective bool, opts domain.SigningOptions) (domain.ProbeOutcome, error)

	connCalls   int
	deriveCalls int
	probeCalls  int
}

func (f *fakeGateway) CheckConnectivity(ctx context.Context) error {
	f.connCalls++
	if f.connFn != nil {
		return f.connFn()
	}
	return f.connErr
}

func (f *fakeGateway) DeriveCreds(ctx context.Context, id domain.Identity, useEffective bool) (domain.Credentials, domain.ProbeOutcome, error) {
	f.deriveCalls++
	if f.deriveFn == nil {
		return testCreds("derived"), domain.ProbeOutcome{HTTPStatus: 200}, nil
	}
	return f.deriveFn(id, useEffective)
}

func (f *fakeGateway) ProbeBalanceAllowance(ctx context.Context, creds domain.Credentials, id domain.Identity, useEffective bool, opts domain.SigningOptions) (domain.ProbeOutcome, error) {
	f.probeCalls++
	if f.probeFn == nil {
		return domain.ProbeOutcome{HTTPStatus: 200}, nil
	}
	return f.probeFn(creds, id, useEffective, opts)
}

// fakeNotifier captures emitted reports.
type fakeNotifier struct {
	ladder  [][]domain.AttemptResult
	matrix  [][]domain.AttemptResult
	stories [][]domain.AuthStory
	diags   []domain.Diagnosis
}

func (f *fakeNotifier) LadderReport(attempts []domain.AttemptResult) {
	f.ladder = append(f.ladder, attempts)
}

func (f *fakeNotifier) MatrixReport(cells []domain.AttemptResult) {
	f.matrix = append(f.matrix, cells)
}

func (f *fakeNotifier) StoryReport(stories []domain.AuthStory) {
	f.stories = append(f.stories, stories)
}

func (f *fakeNotifier) Diagnosis(d domain.Diagnosis) {
	f.diags = append(f.diags, d)
}

// fakeJournal accumulates records in memory.
type fakeJournal struct {
	stories    []domain.AuthStory
	preflights []domain.PreflightRecord
}

func (f *fakeJournal) SaveStory(ctx context.Context, story domain.AuthStory) error {
	f.stories = append(f.stories, story)
	return nil
}

func (f *fakeJournal) RecentStories(ctx context.Context, limit int) ([]domain.AuthStory, error) {
	if limit > len(f.stories) {
		limit = len(f.stories)
	}
	out := make([]domain.AuthStory, 0, limit)
	for i := len(f.stories) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, f.stories[i])
	}
	return out, nil
}

func (f *fakeJournal) SavePreflight(ctx context.Context, rec domain.PreflightRecord) error {
	f.preflights = append(f.preflights, rec)
	return nil
}

func (f *fakeJournal) Close() error { return nil }

// fakeClock drives time-dependent code without sleeping.
type fakeClock struct {
	t time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.t = c.t.Add(d)
}
