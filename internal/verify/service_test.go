package verify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"ghostpass/internal/balance/notify"
	balanceservice "ghostpass/internal/balance/service"
	balancestore "ghostpass/internal/balance/store"
	"ghostpass/internal/nonce"
	"ghostpass/internal/platform/config"
	profilemodels "ghostpass/internal/profile/models"
	profileservice "ghostpass/internal/profile/service"
	profilestore "ghostpass/internal/profile/store"
	"ghostpass/internal/token/models"
	tokenservice "ghostpass/internal/token/service"
	"ghostpass/internal/token/signer"
	"ghostpass/internal/verify/metrics"
	id "ghostpass/pkg/domain"
	audit "ghostpass/pkg/platform/audit"
	"ghostpass/pkg/platform/audit/publisher"
	auditmemory "ghostpass/pkg/platform/audit/store/memory"
	"ghostpass/pkg/platform/sentinel"
	"ghostpass/pkg/testutil"
)

var ttl = models.TTLPolicy{Standard: 30 * time.Second, Master: 24 * time.Hour}

type EngineSuite struct {
	suite.Suite
	now        time.Time
	balances   *balanceservice.Service
	signer     *signer.Signer
	minter     *tokenservice.Service
	nonces     *nonce.InMemoryStore
	profiles   *profileservice.Service
	auditLog   *auditmemory.Store
	publisher  *publisher.Publisher
	policy     *config.Policy
	healthHall id.VenueID
	rooftop    id.VenueID
	engine     *Engine
}

func TestEngineSuite(t *testing.T) {
	suite.Run(t, new(EngineSuite))
}

func (s *EngineSuite) SetupTest() {
	s.now = time.Date(2026, 5, 1, 22, 0, 0, 0, time.UTC)
	clock := func() time.Time { return s.now }

	var err error
	s.signer, err = signer.New([]byte("verify-test-secret-0123456789abcdef"), signer.NewInMemoryEpochs())
	s.Require().NoError(err)
	s.balances = balanceservice.New(balancestore.NewInMemory(), notify.NewMemory(), decimal.RequireFromString("5.00"))
	s.minter = tokenservice.New(s.balances, s.signer, ttl, tokenservice.WithClock(clock))
	s.nonces = nonce.NewInMemory()
	s.profiles = profileservice.New(profilestore.NewInMemory())
	s.auditLog = auditmemory.New()
	s.publisher = publisher.New(s.auditLog, publisher.WithRetry(2, time.Millisecond))

	s.healthHall = id.VenueID(uuid.New())
	s.rooftop = id.VenueID(uuid.New())
	s.policy, err = config.ParsePolicy([]byte(fmt.Sprintf(`
venues:
  %s: {name: Health Hall, requires_health: true}
  %s: {name: Rooftop}
stations:
  H1: %s
  S1: %s
`, s.healthHall, s.rooftop, s.healthHall, s.rooftop)))
	s.Require().NoError(err)

	s.engine = s.newEngine(s.signer, s.nonces, Config{})
}

func (s *EngineSuite) newEngine(opener Opener, nonces nonce.Store, cfg Config) *Engine {
	cfg.TTL = ttl
	if cfg.SkewTolerance == 0 {
		cfg.SkewTolerance = 5 * time.Second
	}
	return New(opener, nonces, s.profiles, s.publisher, s.policy, cfg,
		WithClock(func() time.Time { return s.now }),
		WithMetrics(metrics.New()),
	)
}

func (s *EngineSuite) subject(balance string) id.SubjectID {
	subject := id.SubjectID(uuid.New())
	_, err := s.balances.SetBalance(context.Background(), balanceservice.SetBalanceRequest{
		SubjectID: subject,
		Balance:   decimal.RequireFromString(balance),
	})
	s.Require().NoError(err)
	s.Require().NoError(s.profiles.Save(context.Background(),
		&profilemodels.Profile{
			SubjectID:     subject,
			DisplayName:   "Ana",
			MemberID:      "M-1",
			PaymentLast4:  "4242",
			BarTabEnabled: true,
			HealthStatus:  profilemodels.HealthVerified,
		},
		&profilemodels.ConsentFlags{Identity: true, Payment: true, Health: true},
	))
	return subject
}

func (s *EngineSuite) mint(subject id.SubjectID, bundle models.Bundle, mode models.Mode, venue *id.VenueID) string {
	res, err := s.minter.Mint(context.Background(), tokenservice.MintRequest{
		SubjectID: subject,
		Bundle:    bundle,
		Mode:      mode,
		VenueID:   venue,
	})
	s.Require().NoError(err)
	return res.Payload
}

func (s *EngineSuite) scan(payload string, station id.StationID) Result {
	return s.engine.Verify(context.Background(), Request{TokenBytes: payload, StationID: station, OperatorID: "O1"})
}

func (s *EngineSuite) scanEvents() []audit.Event {
	var out []audit.Event
	for _, e := range s.auditLog.All() {
		if e.Action == audit.ActionScanPerformed {
			out = append(out, e)
		}
	}
	return out
}

func (s *EngineSuite) TestScenarioA_LockedTokenIsRejected() {
	subject := s.subject("3.00")
	payload := s.mint(subject, models.Bundle{Identity: true, Payment: true}, models.ModeStandard, nil)

	res := s.scan(payload, "S1")
	s.Equal(DecisionNo, res.Decision)
	s.Equal(ReasonLocked, res.Reason)
	s.Nil(res.Profile)
	s.NotEmpty(res.Message)
}

func (s *EngineSuite) TestScenarioB_GoodShowsMaskedPaymentOnly() {
	subject := s.subject("50.00")
	payload := s.mint(subject, models.Bundle{Payment: true}, models.ModeStandard, nil)

	res := s.scan(payload, "S1")
	s.Require().Equal(DecisionGood, res.Decision)
	s.Equal(ReasonOK, res.Reason)
	s.Require().NotNil(res.Profile)
	s.Nil(res.Profile.Identity)
	s.Nil(res.Profile.Health)
	s.Require().NotNil(res.Profile.Payment)
	s.Equal("•••• 4242", res.Profile.Payment.Method)
	s.True(res.Profile.Payment.BarTabEnabled)
	s.Equal([]string{"payment.method", "payment.bar_tab_enabled"}, res.Profile.Fields())

	events := s.scanEvents()
	s.Require().Len(events, 1)
	s.Equal("GOOD", events[0].Decision)
	s.Equal(id.StationID("S1"), events[0].StationID)
	s.Equal(id.OperatorID("O1"), events[0].OperatorID)
	s.Require().NotNil(events[0].TokenNonce)
	s.Equal(*res.Nonce, *events[0].TokenNonce)
}

func (s *EngineSuite) TestScenarioC_SecondScanIsUsed() {
	subject := s.subject("50.00")
	payload := s.mint(subject, models.Bundle{Payment: true}, models.ModeStandard, nil)

	s.Require().Equal(DecisionGood, s.scan(payload, "S1").Decision)
	res := s.scan(payload, "S1")
	s.Equal(DecisionNo, res.Decision)
	s.Equal(ReasonUsed, res.Reason)
	s.Nil(res.Profile)
}

func (s *EngineSuite) TestMasterTokenIsNotConsumed() {
	subject := s.subject("50.00")
	payload := s.mint(subject, models.Bundle{Identity: true}, models.ModeIncognitoMaster, nil)

	first := s.scan(payload, "S1")
	second := s.scan(payload, "S1")
	s.Equal(DecisionGood, first.Decision)
	s.Equal(first.Decision, second.Decision)
	s.Equal(first.Profile, second.Profile)
}

func (s *EngineSuite) TestExpiredTokensAreAlwaysNo() {
	subject := s.subject("50.00")
	bundles := []models.Bundle{{}, {Identity: true}, {Payment: true, Health: true}, {Identity: true, Payment: true, Health: true, IDDocument: true}}

	for _, mode := range []models.Mode{models.ModeStandard, models.ModeIncognitoMaster} {
		for _, bundle := range bundles {
			issued := s.now
			payload := s.mint(subject, bundle, mode, nil)

			s.now = issued.Add(ttl.For(mode) + time.Millisecond)
			res := s.scan(payload, "S1")
			s.Equal(DecisionNo, res.Decision, "mode=%s bundle=%+v", mode, bundle)
			s.Equal(ReasonExpired, res.Reason)
			s.Nil(res.Profile)
			s.now = issued
		}
	}
}

func (s *EngineSuite) TestExpiryBoundaryIsInclusive() {
	subject := s.subject("50.00")
	payload := s.mint(subject, models.Bundle{Identity: true}, models.ModeStandard, nil)

	s.now = s.now.Add(ttl.Standard)
	s.Equal(DecisionGood, s.scan(payload, "S1").Decision)
}

func (s *EngineSuite) TestMalformedPayloads() {
	subject := s.subject("50.00")
	payload := s.mint(subject, models.Bundle{Identity: true}, models.ModeStandard, nil)

	// Flip a character in the middle of the encoded body.
	mid := len(payload) / 2
	flipped := byte('A')
	if payload[mid] == 'A' {
		flipped = 'B'
	}
	tampered := payload[:mid] + string(flipped) + payload[mid+1:]

	for name, p := range map[string]string{
		"garbage":   "hello",
		"empty":     "",
		"no prefix": strings.TrimPrefix(payload, "GP1."),
		"tampered":  tampered,
		"oversized": "GP1." + strings.Repeat("A", 4096),
	} {
		res := s.scan(p, "S1")
		s.Equal(DecisionNo, res.Decision, name)
		s.Equal(ReasonMalformed, res.Reason, name)
		s.Nil(res.Nonce, name)
	}
}

func (s *EngineSuite) TestRevokedTokenIsMalformed() {
	subject := s.subject("50.00")
	payload := s.mint(subject, models.Bundle{Identity: true}, models.ModeIncognitoMaster, nil)

	_, err := s.signer.Revoke(context.Background(), subject)
	s.Require().NoError(err)

	res := s.scan(payload, "S1")
	s.Equal(ReasonMalformed, res.Reason)
}

func (s *EngineSuite) TestStaleClock() {
	subject := s.subject("50.00")
	verifierNow := s.now
	s.now = s.now.Add(time.Minute)
	payload := s.mint(subject, models.Bundle{Identity: true}, models.ModeIncognitoMaster, nil)
	s.now = verifierNow

	res := s.scan(payload, "S1")
	s.Equal(DecisionNo, res.Decision)
	s.Equal(ReasonStaleClock, res.Reason)
}

func (s *EngineSuite) TestSkewWithinToleranceIsAccepted() {
	subject := s.subject("50.00")
	verifierNow := s.now
	s.now = s.now.Add(3 * time.Second)
	payload := s.mint(subject, models.Bundle{Identity: true}, models.ModeStandard, nil)
	s.now = verifierNow

	s.Equal(DecisionGood, s.scan(payload, "S1").Decision)
}

func (s *EngineSuite) TestReviewWhenVenueRequiresHealth() {
	subject := s.subject("50.00")
	without := s.mint(subject, models.Bundle{Identity: true}, models.ModeStandard, nil)
	with := s.mint(subject, models.Bundle{Identity: true, Health: true}, models.ModeStandard, nil)

	res := s.scan(without, "H1")
	s.Equal(DecisionReview, res.Decision)
	s.Equal(ReasonHealthRequired, res.Reason)
	s.Require().NotNil(res.Profile)
	s.NotNil(res.Profile.Identity)

	res = s.scan(with, "H1")
	s.Equal(DecisionGood, res.Decision)
	s.Require().NotNil(res.Profile.Health)
	s.Equal("verified", res.Profile.Health.Status)
}

func (s *EngineSuite) TestReviewConsumesToken() {
	subject := s.subject("50.00")
	payload := s.mint(subject, models.Bundle{Identity: true}, models.ModeStandard, nil)

	s.Equal(DecisionReview, s.scan(payload, "H1").Decision)
	s.Equal(ReasonUsed, s.scan(payload, "S1").Reason)
}

func (s *EngineSuite) TestVenueBinding() {
	subject := s.subject("50.00")
	bound := s.mint(subject, models.Bundle{Identity: true}, models.ModeIncognitoMaster, &s.rooftop)

	s.Equal(DecisionGood, s.scan(bound, "S1").Decision)

	res := s.scan(bound, "UNMAPPED")
	s.Equal(DecisionReview, res.Decision)
	s.Equal(ReasonVenueMismatch, res.Reason)
}

func (s *EngineSuite) TestEveryVerifyWritesExactlyOneScanEvent() {
	subject := s.subject("50.00")
	poor := s.subject("1.00")
	good := s.mint(subject, models.Bundle{Payment: true}, models.ModeStandard, nil)
	cases := []string{
		"garbage",
		good,
		good,
		s.mint(poor, models.Bundle{Identity: true}, models.ModeStandard, nil),
		s.mint(subject, models.Bundle{Identity: true}, models.ModeStandard, nil),
	}
	for i, p := range cases {
		station := id.StationID("S1")
		if i == len(cases)-1 {
			station = "H1"
		}
		s.scan(p, station)
		s.Len(s.scanEvents(), i+1)
	}

	var reasons []string
	for _, e := range s.scanEvents() {
		reasons = append(reasons, e.Reason)
	}
	s.Equal([]string{"MALFORMED", "OK", "USED", "LOCKED", "HEALTH_REQUIRED"}, reasons)
}

func (s *EngineSuite) TestConcurrentScansHaveOneWinner() {
	subject := s.subject("50.00")
	payload := s.mint(subject, models.Bundle{Payment: true}, models.ModeStandard, nil)

	result := testutil.RunConcurrent(32, func(i int) error {
		res := s.engine.Verify(context.Background(), Request{
			TokenBytes: payload,
			StationID:  id.StationID(fmt.Sprintf("S%d", i%4+1)),
			OperatorID: "O1",
		})
		if res.Decision == DecisionGood {
			return nil
		}
		if res.Reason != ReasonUsed {
			return fmt.Errorf("unexpected reason %s", res.Reason)
		}
		return sentinel.ErrAlreadyUsed
	})
	s.Equal(int32(1), result.Successes)
	s.Equal(int32(31), result.Replays)
	s.Zero(result.Errors)
	s.Len(s.scanEvents(), 32)
}

func (s *EngineSuite) TestAuditFailureFailsClosedAndReleasesNonce() {
	subject := s.subject("50.00")
	payload := s.mint(subject, models.Bundle{Payment: true}, models.ModeStandard, nil)

	s.auditLog.FailNext(1, errors.New("disk full"))
	res := s.scan(payload, "S1")
	s.Equal(DecisionNo, res.Decision)
	s.Equal(ReasonAuditWriteFailure, res.Reason)
	s.Nil(res.Profile)
	s.Empty(s.scanEvents())

	res = s.scan(payload, "S1")
	s.Equal(DecisionGood, res.Decision, "the unaudited scan must not spend the token")
}

func (s *EngineSuite) TestTransientAuditErrorsAreRetried() {
	subject := s.subject("50.00")
	payload := s.mint(subject, models.Bundle{Payment: true}, models.ModeStandard, nil)

	s.auditLog.FailNext(1, sentinel.ErrUnavailable)
	s.Equal(DecisionGood, s.scan(payload, "S1").Decision)
	s.Len(s.scanEvents(), 1)
}

func (s *EngineSuite) TestTimeoutIsNoAndStillAudited() {
	subject := s.subject("50.00")
	payload := s.mint(subject, models.Bundle{Payment: true}, models.ModeStandard, nil)
	engine := s.newEngine(blockingOpener{}, s.nonces, Config{Budget: 20 * time.Millisecond})

	res := engine.Verify(context.Background(), Request{TokenBytes: payload, StationID: "S1", OperatorID: "O1"})
	s.Equal(DecisionNo, res.Decision)
	s.Equal(ReasonTimeout, res.Reason)

	events := s.scanEvents()
	s.Require().Len(events, 1)
	s.Equal("TIMEOUT", events[0].Reason)
}

func (s *EngineSuite) TestCancelledScanIsTimeoutAndStillAudited() {
	subject := s.subject("50.00")
	payload := s.mint(subject, models.Bundle{Payment: true}, models.ModeStandard, nil)
	engine := s.newEngine(blockingOpener{}, s.nonces, Config{Budget: time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)
	res := engine.Verify(ctx, Request{TokenBytes: payload, StationID: "S1", OperatorID: "O1"})
	s.Equal(DecisionNo, res.Decision)
	s.Equal(ReasonTimeout, res.Reason)

	events := s.scanEvents()
	s.Require().Len(events, 1)
	s.Equal("NO", events[0].Decision)
	s.Equal("TIMEOUT", events[0].Reason)
}

func (s *EngineSuite) TestBudgetLapsingDuringAuditIsTimeout() {
	subject := s.subject("50.00")
	payload := s.mint(subject, models.Bundle{Payment: true}, models.ModeStandard, nil)
	slow := &stallingAuditStore{Store: s.auditLog}
	engine := New(s.signer, s.nonces, s.profiles, publisher.New(slow), s.policy,
		Config{TTL: ttl, SkewTolerance: 5 * time.Second, Budget: 30 * time.Millisecond},
		WithClock(func() time.Time { return s.now }),
	)

	res := engine.Verify(context.Background(), Request{TokenBytes: payload, StationID: "S1", OperatorID: "O1"})
	s.Equal(DecisionNo, res.Decision)
	s.Equal(ReasonTimeout, res.Reason)
	s.Nil(res.Profile)

	events := s.scanEvents()
	s.Require().Len(events, 1)
	s.Equal("TIMEOUT", events[0].Reason)
	s.Require().NotNil(events[0].TokenNonce)
	s.Equal(*res.Nonce, *events[0].TokenNonce)

	s.Equal(DecisionGood, s.scan(payload, "S1").Decision, "the timed-out scan must not spend the token")
}

func (s *EngineSuite) TestNonceStoreOutageIsNo() {
	subject := s.subject("50.00")
	payload := s.mint(subject, models.Bundle{Payment: true}, models.ModeStandard, nil)
	engine := s.newEngine(s.signer, failingNonces{}, Config{})

	res := engine.Verify(context.Background(), Request{TokenBytes: payload, StationID: "S1", OperatorID: "O1"})
	s.Equal(DecisionNo, res.Decision)
	s.Equal(ReasonUnavailable, res.Reason)
	s.Len(s.scanEvents(), 1)
}

func (s *EngineSuite) TestVerifyIsDeterministic() {
	subject := s.subject("50.00")
	payload := s.mint(subject, models.Bundle{Identity: true, Payment: true}, models.ModeIncognitoMaster, nil)

	first := s.scan(payload, "H1")
	for range 5 {
		again := s.scan(payload, "H1")
		s.Equal(first.Decision, again.Decision)
		s.Equal(first.Reason, again.Reason)
		s.Equal(first.Profile, again.Profile)
	}
}

type blockingOpener struct{}

func (blockingOpener) Open(ctx context.Context, _ string) (*models.Token, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

// stallingAuditStore holds its first append until the context is done, then
// behaves like the wrapped store.
type stallingAuditStore struct {
	*auditmemory.Store
	stalled bool
}

func (s *stallingAuditStore) Append(ctx context.Context, event audit.Event) error {
	if !s.stalled {
		s.stalled = true
		<-ctx.Done()
		return ctx.Err()
	}
	return s.Store.Append(ctx, event)
}

type failingNonces struct{}

func (failingNonces) MarkUsed(context.Context, id.Nonce, time.Duration) (bool, error) {
	return false, errors.Join(sentinel.ErrUnavailable, errors.New("connection refused"))
}

func (failingNonces) Release(context.Context, id.Nonce) error {
	return nil
}
