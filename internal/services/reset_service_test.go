package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"asklytics/internal/models"
)

const (
	aliceToken = "a1b2c3d4e5f60718293a4b5c6d7e8f90a1b2c3d4e5f60718293a4b5c6d7e8f90"
	bobMobile  = "9876543210"
)

type resetFixture struct {
	store      *memStore
	delivery   *fakeDelivery
	gen        *seqGenerator
	clock      *fakeClock
	issuance   *IssuanceService
	redemption *RedemptionService
}

func newResetFixture(t *testing.T) *resetFixture {
	t.Helper()

	oldHash, err := bcrypt.GenerateFromPassword([]byte("oldpass123"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	mobile := bobMobile
	store := newMemStore(
		&models.User{ID: "u-alice", Email: "alice@example.com", PasswordHash: string(oldHash)},
		&models.User{ID: "u-bob", Email: "bob@example.com", Mobile: &mobile, PasswordHash: string(oldHash)},
	)
	f := &resetFixture{
		store:    store,
		delivery: &fakeDelivery{},
		gen:      &seqGenerator{tokens: []string{aliceToken, "second-token"}, otps: []string{"482913", "105577"}},
		clock:    &fakeClock{now: time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)},
	}

	f.issuance = NewIssuanceService(store, store, f.delivery, f.gen, IssuanceConfig{
		EmailTTL:        time.Hour,
		MobileTTL:       15 * time.Minute,
		StoreTimeout:    time.Second,
		DeliveryTimeout: time.Second,
	}, nopLogger())
	f.issuance.SetClock(f.clock.Now)

	f.redemption = NewRedemptionService(store, RedemptionConfig{StoreTimeout: time.Second}, nopLogger())
	f.redemption.SetClock(f.clock.Now)
	return f
}

func (f *resetFixture) waitDeliveries(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := f.issuance.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}
}

func TestRequestResetSameOutcomeForUnknownIdentifier(t *testing.T) {
	f := newResetFixture(t)
	ctx := context.Background()

	if err := f.issuance.RequestReset(ctx, models.ChannelEmailLink, "alice@example.com"); err != nil {
		t.Fatalf("existing email: %v", err)
	}
	if err := f.issuance.RequestReset(ctx, models.ChannelEmailLink, "nobody@example.com"); err != nil {
		t.Fatalf("unknown email: %v", err)
	}
	if err := f.issuance.RequestReset(ctx, models.ChannelMobileOTP, "0000000000"); err != nil {
		t.Fatalf("unknown mobile: %v", err)
	}
	f.waitDeliveries(t)

	if got := len(f.delivery.all()); got != 1 {
		t.Fatalf("expected exactly one delivery, got %d", got)
	}
}

func TestEmailResetIssueAndRedeemOnce(t *testing.T) {
	f := newResetFixture(t)
	ctx := context.Background()

	if err := f.issuance.RequestReset(ctx, models.ChannelEmailLink, "alice@example.com"); err != nil {
		t.Fatalf("RequestReset: %v", err)
	}
	f.waitDeliveries(t)

	u := f.store.get("u-alice")
	if u.ResetToken == nil || *u.ResetToken != storedSecret(models.ChannelEmailLink, aliceToken) {
		t.Fatalf("expected token digest stored, got %v", u.ResetToken)
	}
	if *u.ResetToken == aliceToken {
		t.Fatalf("raw token must not be stored")
	}
	if u.ResetTokenExpiresAt == nil || !u.ResetTokenExpiresAt.Equal(f.clock.Now().Add(time.Hour)) {
		t.Fatalf("expected expiry now+1h, got %v", u.ResetTokenExpiresAt)
	}

	sends := f.delivery.all()
	if len(sends) != 1 || sends[0].to != "alice@example.com" || sends[0].secret != aliceToken {
		t.Fatalf("unexpected deliveries %+v", sends)
	}

	creds := models.ResetCredentials{Secret: aliceToken}
	if err := f.redemption.CompleteReset(ctx, models.ChannelEmailLink, creds, "newpass123"); err != nil {
		t.Fatalf("CompleteReset: %v", err)
	}

	u = f.store.get("u-alice")
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte("newpass123")); err != nil {
		t.Fatalf("password hash not updated: %v", err)
	}
	if cost, _ := bcrypt.Cost([]byte(u.PasswordHash)); cost < MinBcryptCost {
		t.Fatalf("expected bcrypt cost >= %d, got %d", MinBcryptCost, cost)
	}
	if u.ResetToken != nil || u.ResetTokenExpiresAt != nil {
		t.Fatalf("expected token fields cleared, got %v %v", u.ResetToken, u.ResetTokenExpiresAt)
	}

	err := f.redemption.CompleteReset(ctx, models.ChannelEmailLink, creds, "another123")
	if !errors.Is(err, ErrInvalidOrExpiredSecret) {
		t.Fatalf("expected replay to fail with ErrInvalidOrExpiredSecret, got %v", err)
	}
}

func TestRedeemAtExpiryFails(t *testing.T) {
	f := newResetFixture(t)
	ctx := context.Background()

	if err := f.issuance.RequestReset(ctx, models.ChannelEmailLink, "alice@example.com"); err != nil {
		t.Fatalf("RequestReset: %v", err)
	}
	f.waitDeliveries(t)
	before := f.store.get("u-alice").PasswordHash

	f.clock.Advance(time.Hour)

	err := f.redemption.CompleteReset(ctx, models.ChannelEmailLink, models.ResetCredentials{Secret: aliceToken}, "newpass123")
	if !errors.Is(err, ErrInvalidOrExpiredSecret) {
		t.Fatalf("expected ErrInvalidOrExpiredSecret, got %v", err)
	}
	if f.store.get("u-alice").PasswordHash != before {
		t.Fatalf("password must not change on expired secret")
	}
}

func TestReissueInvalidatesPreviousSecret(t *testing.T) {
	f := newResetFixture(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := f.issuance.RequestReset(ctx, models.ChannelEmailLink, "alice@example.com"); err != nil {
			t.Fatalf("RequestReset %d: %v", i, err)
		}
	}
	f.waitDeliveries(t)

	err := f.redemption.CompleteReset(ctx, models.ChannelEmailLink, models.ResetCredentials{Secret: aliceToken}, "newpass123")
	if !errors.Is(err, ErrInvalidOrExpiredSecret) {
		t.Fatalf("expected superseded token to fail, got %v", err)
	}
	if err := f.redemption.CompleteReset(ctx, models.ChannelEmailLink, models.ResetCredentials{Secret: "second-token"}, "newpass123"); err != nil {
		t.Fatalf("newest token should redeem: %v", err)
	}
}

func TestConcurrentRedemptionHasSingleWinner(t *testing.T) {
	f := newResetFixture(t)
	ctx := context.Background()

	if err := f.issuance.RequestReset(ctx, models.ChannelEmailLink, "alice@example.com"); err != nil {
		t.Fatalf("RequestReset: %v", err)
	}
	f.waitDeliveries(t)

	const attempts = 2
	var wg sync.WaitGroup
	start := make(chan struct{})
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			errs[i] = f.redemption.CompleteReset(ctx, models.ChannelEmailLink, models.ResetCredentials{Secret: aliceToken}, "newpass123")
		}(i)
	}
	close(start)
	wg.Wait()

	var ok, invalid int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrInvalidOrExpiredSecret):
			invalid++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ok != 1 || invalid != attempts-1 {
		t.Fatalf("expected 1 success and %d invalid, got %d and %d", attempts-1, ok, invalid)
	}

	f.store.mu.Lock()
	sets := f.store.passwordSets
	f.store.mu.Unlock()
	if sets != 1 {
		t.Fatalf("expected exactly one password change, got %d", sets)
	}
}

func TestMobileResetWrongOTPLeavesStoreUnchanged(t *testing.T) {
	f := newResetFixture(t)
	ctx := context.Background()

	if err := f.issuance.RequestReset(ctx, models.ChannelMobileOTP, bobMobile); err != nil {
		t.Fatalf("RequestReset: %v", err)
	}
	f.waitDeliveries(t)

	before := f.store.get("u-bob")
	if before.ResetOTP == nil || *before.ResetOTP != "482913" {
		t.Fatalf("expected otp 482913 stored, got %v", before.ResetOTP)
	}
	if !before.ResetOTPExpiresAt.Equal(f.clock.Now().Add(15 * time.Minute)) {
		t.Fatalf("expected expiry now+15m, got %v", before.ResetOTPExpiresAt)
	}
	sends := f.delivery.all()
	if len(sends) != 1 || sends[0].to != bobMobile || sends[0].secret != "482913" {
		t.Fatalf("unexpected deliveries %+v", sends)
	}

	err := f.redemption.CompleteReset(ctx, models.ChannelMobileOTP, models.ResetCredentials{Identifier: bobMobile, Secret: "000000"}, "newpass123")
	if !errors.Is(err, ErrInvalidOrExpiredSecret) {
		t.Fatalf("expected ErrInvalidOrExpiredSecret, got %v", err)
	}
	// Right OTP presented for another number fails the same way.
	err = f.redemption.CompleteReset(ctx, models.ChannelMobileOTP, models.ResetCredentials{Identifier: "1111111111", Secret: "482913"}, "newpass123")
	if !errors.Is(err, ErrInvalidOrExpiredSecret) {
		t.Fatalf("expected ErrInvalidOrExpiredSecret, got %v", err)
	}

	after := f.store.get("u-bob")
	if after.PasswordHash != before.PasswordHash || after.ResetOTP == nil || *after.ResetOTP != "482913" {
		t.Fatalf("store changed after failed redemption")
	}
}

func TestChannelsAreIndependent(t *testing.T) {
	f := newResetFixture(t)
	ctx := context.Background()

	if err := f.issuance.RequestReset(ctx, models.ChannelEmailLink, "bob@example.com"); err != nil {
		t.Fatalf("email RequestReset: %v", err)
	}
	if err := f.issuance.RequestReset(ctx, models.ChannelMobileOTP, bobMobile); err != nil {
		t.Fatalf("mobile RequestReset: %v", err)
	}
	f.waitDeliveries(t)

	if err := f.redemption.CompleteReset(ctx, models.ChannelEmailLink, models.ResetCredentials{Secret: aliceToken}, "newpass123"); err != nil {
		t.Fatalf("email CompleteReset: %v", err)
	}
	bob := f.store.get("u-bob")
	if bob.ResetOTP == nil {
		t.Fatalf("email redemption must not clear the mobile otp")
	}
	if err := f.redemption.CompleteReset(ctx, models.ChannelMobileOTP, models.ResetCredentials{Identifier: bobMobile, Secret: "482913"}, "newpass456"); err != nil {
		t.Fatalf("mobile CompleteReset: %v", err)
	}
}

func TestCompleteResetRejectsLocallyBeforeStorage(t *testing.T) {
	f := newResetFixture(t)
	ctx := context.Background()

	cases := []struct {
		name    string
		channel models.Channel
		creds   models.ResetCredentials
		pass    string
		want    error
	}{
		{"short password", models.ChannelEmailLink, models.ResetCredentials{Secret: aliceToken}, "short", ErrWeakPassword},
		{"missing token", models.ChannelEmailLink, models.ResetCredentials{}, "newpass123", ErrValidation},
		{"missing mobile", models.ChannelMobileOTP, models.ResetCredentials{Secret: "482913"}, "newpass123", ErrValidation},
		{"missing password", models.ChannelMobileOTP, models.ResetCredentials{Identifier: bobMobile, Secret: "482913"}, "", ErrValidation},
		{"unknown channel", models.Channel("fax"), models.ResetCredentials{Secret: "x"}, "newpass123", ErrValidation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := f.redemption.CompleteReset(ctx, tc.channel, tc.creds, tc.pass)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
	if n := f.store.callCount(); n != 0 {
		t.Fatalf("expected no store access, got %d calls", n)
	}

	var verr *ValidationError
	err := f.redemption.CompleteReset(ctx, models.ChannelMobileOTP, models.ResetCredentials{Identifier: bobMobile}, "newpass123")
	if !errors.As(err, &verr) || verr.Error() != "otp required" {
		t.Fatalf("expected 'otp required', got %v", err)
	}
}

func TestDeliveryFailureKeepsSecretAndOutcome(t *testing.T) {
	f := newResetFixture(t)
	f.delivery.err = errors.New("smtp: connection refused")

	if err := f.issuance.RequestReset(context.Background(), models.ChannelEmailLink, "alice@example.com"); err != nil {
		t.Fatalf("delivery failure must not surface: %v", err)
	}
	f.waitDeliveries(t)

	if f.store.get("u-alice").ResetToken == nil {
		t.Fatalf("secret must stay persisted after delivery failure")
	}
	if err := f.redemption.CompleteReset(context.Background(), models.ChannelEmailLink, models.ResetCredentials{Secret: aliceToken}, "newpass123"); err != nil {
		t.Fatalf("secret should still redeem: %v", err)
	}
}

func TestRequestResetStorageFailure(t *testing.T) {
	f := newResetFixture(t)
	f.store.lookupErr = errors.New("connection reset by peer")

	err := f.issuance.RequestReset(context.Background(), models.ChannelEmailLink, "alice@example.com")
	if !errors.Is(err, ErrStorageFailure) {
		t.Fatalf("expected ErrStorageFailure, got %v", err)
	}
}

func TestRequestResetValidation(t *testing.T) {
	f := newResetFixture(t)

	err := f.issuance.RequestReset(context.Background(), models.ChannelMobileOTP, "   ")
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Error() != "mobile required" {
		t.Fatalf("expected 'mobile required', got %v", err)
	}
	if n := f.store.callCount(); n != 0 {
		t.Fatalf("expected no store access, got %d calls", n)
	}
}

func TestThrottledIssuanceIssuesNothing(t *testing.T) {
	f := newResetFixture(t)
	f.issuance.SetThrottle(fixedThrottle{allow: false})

	if err := f.issuance.RequestReset(context.Background(), models.ChannelEmailLink, "alice@example.com"); err != nil {
		t.Fatalf("throttled request must look like success: %v", err)
	}
	f.waitDeliveries(t)

	if f.store.get("u-alice").ResetToken != nil {
		t.Fatalf("throttled request must not issue a secret")
	}
	if len(f.delivery.all()) != 0 {
		t.Fatalf("throttled request must not deliver")
	}
}

func TestThrottleErrorFailsOpen(t *testing.T) {
	f := newResetFixture(t)
	f.issuance.SetThrottle(fixedThrottle{err: errors.New("redis down")})

	if err := f.issuance.RequestReset(context.Background(), models.ChannelEmailLink, "alice@example.com"); err != nil {
		t.Fatalf("RequestReset: %v", err)
	}
	f.waitDeliveries(t)

	if f.store.get("u-alice").ResetToken == nil {
		t.Fatalf("expected secret issued when throttle is unavailable")
	}
}

type blockingDelivery struct {
	started chan struct{}
	release chan struct{}
}

func (d *blockingDelivery) SendResetLink(ctx context.Context, email string, token string) error {
	close(d.started)
	<-d.release
	return nil
}

func (d *blockingDelivery) SendResetOTP(ctx context.Context, mobile string, otp string) error {
	close(d.started)
	<-d.release
	return nil
}

func TestRequestResetDoesNotWaitForDelivery(t *testing.T) {
	f := newResetFixture(t)
	slow := &blockingDelivery{started: make(chan struct{}), release: make(chan struct{})}
	issuance := NewIssuanceService(f.store, f.store, slow, f.gen, IssuanceConfig{
		EmailTTL:        time.Hour,
		MobileTTL:       15 * time.Minute,
		StoreTimeout:    time.Second,
		DeliveryTimeout: time.Minute,
	}, nopLogger())

	returned := make(chan error, 1)
	go func() {
		returned <- issuance.RequestReset(context.Background(), models.ChannelEmailLink, "alice@example.com")
	}()

	select {
	case err := <-returned:
		if err != nil {
			t.Fatalf("RequestReset: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("RequestReset blocked on delivery")
	}

	select {
	case <-slow.started:
	case <-time.After(5 * time.Second):
		t.Fatalf("delivery never started")
	}

	waitCtx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := issuance.Wait(waitCtx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Wait must report the open delivery, got %v", err)
	}

	close(slow.release)
	drainCtx, drainCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer drainCancel()
	if err := issuance.Wait(drainCtx); err != nil {
		t.Fatalf("Wait after release: %v", err)
	}
}
