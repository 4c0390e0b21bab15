package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/arkana-app/access-api/internal/models"
	"github.com/arkana-app/access-api/internal/repository"
	"github.com/arkana-app/access-api/internal/storeguard"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Message for infrastructure failures. Never leaks store details.
const retryMessage = "Something went wrong on our end. Please try again in a moment."

const betaFullMessage = "The beta program is currently full. Join the waitlist and we'll let you know when a spot opens."

// BetaCodeStore is the persistence surface the validator needs. The gorm
// repository satisfies it in production; tests substitute an in-memory
// fake.
type BetaCodeStore interface {
	Create(ctx context.Context, code *models.BetaCode) error
	FindByCode(ctx context.Context, code string) (*models.BetaCode, error)
	FindByID(ctx context.Context, id string) (*models.BetaCode, error)
	List(ctx context.Context) ([]models.BetaCode, error)
	Update(ctx context.Context, id string, updates map[string]interface{}) error
	HasRedemption(ctx context.Context, codeID uuid.UUID, email string) (bool, error)
	CountRedemptions(ctx context.Context) (int64, error)
	Consume(ctx context.Context, codeID uuid.UUID, email, name, tier string, programCap int) (*models.BetaRedemption, error)
	ListRedemptions(ctx context.Context, codeID uuid.UUID, limit, offset int) ([]models.BetaRedemption, error)
	ListAllRedemptions(ctx context.Context, limit, offset int) ([]models.BetaRedemption, error)
}

type BetaCodeService struct {
	store      BetaCodeStore
	guard      *storeguard.Guard
	programCap int
}

func NewBetaCodeService(store BetaCodeStore, guard *storeguard.Guard, programCap int) *BetaCodeService {
	return &BetaCodeService{
		store:      store,
		guard:      guard,
		programCap: programCap,
	}
}

// NormalizeCode applies the canonical code form: trimmed, uppercased.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// NormalizeEmail applies the canonical identity form: trimmed, lowercased.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Validate runs the redemption precondition chain in order - unknown code,
// disabled, expired, exhausted, already redeemed, program full - stopping
// at the first failure so the caller gets the most specific message. When
// every check passes it atomically spends a use and records the
// redemption.
//
// The pre-checks are advisory reads; the consume step re-enforces the
// usage cap, the one-redemption-per-identity rule, and the global program
// cap inside a single transaction, so concurrent redemptions cannot
// oversubscribe a code or the program.
func (s *BetaCodeService) Validate(ctx context.Context, code, email, name string) (*models.BetaRedemption, error) {
	code = NormalizeCode(code)
	email = NormalizeEmail(email)

	if code == "" || email == "" {
		return nil, kindError(KindInvalidCode, "That code isn't valid. Check for typos and try again.")
	}

	var betaCode *models.BetaCode
	err := s.guard.Do(ctx, func() error {
		var err error
		betaCode, err = s.store.FindByCode(ctx, code)
		return err
	})
	if err != nil {
		return nil, s.infraError("beta code lookup", err)
	}

	if betaCode == nil {
		return nil, kindError(KindInvalidCode, "That code isn't valid. Check for typos and try again.")
	}

	if !betaCode.IsActive {
		return nil, kindError(KindCodeDisabled, "This code has been disabled.")
	}

	if betaCode.ExpiresAt != nil && time.Now().After(*betaCode.ExpiresAt) {
		return nil, kindError(KindCodeExpired, "This code has expired.")
	}

	if betaCode.CurrentUses >= betaCode.MaxUses {
		return nil, kindError(KindUsageLimitReached, "This code has reached its usage limit.")
	}

	var redeemed bool
	err = s.guard.Do(ctx, func() error {
		var err error
		redeemed, err = s.store.HasRedemption(ctx, betaCode.ID, email)
		return err
	})
	if err != nil {
		return nil, s.infraError("redemption lookup", err)
	}

	if redeemed {
		return nil, kindError(KindAlreadyRedeemed, "You've already redeemed this code.")
	}

	var members int64
	err = s.guard.Do(ctx, func() error {
		var err error
		members, err = s.store.CountRedemptions(ctx)
		return err
	})
	if err != nil {
		return nil, s.infraError("member count", err)
	}

	if members >= int64(s.programCap) {
		return nil, kindError(KindBetaFull, betaFullMessage)
	}

	var redemption *models.BetaRedemption
	err = s.guard.Do(ctx, func() error {
		var err error
		redemption, err = s.store.Consume(ctx, betaCode.ID, email, name, betaCode.Tier, s.programCap)
		return err
	})
	if err != nil {
		// The atomic consume can lose races the pre-checks missed.
		if errors.Is(err, repository.ErrUsesExhausted) {
			return nil, kindError(KindUsageLimitReached, "This code has reached its usage limit.")
		}
		if errors.Is(err, repository.ErrDuplicateRedemption) {
			return nil, kindError(KindAlreadyRedeemed, "You've already redeemed this code.")
		}
		if errors.Is(err, repository.ErrBetaFull) {
			return nil, kindError(KindBetaFull, betaFullMessage)
		}
		return nil, s.infraError("redemption consume", err)
	}

	return redemption, nil
}

// CreateCode provisions a new beta code (admin action). The stored code is
// normalized so lookups are case-insensitive.
func (s *BetaCodeService) CreateCode(ctx context.Context, code, tier string, maxUses int, expiresAt *time.Time, createdBy string) (*models.BetaCode, error) {
	code = NormalizeCode(code)
	if code == "" {
		return nil, fmt.Errorf("code must not be empty")
	}
	if maxUses < 1 {
		return nil, fmt.Errorf("max_uses must be at least 1")
	}
	if tier == "" {
		tier = "early"
	}

	betaCode := &models.BetaCode{
		Code:      code,
		Tier:      tier,
		MaxUses:   maxUses,
		IsActive:  true,
		ExpiresAt: expiresAt,
		CreatedBy: createdBy,
	}

	err := s.guard.Do(ctx, func() error {
		return s.store.Create(ctx, betaCode)
	})
	if err != nil {
		return nil, err
	}

	return betaCode, nil
}

func (s *BetaCodeService) GetCode(ctx context.Context, id string) (*models.BetaCode, error) {
	return s.store.FindByID(ctx, id)
}

func (s *BetaCodeService) ListCodes(ctx context.Context) ([]models.BetaCode, error) {
	return s.store.List(ctx)
}

// UpdateCode applies admin edits. Codes are never deleted; disabling is the
// terminal state.
func (s *BetaCodeService) UpdateCode(ctx context.Context, id string, updates map[string]interface{}) error {
	return s.store.Update(ctx, id, updates)
}

func (s *BetaCodeService) ListRedemptions(ctx context.Context, codeID uuid.UUID, limit, offset int) ([]models.BetaRedemption, error) {
	return s.store.ListRedemptions(ctx, codeID, limit, offset)
}

func (s *BetaCodeService) ListAllRedemptions(ctx context.Context, limit, offset int) ([]models.BetaRedemption, error) {
	return s.store.ListAllRedemptions(ctx, limit, offset)
}

// MembersAdmitted reports how many distinct identities hold beta access.
func (s *BetaCodeService) MembersAdmitted(ctx context.Context) (int64, error) {
	return s.store.CountRedemptions(ctx)
}

func (s *BetaCodeService) ProgramCap() int {
	return s.programCap
}

func (s *BetaCodeService) infraError(op string, err error) error {
	log.Error().Err(err).Str("op", op).Msg("beta code store failure")

	if errors.Is(err, storeguard.ErrRetryable) {
		return kindError(KindContention, retryMessage)
	}
	return kindError(KindStoreUnavailable, retryMessage)
}
