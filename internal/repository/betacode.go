package repository

import (
	"context"
	"errors"
	"time"

	"github.com/arkana-app/access-api/internal/models"
	"github.com/arkana-app/access-api/internal/storage"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	// ErrUsesExhausted means the conditional increment matched no rows:
	// the code hit max_uses (possibly between our read and the update).
	ErrUsesExhausted = errors.New("beta code uses exhausted")

	// ErrDuplicateRedemption means the unique (code_id, redeemer_email)
	// constraint rejected the insert.
	ErrDuplicateRedemption = errors.New("code already redeemed by this email")

	// ErrBetaFull means the in-transaction member recount found the
	// program at its global cap.
	ErrBetaFull = errors.New("beta program is full")
)

// Lock key for the global program cap, under the same advisory namespace
// as wave allocation. Negative so it can't collide with wave numbers.
const betaProgramLockKey = -1

type BetaCodeRepository struct {
	db *storage.Postgres
}

func NewBetaCodeRepository(db *storage.Postgres) *BetaCodeRepository {
	return &BetaCodeRepository{db: db}
}

func (r *BetaCodeRepository) Create(ctx context.Context, code *models.BetaCode) error {
	return r.db.DB.WithContext(ctx).Create(code).Error
}

func (r *BetaCodeRepository) FindByCode(ctx context.Context, code string) (*models.BetaCode, error) {
	var betaCode models.BetaCode
	err := r.db.DB.WithContext(ctx).
		Where("code = ?", code).
		First(&betaCode).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}

	return &betaCode, err
}

func (r *BetaCodeRepository) FindByID(ctx context.Context, id string) (*models.BetaCode, error) {
	var betaCode models.BetaCode
	err := r.db.DB.WithContext(ctx).
		Where("id = ?", id).
		First(&betaCode).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}

	return &betaCode, err
}

func (r *BetaCodeRepository) List(ctx context.Context) ([]models.BetaCode, error) {
	var codes []models.BetaCode
	err := r.db.DB.WithContext(ctx).
		Order("created_at DESC").
		Find(&codes).Error

	return codes, err
}

func (r *BetaCodeRepository) Update(ctx context.Context, id string, updates map[string]interface{}) error {
	return r.db.DB.WithContext(ctx).
		Model(&models.BetaCode{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *BetaCodeRepository) HasRedemption(ctx context.Context, codeID uuid.UUID, email string) (bool, error) {
	var count int64
	err := r.db.DB.WithContext(ctx).
		Model(&models.BetaRedemption{}).
		Where("code_id = ? AND redeemer_email = ?", codeID, email).
		Count(&count).Error

	return count > 0, err
}

// CountRedemptions returns the number of distinct identities holding
// redemptions - the number of members admitted to the beta program. One
// email redeeming several codes is still one member.
func (r *BetaCodeRepository) CountRedemptions(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.DB.WithContext(ctx).
		Model(&models.BetaRedemption{}).
		Distinct("redeemer_email").
		Count(&count).Error

	return count, err
}

// Consume atomically spends one use of the code and records the
// redemption. The increment is a conditional update checked by affected
// rows, so two simultaneous redemptions of the last use cannot both
// succeed; the redemption insert rides in the same transaction and is
// backed by the (code_id, redeemer_email) unique index. The global
// program cap is re-validated under an advisory lock before commit, so
// concurrent redemptions of different codes cannot pass the cap check
// together and oversubscribe the program.
func (r *BetaCodeRepository) Consume(ctx context.Context, codeID uuid.UUID, email, name, tier string, programCap int) (*models.BetaRedemption, error) {
	redemption := &models.BetaRedemption{
		CodeID:        codeID,
		RedeemerEmail: email,
		RedeemerName:  name,
		Tier:          tier,
		RedeemedAt:    time.Now().UTC(),
	}

	err := r.db.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("SELECT pg_advisory_xact_lock(?, ?)", advisoryLockNamespace, betaProgramLockKey).Error; err != nil {
			return err
		}

		result := tx.Model(&models.BetaCode{}).
			Where("id = ? AND current_uses < max_uses", codeID).
			Update("current_uses", gorm.Expr("current_uses + 1"))

		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrUsesExhausted
		}

		if err := tx.Create(redemption).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrDuplicateRedemption
			}
			return err
		}

		// Recount with the new row in place. Counting distinct emails
		// means a member's repeat redemption of another code never
		// pushes the program over its cap.
		var members int64
		if err := tx.Model(&models.BetaRedemption{}).
			Distinct("redeemer_email").
			Count(&members).Error; err != nil {
			return err
		}
		if members > int64(programCap) {
			return ErrBetaFull
		}

		return nil
	})

	if err != nil {
		return nil, classify(err)
	}

	return redemption, nil
}

func (r *BetaCodeRepository) ListRedemptions(ctx context.Context, codeID uuid.UUID, limit, offset int) ([]models.BetaRedemption, error) {
	var redemptions []models.BetaRedemption
	err := r.db.DB.WithContext(ctx).
		Where("code_id = ?", codeID).
		Order("redeemed_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&redemptions).Error

	return redemptions, err
}

func (r *BetaCodeRepository) ListAllRedemptions(ctx context.Context, limit, offset int) ([]models.BetaRedemption, error) {
	var redemptions []models.BetaRedemption
	err := r.db.DB.WithContext(ctx).
		Order("redeemed_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&redemptions).Error

	return redemptions, err
}
