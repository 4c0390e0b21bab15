package repository

import (
	"context"
	"errors"

	"github.com/arkana-app/access-api/internal/models"
	"github.com/arkana-app/access-api/internal/storage"
	"gorm.io/gorm"
)

var (
	// ErrDuplicateEmail means the unique email constraint rejected the
	// signup.
	ErrDuplicateEmail = errors.New("email already registered")

	// ErrWaveFull means the in-transaction seat recount found the wave at
	// capacity.
	ErrWaveFull = errors.New("wave is full")
)

// Advisory lock namespace for capacity checks (wave seats, the beta
// program cap), so locks don't collide with any other pg_advisory users
// on the same database.
const advisoryLockNamespace = 0x41524b41 // "ARKA"

type WaveMemberRepository struct {
	db *storage.Postgres
}

func NewWaveMemberRepository(db *storage.Postgres) *WaveMemberRepository {
	return &WaveMemberRepository{db: db}
}

func (r *WaveMemberRepository) CountByWave(ctx context.Context, wave int) (int64, error) {
	var count int64
	err := r.db.DB.WithContext(ctx).
		Model(&models.WaveMember{}).
		Where("wave = ?", wave).
		Count(&count).Error

	return count, err
}

func (r *WaveMemberRepository) CountAll(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.DB.WithContext(ctx).
		Model(&models.WaveMember{}).
		Count(&count).Error

	return count, err
}

// Create inserts a member into a wave, holding a per-wave advisory lock
// while it re-validates capacity. Serializing the count-then-insert on the
// lock means two concurrent signups for the last seat cannot both pass the
// capacity check. maxSeats <= 0 means the wave is unbounded.
func (r *WaveMemberRepository) Create(ctx context.Context, member *models.WaveMember, maxSeats int) error {
	return classify(r.db.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if maxSeats > 0 {
			if err := tx.Exec("SELECT pg_advisory_xact_lock(?, ?)", advisoryLockNamespace, member.Wave).Error; err != nil {
				return err
			}

			var count int64
			if err := tx.Model(&models.WaveMember{}).
				Where("wave = ?", member.Wave).
				Count(&count).Error; err != nil {
				return err
			}

			if count >= int64(maxSeats) {
				return ErrWaveFull
			}
		}

		if err := tx.Create(member).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrDuplicateEmail
			}
			return err
		}

		return nil
	}))
}

func (r *WaveMemberRepository) List(ctx context.Context, limit, offset int) ([]models.WaveMember, error) {
	var members []models.WaveMember
	err := r.db.DB.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&members).Error

	return members, err
}
