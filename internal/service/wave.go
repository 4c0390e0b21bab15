package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/arkana-app/access-api/internal/config"
	"github.com/arkana-app/access-api/internal/models"
	"github.com/arkana-app/access-api/internal/repository"
	"github.com/arkana-app/access-api/internal/storeguard"
	"github.com/rs/zerolog/log"
)

// WaveMemberStore is the persistence surface the allocator needs.
type WaveMemberStore interface {
	CountByWave(ctx context.Context, wave int) (int64, error)
	CountAll(ctx context.Context) (int64, error)
	Create(ctx context.Context, member *models.WaveMember, maxSeats int) error
	List(ctx context.Context, limit, offset int) ([]models.WaveMember, error)
}

// WaveStatus describes one wave plus its live occupancy.
type WaveStatus struct {
	Number    int     `json:"number"`
	Label     string  `json:"label,omitempty"`
	PriceUSD  float64 `json:"price_usd"`
	MaxSeats  int     `json:"max_seats"` // 0 = unbounded
	Taken     int64   `json:"taken"`
	Remaining int64   `json:"remaining"` // -1 = unbounded
}

type WaveService struct {
	store WaveMemberStore
	guard *storeguard.Guard
	waves []config.WaveConfig
}

func NewWaveService(store WaveMemberStore, guard *storeguard.Guard, waves []config.WaveConfig) *WaveService {
	return &WaveService{
		store: store,
		guard: guard,
		waves: waves,
	}
}

// CurrentWave returns the lowest-numbered wave with seats left, counting
// fresh every time - waves fill strictly in order, with no backfilling of
// an earlier full wave and no skipping ahead. Nil means fully sold out.
func (s *WaveService) CurrentWave(ctx context.Context) (*WaveStatus, error) {
	for _, wave := range s.waves {
		var taken int64
		err := s.guard.Do(ctx, func() error {
			var err error
			taken, err = s.store.CountByWave(ctx, wave.Number)
			return err
		})
		if err != nil {
			return nil, s.infraError("wave count", err)
		}

		if wave.MaxSeats == 0 {
			return &WaveStatus{
				Number:    wave.Number,
				Label:     wave.Label,
				PriceUSD:  wave.PriceUSD,
				MaxSeats:  0,
				Taken:     taken,
				Remaining: -1,
			}, nil
		}

		if taken < int64(wave.MaxSeats) {
			return &WaveStatus{
				Number:    wave.Number,
				Label:     wave.Label,
				PriceUSD:  wave.PriceUSD,
				MaxSeats:  wave.MaxSeats,
				Taken:     taken,
				Remaining: int64(wave.MaxSeats) - taken,
			}, nil
		}
	}

	return nil, nil
}

// AllWaves returns every wave with live occupancy, for the admin surface.
func (s *WaveService) AllWaves(ctx context.Context) ([]WaveStatus, error) {
	statuses := make([]WaveStatus, 0, len(s.waves))

	for _, wave := range s.waves {
		taken, err := s.store.CountByWave(ctx, wave.Number)
		if err != nil {
			return nil, s.infraError("wave count", err)
		}

		remaining := int64(-1)
		if wave.MaxSeats > 0 {
			remaining = int64(wave.MaxSeats) - taken
			if remaining < 0 {
				remaining = 0
			}
		}

		statuses = append(statuses, WaveStatus{
			Number:    wave.Number,
			Label:     wave.Label,
			PriceUSD:  wave.PriceUSD,
			MaxSeats:  wave.MaxSeats,
			Taken:     taken,
			Remaining: remaining,
		})
	}

	return statuses, nil
}

// Allocate places a signup into the requested wave. The open wave is
// re-derived on every call; a request against any other wave is rejected
// with the actual open wave named in the message, never silently
// reassigned. Capacity is re-validated inside the insert transaction, so
// the final seat of a wave cannot be double-sold.
func (s *WaveService) Allocate(ctx context.Context, email, name string, requestedWave int) (*models.WaveMember, error) {
	email = NormalizeEmail(email)

	current, err := s.CurrentWave(ctx)
	if err != nil {
		return nil, err
	}

	if current == nil {
		return nil, kindError(KindWaveClosed, "All waves are sold out.")
	}

	if current.Number != requestedWave {
		return nil, kindError(KindWaveClosed, fmt.Sprintf(
			"Wave %d is not open. The current wave is %d at $%.2f - retry against that wave.",
			requestedWave, current.Number, current.PriceUSD,
		))
	}

	waveCfg := s.waves[current.Number]
	member := &models.WaveMember{
		Email:    email,
		Name:     name,
		Wave:     waveCfg.Number,
		PriceUSD: waveCfg.PriceUSD,
	}

	err = s.guard.Do(ctx, func() error {
		return s.store.Create(ctx, member, waveCfg.MaxSeats)
	})
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, kindError(KindDuplicateEmail, "This email is already on the list.")
		}
		if errors.Is(err, repository.ErrWaveFull) {
			// Lost the race for the last seat.
			return nil, kindError(KindWaveClosed, fmt.Sprintf(
				"Wave %d just filled up. Check the current wave and retry.", requestedWave,
			))
		}
		return nil, s.infraError("member insert", err)
	}

	return member, nil
}

func (s *WaveService) ListMembers(ctx context.Context, limit, offset int) ([]models.WaveMember, error) {
	return s.store.List(ctx, limit, offset)
}

func (s *WaveService) TotalMembers(ctx context.Context) (int64, error) {
	return s.store.CountAll(ctx)
}

func (s *WaveService) infraError(op string, err error) error {
	log.Error().Err(err).Str("op", op).Msg("wave store failure")

	if errors.Is(err, storeguard.ErrRetryable) {
		return kindError(KindContention, retryMessage)
	}
	return kindError(KindStoreUnavailable, retryMessage)
}
