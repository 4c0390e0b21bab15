package service

import (
	"context"
	"time"

	"github.com/arkana-app/access-api/internal/repository"
)

type AnalyticsService struct {
	logs  *repository.RequestLogRepository
	beta  *BetaCodeService
	waves *WaveService
}

func NewAnalyticsService(logs *repository.RequestLogRepository, beta *BetaCodeService, waves *WaveService) *AnalyticsService {
	return &AnalyticsService{
		logs:  logs,
		beta:  beta,
		waves: waves,
	}
}

// Holds the admin dashboard summary
type AnalyticsSummary struct {
	TotalRequests   int64                    `json:"total_requests"`
	AvgResponseTime float64                  `json:"avg_response_time_ms"`
	ErrorRate       float64                  `json:"error_rate"`
	ClientErrorRate float64                  `json:"client_error_rate"`
	ServerErrorRate float64                  `json:"server_error_rate"`
	TopEndpoints    []map[string]interface{} `json:"top_endpoints"`

	MembersAdmitted int64        `json:"members_admitted"`
	ProgramCap      int          `json:"program_cap"`
	Waves           []WaveStatus `json:"waves"`
	TotalSignups    int64        `json:"total_signups"`
}

// Retrieves the summary for a time range: request traffic from the
// request log plus live beta/wave occupancy.
func (s *AnalyticsService) GetSummary(ctx context.Context, from, to time.Time) (*AnalyticsSummary, error) {
	summary := &AnalyticsSummary{ProgramCap: s.beta.ProgramCap()}

	totalRequests, err := s.logs.CountByTimeRange(ctx, from, to)
	if err != nil {
		return nil, err
	}
	summary.TotalRequests = totalRequests

	if totalRequests > 0 {
		avgResponseTime, err := s.logs.GetAverageResponseTime(ctx, from, to)
		if err != nil {
			return nil, err
		}
		summary.AvgResponseTime = avgResponseTime

		clientErrors, err := s.logs.CountByStatusCodeRange(ctx, 400, 499, from, to)
		if err != nil {
			return nil, err
		}

		serverErrors, err := s.logs.CountByStatusCodeRange(ctx, 500, 599, from, to)
		if err != nil {
			return nil, err
		}

		totalErrors := clientErrors + serverErrors
		summary.ErrorRate = (float64(totalErrors) / float64(totalRequests)) * 100
		summary.ClientErrorRate = (float64(clientErrors) / float64(totalRequests)) * 100
		summary.ServerErrorRate = (float64(serverErrors) / float64(totalRequests)) * 100

		topEndpoints, err := s.logs.GetTopEndpoints(ctx, from, to, 10)
		if err != nil {
			return nil, err
		}
		summary.TopEndpoints = topEndpoints
	}

	admitted, err := s.beta.MembersAdmitted(ctx)
	if err != nil {
		return nil, err
	}
	summary.MembersAdmitted = admitted

	waves, err := s.waves.AllWaves(ctx)
	if err != nil {
		return nil, err
	}
	summary.Waves = waves

	signups, err := s.waves.TotalMembers(ctx)
	if err != nil {
		return nil, err
	}
	summary.TotalSignups = signups

	return summary, nil
}

// Deletes request logs older than the retention period
func (s *AnalyticsService) CleanupOldLogs(ctx context.Context, retentionDays int) (int64, error) {
	cutOffDate := time.Now().AddDate(0, 0, -retentionDays)
	return s.logs.DeleteOldLogs(ctx, cutOffDate)
}
