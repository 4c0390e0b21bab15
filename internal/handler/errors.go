package handler

import (
	"net/http"

	"github.com/arkana-app/access-api/internal/service"
)

// statusForKind maps an access-control outcome to an HTTP status.
// Validation kinds are client-facing 4xx; infrastructure kinds surface as
// 503 with a generic message.
func statusForKind(kind service.ErrorKind) int {
	switch kind {
	case service.KindInvalidCode:
		return http.StatusBadRequest
	case service.KindCodeDisabled, service.KindBetaFull:
		return http.StatusForbidden
	case service.KindCodeExpired:
		return http.StatusGone
	case service.KindUsageLimitReached, service.KindAlreadyRedeemed,
		service.KindWaveClosed, service.KindDuplicateEmail:
		return http.StatusConflict
	case service.KindRateLimitExceeded:
		return http.StatusTooManyRequests
	case service.KindStoreUnavailable, service.KindContention:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
