package handler

import (
	"net/http"
	"testing"

	"github.com/arkana-app/access-api/internal/service"
)

func TestStatusForKind(t *testing.T) {
	cases := []struct {
		kind service.ErrorKind
		want int
	}{
		{service.KindInvalidCode, http.StatusBadRequest},
		{service.KindCodeDisabled, http.StatusForbidden},
		{service.KindCodeExpired, http.StatusGone},
		{service.KindUsageLimitReached, http.StatusConflict},
		{service.KindAlreadyRedeemed, http.StatusConflict},
		{service.KindBetaFull, http.StatusForbidden},
		{service.KindWaveClosed, http.StatusConflict},
		{service.KindDuplicateEmail, http.StatusConflict},
		{service.KindRateLimitExceeded, http.StatusTooManyRequests},
		{service.KindStoreUnavailable, http.StatusServiceUnavailable},
		{service.KindContention, http.StatusServiceUnavailable},
		{service.ErrorKind("SOMETHING_NEW"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		if got := statusForKind(tc.kind); got != tc.want {
			t.Errorf("statusForKind(%s) = %d, want %d", tc.kind, got, tc.want)
		}
	}
}
