package healthclient

import (
	"net/http"
	"testing"
)

func TestAcceptStatusCodes(t *testing.T) {
	cases := []struct {
		code int
		want bool
	}{
		{http.StatusOK, true},
		{http.StatusNotFound, true},
		{http.StatusInternalServerError, false},
		{http.StatusServiceUnavailable, false},
		{http.StatusBadGateway, false},
	}
	for _, tc := range cases {
		if got := acceptStatusCodes[tc.code]; got != tc.want {
			t.Errorf("acceptStatusCodes[%d] = %v, want %v", tc.code, got, tc.want)
		}
	}
}
