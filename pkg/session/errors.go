package session

import (
	"net/http"

	"github.com/vmforge/pvmclient/pkg/apperrors"
)

// Base session error
var (
	ErrSession apperrors.Error = apperrors.New("session error").SetStatusCode(http.StatusInternalServerError)
)

// Authentication errors
var (
	ErrAuthentication apperrors.Error = ErrSession.New("authentication failed").SetStatusCode(http.StatusUnauthorized)
	ErrNotLoggedOn    apperrors.Error = ErrSession.New("session has not logged on")
	ErrReloginUnsafe  apperrors.Error = ErrAuthentication.New("re-login disabled to avoid account lockout")
)

// Connectivity errors. ErrTLS and ErrTimeout both match ErrConnectivity,
// so callers can treat them uniformly or distinguish as needed.
var (
	ErrConnectivity apperrors.Error = ErrSession.New("unable to reach management endpoint").SetStatusCode(http.StatusBadGateway)
	ErrTLS          apperrors.Error = ErrConnectivity.New("TLS negotiation failed")
	ErrTimeout      apperrors.Error = ErrConnectivity.New("request timed out").SetStatusCode(http.StatusGatewayTimeout)
)

// Configuration errors
var (
	ErrInvalidConfig apperrors.Error = ErrSession.New("invalid session configuration").SetStatusCode(http.StatusBadRequest)
)
