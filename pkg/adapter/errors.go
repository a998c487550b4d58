package adapter

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/vmforge/pvmclient/pkg/apperrors"
	"github.com/vmforge/pvmclient/pkg/entity"
	"github.com/vmforge/pvmclient/pkg/session"
	"github.com/vmforge/pvmclient/pkg/transport"
)

// Base adapter error
var (
	ErrAdapter apperrors.Error = apperrors.New("adapter error").SetStatusCode(http.StatusInternalServerError)
)

// Errors mapped from server response statuses. Callers match with
// errors.Is; the wrapped chain carries the server's message when one was
// parseable from the response body.
var (
	ErrNotFound             apperrors.Error = ErrAdapter.New("resource not found").SetStatusCode(http.StatusNotFound)
	ErrConflict             apperrors.Error = ErrAdapter.New("resource changed since it was read").SetStatusCode(http.StatusConflict)
	ErrValidation           apperrors.Error = ErrAdapter.New("request rejected by server").SetStatusCode(http.StatusBadRequest)
	ErrServer               apperrors.Error = ErrAdapter.New("server error").SetStatusCode(http.StatusInternalServerError)
	ErrMalformedResponse    apperrors.Error = ErrAdapter.New("unable to parse server response").SetStatusCode(http.StatusBadGateway)
	ErrPreconditionRequired apperrors.Error = ErrAdapter.New("ETag required for this operation").SetStatusCode(http.StatusPreconditionRequired)
	ErrNotModified          apperrors.Error = ErrAdapter.New("resource not modified").SetStatusCode(http.StatusNotModified)
	ErrInvalidPath          apperrors.Error = ErrAdapter.New("invalid resource path").SetStatusCode(http.StatusBadRequest)
)

// Session-level errors surfaced through adapter calls, re-exported so
// callers can match everything from one package.
var (
	ErrAuthentication = session.ErrAuthentication
	ErrConnectivity   = session.ErrConnectivity
)

// conflictError carries the server's current ETag alongside ErrConflict
// so a caller can re-read, merge, and retry without another round trip to
// discover the fresh tag.
type conflictError struct {
	currentETag string
}

func (e *conflictError) Error() string {
	if e.currentETag == "" {
		return "etag mismatch"
	}
	return fmt.Sprintf("etag mismatch, current etag is %s", e.currentETag)
}

// ConflictETag extracts the server's current ETag from an ErrConflict, or
// "" if the server did not report one.
func ConflictETag(err error) string {
	var ce *conflictError
	if errors.As(err, &ce) {
		return ce.currentETag
	}
	return ""
}

// checkResponse translates a non-2xx response into the error taxonomy.
// 2xx responses return nil.
func checkResponse(resp *transport.Response) error {
	switch {
	case resp.Status >= 200 && resp.Status < 300:
		return nil
	case resp.Status == http.StatusNotModified:
		return ErrNotModified
	case resp.Status == http.StatusNotFound:
		return ErrNotFound
	case resp.Status == http.StatusConflict || resp.Status == http.StatusPreconditionFailed:
		return conflict(resp)
	case resp.Status == http.StatusBadRequest || resp.Status == http.StatusUnprocessableEntity:
		if msg := serverMessage(resp.Body); msg != "" {
			return ErrValidation.Msg(msg).SetStatusCode(resp.Status)
		}
		return ErrValidation.SetStatusCode(resp.Status)
	default:
		msg := serverMessage(resp.Body)
		if msg == "" {
			msg = resp.Reason
		}
		return ErrServer.Msg(fmt.Sprintf("HTTP %d: %s", resp.Status, msg)).SetStatusCode(resp.Status)
	}
}

// conflict builds a conflict error carrying the current ETag header.
func conflict(resp *transport.Response) error {
	err := ErrConflict.Err(&conflictError{currentETag: resp.ETag()}).SetStatusCode(resp.Status)
	if msg := serverMessage(resp.Body); msg != "" {
		return err.Msg(msg)
	}
	return err
}

// serverMessage pulls the human-readable Message out of an
// HttpErrorResponse body when there is one.
func serverMessage(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	root, err := entity.ParseElement(body)
	if err != nil {
		return ""
	}
	// The Message may sit at the root of an HttpErrorResponse or be
	// nested inside an atom entry's content.
	return root.FindText(".//Message", "")
}
