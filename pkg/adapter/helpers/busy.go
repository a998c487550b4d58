package helpers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/rs/zerolog/log"

	"github.com/vmforge/pvmclient/pkg/adapter"
	"github.com/vmforge/pvmclient/pkg/entity"
	"github.com/vmforge/pvmclient/pkg/transport"
)

// Reason codes and message fragments the platform uses when a VIOS or
// the management service cannot take the request right now.
var busyMarkers = []string{
	"HSCL3205",
	"VIOS0014",
	"is busy processing",
	"currently too busy",
}

var errServerBusy = errors.New("server busy")

// BusyRetry retries a request when the server answers busy: HTTP 503, or
// an HttpErrorResponse carrying a known transient reason code. Backoff
// starts at delay and doubles per attempt. When retries are exhausted the
// last busy response is returned so normal status mapping applies.
func BusyRetry(maxRetries int, delay time.Duration) adapter.Helper {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	if delay <= 0 {
		delay = 5 * time.Second
	}

	return func(next adapter.RequestFunc) adapter.RequestFunc {
		return func(ctx context.Context, req *adapter.Request) (*transport.Response, error) {
			var resp *transport.Response
			err := retry.Do(
				func() error {
					r, err := next(ctx, req)
					if err != nil {
						return retry.Unrecoverable(err)
					}
					resp = r
					if isBusy(r) {
						return errServerBusy
					}
					return nil
				},
				retry.Context(ctx),
				retry.Attempts(uint(maxRetries)+1),
				retry.Delay(delay),
				retry.DelayType(retry.BackOffDelay),
				retry.LastErrorOnly(true),
				retry.OnRetry(func(n uint, err error) {
					log.Debug().
						Uint("attempt", n+1).
						Str("path", req.Path).
						Msg("server busy, retrying")
				}),
			)
			if err != nil {
				if errors.Is(err, errServerBusy) {
					return resp, nil
				}
				return nil, err
			}
			return resp, nil
		}
	}
}

func isBusy(resp *transport.Response) bool {
	if resp.Status == http.StatusServiceUnavailable {
		return true
	}
	if resp.Status < 500 || len(resp.Body) == 0 {
		return false
	}
	root, err := entity.ParseElement(resp.Body)
	if err != nil {
		return false
	}
	text := root.FindText(".//ReasonCode", "") + " " + root.FindText(".//Message", "")
	for _, marker := range busyMarkers {
		if strings.Contains(text, marker) {
			return true
		}
	}
	return false
}
