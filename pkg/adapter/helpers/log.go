// Package helpers provides reusable adapter helper-chain members: failure
// logging with request/response capture, and retry on server-busy
// responses.
package helpers

import (
	"context"
	"net/http"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/vmforge/pvmclient/pkg/adapter"
	"github.com/vmforge/pvmclient/pkg/transport"
)

const sensitivePlaceholder = "<sensitive>"

// exchange is one captured request/response pair.
type exchange struct {
	method  string
	path    string
	query   string
	reqBody string
	status  int
	reason  string
}

// Log captures the most recent maxPairs exchanges and dumps them through
// zerolog at error level when a call fails, giving the failure its
// immediate history. Precondition failures (412) are an expected part of
// the optimistic concurrency protocol and are not dumped. Each Log value
// owns its own buffer; share one helper across calls whose history
// belongs together.
func Log(maxPairs int) adapter.Helper {
	if maxPairs <= 0 {
		maxPairs = 3
	}
	var mu sync.Mutex
	var buf []*exchange

	return func(next adapter.RequestFunc) adapter.RequestFunc {
		return func(ctx context.Context, req *adapter.Request) (*transport.Response, error) {
			ex := &exchange{
				method: req.Method,
				path:   req.Path,
				query:  req.Query.Encode(),
			}
			if req.Sensitive {
				ex.reqBody = sensitivePlaceholder
			} else if len(req.Body) > 0 {
				ex.reqBody = string(req.Body)
			}

			mu.Lock()
			buf = append(buf, ex)
			if len(buf) > maxPairs {
				buf = buf[len(buf)-maxPairs:]
			}
			mu.Unlock()

			resp, err := next(ctx, req)
			if resp != nil {
				ex.status = resp.Status
				ex.reason = resp.Reason
			}

			if failed(resp, err) {
				mu.Lock()
				dump := buf
				buf = nil
				mu.Unlock()
				for i, e := range dump {
					log.Error().
						Int("n", i-len(dump)+1).
						Str("method", e.method).
						Str("path", e.path).
						Str("query", e.query).
						Str("body", e.reqBody).
						Int("status", e.status).
						Str("reason", e.reason).
						Msg("request history before failure")
				}
			}
			return resp, err
		}
	}
}

func failed(resp *transport.Response, err error) bool {
	if err != nil {
		return true
	}
	if resp == nil {
		return false
	}
	if resp.Status == http.StatusPreconditionFailed || resp.Status == http.StatusNotModified {
		return false
	}
	return resp.Status >= 400
}
