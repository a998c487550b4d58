package cli

import (
	"fmt"
	"time"

	"github.com/vmforge/pvmclient/pkg/adapter"
	"github.com/vmforge/pvmclient/pkg/adapter/helpers"
	"github.com/vmforge/pvmclient/pkg/session"
)

// newAdapter builds an adapter over the configured endpoint with the
// standard helper chain: failure logging outermost, busy retry inside.
func newAdapter() (*adapter.Adapter, error) {
	cfg := GetConfig()
	if cfg == nil {
		return nil, fmt.Errorf("no configuration loaded")
	}
	sessCfg, err := cfg.SessionConfig()
	if err != nil {
		return nil, err
	}
	sess, err := session.New(sessCfg)
	if err != nil {
		return nil, err
	}
	return adapter.New(sess, adapter.WithHelpers(
		helpers.Log(3),
		helpers.BusyRetry(3, 5*time.Second),
	)), nil
}
