package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/zkardes/chrono-meister-sub000/internal/session"
)

type StatusCmd struct{}

func (s *StatusCmd) Run(ctx context.Context, globals *Globals) error {
	app, err := newApp(globals)
	if err != nil {
		return err
	}
	defer app.Close()

	fmt.Printf("Server:  %s\n", app.cfg.ServerURL)
	fmt.Printf("Storage: %s\n", storageLine(app))

	current := app.manager.Current()
	if current == nil {
		fmt.Println("Session: none, not signed in")
		return nil
	}

	state := app.manager.State(app.guard.Margin())
	fmt.Printf("Session: %s, account %s\n", stateToString(state), current.Email)

	ttl := current.TimeUntilExpiry().Truncate(time.Second)
	if ttl > 0 {
		fmt.Printf("Expires: in %s (%s)\n", ttl, current.ExpiresAt.Local().Format(time.RFC3339))
	} else {
		fmt.Printf("Expires: %s ago\n", (-ttl).Truncate(time.Second))
	}

	return nil
}

func storageLine(app *app) string {
	diag := app.adapter.Diagnostics()
	switch {
	case diag.PrivateModeSuspected:
		return fmt.Sprintf("%s (restricted, memory only)", app.cfg.Storage)
	case !diag.DurableAvailable:
		return fmt.Sprintf("%s (unavailable)", app.cfg.Storage)
	default:
		return fmt.Sprintf("%s (%d entries)", app.cfg.Storage, diag.DurableEntries)
	}
}

func stateToString(state session.State) string {
	switch state {
	case session.StateValid:
		return "valid"
	case session.StateNearExpiry:
		return "near expiry"
	case session.StateRefreshing:
		return "refreshing"
	case session.StateExpired:
		return "expired"
	default:
		return "none"
	}
}
