package commands

import (
	"context"
	"fmt"
)

type LogoutCmd struct{}

func (l *LogoutCmd) Run(ctx context.Context, globals *Globals) error {
	app, err := newApp(globals)
	if err != nil {
		return err
	}
	defer app.Close()

	if err := app.manager.SignOut(ctx); err != nil {
		// Local state is already cleared; the remote invalidation is
		// best effort.
		app.logger.Warn().Err(err).Msg("remote sign out failed")
	}

	fmt.Println("Signed out.")
	return nil
}
