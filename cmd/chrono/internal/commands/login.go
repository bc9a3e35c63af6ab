package commands

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/zkardes/chrono-meister-sub000/internal/apierr"
)

type LoginCmd struct {
	Email    string `help:"Account email" required:""`
	Password string `help:"Account password (prompted when omitted)" env:"CHRONO_PASSWORD"`
}

func (l *LoginCmd) Run(ctx context.Context, globals *Globals) error {
	app, err := newApp(globals)
	if err != nil {
		return err
	}
	defer app.Close()

	password := l.Password
	if password == "" {
		fmt.Print("Password: ")
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil {
			return fmt.Errorf("failed to read password: %w", err)
		}
		password = strings.TrimSpace(line)
	}

	if err := app.manager.SignIn(ctx, l.Email, password); err != nil {
		return fmt.Errorf("%s", apierr.UserMessage("login", err))
	}

	sess := app.manager.Current()
	fmt.Printf("Signed in as %s (session valid until %s)\n",
		sess.Email, sess.ExpiresAt.Local().Format("15:04:05"))

	if diag := app.adapter.Diagnostics(); !diag.DurableAvailable {
		fmt.Println("Warning: durable storage is unavailable, the session will not survive this process.")
	}

	return nil
}
