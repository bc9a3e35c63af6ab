package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/zkardes/chrono-meister-sub000/internal/session"
)

type MonitorCmd struct {
	Interval time.Duration `help:"Poll interval" default:"60s"`
	Window   time.Duration `help:"Proactive refresh window" default:"5m"`
}

func (m *MonitorCmd) Run(ctx context.Context, globals *Globals) error {
	app, err := newApp(globals)
	if err != nil {
		return err
	}
	defer app.Close()

	if _, err := app.requireSession(); err != nil {
		return err
	}

	fmt.Printf("Watching session health every %s (press Ctrl+C to stop)\n", m.Interval)

	unsubscribe := app.manager.Subscribe(func(event session.Event) {
		stamp := time.Now().Format("15:04:05")
		switch event.Type {
		case session.SessionEstablished:
			fmt.Printf("%s session established\n", stamp)
		case session.SessionRefreshed:
			fmt.Printf("%s session refreshed, valid until %s\n",
				stamp, event.Session.ExpiresAt.Local().Format("15:04:05"))
		case session.SessionCleared:
			fmt.Printf("%s session cleared\n", stamp)
		}
	})
	defer unsubscribe()

	monitor := session.NewMonitor(app.manager,
		session.WithPollInterval(m.Interval),
		session.WithWarningWindow(m.Window),
		session.WithMonitorLogger(app.logger),
	)

	// Set up context for graceful shutdown
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Handle interrupts
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("Received interrupt signal, shutting down...")
		cancel()
	}()

	monitor.Start(ctx)
	<-ctx.Done()
	monitor.Stop()

	return nil
}
