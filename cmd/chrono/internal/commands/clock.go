package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/zkardes/chrono-meister-sub000/internal/apierr"
	"github.com/zkardes/chrono-meister-sub000/internal/workforce"
)

type ClockCmd struct {
	In   ClockInCmd   `cmd:"" help:"Open a time entry"`
	Out  ClockOutCmd  `cmd:"" help:"Close the open time entry"`
	Show ClockShowCmd `cmd:"" help:"Show the open time entry"`
	List ClockListCmd `cmd:"" help:"List recent time entries"`
}

type ClockInCmd struct {
	Note string `help:"Optional note for the entry" default:""`
}

func (c *ClockInCmd) Run(ctx context.Context, globals *Globals) error {
	app, err := newApp(globals)
	if err != nil {
		return err
	}
	defer app.Close()

	current, err := app.requireSession()
	if err != nil {
		return err
	}

	entry, err := app.service.ClockIn(ctx, current.UserID, c.Note)
	if err != nil {
		return clockError("clock in", err)
	}

	fmt.Printf("Clocked in at %s\n", entry.StartedAt.Local().Format("15:04:05"))
	return nil
}

type ClockOutCmd struct{}

func (c *ClockOutCmd) Run(ctx context.Context, globals *Globals) error {
	app, err := newApp(globals)
	if err != nil {
		return err
	}
	defer app.Close()

	current, err := app.requireSession()
	if err != nil {
		return err
	}

	entry, err := app.service.ClockOut(ctx, current.UserID)
	if err != nil {
		return clockError("clock out", err)
	}

	fmt.Printf("Clocked out after %s\n", entry.Duration().Truncate(time.Second))
	return nil
}

type ClockShowCmd struct{}

func (c *ClockShowCmd) Run(ctx context.Context, globals *Globals) error {
	app, err := newApp(globals)
	if err != nil {
		return err
	}
	defer app.Close()

	current, err := app.requireSession()
	if err != nil {
		return err
	}

	entry, err := app.service.OpenEntry(ctx, current.UserID)
	if err != nil {
		return clockError("show entry", err)
	}
	if entry == nil {
		fmt.Println("Not clocked in.")
		return nil
	}

	fmt.Printf("Clocked in since %s (%s)\n",
		entry.StartedAt.Local().Format("15:04:05"),
		entry.Duration().Truncate(time.Second))
	if entry.Note != "" {
		fmt.Printf("Note: %s\n", entry.Note)
	}
	return nil
}

type ClockListCmd struct {
	Days int `help:"How many days back to list" default:"7"`
}

func (c *ClockListCmd) Run(ctx context.Context, globals *Globals) error {
	app, err := newApp(globals)
	if err != nil {
		return err
	}
	defer app.Close()

	current, err := app.requireSession()
	if err != nil {
		return err
	}

	to := time.Now()
	from := to.AddDate(0, 0, -c.Days)

	entries, err := app.service.ListEntries(ctx, current.UserID, from, to)
	if err != nil {
		return clockError("list entries", err)
	}

	if len(entries) == 0 {
		fmt.Printf("No entries in the last %d days.\n", c.Days)
		return nil
	}

	fmt.Printf("%-11s %-9s %-9s %-10s %s\n", "Day", "Start", "End", "Duration", "Note")
	var total time.Duration
	for _, entry := range entries {
		end := "open"
		if entry.EndedAt != nil {
			end = entry.EndedAt.Local().Format("15:04:05")
		}
		total += entry.Duration()
		fmt.Printf("%-11s %-9s %-9s %-10s %s\n",
			entry.StartedAt.Local().Format("2006-01-02"),
			entry.StartedAt.Local().Format("15:04:05"),
			end,
			entry.Duration().Truncate(time.Second),
			entry.Note)
	}
	fmt.Printf("\nTotal: %s over %d entries\n", total.Truncate(time.Second), len(entries))
	return nil
}

// clockError keeps domain sentinels readable and converts everything
// else to the user-facing form.
func clockError(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case isSentinel(err):
		return err
	default:
		return fmt.Errorf("%s", apierr.UserMessage(op, err))
	}
}

func isSentinel(err error) bool {
	return errors.Is(err, workforce.ErrAlreadyClockedIn) || errors.Is(err, workforce.ErrNotClockedIn)
}
