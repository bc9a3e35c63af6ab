package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/zkardes/chrono-meister-sub000/internal/apierr"
	"github.com/zkardes/chrono-meister-sub000/internal/workforce"
)

type VacationCmd struct {
	Request VacationRequestCmd `cmd:"" help:"File a vacation request"`
	List    VacationListCmd    `cmd:"" help:"List your vacation requests"`
	Review  VacationReviewCmd  `cmd:"" help:"Approve or reject a request"`
}

type VacationRequestCmd struct {
	From   string `help:"First day (YYYY-MM-DD)" required:""`
	To     string `help:"Last day (YYYY-MM-DD)" required:""`
	Reason string `help:"Optional reason" default:""`
}

func (v *VacationRequestCmd) Run(ctx context.Context, globals *Globals) error {
	app, err := newApp(globals)
	if err != nil {
		return err
	}
	defer app.Close()

	current, err := app.requireSession()
	if err != nil {
		return err
	}

	start, err := time.Parse("2006-01-02", v.From)
	if err != nil {
		return fmt.Errorf("invalid --from day: %w", err)
	}
	end, err := time.Parse("2006-01-02", v.To)
	if err != nil {
		return fmt.Errorf("invalid --to day: %w", err)
	}

	req, err := app.service.RequestVacation(ctx, current.UserID, start, end, v.Reason)
	if err != nil {
		return fmt.Errorf("%s", apierr.UserMessage("vacation request", err))
	}

	fmt.Printf("Requested %s to %s (%s)\n", req.StartDay, req.EndDay, req.Status)
	return nil
}

type VacationListCmd struct{}

func (v *VacationListCmd) Run(ctx context.Context, globals *Globals) error {
	app, err := newApp(globals)
	if err != nil {
		return err
	}
	defer app.Close()

	current, err := app.requireSession()
	if err != nil {
		return err
	}

	requests, err := app.service.ListVacations(ctx, current.UserID)
	if err != nil {
		return fmt.Errorf("%s", apierr.UserMessage("vacation list", err))
	}

	if len(requests) == 0 {
		fmt.Println("No vacation requests.")
		return nil
	}

	fmt.Printf("%-36s %-11s %-11s %-9s %s\n", "ID", "From", "To", "Status", "Reason")
	for _, req := range requests {
		fmt.Printf("%-36s %-11s %-11s %-9s %s\n", req.ID, req.StartDay, req.EndDay, req.Status, req.Reason)
	}
	return nil
}

type VacationReviewCmd struct {
	ID      string `help:"Request id" required:""`
	Approve bool   `help:"Approve the request" xor:"decision" required:""`
	Reject  bool   `help:"Reject the request" xor:"decision"`
}

func (v *VacationReviewCmd) Run(ctx context.Context, globals *Globals) error {
	app, err := newApp(globals)
	if err != nil {
		return err
	}
	defer app.Close()

	if _, err := app.requireSession(); err != nil {
		return err
	}

	status := workforce.VacationApproved
	if v.Reject {
		status = workforce.VacationRejected
	}

	req, err := app.service.SetVacationStatus(ctx, v.ID, status)
	if err != nil {
		return fmt.Errorf("%s", apierr.UserMessage("vacation review", err))
	}

	fmt.Printf("Request %s is now %s\n", req.ID, req.Status)
	return nil
}
