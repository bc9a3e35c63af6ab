package main

import (
	"context"

	"github.com/alecthomas/kong"
	"github.com/zkardes/chrono-meister-sub000/cmd/chrono/internal/commands"
)

var (
	version = "dev"
	cli     struct {
		Init      commands.InitCmd      `cmd:"" help:"Write the configuration file"`
		Login     commands.LoginCmd     `cmd:"" help:"Sign in and persist the session"`
		Logout    commands.LogoutCmd    `cmd:"" help:"Sign out and clear the session"`
		Status    commands.StatusCmd    `cmd:"" help:"Show session and storage health"`
		Clock     commands.ClockCmd     `cmd:"" help:"Clock in and out"`
		Vacation  commands.VacationCmd  `cmd:"" help:"Manage vacation requests"`
		Employees commands.EmployeesCmd `cmd:"" help:"List employees"`
		Groups    commands.GroupsCmd    `cmd:"" help:"List groups"`
		Monitor   commands.MonitorCmd   `cmd:"" help:"Watch session health"`
		Debug     bool                  `help:"Enable debug mode."`
		Version   kong.VersionFlag
	}
)

func main() {
	ctx := context.Background()
	cmd := kong.Parse(&cli,
		kong.Vars{
			"version": version,
		},
		kong.BindTo(ctx, (*context.Context)(nil)))
	err := cmd.Run(&commands.Globals{Debug: cli.Debug, Version: version})
	cmd.FatalIfErrorf(err)
}
