package commands

import (
	"context"
	"fmt"

	"github.com/zkardes/chrono-meister-sub000/internal/apierr"
)

type EmployeesCmd struct {
	Group string `help:"Filter by group id" default:""`
}

func (e *EmployeesCmd) Run(ctx context.Context, globals *Globals) error {
	app, err := newApp(globals)
	if err != nil {
		return err
	}
	defer app.Close()

	if _, err := app.requireSession(); err != nil {
		return err
	}

	employees, err := app.service.ListEmployees(ctx, e.Group)
	if err != nil {
		return fmt.Errorf("%s", apierr.UserMessage("employees", err))
	}

	if len(employees) == 0 {
		fmt.Println("No employees found.")
		return nil
	}

	fmt.Printf("%-36s %-24s %-30s %s\n", "ID", "Name", "Email", "Group")
	for _, emp := range employees {
		fmt.Printf("%-36s %-24s %-30s %s\n", emp.ID, emp.Name, emp.Email, emp.GroupID)
	}
	return nil
}

type GroupsCmd struct{}

func (g *GroupsCmd) Run(ctx context.Context, globals *Globals) error {
	app, err := newApp(globals)
	if err != nil {
		return err
	}
	defer app.Close()

	if _, err := app.requireSession(); err != nil {
		return err
	}

	groups, err := app.service.ListGroups(ctx)
	if err != nil {
		return fmt.Errorf("%s", apierr.UserMessage("groups", err))
	}

	if len(groups) == 0 {
		fmt.Println("No groups found.")
		return nil
	}

	fmt.Printf("%-36s %s\n", "ID", "Name")
	for _, group := range groups {
		fmt.Printf("%-36s %s\n", group.ID, group.Name)
	}
	return nil
}
