// Package workforce implements the time-tracking domain operations on
// top of the data API. Every remote call goes through the retry wrapper
// with the session guard as its precondition, so callers never see a
// transient auth failure that a refresh would have fixed.
package workforce

import (
	"context"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/zkardes/chrono-meister-sub000/internal/dataapi"
	"github.com/zkardes/chrono-meister-sub000/internal/retry"
)

// Table names on the data backend.
const (
	tableTimeEntries      = "time_entries"
	tableVacationRequests = "vacation_requests"
	tableEmployees        = "employees"
	tableGroups           = "groups"
)

// TimeEntry is one work interval. EndedAt is nil while the employee is
// clocked in.
type TimeEntry struct {
	ID         string     `json:"id"`
	EmployeeID string     `json:"employee_id"`
	StartedAt  time.Time  `json:"started_at"`
	EndedAt    *time.Time `json:"ended_at"`
	Note       string     `json:"note,omitempty"`
}

// Duration returns the entry length, measured to now for open entries.
func (e TimeEntry) Duration() time.Duration {
	if e.EndedAt == nil {
		return time.Since(e.StartedAt)
	}
	return e.EndedAt.Sub(e.StartedAt)
}

// Employee is a member of the workforce directory.
type Employee struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	GroupID string `json:"group_id"`
}

// Group is an organizational unit employees belong to.
type Group struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Service executes workforce operations. One instance is shared by all
// commands; it is safe for concurrent use.
type Service struct {
	data    *dataapi.Client
	guard   retry.Guard
	retries int
	logger  zerolog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithMaxRetries overrides the per-operation retry budget.
func WithMaxRetries(n int) Option {
	return func(s *Service) { s.retries = n }
}

// NewService creates a workforce service backed by the given data client
// and session guard.
func NewService(data *dataapi.Client, guard retry.Guard, opts ...Option) *Service {
	s := &Service{
		data:   data,
		guard:  guard,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) options(op string) retry.Options {
	return retry.Options{
		Op:         op,
		MaxRetries: s.retries,
		Logger:     s.logger,
	}
}

// eq builds a PostgREST equality filter value.
func eq(value string) string { return "eq." + value }

// run wraps a data API call that returns a value in the retry loop.
func run[T any](ctx context.Context, s *Service, op string, fn func(context.Context) (T, error)) (T, error) {
	return retry.Do(ctx, s.guard, fn, s.options(op))
}

// ListEmployees returns the directory, optionally filtered to one group.
func (s *Service) ListEmployees(ctx context.Context, groupID string) ([]Employee, error) {
	query := url.Values{"order": {"name.asc"}}
	if groupID != "" {
		query.Set("group_id", eq(groupID))
	}

	return run(ctx, s, "employees.list", func(ctx context.Context) ([]Employee, error) {
		var employees []Employee
		if err := s.data.Select(ctx, tableEmployees, query, &employees); err != nil {
			return nil, err
		}
		return employees, nil
	})
}

// GetEmployee returns a single employee by id.
func (s *Service) GetEmployee(ctx context.Context, id string) (*Employee, error) {
	query := url.Values{"id": {eq(id)}}

	return run(ctx, s, "employees.get", func(ctx context.Context) (*Employee, error) {
		var employee Employee
		if err := s.data.SelectOne(ctx, tableEmployees, query, &employee); err != nil {
			return nil, err
		}
		return &employee, nil
	})
}

// ListGroups returns all groups.
func (s *Service) ListGroups(ctx context.Context) ([]Group, error) {
	query := url.Values{"order": {"name.asc"}}

	return run(ctx, s, "groups.list", func(ctx context.Context) ([]Group, error) {
		var groups []Group
		if err := s.data.Select(ctx, tableGroups, query, &groups); err != nil {
			return nil, err
		}
		return groups, nil
	})
}
