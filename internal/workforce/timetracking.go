package workforce

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/zkardes/chrono-meister-sub000/internal/apierr"
)

// ErrAlreadyClockedIn is returned by ClockIn when an open entry exists.
var ErrAlreadyClockedIn = errors.New("an open time entry already exists")

// ErrNotClockedIn is returned by ClockOut when no entry is open.
var ErrNotClockedIn = errors.New("no open time entry")

// ClockIn opens a new time entry for the employee. At most one entry may
// be open at a time; the check and the insert are separate requests, so
// a race between two clients surfaces as a Conflict from the backend's
// partial unique index rather than ErrAlreadyClockedIn.
func (s *Service) ClockIn(ctx context.Context, employeeID, note string) (*TimeEntry, error) {
	open, err := s.OpenEntry(ctx, employeeID)
	if err != nil {
		return nil, err
	}
	if open != nil {
		return nil, fmt.Errorf("%w: started at %s", ErrAlreadyClockedIn, open.StartedAt.Format(time.RFC3339))
	}

	entry := TimeEntry{
		ID:         uuid.NewString(),
		EmployeeID: employeeID,
		StartedAt:  time.Now().UTC().Truncate(time.Second),
		Note:       note,
	}

	return run(ctx, s, "time_entries.clock_in", func(ctx context.Context) (*TimeEntry, error) {
		var stored []TimeEntry
		if err := s.data.Insert(ctx, tableTimeEntries, entry, &stored); err != nil {
			return nil, err
		}
		if len(stored) == 0 {
			return &entry, nil
		}
		return &stored[0], nil
	})
}

// ClockOut closes the employee's open time entry and returns it.
func (s *Service) ClockOut(ctx context.Context, employeeID string) (*TimeEntry, error) {
	open, err := s.OpenEntry(ctx, employeeID)
	if err != nil {
		return nil, err
	}
	if open == nil {
		return nil, ErrNotClockedIn
	}

	endedAt := time.Now().UTC().Truncate(time.Second)
	query := url.Values{
		"id":       {eq(open.ID)},
		"ended_at": {"is.null"},
	}
	patch := map[string]any{"ended_at": endedAt}

	return run(ctx, s, "time_entries.clock_out", func(ctx context.Context) (*TimeEntry, error) {
		var updated []TimeEntry
		if err := s.data.Update(ctx, tableTimeEntries, query, patch, &updated); err != nil {
			return nil, err
		}
		if len(updated) == 0 {
			// Another client closed it between the read and the patch.
			return nil, ErrNotClockedIn
		}
		return &updated[0], nil
	})
}

// OpenEntry returns the employee's open time entry, or nil when the
// employee is clocked out.
func (s *Service) OpenEntry(ctx context.Context, employeeID string) (*TimeEntry, error) {
	query := url.Values{
		"employee_id": {eq(employeeID)},
		"ended_at":    {"is.null"},
	}

	return run(ctx, s, "time_entries.open", func(ctx context.Context) (*TimeEntry, error) {
		var entry TimeEntry
		if err := s.data.SelectOne(ctx, tableTimeEntries, query, &entry); err != nil {
			if apierr.Classify(err) == apierr.NotFound {
				return nil, nil
			}
			return nil, err
		}
		return &entry, nil
	})
}

// ListEntries returns the employee's entries overlapping [from, to),
// newest first.
func (s *Service) ListEntries(ctx context.Context, employeeID string, from, to time.Time) ([]TimeEntry, error) {
	query := url.Values{
		"employee_id": {eq(employeeID)},
		"started_at":  {"gte." + from.UTC().Format(time.RFC3339), "lt." + to.UTC().Format(time.RFC3339)},
		"order":       {"started_at.desc"},
	}

	return run(ctx, s, "time_entries.list", func(ctx context.Context) ([]TimeEntry, error) {
		var entries []TimeEntry
		if err := s.data.Select(ctx, tableTimeEntries, query, &entries); err != nil {
			return nil, err
		}
		return entries, nil
	})
}
