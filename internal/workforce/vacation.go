package workforce

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
)

// VacationStatus is the review state of a vacation request.
type VacationStatus string

const (
	VacationPending  VacationStatus = "pending"
	VacationApproved VacationStatus = "approved"
	VacationRejected VacationStatus = "rejected"
)

// VacationRequest is a request for paid time off. Days are dates, not
// instants; the backend stores them as DATE columns.
type VacationRequest struct {
	ID         string         `json:"id"`
	EmployeeID string         `json:"employee_id"`
	StartDay   string         `json:"start_day"`
	EndDay     string         `json:"end_day"`
	Status     VacationStatus `json:"status"`
	Reason     string         `json:"reason,omitempty"`
}

const dayFormat = "2006-01-02"

// RequestVacation files a pending vacation request covering
// [startDay, endDay] inclusive.
func (s *Service) RequestVacation(ctx context.Context, employeeID string, startDay, endDay time.Time, reason string) (*VacationRequest, error) {
	if endDay.Before(startDay) {
		return nil, fmt.Errorf("vacation end %s precedes start %s", endDay.Format(dayFormat), startDay.Format(dayFormat))
	}

	request := VacationRequest{
		ID:         uuid.NewString(),
		EmployeeID: employeeID,
		StartDay:   startDay.Format(dayFormat),
		EndDay:     endDay.Format(dayFormat),
		Status:     VacationPending,
		Reason:     reason,
	}

	return run(ctx, s, "vacation_requests.create", func(ctx context.Context) (*VacationRequest, error) {
		var stored []VacationRequest
		if err := s.data.Insert(ctx, tableVacationRequests, request, &stored); err != nil {
			return nil, err
		}
		if len(stored) == 0 {
			return &request, nil
		}
		return &stored[0], nil
	})
}

// ListVacations returns the employee's requests, newest first.
func (s *Service) ListVacations(ctx context.Context, employeeID string) ([]VacationRequest, error) {
	query := url.Values{
		"employee_id": {eq(employeeID)},
		"order":       {"start_day.desc"},
	}

	return run(ctx, s, "vacation_requests.list", func(ctx context.Context) ([]VacationRequest, error) {
		var requests []VacationRequest
		if err := s.data.Select(ctx, tableVacationRequests, query, &requests); err != nil {
			return nil, err
		}
		return requests, nil
	})
}

// SetVacationStatus moves a request to the given review state. Only
// pending requests transition; a request that was already resolved
// matches zero rows and is reported as an error rather than silently
// overwritten.
func (s *Service) SetVacationStatus(ctx context.Context, requestID string, status VacationStatus) (*VacationRequest, error) {
	query := url.Values{
		"id":     {eq(requestID)},
		"status": {eq(string(VacationPending))},
	}
	patch := map[string]any{"status": status}

	return run(ctx, s, "vacation_requests.review", func(ctx context.Context) (*VacationRequest, error) {
		var updated []VacationRequest
		if err := s.data.Update(ctx, tableVacationRequests, query, patch, &updated); err != nil {
			return nil, err
		}
		if len(updated) == 0 {
			return nil, fmt.Errorf("vacation request %s is not pending", requestID)
		}
		return &updated[0], nil
	})
}
