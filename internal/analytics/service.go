package analytics

import (
	"context"
	"fmt"

	"ms-registration/internal/models"
)

// Store is the read side the analytics service needs.
type Store interface {
	GetRegistrationStatusCounts(ctx context.Context, eventID string) ([]StatusCount, error)
	GetPaymentTotals(ctx context.Context, eventID string) ([]PaymentTotals, error)
	GetDailyRegistrations(ctx context.Context, eventID string) ([]DailyCount, error)
	CountWaitingList(ctx context.Context, eventID string) (int, error)
}

// Service handles analytics operations
type Service struct {
	store Store
}

// NewService creates a new analytics service
func NewService(store Store) *Service {
	return &Service{store: store}
}

// EventAnalytics represents aggregated registration data for an event
type EventAnalytics struct {
	EventID           string          `json:"event_id"`
	Registrations     map[string]int  `json:"registrations"`
	Payments          []PaymentTotals `json:"payments"`
	CollectedMinor    int64           `json:"collected_minor"`
	OutstandingMinor  int64           `json:"outstanding_minor"`
	WaitingListLength int             `json:"waiting_list_length"`
	// AttendanceRate is attended / (attended + no-show), or 0 before any
	// attendance was recorded.
	AttendanceRate float64      `json:"attendance_rate"`
	Daily          []DailyCount `json:"daily_registrations"`
}

// GetEventAnalytics builds the registration report for one event
func (s *Service) GetEventAnalytics(ctx context.Context, eventID string) (*EventAnalytics, error) {
	counts, err := s.store.GetRegistrationStatusCounts(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("counting registrations: %w", err)
	}
	payments, err := s.store.GetPaymentTotals(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("summing payments: %w", err)
	}
	daily, err := s.store.GetDailyRegistrations(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("loading daily registrations: %w", err)
	}
	waiting, err := s.store.CountWaitingList(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("counting waiting list: %w", err)
	}

	out := &EventAnalytics{
		EventID:           eventID,
		Registrations:     make(map[string]int, len(counts)),
		Payments:          payments,
		WaitingListLength: waiting,
		Daily:             daily,
	}
	for _, c := range counts {
		out.Registrations[c.Status] = c.Count
	}
	for _, p := range payments {
		switch models.PaymentStatus(p.Status) {
		case models.PaymentProcessed:
			out.CollectedMinor += p.AmountMinor
		case models.PaymentAwaiting, models.PaymentReceived:
			out.OutstandingMinor += p.AmountMinor
		}
	}

	attended := out.Registrations[string(models.RegistrationAttended)]
	noShow := out.Registrations[string(models.RegistrationNoShow)]
	if attended+noShow > 0 {
		out.AttendanceRate = float64(attended) / float64(attended+noShow)
	}
	return out, nil
}
