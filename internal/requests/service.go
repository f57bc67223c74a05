// Package requests handles customer delivery requests and their review.
package requests

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"fleet_tracker/internal/apperrors"
	"fleet_tracker/internal/events"
	"fleet_tracker/internal/models"
	"fleet_tracker/internal/store"
)

const defaultRejection = "No reason provided"

// Input is what a customer submits.
type Input struct {
	ShipmentDetails string          `json:"shipment_details"`
	Source          string          `json:"source"`
	Destination     string          `json:"destination"`
	PickupDate      *time.Time      `json:"pickup_date"`
	Weight          float64         `json:"approximate_weight"`
	Priority        models.Priority `json:"priority"`
	Notes           string          `json:"notes"`
}

type Service struct {
	store  store.Store
	events events.Publisher
	log    *logrus.Logger
	now    func() time.Time
}

func NewService(st store.Store, pub events.Publisher, log *logrus.Logger) *Service {
	if pub == nil {
		pub = events.Nop{}
	}
	return &Service{store: st, events: pub, log: log, now: time.Now}
}

// Create records a pending request for the calling customer and notifies admins.
func (s *Service) Create(ctx context.Context, caller models.Caller, in Input) (*models.DeliveryRequest, error) {
	if !caller.IsCustomer() && !caller.IsAdmin() {
		return nil, fmt.Errorf("%w: only customers submit delivery requests", apperrors.ErrForbidden)
	}
	in.Source = strings.TrimSpace(in.Source)
	in.Destination = strings.TrimSpace(in.Destination)
	in.ShipmentDetails = strings.TrimSpace(in.ShipmentDetails)
	switch {
	case in.ShipmentDetails == "":
		return nil, fmt.Errorf("%w: shipment details are required", apperrors.ErrInvalidInput)
	case in.Source == "" || in.Destination == "":
		return nil, fmt.Errorf("%w: source and destination are required", apperrors.ErrInvalidInput)
	case in.PickupDate == nil:
		return nil, fmt.Errorf("%w: pickup date is required", apperrors.ErrInvalidInput)
	case in.Weight < 0:
		return nil, fmt.Errorf("%w: weight must not be negative", apperrors.ErrInvalidInput)
	case len(in.Notes) > 500:
		return nil, fmt.Errorf("%w: notes are limited to 500 characters", apperrors.ErrInvalidInput)
	}
	in.Priority = models.Priority(strings.ToUpper(string(in.Priority)))
	if in.Priority == "" {
		in.Priority = models.PriorityNormal
	}
	if !in.Priority.Valid() {
		return nil, fmt.Errorf("%w: unknown priority %q", apperrors.ErrInvalidInput, in.Priority)
	}

	r := &models.DeliveryRequest{
		CustomerID:      caller.UserID,
		CustomerName:    caller.Name,
		ShipmentDetails: in.ShipmentDetails,
		Source:          in.Source,
		Destination:     in.Destination,
		PickupDate:      in.PickupDate,
		Weight:          in.Weight,
		Priority:        in.Priority,
		Notes:           strings.TrimSpace(in.Notes),
		Status:          models.RequestPending,
	}
	if err := s.store.CreateRequest(ctx, r); err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"request":  r.RequestNumber,
		"customer": r.CustomerName,
	}).Info("delivery request created")
	s.notify(ctx, events.TypeRequestCreated, r, events.Audience{Roles: []string{models.RoleAdmin}})
	return r, nil
}

// List returns requests newest first. Customers only see their own.
func (s *Service) List(ctx context.Context, caller models.Caller, statuses ...models.RequestStatus) ([]models.DeliveryRequest, error) {
	f := store.RequestFilter{Statuses: statuses}
	switch {
	case caller.IsAdmin():
	case caller.IsCustomer():
		id := caller.UserID
		f.CustomerID = &id
	default:
		return nil, fmt.Errorf("%w: delivery requests are not visible to %s", apperrors.ErrForbidden, caller.Role)
	}
	return s.store.ListRequests(ctx, f)
}

func (s *Service) Get(ctx context.Context, caller models.Caller, id uint) (*models.DeliveryRequest, error) {
	r, err := s.store.GetRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	if !caller.IsAdmin() && !(caller.IsCustomer() && r.CustomerID == caller.UserID) {
		return nil, fmt.Errorf("%w: request %s", apperrors.ErrForbidden, r.RequestNumber)
	}
	return r, nil
}

// Approve marks a pending request approved. The shipment is created
// separately and linked through its request id.
func (s *Service) Approve(ctx context.Context, caller models.Caller, id uint) (*models.DeliveryRequest, error) {
	return s.review(ctx, caller, id, models.RequestApproved, "")
}

// Reject marks a pending request rejected with reason.
func (s *Service) Reject(ctx context.Context, caller models.Caller, id uint, reason string) (*models.DeliveryRequest, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = defaultRejection
	}
	return s.review(ctx, caller, id, models.RequestRejected, reason)
}

func (s *Service) review(ctx context.Context, caller models.Caller, id uint, status models.RequestStatus, reason string) (*models.DeliveryRequest, error) {
	if !caller.IsAdmin() {
		return nil, fmt.Errorf("%w: only admins review delivery requests", apperrors.ErrForbidden)
	}

	var out models.DeliveryRequest
	err := s.store.Atomically(ctx, func(tx store.Store) error {
		r, err := tx.GetRequest(ctx, id)
		if err != nil {
			return err
		}
		if r.Status != models.RequestPending {
			return fmt.Errorf("%w: request %s has already been reviewed", apperrors.ErrConflict, r.RequestNumber)
		}
		now := s.now()
		reviewer := caller.UserID
		r.Status = status
		r.ReviewedBy = &reviewer
		r.ReviewedAt = &now
		r.RejectionReason = reason
		if err := tx.SaveRequest(ctx, r); err != nil {
			return err
		}
		out = *r
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"request": out.RequestNumber,
		"status":  out.Status,
	}).Info("delivery request reviewed")
	s.notify(ctx, events.TypeRequestUpdated, &out, events.Audience{
		Roles:   []string{models.RoleAdmin},
		UserIDs: []uint{out.CustomerID},
	})
	return &out, nil
}

func (s *Service) notify(ctx context.Context, t events.EventType, r *models.DeliveryRequest, aud events.Audience) {
	ev := events.NewAt(t, r.RequestNumber, events.RequestChanged{
		RequestID:     r.ID,
		RequestNumber: r.RequestNumber,
		CustomerID:    r.CustomerID,
		CustomerName:  r.CustomerName,
		Status:        string(r.Status),
		ShipmentID:    r.ShipmentID,
	}, s.now())
	ev.Audience = aud
	if err := s.events.Publish(ctx, ev); err != nil {
		s.log.WithField("request", r.RequestNumber).WithError(err).Warn("request event delivery failed")
	}
}
