package service

import (
	"context"
	"log/slog"

	"rapidride/internal/domain"
	"rapidride/internal/repository"
)

// PSP is the interface for a card Payment Service Provider.
type PSP interface {
	CreateIntent(ctx context.Context, rideID string, amount float64) (string, error)
}

// PaymentService settles ride payments once a ride completes.
type PaymentService struct {
	rideRepo repository.RideRepository
	psp      PSP
	logger   *slog.Logger
}

// NewPaymentService creates a new PaymentService. psp may be nil, in
// which case card rides stay pending for manual collection.
func NewPaymentService(rideRepo repository.RideRepository, psp PSP, logger *slog.Logger) *PaymentService {
	return &PaymentService{
		rideRepo: rideRepo,
		psp:      psp,
		logger:   logger,
	}
}

// Settle records the payment outcome for a completed ride and returns the
// resulting status. Settling a ride that already has a payment id is a no-op.
func (s *PaymentService) Settle(ctx context.Context, ride *domain.Ride) (domain.PaymentStatus, error) {
	if ride.PaymentID != "" || ride.PaymentStatus == domain.PaymentStatusCompleted {
		return ride.PaymentStatus, nil
	}

	switch ride.PaymentMethod {
	case domain.PaymentMethodCard:
		return s.settleCard(ctx, ride)
	default:
		if err := s.rideRepo.SetPayment(ctx, ride.ID, domain.PaymentStatusCompleted, ""); err != nil {
			return ride.PaymentStatus, err
		}
		ride.PaymentStatus = domain.PaymentStatusCompleted
		return ride.PaymentStatus, nil
	}
}

func (s *PaymentService) settleCard(ctx context.Context, ride *domain.Ride) (domain.PaymentStatus, error) {
	if s.psp == nil {
		return ride.PaymentStatus, nil
	}

	paymentID, err := s.psp.CreateIntent(ctx, ride.ID, ride.Fare)
	if err != nil {
		// PSP error - mark as failed.
		s.logger.Warn("card payment failed", "ride_id", ride.ID, "error", err)
		if err := s.rideRepo.SetPayment(ctx, ride.ID, domain.PaymentStatusFailed, ""); err != nil {
			return ride.PaymentStatus, err
		}
		ride.PaymentStatus = domain.PaymentStatusFailed
		return ride.PaymentStatus, nil
	}

	if err := s.rideRepo.SetPayment(ctx, ride.ID, domain.PaymentStatusPending, paymentID); err != nil {
		return ride.PaymentStatus, err
	}
	ride.PaymentID = paymentID
	ride.PaymentStatus = domain.PaymentStatusPending
	return ride.PaymentStatus, nil
}

// ValidatePaymentMethod validates a payment method string.
func ValidatePaymentMethod(method string) (domain.PaymentMethod, error) {
	switch domain.PaymentMethod(method) {
	case domain.PaymentMethodCash, domain.PaymentMethodCard,
		domain.PaymentMethodWallet, domain.PaymentMethodUPI:
		return domain.PaymentMethod(method), nil
	case "":
		return domain.PaymentMethodCash, nil // Default to cash
	default:
		return "", ErrInvalidPaymentMethod
	}
}
