package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bsvalues/PACS-DataBridge/internal/logger"
	"github.com/bsvalues/PACS-DataBridge/internal/models"
	"github.com/bsvalues/PACS-DataBridge/internal/rules"
)

// Parcel number length limits after separators are removed.
const (
	MinParcelNumberLength = 4
	MaxParcelNumberLength = 32
)

// Service-level errors
var (
	ErrInvalidParcelNumber = errors.New("invalid parcel number")
	ErrParcelNotFound      = errors.New("parcel not found")
)

// ParcelLookup is the read side of the parcel index.
type ParcelLookup interface {
	FindByNumber(ctx context.Context, parcelNumber string) (*models.TaxParcel, error)
}

// ParcelService defines the interface for parcel business logic operations.
type ParcelService interface {
	// LookupParcel retrieves the parcel with the given number, either exactly as
	// stored or in its cleaned form ("1-2345.6" also finds "123456").
	// Returns ErrInvalidParcelNumber if the number is malformed.
	// Returns ErrParcelNotFound if no parcel has the number.
	// Returns error for database failures.
	LookupParcel(ctx context.Context, parcelNumber string) (*models.TaxParcel, error)
}

// parcelService is the concrete implementation of ParcelService.
type parcelService struct {
	repo ParcelLookup
	log  *logger.Logger
}

// NewParcelService creates a new instance of ParcelService.
func NewParcelService(repo ParcelLookup, log *logger.Logger) ParcelService {
	return &parcelService{
		repo: repo,
		log:  log,
	}
}

// CleanParcelNumber canonicalizes and validates a parcel number.
func CleanParcelNumber(parcelNumber string) (string, error) {
	cleaned := rules.CleanParcelNumber(parcelNumber)
	if cleaned == "" {
		return "", fmt.Errorf("%w: parcel number is required", ErrInvalidParcelNumber)
	}
	if len(cleaned) < MinParcelNumberLength || len(cleaned) > MaxParcelNumberLength {
		return "", fmt.Errorf("%w: length must be between %d and %d, got %d",
			ErrInvalidParcelNumber, MinParcelNumberLength, MaxParcelNumberLength, len(cleaned))
	}
	if strings.IndexFunc(cleaned, func(r rune) bool {
		return (r < 'A' || r > 'Z') && (r < '0' || r > '9')
	}) >= 0 {
		return "", fmt.Errorf("%w: %q contains invalid characters", ErrInvalidParcelNumber, parcelNumber)
	}
	return cleaned, nil
}

func distinct(values ...string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v != "" && (len(out) == 0 || out[len(out)-1] != v) {
			out = append(out, v)
		}
	}
	return out
}

// LookupParcel validates the number, queries the index and turns a missing
// row into ErrParcelNotFound.
func (s *parcelService) LookupParcel(ctx context.Context, parcelNumber string) (*models.TaxParcel, error) {
	cleaned, err := CleanParcelNumber(parcelNumber)
	if err != nil {
		s.log.Warn("Invalid parcel number provided", map[string]interface{}{
			"parcel_number": parcelNumber,
		})
		return nil, err
	}

	s.log.Debug("Querying parcel", map[string]interface{}{
		"parcel_number": cleaned,
	})

	// Stored numbers may keep their separators, so the input is tried as given first.
	var parcel *models.TaxParcel
	for _, candidate := range distinct(strings.TrimSpace(parcelNumber), cleaned) {
		parcel, err = s.repo.FindByNumber(ctx, candidate)
		if err != nil {
			s.log.Error("Failed to query parcel", err, map[string]interface{}{
				"parcel_number": candidate,
			})
			return nil, fmt.Errorf("failed to query parcel: %w", err)
		}
		if parcel != nil {
			break
		}
	}

	// Repository returns nil, nil when no parcel found
	if parcel == nil {
		s.log.Debug("No parcel found", map[string]interface{}{
			"parcel_number": cleaned,
		})
		return nil, ErrParcelNotFound
	}

	s.log.Info("Parcel found", map[string]interface{}{
		"parcel_number": parcel.ParcelNumber,
		"county":        parcel.CountyName,
	})
	return parcel, nil
}
