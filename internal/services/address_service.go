package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bsvalues/PACS-DataBridge/internal/address"
	"github.com/bsvalues/PACS-DataBridge/internal/logger"
	"github.com/bsvalues/PACS-DataBridge/internal/models"
	"github.com/bsvalues/PACS-DataBridge/internal/repository"
)

// DefaultIndexTTL is how long a loaded parcel index is reused before reloading.
const DefaultIndexTTL = 5 * time.Minute

// ErrInvalidAddress is returned for an empty address or an out-of-range threshold.
var ErrInvalidAddress = errors.New("invalid address request")

// AddressStore is the persistence behind address resolution.
type AddressStore interface {
	ParcelAddresses(ctx context.Context) ([]models.ParcelAddress, error)
	AppendMatch(ctx context.Context, match *models.AddressMatch) error
	ListMatches(ctx context.Context, filter repository.MatchFilter) ([]models.AddressMatch, error)
}

// MatchRecorder counts match attempts by tier.
type MatchRecorder interface {
	MatchAttempted(tier string)
}

// ManualMatchRequest asserts that an address belongs to a parcel.
type ManualMatchRequest struct {
	StagingRecordID *uuid.UUID
	JobID           *uuid.UUID
	Address         string
	ParcelNumber    string
}

// AddressService resolves addresses outside of an import job.
type AddressService interface {
	// Match resolves one address and records the attempt. An unresolved
	// address is a result with no candidates, not an error.
	Match(ctx context.Context, addr string, minConfidence float64) (address.Result, error)
	// ManualMatch records an operator's resolution at full confidence.
	// Returns ErrParcelNotFound when the parcel does not exist.
	ManualMatch(ctx context.Context, req ManualMatchRequest) (*models.AddressMatch, error)
	LookupParcel(ctx context.Context, parcelNumber string) (*models.TaxParcel, error)
	Matches(ctx context.Context, filter repository.MatchFilter) ([]models.AddressMatch, error)
	// Refresh reloads the parcel index.
	Refresh(ctx context.Context) error
}

type addressService struct {
	store   AddressStore
	parcels ParcelService
	metrics MatchRecorder
	log     *logger.Logger
	ttl     time.Duration
	now     func() time.Time

	mu       sync.Mutex
	matcher  *address.Matcher
	loadedAt time.Time
}

// NewAddressService creates an AddressService. metrics may be nil.
func NewAddressService(store AddressStore, parcels ParcelService, metrics MatchRecorder, log *logger.Logger, ttl time.Duration) AddressService {
	if ttl <= 0 {
		ttl = DefaultIndexTTL
	}
	return &addressService{
		store:   store,
		parcels: parcels,
		metrics: metrics,
		log:     log,
		ttl:     ttl,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *addressService) Refresh(ctx context.Context) error {
	parcels, err := s.store.ParcelAddresses(ctx)
	if err != nil {
		return fmt.Errorf("failed to load parcel addresses: %w", err)
	}
	m := address.NewMatcher(address.NewIndex(parcels))

	s.mu.Lock()
	s.matcher = m
	s.loadedAt = s.now()
	s.mu.Unlock()

	s.log.Info("Parcel index loaded", map[string]interface{}{
		"parcels": m.Index().Len(),
	})
	return nil
}

func (s *addressService) current(ctx context.Context) (*address.Matcher, error) {
	s.mu.Lock()
	m, loaded := s.matcher, s.loadedAt
	s.mu.Unlock()
	if m != nil && s.now().Sub(loaded) < s.ttl {
		return m, nil
	}
	if err := s.Refresh(ctx); err != nil {
		if m != nil {
			s.log.Warn("Using stale parcel index", map[string]interface{}{"error": err.Error()})
			return m, nil
		}
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.matcher, nil
}

func (s *addressService) Match(ctx context.Context, addr string, minConfidence float64) (address.Result, error) {
	m, err := s.current(ctx)
	if err != nil {
		return address.Result{}, err
	}
	res, err := m.Match(addr, minConfidence)
	if err != nil {
		return address.Result{}, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	if s.metrics != nil {
		s.metrics.MatchAttempted(string(res.Tier))
	}

	if err := s.store.AppendMatch(ctx, res.Audit(nil, nil, s.now())); err != nil {
		s.log.Error("Failed to record address match", err, map[string]interface{}{
			"address": addr,
		})
		return address.Result{}, fmt.Errorf("failed to record address match: %w", err)
	}

	s.log.Info("Address matched", map[string]interface{}{
		"address":    addr,
		"tier":       string(res.Tier),
		"candidates": len(res.Candidates),
	})
	return res, nil
}

func (s *addressService) ManualMatch(ctx context.Context, req ManualMatchRequest) (*models.AddressMatch, error) {
	if strings.TrimSpace(req.Address) == "" {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAddress, address.ErrEmptyAddress)
	}
	parcel, err := s.parcels.LookupParcel(ctx, req.ParcelNumber)
	if err != nil {
		return nil, err
	}

	standardized := address.Normalize(parcel.SitusAddress())
	if standardized == "" {
		standardized = address.Normalize(req.Address)
	}
	number := parcel.ParcelNumber
	match := &models.AddressMatch{
		ID:                  uuid.New(),
		SourceAddress:       req.Address,
		StandardizedAddress: &standardized,
		ParcelNumber:        &number,
		MatchMethod:         models.MatchMethodManual,
		ConfidenceScore:     address.ExactConfidence,
		StagingRecordID:     req.StagingRecordID,
		JobID:               req.JobID,
		CreatedAt:           s.now(),
	}
	if err := s.store.AppendMatch(ctx, match); err != nil {
		return nil, fmt.Errorf("failed to record manual match: %w", err)
	}

	s.log.Info("Manual address match recorded", map[string]interface{}{
		"address":       req.Address,
		"parcel_number": number,
	})
	return match, nil
}

func (s *addressService) LookupParcel(ctx context.Context, parcelNumber string) (*models.TaxParcel, error) {
	return s.parcels.LookupParcel(ctx, parcelNumber)
}

func (s *addressService) Matches(ctx context.Context, filter repository.MatchFilter) ([]models.AddressMatch, error) {
	if filter.StagingRecordID == nil && filter.JobID == nil {
		return nil, fmt.Errorf("%w: a staging record or job is required", ErrInvalidAddress)
	}
	matches, err := s.store.ListMatches(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list address matches: %w", err)
	}
	return matches, nil
}
