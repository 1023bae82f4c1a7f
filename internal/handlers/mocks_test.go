package handlers

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/bsvalues/PACS-DataBridge/internal/address"
	"github.com/bsvalues/PACS-DataBridge/internal/models"
	"github.com/bsvalues/PACS-DataBridge/internal/repository"
	"github.com/bsvalues/PACS-DataBridge/internal/services"
)

// MockImportService is a mock implementation of services.ImportService.
type MockImportService struct {
	mock.Mock
}

func (m *MockImportService) Import(ctx context.Context, importType models.ImportType, uri string) (*models.ImportJob, error) {
	args := m.Called(ctx, importType, uri)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ImportJob), args.Error(1)
}

func (m *MockImportService) Start(ctx context.Context, importType models.ImportType, uri string) (*models.ImportJob, error) {
	args := m.Called(ctx, importType, uri)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ImportJob), args.Error(1)
}

func (m *MockImportService) GetJob(ctx context.Context, id uuid.UUID) (*models.ImportJob, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ImportJob), args.Error(1)
}

func (m *MockImportService) ListJobs(ctx context.Context, filter repository.JobFilter) ([]models.ImportJob, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.ImportJob), args.Error(1)
}

func (m *MockImportService) ListRecords(ctx context.Context, jobID uuid.UUID, filter repository.RecordFilter) ([]models.StagingRecord, error) {
	args := m.Called(ctx, jobID, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.StagingRecord), args.Error(1)
}

func (m *MockImportService) ListErrors(ctx context.Context, jobID uuid.UUID, limit int) ([]models.ImportError, error) {
	args := m.Called(ctx, jobID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.ImportError), args.Error(1)
}

func (m *MockImportService) Abort(ctx context.Context, jobID uuid.UUID) error {
	return m.Called(ctx, jobID).Error(0)
}

func (m *MockImportService) Shutdown(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

// MockAddressService is a mock implementation of services.AddressService.
type MockAddressService struct {
	mock.Mock
}

func (m *MockAddressService) Match(ctx context.Context, addr string, minConfidence float64) (address.Result, error) {
	args := m.Called(ctx, addr, minConfidence)
	return args.Get(0).(address.Result), args.Error(1)
}

func (m *MockAddressService) ManualMatch(ctx context.Context, req services.ManualMatchRequest) (*models.AddressMatch, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.AddressMatch), args.Error(1)
}

func (m *MockAddressService) LookupParcel(ctx context.Context, parcelNumber string) (*models.TaxParcel, error) {
	args := m.Called(ctx, parcelNumber)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.TaxParcel), args.Error(1)
}

func (m *MockAddressService) Matches(ctx context.Context, filter repository.MatchFilter) ([]models.AddressMatch, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.AddressMatch), args.Error(1)
}

func (m *MockAddressService) Refresh(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

// MockParcelService is a mock implementation of services.ParcelService.
type MockParcelService struct {
	mock.Mock
}

func (m *MockParcelService) LookupParcel(ctx context.Context, parcelNumber string) (*models.TaxParcel, error) {
	args := m.Called(ctx, parcelNumber)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.TaxParcel), args.Error(1)
}
