package services

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/bsvalues/PACS-DataBridge/internal/logger"
	"github.com/bsvalues/PACS-DataBridge/internal/models"
	"github.com/bsvalues/PACS-DataBridge/internal/pipeline"
	"github.com/bsvalues/PACS-DataBridge/internal/repository"
)

type MockRunner struct {
	mock.Mock
}

func (m *MockRunner) Submit(ctx context.Context, importType models.ImportType, source models.SourceDescriptor) (*models.ImportJob, error) {
	args := m.Called(ctx, importType, source)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ImportJob), args.Error(1)
}

func (m *MockRunner) Run(ctx context.Context, job *models.ImportJob, rows pipeline.RowSource) (*models.ImportJob, error) {
	args := m.Called(ctx, job, rows)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ImportJob), args.Error(1)
}

func (m *MockRunner) Abort(jobID uuid.UUID) error {
	return m.Called(jobID).Error(0)
}

type MockJobStore struct {
	mock.Mock
}

func (m *MockJobStore) GetJob(ctx context.Context, id uuid.UUID) (*models.ImportJob, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ImportJob), args.Error(1)
}

func (m *MockJobStore) ListJobs(ctx context.Context, filter repository.JobFilter) ([]models.ImportJob, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.ImportJob), args.Error(1)
}

func (m *MockJobStore) ListRecords(ctx context.Context, jobID uuid.UUID, filter repository.RecordFilter) ([]models.StagingRecord, error) {
	args := m.Called(ctx, jobID, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.StagingRecord), args.Error(1)
}

func (m *MockJobStore) ListErrors(ctx context.Context, jobID uuid.UUID, limit int) ([]models.ImportError, error) {
	args := m.Called(ctx, jobID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.ImportError), args.Error(1)
}

// fakeRows is an empty source that remembers being closed.
type fakeRows struct {
	closed chan struct{}
}

func newFakeRows() *fakeRows {
	return &fakeRows{closed: make(chan struct{})}
}

func (f *fakeRows) Next(context.Context) (map[string]string, error) {
	return nil, io.EOF
}

func (f *fakeRows) Close() error {
	close(f.closed)
	return nil
}

func openerFor(rows Rows, err error) OpenFunc {
	return func(context.Context, string, models.ImportType) (Rows, error) {
		if err != nil {
			return nil, err
		}
		return rows, nil
	}
}

func TestImport_RunsSynchronously(t *testing.T) {
	// Arrange
	runner := new(MockRunner)
	rows := newFakeRows()
	service := NewImportService(runner, new(MockJobStore), openerFor(rows, nil), logger.Nop())
	ctx := context.Background()

	job := models.NewImportJob(models.ImportTypePermit, models.SourceDescriptor{}, time.Now())
	done := *job
	done.Status = models.JobStatusCompleted

	runner.On("Submit", ctx, models.ImportTypePermit, models.SourceDescriptor{
		Name: "permits.csv",
		URI:  "s3://county-intake/2024/permits.csv",
	}).Return(job, nil)
	runner.On("Run", ctx, job, rows).Return(&done, nil)

	// Act
	got, err := service.Import(ctx, models.ImportTypePermit, "s3://county-intake/2024/permits.csv")

	// Assert
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, got.Status)
	<-rows.closed
	runner.AssertExpectations(t)
}

func TestImport_RejectsBadRequests(t *testing.T) {
	runner := new(MockRunner)
	service := NewImportService(runner, new(MockJobStore), openerFor(nil, errors.New("no such file")), logger.Nop())

	_, err := service.Import(context.Background(), models.ImportType("Boats"), "x.csv")
	assert.ErrorIs(t, err, ErrInvalidImport)

	_, err = service.Import(context.Background(), models.ImportTypePermit, "")
	assert.ErrorIs(t, err, ErrInvalidSource)

	_, err = service.Import(context.Background(), models.ImportTypePermit, "/missing.csv")
	assert.ErrorIs(t, err, ErrInvalidSource)
	assert.Contains(t, err.Error(), "no such file")

	runner.AssertNotCalled(t, "Submit", mock.Anything, mock.Anything, mock.Anything)
}

func TestStart_RunsInBackground(t *testing.T) {
	// Arrange
	runner := new(MockRunner)
	rows := newFakeRows()
	service := NewImportService(runner, new(MockJobStore), openerFor(rows, nil), logger.Nop())
	ctx := context.Background()

	job := models.NewImportJob(models.ImportTypePersonalProperty, models.SourceDescriptor{}, time.Now())
	ran := make(chan struct{})
	runner.On("Submit", ctx, models.ImportTypePersonalProperty, mock.Anything).Return(job, nil)
	runner.On("Run", mock.Anything, job, rows).Run(func(mock.Arguments) { close(ran) }).Return(job, nil)

	// Act
	accepted, err := service.Start(ctx, models.ImportTypePersonalProperty, "/intake/property.csv")

	// Assert
	require.NoError(t, err)
	assert.Equal(t, job.ID, accepted.ID)
	assert.Equal(t, models.JobStatusPending, accepted.Status)

	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("background run did not start")
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	require.NoError(t, service.Shutdown(shutdownCtx))
	<-rows.closed

	_, err = service.Start(ctx, models.ImportTypePermit, "/intake/permits.csv")
	assert.ErrorIs(t, err, ErrShuttingDown)
}

func TestGetJob_NotFound(t *testing.T) {
	store := new(MockJobStore)
	service := NewImportService(new(MockRunner), store, nil, logger.Nop())
	id := uuid.New()

	store.On("GetJob", mock.Anything, id).Return(nil, nil)

	job, err := service.GetJob(context.Background(), id)
	assert.Nil(t, job)
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestListRecords_DefaultsLimitAndChecksJob(t *testing.T) {
	store := new(MockJobStore)
	service := NewImportService(new(MockRunner), store, nil, logger.Nop())
	job := models.NewImportJob(models.ImportTypePermit, models.SourceDescriptor{}, time.Now())

	store.On("GetJob", mock.Anything, job.ID).Return(job, nil)
	store.On("ListRecords", mock.Anything, job.ID, repository.RecordFilter{Limit: 500}).
		Return([]models.StagingRecord{{RecordIndex: 0}}, nil)

	recs, err := service.ListRecords(context.Background(), job.ID, repository.RecordFilter{})
	require.NoError(t, err)
	assert.Len(t, recs, 1)

	missing := uuid.New()
	store.On("GetJob", mock.Anything, missing).Return(nil, nil)
	_, err = service.ListErrors(context.Background(), missing, 0)
	assert.ErrorIs(t, err, ErrJobNotFound)
	store.AssertNotCalled(t, "ListErrors", mock.Anything, missing, 0)
}

func TestListJobs_RejectsUnknownType(t *testing.T) {
	store := new(MockJobStore)
	service := NewImportService(new(MockRunner), store, nil, logger.Nop())

	_, err := service.ListJobs(context.Background(), repository.JobFilter{ImportType: "Boats"})
	assert.ErrorIs(t, err, ErrInvalidImport)
	store.AssertNotCalled(t, "ListJobs", mock.Anything, mock.Anything)
}

func TestStart_SourceOutlivesRequest(t *testing.T) {
	// Arrange
	runner := new(MockRunner)
	rows := newFakeRows()
	var opened context.Context
	open := func(ctx context.Context, _ string, _ models.ImportType) (Rows, error) {
		opened = ctx
		return rows, nil
	}
	service := NewImportService(runner, new(MockJobStore), open, logger.Nop())
	reqCtx, cancelReq := context.WithCancel(context.Background())

	job := models.NewImportJob(models.ImportTypePermit, models.SourceDescriptor{}, time.Now())
	requestDone := make(chan struct{})
	runErrs := make(chan []error, 1)
	runner.On("Submit", reqCtx, models.ImportTypePermit, mock.Anything).Return(job, nil)
	runner.On("Run", mock.Anything, job, rows).Run(func(args mock.Arguments) {
		<-requestDone
		runErrs <- []error{args.Get(0).(context.Context).Err(), opened.Err()}
	}).Return(job, nil)

	// Act
	_, err := service.Start(reqCtx, models.ImportTypePermit, "s3://county-intake/permits.csv")
	require.NoError(t, err)
	require.NotNil(t, opened)
	cancelReq()
	close(requestDone)

	// Assert
	select {
	case errs := <-runErrs:
		assert.NoError(t, errs[0], "run context")
		assert.NoError(t, errs[1], "source context")
	case <-time.After(2 * time.Second):
		t.Fatal("background run did not start")
	}
	require.NoError(t, service.Shutdown(context.Background()))
}

func TestAbort_BeforeRunStarts(t *testing.T) {
	// Arrange
	store := new(MockJobStore)
	runner := new(MockRunner)
	rows := newFakeRows()
	service := NewImportService(runner, store, openerFor(rows, nil), logger.Nop())
	ctx := context.Background()

	job := models.NewImportJob(models.ImportTypePermit, models.SourceDescriptor{}, time.Now())
	release := make(chan struct{})
	cause := make(chan error, 1)
	runner.On("Submit", ctx, models.ImportTypePermit, mock.Anything).Return(job, nil)
	runner.On("Run", mock.Anything, job, rows).Run(func(args mock.Arguments) {
		<-release
		cause <- context.Cause(args.Get(0).(context.Context))
	}).Return(job, nil)
	store.On("GetJob", mock.Anything, job.ID).Return(job, nil)

	_, err := service.Start(ctx, models.ImportTypePermit, "/intake/permits.csv")
	require.NoError(t, err)

	// Act
	err = service.Abort(ctx, job.ID)
	close(release)

	// Assert
	require.NoError(t, err)
	select {
	case got := <-cause:
		assert.ErrorIs(t, got, pipeline.ErrAborted)
	case <-time.After(2 * time.Second):
		t.Fatal("background run did not finish")
	}
	runner.AssertNotCalled(t, "Abort", job.ID)
	require.NoError(t, service.Shutdown(ctx))
}

func TestAbort(t *testing.T) {
	tests := []struct {
		name     string
		status   models.JobStatus
		abortErr error
		wantErr  error
		aborts   bool
	}{
		{name: "processing", status: models.JobStatusProcessing, aborts: true},
		{name: "completed", status: models.JobStatusCompleted, wantErr: ErrJobNotRunning},
		{name: "elsewhere", status: models.JobStatusProcessing, abortErr: pipeline.ErrJobNotRunning, wantErr: ErrJobNotRunning, aborts: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := new(MockJobStore)
			runner := new(MockRunner)
			service := NewImportService(runner, store, nil, logger.Nop())

			job := models.NewImportJob(models.ImportTypePermit, models.SourceDescriptor{}, time.Now())
			job.Status = tt.status
			store.On("GetJob", mock.Anything, job.ID).Return(job, nil)
			runner.On("Abort", job.ID).Return(tt.abortErr)

			err := service.Abort(context.Background(), job.ID)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
			if tt.aborts {
				runner.AssertCalled(t, "Abort", job.ID)
			} else {
				runner.AssertNotCalled(t, "Abort", job.ID)
			}
		})
	}
}
