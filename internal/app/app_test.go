package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bsvalues/PACS-DataBridge/internal/config"
	"github.com/bsvalues/PACS-DataBridge/internal/models"
	"github.com/bsvalues/PACS-DataBridge/internal/repository"
)

func testConfig() *config.Config {
	return &config.Config{
		Store: config.StoreConfig{Driver: "sqlite", SQLitePath: repository.MemoryPath},
		Pipeline: config.PipelineConfig{
			Workers:            2,
			ProgressInterval:   10,
			MatchMinConfidence: 70,
			AddressMatching:    true,
		},
		S3: config.S3Config{Region: "us-west-2"},
	}
}

func TestNew_ImportsLocalFile(t *testing.T) {
	// Arrange
	ctx := context.Background()
	a, err := New(ctx, testConfig(), nil, Options{})
	require.NoError(t, err)
	t.Cleanup(func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		assert.NoError(t, a.Close(closeCtx))
	})

	situs := "123 Main Street"
	require.NoError(t, a.Store.UpsertParcel(ctx, &models.TaxParcel{
		ParcelNumber: "10001",
		Situs:        &situs,
		CountyName:   "Benton",
	}))

	path := filepath.Join(t.TempDir(), "permits.csv")
	csv := "Permit Report\nPERMIT NUMBER,ISSUE DATE,SITE ADDRESS,VALUATION\nB-1001,06/01/2024,123 Main St,1000\n"
	require.NoError(t, os.WriteFile(path, []byte(csv), 0o600))

	// Act
	job, err := a.Imports.Import(ctx, models.ImportTypePermit, path)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, job.Status)
	assert.Equal(t, 1, job.RecordsTotal)
	assert.Equal(t, 1, job.RecordsSuccessful)

	records, err := a.Imports.ListRecords(ctx, job.ID, repository.RecordFilter{})
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.NotNil(t, records[0].ResolvedParcelNumber)
	assert.Equal(t, "10001", *records[0].ResolvedParcelNumber)
}

func TestRuleProvider_RejectsUnreadableFile(t *testing.T) {
	_, err := RuleProvider(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	assert.Error(t, err)
}

func TestRuleProvider_FallsBackToDefaults(t *testing.T) {
	provider, err := RuleProvider("", nil)
	require.NoError(t, err)

	validations, err := provider.ValidationRules(context.Background(), models.ImportTypePermit)
	require.NoError(t, err)
	assert.NotEmpty(t, validations)
}
