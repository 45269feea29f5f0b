package main

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunReportWriteAndRead(t *testing.T) {
	config := testConfig(t)
	started := time.Date(2025, 1, 15, 9, 0, 0, 0, time.UTC)
	report := newRunReport("6f1c2d3e-0000-4000-8000-000000000000", config, started)
	report.FinishedAt = started.Add(3 * time.Minute)
	report.Results = []ScenarioResult{
		{Name: "checkout-card", Status: StatusPassed, StartedAt: started, Duration: 90 * time.Second, OrderNumber: "HK1"},
		{Name: "checkout-paypal", Status: StatusSkipped, StartedAt: started, SkipReason: "PayPal sandbox credentials are not configured"},
	}

	path, err := report.Write(filepath.Join(config.OutputDir, "reports"))
	require.NoError(t, err)
	assert.Equal(t, "report-6f1c2d3e-0000-4000-8000-000000000000.json", filepath.Base(path))

	got, err := ReadRunReport(path)
	require.NoError(t, err)
	assert.Equal(t, report.RunID, got.RunID)
	assert.Equal(t, EnvStaging, got.Environment)
	assert.Equal(t, "us", got.Country)
	assert.True(t, started.Equal(got.StartedAt))
	require.Len(t, got.Results, 2)
	assert.Equal(t, 90*time.Second, got.Results[0].Duration)
	assert.Equal(t, "HK1", got.Results[0].OrderNumber)
	assert.Equal(t, StatusSkipped, got.Results[1].Status)
	assert.True(t, got.Ok())
}

func TestRunReportCounts(t *testing.T) {
	report := &RunReport{Results: []ScenarioResult{
		{Status: StatusPassed},
		{Status: StatusPassed},
		{Status: StatusFailed},
		{Status: StatusSkipped},
	}}

	assert.Equal(t, 2, report.Passed())
	assert.Equal(t, 1, report.Failed())
	assert.Equal(t, 1, report.Skipped())
	assert.False(t, report.Ok())
}

func TestReadRunReportErrors(t *testing.T) {
	_, err := ReadRunReport(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
