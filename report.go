package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	json "github.com/json-iterator/go"
)

type ScenarioStatus string

const (
	StatusPassed  ScenarioStatus = "passed"
	StatusFailed  ScenarioStatus = "failed"
	StatusSkipped ScenarioStatus = "skipped"
)

type ScenarioResult struct {
	Name        string         `json:"name"`
	Status      ScenarioStatus `json:"status"`
	StartedAt   time.Time      `json:"startedAt"`
	Duration    time.Duration  `json:"duration"`
	Error       string         `json:"error,omitempty"`
	SkipReason  string         `json:"skipReason,omitempty"`
	Screenshot  string         `json:"screenshot,omitempty"`
	OrderNumber string         `json:"orderNumber,omitempty"`
}

// RunReport summarises one suite run.
type RunReport struct {
	RunID       string           `json:"runId"`
	Environment string           `json:"environment"`
	BaseURL     string           `json:"baseUrl"`
	Country     string           `json:"country"`
	ScreenSize  string           `json:"screenSize"`
	StartedAt   time.Time        `json:"startedAt"`
	FinishedAt  time.Time        `json:"finishedAt"`
	Results     []ScenarioResult `json:"results"`
}

func newRunReport(runID string, config *Config, started time.Time) *RunReport {
	return &RunReport{
		RunID:       runID,
		Environment: config.Environment,
		BaseURL:     config.BaseURL(),
		Country:     config.Country,
		ScreenSize:  config.ScreenSize,
		StartedAt:   started,
	}
}

func (r *RunReport) count(status ScenarioStatus) int {
	n := 0
	for _, res := range r.Results {
		if res.Status == status {
			n++
		}
	}
	return n
}

func (r *RunReport) Passed() int  { return r.count(StatusPassed) }
func (r *RunReport) Failed() int  { return r.count(StatusFailed) }
func (r *RunReport) Skipped() int { return r.count(StatusSkipped) }

// Ok reports whether no scenario failed.
func (r *RunReport) Ok() bool { return r.Failed() == 0 }

// Write stores the report as report-<run id>.json in dir and returns the
// file path.
func (r *RunReport) Write(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create report directory: %w", err)
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal report: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("report-%s.json", r.RunID))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write report: %w", err)
	}
	return path, nil
}

// ReadRunReport loads a report written by Write.
func ReadRunReport(path string) (*RunReport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var r RunReport
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to parse report %s: %w", path, err)
	}
	return &r, nil
}
