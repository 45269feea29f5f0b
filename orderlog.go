package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	orderLogFile      = "order_numbers.txt"
	orderLogSeparator = "============================================================"
)

// OrderLog is the plain text file every successful checkout appends its
// order to. Each entry goes out in a single append write, so concurrent
// scenarios never interleave within an entry.
type OrderLog struct {
	path string
	now  func() time.Time
}

func NewOrderLog(dir string) *OrderLog {
	return &OrderLog{path: filepath.Join(dir, orderLogFile), now: time.Now}
}

func (l *OrderLog) Path() string { return l.path }

// Reset removes the log. It runs once at suite start.
func (l *OrderLog) Reset() error {
	if err := os.Remove(l.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to reset order log: %w", err)
	}
	return nil
}

// Append writes one entry for testName. Empty fields are written as N/A.
func (l *OrderLog) Append(record OrderDetailsRecord, testName string) error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return fmt.Errorf("failed to create order log directory: %w", err)
	}

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open order log: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(l.format(record, testName)); err != nil {
		return fmt.Errorf("failed to write order log: %w", err)
	}
	return nil
}

func (l *OrderLog) format(record OrderDetailsRecord, testName string) string {
	orNA := func(s string) string {
		if strings.TrimSpace(s) == "" {
			return notAvailable
		}
		return s
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s - Test: %s\n", l.now().UTC().Format("2006-01-02T15:04:05.000Z"), testName)
	fmt.Fprintf(&b, "  Order Number: %s\n", orNA(record.Number))
	fmt.Fprintf(&b, "  Order Date: %s\n", orNA(record.Date))
	fmt.Fprintf(&b, "  Order Status: %s\n", orNA(record.Status))
	fmt.Fprintf(&b, "  Order Total: %s\n", orNA(record.Total))
	b.WriteString(orderLogSeparator)
	b.WriteString("\n")
	return b.String()
}

// OrderLogEntry is one parsed entry of the log.
type OrderLogEntry struct {
	Timestamp string
	TestName  string
	Order     OrderDetailsRecord
}

// ReadAll parses every entry in the log. A missing log has no entries.
func (l *OrderLog) ReadAll() ([]OrderLogEntry, error) {
	f, err := os.Open(l.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open order log: %w", err)
	}
	defer f.Close()

	var (
		entries []OrderLogEntry
		current *OrderLogEntry
	)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == orderLogSeparator:
			if current != nil {
				entries = append(entries, *current)
				current = nil
			}
		case strings.Contains(line, " - Test: ") && !strings.HasPrefix(line, " "):
			ts, name, _ := strings.Cut(line, " - Test: ")
			current = &OrderLogEntry{Timestamp: ts, TestName: name}
		case current != nil:
			key, value, ok := strings.Cut(strings.TrimSpace(line), ": ")
			if !ok {
				continue
			}
			switch key {
			case "Order Number":
				current.Order.Number = value
			case "Order Date":
				current.Order.Date = value
			case "Order Status":
				current.Order.Status = value
			case "Order Total":
				current.Order.Total = value
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read order log: %w", err)
	}
	return entries, nil
}
