package main

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const preflightUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

// WaitForStorefront polls url with HEAD requests until the storefront
// answers with anything below 500 or timeout passes. Access gates answer
// 401 or 403 and count as reachable.
func WaitForStorefront(ctx context.Context, url string, timeout, interval time.Duration, logger *zap.Logger) error {
	client := &http.Client{
		Timeout: 5 * time.Second,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	deadline := time.Now().Add(timeout)
	attempt := 0
	for {
		attempt++
		status, err := headStatus(ctx, client, url)
		if err == nil && status < http.StatusInternalServerError {
			logger.Debug("storefront reachable", zap.String("url", url), zap.Int("status", status), zap.Int("attempts", attempt))
			return nil
		}

		if err != nil && !isNetworkError(err) {
			return fmt.Errorf("storefront %s unreachable: %w", url, err)
		}
		if time.Now().After(deadline) {
			if err != nil {
				return fmt.Errorf("%w: storefront %s unreachable after %d attempts: %v", ErrTimeout, url, attempt, err)
			}
			return fmt.Errorf("%w: storefront %s answered %d after %d attempts", ErrTimeout, url, status, attempt)
		}

		logger.Debug("storefront not ready", zap.String("url", url), zap.Int("status", status), zap.Error(err))
		if err := sleep(ctx, interval); err != nil {
			return err
		}
	}
}

func headStatus(ctx context.Context, client *http.Client, url string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", preflightUserAgent)

	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	resp.Body.Close()
	return resp.StatusCode, nil
}

// isNetworkError checks if an error is a network/timeout error that should be retried
func isNetworkError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "context deadline exceeded") ||
		strings.Contains(errStr, "Client.Timeout") ||
		strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "EOF") ||
		strings.Contains(errStr, "broken pipe") ||
		strings.Contains(errStr, "network is unreachable") ||
		strings.Contains(errStr, "no route to host") ||
		strings.Contains(errStr, "no such host")
}
