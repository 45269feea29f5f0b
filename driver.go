package main

import (
	"context"
	"time"
)

// Key names accepted by Driver.PressKey.
const (
	KeyEscape = "Escape"
	KeyEnter  = "Enter"
	KeyTab    = "Tab"
)

// Driver is the browser surface every page object and flow is written
// against. One Driver belongs to exactly one scenario and is used
// sequentially.
//
// Actions (Click, Fill, ...) wait up to the driver's configured wait timeout
// for the first visible match and fail with ErrElementNotFound or ErrTimeout
// naming the locator's label. CountVisible is the only probe: it polls up to
// within and reports 0 on absence instead of failing.
type Driver interface {
	Navigate(ctx context.Context, url string) error
	CurrentURL(ctx context.Context) (string, error)

	CountVisible(ctx context.Context, loc Locator, within time.Duration) (int, error)
	WaitVisible(ctx context.Context, loc Locator, timeout time.Duration) error
	WaitInvisible(ctx context.Context, loc Locator, timeout time.Duration) error

	Click(ctx context.Context, loc Locator) error
	Fill(ctx context.Context, loc Locator, value string) error
	Clear(ctx context.Context, loc Locator) error
	PressKey(ctx context.Context, key string) error
	SetChecked(ctx context.Context, loc Locator, checked bool) error

	Text(ctx context.Context, loc Locator) (string, error)
	TextAll(ctx context.Context, loc Locator) ([]string, error)
	Attribute(ctx context.Context, loc Locator, name string) (string, error)

	// EvaluateInPage runs a script in the top document. It is the only way
	// to reach into shadow roots.
	EvaluateInPage(ctx context.Context, script string, args ...interface{}) (interface{}, error)

	EnterFrame(ctx context.Context, loc Locator) error
	ExitToTop(ctx context.Context) error

	TabCount(ctx context.Context) (int, error)
	WaitForTabs(ctx context.Context, n int, timeout time.Duration) error
	SwitchToNextTab(ctx context.Context) error
	SwitchToPreviousTab(ctx context.Context) error

	Screenshot(ctx context.Context, path string) error
	Close() error
}

// DriverFactory opens a fresh isolated browser session.
type DriverFactory func(ctx context.Context) (Driver, error)

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
