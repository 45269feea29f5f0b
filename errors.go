package main

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrElementNotFound   = errors.New("element not found")
	ErrTimeout           = errors.New("timed out")
	ErrContractViolation = errors.New("contract violation")
	ErrProviderFlow      = errors.New("payment provider flow failed")
	ErrContextMisuse     = errors.New("browsing context misuse")
	ErrUnsupported       = errors.New("not supported")
	ErrNoEmail           = errors.New("no email received")
	ErrAssertion         = errors.New("assertion failed")
)

// StepError records which component and step failed and on which element.
type StepError struct {
	Component string
	Step      string
	Label     string
	Err       error
}

func (e *StepError) Error() string {
	var b strings.Builder
	b.WriteString(e.Component)
	if e.Step != "" {
		b.WriteString(": ")
		b.WriteString(e.Step)
	}
	if e.Label != "" {
		b.WriteString(" [")
		b.WriteString(e.Label)
		b.WriteString("]")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *StepError) Unwrap() error {
	return e.Err
}

func stepError(component, step string, loc Locator, err error) error {
	if err == nil {
		return nil
	}
	return &StepError{Component: component, Step: step, Label: loc.Label(), Err: err}
}

func contractViolation(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrContractViolation, fmt.Sprintf(format, args...))
}

func providerFailure(provider string, err error) error {
	if errors.Is(err, ErrProviderFlow) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrProviderFlow, provider, err)
}

func notFound(loc Locator) error {
	return fmt.Errorf("%w: %s", ErrElementNotFound, loc.Label())
}

func timedOut(what string, loc Locator) error {
	return fmt.Errorf("%w: %s %s", ErrTimeout, what, loc.Label())
}

func assertionFailed(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrAssertion, fmt.Sprintf(format, args...))
}

func isTimeoutError(err error) bool {
	return errors.Is(err, ErrTimeout)
}

func isContractViolation(err error) bool {
	return errors.Is(err, ErrContractViolation)
}

func isProviderFailure(err error) bool {
	return errors.Is(err, ErrProviderFlow)
}
