package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

type ModalType int

const (
	ModalAccessGate ModalType = iota + 1
	ModalRegionPicker
	ModalConsentBanner
)

func (t ModalType) String() string {
	switch t {
	case ModalAccessGate:
		return "access-gate"
	case ModalRegionPicker:
		return "region-picker"
	case ModalConsentBanner:
		return "consent-banner"
	default:
		return fmt.Sprintf("modal(%d)", int(t))
	}
}

// ParseModalType accepts both the canonical names and the names CI scripts
// used historically.
func ParseModalType(s string) (ModalType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "access-gate", "prodaccess":
		return ModalAccessGate, nil
	case "region-picker", "countryselection":
		return ModalRegionPicker, nil
	case "consent-banner", "usercentrics":
		return ModalConsentBanner, nil
	default:
		return 0, contractViolation("unknown modal type %q", s)
	}
}

type ModalState int

const (
	ModalUnknown ModalState = iota
	ModalAbsent
	ModalPresent
	ModalDismissed
	ModalDismissFailed
)

func (s ModalState) String() string {
	switch s {
	case ModalAbsent:
		return "ABSENT"
	case ModalPresent:
		return "PRESENT"
	case ModalDismissed:
		return "DISMISSED"
	case ModalDismissFailed:
		return "DISMISS_FAILED"
	default:
		return "UNKNOWN"
	}
}

// ModalOutcome is the result of one detect-and-dismiss pass. Handled is true
// only for DISMISSED.
type ModalOutcome struct {
	Type    ModalType
	State   ModalState
	Handled bool
	Method  string
	Err     error
}

// ModalDescriptor says how a modal is detected, resolved and confirmed
// gone. DetectWithin bounds the presence probe. Resolve returns the method
// that dismissed the modal; it must wait for Dismissed to become invisible.
type ModalDescriptor struct {
	Type         ModalType
	Detect       Locator
	Dismissed    Locator
	DetectWithin time.Duration
	Resolve      func(ctx context.Context, d ModalDescriptor) (string, error)
}

// errLeftInPlace reports a modal that is present but deliberately not
// dismissed.
var errLeftInPlace = errors.New("modal left in place")

var modalOrder = []ModalType{ModalAccessGate, ModalRegionPicker, ModalConsentBanner}

// Consent banner candidates, tried in order inside its shadow root.
var consentAcceptSelectors = []string{
	`button[data-testid="uc-accept-all-button"]`,
	`button#accept`,
	`button[aria-label="ACCEPT ALL"]`,
	`button.accept.uc-accept-button`,
	`button[data-action-type="accept"]`,
}

const consentHostSelector = "#usercentrics-cmp-ui"

const consentAcceptScript = `(host, selectors) => {
	const modal = document.querySelector(host);
	if (!modal) {
		return { error: "Modal not found" };
	}
	if (!modal.shadowRoot) {
		return { error: "Shadow root not found" };
	}
	for (const selector of selectors) {
		const button = modal.shadowRoot.querySelector(selector);
		if (button) {
			button.click();
			return { success: true, method: selector };
		}
	}
	for (const button of modal.shadowRoot.querySelectorAll("button")) {
		const label = button.getAttribute("aria-label") || "";
		if (button.textContent.includes("ACCEPT") || label.includes("ACCEPT")) {
			button.click();
			return { success: true, method: "text-based" };
		}
	}
	return { error: "Accept button not found" };
}`

var regionFlagNames = map[string]string{
	"ca": "Canada",
	"us": "United-States",
	"de": "Germany",
}

var (
	accessGateContainer = Build(`//h2[contains(text(), "Prod Access Control")] | //div[contains(text(), "Prod Access Control")]`,
		As("Production Access Control Container"))
	accessGatePassword = Build(`//input[@name="password"]`, As("Production Access Password Input"))
	accessGateSubmit   = Build(`//button[@type="submit"] | //button[contains(text(), "Submit")]`,
		As("Production Access Submit Button"))
	accessGateHeading = Build(`//h1[contains(text(), "Prod Access Control")]`, As("Production Access Dismiss Selector"))

	regionDialog    = Build(`[data-sentry-element="DialogContent"]`, As("Country Selection Dialog Container"))
	consentBannerUI = Build(consentHostSelector, As("Usercentrics Privacy Modal Container"))
)

func regionFlag(country string) Locator {
	name, ok := regionFlagNames[strings.ToLower(country)]
	if !ok {
		name = regionFlagNames["ca"]
	}
	return Build(fmt.Sprintf(`[alt="%s-flag"]`, name), As(name+" Flag Button"))
}

// ModalEngine detects and dismisses the interruptions the storefront puts
// in front of a page, always in the order access gate, region picker,
// consent banner.
type ModalEngine struct {
	driver      Driver
	logger      *zap.Logger
	timeouts    TimeoutConfig
	country     string
	password    string
	descriptors map[ModalType]ModalDescriptor
}

func NewModalEngine(driver Driver, config *Config, logger *zap.Logger) *ModalEngine {
	t := config.Timeouts
	m := &ModalEngine{
		driver:   driver,
		logger:   logger.Named("modals"),
		timeouts: t,
		country:  config.Country,
		password: config.Secrets.AccessGatePassword,
	}
	m.descriptors = map[ModalType]ModalDescriptor{
		ModalAccessGate: {
			Type:         ModalAccessGate,
			Detect:       accessGateContainer,
			Dismissed:    accessGateHeading,
			DetectWithin: t.ModalDetect,
			Resolve:      m.dismissAccessGate,
		},
		ModalRegionPicker: {
			Type:         ModalRegionPicker,
			Detect:       regionDialog,
			Dismissed:    regionDialog,
			DetectWithin: minDuration(time.Second, t.ModalDetect),
			Resolve:      m.dismissRegionPicker,
		},
		ModalConsentBanner: {
			Type:         ModalConsentBanner,
			Detect:       consentBannerUI,
			Dismissed:    consentBannerUI,
			DetectWithin: t.ModalDetect,
			Resolve:      m.dismissConsentBanner,
		},
	}
	return m
}

// HandleAll runs every modal handler in priority order. A failure in one
// handler is recorded in its outcome and never stops the next.
func (m *ModalEngine) HandleAll(ctx context.Context) []ModalOutcome {
	outcomes := make([]ModalOutcome, 0, len(modalOrder))
	for _, t := range modalOrder {
		outcome := m.handle(ctx, t)
		m.logOutcome(outcome)
		outcomes = append(outcomes, outcome)
	}
	return outcomes
}

// Handle runs a single modal's handler.
func (m *ModalEngine) Handle(ctx context.Context, t ModalType) (ModalOutcome, error) {
	if _, ok := m.descriptors[t]; !ok {
		return ModalOutcome{Type: t}, contractViolation("unknown modal type %s", t)
	}
	outcome := m.handle(ctx, t)
	m.logOutcome(outcome)
	return outcome, nil
}

// IsPresent is a single non-failing probe. Probe errors read as absent.
func (m *ModalEngine) IsPresent(ctx context.Context, t ModalType) (bool, error) {
	d, ok := m.descriptors[t]
	if !ok {
		return false, contractViolation("unknown modal type %s", t)
	}
	n, err := m.driver.CountVisible(ctx, d.Detect, 0)
	if err != nil {
		m.logger.Debug("presence probe failed", zap.Stringer("modal", t), zap.Error(err))
		return false, nil
	}
	return n > 0, nil
}

func (m *ModalEngine) handle(ctx context.Context, t ModalType) ModalOutcome {
	d := m.descriptors[t]
	outcome := ModalOutcome{Type: t, State: ModalUnknown}

	n, err := m.driver.CountVisible(ctx, d.Detect, d.DetectWithin)
	if err != nil {
		// A failed probe must not abort the page, so it reads as absent.
		m.logger.Debug("presence probe failed", zap.Stringer("modal", t), zap.Error(err))
		outcome.State = ModalAbsent
		return outcome
	}
	if n == 0 {
		outcome.State = ModalAbsent
		return outcome
	}
	outcome.State = ModalPresent

	method, err := d.Resolve(ctx, d)
	if errors.Is(err, errLeftInPlace) {
		return outcome
	}
	if err != nil {
		outcome.State = ModalDismissFailed
		outcome.Err = err
		return outcome
	}

	outcome.State = ModalDismissed
	outcome.Handled = true
	outcome.Method = method
	if err := sleep(ctx, m.timeouts.ModalSettle); err != nil {
		outcome.Err = err
	}
	return outcome
}

func (m *ModalEngine) dismissAccessGate(ctx context.Context, d ModalDescriptor) (string, error) {
	if m.password == "" {
		m.logger.Warn("access gate present but HENCKELS_PROD_PASSWORD is not set; leaving it in place")
		return "", errLeftInPlace
	}
	if err := m.driver.Fill(ctx, accessGatePassword, m.password); err != nil {
		return "", stepError("modals", "fill access password", accessGatePassword, err)
	}
	if err := m.driver.Click(ctx, accessGateSubmit); err != nil {
		return "", stepError("modals", "submit access password", accessGateSubmit, err)
	}
	if err := m.driver.WaitInvisible(ctx, d.Dismissed, m.timeouts.ModalDismiss); err != nil {
		return "", stepError("modals", "wait for access gate to close", d.Dismissed, err)
	}
	return "password", nil
}

func (m *ModalEngine) dismissRegionPicker(ctx context.Context, d ModalDescriptor) (string, error) {
	flag := regionFlag(m.country)
	if err := m.driver.Click(ctx, flag); err != nil {
		return "", stepError("modals", "choose region", flag, err)
	}
	if err := m.driver.WaitInvisible(ctx, d.Dismissed, m.timeouts.ModalDismiss); err != nil {
		return "", stepError("modals", "wait for region picker to close", d.Dismissed, err)
	}
	return flag.Label(), nil
}

// dismissConsentBanner clicks the accept button inside the banner's shadow
// root. Ordinary locators cannot cross the shadow boundary, so this is the
// one place that evaluates script in the page.
func (m *ModalEngine) dismissConsentBanner(ctx context.Context, d ModalDescriptor) (string, error) {
	// the shadow root attaches shortly after the host element
	if err := sleep(ctx, m.timeouts.ModalSettle); err != nil {
		return "", err
	}

	raw, err := m.driver.EvaluateInPage(ctx, consentAcceptScript, consentHostSelector, consentAcceptSelectors)
	if err != nil {
		return "", fmt.Errorf("evaluate consent script: %w", err)
	}

	result, ok := raw.(map[string]interface{})
	if !ok {
		return "", fmt.Errorf("unexpected consent script result %T", raw)
	}
	if success, _ := result["success"].(bool); success {
		method, _ := result["method"].(string)
		if err := m.driver.WaitInvisible(ctx, d.Dismissed, m.timeouts.ModalDismiss); err != nil {
			return "", stepError("modals", "wait for consent banner to close", d.Dismissed, err)
		}
		return method, nil
	}
	reason, _ := result["error"].(string)
	if reason == "" {
		reason = "unknown"
	}
	return "", errors.New("consent banner: " + reason)
}

func (m *ModalEngine) logOutcome(o ModalOutcome) {
	fields := []zap.Field{zap.Stringer("modal", o.Type), zap.Stringer("state", o.State)}
	if o.Method != "" {
		fields = append(fields, zap.String("method", o.Method))
	}
	switch {
	case o.Err != nil:
		m.logger.Warn("modal not dismissed", append(fields, zap.Error(o.Err))...)
	case o.State == ModalAbsent:
		m.logger.Debug("modal not present", fields...)
	case !o.Handled:
		m.logger.Info("modal left in place", fields...)
	default:
		m.logger.Info("modal handled", fields...)
	}
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
