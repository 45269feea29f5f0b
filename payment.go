package main

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

type PaymentMethod string

const (
	PaymentCreditCard PaymentMethod = "credit_card"
	PaymentPayPal     PaymentMethod = "paypal"
	PaymentApplePay   PaymentMethod = "apple_pay"
	PaymentGooglePay  PaymentMethod = "google_pay"
	PaymentKlarna     PaymentMethod = "klarna"
	PaymentGiftCard   PaymentMethod = "gift_card"
)

// ParsePaymentMethod is case-insensitive and accepts "googlepay".
func ParsePaymentMethod(s string) (PaymentMethod, error) {
	switch m := PaymentMethod(strings.ToLower(strings.TrimSpace(s))); m {
	case PaymentCreditCard, PaymentPayPal, PaymentApplePay, PaymentGooglePay, PaymentKlarna, PaymentGiftCard:
		return m, nil
	case "googlepay":
		return PaymentGooglePay, nil
	default:
		return "", contractViolation("unknown payment method %q", s)
	}
}

// CardRecord is a sandbox card. Pin is only used by gift cards.
type CardRecord struct {
	Type           string `json:"type"`
	Number         string `json:"number"`
	ExpiryDate     string `json:"expiryDate"`
	CVV            string `json:"cvv"`
	CardholderName string `json:"cardholderName"`
	Pin            string `json:"pin,omitempty"`
}

// Adyen sandbox cards.
var sandboxCards = map[string]CardRecord{
	"visa":       {Type: "visa", Number: "4111 1111 4555 1142", ExpiryDate: "03/30", CVV: "737", CardholderName: "Test Visa"},
	"mastercard": {Type: "mastercard", Number: "5555 3412 4444 1115", ExpiryDate: "03/30", CVV: "737", CardholderName: "Test Mastercard"},
	"amex":       {Type: "amex", Number: "3700 0000 0000 002", ExpiryDate: "03/30", CVV: "7373", CardholderName: "Test Amex"},
	"discover":   {Type: "discover", Number: "6011 6011 6011 6611", ExpiryDate: "03/30", CVV: "737", CardholderName: "Test Discover"},
	"jcb":        {Type: "jcb", Number: "3569 9900 1009 5841", ExpiryDate: "03/30", CVV: "737", CardholderName: "Test JCB"},
	"diners":     {Type: "diners", Number: "3600 6666 3333 44", ExpiryDate: "03/30", CVV: "737", CardholderName: "Test Diners"},
	"unionpay":   {Type: "unionpay", Number: "6243 0300 0000 0001", ExpiryDate: "03/30", CVV: "737", CardholderName: "Test UnionPay"},
	"giftcard":   {Type: "giftcard", Number: "6036 2800 0000 0000 000", Pin: "123", CardholderName: "Test Gift Card"},
}

// CardFor looks up a sandbox card by type.
func CardFor(cardType string) (CardRecord, error) {
	card, ok := sandboxCards[strings.ToLower(cardType)]
	if !ok {
		return CardRecord{}, contractViolation("unknown card type %q", cardType)
	}
	return card, nil
}

var (
	placeOrderButton = Build(`button[data-sid="checkout_paynow"]`, As("Place Order Button"))

	cardNumberFrame = Build(`[title="Iframe for card number"]`, As("Card Number Frame"))
	cardExpiryFrame = Build(`[title="Iframe for expiry date"]`, As("Expiry Date Frame"))
	cardCVVFrame    = Build(`[title="Iframe for security code"]`, As("CVV Frame"))
	giftPinFrame    = Build(`[title="Iframe for pin"]`, As("Gift Card Pin Frame"))

	cardNumberInput = Build(`input[id^='adyen-checkout-encryptedCardNumber']`, As("Card Number Input"))
	cardExpiryInput = Build(`input[id^='adyen-checkout-encryptedExpiryDate']`, As("Expiry Date Input"))
	cardCVVInput    = Build(`input[id^='adyen-checkout-encryptedSecurityCode']`, As("CVV Input"))
	cardHolderInput = Build(`input[name="holderName"]`, As("Cardholder Name Input"))

	giftNumberInput    = Build(`input[data-fieldtype="encryptedCardNumber"]`, As("Gift Card Number Input"))
	giftPinInput       = Build(`input[data-fieldtype="encryptedSecurityCode"]`, As("Gift Card Pin Input"))
	redeemGiftButton   = Build(`[data-sid="checkout_checkgiftcard"]`, As("Redeem Gift Card Button"))
	removeGiftButton   = Build(`[aria-label="Remove gift card payment method"]`, As("Remove Gift Card Button"))
	confirmGiftPayment = Build(`button[data-sid="checkout_giftcard_button"]`, As("Confirm Payment Button"))

	paypalFrame          = Build(`iframe[title="PayPal"]`, As("PayPal Frame"))
	paypalPayButton      = Build(`[aria-label="PayPal"]`, As("PayPal Pay Button"))
	paypalEmailInput     = Build(`#email`, As("PayPal Email Input"))
	paypalNextButton     = Build(`#btnNext`, As("PayPal Next Button"))
	paypalPasswordInput  = Build(`#password`, As("PayPal Password Input"))
	paypalLoginButton    = Build(`#btnLogin`, As("PayPal Login Button"))
	paypalApprovalButton = Build(`button[data-testid="submit-button-initial"]`, As("PayPal Submit Button"))

	klarnaSubmitButton   = Build(`#klarna-container button`, As("Klarna Submit Button"))
	klarnaPhoneInput     = Build(`#phone`, As("Klarna Phone Number Input"))
	klarnaContinueButton = Build(`#onContinue`, As("Klarna Continue Button"))
	klarnaOTPInput       = Build(`#otp_field`, As("Klarna OTP Code Input"))
	klarnaPickPlan       = Build(`[data-testid="pick-plan"]`, As("Klarna Continue With Plan"))
	klarnaBuyButton      = Build(`#buy_button`, As("Klarna Buy Button"))
)

// PaymentContext tracks the browsing context a payment flow has switched
// into. Frames do not nest and only one popup may be open; violating either
// fails with ErrContextMisuse instead of silently acting in the wrong
// document.
type PaymentContext struct {
	driver    Driver
	logger    *zap.Logger
	timeouts  TimeoutConfig
	method    PaymentMethod
	inFrame   bool
	popupOpen bool
}

func NewPaymentContext(driver Driver, method PaymentMethod, timeouts TimeoutConfig, logger *zap.Logger) *PaymentContext {
	return &PaymentContext{
		driver:   driver,
		logger:   logger,
		timeouts: timeouts,
		method:   method,
	}
}

func (p *PaymentContext) Method() PaymentMethod { return p.method }

func (p *PaymentContext) InFrame() bool { return p.inFrame }

func (p *PaymentContext) PopupOpen() bool { return p.popupOpen }

func (p *PaymentContext) EnterFrame(ctx context.Context, frame Locator) error {
	if p.inFrame {
		return fmt.Errorf("%w: already inside a frame, cannot enter %s", ErrContextMisuse, frame.Label())
	}
	if err := p.driver.EnterFrame(ctx, frame); err != nil {
		return err
	}
	p.inFrame = true
	return nil
}

func (p *PaymentContext) ResetToTop(ctx context.Context) error {
	if err := p.driver.ExitToTop(ctx); err != nil {
		return err
	}
	p.inFrame = false
	return nil
}

// WithinFrame runs fn inside frame and always returns to the top document.
func (p *PaymentContext) WithinFrame(ctx context.Context, frame Locator, fn func() error) (err error) {
	if err := p.EnterFrame(ctx, frame); err != nil {
		return err
	}
	defer func() {
		if resetErr := p.ResetToTop(ctx); resetErr != nil && err == nil {
			err = resetErr
		}
	}()
	return fn()
}

// OpenPopup waits until exactly two tabs exist and switches to the new one.
func (p *PaymentContext) OpenPopup(ctx context.Context) error {
	if p.popupOpen {
		return fmt.Errorf("%w: a provider popup is already open", ErrContextMisuse)
	}
	if p.inFrame {
		return fmt.Errorf("%w: cannot switch tabs from inside a frame", ErrContextMisuse)
	}
	if err := p.driver.WaitForTabs(ctx, 2, p.timeouts.Tabs); err != nil {
		return err
	}
	if err := p.driver.SwitchToNextTab(ctx); err != nil {
		return err
	}
	p.logger.Debug("switched to provider popup")
	p.popupOpen = true
	return nil
}

// ReturnToOrigin switches back to the storefront tab. A popup that closed
// itself after approval leaves nothing to switch away from.
func (p *PaymentContext) ReturnToOrigin(ctx context.Context) error {
	if !p.popupOpen {
		return fmt.Errorf("%w: no provider popup to return from", ErrContextMisuse)
	}
	n, err := p.driver.TabCount(ctx)
	if err != nil {
		return err
	}
	if n > 1 {
		if err := p.driver.SwitchToPreviousTab(ctx); err != nil {
			return err
		}
	} else {
		p.logger.Debug("provider popup already closed")
	}
	p.popupOpen = false
	return nil
}

// Close restores the top document of the storefront tab.
func (p *PaymentContext) Close(ctx context.Context) error {
	var firstErr error
	if p.inFrame {
		if err := p.ResetToTop(ctx); err != nil {
			firstErr = err
		}
	}
	if p.popupOpen {
		if err := p.ReturnToOrigin(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (p *PaymentContext) fill(ctx context.Context, loc Locator, value string) error {
	if err := p.driver.Fill(ctx, loc, value); err != nil {
		return stepError("payment."+string(p.method), "fill", loc, err)
	}
	return nil
}

func (p *PaymentContext) click(ctx context.Context, loc Locator) error {
	if err := p.driver.Click(ctx, loc); err != nil {
		return stepError("payment."+string(p.method), "click", loc, err)
	}
	return nil
}

func (p *PaymentContext) waitFor(ctx context.Context, loc Locator) error {
	if err := p.driver.WaitVisible(ctx, loc, p.timeouts.Wait); err != nil {
		return stepError("payment."+string(p.method), "wait", loc, err)
	}
	return nil
}

// PaymentAdapter performs one provider's payment flow. Enter fills in the
// payment details; Submit places the order through that provider and is
// called exactly once.
type PaymentAdapter interface {
	Method() PaymentMethod
	Enter(ctx context.Context, pc *PaymentContext) error
	Submit(ctx context.Context, pc *PaymentContext) error
}

// CardAdapter pays with a card whose fields live in three hosted iframes.
type CardAdapter struct {
	Card CardRecord
}

func (a CardAdapter) Method() PaymentMethod { return PaymentCreditCard }

func (a CardAdapter) Enter(ctx context.Context, pc *PaymentContext) error {
	if err := pc.waitFor(ctx, cardNumberFrame); err != nil {
		return err
	}

	fields := []struct {
		frame Locator
		input Locator
		value string
	}{
		{cardNumberFrame, cardNumberInput, a.Card.Number},
		{cardExpiryFrame, cardExpiryInput, a.Card.ExpiryDate},
		{cardCVVFrame, cardCVVInput, a.Card.CVV},
	}
	for _, f := range fields {
		if err := pc.WithinFrame(ctx, f.frame, func() error {
			return pc.fill(ctx, f.input, f.value)
		}); err != nil {
			return err
		}
	}

	// the holder name is in the top document
	if err := pc.ResetToTop(ctx); err != nil {
		return err
	}
	return pc.fill(ctx, cardHolderInput, a.Card.CardholderName)
}

func (a CardAdapter) Submit(ctx context.Context, pc *PaymentContext) error {
	if err := pc.waitFor(ctx, placeOrderButton); err != nil {
		return err
	}
	return pc.click(ctx, placeOrderButton)
}

// GiftCardAdapter redeems a gift card. The remove-gift-card control only
// appears once the balance has been applied.
type GiftCardAdapter struct {
	Card CardRecord
}

func (a GiftCardAdapter) Method() PaymentMethod { return PaymentGiftCard }

func (a GiftCardAdapter) Enter(ctx context.Context, pc *PaymentContext) error {
	if err := pc.waitFor(ctx, cardNumberFrame); err != nil {
		return err
	}
	if err := pc.WithinFrame(ctx, cardNumberFrame, func() error {
		return pc.fill(ctx, giftNumberInput, a.Card.Number)
	}); err != nil {
		return err
	}
	if err := pc.WithinFrame(ctx, giftPinFrame, func() error {
		return pc.fill(ctx, giftPinInput, a.Card.Pin)
	}); err != nil {
		return err
	}
	if err := pc.ResetToTop(ctx); err != nil {
		return err
	}
	return pc.click(ctx, redeemGiftButton)
}

func (a GiftCardAdapter) Submit(ctx context.Context, pc *PaymentContext) error {
	if err := pc.waitFor(ctx, removeGiftButton); err != nil {
		return err
	}
	if err := pc.waitFor(ctx, confirmGiftPayment); err != nil {
		return err
	}
	return pc.click(ctx, confirmGiftPayment)
}

type PayPalCredentials struct {
	Email    string
	Password string
}

// PayPalAdapter approves the payment in PayPal's popup window. Nothing is
// entered on the storefront itself.
type PayPalAdapter struct {
	Credentials PayPalCredentials
}

func (a PayPalAdapter) Method() PaymentMethod { return PaymentPayPal }

func (a PayPalAdapter) Enter(ctx context.Context, pc *PaymentContext) error {
	if a.Credentials.Email == "" || a.Credentials.Password == "" {
		return fmt.Errorf("%w: PAYPAL_TEST_EMAIL and PAYPAL_TEST_PASSWORD must be set", ErrContractViolation)
	}
	return nil
}

func (a PayPalAdapter) Submit(ctx context.Context, pc *PaymentContext) error {
	if err := pc.waitFor(ctx, paypalFrame); err != nil {
		return err
	}
	// the smart button renders after the frame attaches
	if err := sleep(ctx, pc.timeouts.Autocomplete); err != nil {
		return err
	}
	if err := pc.WithinFrame(ctx, paypalFrame, func() error {
		return pc.click(ctx, paypalPayButton)
	}); err != nil {
		return err
	}

	if err := pc.OpenPopup(ctx); err != nil {
		return err
	}

	steps := []func() error{
		func() error { return pc.waitFor(ctx, paypalEmailInput) },
		func() error { return pc.fill(ctx, paypalEmailInput, a.Credentials.Email) },
		func() error { return pc.click(ctx, paypalNextButton) },
		func() error { return pc.waitFor(ctx, paypalPasswordInput) },
		func() error { return pc.fill(ctx, paypalPasswordInput, a.Credentials.Password) },
		func() error { return pc.click(ctx, paypalLoginButton) },
		func() error { return pc.waitFor(ctx, paypalApprovalButton) },
		func() error { return pc.click(ctx, paypalApprovalButton) },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return err
		}
	}

	return pc.ReturnToOrigin(ctx)
}

type KlarnaCredentials struct {
	Phone string
	OTP   string
}

// KlarnaAdapter completes Klarna's phone and one-time-code flow.
type KlarnaAdapter struct {
	Credentials KlarnaCredentials
}

func (a KlarnaAdapter) Method() PaymentMethod { return PaymentKlarna }

func (a KlarnaAdapter) Enter(ctx context.Context, pc *PaymentContext) error {
	if a.Credentials.Phone == "" || a.Credentials.OTP == "" {
		return fmt.Errorf("%w: KLARNA_PHONE_US and KLARNA_OTP must be set", ErrContractViolation)
	}
	return nil
}

func (a KlarnaAdapter) Submit(ctx context.Context, pc *PaymentContext) error {
	steps := []func() error{
		func() error { return pc.waitFor(ctx, klarnaSubmitButton) },
		func() error { return pc.click(ctx, klarnaSubmitButton) },
		func() error { return pc.waitFor(ctx, klarnaPhoneInput) },
		func() error { return pc.fill(ctx, klarnaPhoneInput, a.Credentials.Phone) },
		func() error { return pc.click(ctx, klarnaContinueButton) },
		func() error { return pc.waitFor(ctx, klarnaOTPInput) },
		func() error { return pc.fill(ctx, klarnaOTPInput, a.Credentials.OTP) },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return err
		}
	}

	// plan selection is only offered for some baskets
	n, err := pc.driver.CountVisible(ctx, klarnaPickPlan, pc.timeouts.Interstitial)
	if err != nil {
		return err
	}
	if n > 0 {
		if err := pc.click(ctx, klarnaPickPlan); err != nil {
			return err
		}
	}

	if err := pc.waitFor(ctx, klarnaBuyButton); err != nil {
		return err
	}
	return pc.click(ctx, klarnaBuyButton)
}

// GooglePayAdapter exists so the method is selectable; the wallet sheet
// cannot be automated and every call fails with ErrUnsupported.
type GooglePayAdapter struct{}

func (GooglePayAdapter) Method() PaymentMethod { return PaymentGooglePay }

func (GooglePayAdapter) Enter(context.Context, *PaymentContext) error {
	return fmt.Errorf("google pay: %w", ErrUnsupported)
}

func (GooglePayAdapter) Submit(context.Context, *PaymentContext) error {
	return fmt.Errorf("google pay: %w", ErrUnsupported)
}
