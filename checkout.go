package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Stage is a checkout step. Stages only move forward, except that editing
// the shipping address returns to StageShipping and any stage may fail.
type Stage int

const (
	StageContact Stage = iota
	StageShipping
	StageAddressConfirm
	StagePaymentMethodSelected
	StagePaymentDetailsEntered
	StageSubmitted
	StageConfirmed
	StageFailed
)

func (s Stage) String() string {
	switch s {
	case StageContact:
		return "CONTACT"
	case StageShipping:
		return "SHIPPING"
	case StageAddressConfirm:
		return "ADDRESS_CONFIRM"
	case StagePaymentMethodSelected:
		return "PAYMENT_METHOD_SELECTED"
	case StagePaymentDetailsEntered:
		return "PAYMENT_DETAILS_ENTERED"
	case StageSubmitted:
		return "SUBMITTED"
	case StageConfirmed:
		return "CONFIRMED"
	case StageFailed:
		return "FAILED"
	default:
		return fmt.Sprintf("Stage(%d)", int(s))
	}
}

func (s Stage) terminal() bool {
	return s == StageConfirmed || s == StageFailed
}

var (
	guestEmailInput = Build(`[data-sid="contact_email"]`, As("Guest Email Input"))

	shippingSection    = Build(`[data-sentry-component="ShippingAddressSection"]`, As("Shipping Section"))
	shippingFirstName  = Build(`#firstName`, Inside(shippingSection), As("Shipping First Name Input"))
	shippingLastName   = Build(`#lastName`, Inside(shippingSection), As("Shipping Last Name Input"))
	shippingAddress1   = Build(`#address1`, Inside(shippingSection), As("Shipping Address Input"))
	shippingAddress2   = Build(`#address2`, Inside(shippingSection), As("Shipping Address 2 Input"))
	shippingCity       = Build(`#city`, Inside(shippingSection), As("Shipping City Input"))
	shippingState      = Build(`button[aria-label="stateCode"]`, Inside(shippingSection), As("Shipping State Select"))
	shippingZip        = Build(`#postalCode`, Inside(shippingSection), As("Shipping Zip Input"))
	shippingPhone      = Build(`[name="phone"]`, Inside(shippingSection), As("Shipping Phone Input"))
	editShippingButton = Build(`[title="Edit customer information"]`, Inside(shippingSection), As("Edit Shipping Button"))

	billingSection       = Build(`[data-sentry-component="BillingAddressSection"]`, As("Billing Section"))
	billingSameAsShip    = Build(`[data-sid="checkout_useshipping"]`, As("Billing Same As Shipping Checkbox"))
	billingFirstName     = Build(`#firstName`, Inside(billingSection), As("Billing First Name Input"))
	billingLastName      = Build(`#lastName`, Inside(billingSection), As("Billing Last Name Input"))
	billingAddress1      = Build(`#address1`, Inside(billingSection), As("Billing Address Input"))
	billingAddress2      = Build(`#address2`, Inside(billingSection), As("Billing Address 2 Input"))
	billingCity          = Build(`#city`, Inside(billingSection), As("Billing City Input"))
	billingState         = Build(`button[aria-label="stateCode"]`, Inside(billingSection), As("Billing State Select"))
	billingZip           = Build(`#postalCode`, Inside(billingSection), As("Billing Zip Input"))
	billingCountry       = Build(`button[aria-label="countryCode"]`, Inside(billingSection), As("Billing Country Select"))
	billingPhone         = Build(`[name="phone"]`, Inside(billingSection), As("Billing Phone Input"))
	addressConfirmDialog = Build(`[data-sentry-element="DialogContent"]`, As("Address Normalisation Modal"))
	keepAddressButton    = Build(`[data-sentry-element="Button"]`, Inside(addressConfirmDialog), AsFirst(), As("Keep Address Button"))
	continueButton       = Build(`//button[contains(text(), "Save & Continue")]`, As("Continue Button"))

	paymentSection = Build(`#payment-section`, As("Payment Section"))

	orderTotalAmount    = Build(`[data-testid="order-total"]`, As("Order Total Amount"))
	orderShippingAmount = Build(`[data-testid="order-shipping"]`, As("Order Shipping Amount"))
	orderDiscountAmount = Build(`[data-testid="order-discount"]`, As("Order Discount Amount"))

	promoCodeInput   = Build(`[data-sid="checkout_promocode_input"]`, AsLast(), As("Promo Code Input"))
	promoApplyButton = Build(`[data-sid="checkout_promocode_apply"]`, As("Promo Code Apply Button"))
	promoMessage     = Build(`form.w-full>div>div`, AsLast(), As("Promo Code Message"))
	promoRemove      = Build(`[data-testid="remove-promo"]`, As("Promo Code Remove Button"))

	newsletterCheckbox = Build(`#newsSignUp-accept`, As("Newsletter Checkbox"))
)

var paymentOptions = map[PaymentMethod]Locator{
	PaymentCreditCard: Build(`[for="opt-scheme"]`, As("Credit Card Payment Option")),
	PaymentGiftCard:   Build(`[for="opt-giftcard"]`, As("Gift Card Payment Option")),
	PaymentGooglePay:  Build(`[for="opt-googlepay"]`, As("Google Pay Payment Option")),
	PaymentPayPal:     Build(`[for="opt-paypal"]`, As("PayPal Payment Option")),
	PaymentApplePay:   Build(`[for="opt-applepay"]`, As("Apple Pay Payment Option")),
	PaymentKlarna:     Build(`[for="opt-klarna_account"]`, As("Klarna Payment Option")),
}

// dropdownOption is an entry of the custom select components used for
// state and country.
func dropdownOption(text string) Locator {
	return Build(`[role="option"]`, WithText(text), AsFirst(), As(text+" Option"))
}

// Checkout walks the storefront checkout for one order. It is used by a
// single scenario goroutine.
type Checkout struct {
	driver   Driver
	logger   *zap.Logger
	timeouts TimeoutConfig

	stage   Stage
	history []Stage

	method  PaymentMethod
	adapter PaymentAdapter
	payment *PaymentContext
}

func NewCheckout(driver Driver, config *Config, logger *zap.Logger) *Checkout {
	return &Checkout{
		driver:   driver,
		logger:   logger.Named("checkout"),
		timeouts: config.Timeouts,
		stage:    StageContact,
		history:  []Stage{StageContact},
	}
}

func (c *Checkout) Stage() Stage { return c.stage }

// History lists every stage entered, oldest first.
func (c *Checkout) History() []Stage {
	return append([]Stage(nil), c.history...)
}

func (c *Checkout) Method() PaymentMethod { return c.method }

func (c *Checkout) advance(to Stage) error {
	if c.stage.terminal() {
		return contractViolation("checkout already %s, cannot move to %s", c.stage, to)
	}
	if to != StageFailed && to < c.stage {
		return contractViolation("checkout cannot move back from %s to %s", c.stage, to)
	}
	if to != c.stage {
		c.logger.Debug("checkout stage", zap.Stringer("from", c.stage), zap.Stringer("to", to))
		c.stage = to
		c.history = append(c.history, to)
	}
	return nil
}

// Fail moves the checkout to FAILED and returns err for convenience.
func (c *Checkout) Fail(err error) error {
	if c.stage != StageFailed {
		c.logger.Warn("checkout failed", zap.Stringer("stage", c.stage), zap.Error(err))
		c.stage = StageFailed
		c.history = append(c.history, StageFailed)
	}
	if c.payment != nil {
		_ = c.payment.Close(context.Background())
	}
	return err
}

// MarkConfirmed records that the confirmation page was verified.
func (c *Checkout) MarkConfirmed() error {
	if c.stage != StageSubmitted {
		return contractViolation("checkout cannot be confirmed from %s", c.stage)
	}
	return c.advance(StageConfirmed)
}

func (c *Checkout) fill(ctx context.Context, loc Locator, value string) error {
	if err := c.driver.Clear(ctx, loc); err != nil {
		return stepError("checkout", "clear", loc, err)
	}
	if err := c.driver.Fill(ctx, loc, value); err != nil {
		return stepError("checkout", "fill", loc, err)
	}
	return nil
}

func (c *Checkout) click(ctx context.Context, loc Locator) error {
	if err := c.driver.Click(ctx, loc); err != nil {
		return stepError("checkout", "click", loc, err)
	}
	return nil
}

func (c *Checkout) waitFor(ctx context.Context, loc Locator) error {
	if err := c.driver.WaitVisible(ctx, loc, c.timeouts.Wait); err != nil {
		return stepError("checkout", "wait", loc, err)
	}
	return nil
}

func (c *Checkout) choose(ctx context.Context, dropdown Locator, option string) error {
	if err := c.click(ctx, dropdown); err != nil {
		return err
	}
	return c.click(ctx, dropdownOption(option))
}

// VerifyLoaded waits for the shipping section.
func (c *Checkout) VerifyLoaded(ctx context.Context) error {
	return c.waitFor(ctx, shippingSection)
}

// FillGuestEmail enters the contact email for a guest checkout.
func (c *Checkout) FillGuestEmail(ctx context.Context, data AddressRecord) error {
	if err := data.Validate(ContactForm); err != nil {
		return err
	}
	if c.stage != StageContact {
		return contractViolation("guest email belongs to %s, checkout is at %s", StageContact, c.stage)
	}
	return c.fill(ctx, guestEmailInput, data.Email)
}

// FillShipping enters the shipping address. Every field is cleared before
// typing so autofilled values never leak into the order.
func (c *Checkout) FillShipping(ctx context.Context, data AddressRecord) error {
	if err := data.Validate(ShippingForm); err != nil {
		return err
	}
	if err := c.advance(StageShipping); err != nil {
		return err
	}

	if err := c.fill(ctx, shippingFirstName, data.FirstName); err != nil {
		return err
	}
	if err := c.fill(ctx, shippingLastName, data.LastName); err != nil {
		return err
	}
	if err := c.fill(ctx, shippingAddress1, data.Address); err != nil {
		return err
	}

	// dismiss the address autocomplete dropdown
	if err := sleep(ctx, c.timeouts.Autocomplete); err != nil {
		return err
	}
	if err := c.driver.PressKey(ctx, KeyEscape); err != nil {
		return stepError("checkout", "dismiss autocomplete", shippingAddress1, err)
	}
	if err := sleep(ctx, c.timeouts.Autocomplete/2); err != nil {
		return err
	}

	if data.Address2 != "" {
		if err := c.fill(ctx, shippingAddress2, data.Address2); err != nil {
			return err
		}
	}
	if err := c.fill(ctx, shippingCity, data.City); err != nil {
		return err
	}
	if err := c.choose(ctx, shippingState, data.State); err != nil {
		return err
	}
	if err := c.fill(ctx, shippingZip, data.Zip); err != nil {
		return err
	}
	return c.fill(ctx, shippingPhone, data.Phone)
}

// Continue clicks "Save & Continue".
func (c *Checkout) Continue(ctx context.Context) error {
	if err := c.waitFor(ctx, continueButton); err != nil {
		return err
	}
	return c.click(ctx, continueButton)
}

// KeepEnteredAddress accepts the address as typed if the normalisation
// dialog shows up within the interstitial window. Its absence is normal,
// and a failed probe reads as absent the same way a modal probe does.
func (c *Checkout) KeepEnteredAddress(ctx context.Context) (bool, error) {
	n, err := c.driver.CountVisible(ctx, addressConfirmDialog, c.timeouts.Interstitial)
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		c.logger.Debug("address confirmation probe failed", zap.Error(err))
		return false, nil
	}
	if n == 0 {
		return false, nil
	}
	if err := c.advance(StageAddressConfirm); err != nil {
		return false, err
	}
	if err := c.waitFor(ctx, keepAddressButton); err != nil {
		return true, err
	}
	if err := c.click(ctx, keepAddressButton); err != nil {
		return true, err
	}
	return true, c.Continue(ctx)
}

// ContinueToPayment submits the shipping step and handles the optional
// address confirmation.
func (c *Checkout) ContinueToPayment(ctx context.Context) error {
	if c.stage != StageShipping {
		return contractViolation("continue to payment requires %s, checkout is at %s", StageShipping, c.stage)
	}
	if err := c.Continue(ctx); err != nil {
		return err
	}
	shown, err := c.KeepEnteredAddress(ctx)
	if err != nil {
		return err
	}
	if shown {
		c.logger.Info("kept entered address over suggested address")
	}
	return nil
}

// EditShipping reopens the shipping step.
func (c *Checkout) EditShipping(ctx context.Context) error {
	if c.stage.terminal() || c.stage >= StageSubmitted {
		return contractViolation("shipping cannot be edited at %s", c.stage)
	}
	if err := c.waitFor(ctx, editShippingButton); err != nil {
		return err
	}
	if err := c.click(ctx, editShippingButton); err != nil {
		return err
	}
	c.stage = StageShipping
	c.history = append(c.history, StageShipping)
	return nil
}

func (c *Checkout) UseSameAsShipping(ctx context.Context) error {
	if err := c.waitFor(ctx, billingSameAsShip); err != nil {
		return err
	}
	if err := c.driver.SetChecked(ctx, billingSameAsShip, true); err != nil {
		return stepError("checkout", "check", billingSameAsShip, err)
	}
	return nil
}

// FillBilling enters a billing address different from shipping. The data
// is validated before anything on the page is touched.
func (c *Checkout) FillBilling(ctx context.Context, data AddressRecord) error {
	if err := data.Validate(BillingForm); err != nil {
		return err
	}

	if err := c.driver.SetChecked(ctx, billingSameAsShip, false); err != nil {
		return stepError("checkout", "uncheck", billingSameAsShip, err)
	}
	if err := c.waitFor(ctx, billingFirstName); err != nil {
		return err
	}

	if err := c.fill(ctx, billingFirstName, data.FirstName); err != nil {
		return err
	}
	if err := c.fill(ctx, billingLastName, data.LastName); err != nil {
		return err
	}
	if err := c.fill(ctx, billingAddress1, data.Address); err != nil {
		return err
	}
	if data.Address2 != "" {
		if err := c.fill(ctx, billingAddress2, data.Address2); err != nil {
			return err
		}
	}
	if err := c.fill(ctx, billingCity, data.City); err != nil {
		return err
	}
	if data.State != "" {
		if err := c.choose(ctx, billingState, data.State); err != nil {
			return err
		}
	}
	if err := c.fill(ctx, billingZip, data.Zip); err != nil {
		return err
	}
	if data.Country != "" {
		if err := c.choose(ctx, billingCountry, data.Country); err != nil {
			return err
		}
	}
	if data.Phone != "" {
		return c.fill(ctx, billingPhone, data.Phone)
	}
	return nil
}

// SelectPaymentMethod clicks the option for method. An unknown method is
// rejected before anything is clicked.
func (c *Checkout) SelectPaymentMethod(ctx context.Context, method string) error {
	m, err := ParsePaymentMethod(method)
	if err != nil {
		return err
	}
	option := paymentOptions[m]

	if c.stage < StageShipping || c.stage >= StagePaymentDetailsEntered {
		return contractViolation("payment method cannot be selected at %s", c.stage)
	}
	if err := c.waitFor(ctx, paymentSection); err != nil {
		return err
	}
	if err := c.waitFor(ctx, option); err != nil {
		return err
	}
	if err := c.click(ctx, option); err != nil {
		return err
	}

	c.method = m
	return c.advance(StagePaymentMethodSelected)
}

// EnterPayment runs the adapter's detail entry. When no method was selected
// explicitly the storefront's preselected option is assumed to match the
// adapter.
func (c *Checkout) EnterPayment(ctx context.Context, adapter PaymentAdapter) error {
	if c.stage < StageShipping || c.stage >= StagePaymentDetailsEntered {
		return contractViolation("payment details cannot be entered at %s", c.stage)
	}
	if c.stage == StagePaymentMethodSelected && c.method != adapter.Method() {
		return contractViolation("selected %s but adapter is for %s", c.method, adapter.Method())
	}
	if c.stage < StagePaymentMethodSelected {
		c.logger.Debug("using preselected payment method", zap.String("method", string(adapter.Method())))
		c.method = adapter.Method()
		if err := c.advance(StagePaymentMethodSelected); err != nil {
			return err
		}
	}

	c.adapter = adapter
	c.payment = NewPaymentContext(c.driver, adapter.Method(), c.timeouts, c.logger.Named("payment."+string(adapter.Method())))

	if err := adapter.Enter(ctx, c.payment); err != nil {
		return c.Fail(c.wrapPaymentError(err))
	}
	return c.advance(StagePaymentDetailsEntered)
}

// SubmitOrder places the order through the current adapter. It runs at most
// once per checkout; a failure is terminal and never retried.
func (c *Checkout) SubmitOrder(ctx context.Context) error {
	if c.stage != StagePaymentDetailsEntered || c.adapter == nil {
		return contractViolation("order cannot be submitted at %s", c.stage)
	}

	err := c.adapter.Submit(ctx, c.payment)
	if closeErr := c.payment.Close(ctx); closeErr != nil && err == nil {
		err = closeErr
	}
	if err != nil {
		return c.Fail(c.wrapPaymentError(err))
	}
	return c.advance(StageSubmitted)
}

func (c *Checkout) wrapPaymentError(err error) error {
	if isContractViolation(err) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return providerFailure(string(c.adapter.Method()), err)
}

func (c *Checkout) ApplyPromoCode(ctx context.Context, code string) error {
	if strings.TrimSpace(code) == "" {
		return contractViolation("promo code is empty")
	}
	if err := c.waitFor(ctx, promoCodeInput); err != nil {
		return err
	}
	if err := c.fill(ctx, promoCodeInput, code); err != nil {
		return err
	}
	if err := c.click(ctx, promoApplyButton); err != nil {
		return err
	}
	return c.waitFor(ctx, promoMessage)
}

func (c *Checkout) RemovePromoCode(ctx context.Context) error {
	if err := c.waitFor(ctx, promoRemove); err != nil {
		return err
	}
	return c.click(ctx, promoRemove)
}

func (c *Checkout) SubscribeToNewsletter(ctx context.Context) error {
	if err := c.waitFor(ctx, newsletterCheckbox); err != nil {
		return err
	}
	if err := c.driver.SetChecked(ctx, newsletterCheckbox, true); err != nil {
		return stepError("checkout", "check", newsletterCheckbox, err)
	}
	return nil
}

func (c *Checkout) seeText(ctx context.Context, loc Locator, want string) error {
	if err := c.waitFor(ctx, loc); err != nil {
		return err
	}
	got, err := c.driver.Text(ctx, loc)
	if err != nil {
		return stepError("checkout", "read", loc, err)
	}
	if !strings.Contains(got, want) {
		return assertionFailed("%s: expected %q in %q", loc.Label(), want, got)
	}
	return nil
}

func (c *Checkout) VerifyOrderTotal(ctx context.Context, expected string) error {
	return c.seeText(ctx, orderTotalAmount, expected)
}

func (c *Checkout) VerifyShippingCost(ctx context.Context, expected string) error {
	return c.seeText(ctx, orderShippingAmount, expected)
}

func (c *Checkout) VerifyPromoApplied(ctx context.Context, discount string) error {
	if err := c.seeText(ctx, promoMessage, "Promo code applied"); err != nil {
		return err
	}
	return c.seeText(ctx, orderDiscountAmount, discount)
}
