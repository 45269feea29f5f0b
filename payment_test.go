package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newTestPaymentContext(t *testing.T, method PaymentMethod) (*PaymentContext, *fakeDriver, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	driver := newFakeDriver()
	return NewPaymentContext(driver, method, testConfig(t).Timeouts, zap.New(core)), driver, logs
}

func TestParsePaymentMethod(t *testing.T) {
	tests := []struct {
		input   string
		want    PaymentMethod
		wantErr bool
	}{
		{input: "credit_card", want: PaymentCreditCard},
		{input: "PayPal", want: PaymentPayPal},
		{input: "googlepay", want: PaymentGooglePay},
		{input: "google_pay", want: PaymentGooglePay},
		{input: " klarna ", want: PaymentKlarna},
		{input: "gift_card", want: PaymentGiftCard},
		{input: "apple_pay", want: PaymentApplePay},
		{input: "cash", wantErr: true},
		{input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParsePaymentMethod(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrContractViolation)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCardFor(t *testing.T) {
	for _, cardType := range []string{"visa", "mastercard", "amex", "discover", "jcb", "diners", "unionpay"} {
		t.Run(cardType, func(t *testing.T) {
			card, err := CardFor(cardType)
			require.NoError(t, err)
			assert.Equal(t, cardType, card.Type)
			assert.NotEmpty(t, card.Number)
			assert.NotEmpty(t, card.CVV)
			assert.Equal(t, "03/30", card.ExpiryDate)
		})
	}

	gift, err := CardFor("GiftCard")
	require.NoError(t, err)
	assert.Equal(t, "123", gift.Pin)

	_, err = CardFor("maestro")
	assert.ErrorIs(t, err, ErrContractViolation)
}

func TestPaymentContextFramesDoNotNest(t *testing.T) {
	pc, _, _ := newTestPaymentContext(t, PaymentCreditCard)
	ctx := context.Background()

	require.NoError(t, pc.EnterFrame(ctx, cardNumberFrame))
	assert.True(t, pc.InFrame())

	err := pc.EnterFrame(ctx, cardCVVFrame)
	assert.ErrorIs(t, err, ErrContextMisuse)
	assert.Contains(t, err.Error(), "CVV Frame")

	require.NoError(t, pc.ResetToTop(ctx))
	assert.False(t, pc.InFrame())
}

func TestWithinFrameAlwaysReturnsToTop(t *testing.T) {
	pc, driver, _ := newTestPaymentContext(t, PaymentCreditCard)
	driver.missing["Card Number Input"] = true

	err := pc.WithinFrame(context.Background(), cardNumberFrame, func() error {
		return pc.fill(context.Background(), cardNumberInput, "4111")
	})

	assert.ErrorIs(t, err, ErrElementNotFound)
	assert.False(t, pc.InFrame())
	assert.Len(t, driver.calls("exitFrame"), 1)
}

func TestOpenPopup(t *testing.T) {
	t.Run("no popup appears", func(t *testing.T) {
		pc, _, _ := newTestPaymentContext(t, PaymentPayPal)
		err := pc.OpenPopup(context.Background())
		assert.ErrorIs(t, err, ErrTimeout)
		assert.False(t, pc.PopupOpen())
	})

	t.Run("from inside a frame", func(t *testing.T) {
		pc, driver, _ := newTestPaymentContext(t, PaymentPayPal)
		driver.tabs = 2
		require.NoError(t, pc.EnterFrame(context.Background(), paypalFrame))
		assert.ErrorIs(t, pc.OpenPopup(context.Background()), ErrContextMisuse)
	})

	t.Run("twice", func(t *testing.T) {
		pc, driver, _ := newTestPaymentContext(t, PaymentPayPal)
		driver.tabs = 2
		require.NoError(t, pc.OpenPopup(context.Background()))
		assert.True(t, pc.PopupOpen())
		assert.ErrorIs(t, pc.OpenPopup(context.Background()), ErrContextMisuse)
	})

	t.Run("return without popup", func(t *testing.T) {
		pc, _, _ := newTestPaymentContext(t, PaymentPayPal)
		assert.ErrorIs(t, pc.ReturnToOrigin(context.Background()), ErrContextMisuse)
	})
}

func TestPayPalApprovesInPopup(t *testing.T) {
	pc, driver, _ := newTestPaymentContext(t, PaymentPayPal)
	ctx := context.Background()
	driver.popupOn["PayPal Pay Button"] = true
	adapter := PayPalAdapter{Credentials: PayPalCredentials{Email: "buyer@example.com", Password: "secret"}}

	require.NoError(t, adapter.Enter(ctx, pc))
	require.NoError(t, adapter.Submit(ctx, pc))

	pay, ok := driver.find("click", "PayPal Pay Button")
	require.True(t, ok)
	assert.True(t, pay.InFrame)
	assert.Equal(t, 0, pay.Tab)

	email, ok := driver.find("fill", "PayPal Email Input")
	require.True(t, ok)
	assert.Equal(t, 1, email.Tab)
	assert.Equal(t, "buyer@example.com", email.Value)

	approve, ok := driver.find("click", "PayPal Submit Button")
	require.True(t, ok)
	assert.Equal(t, 1, approve.Tab)

	assert.False(t, pc.PopupOpen())
	assert.Len(t, driver.calls("previousTab"), 1)
}

func TestPayPalPopupClosingItself(t *testing.T) {
	pc, driver, logs := newTestPaymentContext(t, PaymentPayPal)
	driver.popupOn["PayPal Pay Button"] = true
	driver.closeTab["PayPal Submit Button"] = true
	adapter := PayPalAdapter{Credentials: PayPalCredentials{Email: "buyer@example.com", Password: "secret"}}

	require.NoError(t, adapter.Submit(context.Background(), pc))

	assert.False(t, pc.PopupOpen())
	assert.Empty(t, driver.calls("previousTab"))
	assert.Equal(t, 1, logs.FilterMessage("provider popup already closed").Len())
}

func TestPayPalRequiresCredentials(t *testing.T) {
	pc, driver, _ := newTestPaymentContext(t, PaymentPayPal)

	err := PayPalAdapter{Credentials: PayPalCredentials{Email: "buyer@example.com"}}.Enter(context.Background(), pc)

	assert.ErrorIs(t, err, ErrContractViolation)
	assert.Contains(t, err.Error(), "PAYPAL_TEST_PASSWORD")
	assert.Empty(t, driver.recorded())
}

func TestKlarnaPlanSelectionIsOptional(t *testing.T) {
	tests := []struct {
		name     string
		planRows int
		wantPick bool
	}{
		{name: "plan offered", planRows: 1, wantPick: true},
		{name: "no plan", planRows: 0, wantPick: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pc, driver, _ := newTestPaymentContext(t, PaymentKlarna)
			driver.counts["Klarna Continue With Plan"] = tt.planRows
			adapter := KlarnaAdapter{Credentials: KlarnaCredentials{Phone: "3105551234", OTP: "123456"}}

			require.NoError(t, adapter.Enter(context.Background(), pc))
			require.NoError(t, adapter.Submit(context.Background(), pc))

			clicks := driver.calls("click")
			if tt.wantPick {
				assert.Contains(t, clicks, "Klarna Continue With Plan")
			} else {
				assert.NotContains(t, clicks, "Klarna Continue With Plan")
			}
			assert.Equal(t, "Klarna Buy Button", clicks[len(clicks)-1])

			otp, ok := driver.find("fill", "Klarna OTP Code Input")
			require.True(t, ok)
			assert.Equal(t, "123456", otp.Value)
		})
	}
}

func TestKlarnaRequiresCredentials(t *testing.T) {
	pc, _, _ := newTestPaymentContext(t, PaymentKlarna)
	err := KlarnaAdapter{}.Enter(context.Background(), pc)
	assert.ErrorIs(t, err, ErrContractViolation)
}

func TestGiftCardRedeemsThenConfirms(t *testing.T) {
	pc, driver, _ := newTestPaymentContext(t, PaymentGiftCard)
	ctx := context.Background()
	card, err := CardFor("giftcard")
	require.NoError(t, err)
	adapter := GiftCardAdapter{Card: card}

	require.NoError(t, adapter.Enter(ctx, pc))
	require.NoError(t, adapter.Submit(ctx, pc))

	pin, ok := driver.find("fill", "Gift Card Pin Input")
	require.True(t, ok)
	assert.True(t, pin.InFrame)
	assert.Equal(t, card.Pin, pin.Value)

	assert.Equal(t, []string{"Redeem Gift Card Button", "Confirm Payment Button"}, driver.calls("click"))
	assert.Contains(t, driver.calls("wait"), "Remove Gift Card Button")
}

func TestGiftCardSubmitWaitsForBalance(t *testing.T) {
	pc, driver, _ := newTestPaymentContext(t, PaymentGiftCard)
	driver.missing["Remove Gift Card Button"] = true
	card, _ := CardFor("giftcard")

	err := GiftCardAdapter{Card: card}.Submit(context.Background(), pc)

	assert.ErrorIs(t, err, ErrElementNotFound)
	assert.Empty(t, driver.calls("click"))
}

func TestPaymentContextClose(t *testing.T) {
	pc, driver, _ := newTestPaymentContext(t, PaymentPayPal)
	ctx := context.Background()
	driver.tabs = 2
	require.NoError(t, pc.OpenPopup(ctx))
	require.NoError(t, pc.EnterFrame(ctx, paypalFrame))

	require.NoError(t, pc.Close(ctx))

	assert.False(t, pc.InFrame())
	assert.False(t, pc.PopupOpen())
	assert.Len(t, driver.calls("previousTab"), 1)
}
