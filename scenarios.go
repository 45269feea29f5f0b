package main

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// Fixed inputs of the catalogue.
const (
	noResultsQuery = "test"
	searchQuery    = "thermometer"
	categoryIndex  = 0
	productIndex   = 0
)

// Session is everything one scenario runs against. Sessions are never
// shared between scenarios.
type Session struct {
	Name   string
	Config *Config
	Driver Driver
	Logger *zap.Logger

	Modals       *ModalEngine
	Home         *HomePage
	Nav          *Navigation
	Catalog      *CatalogPage
	Product      *ProductPage
	Cart         *CartPage
	Register     *RegisterPage
	Confirmation *ConfirmationPage

	Data    *DataGenerator
	Mailbox Mailbox
	Orders  *OrderLog

	// ShippingOverrides replaces generated shipping fields.
	ShippingOverrides AddressRecord

	// OrderNumber is set once a checkout reaches the confirmation page.
	OrderNumber string
}

// NewSession wires the page objects for one scenario. mailbox may be nil.
func NewSession(name string, driver Driver, config *Config, orders *OrderLog, mailbox Mailbox, data *DataGenerator, logger *zap.Logger) *Session {
	logger = logger.With(zap.String("scenario", name))
	modals := NewModalEngine(driver, config, logger)
	return &Session{
		Name:         name,
		Config:       config,
		Driver:       driver,
		Logger:       logger,
		Modals:       modals,
		Home:         NewHomePage(driver, config, modals, logger),
		Nav:          NewNavigation(driver, config, logger),
		Catalog:      NewCatalogPage(driver, config, logger),
		Product:      NewProductPage(driver, config, logger),
		Cart:         NewCartPage(driver, config, logger),
		Register:     NewRegisterPage(driver, config, logger),
		Confirmation: NewConfirmationPage(driver, config, logger),
		Data:         data,
		Mailbox:      mailbox,
		Orders:       orders,
	}
}

func (s *Session) NewCheckout() *Checkout {
	return NewCheckout(s.Driver, s.Config, s.Logger)
}

// Scenario is one end-to-end test.
type Scenario struct {
	Name        string
	Description string

	// Skip returns a reason when the scenario cannot run with config.
	Skip func(config *Config) string
	Run  func(ctx context.Context, s *Session) error
}

func (sc Scenario) skipReason(config *Config) string {
	if sc.Skip == nil {
		return ""
	}
	return sc.Skip(config)
}

// Catalogue returns every scenario in run order.
func Catalogue() []Scenario {
	return []Scenario{
		{
			Name:        "register-captcha",
			Description: "User registration should require captcha validation",
			Run:         runRegisterCaptcha,
		},
		{
			Name:        "search",
			Description: "Search should handle both valid and invalid queries",
			Run:         runSearch,
		},
		{
			Name:        "checkout-card",
			Description: "Complete order flow with credit card payment",
			Run:         checkoutScenario(func(*Session) (PaymentAdapter, error) { return cardAdapter("visa") }, false),
		},
		{
			Name:        "checkout-paypal",
			Description: "Complete order flow with PayPal payment",
			Skip: func(c *Config) string {
				if c.Secrets.PayPalEmail == "" || c.Secrets.PayPalPassword == "" {
					return "PayPal sandbox credentials are not configured"
				}
				return ""
			},
			Run: checkoutScenario(func(s *Session) (PaymentAdapter, error) {
				return PayPalAdapter{Credentials: PayPalCredentials{
					Email:    s.Config.Secrets.PayPalEmail,
					Password: s.Config.Secrets.PayPalPassword,
				}}, nil
			}, false),
		},
		{
			Name:        "checkout-klarna",
			Description: "Complete order flow with Klarna payment",
			Skip: func(c *Config) string {
				if c.Country != "us" {
					return "Klarna sandbox credentials exist for the US storefront only"
				}
				if c.Secrets.KlarnaPhone == "" || c.Secrets.KlarnaOTP == "" {
					return "Klarna sandbox credentials are not configured"
				}
				return ""
			},
			Run: checkoutScenario(func(s *Session) (PaymentAdapter, error) {
				return KlarnaAdapter{Credentials: KlarnaCredentials{
					Phone: s.Config.Secrets.KlarnaPhone,
					OTP:   s.Config.Secrets.KlarnaOTP,
				}}, nil
			}, false),
		},
		{
			Name:        "checkout-gift-card",
			Description: "Complete order flow paid in full with a gift card",
			Run: checkoutScenario(func(*Session) (PaymentAdapter, error) {
				card, err := CardFor("giftcard")
				if err != nil {
					return nil, err
				}
				return GiftCardAdapter{Card: card}, nil
			}, false),
		},
		{
			Name:        "checkout-google-pay",
			Description: "Complete order flow with Google Pay",
			Skip:        func(*Config) string { return "Google Pay checkout is not automated" },
			Run: checkoutScenario(func(*Session) (PaymentAdapter, error) {
				return GooglePayAdapter{}, nil
			}, false),
		},
		{
			Name:        "checkout-billing-distinct",
			Description: "Complete card order with a billing address different from shipping",
			Run:         checkoutScenario(func(*Session) (PaymentAdapter, error) { return cardAdapter("mastercard") }, true),
		},
	}
}

// ScenarioNames lists the catalogue names in run order.
func ScenarioNames() []string {
	var names []string
	for _, sc := range Catalogue() {
		names = append(names, sc.Name)
	}
	return names
}

// SelectScenarios returns the named scenarios in catalogue order, or the
// whole catalogue when names is empty. Unknown names are rejected.
func SelectScenarios(names []string) ([]Scenario, error) {
	all := Catalogue()
	if len(names) == 0 {
		return all, nil
	}

	wanted := make(map[string]bool, len(names))
	for _, n := range names {
		wanted[strings.TrimSpace(n)] = true
	}

	var selected []Scenario
	for _, sc := range all {
		if wanted[sc.Name] {
			selected = append(selected, sc)
			delete(wanted, sc.Name)
		}
	}
	if len(wanted) > 0 {
		var unknown []string
		for n := range wanted {
			unknown = append(unknown, n)
		}
		sort.Strings(unknown)
		return nil, contractViolation("unknown scenario(s): %s", strings.Join(unknown, ", "))
	}
	return selected, nil
}

func cardAdapter(cardType string) (PaymentAdapter, error) {
	card, err := CardFor(cardType)
	if err != nil {
		return nil, err
	}
	return CardAdapter{Card: card}, nil
}

func runRegisterCaptcha(ctx context.Context, s *Session) error {
	if err := s.Home.Visit(ctx, s.Config.Country); err != nil {
		return err
	}
	user := s.Data.User(UserRecord{})
	s.Logger.Info("registering", zap.String("email", user.Email))

	if err := s.Nav.OpenSignUpPage(ctx); err != nil {
		return err
	}
	if err := s.Register.Fill(ctx, user); err != nil {
		return err
	}
	if err := s.Register.AcceptTerms(ctx); err != nil {
		return err
	}
	if err := s.Register.Submit(ctx); err != nil {
		return err
	}

	alert, err := s.Register.AlertText(ctx)
	if err != nil {
		return err
	}
	if want := T("captcha_alert"); !strings.Contains(alert, want) {
		return assertionFailed("registration alert %q does not contain %q", alert, want)
	}
	return nil
}

func runSearch(ctx context.Context, s *Session) error {
	if err := s.Home.Visit(ctx, s.Config.Country); err != nil {
		return err
	}
	for _, q := range []string{noResultsQuery, searchQuery} {
		if err := s.Nav.Search(ctx, q); err != nil {
			return err
		}
		if err := s.Catalog.VerifySearchResults(ctx, q); err != nil {
			return fmt.Errorf("search %q: %w", q, err)
		}
	}
	return nil
}

// addFirstProductToCart walks home, category, product and cart up to the
// checkout page.
func addFirstProductToCart(ctx context.Context, s *Session) error {
	if err := s.Home.Visit(ctx, s.Config.Country); err != nil {
		return err
	}
	if err := s.Nav.OpenCategory(ctx, categoryIndex); err != nil {
		return err
	}
	if err := s.Catalog.VerifyLoaded(ctx); err != nil {
		return err
	}
	if _, err := s.Catalog.OpenProduct(ctx, productIndex); err != nil {
		return err
	}
	if err := s.Product.VerifyLoaded(ctx); err != nil {
		return err
	}
	if err := s.Product.AddToCart(ctx); err != nil {
		return err
	}
	if err := s.Cart.VerifyLoaded(ctx); err != nil {
		return err
	}
	return s.Cart.ProceedToCheckout(ctx)
}

// checkoutScenario builds a guest checkout paid through the adapter that
// newAdapter returns. With distinctBilling the billing address is a second
// generated address.
func checkoutScenario(newAdapter func(*Session) (PaymentAdapter, error), distinctBilling bool) func(context.Context, *Session) error {
	return func(ctx context.Context, s *Session) error {
		adapter, err := newAdapter(s)
		if err != nil {
			return err
		}

		shipping := s.Data.Shipping(s.Config.Country, s.ShippingOverrides)
		var inbox Inbox
		if s.Mailbox != nil {
			inbox, err = s.Mailbox.CreateInbox(ctx)
			if err != nil {
				return fmt.Errorf("create confirmation inbox: %w", err)
			}
			defer s.deleteInbox(inbox)
			shipping.Email = inbox.EmailAddress
		}

		if err := addFirstProductToCart(ctx, s); err != nil {
			return err
		}

		checkout := s.NewCheckout()
		if err := placeOrder(ctx, s, checkout, shipping, adapter, distinctBilling); err != nil {
			return checkout.Fail(err)
		}

		if err := s.Confirmation.VerifyLoaded(ctx); err != nil {
			return checkout.Fail(err)
		}
		if err := s.Confirmation.VerifyThankYou(ctx, shipping.FullName()); err != nil {
			return checkout.Fail(err)
		}
		if err := checkout.MarkConfirmed(); err != nil {
			return err
		}

		details := s.Confirmation.OrderDetails(ctx)
		s.OrderNumber = details.Number
		if err := s.Orders.Append(details, s.Name); err != nil {
			s.Logger.Warn("failed to record order", zap.Error(err))
		}

		if s.Mailbox != nil {
			return verifyConfirmationEmail(ctx, s, inbox, details.Number)
		}
		return nil
	}
}

// verifyConfirmationEmail waits for the order mail in inbox and checks that
// it names the order.
func verifyConfirmationEmail(ctx context.Context, s *Session, inbox Inbox, orderNumber string) error {
	email, err := s.Mailbox.WaitForLatestEmail(ctx, inbox.ID, s.Config.Timeouts.Email)
	if err != nil {
		return fmt.Errorf("confirmation email: %w", err)
	}
	if orderNumber != "" && !strings.Contains(email.Subject+"\n"+email.Body, orderNumber) {
		return assertionFailed("confirmation email %q does not mention order %s", email.Subject, orderNumber)
	}
	s.Logger.Info("confirmation email received", zap.String("subject", email.Subject), zap.String("inbox", inbox.EmailAddress))
	return nil
}

func (s *Session) deleteInbox(inbox Inbox) {
	ctx, cancel := context.WithTimeout(context.Background(), s.Config.Timeouts.Wait)
	defer cancel()
	if err := s.Mailbox.DeleteInbox(ctx, inbox.ID); err != nil {
		s.Logger.Warn("failed to delete inbox", zap.String("inbox", inbox.ID), zap.Error(err))
	}
}

func placeOrder(ctx context.Context, s *Session, checkout *Checkout, shipping AddressRecord, adapter PaymentAdapter, distinctBilling bool) error {
	if err := checkout.VerifyLoaded(ctx); err != nil {
		return err
	}
	if err := checkout.FillGuestEmail(ctx, shipping); err != nil {
		return err
	}
	if err := checkout.FillShipping(ctx, shipping); err != nil {
		return err
	}
	if err := checkout.ContinueToPayment(ctx); err != nil {
		return err
	}

	if distinctBilling {
		billing := s.Data.Billing(s.Config.Country, AddressRecord{})
		if err := checkout.FillBilling(ctx, billing); err != nil {
			return err
		}
	}

	if adapter.Method() != PaymentCreditCard {
		if err := checkout.SelectPaymentMethod(ctx, string(adapter.Method())); err != nil {
			return err
		}
	}
	if err := checkout.EnterPayment(ctx, adapter); err != nil {
		return err
	}
	return checkout.SubmitOrder(ctx)
}
