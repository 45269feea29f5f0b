package main

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"
)

var (
	navigationHeader = Build(`header.sticky`, As("Navigation Header"))
	heroCarousel     = Build(`[data-sentry-component="HeroCarousel"]`, As("Hero Carousel"))

	categoryLinks      = Build(`li a`, Inside(navigationHeader), As("Category Link"))
	mobileNavButton    = Build(`header button[data-sentry-source-file='navigation-sheet.tsx']`, As("Mobile Navigation Button"))
	mobileCategoryLink = Build(`nav .items-center span`, As("Mobile Category Link"))
	mobileSubcategory  = Build(`nav a span`, AsFirst(), As("Mobile Subcategory Link"))

	searchButton = Build(`button[data-sid="menu_quicksearch"]`, As("Search Button"))
	searchDialog = Build(`[role="dialog"]`, As("Search Dialog"))
	searchInput  = Build(`input[data-sid="menu_search_input"]`, Inside(searchDialog), As("Search Input"))

	accountButton = Build(`button[data-sid="menu_account"]`, As("Account Button"))
	signInLink    = Build(`a[data-sid="menu_signin"]`, As("Sign In Link"))
	signUpLink    = Build(`a[data-sid="menu_register"]`, As("Sign Up Link"))
	cartButton    = Build(`button[data-sid="menu_cart"]`, As("Cart Button"))

	productGrid     = Build(`.relative .grid`, As("Product Grid"))
	productCard     = Build(`[data-sentry-element="Card"]`, As("Product Card"))
	addToCartButton = Build(`button[data-sid^='product_add_to_cart_item']`, As("Add To Cart Button"))
	productLink     = Build(`[data-sentry-element="Link"]`, As("Product Link"))

	pdpAddToCart   = Build(`button[data-sid^="pdp_addtocart"]`, As("PDP Add To Cart Button"))
	pdpBazaarVoice = Build(`[data-sentry-component="BazaarvoicePDPComponent"]`, As("Reviews Section"))

	cartContainer    = Build(`[data-sentry-element="SheetContent"]`, As("Cart Container"))
	cartProducts     = Build(`ul[data-sentry-component="Products"]`, As("Cart Products"))
	cartItems        = Build(`li`, Inside(cartProducts), As("Cart Item"))
	cartEmpty        = Build(`[data-sentry-component="CartEmpty"]`, As("Empty Cart"))
	cartItemName     = Build(`a[data-sentry-element="Link"]`, As("Cart Item Name"))
	cartRemoveButton = Build(`button[data-sid^="cart_remove_cart_item"]`, As("Remove Item Button"))
	cartIncrease     = Build(`button`, WithAttr("aria-label", "Increase item quantity"), As("Increase Quantity Button"))
	cartReduce       = Build(`button`, WithAttr("aria-label", "Reduce item quantity"), As("Reduce Quantity Button"))
	cartCheckout     = Build(`[data-sid="cart_checkout_button"]`, As("Checkout Button"))
	cartClose        = Build(`[data-sid="cart_close_cart_modal"]`, As("Close Cart Button"))
	cartTotal        = Build(`[data-testid="cart-total"]`, Inside(Build(`[data-sentry-component="Summary"]`)), As("Cart Total"))

	registerEmail     = Build(`input[name="email"]`, As("Email Input"))
	registerFirstName = Build(`input[name="firstName"]`, As("First Name Input"))
	registerLastName  = Build(`input[name="lastName"]`, As("Last Name Input"))
	registerPassword  = Build(`input[name="password"]`, As("Password Input"))
	registerTerms     = Build(`#registration-accept`, As("Accept Terms Checkbox"))
	registerSubmit    = Build(`button[type="submit"]`, As("Sign Up Button"))
	registerAlert     = Build(`[data-sentry-element="AlertDescription"]`, As("Alert Message"))
	registerMain      = Build(`#main-content`, As("Main Content"))
	captchaFrame      = Build(`iframe[title="reCAPTCHA"]`, As("CAPTCHA Frame"))
	captchaCheckbox   = Build(`#recaptcha-anchor`, As("CAPTCHA Checkbox"))

	confirmationSection = Build(`#orderconfirmation-content`, As("Order Confirmation Section"))
	confirmationTitle   = Build(`h1`, Inside(confirmationSection), As("Confirmation Title"))
	confirmationMessage = Build(`.bg-card h2`, Inside(confirmationSection), As("Confirmation Message"))
	orderDetailsCard    = Build(`[data-sentry-component="OrderDetails"]`, As("Order Details"))
	orderNumber         = Build(`[data-sentry-element="CardDescription"] span`, Inside(orderDetailsCard), AsFirst(), As("Order Number"))
	orderDate           = Build(`[data-sentry-element="CardDescription"] > div.text-base`, Inside(orderDetailsCard), AsLast(), As("Order Date"))
	orderStatus         = Build(`[data-sentry-element="CardDescription"] > div.text-base > div`, Inside(orderDetailsCard), AsFirst(), As("Order Status"))
	orderPriceInfo      = Build(`[data-sentry-component="OrderPriceInfo"]`, As("Order Price Info"))
	orderTotal          = Build(`[data-sentry-element="CardContent"] > div`, Inside(orderPriceInfo), AsLast(), As("Order Total"))
	summaryAccordion    = Build(`[data-sentry-element="AccordionTrigger"]`, AsFirst(), As("Order Summary Accordion"))
	continueShopping    = Build(`[data-sid="checkout_continueshopping"]`, As("Continue Shopping Button"))
)

// priceRe matches the first currency amount, either "$1,234.56" or
// "1.234,56 €".
var priceRe = regexp.MustCompile(`[$£€]\s?\d{1,3}(?:[,.]\d{3})*[.,]\d{2}|\d{1,3}(?:[.,]\d{3})*[.,]\d{2}\s?€`)

const notAvailable = "N/A"

// page is the shared plumbing of every page object.
type page struct {
	driver    Driver
	logger    *zap.Logger
	timeouts  TimeoutConfig
	component string
}

func newPage(driver Driver, config *Config, logger *zap.Logger, component string) page {
	return page{driver: driver, logger: logger.Named(component), timeouts: config.Timeouts, component: component}
}

func (p page) waitFor(ctx context.Context, loc Locator) error {
	if err := p.driver.WaitVisible(ctx, loc, p.timeouts.Wait); err != nil {
		return stepError(p.component, "wait", loc, err)
	}
	return nil
}

func (p page) click(ctx context.Context, loc Locator) error {
	if err := p.driver.Click(ctx, loc); err != nil {
		return stepError(p.component, "click", loc, err)
	}
	return nil
}

func (p page) clickWhenVisible(ctx context.Context, loc Locator) error {
	if err := p.waitFor(ctx, loc); err != nil {
		return err
	}
	return p.click(ctx, loc)
}

func (p page) fill(ctx context.Context, loc Locator, value string) error {
	if err := p.waitFor(ctx, loc); err != nil {
		return err
	}
	if err := p.driver.Fill(ctx, loc, value); err != nil {
		return stepError(p.component, "fill", loc, err)
	}
	return nil
}

func (p page) text(ctx context.Context, loc Locator) (string, error) {
	if err := p.waitFor(ctx, loc); err != nil {
		return "", err
	}
	s, err := p.driver.Text(ctx, loc)
	if err != nil {
		return "", stepError(p.component, "read", loc, err)
	}
	return strings.TrimSpace(s), nil
}

// HomePage is the country landing page.
type HomePage struct {
	page
	baseURL string
	modals  *ModalEngine
}

func NewHomePage(driver Driver, config *Config, modals *ModalEngine, logger *zap.Logger) *HomePage {
	return &HomePage{page: newPage(driver, config, logger, "home"), baseURL: config.BaseURL(), modals: modals}
}

// Visit opens /<country>/, clears whatever modals the storefront raises and
// waits for the header and hero carousel.
func (h *HomePage) Visit(ctx context.Context, country string) error {
	url := fmt.Sprintf("%s/%s/", h.baseURL, strings.ToLower(country))
	h.logger.Info("visiting home page", zap.String("url", url))
	if err := h.driver.Navigate(ctx, url); err != nil {
		return stepError(h.component, "navigate", Locator{}, err)
	}
	h.modals.HandleAll(ctx)
	return h.VerifyLoaded(ctx)
}

func (h *HomePage) VerifyLoaded(ctx context.Context) error {
	if err := h.waitFor(ctx, navigationHeader); err != nil {
		return err
	}
	return h.waitFor(ctx, heroCarousel)
}

// Navigation drives the site header. On mobile profiles categories live
// behind the navigation sheet.
type Navigation struct {
	page
	mobile bool
}

func NewNavigation(driver Driver, config *Config, logger *zap.Logger) *Navigation {
	return &Navigation{page: newPage(driver, config, logger, "navigation"), mobile: config.IsMobile()}
}

func (n *Navigation) OpenAccountMenu(ctx context.Context) error {
	return n.clickWhenVisible(ctx, accountButton)
}

func (n *Navigation) OpenSignUpPage(ctx context.Context) error {
	if err := n.OpenAccountMenu(ctx); err != nil {
		return err
	}
	if err := n.clickWhenVisible(ctx, signUpLink); err != nil {
		return err
	}
	return n.waitFor(ctx, registerTitle())
}

func (n *Navigation) OpenSignInPage(ctx context.Context) error {
	if err := n.OpenAccountMenu(ctx); err != nil {
		return err
	}
	return n.clickWhenVisible(ctx, signInLink)
}

func (n *Navigation) OpenSearchDialog(ctx context.Context) error {
	if err := n.clickWhenVisible(ctx, searchButton); err != nil {
		return err
	}
	return n.waitFor(ctx, searchDialog)
}

func (n *Navigation) EnterSearchQuery(ctx context.Context, query string) error {
	if err := n.fill(ctx, searchInput, query); err != nil {
		return err
	}
	if err := n.driver.PressKey(ctx, KeyEnter); err != nil {
		return stepError(n.component, "submit search", searchInput, err)
	}
	return nil
}

// Search opens the search dialog and submits query.
func (n *Navigation) Search(ctx context.Context, query string) error {
	if err := n.OpenSearchDialog(ctx); err != nil {
		return err
	}
	return n.EnterSearchQuery(ctx, query)
}

// OpenCategory opens the index-th top level category (0-based). Mobile
// profiles then open the first subcategory of it.
func (n *Navigation) OpenCategory(ctx context.Context, index int) error {
	if index < 0 {
		return contractViolation("category index must not be negative, got %d", index)
	}
	if !n.mobile {
		return n.clickWhenVisible(ctx, categoryLinks.At(index+1))
	}
	if err := n.clickWhenVisible(ctx, mobileNavButton); err != nil {
		return err
	}
	if err := n.clickWhenVisible(ctx, mobileCategoryLink.At(index+1)); err != nil {
		return err
	}
	return n.clickWhenVisible(ctx, mobileSubcategory)
}

func (n *Navigation) OpenCart(ctx context.Context) error {
	if err := n.clickWhenVisible(ctx, cartButton); err != nil {
		return err
	}
	return n.waitFor(ctx, cartContainer)
}

func registerTitle() Locator {
	return Build(`h1`, WithText(T("register_title")), As("Create Account Title"))
}

// CatalogPage is a category listing or search result page.
type CatalogPage struct {
	page
}

func NewCatalogPage(driver Driver, config *Config, logger *zap.Logger) *CatalogPage {
	return &CatalogPage{page: newPage(driver, config, logger, "catalog")}
}

func (c *CatalogPage) VerifyLoaded(ctx context.Context) error {
	if err := c.waitFor(ctx, productGrid); err != nil {
		return err
	}
	return c.waitFor(ctx, productCard.First())
}

func (c *CatalogPage) ProductCount(ctx context.Context) (int, error) {
	return c.driver.CountVisible(ctx, productCard, c.timeouts.Interstitial)
}

// OpenProduct opens the index-th product (0-based) by following the link
// whose text is the product name from its add-to-cart label.
func (c *CatalogPage) OpenProduct(ctx context.Context, index int) (string, error) {
	if index < 0 {
		return "", contractViolation("product index must not be negative, got %d", index)
	}
	button := addToCartButton.At(index + 1)
	if err := c.waitFor(ctx, button); err != nil {
		return "", err
	}
	label, err := c.driver.Attribute(ctx, button, "aria-label")
	if err != nil {
		return "", stepError(c.component, "read", button, err)
	}
	name := productNameFromLabel(label)
	if name == "" {
		return "", contractViolation("product %d has no name in its add to cart label", index)
	}

	c.logger.Info("opening product", zap.Int("index", index), zap.String("name", name))
	if err := c.clickWhenVisible(ctx, productLink.WithText(name).First()); err != nil {
		return "", err
	}
	return name, sleep(ctx, c.timeouts.Interstitial)
}

// productNameFromLabel turns "Add <name> to cart" into "<name>".
func productNameFromLabel(label string) string {
	name := strings.TrimSpace(label)
	name = strings.TrimPrefix(name, "Add ")
	name = strings.TrimSuffix(name, " to cart")
	return strings.TrimSpace(name)
}

// VerifySearchResults checks that every visible result mentions term, or
// that the no-results copy is shown when there are none.
func (c *CatalogPage) VerifySearchResults(ctx context.Context, term string) error {
	if err := sleep(ctx, c.timeouts.Interstitial); err != nil {
		return err
	}
	n, err := c.ProductCount(ctx)
	if err != nil {
		return err
	}
	if n == 0 {
		msg := T("no_results_text")
		c.logger.Info("no search results", zap.String("term", term))
		return c.waitFor(ctx, Build(`body`, WithText(msg), As("No Results Message")))
	}

	texts, err := c.driver.TextAll(ctx, productCard)
	if err != nil {
		return stepError(c.component, "read", productCard, err)
	}
	want := strings.ToLower(term)
	for i, text := range texts {
		if !strings.Contains(strings.ToLower(text), want) {
			return assertionFailed("search result %d does not mention %q: %q", i+1, term, strings.TrimSpace(text))
		}
	}
	c.logger.Info("search results verified", zap.String("term", term), zap.Int("results", len(texts)))
	return nil
}

// ProductPage is a product details page.
type ProductPage struct {
	page
}

func NewProductPage(driver Driver, config *Config, logger *zap.Logger) *ProductPage {
	return &ProductPage{page: newPage(driver, config, logger, "product")}
}

func (p *ProductPage) VerifyLoaded(ctx context.Context) error {
	if err := p.waitFor(ctx, pdpAddToCart); err != nil {
		return err
	}
	if n, _ := p.driver.CountVisible(ctx, pdpBazaarVoice, p.timeouts.Interstitial); n == 0 {
		p.logger.Debug("reviews section not rendered")
	}
	return nil
}

func (p *ProductPage) AddToCart(ctx context.Context) error {
	return p.clickWhenVisible(ctx, pdpAddToCart)
}

// CartPage is the cart side sheet.
type CartPage struct {
	page
}

func NewCartPage(driver Driver, config *Config, logger *zap.Logger) *CartPage {
	return &CartPage{page: newPage(driver, config, logger, "cart")}
}

func (c *CartPage) VerifyLoaded(ctx context.Context) error {
	return c.waitFor(ctx, cartContainer)
}

// ItemCount returns the number of line items; an empty cart is 0.
func (c *CartPage) ItemCount(ctx context.Context) (int, error) {
	if n, err := c.driver.CountVisible(ctx, cartEmpty, 0); err == nil && n > 0 {
		return 0, nil
	}
	return c.driver.CountVisible(ctx, cartItems, c.timeouts.Interstitial)
}

func (c *CartPage) Total(ctx context.Context) (string, error) {
	return c.text(ctx, cartTotal)
}

// ProceedToCheckout leaves the cart for checkout. An empty cart is refused.
func (c *CartPage) ProceedToCheckout(ctx context.Context) error {
	n, err := c.ItemCount(ctx)
	if err != nil {
		return err
	}
	if n == 0 {
		return contractViolation("cannot checkout with an empty cart")
	}
	c.logger.Info("proceeding to checkout", zap.Int("items", n))
	return c.clickWhenVisible(ctx, cartCheckout)
}

func cartItem(name string) Locator {
	return cartItems.WithChild(cartItemName.WithText(name)).First().As("Cart Item " + name)
}

func (c *CartPage) RemoveItem(ctx context.Context, name string) error {
	return c.clickWhenVisible(ctx, cartRemoveButton.Inside(cartItem(name)))
}

func (c *CartPage) IncreaseQuantity(ctx context.Context, name string) error {
	return c.clickWhenVisible(ctx, cartIncrease.Inside(cartItem(name)))
}

func (c *CartPage) ReduceQuantity(ctx context.Context, name string) error {
	return c.clickWhenVisible(ctx, cartReduce.Inside(cartItem(name)))
}

func (c *CartPage) Close(ctx context.Context) error {
	if err := c.clickWhenVisible(ctx, cartClose); err != nil {
		return err
	}
	if err := c.driver.WaitInvisible(ctx, cartContainer, c.timeouts.Wait); err != nil {
		return stepError(c.component, "wait hidden", cartContainer, err)
	}
	return nil
}

// RegisterPage is the account creation form.
type RegisterPage struct {
	page
	baseURL string
}

func NewRegisterPage(driver Driver, config *Config, logger *zap.Logger) *RegisterPage {
	return &RegisterPage{page: newPage(driver, config, logger, "register"), baseURL: config.BaseURL()}
}

func (r *RegisterPage) Open(ctx context.Context, country string) error {
	url := fmt.Sprintf("%s/%s/register", r.baseURL, strings.ToLower(country))
	if err := r.driver.Navigate(ctx, url); err != nil {
		return stepError(r.component, "navigate", Locator{}, err)
	}
	return r.waitFor(ctx, registerMain)
}

func (r *RegisterPage) Fill(ctx context.Context, user UserRecord) error {
	for _, f := range []struct {
		loc   Locator
		value string
	}{
		{registerEmail, user.Email},
		{registerFirstName, user.FirstName},
		{registerLastName, user.LastName},
		{registerPassword, user.Password},
	} {
		if err := r.fill(ctx, f.loc, f.value); err != nil {
			return err
		}
	}
	return nil
}

func (r *RegisterPage) AcceptTerms(ctx context.Context) error {
	if err := r.waitFor(ctx, registerTerms); err != nil {
		return err
	}
	if err := r.driver.SetChecked(ctx, registerTerms, true); err != nil {
		return stepError(r.component, "check", registerTerms, err)
	}
	return nil
}

// TryCaptcha ticks the reCAPTCHA checkbox when the widget renders. Bots are
// expected to be challenged, so every failure here is only logged.
func (r *RegisterPage) TryCaptcha(ctx context.Context) bool {
	n, err := r.driver.CountVisible(ctx, captchaFrame, r.timeouts.ModalDetect)
	if err != nil || n == 0 {
		r.logger.Debug("captcha not shown")
		return false
	}
	defer func() {
		if err := r.driver.ExitToTop(ctx); err != nil {
			r.logger.Warn("failed to leave captcha frame", zap.Error(err))
		}
	}()
	if err := r.driver.EnterFrame(ctx, captchaFrame); err != nil {
		r.logger.Warn("failed to enter captcha frame", zap.Error(err))
		return false
	}
	if err := r.driver.Click(ctx, captchaCheckbox); err != nil {
		r.logger.Warn("failed to tick captcha", zap.Error(err))
		return false
	}
	return true
}

func (r *RegisterPage) Submit(ctx context.Context) error {
	return r.clickWhenVisible(ctx, registerSubmit)
}

func (r *RegisterPage) AlertText(ctx context.Context) (string, error) {
	return r.text(ctx, registerAlert)
}

// OrderDetailsRecord is what the confirmation page shows about an order.
type OrderDetailsRecord struct {
	Number string `json:"orderNumber"`
	Date   string `json:"orderDate"`
	Status string `json:"orderStatus"`
	Total  string `json:"orderTotal"`
}

// ConfirmationPage is the order confirmation shown after a successful
// payment.
type ConfirmationPage struct {
	page
	mobile bool
}

func NewConfirmationPage(driver Driver, config *Config, logger *zap.Logger) *ConfirmationPage {
	return &ConfirmationPage{page: newPage(driver, config, logger, "confirmation"), mobile: config.IsMobile()}
}

func (c *ConfirmationPage) VerifyLoaded(ctx context.Context) error {
	return c.waitFor(ctx, confirmationSection)
}

// VerifyThankYou checks the greeting addresses customerName and that the
// confirmation and spam folder notes are shown.
func (c *ConfirmationPage) VerifyThankYou(ctx context.Context, customerName string) error {
	title, err := c.text(ctx, confirmationTitle)
	if err != nil {
		return err
	}
	greeting := fmt.Sprintf("%s, %s", T("thank_you_text"), customerName)
	if !strings.Contains(strings.ToLower(title), strings.ToLower(greeting)) {
		return assertionFailed("confirmation title %q does not contain %q", title, greeting)
	}

	msg, err := c.text(ctx, confirmationMessage)
	if err != nil {
		return err
	}
	for _, want := range []string{T("confirmation_text"), T("spam_warning")} {
		if !strings.Contains(msg, want) {
			return assertionFailed("confirmation message %q does not contain %q", msg, want)
		}
	}
	return nil
}

// OrderDetails scrapes the order summary. Each field is read on its own; a
// field that cannot be read is logged and reported as N/A.
func (c *ConfirmationPage) OrderDetails(ctx context.Context) OrderDetailsRecord {
	if c.mobile {
		if n, err := c.driver.CountVisible(ctx, summaryAccordion, c.timeouts.Interstitial); err == nil && n > 0 {
			if err := c.driver.Click(ctx, summaryAccordion); err != nil {
				c.logger.Warn("failed to expand order summary", zap.Error(err))
			}
		}
	}

	record := OrderDetailsRecord{
		Number: c.scrape(ctx, orderNumber, strings.TrimSpace),
		Date:   c.scrape(ctx, orderDate, cleanOrderDate),
		Status: c.scrape(ctx, orderStatus, strings.TrimSpace),
		Total:  c.scrape(ctx, orderTotal, extractPrice),
	}
	c.logger.Info("order details",
		zap.String("number", record.Number),
		zap.String("date", record.Date),
		zap.String("status", record.Status),
		zap.String("total", record.Total))
	return record
}

func (c *ConfirmationPage) scrape(ctx context.Context, loc Locator, clean func(string) string) string {
	text, err := c.driver.Text(ctx, loc)
	if err != nil {
		c.logger.Warn("failed to read order detail", zap.String("field", loc.Label()), zap.Error(err))
		return notAvailable
	}
	if v := clean(text); v != "" {
		return v
	}
	return notAvailable
}

func (c *ConfirmationPage) ContinueShopping(ctx context.Context) error {
	return c.clickWhenVisible(ctx, continueShopping)
}

// cleanOrderDate drops the shipping status rendered next to the date and
// normalises what is left.
func cleanOrderDate(text string) string {
	if i := strings.Index(text, "NOT SHIPPED"); i >= 0 {
		text = text[:i]
	}
	return ParseOrderDate(strings.TrimSpace(text))
}

// extractPrice returns the first currency amount in text, or the whole
// trimmed text when there is none.
func extractPrice(text string) string {
	if m := priceRe.FindString(text); m != "" {
		return m
	}
	return strings.TrimSpace(text)
}
