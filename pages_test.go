package main

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestHomePageVisit(t *testing.T) {
	driver := newFakeDriver()
	config := testConfig(t)
	config.Environment = EnvNext
	logger := zap.NewNop()
	home := NewHomePage(driver, config, NewModalEngine(driver, config, logger), logger)

	require.NoError(t, home.Visit(context.Background(), "CA"))

	nav, ok := driver.find("navigate", "")
	require.True(t, ok)
	assert.Equal(t, "https://next.henckels.io/ca/", nav.Value)
	assert.Len(t, driver.calls("count"), 3)
	assert.Equal(t, []string{"Navigation Header", "Hero Carousel"}, driver.calls("wait"))
}

func TestHomePageVisitReportsMissingHeader(t *testing.T) {
	driver := newFakeDriver()
	driver.missing["Navigation Header"] = true
	config := testConfig(t)
	home := NewHomePage(driver, config, NewModalEngine(driver, config, zap.NewNop()), zap.NewNop())

	err := home.Visit(context.Background(), "us")

	var stepErr *StepError
	require.True(t, errors.As(err, &stepErr))
	assert.Equal(t, "home", stepErr.Component)
	assert.Equal(t, "Navigation Header", stepErr.Label)
	assert.ErrorIs(t, err, ErrElementNotFound)
}

func TestOpenCategory(t *testing.T) {
	tests := []struct {
		name       string
		screen     string
		index      int
		wantClicks []string
		wantErr    error
	}{
		{
			name:       "desktop",
			screen:     ScreenDesktop,
			index:      2,
			wantClicks: []string{"Category Link"},
		},
		{
			name:       "mobile",
			screen:     ScreenMobile,
			index:      0,
			wantClicks: []string{"Mobile Navigation Button", "Mobile Category Link", "Mobile Subcategory Link"},
		},
		{
			name:    "negative index",
			screen:  ScreenDesktop,
			index:   -1,
			wantErr: ErrContractViolation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			driver := newFakeDriver()
			config := testConfig(t)
			config.ScreenSize = tt.screen
			nav := NewNavigation(driver, config, zap.NewNop())

			err := nav.OpenCategory(context.Background(), tt.index)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Empty(t, driver.recorded())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantClicks, driver.calls("click"))
		})
	}
}

func TestOpenCategoryUsesOneBasedOrdinal(t *testing.T) {
	driver := newFakeDriver()
	nav := NewNavigation(driver, testConfig(t), zap.NewNop())

	require.NoError(t, nav.OpenCategory(context.Background(), 2))

	click, ok := driver.find("click", "Category Link")
	require.True(t, ok)
	assert.Contains(t, click.Selector, "#3")
}

func TestSearch(t *testing.T) {
	driver := newFakeDriver()
	nav := NewNavigation(driver, testConfig(t), zap.NewNop())

	require.NoError(t, nav.Search(context.Background(), "thermometer"))

	assert.Equal(t, []string{"Search Button"}, driver.calls("click"))
	fill, ok := driver.find("fill", "Search Input")
	require.True(t, ok)
	assert.Equal(t, "thermometer", fill.Value)
	assert.Equal(t, []string{KeyEnter}, driver.calls("key"))
}

func TestOpenSignUpPageWaitsForTitle(t *testing.T) {
	driver := newFakeDriver()
	nav := NewNavigation(driver, testConfig(t), zap.NewNop())

	require.NoError(t, nav.OpenSignUpPage(context.Background()))

	assert.Equal(t, []string{"Account Button", "Sign Up Link"}, driver.calls("click"))
	title, ok := driver.find("wait", "Create Account Title")
	require.True(t, ok)
	assert.Contains(t, title.Selector, T("register_title"))
}

func TestNavigationAccountAndCart(t *testing.T) {
	driver := newFakeDriver()
	nav := NewNavigation(driver, testConfig(t), zap.NewNop())
	ctx := context.Background()

	require.NoError(t, nav.OpenSignInPage(ctx))
	require.NoError(t, nav.OpenCart(ctx))

	assert.Equal(t, []string{"Account Button", "Sign In Link", "Cart Button"}, driver.calls("click"))
	_, ok := driver.find("wait", "Cart Container")
	assert.True(t, ok)

	driver.missing["Cart Container"] = true
	assert.ErrorIs(t, nav.OpenCart(ctx), ErrElementNotFound)
}

func TestProductNameFromLabel(t *testing.T) {
	tests := []struct {
		label string
		want  string
	}{
		{label: "Add Chef's Knife to cart", want: "Chef's Knife"},
		{label: "  Add Paring Knife, 4-inch to cart ", want: "Paring Knife, 4-inch"},
		{label: "Thermometer", want: "Thermometer"},
		{label: "Add  to cart", want: ""},
		{label: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			assert.Equal(t, tt.want, productNameFromLabel(tt.label))
		})
	}
}

func TestOpenProduct(t *testing.T) {
	driver := newFakeDriver()
	driver.attrs["Add To Cart Button@aria-label"] = "Add Chef's Knife to cart"
	catalog := NewCatalogPage(driver, testConfig(t), zap.NewNop())

	name, err := catalog.OpenProduct(context.Background(), 1)

	require.NoError(t, err)
	assert.Equal(t, "Chef's Knife", name)
	attr, ok := driver.find("attr", "Add To Cart Button")
	require.True(t, ok)
	assert.Contains(t, attr.Selector, "#2")
	link, ok := driver.find("click", "Product Link")
	require.True(t, ok)
	assert.Contains(t, link.Selector, `with text "Chef's Knife"`)
}

func TestOpenProductRejectsUnnamedProduct(t *testing.T) {
	driver := newFakeDriver()
	catalog := NewCatalogPage(driver, testConfig(t), zap.NewNop())

	_, err := catalog.OpenProduct(context.Background(), 0)
	assert.ErrorIs(t, err, ErrContractViolation)
	assert.Empty(t, driver.calls("click"))

	_, err = catalog.OpenProduct(context.Background(), -2)
	assert.ErrorIs(t, err, ErrContractViolation)
}

func TestVerifySearchResults(t *testing.T) {
	tests := []struct {
		name     string
		count    int
		results  []string
		wantErr  error
		wantWait string
	}{
		{
			name:     "no results shows message",
			count:    0,
			wantWait: "No Results Message",
		},
		{
			name:    "every result matches",
			count:   2,
			results: []string{"Digital THERMOMETER $29.99", "Meat Thermometer $19.99"},
		},
		{
			name:    "unrelated result",
			count:   2,
			results: []string{"Meat Thermometer", "Chef's Knife"},
			wantErr: ErrAssertion,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			driver := newFakeDriver()
			driver.counts["Product Card"] = tt.count
			driver.textAll["Product Card"] = tt.results
			catalog := NewCatalogPage(driver, testConfig(t), zap.NewNop())

			err := catalog.VerifySearchResults(context.Background(), "thermometer")

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			if tt.wantWait != "" {
				assert.Contains(t, driver.calls("wait"), tt.wantWait)
				assert.Empty(t, driver.calls("textAll"))
			}
		})
	}
}

func TestProductPageToleratesMissingReviews(t *testing.T) {
	driver := newFakeDriver()
	product := NewProductPage(driver, testConfig(t), zap.NewNop())

	require.NoError(t, product.VerifyLoaded(context.Background()))
	require.NoError(t, product.AddToCart(context.Background()))
	assert.Equal(t, []string{"PDP Add To Cart Button"}, driver.calls("click"))
}

func TestCartProceedToCheckout(t *testing.T) {
	t.Run("empty cart", func(t *testing.T) {
		driver := newFakeDriver()
		driver.counts["Empty Cart"] = 1
		driver.counts["Cart Item"] = 3
		cart := NewCartPage(driver, testConfig(t), zap.NewNop())

		n, err := cart.ItemCount(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 0, n)

		err = cart.ProceedToCheckout(context.Background())
		assert.ErrorIs(t, err, ErrContractViolation)
		assert.Empty(t, driver.calls("click"))
	})

	t.Run("with items", func(t *testing.T) {
		driver := newFakeDriver()
		driver.counts["Cart Item"] = 2
		cart := NewCartPage(driver, testConfig(t), zap.NewNop())

		n, err := cart.ItemCount(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		require.NoError(t, cart.ProceedToCheckout(context.Background()))
		assert.Equal(t, []string{"Checkout Button"}, driver.calls("click"))
	})
}

func TestCartItemActions(t *testing.T) {
	driver := newFakeDriver()
	driver.texts["Cart Total"] = "  $129.00 "
	cart := NewCartPage(driver, testConfig(t), zap.NewNop())
	ctx := context.Background()

	require.NoError(t, cart.IncreaseQuantity(ctx, "Chef's Knife"))
	require.NoError(t, cart.ReduceQuantity(ctx, "Chef's Knife"))
	require.NoError(t, cart.RemoveItem(ctx, "Chef's Knife"))
	require.NoError(t, cart.Close(ctx))

	total, err := cart.Total(ctx)
	require.NoError(t, err)
	assert.Equal(t, "$129.00", total)

	assert.Equal(t, []string{
		"Increase Quantity Button",
		"Reduce Quantity Button",
		"Remove Item Button",
		"Close Cart Button",
	}, driver.calls("click"))
	remove, ok := driver.find("click", "Remove Item Button")
	require.True(t, ok)
	assert.Contains(t, remove.Selector, `with text "Chef's Knife"`)
	assert.Equal(t, []string{"Cart Container"}, driver.calls("waitHidden"))
}

func TestRegisterPage(t *testing.T) {
	driver := newFakeDriver()
	register := NewRegisterPage(driver, testConfig(t), zap.NewNop())
	ctx := context.Background()
	user := UserRecord{Email: "a@example.com", FirstName: "Ada", LastName: "Lovelace", Password: "Secr3t!pass"}

	require.NoError(t, register.Open(ctx, "us"))
	require.NoError(t, register.Fill(ctx, user))
	require.NoError(t, register.AcceptTerms(ctx))
	require.NoError(t, register.Submit(ctx))

	nav, _ := driver.find("navigate", "")
	assert.Equal(t, "https://staging.henckels.io/us/register", nav.Value)
	assert.Equal(t, []string{"Email Input", "First Name Input", "Last Name Input", "Password Input"}, driver.calls("fill"))
	check, ok := driver.find("check", "Accept Terms Checkbox")
	require.True(t, ok)
	assert.Equal(t, "true", check.Value)
	assert.Equal(t, []string{"Sign Up Button"}, driver.calls("click"))
}

func TestTryCaptcha(t *testing.T) {
	tests := []struct {
		name      string
		frames    int
		clickErr  error
		want      bool
		wantExits int
	}{
		{name: "not rendered", frames: 0, want: false, wantExits: 0},
		{name: "ticked", frames: 1, want: true, wantExits: 1},
		{name: "click fails", frames: 1, clickErr: errors.New("challenge shown"), want: false, wantExits: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			driver := newFakeDriver()
			driver.counts["CAPTCHA Frame"] = tt.frames
			if tt.clickErr != nil {
				driver.failOn["click:CAPTCHA Checkbox"] = tt.clickErr
			}
			register := NewRegisterPage(driver, testConfig(t), zap.NewNop())

			assert.Equal(t, tt.want, register.TryCaptcha(context.Background()))
			assert.Len(t, driver.calls("exitFrame"), tt.wantExits)
		})
	}
}

func TestVerifyThankYou(t *testing.T) {
	tests := []struct {
		name    string
		title   string
		message string
		wantErr error
	}{
		{
			name:    "matching",
			title:   "THANK YOU, ADA LOVELACE!",
			message: "Your order has been received. If you do not see our email, please check your spam folder.",
		},
		{
			name:    "wrong customer",
			title:   "Thank you, Grace Hopper!",
			message: "Your order has been received. Please check your spam folder.",
			wantErr: ErrAssertion,
		},
		{
			name:    "missing spam note",
			title:   "Thank you, Ada Lovelace!",
			message: "Your order has been received.",
			wantErr: ErrAssertion,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			driver := newFakeDriver()
			driver.texts["Confirmation Title"] = tt.title
			driver.texts["Confirmation Message"] = tt.message
			confirmation := NewConfirmationPage(driver, testConfig(t), zap.NewNop())

			err := confirmation.VerifyThankYou(context.Background(), "Ada Lovelace")

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestContinueShopping(t *testing.T) {
	driver := newFakeDriver()
	confirmation := NewConfirmationPage(driver, testConfig(t), zap.NewNop())

	require.NoError(t, confirmation.ContinueShopping(context.Background()))
	assert.Equal(t, []string{"Continue Shopping Button"}, driver.calls("click"))
}

func TestOrderDetails(t *testing.T) {
	driver := newFakeDriver()
	driver.texts["Order Number"] = " HK100023456 "
	driver.texts["Order Date"] = "March 5, 2025 NOT SHIPPED"
	driver.texts["Order Total"] = "Total $1,234.56"
	driver.missing["Order Status"] = true
	confirmation := NewConfirmationPage(driver, testConfig(t), zap.NewNop())

	got := confirmation.OrderDetails(context.Background())

	assert.Equal(t, OrderDetailsRecord{
		Number: "HK100023456",
		Date:   "2025-03-05",
		Status: notAvailable,
		Total:  "$1,234.56",
	}, got)
	assert.Empty(t, driver.calls("click"))
}

func TestOrderDetailsExpandsSummaryOnMobile(t *testing.T) {
	driver := newFakeDriver()
	driver.counts["Order Summary Accordion"] = 1
	config := testConfig(t)
	config.ScreenSize = ScreenMobile
	confirmation := NewConfirmationPage(driver, config, zap.NewNop())

	got := confirmation.OrderDetails(context.Background())

	assert.Equal(t, []string{"Order Summary Accordion"}, driver.calls("click"))
	assert.Equal(t, notAvailable, got.Number)
}

func TestExtractPrice(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{text: "$89.99", want: "$89.99"},
		{text: "Order Total $1,234.56 incl. tax", want: "$1,234.56"},
		{text: "Gesamt 1.234,56 €", want: "1.234,56 €"},
		{text: "49,95 €", want: "49,95 €"},
		{text: "  free  ", want: "free"},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, extractPrice(tt.text))
		})
	}
}
