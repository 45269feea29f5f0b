package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Deployment tiers.
const (
	EnvNext    = "next"
	EnvStaging = "staging"
	EnvProd    = "prod"
)

// Screen profiles.
const (
	ScreenDesktop = "desktop"
	ScreenTablet  = "tablet"
	ScreenMobile  = "mobile"
)

type Config struct {
	Environment string            `yaml:"environment"`
	BaseURLs    map[string]string `yaml:"base_urls"`
	Country     string            `yaml:"country"`
	ScreenSize  string            `yaml:"screen_size"`

	BrowserBin         string `yaml:"browser_bin"`
	BrowserProfilePath string `yaml:"browser_profile_path"`
	Headless           bool   `yaml:"headless"`
	Stealth            bool   `yaml:"stealth"`

	OutputDir string `yaml:"output_dir"`
	Parallel  int    `yaml:"parallel"`
	DebugMode bool   `yaml:"debug_mode"`

	Timeouts TimeoutConfig `yaml:"timeouts"`
	Logger   LoggerConfig  `yaml:"logger"`

	// Secrets come from the environment only and are never saved.
	Secrets Secrets `yaml:"-"`
}

type TimeoutConfig struct {
	Wait         time.Duration `yaml:"wait"`
	Poll         time.Duration `yaml:"poll"`
	ModalDetect  time.Duration `yaml:"modal_detect"`
	ModalDismiss time.Duration `yaml:"modal_dismiss"`
	ModalSettle  time.Duration `yaml:"modal_settle"`
	Interstitial time.Duration `yaml:"interstitial"`
	Autocomplete time.Duration `yaml:"autocomplete"`
	Tabs         time.Duration `yaml:"tabs"`
	Email        time.Duration `yaml:"email"`
	// Launch is the minimum gap between two browser launches.
	Launch time.Duration `yaml:"launch"`
}

type LoggerConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	LogFile    string `yaml:"log_file"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
	Compress   bool   `yaml:"compress"`
}

// Secrets holds credentials for gated environments and payment sandboxes.
// Empty values mean "not configured"; flows that need them skip or fail
// explicitly rather than guessing.
type Secrets struct {
	AccessGatePassword string
	PayPalEmail        string
	PayPalPassword     string
	KlarnaPhone        string
	KlarnaOTP          string
	MailSlurpAPIKey    string
}

// Viewport is a browser window size in CSS pixels.
type Viewport struct {
	Width  int
	Height int
	Mobile bool
}

var viewports = map[string]Viewport{
	ScreenDesktop: {Width: 1440, Height: 900},
	ScreenTablet:  {Width: 1024, Height: 768},
	ScreenMobile:  {Width: 375, Height: 667, Mobile: true},
}

var supportedCountries = map[string]bool{"us": true, "ca": true, "de": true}

func DefaultConfig() *Config {
	return &Config{
		Environment: EnvStaging,
		BaseURLs: map[string]string{
			EnvNext:    "https://next.henckels.io",
			EnvStaging: "https://staging.henckels.io",
			EnvProd:    "https://www.henckels.com",
		},
		Country:    "us",
		ScreenSize: ScreenDesktop,
		Headless:   true,
		Stealth:    true,
		OutputDir:  "./output",
		Parallel:   1,
		Timeouts: TimeoutConfig{
			Wait:         30 * time.Second,
			Poll:         250 * time.Millisecond,
			ModalDetect:  10 * time.Second,
			ModalDismiss: 5 * time.Second,
			ModalSettle:  2 * time.Second,
			Interstitial: 2 * time.Second,
			Autocomplete: time.Second,
			Tabs:         10 * time.Second,
			Email:        30 * time.Second,
			Launch:       2 * time.Second,
		},
		Logger: LoggerConfig{
			Level:      "info",
			Format:     "console",
			LogFile:    filepath.Join(getUserDataDir(), "storefront.log"),
			MaxSize:    10,
			MaxBackups: 3,
			MaxAge:     7,
		},
	}
}

func LoadConfig(path string) (*Config, error) {
	config := DefaultConfig()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := config.Save(path); err != nil {
			return nil, err
		}
		return config, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, err
	}

	if err := config.expandPaths(); err != nil {
		return nil, err
	}

	if config.BrowserProfilePath != "" {
		if err := os.MkdirAll(config.BrowserProfilePath, 0755); err != nil {
			return nil, err
		}
	}

	return config, nil
}

// expandPaths resolves a leading ~ in every path setting.
func (c *Config) expandPaths() error {
	for _, p := range []*string{&c.OutputDir, &c.BrowserProfilePath, &c.Logger.LogFile} {
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return fmt.Errorf("failed to expand %q: %w", *p, err)
		}
		*p = expanded
	}
	return nil
}

func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// ApplyEnv overlays run settings and secrets from the environment. The
// variable names are the ones CI already exports for this suite.
func (c *Config) ApplyEnv() {
	v := viper.New()
	_ = v.BindEnv("environment", "STOREFRONT_ENV", "NODE_ENV")
	_ = v.BindEnv("country", "COUNTRY")
	_ = v.BindEnv("screen_size", "SCREEN_SIZE")
	_ = v.BindEnv("headless", "HEADLESS")
	_ = v.BindEnv("parallel", "CHUNKS")
	_ = v.BindEnv("browser_bin", "BROWSER_BIN")

	if v.IsSet("environment") {
		c.Environment = strings.ToLower(v.GetString("environment"))
	}
	if v.IsSet("country") {
		c.Country = strings.ToLower(v.GetString("country"))
	}
	if v.IsSet("screen_size") {
		c.ScreenSize = strings.ToLower(v.GetString("screen_size"))
	}
	if v.IsSet("headless") {
		c.Headless = v.GetBool("headless")
	}
	if v.IsSet("parallel") {
		if n := v.GetInt("parallel"); n > 0 {
			c.Parallel = n
		}
	}
	if v.IsSet("browser_bin") {
		c.BrowserBin = v.GetString("browser_bin")
	}

	c.Secrets = LoadSecrets()
}

// LoadSecrets reads credentials from the environment.
func LoadSecrets() Secrets {
	v := viper.New()
	_ = v.BindEnv("access_password", "HENCKELS_PROD_PASSWORD")
	_ = v.BindEnv("paypal_email", "PAYPAL_TEST_EMAIL")
	_ = v.BindEnv("paypal_password", "PAYPAL_TEST_PASSWORD")
	_ = v.BindEnv("klarna_phone", "KLARNA_PHONE_US")
	_ = v.BindEnv("klarna_otp", "KLARNA_OTP")
	_ = v.BindEnv("mailslurp_api_key", "MAILSLURP_API_KEY")

	return Secrets{
		AccessGatePassword: v.GetString("access_password"),
		PayPalEmail:        v.GetString("paypal_email"),
		PayPalPassword:     v.GetString("paypal_password"),
		KlarnaPhone:        v.GetString("klarna_phone"),
		KlarnaOTP:          v.GetString("klarna_otp"),
		MailSlurpAPIKey:    v.GetString("mailslurp_api_key"),
	}
}

// BaseURL returns the storefront origin for the configured tier. Unknown
// tiers resolve to production.
func (c *Config) BaseURL() string {
	if url, ok := c.BaseURLs[c.Environment]; ok && url != "" {
		return strings.TrimRight(url, "/")
	}
	if url, ok := c.BaseURLs[EnvProd]; ok && url != "" {
		return strings.TrimRight(url, "/")
	}
	return "https://www.henckels.com"
}

// Viewport returns the window size for the configured screen profile,
// defaulting to desktop.
func (c *Config) Viewport() Viewport {
	if vp, ok := viewports[c.ScreenSize]; ok {
		return vp
	}
	return viewports[ScreenDesktop]
}

func (c *Config) IsMobile() bool {
	return c.Viewport().Mobile
}

func (c *Config) Validate() error {
	if !supportedCountries[c.Country] {
		return contractViolation("unsupported country %q", c.Country)
	}
	if c.Parallel < 1 {
		return contractViolation("parallel must be at least 1, got %d", c.Parallel)
	}
	t := c.Timeouts
	for name, d := range map[string]time.Duration{
		"wait":          t.Wait,
		"poll":          t.Poll,
		"modal_detect":  t.ModalDetect,
		"modal_dismiss": t.ModalDismiss,
		"interstitial":  t.Interstitial,
		"tabs":          t.Tabs,
		"email":         t.Email,
	} {
		if d <= 0 {
			return contractViolation("timeout %s must be positive, got %s", name, d)
		}
	}
	if t.Launch < 0 {
		return contractViolation("timeout launch must not be negative, got %s", t.Launch)
	}
	if c.OutputDir == "" {
		return fmt.Errorf("%w: output_dir is empty", ErrContractViolation)
	}
	return nil
}

func getUserDataDir() string {
	home, err := homedir.Dir()
	if err != nil {
		return "./storefront-data"
	}
	return filepath.Join(home, ".storefront")
}
