package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func main() {
	// Load .env file if present (silently ignore if not found)
	_ = godotenv.Load()

	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

// app holds the flags shared by every command and what setup derives from
// them.
type app struct {
	configPath string
	env        string
	country    string
	screen     string
	headless   bool
	debug      bool

	config *Config
	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:   "storefront",
		Short: "End-to-end checks for the Henckels storefront",
		Long: `storefront drives a real browser through the Henckels storefront:
registration, search and guest checkout with card, gift card, PayPal and
Klarna payments.

Example:
  storefront run checkout-card --env staging --country ca`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = syncLogger(a.logger)
			}
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&a.configPath, "config", "c", "config.yaml", "Path to configuration file")
	flags.StringVar(&a.env, "env", "", "Deployment tier: next, staging or prod (overrides config)")
	flags.StringVar(&a.country, "country", "", "Storefront country: us, ca or de (overrides config)")
	flags.StringVar(&a.screen, "screen", "", "Screen profile: desktop, tablet or mobile (overrides config)")
	flags.BoolVar(&a.headless, "headless", true, "Run the browser headless")
	flags.BoolVar(&a.debug, "debug", false, "Enable detailed debug logging")

	rootCmd.AddCommand(a.newRunCmd(), a.newListCmd(), a.newOrdersCmd(), a.newPostalCodesCmd())
	return rootCmd
}

// setup loads config, applies environment and flag overrides in that order,
// and initializes locale and logging.
func (a *app) setup(cmd *cobra.Command) error {
	config, err := LoadConfig(a.configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	config.ApplyEnv()

	flags := cmd.Flags()
	if a.env != "" {
		config.Environment = strings.ToLower(a.env)
	}
	if a.country != "" {
		config.Country = strings.ToLower(a.country)
	}
	if a.screen != "" {
		config.ScreenSize = strings.ToLower(a.screen)
	}
	if flags.Changed("headless") {
		config.Headless = a.headless
	}
	if a.debug {
		config.DebugMode = true
		config.Logger.Level = "debug"
	}

	if err := config.Validate(); err != nil {
		return err
	}

	if err := InitLocale(LocaleForCountry(config.Country)); err != nil {
		log.Printf("Warning: Locale initialization failed, using default English: %v", err)
	}
	checkUserDataDirPermissions()

	a.config = config
	a.logger = NewStdoutLogger(config.Logger)
	return nil
}

func (a *app) newRunCmd() *cobra.Command {
	var (
		parallel      int
		seed          uint64
		skipPreflight bool
	)

	cmd := &cobra.Command{
		Use:   "run [scenario...]",
		Short: "Run scenarios (all when none are named)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("parallel") {
				a.config.Parallel = parallel
			}
			if err := a.config.Validate(); err != nil {
				return err
			}

			scenarios, err := SelectScenarios(args)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			out := cmd.OutOrStdout()
			printBanner(out, a.config)

			if !skipPreflight {
				fmt.Fprintf(out, T("preflight_checking")+"\n", a.config.BaseURL())
				if err := WaitForStorefront(ctx, a.config.BaseURL(), a.config.Timeouts.Wait, a.config.Timeouts.ModalDismiss, a.logger); err != nil {
					return err
				}
			}

			var mailbox Mailbox
			if key := a.config.Secrets.MailSlurpAPIKey; key != "" {
				mailbox = NewMailSlurpClient(key, a.logger)
			}

			orders := NewOrderLog(a.config.OutputDir)
			runner := NewRunner(a.config, NewRodDriverFactory(a.config, a.logger), orders, mailbox, a.logger)
			runner.SetOutput(out)
			runner.SetSeed(seed)

			report, err := runner.Run(ctx, scenarios)
			if err != nil {
				return err
			}
			path, err := report.Write(a.config.OutputDir)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, T("report_written")+"\n", path)

			if !report.Ok() {
				return fmt.Errorf("%d of %d scenario(s) failed", report.Failed(), len(report.Results))
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&parallel, "parallel", "p", 1, "Number of scenarios to run at once")
	cmd.Flags().Uint64Var(&seed, "seed", 0, "Seed for generated test data (0 picks a random seed)")
	cmd.Flags().BoolVar(&skipPreflight, "skip-preflight", false, "Do not check that the storefront answers before launching browsers")
	return cmd
}

func (a *app) newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the scenario catalogue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			listScenarios(cmd.OutOrStdout(), a.config)
			return nil
		},
	}
}

func listScenarios(w io.Writer, config *Config) {
	for _, sc := range Catalogue() {
		fmt.Fprintf(w, "%-28s %s\n", sc.Name, sc.Description)
		if reason := sc.skipReason(config); reason != "" {
			fmt.Fprintf(w, "%-28s (skipped: %s)\n", "", reason)
		}
	}
}

func (a *app) newOrdersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "orders",
		Short: "Print the orders placed by the last run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := NewOrderLog(a.config.OutputDir).ReadAll()
			if err != nil {
				return err
			}
			printOrders(cmd.OutOrStdout(), entries)
			return nil
		},
	}
}

func printOrders(w io.Writer, entries []OrderLogEntry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, T("orders_none"))
		return
	}
	for _, e := range entries {
		fmt.Fprintf(w, "%s  %-28s %-16s %-12s %-14s %s\n",
			e.Timestamp, e.TestName, e.Order.Number, e.Order.Date, e.Order.Status, e.Order.Total)
	}
}

func (a *app) newPostalCodesCmd() *cobra.Command {
	var (
		count int
		seed  uint64
	)

	cmd := &cobra.Command{
		Use:   "postal-codes",
		Short: "Print generated postal codes for the configured country",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if count < 1 {
				return contractViolation("count must be at least 1, got %d", count)
			}
			gen := NewDataGenerator(seed)
			for _, code := range postalCodes(gen, a.config.Country, count) {
				fmt.Fprintln(cmd.OutOrStdout(), code)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&count, "count", "n", 10, "Number of codes")
	cmd.Flags().Uint64Var(&seed, "seed", 0, "Generator seed (0 picks a random seed)")
	return cmd
}

func postalCodes(gen *DataGenerator, country string, n int) []string {
	codes := make([]string, 0, n)
	for i := 0; i < n; i++ {
		if country == "ca" {
			codes = append(codes, gen.CanadianPostalCode())
			continue
		}
		codes = append(codes, gen.Shipping(country, AddressRecord{}).Zip)
	}
	return codes
}

func printBanner(w io.Writer, config *Config) {
	fmt.Fprintln(w, "╔═══════════════════════════════════════════════════════════╗")
	fmt.Fprintln(w, "║              Henckels Storefront E2E Suite                ║")
	fmt.Fprintln(w, "╚═══════════════════════════════════════════════════════════╝")
	fmt.Fprintln(w)
	fmt.Fprintf(w, T("banner_environment")+"\n", config.Environment, config.BaseURL())
	fmt.Fprintf(w, T("banner_country")+"\n", strings.ToUpper(config.Country), GetLocale())
	fmt.Fprintf(w, T("banner_screen")+"\n", config.ScreenSize, config.Viewport().Width, config.Viewport().Height)
	fmt.Fprintf(w, T("banner_output")+"\n", config.OutputDir)
	if config.DebugMode {
		fmt.Fprintln(w, T("banner_debug_mode"))
	}
	fmt.Fprintln(w)
}

// Store init error for later display (after locale is loaded)
var initUserDataDirError error

func init() {
	userDataDir := getUserDataDir()
	if err := os.MkdirAll(userDataDir, 0755); err != nil {
		initUserDataDirError = err
	}
}

func checkUserDataDirPermissions() {
	if initUserDataDirError != nil {
		userDataDir := getUserDataDir()
		// Check if this is a macOS permission issue
		if runtime.GOOS == "darwin" && strings.Contains(initUserDataDirError.Error(), "operation not permitted") {
			fmt.Println(T("error_macos_permission_header"))
			fmt.Printf(T("error_macos_permission_location")+"\n", userDataDir)
			fmt.Println(T("error_macos_permission_fix_instructions"))
			fmt.Println()
		}
		log.Printf(T("error_user_data_dir_warning"), filepath.Clean(userDataDir), initUserDataDirError)
	}
}
