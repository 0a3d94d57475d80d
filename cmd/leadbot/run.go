package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jonathan/sponsor-leads/internal/config"
	"github.com/jonathan/sponsor-leads/internal/contacts"
	"github.com/jonathan/sponsor-leads/internal/fetch"
	"github.com/jonathan/sponsor-leads/internal/llm"
	"github.com/jonathan/sponsor-leads/internal/observability"
	"github.com/jonathan/sponsor-leads/internal/pipeline"
	"github.com/jonathan/sponsor-leads/internal/report"
	"github.com/jonathan/sponsor-leads/internal/resolve"
	"github.com/jonathan/sponsor-leads/internal/sources"
	"github.com/jonathan/sponsor-leads/internal/sources/companieshouse"
	"github.com/jonathan/sponsor-leads/internal/sources/sponsor"
	"github.com/jonathan/sponsor-leads/internal/state"
	"github.com/jonathan/sponsor-leads/internal/triage"
	"github.com/jonathan/sponsor-leads/internal/types"
	"github.com/jonathan/sponsor-leads/internal/verify"
)

var runCommand = &cobra.Command{
	Use:   "run",
	Short: "Run the full lead pipeline once",
	Long: `Fetches both registries, diffs them against the state store, scores the
novel records, resolves and verifies websites for the shortlist, extracts
public contacts and writes the ranked leads.

Configuration can be loaded from a JSON file using --config. Command-line arguments override config file values.`,
	RunE: runPipelineCmd,
}

var (
	runStore          storeFlags
	runOut            string
	runJSON           string
	runHTML           string
	runMaxLeads       int
	runLookbackDays   int
	runNoSearch       bool
	runSearchProvider string
	runUseBrowser     bool
	runTriage         bool
	runDryRun         bool
	runMetricsFile    string
	runVerbose        bool
)

func init() {
	runStore.register(runCommand)

	runCommand.Flags().StringVarP(&runOut, "out", "o", "-", "CSV output path ('-' writes to stdout)")
	runCommand.Flags().StringVar(&runJSON, "json", "", "Also write the leads as JSON to this path")
	runCommand.Flags().StringVar(&runHTML, "html", "", "Also write an HTML brief to this path")
	runCommand.Flags().IntVar(&runMaxLeads, "max-leads", 0, "Maximum leads emitted (default 25)")
	runCommand.Flags().IntVar(&runLookbackDays, "lookback-days", 0, "Companies House incorporation window in days (default 30)")
	runCommand.Flags().BoolVar(&runNoSearch, "no-search", false, "Skip website resolution, verification and contacts")
	runCommand.Flags().StringVar(&runSearchProvider, "search-provider", "", "Website search provider: google, serpapi or none")
	runCommand.Flags().BoolVar(&runUseBrowser, "use-browser", false, "Re-render thin pages in headless Chrome during verification")
	runCommand.Flags().BoolVar(&runTriage, "triage", false, "Triage verified leads with Gemini (requires GEMINI_API_KEY)")
	runCommand.Flags().BoolVar(&runDryRun, "dry-run", false, "Run without committing state")
	runCommand.Flags().StringVar(&runMetricsFile, "metrics-file", "", "Write Prometheus metrics to this textfile after the run")
	runCommand.Flags().BoolVarP(&runVerbose, "verbose", "v", false, "Print detailed debug information")

	rootCmd.AddCommand(runCommand)
}

// applyRunFlags copies explicitly set run flags onto cfg.
func applyRunFlags(cmd *cobra.Command, cfg *config.Config) {
	runStore.apply(cmd, cfg)
	if cmd.Flags().Changed("max-leads") {
		cfg.MaxLeads = runMaxLeads
	}
	if cmd.Flags().Changed("lookback-days") {
		cfg.LookbackDays = runLookbackDays
	}
	if cmd.Flags().Changed("no-search") {
		cfg.NoSearch = runNoSearch
	}
	if cmd.Flags().Changed("search-provider") {
		cfg.SearchProvider = runSearchProvider
	}
	if cmd.Flags().Changed("use-browser") {
		cfg.UseBrowser = runUseBrowser
	}
	if cmd.Flags().Changed("triage") {
		cfg.Triage = runTriage
	}
	if cmd.Flags().Changed("metrics-file") {
		cfg.MetricsFile = runMetricsFile
	}
	if cmd.Flags().Changed("verbose") {
		cfg.Verbose = runVerbose
	}
}

func runPipelineCmd(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Step 1: Load config file if provided
	cfg, err := loadConfig(runStore.configPath)
	if err != nil {
		return err
	}

	// Step 2: Apply CLI overrides, then defaults and environment
	applyRunFlags(cmd, &cfg)
	cfg, err = finishConfig(cfg, os.Getenv)
	if err != nil {
		return err
	}

	logger, err := observability.NewLogger(cfg.Verbose)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	// Step 3: Open state
	store, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open state store: %w", err)
	}
	defer func() { _ = store.Close() }()

	// Progress goes to stderr when the CSV is written to stdout.
	var console io.Writer = os.Stdout
	if runOut == "-" {
		console = os.Stderr
	}
	printer := observability.NewPrinter(console)
	metrics := observability.NewMetrics()

	// Step 4: Wire the stages
	opts, cleanup, err := buildOptions(ctx, cfg, store, logger)
	if err != nil {
		return err
	}
	defer cleanup()
	opts.DryRun = runDryRun
	opts.Metrics = metrics
	opts.Printer = printer

	// Step 5: Run
	result, err := pipeline.Run(ctx, opts)
	if err != nil {
		return fmt.Errorf("run failed: %w", err)
	}

	// Step 6: Emit
	if err := writeOutputs(result, runOut, runJSON, runHTML); err != nil {
		return err
	}
	printer.PrintSummary("Run summary", result.Summary.Fields())
	printer.PrintLeads(result.Leads)

	if cfg.MetricsFile != "" {
		if err := metrics.WriteTextfile(cfg.MetricsFile); err != nil {
			logger.Warn("failed to write metrics file", zap.String("path", cfg.MetricsFile), zap.Error(err))
		}
	}
	return nil
}

// buildOptions creates every collaborator the run needs from cfg. The
// returned cleanup releases clients that hold connections.
func buildOptions(ctx context.Context, cfg config.Config, store state.Store, logger *zap.Logger) (pipeline.Options, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	retry := fetch.DefaultRetryPolicy()
	retry.MaxRetries = cfg.MaxRetries

	httpOpts := fetch.DefaultOptions()
	httpOpts.Timeout = cfg.HTTPTimeout.Std()
	web := fetch.NewClient(httpOpts)

	opts := pipeline.Options{
		Preparers:   map[types.Source]sources.Preparer{},
		Store:       store,
		MaxLeads:    cfg.MaxLeads,
		MaxProfiles: cfg.MaxProfiles,
		Workers:     cfg.Workers,
		RunTimeout:  cfg.RunTimeout.Std(),
		Logger:      logger,

		EnrichCacheTTL: time.Duration(cfg.EnrichCacheDays) * 24 * time.Hour,
	}

	// Sources
	sponsorCfg := sponsor.DefaultConfig()
	if cfg.SponsorPageURL != "" {
		sponsorCfg.PageURL = cfg.SponsorPageURL
	}
	sponsorCfg.CSVURL = cfg.SponsorCSVURL
	if len(cfg.Routes) > 0 {
		sponsorCfg.Routes = cfg.Routes
	}
	sponsorCfg.Retry = retry
	sponsorAdapter := sponsor.New(sponsorCfg, nil, logger.With(zap.String("stage", "sponsor")))

	if cfg.CompaniesHouseAPIKey == "" {
		logger.Warn("companies house disabled", zap.String("reason", config.EnvCompaniesHouseKey+" not set"))
		opts.Sources = []sources.Adapter{
			sponsorAdapter,
			&sources.Static{From: types.SourceCompaniesHouse, Err: &sources.UnavailableError{
				Source:  types.SourceCompaniesHouse,
				Message: "no API key configured",
			}},
		}
	} else {
		chCfg := companieshouse.DefaultClientConfig(cfg.CompaniesHouseAPIKey)
		chCfg.RatePerSecond = cfg.CHRatePerSecond
		chCfg.Burst = cfg.CHBurst
		chCfg.Timeout = cfg.HTTPTimeout.Std()
		chCfg.Retry = retry
		chLogger := logger.With(zap.String("stage", "companies_house"))
		client, err := companieshouse.NewClient(chCfg, chLogger)
		if err != nil {
			return opts, cleanup, err
		}
		adapter := companieshouse.NewAdapter(client, companieshouse.Config{
			LookbackDays: cfg.LookbackDays,
			MaxResults:   cfg.MaxResults,
		}, chLogger)
		opts.Sources = []sources.Adapter{sponsorAdapter, adapter}
		opts.Preparers[types.SourceCompaniesHouse] = adapter
		opts.Preparers[types.SourceSponsorRegister] = companieshouse.NewMatcher(client, 0, chLogger).WithCache(store)
	}

	// Website resolution, verification and contacts
	if cfg.SearchEnabled() {
		searcher, err := newSearcher(ctx, cfg, web)
		if err != nil {
			return opts, cleanup, err
		}
		opts.Resolver = resolve.New(searcher, resolve.Options{MaxQueries: cfg.MaxSearchQueries}, logger.With(zap.String("stage", "resolve")))

		verifyOpts := verify.Options{Threshold: cfg.VerifyThreshold}
		if cfg.UseBrowser {
			verifyOpts.Renderer = &fetch.Browser{Timeout: cfg.HTTPTimeout.Std(), Logger: logger}
		}
		opts.Verifier = verify.New(web, verifyOpts, logger.With(zap.String("stage", "verify")))
		opts.Contacts = contacts.New(web, contacts.Options{MaxPages: cfg.ContactPages}, logger.With(zap.String("stage", "contacts")))
	} else if !cfg.NoSearch && cfg.SearchProvider != config.SearchNone {
		logger.Warn("website search disabled", zap.String("provider", cfg.SearchProvider), zap.String("reason", "credentials not set"))
	}

	// Triage
	if cfg.Triage {
		llmCfg := llm.DefaultConfig()
		if cfg.TriageModel != "" {
			llmCfg = llmCfg.WithModel(llm.TierLite, cfg.TriageModel)
		}
		client, err := llm.NewClient(ctx, llmCfg, cfg.GeminiAPIKey)
		if err != nil {
			return opts, cleanup, fmt.Errorf("failed to create LLM client: %w", err)
		}
		closers = append(closers, func() { _ = client.Close() })
		opts.Triage = triage.New(client, logger.With(zap.String("stage", "triage")))
	}

	return opts, cleanup, nil
}

func newSearcher(ctx context.Context, cfg config.Config, web *fetch.Client) (resolve.Searcher, error) {
	if cfg.SearchProvider == config.SearchSerpAPI {
		s, err := resolve.NewSerpAPISearcher(cfg.SerpAPIKey, "", web)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	s, err := resolve.NewGoogleSearcher(ctx, cfg.GoogleAPIKey, cfg.GoogleCX)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// writeOutputs writes the CSV (to stdout for "-") and the optional JSON and
// HTML files.
func writeOutputs(result *pipeline.Result, csvPath, jsonPath, htmlPath string) error {
	if csvPath != "" {
		if err := writeTo(csvPath, func(w io.Writer) error { return report.WriteCSV(w, result.Leads) }); err != nil {
			return err
		}
	}
	if jsonPath != "" {
		if err := writeTo(jsonPath, func(w io.Writer) error { return report.WriteJSON(w, result.Leads) }); err != nil {
			return err
		}
	}
	if htmlPath != "" {
		b := report.NewBrief(result.RunID, result.Summary.FinishedAt, briefStats(result.Summary), result.Leads)
		if err := writeTo(htmlPath, func(w io.Writer) error { return report.WriteHTML(w, b) }); err != nil {
			return err
		}
	}
	return nil
}

func writeTo(path string, write func(io.Writer) error) error {
	if path == "-" {
		return write(os.Stdout)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := write(f); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	return nil
}

// briefStats picks the headline figures for the HTML brief.
func briefStats(s *pipeline.Summary) []report.Stat {
	fetched := 0
	for _, n := range s.Fetched {
		fetched += n
	}
	return []report.Stat{
		{Label: "Fetched", Value: fetched},
		{Label: "Novel", Value: s.Novel},
		{Label: "Scored", Value: s.Scored},
		{Label: "Verified websites", Value: s.Verified},
		{Label: "With contacts", Value: s.Contacts},
		{Label: "Emitted", Value: s.Emitted},
	}
}
