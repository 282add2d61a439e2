package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ehr/casegen/internal/config"
	"github.com/ehr/casegen/internal/domain/manifest"
	"github.com/ehr/casegen/internal/domain/summary"
	"github.com/ehr/casegen/internal/domain/testcase"
	"github.com/ehr/casegen/internal/platform/fhir"
	"github.com/ehr/casegen/internal/platform/fsutil"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(time.Now()).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// newRootCmd builds the command tree. now is the single clock reading used
// as the default reference date.
func newRootCmd(now time.Time) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "casegen",
		Short:         "Generate and summarize relative-date FHIR test cases",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(generateCmd(now))
	rootCmd.AddCommand(summarizeCmd(now))
	rootCmd.AddCommand(bundleCmd())
	return rootCmd
}

// newLogger follows ENV: console output in development, JSON otherwise.
// Logs go to stderr so bundle output on stdout stays clean.
func newLogger(cfg *config.Config, w io.Writer) zerolog.Logger {
	logger := zerolog.New(w).With().Timestamp().Logger()
	if cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: w}).With().Timestamp().Logger()
	}
	return logger.Level(cfg.Level())
}

// loadConfig binds the named flags onto their config keys and loads.
func loadConfig(cmd *cobra.Command, bindings map[string]string) (*config.Config, zerolog.Logger, error) {
	v := config.New()
	if err := bindFlags(v, cmd, bindings); err != nil {
		return nil, zerolog.Nop(), err
	}
	cfg, err := config.Load(v)
	if err != nil {
		logger := zerolog.New(zerolog.ConsoleWriter{Out: cmd.ErrOrStderr()}).With().Timestamp().Logger()
		logger.Error().Err(err).Msg("failed to load config")
		return nil, logger, err
	}
	return cfg, newLogger(cfg, cmd.ErrOrStderr()), nil
}

func bindFlags(v *viper.Viper, cmd *cobra.Command, bindings map[string]string) error {
	for key, flag := range bindings {
		if err := v.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			return fmt.Errorf("bind flag %s: %w", flag, err)
		}
	}
	return nil
}

func generateCmd(now time.Time) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Compile test-case manifests into FHIR resource files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(cmd, map[string]string{
				"MANIFESTS_DIR":  "manifests",
				"TEST_CASES_DIR": "out",
				"REFERENCE_DATE": "reference-date",
				"RANDOM_IDS":     "random-ids",
			})
			if err != nil {
				return err
			}
			return runGenerate(cmd.Context(), cfg, logger, now)
		},
	}
	cmd.Flags().String("manifests", "", "Directory of manifest YAML files")
	cmd.Flags().String("out", "", "Output directory for generated test cases")
	cmd.Flags().String("reference-date", "", "Reference date (YYYY-MM-DD), defaults to today")
	cmd.Flags().Bool("random-ids", false, "Use random ids for entries without one")
	return cmd
}

func runGenerate(ctx context.Context, cfg *config.Config, logger zerolog.Logger, now time.Time) error {
	ref, err := cfg.ResolveReferenceDate(now)
	if err != nil {
		logger.Error().Err(err).Msg("invalid reference date")
		return err
	}
	logger.Info().
		Str("reference_date", ref.Format(fhir.DateLayout)).
		Str("manifests", cfg.ManifestsDir).
		Str("output", cfg.TestCasesDir).
		Msg("generating test cases")

	paths, err := manifest.FindFiles(cfg.ManifestsDir)
	if err != nil {
		logger.Error().Err(err).Msg("no manifests to compile")
		return err
	}
	logger.Info().Int("count", len(paths)).Msg("found manifest files")

	var ids testcase.IDGenerator = testcase.DeterministicIDs{}
	if cfg.RandomIDs {
		ids = testcase.RandomIDs{}
	}
	store := testcase.NewFileStore(cfg.TestCasesDir, logger)
	compiler := testcase.NewCompiler(store, ids, logger)

	result := compiler.Compile(ctx, paths, ref)
	if err := result.Err(); err != nil {
		logger.Error().
			Int("succeeded", len(result.Compiled)).
			Int("failed", len(result.Failed)).
			Msg("some manifests failed")
		return err
	}
	logger.Info().
		Int("test_cases", len(result.Compiled)).
		Int("resources", result.Written).
		Str("output", cfg.TestCasesDir).
		Msg("all test cases generated")
	return nil
}

func summarizeCmd(now time.Time) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "summarize [reference-date]",
		Short: "Summarize generated test cases into a Markdown report",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 && !cmd.Flags().Changed("reference-date") {
				if err := cmd.Flags().Set("reference-date", args[0]); err != nil {
					return err
				}
			}
			cfg, logger, err := loadConfig(cmd, map[string]string{
				"TEST_CASES_DIR": "in",
				"REPORT_FILE":    "report",
				"REFERENCE_DATE": "reference-date",
			})
			if err != nil {
				return err
			}
			return runSummarize(cmd.Context(), cfg, logger, now)
		},
	}
	cmd.Flags().String("in", "", "Directory of generated test cases")
	cmd.Flags().String("report", "", "Path of the Markdown report to write")
	cmd.Flags().String("reference-date", "", "Reference date (YYYY-MM-DD), defaults to today")
	return cmd
}

func runSummarize(ctx context.Context, cfg *config.Config, logger zerolog.Logger, now time.Time) error {
	ref, err := cfg.ResolveReferenceDate(now)
	if err != nil {
		logger.Error().Err(err).Msg("invalid reference date")
		return err
	}
	logger.Info().
		Str("reference_date", ref.Format(fhir.DateLayout)).
		Str("input", cfg.TestCasesDir).
		Msg("analyzing test cases")

	svc := summary.NewService(testcase.NewFileStore(cfg.TestCasesDir, logger), logger)
	summaries, err := svc.Summarize(ctx, ref)
	if err != nil {
		logger.Error().Err(err).Msg("failed to summarize test cases")
		return err
	}

	report := summary.GenerateReport(summaries, ref)
	if err := summary.WriteReport(cfg.ReportFile, report); err != nil {
		logger.Error().Err(err).Str("report", cfg.ReportFile).Msg("failed to write report")
		return err
	}

	st := summary.ComputeStatistics(summaries)
	logger.Info().
		Str("report", cfg.ReportFile).
		Int("test_cases", len(summaries)).
		Int("infants", st.Ages.Infants).
		Int("toddlers", st.Ages.Toddlers).
		Int("children", st.Ages.Children).
		Int("adults", st.Ages.Adults).
		Msg("summary written")
	return nil
}

func bundleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bundle <testCaseId>",
		Short: "Assemble one generated test case into a FHIR Bundle or NDJSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(cmd, map[string]string{
				"TEST_CASES_DIR": "in",
			})
			if err != nil {
				return err
			}
			bundleType, _ := cmd.Flags().GetString("type")
			format, _ := cmd.Flags().GetString("format")
			out, _ := cmd.Flags().GetString("out")

			opts := bundleOptions{
				TestCaseID: args[0],
				Type:       bundleType,
				Format:     format,
				Timestamp:  time.Now(),
			}
			if out == "" {
				return runBundle(cmd.Context(), cfg, logger, opts, cmd.OutOrStdout())
			}

			// The file is only replaced once the whole document is rendered.
			var buf bytes.Buffer
			if err := runBundle(cmd.Context(), cfg, logger, opts, &buf); err != nil {
				return err
			}
			if err := fsutil.WriteFile(out, buf.Bytes(), 0o644); err != nil {
				logger.Error().Err(err).Str("out", out).Msg("failed to write output file")
				return err
			}
			return nil
		},
	}
	cmd.Flags().String("in", "", "Directory of generated test cases")
	cmd.Flags().String("type", fhir.BundleTypeCollection, "Bundle type: collection or transaction")
	cmd.Flags().String("format", "json", "Output format: json or ndjson")
	cmd.Flags().String("out", "", "Write to this file instead of stdout")
	return cmd
}

type bundleOptions struct {
	TestCaseID string
	Type       string
	Format     string
	Timestamp  time.Time
}

func runBundle(ctx context.Context, cfg *config.Config, logger zerolog.Logger, opts bundleOptions, w io.Writer) error {
	store := testcase.NewFileStore(cfg.TestCasesDir, logger)
	resources, err := store.LoadCase(ctx, opts.TestCaseID)
	if err != nil {
		logger.Error().Err(err).Str("test_case", opts.TestCaseID).Msg("failed to load test case")
		return err
	}

	validator := fhir.NewValidator()
	valid := resources[:0]
	hasPatient := false
	for _, r := range resources {
		if outcome := validator.ValidateResource(r.Data, true).ToOperationOutcome(); outcome.HasErrors() {
			logger.Warn().Str("test_case", opts.TestCaseID).Str("kind", r.ResourceType).Str("id", r.ID).
				Interface("outcome", outcome).
				Msg("skipping invalid resource")
			continue
		}
		hasPatient = hasPatient || r.ResourceType == fhir.KindPatient
		valid = append(valid, r)
	}
	if !hasPatient {
		logger.Warn().Str("test_case", opts.TestCaseID).Msg("test case has no Patient resource")
	}

	switch opts.Format {
	case "ndjson":
		nw := fhir.NewNDJSONWriter(w)
		for _, r := range valid {
			if err := nw.WriteResource(r); err != nil {
				return err
			}
		}
		if err := nw.Flush(); err != nil {
			return err
		}
		logger.Info().Str("test_case", opts.TestCaseID).Int("resources", nw.Count()).Msg("ndjson written")
		return nil
	case "json":
	default:
		return fmt.Errorf("unsupported format %q", opts.Format)
	}

	var bundle *fhir.Bundle
	switch opts.Type {
	case fhir.BundleTypeCollection:
		bundle = fhir.NewCollectionBundle(opts.TestCaseID, valid, opts.Timestamp)
	case fhir.BundleTypeTransaction:
		bundle = fhir.NewTransactionBundle(opts.TestCaseID, valid, opts.Timestamp)
	default:
		return fmt.Errorf("unsupported bundle type %q", opts.Type)
	}
	if vr := validator.ValidateBundle(bundle); !vr.Valid {
		return &fhir.InvalidResourceError{Kind: "Bundle", ID: bundle.ID, Issues: vr.Issues}
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(bundle); err != nil {
		return fmt.Errorf("encode bundle: %w", err)
	}
	logger.Info().Str("test_case", opts.TestCaseID).Str("type", opts.Type).Int("entries", len(bundle.Entry)).Msg("bundle written")
	return nil
}
