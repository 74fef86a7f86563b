// Command intake runs the conversational intake engine: an HTTP server for
// the recruitment interview and the socioeconomic survey, an interactive
// terminal chat, catalog and switch management, and an MCP server.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hurttlocker/intake/internal/catalog"
	"github.com/hurttlocker/intake/internal/config"
	"github.com/hurttlocker/intake/internal/intake"
	"github.com/hurttlocker/intake/internal/llm"
	"github.com/hurttlocker/intake/internal/logger"
	"github.com/hurttlocker/intake/internal/record"
	"github.com/hurttlocker/intake/internal/store"
)

var version = "0.1.0-dev"

// Global flags.
var (
	flagConfig  string
	flagEnvFile string
	flagDB      string
	flagJobs    string
	flagLLM     string
	flagLogMode string
)

var rootCmd = &cobra.Command{
	Use:   "intake",
	Short: "Conversational intake for job interviews and socioeconomic surveys",
	Long: `intake runs chat conversations that fill structured records: a recruitment
interview (position, contact details, work history) and a socioeconomic survey.

Configuration is read from ~/.intake/config.yaml, then the environment
(including ./.env), then command-line flags.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagConfig, "config", "", "config file (default ~/.intake/config.yaml)")
	pf.StringVar(&flagEnvFile, "env-file", "", "dotenv file to load, '-' to skip (default .env)")
	pf.StringVar(&flagDB, "db", "", "SQLite database path")
	pf.StringVar(&flagJobs, "jobs-dir", "", "directory of job description files")
	pf.StringVar(&flagLLM, "llm", "", "text generation model as provider/model, e.g. google/gemini-2.5-flash")
	pf.StringVar(&flagLogMode, "log", "", "log mode: dev, prod or quiet")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// app holds what a command opened; close releases it.
type app struct {
	cfg      config.ResolvedConfig
	log      *logger.Logger
	store    store.Store
	catalog  *catalog.Catalog
	provider llm.Provider
	engine   *intake.Engine
}

type openOpts struct {
	// listen is the CLI override for the HTTP address, if any.
	listen string
	// needProvider fails when no text generator can be built.
	needProvider bool
	// logMode overrides the resolved log mode when set.
	logMode string
}

func openApp(o openOpts) (*app, error) {
	cfg, err := config.ResolveConfig(config.ResolveOptions{
		ConfigPath: flagConfig,
		EnvFile:    flagEnvFile,
		CLILLM:     flagLLM,
		CLIDBPath:  flagDB,
		CLIJobsDir: flagJobs,
		CLIListen:  o.listen,
		CLILogMode: flagLogMode,
	})
	if err != nil {
		return nil, err
	}

	mode := cfg.LogMode.Value
	if o.logMode != "" && cfg.LogMode.Source != config.SourceCLI {
		mode = o.logMode
	}
	log, err := logger.New(mode)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, log: log}
	if a.store, err = store.NewStore(store.StoreConfig{DBPath: cfg.DBPath.Value}); err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	if a.catalog, err = catalog.Open(cfg.JobsDir.Value, catalog.WithLogger(log)); err != nil {
		a.close()
		return nil, fmt.Errorf("opening job catalog: %w", err)
	}

	a.provider, err = newProvider(cfg)
	if err != nil {
		if o.needProvider {
			a.close()
			return nil, err
		}
		log.Warn("text generation unavailable", "error", err)
	}

	schemas, err := loadSchemas(cfg)
	if err != nil {
		a.close()
		return nil, err
	}
	timeout, err := cfg.Timeout()
	if err != nil {
		a.close()
		return nil, err
	}
	a.engine, err = intake.New(intake.Config{
		Store:             a.store,
		Provider:          a.provider,
		Catalog:           a.catalog,
		Schemas:           schemas,
		Logger:            log,
		GenerationTimeout: timeout,
	})
	if err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func (a *app) close() {
	if a.store != nil {
		a.store.Close()
	}
	a.log.Sync()
}

// newProvider builds the configured text generator, rate limited when
// llm.rate_per_minute is set.
func newProvider(cfg config.ResolvedConfig) (llm.Provider, error) {
	model := cfg.EffectiveLLMModel(config.DefaultLLM)
	lc, err := llm.ParseLLMFlag(model.Value)
	if err != nil {
		return nil, err
	}
	lc.APIKey = cfg.APIKeyForProvider(model.Value).Value
	p, err := llm.NewProvider(lc)
	if err != nil {
		return nil, err
	}
	perMinute, err := cfg.RatePerMinute()
	if err != nil {
		return nil, err
	}
	return llm.WithRateLimit(p, perMinute, 1), nil
}

// loadSchemas reads schema files named in the config. Kinds without a file
// use the built-in schema.
func loadSchemas(cfg config.ResolvedConfig) (map[record.Kind]*record.Schema, error) {
	out := map[record.Kind]*record.Schema{}
	for kind, path := range map[record.Kind]string{
		record.KindInterview: cfg.SchemaInterview.Value,
		record.KindSurvey:    cfg.SchemaSurvey.Value,
	} {
		if path == "" {
			continue
		}
		s, err := record.LoadFile(path)
		if err != nil {
			return nil, fmt.Errorf("loading %s schema: %w", kind, err)
		}
		if s.Kind != kind {
			return nil, fmt.Errorf("schema %s describes %s, not %s", path, s.Kind, kind)
		}
		out[kind] = s
	}
	return out, nil
}

// kindFlag maps --survey to a record kind.
func kindFlag(survey bool) record.Kind {
	if survey {
		return record.KindSurvey
	}
	return record.KindInterview
}
