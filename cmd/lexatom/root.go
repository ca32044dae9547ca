package main

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/cognicore/lexatom/internal/llm"
	"github.com/cognicore/lexatom/pkg/lexatom"
	"github.com/cognicore/lexatom/pkg/lexatom/config"
	"github.com/cognicore/lexatom/pkg/lexatom/reasoning"
	"github.com/cognicore/lexatom/pkg/lexatom/reasoning/embedded"
	"github.com/cognicore/lexatom/pkg/lexatom/reasoning/pengine"
	"github.com/cognicore/lexatom/pkg/lexatom/store/sqlite"
)

// app carries the state shared by all subcommands.
type app struct {
	configPath string
	verbose    bool

	cfg    *config.Config
	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "lexatom",
		Short: "Formalize regulation fragments into validated logic programs",
		Long: `lexatom extracts atomic propositions from regulation text, anchors them
in the source and drafts rules that are checked against a Prolog engine
before they are stored.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "config file (YAML)")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(
		a.fragmentCmd(),
		a.atomsCmd(),
		a.rulesCmd(),
		a.kbCmd(),
		a.examplesCmd(),
		a.checkCmd(),
		termCmd(),
	)
	return root
}

func (a *app) init() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg

	zc := zap.NewProductionConfig()
	level, err := zapcore.ParseLevel(cfg.Log.Level)
	if err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	if a.verbose {
		level = zapcore.DebugLevel
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	a.logger, err = zc.Build()
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	return nil
}

// open wires the facade from configuration. The caller closes it.
func (a *app) open(ctx context.Context) (*lexatom.Lexatom, error) {
	st, err := sqlite.OpenSQLite(ctx, a.cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", a.cfg.Store.Path, err)
	}
	policy, err := a.cfg.Policy()
	if err != nil {
		st.Close()
		return nil, err
	}

	var prompts *config.Prompts
	if a.cfg.Prompts != "" {
		if prompts, err = config.LoadPrompts(a.cfg.Prompts); err != nil {
			st.Close()
			return nil, fmt.Errorf("load prompts: %w", err)
		}
	}

	return lexatom.New(lexatom.Options{
		Store: st,
		Model: &llm.Client{
			BaseURL: a.cfg.LLM.BaseURL,
			APIKey:  a.cfg.LLM.APIKey,
			Model:   a.cfg.LLM.Model,
			Timeout: a.cfg.LLM.Timeout,
			Limiter: llm.PerMinute(a.cfg.LLM.RequestsPerMinute),
		},
		Reasoner:    a.reasoner(),
		Prompts:     prompts,
		Logger:      a.logger,
		MaxAttempts: a.cfg.Validation.MaxAttempts,
		Policy:      policy,
	}), nil
}

func (a *app) reasoner() reasoning.Reasoner {
	if a.cfg.Reasoner.Kind == config.ReasonerEmbedded {
		return embedded.New()
	}
	return &pengine.Client{
		BaseURL:     a.cfg.Reasoner.URL,
		Application: a.cfg.Reasoner.Application,
		HTTPClient:  &http.Client{Timeout: a.cfg.Reasoner.Timeout},
	}
}

// withLexatom opens the facade for the duration of fn.
func (a *app) withLexatom(cmd *cobra.Command, fn func(ctx context.Context, l *lexatom.Lexatom) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	l, err := a.open(ctx)
	if err != nil {
		return err
	}
	defer l.Close()
	return fn(ctx, l)
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}
