package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/roach88/flexiql/internal/config"
	"github.com/roach88/flexiql/internal/model"
	"github.com/roach88/flexiql/internal/query"
	"github.com/roach88/flexiql/internal/remote"
	"github.com/roach88/flexiql/internal/remote/flexibee"
	"github.com/roach88/flexiql/internal/scope"
	"github.com/roach88/flexiql/internal/shadow"
	"github.com/roach88/flexiql/internal/store"
)

// needs selects the components a command opens.
type needs int

const (
	needModels needs = 1 << iota
	needStore
	needRemote
)

// app is the wired engine for one command invocation.
type app struct {
	cfg      *config.Config
	logger   zerolog.Logger
	registry *model.Registry
	store    *store.Store
	compiler *query.Compiler
	executor *query.Executor

	// metrics collects FlexiBee request metrics when --metrics is set.
	metrics *prometheus.Registry
	errOut  io.Writer
}

func openApp(ctx context.Context, cmd *cobra.Command, opts *RootOptions, n needs) (*app, error) {
	cfg, err := config.Load(opts.viper, opts.ConfigFile)
	if err != nil {
		return nil, err
	}
	if opts.Verbose && !cmd.Flags().Changed("log-level") {
		cfg.Log.Level = zerolog.LevelDebugValue
	}

	logger, err := config.NewLogger(cfg.Log, cmd.ErrOrStderr())
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: logger, errOut: cmd.ErrOrStderr()}
	if opts.Metrics {
		a.metrics = prometheus.NewRegistry()
	}

	if n&needModels != 0 {
		a.registry, err = model.LoadPath(cfg.Models)
		if err != nil {
			return nil, err
		}
		logger.Debug().Str("models", cfg.Models).Int("entities", len(a.registry.Names())).Msg("loaded entity descriptors")
	}

	if n&needStore != 0 {
		a.store, err = store.OpenDriver(ctx, cfg.Shadow.Driver, cfg.Shadow.DSN, a.registry, store.WithLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("open shadow store: %w", err)
		}
	}

	if n&needModels != 0 && n&needStore != 0 {
		a.compiler = query.NewCompiler(a.registry, nil, shadow.NewResolver(a.store))
	}

	if n&needRemote != 0 {
		transport, err := a.transport(opts)
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		policy := query.StopOnRowError
		if cfg.Query.RowErrors == config.RowErrorsContinue {
			policy = query.ContinueOnRowError
		}
		a.executor = query.NewExecutor(a.compiler, transport,
			query.WithLogger(logger),
			query.WithConcurrency(cfg.Shadow.Concurrency),
			query.WithPageSize(cfg.Query.PageSize),
			query.WithRowErrorPolicy(policy),
		)
	}
	return a, nil
}

func (a *app) transport(opts *RootOptions) (remote.Transport, error) {
	if opts.Transport != nil {
		return opts.Transport, nil
	}
	clientOpts := []flexibee.Option{flexibee.WithLogger(a.logger)}
	if a.metrics != nil {
		clientOpts = append(clientOpts, flexibee.WithMetrics(flexibee.NewMetrics(a.metrics)))
	}
	return flexibee.New(flexibee.Config{
		URL:       a.cfg.FlexiBee.URL,
		Username:  a.cfg.FlexiBee.Username,
		Password:  a.cfg.FlexiBee.Password,
		Timeout:   a.cfg.FlexiBee.Timeout,
		RateLimit: a.cfg.FlexiBee.RateLimit,
		Burst:     a.cfg.FlexiBee.Burst,
	}, clientOpts...)
}

// scope resolves the configured company.
func (a *app) scope(ctx context.Context) (scope.Scope, error) {
	if a.cfg.Company == "" {
		return scope.Scope{}, errors.New("no company selected (use --company or FLEXIQL_COMPANY)")
	}
	return a.store.Resolve(ctx, a.cfg.Company)
}

// Close releases the store and prints the collected metrics.
func (a *app) Close() error {
	var errs []error
	if a.metrics != nil {
		errs = append(errs, writeMetrics(a.errOut, a.metrics))
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	return errors.Join(errs...)
}

// writeMetrics prints every gathered metric family in the Prometheus
// text exposition format.
func writeMetrics(w io.Writer, g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("write metrics: %w", err)
		}
	}
	return nil
}

// readDocument reads a query document from path, or from stdin when
// path is "-".
func readDocument(cmd *cobra.Command, path string) (*query.Document, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}
	return query.ParseDocument(data)
}
