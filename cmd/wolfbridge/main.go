// Wolf bridge - Wolf SmartSet heating to MQTT
//
// This is the main entry point for the wolfbridge command. It logs in to the
// Wolf SmartSet portal, prints the current parameter values and, when a
// broker is configured, publishes them to MQTT and accepts writes from it.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	_ "github.com/nerrad567/wolf-bridge/migrations"

	"github.com/nerrad567/wolf-bridge/internal/api"
	"github.com/nerrad567/wolf-bridge/internal/audit"
	"github.com/nerrad567/wolf-bridge/internal/auth"
	"github.com/nerrad567/wolf-bridge/internal/bridges/wolf"
	"github.com/nerrad567/wolf-bridge/internal/device"
	"github.com/nerrad567/wolf-bridge/internal/infrastructure/config"
	"github.com/nerrad567/wolf-bridge/internal/infrastructure/database"
	"github.com/nerrad567/wolf-bridge/internal/infrastructure/influxdb"
	"github.com/nerrad567/wolf-bridge/internal/infrastructure/logging"
	"github.com/nerrad567/wolf-bridge/internal/infrastructure/mqtt"
	"github.com/nerrad567/wolf-bridge/internal/panel"
	"github.com/nerrad567/wolf-bridge/internal/smartset"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const (
	// defaultCredentialsPath is used when neither --credentials nor
	// WOLF_CREDENTIALS is set.
	defaultCredentialsPath = "credentials.json"

	// defaultRefreshInterval applies when --refresh_interval has no value.
	defaultRefreshInterval = 60
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd(run).ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// options are the parsed command line flags.
type options struct {
	credentials string

	// set is the one-shot write, nil when --set was not given.
	set *setRequest

	// interval is the refresh interval, nil for a single cycle.
	interval *time.Duration
}

type setRequest struct {
	name  string
	value string
}

// newRootCmd builds the command; execute is called with the parsed flags.
func newRootCmd(execute func(context.Context, options) error) *cobra.Command {
	var (
		credentials string
		set         string
		interval    int
	)

	cmd := &cobra.Command{
		Use:   "wolfbridge",
		Short: "Bridge a Wolf SmartSet heating system to MQTT",
		Long: `wolfbridge logs in to Wolf SmartSet, prints the current parameter values
and publishes them to MQTT (wolf/status) when a broker is configured.

With --refresh_interval it keeps running, refreshing every N seconds and
writing parameters received on wolf/set.`,
		Version: version,
		// The only positional accepted is the value of a bare
		// --refresh_interval, as in "--refresh_interval 30".
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return nil
			}
			if len(args) == 1 && cmd.Flags().Changed("refresh_interval") && interval == defaultRefreshInterval {
				if _, err := strconv.Atoi(args[0]); err == nil {
					return nil
				}
			}
			return fmt.Errorf("unexpected argument %q; pass the interval as --refresh_interval=N", args[0])
		},
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := options{credentials: credentials}
			if len(args) == 1 {
				interval, _ = strconv.Atoi(args[0]) //nolint:errcheck // checked in Args
			}

			if cmd.Flags().Changed("set") {
				req, err := parseSetFlag(set)
				if err != nil {
					return err
				}
				opts.set = &req
			}
			if cmd.Flags().Changed("refresh_interval") {
				d := time.Duration(interval) * time.Second
				opts.interval = &d
			}

			return execute(cmd.Context(), opts)
		},
	}
	cmd.SetVersionTemplate(fmt.Sprintf("wolfbridge version {{.Version}} (commit %s, built %s)\n", commit, date))

	cmd.PersistentFlags().StringVar(&credentials, "credentials", credentialsPath(),
		"credentials file (JSON, or YAML by extension); env WOLF_CREDENTIALS")

	flags := cmd.Flags()
	flags.StringVar(&set, "set", "",
		"write one parameter before fetching status, as NAME=VALUE")
	flags.IntVar(&interval, "refresh_interval", defaultRefreshInterval,
		"keep running and refresh every N seconds, as --refresh_interval [N] (requires mqtt.url)")
	flags.Lookup("refresh_interval").NoOptDefVal = fmt.Sprint(defaultRefreshInterval)

	cmd.AddCommand(newJournalCmd(&credentials))

	return cmd
}

// newJournalCmd builds the "journal" maintenance commands for the write
// journal database.
func newJournalCmd(credentials *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Inspect or roll back the write journal schema",
		Args:  cobra.NoArgs,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "List applied and pending journal migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withJournalDB(*credentials, func(db *database.DB) error {
				applied, pending, err := db.GetMigrationStatus(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				for _, r := range applied {
					fmt.Fprintf(out, "applied  %s  %s\n", r.Version, r.AppliedAt.Format(time.RFC3339))
				}
				for _, m := range pending {
					fmt.Fprintf(out, "pending  %s  %s\n", m.Version, m.Name)
				}
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "rollback",
		Short: "Roll back the most recent journal migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withJournalDB(*credentials, func(db *database.DB) error {
				if err := db.MigrateDown(cmd.Context()); err != nil {
					return fmt.Errorf("rolling back journal: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "rolled back latest journal migration")
				return nil
			})
		},
	})

	return cmd
}

// withJournalDB opens the configured journal database without migrating it.
func withJournalDB(credentials string, fn func(*database.DB) error) error {
	cfg, err := config.Load(credentials)
	if err != nil {
		return fmt.Errorf("loading credentials: %w", err)
	}
	if cfg.Database.Path == "" {
		return fmt.Errorf("%w: database.path is not set", config.ErrInvalidConfig)
	}

	db, err := database.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close() //nolint:errcheck // read-mostly maintenance command

	return fn(db)
}

// credentialsPath returns WOLF_CREDENTIALS if set, otherwise the default.
func credentialsPath() string {
	if path := os.Getenv("WOLF_CREDENTIALS"); path != "" {
		return path
	}
	return defaultCredentialsPath
}

// parseSetFlag splits NAME=VALUE on the first "=".
func parseSetFlag(raw string) (setRequest, error) {
	name, value, ok := strings.Cut(raw, "=")
	name = strings.TrimSpace(name)
	if !ok || name == "" {
		return setRequest{}, fmt.Errorf("--set expects NAME=VALUE, got %q", raw)
	}
	return setRequest{name: name, value: value}, nil
}

// run is the actual application logic, separated from main for testability.
func run(ctx context.Context, opts options) error {
	log := logging.Default()
	log.Info("starting wolfbridge",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := config.Load(opts.credentials)
	if err != nil {
		return fmt.Errorf("loading credentials: %w", err)
	}

	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded",
		"path", opts.credentials,
		"user", cfg.Username,
		"mqtt", cfg.HasMQTT(),
	)

	// Refuse interval mode before touching the network.
	if opts.interval != nil && !cfg.HasMQTT() {
		return wolf.ErrIntervalNeedsMQTT
	}

	authenticator, err := newAuthenticator(cfg, log)
	if err != nil {
		return err
	}

	portal, err := smartset.NewClient(cfg.SmartSet.BaseURL, authenticator,
		smartset.WithTimeout(cfg.HTTPTimeout()),
		smartset.WithLogger(log),
	)
	if err != nil {
		return fmt.Errorf("creating SmartSet client: %w", err)
	}

	bridgeOpts := wolf.BridgeOptions{
		QoS:    byte(cfg.MQTT.QoS), // #nosec G115 -- validated to 0..2
		Logger: log,
	}
	var broker *mqtt.Client
	if cfg.HasMQTT() {
		broker, err = newMQTTClient(cfg, log)
		if err != nil {
			return err
		}
		bridgeOpts.Client = broker
	}
	bridge := wolf.NewBridge(bridgeOpts)

	snapshots := api.NewSnapshots()
	runnerOpts := wolf.RunnerOptions{
		API:       portal,
		Bridge:    bridge,
		Cache:     device.NewContextCache(cfg.Cache.SystemContextFile, cfg.SystemContextTTL(), log),
		Out:       os.Stdout,
		Snapshots: snapshots,
		Logger:    log,
	}

	// Write journal (optional)
	var journal audit.Repository
	if cfg.Database.Path != "" {
		db, dbErr := openJournal(ctx, cfg.Database, log)
		if dbErr != nil {
			return dbErr
		}
		defer func() {
			log.Info("closing database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}()
		journal = audit.NewSQLiteRepository(db.DB)
		runnerOpts.Journal = journal
	}

	// Status history (optional)
	if cfg.InfluxDB.Enabled {
		influxClient, influxErr := influxdb.Connect(cfg.InfluxDB)
		if influxErr != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", influxErr)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
		runnerOpts.History = influxClient
	}

	runner, err := wolf.NewRunner(runnerOpts)
	if err != nil {
		return fmt.Errorf("creating runner: %w", err)
	}

	if _, err := runner.Discover(ctx); err != nil {
		return err
	}

	if opts.set != nil {
		if err := runner.Write(ctx, opts.set.name, opts.set.value, wolf.SourceCLI); err != nil {
			return err
		}
	}

	// Status API (optional, interval mode only)
	var server *api.Server
	if cfg.API.Enabled && opts.interval != nil {
		deps := api.Deps{
			Config:    cfg.API,
			Logger:    log,
			Snapshots: snapshots,
			Journal:   journal,
			Panel:     panel.Handler(cfg.API.PanelDir),
			Version:   version,
		}
		if broker != nil {
			deps.MQTT = broker
		}
		server, err = api.New(deps)
		if err != nil {
			return fmt.Errorf("creating API server: %w", err)
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)

	g.Go(func() error {
		defer cancel()
		return runner.Run(gctx, opts.interval)
	})
	if server != nil {
		if err := server.Start(gctx); err != nil {
			return fmt.Errorf("starting API server: %w", err)
		}
		g.Go(func() error {
			<-gctx.Done()
			return server.Close()
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	if ctx.Err() != nil {
		log.Info("interrupted, refresh loop stopped")
	}
	log.Info("wolfbridge stopped")
	return nil
}

// newAuthenticator builds the login flow and token cache.
func newAuthenticator(cfg *config.Config, log *logging.Logger) (*auth.Authenticator, error) {
	flow, err := auth.NewBrowserFlow(auth.Endpoints{
		BaseURL:     cfg.SmartSet.BaseURL,
		AuthBaseURL: cfg.SmartSet.AuthBaseURL,
		ClientID:    cfg.SmartSet.ClientID,
	},
		auth.WithHTTPClient(&http.Client{Timeout: cfg.HTTPTimeout()}),
		auth.WithFlowLogger(log),
	)
	if err != nil {
		return nil, fmt.Errorf("creating login flow: %w", err)
	}

	var cache auth.TokenCache
	if cfg.Cache.DisableTokenPersisting {
		cache = auth.NewMemoryTokenCache()
	} else {
		cache = auth.NewFileTokenCache(cfg.Cache.TokenFile, log)
	}

	authenticator, err := auth.NewAuthenticator(cfg.Username, cfg.Password, flow, cache, auth.WithLogger(log))
	if err != nil {
		return nil, fmt.Errorf("creating authenticator: %w", err)
	}
	return authenticator, nil
}

// newMQTTClient resolves the broker settings and creates the client. It
// does not connect; the bridge connects on first use.
func newMQTTClient(cfg *config.Config, log *logging.Logger) (*mqtt.Client, error) {
	settings, err := mqtt.ResolveSettings(cfg.MQTT)
	if err != nil {
		return nil, fmt.Errorf("resolving MQTT settings: %w", err)
	}

	client, err := mqtt.NewClient(settings)
	if err != nil {
		return nil, fmt.Errorf("creating MQTT client: %w", err)
	}
	client.SetLogger(log)

	log.Info("MQTT configured",
		"broker", settings.Address(),
		"tls", settings.UseTLS,
		"client_id", settings.ClientID,
		"auth", settings.Username != "",
	)
	return client, nil
}

// openJournal opens the database and applies migrations.
func openJournal(ctx context.Context, cfg config.DatabaseConfig, log *logging.Logger) (*database.DB, error) {
	db, err := database.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.Migrate(ctx); err != nil {
		db.Close() //nolint:errcheck // already failing
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	if err := db.HealthCheck(ctx); err != nil {
		db.Close() //nolint:errcheck // already failing
		return nil, fmt.Errorf("database: %w", err)
	}

	log.Info("write journal ready", "path", db.Path())
	return db, nil
}
