// Package main provides the sessiond demo daemon. It wires a session
// manager to a storage backend and translates process signals into
// lifecycle transitions: SIGUSR1 backgrounds the session, SIGUSR2 brings
// it back to the foreground. It exists for manual testing of the timing
// policy; real applications embed the session manager directly.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/lib/pq"
	"gopkg.in/yaml.v3"

	"github.com/TuPhung369/PasswordEpic-sub009/pkg/appstate"
	"github.com/TuPhung369/PasswordEpic-sub009/pkg/database/migrate"
	"github.com/TuPhung369/PasswordEpic-sub009/pkg/session"
	"github.com/TuPhung369/PasswordEpic-sub009/pkg/storage"
	pgstore "github.com/TuPhung369/PasswordEpic-sub009/pkg/storage/postgres"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type daemonOptions struct {
	configPath string
	storeKind  string
	stateFile  string
	dsn        string
}

func parseFlags() daemonOptions {
	opts := daemonOptions{}
	flag.StringVar(&opts.configPath, "config", "", "Path to YAML configuration file")
	flag.StringVar(&opts.storeKind, "store", "file", "Storage backend: memory, file, postgres")
	flag.StringVar(&opts.stateFile, "state-file", "sessiond-state.json", "State file for the file backend")
	flag.StringVar(&opts.dsn, "dsn", "", "PostgreSQL DSN for the postgres backend")
	flag.Parse()
	return opts
}

// fileConfig is the YAML shape of the -config file. Absent fields keep
// the engine defaults.
type fileConfig struct {
	TimeoutMinutes   *float64 `yaml:"timeout_minutes"`
	ExtendOnActivity *bool    `yaml:"extend_on_activity"`
	LockOnBackground *bool    `yaml:"lock_on_background"`
}

func loadConfigPatch(path string) (*session.ConfigPatch, error) {
	if path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg fileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	return &session.ConfigPatch{
		TimeoutMinutes:   cfg.TimeoutMinutes,
		ExtendOnActivity: cfg.ExtendOnActivity,
		LockOnBackground: cfg.LockOnBackground,
	}, nil
}

func buildStore(opts daemonOptions) (storage.Store, func(), error) {
	switch opts.storeKind {
	case "memory":
		return storage.NewMemoryStore(), func() {}, nil

	case "file":
		store, err := storage.NewFileStore(opts.stateFile)
		if err != nil {
			return nil, nil, err
		}
		return store, func() {}, nil

	case "postgres":
		if opts.dsn == "" {
			return nil, nil, fmt.Errorf("postgres backend requires -dsn")
		}
		db, err := sql.Open("postgres", opts.dsn)
		if err != nil {
			return nil, nil, fmt.Errorf("opening database: %w", err)
		}
		if err := migrate.Run(db); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return pgstore.New(db), func() { _ = db.Close() }, nil

	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", opts.storeKind)
	}
}

// logEvents logs session notifications; a real host would also dispatch
// them into its global store.
type logEvents struct {
	log *slog.Logger
}

func (e logEvents) OnWarning(minutesRemaining int) {
	e.log.Warn("session expiring soon", "minutes_remaining", minutesRemaining)
}

func (e logEvents) OnExpired() {
	e.log.Warn("session expired, logging out")
}

func (e logEvents) OnCleared() {
	e.log.Info("session cleared")
}

func run() error {
	opts := parseFlags()

	log := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(log)

	patch, err := loadConfigPatch(opts.configPath)
	if err != nil {
		return err
	}

	store, closeStore, err := buildStore(opts)
	if err != nil {
		return err
	}
	defer closeStore()

	manager := session.NewManager(store, session.Options{
		Events: logEvents{log: log},
		Logger: log,
	})
	defer manager.Cleanup()

	ctx := context.Background()
	if err := manager.LoadConfig(ctx); err != nil {
		log.Warn("ignoring persisted config", "error", err)
	}

	notifier := appstate.NewNotifier()
	manager.BindNotifier(notifier)

	// Resume against whatever a previous process left behind.
	valid, err := manager.CheckSessionOnResume(ctx)
	if err != nil {
		log.Warn("resume check failed, treating session as invalid", "error", err)
	}
	if !valid {
		req := manager.AuthRequirement(ctx)
		log.Info("re-authentication required",
			"type", string(req.Type), "reason", string(req.Reason))
		if err := manager.Start(ctx, patch); err != nil {
			return fmt.Errorf("starting session: %w", err)
		}
	}

	info := manager.Info()
	log.Info("sessiond running",
		"store", opts.storeKind,
		"expires_at", info.ExpiresAt,
		"time_remaining", info.TimeRemaining.String())

	return signalLoop(log, manager, notifier)
}

// signalLoop drives lifecycle transitions from process signals until
// SIGINT or SIGTERM.
func signalLoop(log *slog.Logger, manager *session.Manager, notifier *appstate.Notifier) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGUSR1, syscall.SIGUSR2)
	defer signal.Stop(sigCh)

	for sig := range sigCh {
		switch sig {
		case syscall.SIGUSR1:
			log.Info("simulating background transition")
			notifier.Notify(appstate.StateBackground)

		case syscall.SIGUSR2:
			log.Info("simulating foreground transition")
			notifier.Notify(appstate.StateActive)
			req := manager.AuthRequirement(context.Background())
			log.Info("resume requirement",
				"type", string(req.Type), "reason", string(req.Reason))

		default:
			log.Info("shutting down", "signal", sig.String())
			manager.Cleanup()
			return nil
		}
	}
	return nil
}
