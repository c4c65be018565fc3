package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/adamscao/ovpnbot/internal/api"
	"github.com/adamscao/ovpnbot/internal/audit"
	"github.com/adamscao/ovpnbot/internal/auth"
	"github.com/adamscao/ovpnbot/internal/bot"
	"github.com/adamscao/ovpnbot/internal/ca"
	"github.com/adamscao/ovpnbot/internal/catalog"
	"github.com/adamscao/ovpnbot/internal/config"
	"github.com/adamscao/ovpnbot/internal/db"
	"github.com/adamscao/ovpnbot/internal/db/repository"
	"github.com/adamscao/ovpnbot/internal/i18n"
	"github.com/adamscao/ovpnbot/internal/issuance"
	"github.com/adamscao/ovpnbot/internal/logging"
	"github.com/adamscao/ovpnbot/internal/ovpn"
	"github.com/adamscao/ovpnbot/internal/runner"
	"github.com/adamscao/ovpnbot/internal/sysinfo"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"
)

var (
	// Version information (set via ldflags)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "/etc/ovpnbot/config.yaml", "Path to configuration file")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("OpenVPN credential bot\n")
		fmt.Printf("Version:    %s\n", Version)
		fmt.Printf("Commit:     %s\n", Commit)
		fmt.Printf("Build Time: %s\n", BuildTime)
		os.Exit(0)
	}

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error(context.Background(), "ovpnbot stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger logging.Logger) error {
	logger.Info(ctx, "starting ovpnbot", "version", Version, "commit", Commit)

	// Audit database is optional
	var (
		recorder  audit.Recorder
		auditRepo *repository.AuditRepository
		issueRepo *repository.IssuanceRepository
	)
	if cfg.Database.Path != "" {
		logger.Info(ctx, "opening audit database", "path", cfg.Database.Path)
		database, err := db.Open(cfg.Database.Path)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer database.Close()

		auditRepo = repository.NewAuditRepository(database.DB)
		issueRepo = repository.NewIssuanceRepository(database.DB)
		recorder = auditRepo
	} else {
		logger.Warn(ctx, "database.path is empty, audit trail disabled")
	}
	trail := audit.NewTrail(recorder, logger)

	// Core services
	fs := afero.NewOsFs()
	authority := ca.NewAuthority(fs, runner.NewExecRunner(), ca.Options{
		Dir:            cfg.CA.EasyRSADir,
		ValidityDays:   cfg.CA.ValidityDays,
		Timeout:        cfg.GetIssueTimeout(),
		FixPermissions: cfg.CA.FixPermissions,
		DirMode:        cfg.CA.DirMode,
		Owner:          cfg.CA.Owner,
	})
	if !authority.Available() {
		logger.Warn(ctx, "easy-rsa not found, user creation will fail", "dir", authority.Dir())
	}

	assembler := ovpn.NewAssembler(fs, ovpn.Options{
		TemplatePath: cfg.OpenVPN.TemplatePath,
		OutputDir:    cfg.OpenVPN.OutputDir,
		Extension:    cfg.OpenVPN.Extension,
		InlinePath:   authority.InlinePath,
	}, logger)

	var store issuance.IssuanceStore
	if issueRepo != nil {
		store = issueRepo
	}
	coordinator := issuance.NewCoordinator(authority, assembler, store, trail, logger)
	users := catalog.NewService(fs, cfg.OpenVPN.OutputDir, cfg.OpenVPN.Extension, cfg.Catalog.PageSize)

	g, ctx := errgroup.WithContext(ctx)

	if cfg.Server.Enabled {
		deps := api.Dependencies{
			Creator:      coordinator,
			Catalog:      users,
			Certificates: authority,
			Trail:        trail,
			Logger:       logger,
		}
		if auditRepo != nil {
			deps.Audit = auditRepo
			deps.Issuances = issueRepo
			deps.Failures = auditRepo
		}
		server := api.NewServer(cfg, deps)
		g.Go(func() error {
			return server.Run(ctx)
		})
	}

	if cfg.Telegram.Enabled {
		loc, err := i18n.New(cfg.Telegram.Language)
		if err != nil {
			return err
		}

		botAPI, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
		if err != nil {
			return fmt.Errorf("failed to connect to Telegram: %w", err)
		}
		logger.Info(ctx, "authorized on Telegram", "account", botAPI.Self.UserName)

		b := bot.New(bot.Options{
			Sender:      botAPI,
			Updates:     botAPI,
			Creator:     coordinator,
			Catalog:     users,
			Host:        sysinfo.NewCollector(fs, cfg.Server.Host),
			AllowList:   auth.NewAllowList(cfg.Telegram.AllowedUsers),
			Localizer:   loc,
			Trail:       trail,
			Logger:      logger,
			PollTimeout: cfg.Telegram.PollTimeout,
		})
		g.Go(func() error {
			return b.Run(ctx)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	logger.Info(context.Background(), "ovpnbot stopped")
	return nil
}
