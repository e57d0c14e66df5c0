package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-git/go-git/v5/plumbing/transport"
	"golang.org/x/oauth2"

	"github.com/nahidhasan98/icon-sync/internal/config"
	"github.com/nahidhasan98/icon-sync/internal/deliveries"
	"github.com/nahidhasan98/icon-sync/internal/github"
	"github.com/nahidhasan98/icon-sync/internal/gitstore"
	"github.com/nahidhasan98/icon-sync/internal/handlers"
	"github.com/nahidhasan98/icon-sync/internal/logger"
	"github.com/nahidhasan98/icon-sync/internal/notify"
	"github.com/nahidhasan98/icon-sync/internal/reconcile"
	"github.com/nahidhasan98/icon-sync/internal/store"
	"github.com/nahidhasan98/icon-sync/internal/validation"
)

// App holds the long-lived services of the webhook server
type App struct {
	cfg        *config.Config
	log        *logger.Logger
	engine     *reconcile.Engine
	deliveries *deliveries.Store
	notifier   notify.Notifier
	whatsapp   *notify.WhatsApp
}

// New wires the engine, the delivery log and the optional WhatsApp notifier
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*App, error) {
	engine, err := NewEngine(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	db, err := deliveries.Open(cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open delivery log: %w", err)
	}
	// a sync is bounded by its timeout; leave room for finishing and notifying
	db.SetInFlightWindow(cfg.Sync.Timeout + time.Minute)

	a := &App{
		cfg:        cfg,
		log:        log,
		engine:     engine,
		deliveries: db,
		notifier:   notify.Nop{},
	}

	if cfg.WhatsApp.Enabled {
		recipient, appErr := validation.New().NormalizeJID(cfg.WhatsApp.Recipient)
		if appErr != nil {
			db.Close()
			return nil, appErr
		}

		wa, err := notify.NewWhatsApp(ctx, notify.WhatsAppOptions{
			DBDriver:   cfg.Database.Driver,
			DBDSN:      cfg.WhatsApp.SessionDSN,
			LogLevel:   cfg.WhatsApp.LogLevel,
			DeviceName: cfg.WhatsApp.DeviceName,
		}, log.With("component", "whatsapp"))
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create WhatsApp client: %w", err)
		}
		a.whatsapp = wa
		a.notifier = notify.NewMessageNotifier(wa, recipient, log)
	}

	return a, nil
}

// Handler builds the HTTP handlers over the app's services
func (a *App) Handler() *handlers.Handler {
	h := handlers.New(a.engine, a.deliveries, a.notifier, handlers.Options{
		WebhookSecret: a.cfg.GitHub.WebhookSecret,
		SourceOwner:   a.cfg.Source.Owner,
		SourceRepo:    a.cfg.Source.Repo,
		SourceBranch:  a.cfg.Source.Branch,
		Target:        TargetName(a.cfg),
		SyncTimeout:   a.cfg.Sync.Timeout,
	}, a.log)
	if a.whatsapp != nil {
		h.SetConnectionReporter(a.whatsapp)
	}
	return h
}

// WhatsApp returns the WhatsApp session, nil when notifications are disabled
func (a *App) WhatsApp() *notify.WhatsApp {
	return a.whatsapp
}

// Close releases the delivery log
func (a *App) Close() error {
	return a.deliveries.Close()
}

// TargetName is how the target repository is shown to people
func TargetName(cfg *config.Config) string {
	if cfg.Target.Backend == "git" {
		return cfg.Target.GitURL
	}
	return cfg.Target.Owner + "/" + cfg.Target.Repo
}

// EngineOptions maps the configuration onto reconciliation options
func EngineOptions(cfg *config.Config) reconcile.Options {
	return reconcile.Options{
		SourcePrefix:  cfg.Source.Prefix,
		OutputDir:     cfg.Target.OutputDir,
		FileMode:      cfg.Target.FileMode,
		TargetRef:     cfg.Target.TargetRef(),
		CommitMessage: cfg.Target.CommitMessage,
		Collision:     reconcile.CollisionPolicy(cfg.Sync.Collision),
		Concurrency:   cfg.Sync.Concurrency,
	}
}

// NewEngine builds the target store and source reader for the configured
// backend and returns an engine over them.
func NewEngine(ctx context.Context, cfg *config.Config, log *logger.Logger) (*reconcile.Engine, error) {
	ts, err := tokenSource(cfg)
	if err != nil {
		return nil, err
	}

	var (
		target store.Store
		source store.ContentReader
	)

	switch cfg.Target.Backend {
	case "git":
		var auth transport.AuthMethod
		if ts != nil {
			auth = &gitstore.TokenAuth{Source: ts}
		}

		repo, err := gitstore.Clone(ctx, cfg.Target.GitURL, gitstore.Options{
			Auth:        auth,
			AuthorName:  cfg.Target.AuthorName,
			AuthorEmail: cfg.Target.AuthorEmail,
		}, log.With("component", "gitstore"))
		if err != nil {
			return nil, err
		}
		target = repo
		source = gitstore.NewReader(cfg.Source.GitURLFormat, auth)

	default:
		httpClient := http.DefaultClient
		if ts != nil {
			httpClient = github.NewHTTPClient(context.Background(), ts, cfg.GitHub.Timeout)
		}
		gh := log.With("component", "github")
		target = github.NewClient(httpClient, cfg.GitHub.APIBaseURL, cfg.Target.Owner, cfg.Target.Repo, gh)
		source = github.NewClient(httpClient, cfg.GitHub.APIBaseURL, cfg.Source.Owner, cfg.Source.Repo, gh)
	}

	return reconcile.NewEngine(target, source, EngineOptions(cfg), log.With("component", "reconcile")), nil
}

// tokenSource returns nil when no credentials are configured, which only the
// git backend accepts.
func tokenSource(cfg *config.Config) (oauth2.TokenSource, error) {
	authCfg := github.AuthConfig{
		Strategy:       cfg.GitHub.AuthStrategy,
		Token:          cfg.GitHub.Token,
		AppID:          cfg.GitHub.AppID,
		InstallationID: cfg.GitHub.InstallationID,
		BaseURL:        strings.TrimSuffix(cfg.GitHub.APIBaseURL, "/"),
	}

	if authCfg.Strategy == github.AuthApp {
		key, err := os.ReadFile(cfg.GitHub.PrivateKeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read GitHub App private key: %w", err)
		}
		authCfg.PrivateKey = key
	} else if authCfg.Token == "" {
		return nil, nil
	}

	return github.NewTokenSource(authCfg)
}
