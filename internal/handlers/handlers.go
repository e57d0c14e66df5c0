package handlers

import (
	"context"
	"time"

	"github.com/nahidhasan98/icon-sync/internal/deliveries"
	"github.com/nahidhasan98/icon-sync/internal/logger"
	"github.com/nahidhasan98/icon-sync/internal/notify"
	"github.com/nahidhasan98/icon-sync/internal/reconcile"
	"github.com/nahidhasan98/icon-sync/internal/validation"
)

// Syncer reconciles a push into the target repository
type Syncer interface {
	Run(ctx context.Context, req reconcile.Request) (*reconcile.Result, error)
	Plan(ctx context.Context, req reconcile.Request) (*reconcile.Result, error)
}

// ConnectionReporter reports whether the notification channel is up
type ConnectionReporter interface {
	IsConnected() bool
}

// Options configures webhook handling
type Options struct {
	WebhookSecret string

	// Pushes from any other repository or branch are ignored. Empty
	// values accept everything.
	SourceOwner  string
	SourceRepo   string
	SourceBranch string

	// Target is the owner/repo shown in notifications
	Target      string
	SyncTimeout time.Duration
}

// Handler holds dependencies for HTTP handlers
type Handler struct {
	syncer     Syncer
	deliveries *deliveries.Store
	notifier   notify.Notifier
	connection ConnectionReporter
	opts       Options
	log        *logger.Logger
	validator  *validation.Validator
}

// New creates a new handler instance
func New(syncer Syncer, store *deliveries.Store, notifier notify.Notifier, opts Options, log *logger.Logger) *Handler {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	if opts.SyncTimeout <= 0 {
		opts.SyncTimeout = 2 * time.Minute
	}
	return &Handler{
		syncer:     syncer,
		deliveries: store,
		notifier:   notifier,
		opts:       opts,
		log:        log,
		validator:  validation.New(),
	}
}

// SetConnectionReporter makes /health include the notifier connection
func (h *Handler) SetConnectionReporter(c ConnectionReporter) {
	h.connection = c
}
