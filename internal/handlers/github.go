package handlers

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
	"time"

	"github.com/nahidhasan98/icon-sync/internal/deliveries"
	"github.com/nahidhasan98/icon-sync/internal/errors"
	"github.com/nahidhasan98/icon-sync/internal/models"
	"github.com/nahidhasan98/icon-sync/internal/notify"
	"github.com/nahidhasan98/icon-sync/internal/reconcile"
)

// GitHub webhook headers
const (
	headerEvent     = "X-GitHub-Event"
	headerDelivery  = "X-GitHub-Delivery"
	headerSignature = "X-Hub-Signature-256"
)

const notifyTimeout = 30 * time.Second

// GitHubWebhook reconciles the icons touched by a push into the target repository
func (h *Handler) GitHubWebhook(w http.ResponseWriter, r *http.Request) {
	body, appErr := readBody(w, r)
	if appErr != nil {
		h.writeAppError(w, appErr)
		return
	}

	if appErr := h.verifySignature(body, r.Header.Get(headerSignature)); appErr != nil {
		h.writeAppError(w, appErr)
		return
	}

	switch event := r.Header.Get(headerEvent); event {
	case "ping":
		h.writeJSON(w, &models.StatusResponse{Status: "pong"}, http.StatusOK)
		return
	case "push":
	default:
		h.ignore(w, "Event "+event+" is not handled")
		return
	}

	payload, appErr := h.decodePush(body)
	if appErr != nil {
		h.writeAppError(w, appErr)
		return
	}

	if reason := h.skipReason(payload); reason != "" {
		h.ignore(w, reason)
		return
	}

	delivery, proceed, err := h.deliveries.Begin(r.Context(), deliveries.Delivery{
		ID:         r.Header.Get(headerDelivery),
		Event:      "push",
		Repository: payload.RepositoryName(),
		Ref:        payload.Ref,
		After:      payload.After,
	})
	if err != nil {
		h.writeAppError(w, errors.DatabaseError(err))
		return
	}

	log := h.log.With("delivery", delivery.ID).With("repository", payload.RepositoryName()).With("after", payload.After)

	if !proceed && delivery.Status == deliveries.StatusReceived {
		log.Info("Delivery is still being processed, skipping")
		h.writeJSON(w, &models.StatusResponse{
			Status:  "in_progress",
			Message: "Delivery is still being processed",
			Data:    delivery,
		}, http.StatusAccepted)
		return
	}

	if !proceed {
		log.With("status", delivery.Status).Info("Delivery already processed, skipping")
		h.writeJSON(w, &models.StatusResponse{
			Status:  "duplicate",
			Message: "Delivery was already processed",
			Data:    delivery,
		}, http.StatusOK)
		return
	}

	// The sync outlives a client that hangs up, bounded by its own timeout.
	detached := context.WithoutCancel(r.Context())
	ctx, cancel := context.WithTimeout(detached, h.opts.SyncTimeout)
	defer cancel()

	res, err := h.syncer.Run(ctx, reconcile.Request{
		Commits: payload.ChangeCommits(),
		Source:  payload.SourceLocation(),
	})

	out := deliveries.Outcome{Err: err}
	if res != nil {
		out.Added, out.Removed, out.Modified = res.ChangeSet.Counts()
		out.CommitSHA = res.CommitSHA
	}

	status := deliveries.StatusApplied
	switch {
	case err != nil:
		status = deliveries.StatusFailed
	case res.NoOp:
		status = deliveries.StatusNoOp
	}

	if ferr := h.deliveries.Finish(detached, delivery.ID, status, out); ferr != nil {
		log.Error("Failed to record delivery outcome", ferr)
	}

	if status != deliveries.StatusNoOp {
		h.notify(detached, notify.Summary{
			DeliveryID: delivery.ID,
			Repository: payload.RepositoryName(),
			Ref:        payload.Ref,
			Pusher:     payload.PusherName(),
			Target:     h.opts.Target,
			CommitSHA:  out.CommitSHA,
			Added:      out.Added,
			Removed:    out.Removed,
			Modified:   out.Modified,
			Err:        err,
		})
	}

	if err != nil {
		h.writeAppError(w, errors.FromSync(err))
		return
	}

	log.With("status", status).With("commit", res.CommitSHA).Info("Push reconciled")
	h.writeJSON(w, models.NewSyncResponse(delivery.ID, res), http.StatusOK)
}

// Plan reports the operations a push would perform without writing anything
func (h *Handler) Plan(w http.ResponseWriter, r *http.Request) {
	body, appErr := readBody(w, r)
	if appErr != nil {
		h.writeAppError(w, appErr)
		return
	}

	payload, appErr := h.decodePush(body)
	if appErr != nil {
		h.writeAppError(w, appErr)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.opts.SyncTimeout)
	defer cancel()

	res, err := h.syncer.Plan(ctx, reconcile.Request{
		Commits: payload.ChangeCommits(),
		Source:  payload.SourceLocation(),
	})
	if err != nil {
		h.writeAppError(w, errors.FromSync(err))
		return
	}

	h.writeJSON(w, models.NewSyncResponse("", res), http.StatusOK)
}

// skipReason returns why a push is not synced, or "" when it should be
func (h *Handler) skipReason(p *models.PushEvent) string {
	if h.opts.SourceOwner != "" && !strings.EqualFold(p.RepositoryOwner(), h.opts.SourceOwner) {
		return "Push is not from the source repository"
	}
	if h.opts.SourceRepo != "" && !strings.EqualFold(p.Repository.Name, h.opts.SourceRepo) {
		return "Push is not from the source repository"
	}
	if !strings.HasPrefix(p.Ref, "refs/heads/") {
		return "Push is not to a branch"
	}
	if h.opts.SourceBranch != "" && p.Branch() != h.opts.SourceBranch {
		return "Push is not to branch " + h.opts.SourceBranch
	}
	if p.IsBranchDeletion() {
		return "Branch was deleted"
	}
	return ""
}

func (h *Handler) ignore(w http.ResponseWriter, reason string) {
	h.log.Debugf("Webhook ignored: %s", reason)
	h.writeJSON(w, &models.StatusResponse{Status: "ignored", Message: reason}, http.StatusAccepted)
}

func (h *Handler) notify(ctx context.Context, s notify.Summary) {
	ctx, cancel := context.WithTimeout(ctx, notifyTimeout)
	defer cancel()

	if err := h.notifier.Notify(ctx, s); err != nil {
		h.log.With("delivery", s.DeliveryID).Error("Failed to send sync notification", err)
	}
}

// verifySignature checks the HMAC SHA256 signature of the webhook payload
func (h *Handler) verifySignature(payload []byte, signature string) *errors.AppError {
	if h.opts.WebhookSecret == "" {
		h.log.Warn("GitHub webhook secret not configured, skipping signature verification")
		return nil
	}

	if signature == "" {
		h.log.Warn("GitHub webhook received without signature header")
		return errors.Unauthorized("Missing " + headerSignature + " header")
	}

	if !validSignature(h.opts.WebhookSecret, payload, signature) {
		h.log.Warn("Invalid GitHub webhook signature")
		return errors.Unauthorized("Invalid webhook signature")
	}
	return nil
}

// validSignature compares a "sha256=<hex>" header against the payload HMAC
func validSignature(secret string, payload []byte, signature string) bool {
	provided, ok := strings.CutPrefix(signature, "sha256=")
	if !ok {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(provided), []byte(expected))
}
