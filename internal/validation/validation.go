package validation

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/nahidhasan98/icon-sync/internal/errors"
	"github.com/nahidhasan98/icon-sync/internal/models"
)

// WhatsApp JID patterns
var (
	// Individual JID pattern: number@s.whatsapp.net
	individualJIDPattern = regexp.MustCompile(`^\d{10,15}@s\.whatsapp\.net$`)

	// Group JID pattern: groupid@g.us
	groupJIDPattern = regexp.MustCompile(`^\d+@g\.us$`)

	nonDigitPattern = regexp.MustCompile(`\D`)

	// Full or abbreviated commit id
	shaPattern = regexp.MustCompile(`^[0-9a-f]{7,64}$`)
)

// MaxCommitsPerPush bounds the commits list of a single push payload
const MaxCommitsPerPush = 2048

// Validator provides validation methods
type Validator struct{}

// New creates a new validator instance
func New() *Validator {
	return &Validator{}
}

// ValidatePushEvent checks that a push payload carries what a sync needs
func (v *Validator) ValidatePushEvent(p *models.PushEvent) *errors.AppError {
	if p == nil {
		return errors.InvalidRequest("Request body is required")
	}

	if strings.TrimSpace(p.Repository.Name) == "" || p.RepositoryOwner() == "" {
		return errors.ValidationError("'repository' with name and owner is required")
	}

	if !strings.HasPrefix(p.Ref, "refs/") {
		return errors.ValidationError(fmt.Sprintf("Invalid ref %q: must start with refs/", p.Ref))
	}

	if p.IsBranchDeletion() {
		return nil
	}

	if !shaPattern.MatchString(p.After) {
		return errors.ValidationError(fmt.Sprintf("Invalid 'after' commit %q", p.After))
	}

	if len(p.Commits) > MaxCommitsPerPush {
		return errors.ValidationError(fmt.Sprintf("Too many commits (maximum %d)", MaxCommitsPerPush))
	}

	for i, c := range p.Commits {
		for _, path := range c.Added {
			if err := v.validatePath(i, path); err != nil {
				return err
			}
		}
		for _, path := range c.Removed {
			if err := v.validatePath(i, path); err != nil {
				return err
			}
		}
		for _, path := range c.Modified {
			if err := v.validatePath(i, path); err != nil {
				return err
			}
		}
	}

	return nil
}

// validatePath rejects paths that could escape the repository root
func (v *Validator) validatePath(commit int, path string) *errors.AppError {
	if path == "" || strings.HasPrefix(path, "/") || strings.ContainsRune(path, '\x00') {
		return errors.ValidationError(fmt.Sprintf("Invalid path %q in commit %d", path, commit))
	}
	for _, part := range strings.Split(path, "/") {
		if part == ".." {
			return errors.ValidationError(fmt.Sprintf("Invalid path %q in commit %d", path, commit))
		}
	}
	return nil
}

// IsValidJID checks if a JID is valid WhatsApp format
func (v *Validator) IsValidJID(jid string) bool {
	jid = strings.TrimSpace(jid)
	return individualJIDPattern.MatchString(jid) || groupJIDPattern.MatchString(jid)
}

// NormalizeJID normalizes a recipient to proper WhatsApp format
func (v *Validator) NormalizeJID(jid string) (string, *errors.AppError) {
	jid = strings.TrimSpace(jid)

	if v.IsValidJID(jid) {
		return jid, nil
	}

	// Try to normalize phone number to individual JID
	phone := nonDigitPattern.ReplaceAllString(jid, "")
	if len(phone) >= 10 && len(phone) <= 15 {
		return phone + "@s.whatsapp.net", nil
	}

	return "", errors.ValidationError(fmt.Sprintf("Invalid WhatsApp recipient %q", jid))
}

// ValidateQueryParams validates common query parameters
func (v *Validator) ValidateQueryParams(params map[string]string) *errors.AppError {
	for key, value := range params {
		switch key {
		case "limit":
			if err := v.validateLimit(value); err != nil {
				return err
			}
		case "offset":
			if err := v.validateOffset(value); err != nil {
				return err
			}
		}
	}
	return nil
}

// validateLimit validates the limit parameter
func (v *Validator) validateLimit(limit string) *errors.AppError {
	if limit == "" {
		return nil
	}

	limitInt, err := strconv.Atoi(limit)
	if err != nil {
		return errors.ValidationError("Invalid limit parameter: must be a number")
	}

	if limitInt < 1 || limitInt > 1000 {
		return errors.ValidationError("Invalid limit parameter: must be between 1 and 1000")
	}

	return nil
}

// validateOffset validates the offset parameter
func (v *Validator) validateOffset(offset string) *errors.AppError {
	if offset == "" {
		return nil
	}

	offsetInt, err := strconv.Atoi(offset)
	if err != nil {
		return errors.ValidationError("Invalid offset parameter: must be a number")
	}

	if offsetInt < 0 {
		return errors.ValidationError("Invalid offset parameter: must be non-negative")
	}

	return nil
}
