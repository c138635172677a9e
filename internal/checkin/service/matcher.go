package service

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	checkinMetrics "checkin/internal/checkin/metrics"
	"checkin/internal/roster/models"
	dErrors "checkin/pkg/domain-errors"
	"checkin/pkg/requestcontext"
)

// AliasFinder is the lookup half of the candidate store.
type AliasFinder interface {
	FindByAliasValue(ctx context.Context, keys []string, value string) ([]*models.Candidate, error)
}

// Matcher resolves a scanned identifier to one candidate. The store narrows
// by raw alias columns; the matcher then applies the resolved barcode and
// phone number so alias priority decides, not column presence.
type Matcher struct {
	finder  AliasFinder
	logger  *slog.Logger
	metrics *checkinMetrics.Metrics
}

func NewMatcher(finder AliasFinder, logger *slog.Logger, metrics *checkinMetrics.Metrics) *Matcher {
	return &Matcher{finder: finder, logger: logger, metrics: metrics}
}

// Resolve returns the candidate whose resolved barcode or phone number equals
// identifier. Several matches resolve to the first in id order and are logged.
func (m *Matcher) Resolve(ctx context.Context, identifier string) (*models.Candidate, error) {
	if m.metrics != nil {
		defer m.metrics.ObserveResolve(time.Now())
	}
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "barcode is required")
	}

	found, err := m.finder.FindByAliasValue(ctx, models.IdentifierKeys(), identifier)
	if err != nil {
		return nil, storeError(err, "failed to look up candidate")
	}

	var matches []*models.Candidate
	for _, c := range found {
		view := c.Canonical()
		if view.Barcode == identifier || view.PhoneNumber == identifier {
			matches = append(matches, c)
		}
	}

	switch len(matches) {
	case 0:
		return nil, dErrors.New(dErrors.CodeNotFound, "candidate not found")
	case 1:
		return matches[0], nil
	}

	ids := make([]string, len(matches))
	for i, c := range matches {
		ids[i] = c.ID.String()
	}
	if m.logger != nil {
		m.logger.WarnContext(ctx, "ambiguous identifier",
			"match_count", len(matches),
			"candidate_ids", ids,
			"chosen_id", matches[0].ID.String(),
			"request_id", requestcontext.RequestID(ctx),
		)
	}
	if m.metrics != nil {
		m.metrics.AmbiguousIdentifier.Inc()
	}
	return matches[0], nil
}

// idempotencyKey scopes a client token to one candidate and paper.
func idempotencyKey(candidateID uuid.UUID, paperID, token string) string {
	return candidateID.String() + ":" + paperID + ":" + token
}
