package ingest

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/vrsandeep/litpush/internal/models"
	"github.com/vrsandeep/litpush/internal/store"
)

// admit applies the subscription's quality filters to a stored article.
// It returns a short reason when the article is rejected.
func (p *Pipeline) admit(tx *sqlx.Tx, a *models.Article, f models.QualityFilters) (bool, string, error) {
	if f.RequireISSN && !a.HasISSN() {
		return false, "missing issn", nil
	}
	if !f.NeedsJournal() {
		return true, "", nil
	}
	if !a.HasISSN() {
		return false, "journal unknown", nil
	}
	j, err := p.store.FindJournal(tx, a.ISSN, a.EISSN)
	if errors.Is(err, store.ErrNotFound) {
		return false, "journal unknown", nil
	}
	if err != nil {
		return false, "", fmt.Errorf("quality filter for %s: %w", a.PMID, err)
	}
	if reason := journalMismatch(j, f); reason != "" {
		return false, reason, nil
	}
	return true, "", nil
}

func journalMismatch(j *models.Journal, f models.QualityFilters) string {
	if len(f.Quartiles) > 0 && !containsFold(f.Quartiles, j.Quartile) {
		return "quartile"
	}
	if f.MinImpactFactor > 0 && j.ImpactFactor < f.MinImpactFactor {
		return "impact factor"
	}
	if len(f.Categories) > 0 && !anyCategory(f.Categories, j.Category) {
		return "category"
	}
	if f.TopOnly && !j.Top {
		return "not top"
	}
	return ""
}

// anyCategory matches when any wanted category appears in the journal's
// category list, which is stored separated by ';' or ','.
func anyCategory(wanted []string, journal string) bool {
	parts := strings.FieldsFunc(journal, func(r rune) bool { return r == ';' || r == ',' })
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	for _, w := range wanted {
		if containsFold(parts, strings.TrimSpace(w)) {
			return true
		}
	}
	return false
}

func containsFold(list []string, v string) bool {
	for _, item := range list {
		if strings.EqualFold(item, v) {
			return true
		}
	}
	return false
}

// narrow re-applies the lookback window and result cap to records that came
// from a broader cached search. Records without a publication date are kept.
func narrow(records []models.RawRecord, lookbackDays, maxResults int, now time.Time) []models.RawRecord {
	out := make([]models.RawRecord, 0, len(records))
	cutoff := now.AddDate(0, 0, -lookbackDays)
	for _, r := range records {
		if lookbackDays > 0 && !r.PublishedAt.IsZero() && r.PublishedAt.Before(cutoff) {
			continue
		}
		out = append(out, r)
		if maxResults > 0 && len(out) == maxResults {
			break
		}
	}
	return out
}
