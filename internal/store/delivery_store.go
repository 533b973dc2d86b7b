package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"github.com/vrsandeep/litpush/internal/models"
)

// DeliveryRecordState reports whether a record for (user, article) exists and
// whether it has been delivered.
func (s *Store) DeliveryRecordState(tx *sqlx.Tx, userID, articleID int64) (exists, notified bool, err error) {
	var flags []bool
	err = tx.Select(&flags, "SELECT notified FROM delivery_records WHERE user_id = ? AND article_id = ?", userID, articleID)
	if err != nil {
		return false, false, fmt.Errorf("check delivery record: %w", err)
	}
	if len(flags) == 0 {
		return false, false, nil
	}
	return true, flags[0], nil
}

// InsertDeliveryRecord creates an un-notified record. It returns false when a
// record for (user, article) already exists.
func (s *Store) InsertDeliveryRecord(tx *sqlx.Tx, userID, articleID, subscriptionID int64) (bool, error) {
	res, err := tx.Exec(`
		INSERT OR IGNORE INTO delivery_records (user_id, article_id, subscription_id, notified, created_at)
		VALUES (?, ?, ?, 0, ?)`, userID, articleID, subscriptionID, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("insert delivery record: %w", err)
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

// ListPendingArticles returns the articles recorded for a subscription that
// have not been delivered yet, newest publication first.
func (s *Store) ListPendingArticles(subscriptionID int64) ([]models.Article, error) {
	var articles []models.Article
	err := s.db.Select(&articles, `
		SELECT a.id, a.pmid, a.title, a.authors, a.journal, a.issn, a.eissn, a.abstract, a.published_at, a.url, a.created_at
		FROM articles a
		JOIN delivery_records d ON d.article_id = a.id
		WHERE d.subscription_id = ? AND d.notified = 0
		ORDER BY a.published_at DESC, a.id ASC`, subscriptionID)
	if err != nil {
		return nil, fmt.Errorf("list pending articles: %w", err)
	}
	return articles, nil
}

// MarkNotified flags the subscription's records for articleIDs as delivered.
func (s *Store) MarkNotified(subscriptionID int64, articleIDs []int64) error {
	if len(articleIDs) == 0 {
		return nil
	}
	query, args, err := builder.Update("delivery_records").
		Set("notified", true).
		Where(sq.Eq{"subscription_id": subscriptionID, "article_id": articleIDs}).
		ToSql()
	if err != nil {
		return err
	}
	_, err = s.db.Exec(query, args...)
	return err
}

// ClaimPendingArticles hands the un-notified records of a subscription to
// token and returns their articles. Records held by another token are skipped
// until their claim is older than lease. The claim is a single UPDATE, so two
// concurrent callers never receive the same record.
func (s *Store) ClaimPendingArticles(subscriptionID int64, token string, now time.Time, lease time.Duration) ([]models.Article, error) {
	now = now.UTC()
	query, args, err := builder.Update("delivery_records").
		Set("claim_token", token).
		Set("claimed_at", now).
		Where(sq.Eq{"subscription_id": subscriptionID, "notified": false}).
		Where(sq.Or{sq.Eq{"claim_token": nil}, sq.Lt{"claimed_at": now.Add(-lease)}}).
		ToSql()
	if err != nil {
		return nil, err
	}
	res, err := s.db.Exec(query, args...)
	if err != nil {
		return nil, fmt.Errorf("claim pending articles: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, nil
	}

	var articles []models.Article
	err = s.db.Select(&articles, `
		SELECT a.id, a.pmid, a.title, a.authors, a.journal, a.issn, a.eissn, a.abstract, a.published_at, a.url, a.created_at
		FROM articles a
		JOIN delivery_records d ON d.article_id = a.id
		WHERE d.claim_token = ? AND d.notified = 0
		ORDER BY a.published_at DESC, a.id ASC`, token)
	if err != nil {
		return nil, fmt.Errorf("list claimed articles: %w", err)
	}
	return articles, nil
}

// MarkClaimNotified flags every record held by token as delivered.
func (s *Store) MarkClaimNotified(token string) error {
	_, err := s.db.Exec(`
		UPDATE delivery_records SET notified = 1, claim_token = NULL, claimed_at = NULL
		WHERE claim_token = ?`, token)
	if err != nil {
		return fmt.Errorf("mark claim notified: %w", err)
	}
	return nil
}

// ReleaseClaim returns the records held by token to the pending pool.
func (s *Store) ReleaseClaim(token string) error {
	_, err := s.db.Exec(`
		UPDATE delivery_records SET claim_token = NULL, claimed_at = NULL
		WHERE claim_token = ?`, token)
	if err != nil {
		return fmt.Errorf("release claim: %w", err)
	}
	return nil
}

// ListDeliveryRecords returns every record owned by userID.
func (s *Store) ListDeliveryRecords(userID int64) ([]models.DeliveryRecord, error) {
	var records []models.DeliveryRecord
	err := s.db.Select(&records, `
		SELECT id, user_id, article_id, subscription_id, notified, created_at
		FROM delivery_records WHERE user_id = ? ORDER BY id ASC`, userID)
	return records, err
}

// UpsertJournal saves the metrics for a journal.
func (s *Store) UpsertJournal(j models.Journal) error {
	_, err := s.db.Exec(`
		INSERT INTO journals (issn, eissn, title, quartile, impact_factor, category, top)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(issn, eissn) DO UPDATE SET
			title = excluded.title,
			quartile = excluded.quartile,
			impact_factor = excluded.impact_factor,
			category = excluded.category,
			top = excluded.top`,
		j.ISSN, j.EISSN, j.Title, j.Quartile, j.ImpactFactor, j.Category, j.Top)
	return err
}

// FindJournal looks a journal up by print or electronic ISSN. Either value may
// match either column. It returns ErrNotFound when nothing matches.
func (s *Store) FindJournal(q sqlx.Queryer, issn, eissn string) (*models.Journal, error) {
	var match sq.Or
	for _, v := range []string{issn, eissn} {
		if v != "" {
			match = append(match, sq.Eq{"issn": v}, sq.Eq{"eissn": v})
		}
	}
	if len(match) == 0 {
		return nil, fmt.Errorf("journal without issn: %w", ErrNotFound)
	}
	query, args, err := builder.
		Select("issn", "eissn", "title", "quartile", "impact_factor", "category", "top").
		From("journals").Where(match).Limit(1).ToSql()
	if err != nil {
		return nil, err
	}
	var j models.Journal
	if err := sqlx.Get(q, &j, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("journal %s/%s: %w", issn, eissn, ErrNotFound)
		}
		return nil, fmt.Errorf("find journal: %w", err)
	}
	return &j, nil
}
