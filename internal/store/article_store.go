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

const articleColumns = "id, pmid, title, authors, journal, issn, eissn, abstract, published_at, url, created_at"

// UpsertArticle finds the article by PMID or creates it. An existing article
// whose ISSN or eISSN is empty takes the value from rec. This operation must
// be done in a transaction.
func (s *Store) UpsertArticle(tx *sqlx.Tx, rec models.RawRecord) (*models.Article, bool, error) {
	var article models.Article
	err := tx.Get(&article, "SELECT "+articleColumns+" FROM articles WHERE pmid = ?", rec.PMID)
	if errors.Is(err, sql.ErrNoRows) {
		var published interface{}
		if !rec.PublishedAt.IsZero() {
			published = rec.PublishedAt.UTC()
		}
		now := time.Now().UTC()
		res, err := tx.Exec(`
			INSERT INTO articles (pmid, title, authors, journal, issn, eissn, abstract, published_at, url, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.PMID, rec.Title, rec.Authors, rec.Journal, rec.ISSN, rec.EISSN, rec.Abstract, published, rec.URL, now)
		if err != nil {
			return nil, false, fmt.Errorf("insert article %s: %w", rec.PMID, err)
		}
		id, _ := res.LastInsertId()
		article = models.Article{
			ID: id, PMID: rec.PMID, Title: rec.Title, Authors: rec.Authors, Journal: rec.Journal,
			ISSN: rec.ISSN, EISSN: rec.EISSN, Abstract: rec.Abstract, URL: rec.URL, CreatedAt: now,
		}
		if !rec.PublishedAt.IsZero() {
			p := rec.PublishedAt.UTC()
			article.PublishedAt = &p
		}
		return &article, true, nil
	} else if err != nil {
		return nil, false, fmt.Errorf("lookup article %s: %w", rec.PMID, err)
	}

	if (article.ISSN == "" && rec.ISSN != "") || (article.EISSN == "" && rec.EISSN != "") {
		if article.ISSN == "" {
			article.ISSN = rec.ISSN
		}
		if article.EISSN == "" {
			article.EISSN = rec.EISSN
		}
		if _, err := tx.Exec("UPDATE articles SET issn = ?, eissn = ? WHERE id = ?", article.ISSN, article.EISSN, article.ID); err != nil {
			return nil, false, fmt.Errorf("backfill issn of article %s: %w", rec.PMID, err)
		}
	}
	return &article, false, nil
}

// GetArticleByPMID retrieves an article by its external identifier.
func (s *Store) GetArticleByPMID(pmid string) (*models.Article, error) {
	var article models.Article
	if err := s.db.Get(&article, "SELECT "+articleColumns+" FROM articles WHERE pmid = ?", pmid); err != nil {
		return nil, notFound(err, "article "+pmid)
	}
	return &article, nil
}

// CountArticles returns the number of stored articles.
func (s *Store) CountArticles() (int64, error) {
	var n int64
	err := s.db.Get(&n, "SELECT COUNT(*) FROM articles")
	return n, err
}

// EvictOldestArticles deletes up to batch articles with the lowest ids together
// with their delivery records, in a single transaction. It returns the number
// of articles removed.
func (s *Store) EvictOldestArticles(batch int) (int64, error) {
	if batch <= 0 {
		return 0, nil
	}
	tx, err := s.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	query, args, err := builder.Select("id").From("articles").OrderBy("id ASC").Limit(uint64(batch)).ToSql()
	if err != nil {
		return 0, err
	}
	var ids []int64
	if err := tx.Select(&ids, query, args...); err != nil {
		return 0, fmt.Errorf("select eviction batch: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	// Children first so the delete never depends on the cascade being enabled.
	query, args, err = builder.Delete("delivery_records").Where(sq.Eq{"article_id": ids}).ToSql()
	if err != nil {
		return 0, err
	}
	if _, err := tx.Exec(query, args...); err != nil {
		return 0, fmt.Errorf("delete delivery records: %w", err)
	}
	query, args, err = builder.Delete("articles").Where(sq.Eq{"id": ids}).ToSql()
	if err != nil {
		return 0, err
	}
	res, err := tx.Exec(query, args...)
	if err != nil {
		return 0, fmt.Errorf("delete articles: %w", err)
	}
	removed, _ := res.RowsAffected()

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit eviction: %w", err)
	}
	return removed, nil
}
