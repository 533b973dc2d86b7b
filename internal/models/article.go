package models

import "time"

// RawRecord is a single hit returned by the search provider.
type RawRecord struct {
	PMID        string    `json:"pmid"`
	Title       string    `json:"title"`
	Authors     string    `json:"authors"`
	Journal     string    `json:"journal"`
	ISSN        string    `json:"issn,omitempty"`
	EISSN       string    `json:"eissn,omitempty"`
	Abstract    string    `json:"abstract,omitempty"`
	PublishedAt time.Time `json:"published_at"`
	URL         string    `json:"url"`
}

// Article is a stored record, unique per PMID across all subscriptions.
type Article struct {
	ID          int64      `db:"id" json:"id"`
	PMID        string     `db:"pmid" json:"pmid"`
	Title       string     `db:"title" json:"title"`
	Authors     string     `db:"authors" json:"authors"`
	Journal     string     `db:"journal" json:"journal"`
	ISSN        string     `db:"issn" json:"issn,omitempty"`
	EISSN       string     `db:"eissn" json:"eissn,omitempty"`
	Abstract    string     `db:"abstract" json:"abstract,omitempty"`
	PublishedAt *time.Time `db:"published_at" json:"published_at,omitempty"`
	URL         string     `db:"url" json:"url"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
}

// HasISSN reports whether either print or electronic ISSN is known.
func (a Article) HasISSN() bool {
	return a.ISSN != "" || a.EISSN != ""
}

// Journal holds the metrics used by quality filters.
type Journal struct {
	ISSN         string  `db:"issn" json:"issn"`
	EISSN        string  `db:"eissn" json:"eissn"`
	Title        string  `db:"title" json:"title"`
	Quartile     string  `db:"quartile" json:"quartile"`
	ImpactFactor float64 `db:"impact_factor" json:"impact_factor"`
	Category     string  `db:"category" json:"category"`
	Top          bool    `db:"top" json:"top"`
}

// DeliveryRecord links a user to an article they were (or will be) sent.
type DeliveryRecord struct {
	ID             int64     `db:"id" json:"id"`
	UserID         int64     `db:"user_id" json:"user_id"`
	ArticleID      int64     `db:"article_id" json:"article_id"`
	SubscriptionID int64     `db:"subscription_id" json:"subscription_id"`
	Notified       bool      `db:"notified" json:"notified"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}
