package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/vrsandeep/litpush/internal/models"
)

// PubMed implements Provider on the NCBI E-utilities API.
type PubMed struct {
	client  *http.Client
	baseURL string
	apiKey  string
}

// NewPubMed creates a PubMed provider. An empty baseURL uses the public endpoint.
func NewPubMed(baseURL, apiKey string, timeout time.Duration) *PubMed {
	if baseURL == "" {
		baseURL = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils"
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &PubMed{
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
	}
}

// Search runs esearch for the ids published within the lookback window, then
// fetches their summaries.
func (p *PubMed) Search(ctx context.Context, query string, lookbackDays, maxResults int) ([]models.RawRecord, error) {
	params := map[string]string{
		"db":       "pubmed",
		"term":     query,
		"retmode":  "json",
		"retmax":   strconv.Itoa(maxResults),
		"sort":     "pub_date",
		"datetype": "pdat",
	}
	if lookbackDays > 0 {
		params["reldate"] = strconv.Itoa(lookbackDays)
	}
	var found esearchResponse
	if err := p.get(ctx, "esearch.fcgi", params, &found); err != nil {
		return nil, err
	}
	if found.Error != "" {
		return nil, fmt.Errorf("%w: esearch: %s", ErrProvider, found.Error)
	}
	ids := found.Result.IDList
	if maxResults > 0 && len(ids) > maxResults {
		ids = ids[:maxResults]
	}
	if len(ids) == 0 {
		return []models.RawRecord{}, nil
	}

	var summary esummaryResponse
	err := p.get(ctx, "esummary.fcgi", map[string]string{
		"db":      "pubmed",
		"id":      strings.Join(ids, ","),
		"retmode": "json",
	}, &summary)
	if err != nil {
		return nil, err
	}
	if summary.Error != "" {
		return nil, fmt.Errorf("%w: esummary: %s", ErrProvider, summary.Error)
	}

	records := make([]models.RawRecord, 0, len(ids))
	for _, id := range ids {
		raw, ok := summary.Result[id]
		if !ok {
			continue
		}
		var doc summaryDoc
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("%w: decode summary %s: %v", ErrProvider, id, err)
		}
		records = append(records, toRecord(doc))
	}
	return records, nil
}

func (p *PubMed) get(ctx context.Context, endpoint string, params map[string]string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/%s", p.baseURL, endpoint), nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProvider, err)
	}
	q := req.URL.Query()
	for k, v := range params {
		q.Set(k, v)
	}
	if p.apiKey != "" {
		q.Set("api_key", p.apiKey)
	}
	req.URL.RawQuery = q.Encode()

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrProvider, endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %s returned status %d", ErrProvider, endpoint, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode %s: %v", ErrProvider, endpoint, err)
	}
	return nil
}

func toRecord(doc summaryDoc) models.RawRecord {
	authors := make([]string, 0, len(doc.Authors))
	for _, a := range doc.Authors {
		authors = append(authors, a.Name)
	}
	journal := doc.FullJournalName
	if journal == "" {
		journal = doc.Source
	}
	rec := models.RawRecord{
		PMID:    doc.UID,
		Title:   doc.Title,
		Authors: strings.Join(authors, ", "),
		Journal: journal,
		ISSN:    doc.ISSN,
		EISSN:   doc.ESSN,
		URL:     "https://pubmed.ncbi.nlm.nih.gov/" + doc.UID + "/",
	}
	// sortpubdate looks like "2024/01/05 00:00".
	if t, err := time.Parse("2006/01/02 15:04", doc.SortPubDate); err == nil {
		rec.PublishedAt = t.UTC()
	}
	return rec
}
