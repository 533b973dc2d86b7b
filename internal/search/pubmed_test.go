package search

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestServer creates a mock E-utilities server.
func setupTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/esearch.fcgi", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "crispr", r.URL.Query().Get("term"))
		assert.Equal(t, "7", r.URL.Query().Get("reldate"))
		assert.Equal(t, "2", r.URL.Query().Get("retmax"))
		assert.Equal(t, "secret", r.URL.Query().Get("api_key"))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"esearchresult":{"count":"2","idlist":["101","102"]}}`)
	})
	mux.HandleFunc("/esummary.fcgi", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "101,102", r.URL.Query().Get("id"))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"result":{"uids":["101","102"],
			"101":{"uid":"101","title":"First","fulljournalname":"Nature","issn":"0028-0836","essn":"1476-4687","sortpubdate":"2026/10/10 00:00","authors":[{"name":"Doe J"},{"name":"Roe R"}]},
			"102":{"uid":"102","title":"Second","source":"Cell","sortpubdate":"bad"}}}`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestPubMedSearch(t *testing.T) {
	srv := setupTestServer(t)
	p := NewPubMed(srv.URL, "secret", time.Second)

	records, err := p.Search(context.Background(), "crispr", 7, 2)
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "101", records[0].PMID)
	assert.Equal(t, "Nature", records[0].Journal)
	assert.Equal(t, "Doe J, Roe R", records[0].Authors)
	assert.Equal(t, "0028-0836", records[0].ISSN)
	assert.Equal(t, "1476-4687", records[0].EISSN)
	assert.Equal(t, time.Date(2026, 10, 10, 0, 0, 0, 0, time.UTC), records[0].PublishedAt)
	assert.Equal(t, "https://pubmed.ncbi.nlm.nih.gov/101/", records[0].URL)

	assert.Equal(t, "Cell", records[1].Journal, "falls back to the abbreviated source")
	assert.True(t, records[1].PublishedAt.IsZero())
}

func TestPubMedErrorsWrapProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "busy", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := NewPubMed(srv.URL, "", time.Second).Search(context.Background(), "x", 7, 10)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrProvider))
}

func TestPubMedEmptyResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/esummary.fcgi" {
			t.Error("esummary must not be called for an empty id list")
		}
		fmt.Fprint(w, `{"esearchresult":{"count":"0","idlist":[]}}`)
	}))
	defer srv.Close()

	records, err := NewPubMed(srv.URL, "", time.Second).Search(context.Background(), "x", 7, 10)
	require.NoError(t, err)
	assert.Empty(t, records)
}
