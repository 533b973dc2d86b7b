package search

import "encoding/json"

// esearchResponse is the JSON returned by esearch.fcgi.
type esearchResponse struct {
	Result struct {
		Count  string   `json:"count"`
		IDList []string `json:"idlist"`
	} `json:"esearchresult"`
	Error string `json:"error,omitempty"`
}

// esummaryResponse is the JSON returned by esummary.fcgi. The result object
// holds a "uids" array plus one entry per uid, so it is decoded in two steps.
type esummaryResponse struct {
	Result map[string]json.RawMessage `json:"result"`
	Error  string                     `json:"error,omitempty"`
}

type summaryAuthor struct {
	Name string `json:"name"`
}

type summaryDoc struct {
	UID             string          `json:"uid"`
	Title           string          `json:"title"`
	Source          string          `json:"source"`
	FullJournalName string          `json:"fulljournalname"`
	ISSN            string          `json:"issn"`
	ESSN            string          `json:"essn"`
	SortPubDate     string          `json:"sortpubdate"`
	Authors         []summaryAuthor `json:"authors"`
}
