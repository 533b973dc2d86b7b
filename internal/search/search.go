// Package search defines the external literature search port.
package search

import (
	"context"
	"errors"

	"github.com/vrsandeep/litpush/internal/models"
)

// ErrProvider wraps every failure reported by a search backend.
var ErrProvider = errors.New("search provider error")

// Provider runs a literature query restricted to the last lookbackDays days
// and returns at most maxResults records.
type Provider interface {
	Search(ctx context.Context, query string, lookbackDays, maxResults int) ([]models.RawRecord, error)
}
