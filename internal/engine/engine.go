package engine

import (
	"context"

	"github.com/law-makers/rednote/pkg/models"
)

// Searcher is the interface the CLI and tool server use to run note searches
type Searcher interface {
	// Search runs a query and returns at most query.Limit records in encounter order
	Search(ctx context.Context, query models.SearchQuery, headless bool) ([]models.NoteRecord, error)

	// Name returns the name of the implementation
	Name() string
}

// LoginChecker runs the interactive login flow and reports whether the session is authenticated
type LoginChecker interface {
	Login(ctx context.Context, headless bool) (bool, error)
}
