package research

import (
	"context"

	"github.com/wehubfusion/Minerva/pkg/state"
)

// DocumentStore is the semantic-search collaborator. Empty ticker or source
// arguments mean "unfiltered".
type DocumentStore interface {
	Search(ctx context.Context, query, ticker, source string, topK int) ([]state.RetrievedContext, error)
}

// NoIndexDocumentStore serves deployments without a retrieval index. Every
// search comes back empty and the report names the missing source.
type NoIndexDocumentStore struct{}

func (NoIndexDocumentStore) Search(context.Context, string, string, string, int) ([]state.RetrievedContext, error) {
	return nil, nil
}
