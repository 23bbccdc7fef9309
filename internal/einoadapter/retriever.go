// Package einoadapter exposes the retrieval pipeline through eino component
// interfaces, so an eino graph or agent downstream can use tenant-scoped
// retrieval and the configured embedding provider without knowing about
// vector stores.
package einoadapter

import (
	"context"
	"fmt"
	"maps"

	"github.com/cloudwego/eino/components/retriever"
	"github.com/cloudwego/eino/schema"

	"github.com/54b3r/botrag-go/internal/budget"
	"github.com/54b3r/botrag-go/internal/rag"
)

// Metadata keys set on every returned document.
const (
	MetaTenantID   = "botId"
	MetaDocumentID = "documentId"
	MetaFilename   = "filename"
)

// RetrieverConfig configures a Retriever.
type RetrieverConfig struct {
	// TenantID is used when no WithTenantID option is passed.
	TenantID int64

	// TopK is used when no retriever.WithTopK option is passed. Zero defers
	// to the wrapped retriever's default.
	TopK int

	// MaxTokens caps the estimated size of the returned documents; the
	// lowest-ranked are dropped first. Zero disables the cap.
	MaxTokens int
}

// Retriever implements retriever.Retriever over a rag.ChunkRetriever.
type Retriever struct {
	inner rag.ChunkRetriever
	cfg   RetrieverConfig
}

var _ retriever.Retriever = (*Retriever)(nil)

// NewRetriever wraps r.
func NewRetriever(r rag.ChunkRetriever, cfg RetrieverConfig) (*Retriever, error) {
	if r == nil {
		return nil, fmt.Errorf("einoadapter: retriever must not be nil")
	}
	return &Retriever{inner: r, cfg: cfg}, nil
}

type tenantOptions struct {
	tenantID int64
}

// WithTenantID scopes one Retrieve call to tenantID.
func WithTenantID(tenantID int64) retriever.Option {
	return retriever.WrapImplSpecificOptFn(func(o *tenantOptions) {
		o.tenantID = tenantID
	})
}

// Retrieve returns the ranked chunks for query as eino documents carrying
// their similarity score. retriever.WithScoreThreshold drops documents
// whose score is not strictly greater than the threshold.
func (r *Retriever) Retrieve(ctx context.Context, query string, opts ...retriever.Option) ([]*schema.Document, error) {
	topK := r.cfg.TopK
	common := retriever.GetCommonOptions(&retriever.Options{TopK: &topK}, opts...)
	impl := retriever.GetImplSpecificOptions(&tenantOptions{tenantID: r.cfg.TenantID}, opts...)
	if impl.tenantID <= 0 {
		return nil, rag.ErrInvalidTenant
	}

	k := 0
	if common.TopK != nil {
		k = *common.TopK
	}
	results, err := r.inner.Retrieve(ctx, impl.tenantID, query, k)
	if err != nil {
		return nil, fmt.Errorf("einoadapter: %w", err)
	}

	docs := make([]*schema.Document, 0, len(results))
	for i := range results {
		res := &results[i]
		if common.ScoreThreshold != nil && res.Score <= *common.ScoreThreshold {
			continue
		}
		docs = append(docs, toDocument(res))
	}
	return budget.TrimDocuments(docs, r.cfg.MaxTokens), nil
}

func toDocument(res *rag.SearchResult) *schema.Document {
	md := maps.Clone(res.Metadata)
	if md == nil {
		md = make(map[string]any, 3)
	}
	md[MetaTenantID] = res.TenantID
	md[MetaDocumentID] = res.DocumentID
	if res.Filename != "" {
		md[MetaFilename] = res.Filename
	}
	doc := &schema.Document{ID: res.ID, Content: res.Text, MetaData: md}
	return doc.WithScore(res.Score)
}
