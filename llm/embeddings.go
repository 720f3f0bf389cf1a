package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"

	"casaingest/models"
)

type openaiEmbedder struct {
	inner embeddings.Embedder
}

func newOpenAIEmbedder(client *openai.LLM) (Embedder, error) {
	inner, err := embeddings.NewEmbedder(client, embeddings.WithStripNewLines(true))
	if err != nil {
		return nil, err
	}
	return &openaiEmbedder{inner: inner}, nil
}

func (e *openaiEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.inner.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, fmt.Errorf("embedder returned empty result")
	}
	return vecs[0], nil
}

// EmbedText generates the search vector for a property's text content.
func (c *Client) EmbedText(ctx context.Context, text string) ([]float32, error) {
	if c.embedder == nil {
		return nil, fmt.Errorf("embedder not configured")
	}
	return c.embedder.EmbedQuery(ctx, text)
}

// SearchContent synthesizes the text that gets embedded for semantic
// search over saved properties.
func SearchContent(p *models.Property) string {
	var b strings.Builder

	b.WriteString(p.Name)
	if p.Location != "" {
		b.WriteString("\nLocation: " + p.Location)
	}
	if p.PropertyType != "" {
		b.WriteString("\nType: " + p.PropertyType)
	}
	if p.Price != nil {
		b.WriteString("\nPrice: $" + p.Price.StringFixed(2))
	}
	if p.Bedrooms != nil {
		fmt.Fprintf(&b, "\nBedrooms: %d", *p.Bedrooms)
	}
	if p.Bathrooms != nil {
		b.WriteString("\nBathrooms: " + p.Bathrooms.String())
	}
	if p.SquareMeters != nil {
		b.WriteString("\nArea: " + p.SquareMeters.String() + " m2")
	}
	if len(p.Amenities) > 0 {
		b.WriteString("\nAmenities: " + strings.Join(p.Amenities, ", "))
	}
	if p.Description != "" {
		b.WriteString("\n" + p.Description)
	}

	return b.String()
}
