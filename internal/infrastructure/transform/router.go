// Package transform routes documents to a format-specific transformer.
package transform

import (
	"context"
	"fmt"
	"mime"
	"strings"
	"unicode/utf8"

	"github.com/kirillkom/kontext-processor/internal/core/domain"
	"github.com/kirillkom/kontext-processor/internal/core/ports"
	"github.com/kirillkom/kontext-processor/internal/infrastructure/chunking"
	"github.com/kirillkom/kontext-processor/internal/infrastructure/transform/html"
	"github.com/kirillkom/kontext-processor/internal/infrastructure/transform/pdf"
	"github.com/kirillkom/kontext-processor/internal/infrastructure/transform/plaintext"
	"github.com/kirillkom/kontext-processor/internal/infrastructure/transform/xlsx"
)

// Router selects a transformer by MIME type, then by file extension. Text
// that matches neither falls back to the plain text transformer.
type Router struct {
	byMIME    map[string]ports.Transformer
	byExt     map[string]ports.Transformer
	plaintext ports.Transformer
}

func NewRouter(splitter *chunking.Splitter) *Router {
	var (
		pdfT   = pdf.New(splitter)
		xlsxT  = xlsx.New(splitter)
		htmlT  = html.New(splitter)
		textT  = plaintext.New(splitter)
		mdT    = plaintext.NewMarkdown(splitter)
		router = &Router{plaintext: textT}
	)
	router.byMIME = map[string]ports.Transformer{
		"application/pdf": pdfT,
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": xlsxT,
		"text/html":             htmlT,
		"application/xhtml+xml": htmlT,
		"text/plain":            textT,
		"text/csv":              textT,
		"text/markdown":         mdT,
		"text/x-markdown":       mdT,
	}
	router.byExt = map[string]ports.Transformer{
		"pdf":      pdfT,
		"xlsx":     xlsxT,
		"xlsm":     xlsxT,
		"html":     htmlT,
		"htm":      htmlT,
		"txt":      textT,
		"csv":      textT,
		"log":      textT,
		"md":       mdT,
		"markdown": mdT,
	}
	return router
}

// Register adds or replaces the transformer for a MIME type and extensions.
func (r *Router) Register(mimeType string, t ports.Transformer, extensions ...string) {
	if mimeType != "" {
		r.byMIME[mimeType] = t
	}
	for _, ext := range extensions {
		r.byExt[strings.ToLower(strings.TrimPrefix(ext, "."))] = t
	}
}

func (r *Router) Transform(ctx context.Context, blob []byte, meta domain.DocumentMetadata) ([]domain.DocumentChunk, error) {
	switch meta.ContentType {
	case domain.ContentTypeDocument, "":
	default:
		return nil, domain.NewTransformationError(domain.SubCodeUnsupportedFormat,
			fmt.Errorf("%s processing not yet implemented", meta.ContentType))
	}

	t, ok := r.resolve(meta)
	if !ok {
		if !utf8.Valid(blob) {
			return nil, domain.NewTransformationError(domain.SubCodeUnsupportedFormat,
				fmt.Errorf("no transformer for mime type %q and file %q", meta.MimeType, meta.FileName))
		}
		t = r.plaintext
	}
	return t.Transform(ctx, blob, meta)
}

func (r *Router) resolve(meta domain.DocumentMetadata) (ports.Transformer, bool) {
	if mediaType, _, err := mime.ParseMediaType(meta.MimeType); err == nil {
		if t, ok := r.byMIME[strings.ToLower(mediaType)]; ok {
			return t, true
		}
	}
	if t, ok := r.byExt[meta.Extension()]; ok {
		return t, true
	}
	return nil, false
}
