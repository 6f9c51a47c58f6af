package codec

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/kirillkom/kontext-processor/internal/core/domain"
)

const requestSchemaURL = "process-request.json"

// requestSchema describes the inbound content.process.request payload.
// Unknown properties are tolerated; producers add fields over time.
func requestSchema() map[string]any {
	contentTypes := make([]string, 0, len(domain.KnownContentTypes()))
	for _, ct := range domain.KnownContentTypes() {
		contentTypes = append(contentTypes, string(ct))
	}

	props := map[string]any{
		"eventId":     map[string]any{"type": "string"},
		"eventType":   map[string]any{"type": "string", "enum": []string{domain.EventTypeProcessRequest}},
		"timestamp":   map[string]any{"type": "string"},
		"contentId":   nonEmptyString(),
		"contentType": map[string]any{"type": "string", "enum": contentTypes},
		"fileName":    map[string]any{"type": "string"},
		"s3Key":       nonEmptyString(),
		"s3Bucket":    nonEmptyString(),
		"mimeType":    map[string]any{"type": "string"},
		"fileSize":    map[string]any{"type": "integer", "minimum": 0},
		"projectId":   map[string]any{"type": "string"},
		"userId":      map[string]any{"type": "string"},
	}
	required := []string{
		"contentId", "contentType", "fileName", "s3Key", "s3Bucket",
		"mimeType", "fileSize", "projectId", "userId",
	}

	return map[string]any{
		"type":       "object",
		"properties": props,
		"required":   required,
	}
}

func nonEmptyString() map[string]any {
	return map[string]any{"type": "string", "minLength": 1, "pattern": `\S`}
}

func compileRequestSchema() (*jsonschema.Schema, error) {
	raw, err := json.Marshal(requestSchema())
	if err != nil {
		return nil, fmt.Errorf("marshal request schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(requestSchemaURL, strings.NewReader(string(raw))); err != nil {
		return nil, fmt.Errorf("add request schema: %w", err)
	}
	schema, err := compiler.Compile(requestSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile request schema: %w", err)
	}
	return schema, nil
}
