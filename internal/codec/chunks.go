package codec

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/kirillkom/kontext-processor/internal/core/domain"
)

type chunkDocument struct {
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata"`
}

// EncodeChunks serializes chunks in index order as a JSON array of
// {content, metadata} documents. Equal input produces equal bytes.
func (c *Codec) EncodeChunks(req domain.ProcessRequest, chunks []domain.DocumentChunk) ([]byte, error) {
	ordered := make([]domain.DocumentChunk, len(chunks))
	copy(ordered, chunks)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Index < ordered[j].Index })

	docs := make([]chunkDocument, 0, len(ordered))
	for _, chunk := range ordered {
		docs = append(docs, chunkDocument{
			Content:  chunk.Text,
			Metadata: chunkMetadata(req, chunk),
		})
	}

	out, err := json.Marshal(docs)
	if err != nil {
		return nil, fmt.Errorf("encode chunks: %w", err)
	}
	return out, nil
}

func chunkMetadata(req domain.ProcessRequest, chunk domain.DocumentChunk) map[string]any {
	meta := make(map[string]any, len(chunk.Attributes)+16)
	for k, v := range chunk.Attributes {
		meta[k] = v
	}

	meta["chunk_index"] = chunk.Index
	meta["chunk_start_index"] = chunk.StartOffset
	meta["chunk_end_index"] = chunk.EndOffset
	if chunk.Page > 0 {
		meta["page_number"] = chunk.Page
	}
	if len(chunk.HeadingPath) > 0 {
		meta["heading_path"] = chunk.HeadingPath
	}

	meta["knowledge_id"] = req.ContentID
	meta["content_type"] = string(req.ContentType)
	meta["project_id"] = req.ProjectID
	meta["user_id"] = req.UserID
	meta["file_name"] = req.FileName
	meta["mime_type"] = req.MimeType
	meta["file_size"] = req.FileSize
	meta["s3_bucket"] = req.Source.Bucket
	meta["s3_key"] = req.Source.Key
	if !req.Timestamp.IsZero() {
		meta["processing_timestamp"] = formatTimestamp(req.Timestamp)
	}
	return meta
}
