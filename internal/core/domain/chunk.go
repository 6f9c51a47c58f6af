package domain

// ChunkSetContentType is the media type of an encoded chunk set.
const ChunkSetContentType = "application/json"

// DocumentChunk is one ordered unit of transformed content. Index is the
// position in the result set and is preserved end to end.
type DocumentChunk struct {
	Index       int
	Text        string
	Page        int
	HeadingPath []string
	StartOffset int
	EndOffset   int
	Attributes  map[string]any
}
