package outline

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Document is the part of an Outline document used in a preview.
type Document struct {
	ID    string  `json:"id"`
	Title *string `json:"title"`
	Text  *string `json:"text"` // markdown
}

// response covers both documents.info ({data: document}) and
// shares.get ({data: {document, share}}).
type response struct {
	Data json.RawMessage `json:"data"`
}

type shareData struct {
	Document json.RawMessage `json:"document"`
}

func decodeDocument(body []byte) (*Document, error) {
	var resp response
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if isNull(resp.Data) {
		return nil, fmt.Errorf("%w: data", ErrMissingField)
	}

	node := resp.Data
	var share shareData
	if err := json.Unmarshal(resp.Data, &share); err == nil && !isNull(share.Document) {
		node = share.Document
	}

	var doc Document
	if err := json.Unmarshal(node, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode document: %w", err)
	}
	if doc.Title == nil {
		return nil, fmt.Errorf("%w: title", ErrMissingField)
	}
	if doc.Text == nil {
		return nil, fmt.Errorf("%w: text", ErrMissingField)
	}
	return &doc, nil
}

func isNull(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) == 0 || bytes.Equal(raw, []byte("null"))
}
