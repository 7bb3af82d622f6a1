package batch

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/rbhughes/old-purrio-geographix/internal/domain"
)

// BatchID derives the ledger grouping key for a batch request. Identical
// request bodies always yield the same id regardless of field order. The id
// is stable within this worker; it is not byte-compatible with ids minted
// by other encoders.
func BatchID(body *domain.ExtractBatchBody) (string, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("failed to encode batch body: %w", err)
	}

	// Round trip through a map so keys come out sorted.
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return "", fmt.Errorf("failed to canonicalize batch body: %w", err)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(fields); err != nil {
		return "", fmt.Errorf("failed to canonicalize batch body: %w", err)
	}

	return domain.Hashify(string(bytes.TrimSuffix(buf.Bytes(), []byte("\n")))), nil
}
