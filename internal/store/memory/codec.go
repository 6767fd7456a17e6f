package memory

import (
	"encoding/json"
	"fmt"

	"github.com/JakeFAU/broken-link-analyzer/internal/linkcheck"
)

// resultCodec stores results as JSON so callers can never alias saved slices.
type resultCodec struct{}

func (resultCodec) encode(result linkcheck.Result) ([]byte, error) {
	data, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	return data, nil
}

func (resultCodec) decode(data []byte) (linkcheck.Result, error) {
	var result linkcheck.Result
	if err := json.Unmarshal(data, &result); err != nil {
		return linkcheck.Result{}, fmt.Errorf("decode result: %w", err)
	}
	return result, nil
}
