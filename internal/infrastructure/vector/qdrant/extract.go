package qdrant

import (
	"encoding/json"
	"sort"
)

// storedPoint is the wire representation shared by the search and scroll
// endpoints. Vector payloads are kept raw because the shape varies with the
// collection schema and server version.
type storedPoint struct {
	Score   float64         `json:"score"`
	Payload map[string]any  `json:"payload"`
	Vector  json.RawMessage `json:"vector"`
	Vectors json.RawMessage `json:"vectors"`
}

type vectorExtractor func(p storedPoint) []float32

// Extractors are tried in order; each one is pure and returns nil when the
// point does not carry its shape.
var vectorExtractors = []vectorExtractor{
	extractInlineVector,
	extractNamedVector,
	extractVectorsField,
}

func extractVector(p storedPoint) []float32 {
	for _, extract := range vectorExtractors {
		if v := extract(p); len(v) > 0 {
			return v
		}
	}
	return nil
}

// extractInlineVector handles the unnamed schema: "vector": [0.1, ...].
func extractInlineVector(p storedPoint) []float32 {
	return decodeFloat32Slice(p.Vector)
}

// extractNamedVector handles named schemas: "vector": {"default": [...]}.
func extractNamedVector(p storedPoint) []float32 {
	return decodeNamedVectors(p.Vector)
}

// extractVectorsField handles responses that report under "vectors" instead.
func extractVectorsField(p storedPoint) []float32 {
	if v := decodeFloat32Slice(p.Vectors); v != nil {
		return v
	}
	return decodeNamedVectors(p.Vectors)
}

func decodeFloat32Slice(raw json.RawMessage) []float32 {
	if len(raw) == 0 {
		return nil
	}
	var v []float32
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil
	}
	return v
}

func decodeNamedVectors(raw json.RawMessage) []float32 {
	if len(raw) == 0 {
		return nil
	}
	var named map[string]json.RawMessage
	if err := json.Unmarshal(raw, &named); err != nil || len(named) == 0 {
		return nil
	}
	if v := decodeFloat32Slice(named["default"]); v != nil {
		return v
	}
	names := make([]string, 0, len(named))
	for name := range named {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if v := decodeFloat32Slice(named[name]); v != nil {
			return v
		}
	}
	return nil
}

// vectorParamsSize reads the configured dimension from a collection config,
// covering both the single-vector and the named-vector schema.
func vectorParamsSize(raw json.RawMessage) int {
	if len(raw) == 0 {
		return 0
	}
	var single struct {
		Size int `json:"size"`
	}
	if err := json.Unmarshal(raw, &single); err == nil && single.Size > 0 {
		return single.Size
	}
	var named map[string]struct {
		Size int `json:"size"`
	}
	if err := json.Unmarshal(raw, &named); err != nil {
		return 0
	}
	if params, ok := named["default"]; ok {
		return params.Size
	}
	for _, params := range named {
		if params.Size > 0 {
			return params.Size
		}
	}
	return 0
}
