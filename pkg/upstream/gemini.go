package upstream

import (
	"encoding/json"
	"strconv"
	"strings"
)

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	MaxOutputTokens int      `json:"maxOutputTokens,omitempty"`
	Temperature     *float64 `json:"temperature,omitempty"`
}

type geminiRequest struct {
	Contents          []geminiContent         `json:"contents"`
	SystemInstruction *geminiContent          `json:"systemInstruction,omitempty"`
	GenerationConfig  *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

// buildRequestBody encodes the generation request. The encoder escapes both
// texts independently, so quotes and newlines in either cannot break the
// envelope.
func buildRequestBody(req ChatRequest, gen *geminiGenerationConfig) ([]byte, error) {
	body := geminiRequest{
		Contents: []geminiContent{{
			Role:  "user",
			Parts: []geminiPart{{Text: req.Text}},
		}},
		GenerationConfig: gen,
	}
	if req.SystemContext != "" {
		body.SystemInstruction = &geminiContent{
			Parts: []geminiPart{{Text: req.SystemContext}},
		}
	}
	return json.Marshal(body)
}

// responsePath is a parsed dot path such as candidates.0.content.parts.0.text.
type responsePath []string

func parseResponsePath(path string) responsePath {
	var segs responsePath
	for _, s := range strings.Split(path, ".") {
		if s = strings.TrimSpace(s); s != "" {
			segs = append(segs, s)
		}
	}
	return segs
}

func (p responsePath) String() string {
	return strings.Join(p, ".")
}

// extract decodes body and walks the path. It reports false when the body is
// not JSON, a segment is missing, or the leaf is not a string.
func (p responsePath) extract(body []byte) (string, bool) {
	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return "", false
	}

	cur := doc
	for _, seg := range p {
		switch node := cur.(type) {
		case map[string]any:
			next, ok := node[seg]
			if !ok {
				return "", false
			}
			cur = next
		case []any:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(node) {
				return "", false
			}
			cur = node[idx]
		default:
			return "", false
		}
	}

	text, ok := cur.(string)
	return text, ok
}
