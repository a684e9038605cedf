package semantic

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"text/template"

	"github.com/jackzampolin/outline/internal/types"
)

//go:embed system.tmpl
var systemPrompt string

//go:embed batch.tmpl
var batchPromptTemplate string

//go:embed context.tmpl
var contextPromptTemplate string

// Prompt keys recorded with each LLM call.
const (
	BatchPromptKey   = "semantic.batch"
	ContextPromptKey = "semantic.context"
)

var (
	batchTmpl   *template.Template
	contextTmpl *template.Template
)

func init() {
	funcs := template.FuncMap{"inc": func(i int) int { return i + 1 }}
	var err error
	batchTmpl, err = template.New("batch").Funcs(funcs).Parse(batchPromptTemplate)
	if err != nil {
		panic("failed to parse semantic batch template: " + err.Error())
	}
	contextTmpl, err = template.New("context").Funcs(funcs).Parse(contextPromptTemplate)
	if err != nil {
		panic("failed to parse semantic context template: " + err.Error())
	}
}

// SystemPrompt returns the system prompt shared by both oracle calls.
func SystemPrompt() string {
	return systemPrompt
}

// BatchPromptData contains data for rendering the batch prompt.
type BatchPromptData struct {
	Templates []string
	Targets   []string
	Context   string
	Pairs     int
}

// BuildBatchPrompt renders the batch comparison prompt.
func BuildBatchPrompt(data BatchPromptData) (string, error) {
	data.Pairs = len(data.Templates) * len(data.Targets)
	var buf bytes.Buffer
	if err := batchTmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// ContextPromptData contains data for rendering the context-aware prompt.
type ContextPromptData struct {
	Template   types.Chapter
	Candidates []types.Chapter
	Context    string
}

// BuildContextPrompt renders the context-aware selection prompt.
func BuildContextPrompt(data ContextPromptData) (string, error) {
	var buf bytes.Buffer
	if err := contextTmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// batchResponse is the parsed batch reply.
type batchResponse struct {
	Scores []struct {
		Template int     `json:"template"`
		Target   int     `json:"target"`
		Score    float64 `json:"score"`
		Reason   string  `json:"reason"`
	} `json:"scores"`
}

// contextResponse is the parsed context-aware reply.
type contextResponse struct {
	Best   int     `json:"best"`
	Score  float64 `json:"score"`
	Reason string  `json:"reason"`
}

// BatchJSONSchema returns the JSON schema for the batch reply.
func BatchJSONSchema() map[string]any {
	return map[string]any{
		"name":   "semantic_batch",
		"strict": true,
		"schema": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"scores": map[string]any{
					"type": "array",
					"items": map[string]any{
						"type": "object",
						"properties": map[string]any{
							"template": map[string]any{"type": "integer", "minimum": 1},
							"target":   map[string]any{"type": "integer", "minimum": 1},
							"score":    map[string]any{"type": "number", "minimum": 0, "maximum": 1},
							"reason":   map[string]any{"type": "string"},
						},
						"required": []string{"template", "target", "score"},
					},
				},
			},
			"required": []string{"scores"},
		},
	}
}

// ContextJSONSchema returns the JSON schema for the context-aware reply.
func ContextJSONSchema() map[string]any {
	return map[string]any{
		"name":   "semantic_context",
		"strict": true,
		"schema": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"best":   map[string]any{"type": "integer", "minimum": 0},
				"score":  map[string]any{"type": "number", "minimum": 0, "maximum": 1},
				"reason": map[string]any{"type": "string"},
			},
			"required": []string{"best", "score"},
		},
	}
}

func mustMarshal(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic("failed to marshal schema: " + err.Error())
	}
	return b
}

var (
	batchSchema   = mustMarshal(BatchJSONSchema())
	contextSchema = mustMarshal(ContextJSONSchema())
)
