package providers

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

var scoreSchema = json.RawMessage(`{
	"name":"score",
	"strict":true,
	"schema":{
		"type":"object",
		"properties":{
			"score":{"type":"number","minimum":0,"maximum":1}
		},
		"required":["score"],
		"additionalProperties":false
	}
}`)

func TestParseStructuredJSON(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
		wantErr bool
	}{
		{"plain", `{"ok":true}`, `{"ok":true}`, false},
		{"code fence", "```json\n{\"ok\":true}\n```", `{"ok":true}`, false},
		{"surrounding prose", "Here you go: {\"ok\": true} hope it helps", `{"ok":true}`, false},
		{"array", "result: [1, 2]", `[1,2]`, false},
		{"empty", "  ", "", true},
		{"garbage", "no json here", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseStructuredJSON(tt.content)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && string(got) != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestValidateStructuredJSON(t *testing.T) {
	if err := ValidateStructuredJSON(scoreSchema, json.RawMessage(`{"score":0.4}`)); err != nil {
		t.Fatalf("valid doc: %v", err)
	}
	if err := ValidateStructuredJSON(scoreSchema, json.RawMessage(`{"score":4}`)); err == nil {
		t.Fatal("out-of-range score should fail validation")
	}
	if err := ValidateStructuredJSON(nil, json.RawMessage(`{"anything":1}`)); err != nil {
		t.Fatalf("nil schema should skip validation: %v", err)
	}

	bare := json.RawMessage(`{"type":"object","required":["x"]}`)
	if err := ValidateStructuredJSON(bare, json.RawMessage(`{}`)); err == nil {
		t.Fatal("bare schema should be applied")
	}
}

func TestChatStructured(t *testing.T) {
	t.Run("repairs invalid output", func(t *testing.T) {
		mock := NewMockClient()
		mock.Responder = func(req *ChatRequest) (string, error) {
			if len(req.Messages) == 1 {
				return `{"score": 7}`, nil
			}
			last := req.Messages[len(req.Messages)-1]
			if !strings.Contains(last.Content, "Validation issue") {
				t.Errorf("repair prompt missing validation issue: %q", last.Content)
			}
			return `{"score": 0.7}`, nil
		}

		parsed, result, err := ChatStructured(context.Background(), mock, &ChatRequest{
			Messages:       []Message{{Role: "user", Content: "score it"}},
			ResponseFormat: &ResponseFormat{Type: "json_object", JSONSchema: scoreSchema},
		})
		if err != nil {
			t.Fatalf("ChatStructured() error = %v", err)
		}
		if string(parsed) != `{"score":0.7}` {
			t.Errorf("parsed = %s", parsed)
		}
		if result == nil || mock.RequestCount() != 2 {
			t.Errorf("RequestCount = %d, want 2", mock.RequestCount())
		}
	})

	t.Run("gives up after repair attempts", func(t *testing.T) {
		mock := NewMockClient()
		mock.Responder = func(req *ChatRequest) (string, error) {
			return "not json", nil
		}

		_, _, err := ChatStructured(context.Background(), mock, &ChatRequest{
			Messages:       []Message{{Role: "user", Content: "score it"}},
			ResponseFormat: &ResponseFormat{Type: "json_object", JSONSchema: scoreSchema},
		})
		if !errors.Is(err, ErrStructuredOutput) {
			t.Fatalf("err = %v, want ErrStructuredOutput", err)
		}
		if got := mock.RequestCount(); got != maxStructuredRepairAttempts+1 {
			t.Errorf("RequestCount = %d, want %d", got, maxStructuredRepairAttempts+1)
		}
	})

	t.Run("transport error is returned as is", func(t *testing.T) {
		mock := NewMockClient()
		mock.ShouldFail = true

		_, _, err := ChatStructured(context.Background(), mock, &ChatRequest{})
		if err == nil || errors.Is(err, ErrStructuredOutput) {
			t.Fatalf("err = %v", err)
		}
	})
}
