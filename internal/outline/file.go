package outline

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/jackzampolin/outline/internal/types"
)

// File is the on-disk outline format: either a bare list of chapters or an
// object with a chapters key.
type File struct {
	Title    string          `json:"title,omitempty" yaml:"title,omitempty"`
	Chapters []types.Chapter `json:"chapters" yaml:"chapters"`
}

// ParseYAML reads a YAML outline file.
func ParseYAML(r io.Reader) ([]types.Chapter, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, fmt.Errorf("failed to parse yaml: %w", err)
	}
	if len(node.Content) == 0 {
		return nil, nil
	}
	if node.Content[0].Kind == yaml.SequenceNode {
		var chapters []types.Chapter
		if err := node.Decode(&chapters); err != nil {
			return nil, fmt.Errorf("failed to decode chapters: %w", err)
		}
		return chapters, nil
	}
	var f File
	if err := node.Decode(&f); err != nil {
		return nil, fmt.Errorf("failed to decode outline: %w", err)
	}
	return f.Chapters, nil
}

// ParseJSON reads a JSON outline file.
func ParseJSON(r io.Reader) ([]types.Chapter, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var chapters []types.Chapter
		if err := json.Unmarshal(data, &chapters); err != nil {
			return nil, fmt.Errorf("failed to parse json: %w", err)
		}
		return chapters, nil
	}
	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse json: %w", err)
	}
	return f.Chapters, nil
}
