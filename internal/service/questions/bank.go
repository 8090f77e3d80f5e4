// Package questions loads the immutable, ordered list of survey prompts.
package questions

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrOutOfRange is returned by At for an index outside [0, Count).
var ErrOutOfRange = errors.New("question index out of range")

// Bank is a read-only ordered list of question prompts, safe for
// concurrent use.
type Bank struct {
	prompts []string
}

// New builds a bank from prompts. Empty lists and blank prompts are rejected.
func New(prompts []string) (*Bank, error) {
	if len(prompts) == 0 {
		return nil, errors.New("question list is empty")
	}
	for i, p := range prompts {
		if strings.TrimSpace(p) == "" {
			return nil, fmt.Errorf("question %d is blank", i)
		}
	}
	return &Bank{prompts: append([]string(nil), prompts...)}, nil
}

// Load reads a bank from a JSON array of strings, or a YAML sequence when
// the file ends in .yaml or .yml.
func Load(path string) (*Bank, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read questions %s: %w", path, err)
	}

	var prompts []string
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &prompts)
	default:
		err = json.Unmarshal(data, &prompts)
	}
	if err != nil {
		return nil, fmt.Errorf("parse questions %s: %w", path, err)
	}

	b, err := New(prompts)
	if err != nil {
		return nil, fmt.Errorf("questions %s: %w", path, err)
	}
	return b, nil
}

// Count returns the number of questions.
func (b *Bank) Count() int {
	return len(b.prompts)
}

// At returns the prompt at index.
func (b *Bank) At(index int) (string, error) {
	if index < 0 || index >= len(b.prompts) {
		return "", fmt.Errorf("%w: %d not in [0, %d)", ErrOutOfRange, index, len(b.prompts))
	}
	return b.prompts[index], nil
}

// All returns a copy of every prompt in order.
func (b *Bank) All() []string {
	return append([]string(nil), b.prompts...)
}
