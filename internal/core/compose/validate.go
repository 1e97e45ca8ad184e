package compose

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/compose-spec/compose-go/v2/loader"
	"github.com/compose-spec/compose-go/v2/types"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// Error Types
// =============================================================================

var (
	// ErrEmptyDocument is returned when the document has no content.
	ErrEmptyDocument = errors.New("compose document is empty")

	// ErrInvalidYAML is returned when the document is not valid YAML.
	ErrInvalidYAML = errors.New("invalid YAML syntax")

	// ErrInvalidDocument is returned when the document violates the compose
	// specification.
	ErrInvalidDocument = errors.New("invalid compose document")
)

// ValidateError wraps loader failures with context.
type ValidateError struct {
	Message string
	Err     error
}

func (e *ValidateError) Error() string {
	return e.Message
}

func (e *ValidateError) Unwrap() error {
	return e.Err
}

// =============================================================================
// Validation
// =============================================================================

// Validate loads rendered compose YAML through the compose-go loader,
// interpolating against the given environment, and reports any schema
// violation. It is a round-trip check on Render's output: the document we
// hand the external orchestrator must be one it will accept.
func Validate(content []byte, env map[string]string) error {
	if strings.TrimSpace(string(content)) == "" {
		return &ValidateError{Message: "compose document is empty", Err: ErrEmptyDocument}
	}

	var dict map[string]interface{}
	if err := yaml.Unmarshal(content, &dict); err != nil {
		return &ValidateError{Message: "invalid YAML syntax", Err: ErrInvalidYAML}
	}
	if dict == nil {
		return &ValidateError{Message: "invalid YAML syntax", Err: ErrInvalidYAML}
	}

	_, err := loader.LoadWithContext(context.Background(), types.ConfigDetails{
		Environment: env,
		ConfigFiles: []types.ConfigFile{
			{
				Content: content,
				Config:  dict,
			},
		},
	}, func(opts *loader.Options) {
		opts.SetProjectName("convexup", false)
		opts.SkipValidation = false
		opts.SkipInterpolation = false
		// In-memory content, no paths to resolve or files to extend.
		opts.SkipNormalization = true
		opts.SkipExtends = true
	})
	if err != nil {
		return &ValidateError{
			Message: fmt.Sprintf("compose document rejected: %v", err),
			Err:     ErrInvalidDocument,
		}
	}

	return nil
}
