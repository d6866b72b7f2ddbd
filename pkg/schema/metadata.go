// Package schema validates step metadata against an operator supplied JSON schema.
package schema

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// ErrInvalidMetadata is returned when metadata does not satisfy the schema.
var ErrInvalidMetadata = errors.New("metadata does not match schema")

// MetadataValidator checks step metadata documents.
type MetadataValidator struct {
	schema *gojsonschema.Schema
}

// NewMetadataValidator compiles a JSON schema document.
func NewMetadataValidator(document []byte) (*MetadataValidator, error) {
	compiled, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(document))
	if err != nil {
		return nil, fmt.Errorf("failed to compile metadata schema: %w", err)
	}

	return &MetadataValidator{schema: compiled}, nil
}

// LoadMetadataValidator reads and compiles the schema at path.
func LoadMetadataValidator(path string) (*MetadataValidator, error) {
	document, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata schema: %w", err)
	}

	return NewMetadataValidator(document)
}

// Validate returns nil for a nil validator or nil metadata.
func (v *MetadataValidator) Validate(metadata map[string]any) error {
	if v == nil || metadata == nil {
		return nil
	}

	result, err := v.schema.Validate(gojsonschema.NewGoLoader(metadata))
	if err != nil {
		return fmt.Errorf("failed to validate metadata: %w", err)
	}

	if result.Valid() {
		return nil
	}

	details := make([]string, 0, len(result.Errors()))
	for _, resultErr := range result.Errors() {
		details = append(details, resultErr.String())
	}

	return fmt.Errorf("%w: %s", ErrInvalidMetadata, strings.Join(details, "; "))
}
