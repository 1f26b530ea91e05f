// Package accounts loads and validates the ordered list of identities to
// process. A missing, malformed, or empty list is a fatal startup error.
package accounts

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"

	"github.com/jonathan/engage-agent/internal/schemas"
)

// Account is one identity under automation. Immutable for the run.
type Account struct {
	Email string `json:"email" validate:"required,email"`
	Label string `json:"label" validate:"required"`
}

// File is the on-disk accounts document.
type File struct {
	Accounts []Account `json:"accounts" validate:"required,min=1,dive"`
}

var validate = validator.New()

// Load reads the accounts file, optionally validating it against the JSON
// Schema at schemaPath first, then applying struct-level validation.
func Load(path, schemaPath string) ([]Account, error) {
	if schemaPath != "" {
		if resolved := schemas.ResolvePath(schemaPath); resolved != "" {
			if err := schemas.ValidateJSON(resolved, path); err != nil {
				return nil, fmt.Errorf("accounts file failed schema validation: %w", err)
			}
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read accounts file %s: %w", path, err)
	}

	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse accounts file %s: %w", path, err)
	}

	if err := validate.Struct(&f); err != nil {
		return nil, fmt.Errorf("invalid accounts file %s: %w", path, err)
	}

	return f.Accounts, nil
}
