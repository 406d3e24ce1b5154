package config

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// schemaDoc is the JSON schema every greycells config document must
// satisfy. It rejects unknown keys so a typo in .greycells.yaml fails
// loudly instead of silently falling back to a default.
//
//go:embed schema.json
var schemaDoc string

// ValidateSettings checks the merged viper settings against the embedded
// schema. Violations are reported sorted so the error message is stable
// across runs.
func ValidateSettings(settings map[string]any) error {
	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(schemaDoc),
		gojsonschema.NewGoLoader(settings),
	)
	if err != nil {
		return fmt.Errorf("validate config: %w", err)
	}
	if result.Valid() {
		return nil
	}

	violations := make([]string, 0, len(result.Errors()))
	for _, v := range result.Errors() {
		violations = append(violations, v.String())
	}
	sort.Strings(violations)

	return fmt.Errorf("invalid config: %s", strings.Join(violations, "; "))
}
