package config

import (
	"os"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/route1io/connectors/pkg/errors"
)

// placeholder matches ${NAME} and ${NAME:-default}.
var placeholder = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-([^}]*))?\}`)

// Load reads the YAML document at path into out.
func Load(path string, out interface{}) error {
	data, err := os.ReadFile(path) //nolint:gosec // caller-controlled document path
	if err != nil {
		return errors.Wrapf(err, errors.ErrorTypeFile, "failed to read %s", path)
	}
	if err := Parse(data, out); err != nil {
		return errors.Wrapf(err, errors.ErrorTypeConfig, "invalid document %s", path)
	}
	return nil
}

// Parse expands environment placeholders in data and decodes it into out.
func Parse(data []byte, out interface{}) error {
	if err := yaml.Unmarshal([]byte(expandEnv(string(data))), out); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "failed to parse YAML")
	}
	return nil
}

// Save writes v to path as YAML, readable by the owner only.
func Save(path string, v interface{}) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "failed to encode YAML")
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return errors.Wrapf(err, errors.ErrorTypeFile, "failed to write %s", path)
	}
	return nil
}

// expandEnv replaces placeholders with environment values. The default
// applies when the variable is unset or empty.
func expandEnv(s string) string {
	return placeholder.ReplaceAllStringFunc(s, func(m string) string {
		parts := placeholder.FindStringSubmatch(m)
		if v := os.Getenv(parts[1]); v != "" || parts[2] == "" {
			return v
		}
		return parts[3]
	})
}
