package config

import (
	"fmt"

	"github.com/subosito/gotenv"
)

// ParseEnvFile reads a dotenv-style secrets file. Quotes, a leading "export "
// and trailing "# ..." comments are handled by gotenv.
func ParseEnvFile(path string) (map[string]string, error) {
	env, err := gotenv.Read(path)
	if err != nil {
		return nil, fmt.Errorf("parsing env file %s: %w", path, err)
	}
	return env, nil
}
