package gateway

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// ResolveDSN returns the first non-empty connection string among names,
// together with the variable it came from. Names are tried in order; for
// each one the process environment wins and dotenv files fill in when it is
// unset or blank, later files overriding earlier ones. Missing dotenv files
// are ignored and the process environment is never modified.
func ResolveDSN(names, envFiles []string) (string, string, error) {
	fileEnv := readEnvFiles(envFiles)
	for _, name := range names {
		if v := strings.TrimSpace(os.Getenv(name)); v != "" {
			return v, name, nil
		}
		if v := strings.TrimSpace(fileEnv[name]); v != "" {
			return v, name, nil
		}
	}

	return "", "", fmt.Errorf("%w: no database connection string set (checked %s)",
		ErrMissingConfig, strings.Join(names, ", "))
}

func readEnvFiles(files []string) map[string]string {
	merged := make(map[string]string)
	for _, file := range files {
		values, err := godotenv.Read(file)
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				log.WithError(err).WithField("file", file).Warn("Failed to read env file")
			}
			continue
		}
		for k, v := range values {
			merged[k] = v
		}
	}
	return merged
}
