package cli

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
)

// EnvFileVar overrides the --env flag when set.
const EnvFileVar = "TRANSYNC_ENV_FILE"

// EnvLoader loads .env files with a predictable override order.
type EnvLoader struct {
	value       *string
	defaultPath string
}

// AddEnvFlag registers an --env flag and returns an EnvLoader.
func AddEnvFlag(fs *flag.FlagSet, defaultPath, description string) *EnvLoader {
	if fs == nil {
		fs = flag.CommandLine
	}
	if defaultPath == "" {
		defaultPath = ".env"
	}
	if description == "" {
		description = "Path to the .env file"
	}

	value := fs.String("env", defaultPath, description)
	return &EnvLoader{
		value:       value,
		defaultPath: defaultPath,
	}
}

// Load tries TRANSYNC_ENV_FILE, then the --env value, then its basename, then
// the default path, and returns the first file that loaded.
func (l *EnvLoader) Load() (string, error) {
	if l == nil {
		return "", fmt.Errorf("env loader is nil")
	}

	log.SetOutput(os.Stderr)

	for _, candidate := range l.candidates() {
		if err := godotenv.Overload(candidate.path); err == nil {
			log.Printf("Loaded environment from %s: %s", candidate.origin, candidate.path)
			return candidate.path, nil
		} else if candidate.origin == EnvFileVar {
			log.Printf("Warning: failed to load %s=%s", EnvFileVar, candidate.path)
		}
	}

	return "", fmt.Errorf("failed to load env file from %s", l.requested())
}

type envCandidate struct {
	origin string
	path   string
}

func (l *EnvLoader) candidates() []envCandidate {
	out := make([]envCandidate, 0, 4)
	seen := map[string]struct{}{}
	add := func(origin, path string) {
		path = strings.TrimSpace(path)
		if path == "" {
			return
		}
		if _, exists := seen[path]; exists {
			return
		}
		seen[path] = struct{}{}
		out = append(out, envCandidate{origin: origin, path: path})
	}

	add(EnvFileVar, os.Getenv(EnvFileVar))
	requested := l.requested()
	add("--env", requested)
	if base := filepath.Base(requested); base != "." && base != requested {
		add("basename fallback", base)
	}
	add("fallback", l.defaultPath)
	return out
}

func (l *EnvLoader) requested() string {
	requested := ""
	if l.value != nil {
		requested = strings.TrimSpace(*l.value)
	}
	if requested == "" {
		requested = l.defaultPath
	}
	return requested
}
