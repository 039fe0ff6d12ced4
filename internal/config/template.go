package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrTemplateCreated is returned by LoadOrInit after it wrote a fresh
// template. The run cannot continue until the template is edited.
var ErrTemplateCreated = errors.New("config template created")

// placeholderMOAPath marks an unedited template.
const placeholderMOAPath = "/path/to/moa"

// Template is written when no configuration file exists.
const Template = `# moagen configuration
tool:
  # Executable used to launch MOA. "java" works when it is on PATH.
  java_path: java
  # MOA root directory, the one containing lib/moa.jar and lib/sizeofag-1.1.0.jar.
  moa_path: ` + placeholderMOAPath + `
  success_marker: "{M}assive {O}nline {A}nalysis"
  timeout: 30m

output:
  dir: results
  workers: 1

drift:
  early_exit: true
  seed: 0

ledger:
  path: ./data/moagen.db

api:
  listen: 127.0.0.1:8484
  # ${VAR} values may also come from a .env file next to this one.
  # auth:
  #   api_key: ${MOAGEN_API_KEY}
  #   tokens:
  #     - token: ${MOAGEN_READ_TOKEN}
  #       scopes: [runs:ro, events:ro, tools:ro]

log_level: info
`

// WriteTemplate writes Template to path. An existing file is never replaced.
func WriteTemplate(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("create config template: %w", err)
	}
	if _, err := f.WriteString(Template); err != nil {
		f.Close()
		return fmt.Errorf("write config template: %w", err)
	}
	return f.Close()
}

// LoadOrInit loads the config at path. When the file does not exist a
// template is written there and ErrTemplateCreated is returned.
func LoadOrInit(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := WriteTemplate(path); err != nil {
			return nil, err
		}
		abs, _ := filepath.Abs(path)
		return nil, fmt.Errorf("%w at %s: set tool.moa_path before generating", ErrTemplateCreated, abs)
	}
	return Load(path)
}

func isPlaceholder(path string) bool {
	return strings.HasPrefix(filepath.ToSlash(path), placeholderMOAPath)
}
