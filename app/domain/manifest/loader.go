package manifest

import (
	"fmt"
	"sync"

	"github.com/spf13/viper"
	"hydrogen.im/hydrogen-worker/config"
	"hydrogen.im/hydrogen-worker/config/environment_variables"
)

// Loader reads the manifest file written by the build (JSON or YAML).
type Loader struct {
	path string
	mu   sync.Mutex
}

func NewLoader() *Loader {
	return NewLoaderFromPath(environment_variables.Current().MANIFEST_PATH)
}

func NewLoaderFromPath(path string) *Loader {
	return &Loader{path: path}
}

func (l *Loader) Path() string {
	return l.path
}

func (l *Loader) Load() (*Manifest, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	v := viper.New()
	v.SetConfigFile(l.path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read manifest %s: %w", l.path, err)
	}
	var m Manifest
	if err := v.Unmarshal(&m); err != nil {
		return nil, fmt.Errorf("failed to decode manifest %s: %w", l.path, err)
	}
	if m.Version == "" {
		m.Version = config.Version
	}
	if m.BuildHash == "" {
		m.BuildHash = config.BuildHash
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("invalid manifest %s: %w", l.path, err)
	}
	return &m, nil
}
