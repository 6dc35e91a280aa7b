package config

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"

	"github.com/kadirpekel/forge/pkg/logger"
)

// Provider supplies raw config bytes and, optionally, a change
// notification channel. FileProvider (provider.go) is the only
// implementation forge ships; the interface exists so tests can stub it.
type Provider interface {
	Load(ctx context.Context) ([]byte, error)
	Watch(ctx context.Context) (<-chan struct{}, error)
}

// Loader loads and decodes a Config from a Provider, mirroring hector's
// two-stage decode: yaml.v3 into a generic map, then mapstructure into
// the typed Config with weakly typed input. Keys that match no Config
// field are ignored.
type Loader struct {
	provider Provider
	onChange func(*Config)
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithOnChange registers a callback invoked with the freshly reloaded
// Config whenever the underlying Provider signals a change.
func WithOnChange(fn func(*Config)) LoaderOption {
	return func(l *Loader) { l.onChange = fn }
}

// NewLoader builds a Loader over the given Provider.
func NewLoader(p Provider, opts ...LoaderOption) *Loader {
	l := &Loader{provider: p}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load reads, parses, validates, and returns a Config.
func (l *Loader) Load(ctx context.Context) (*Config, error) {
	raw, err := l.provider.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("config: loading: %w", err)
	}
	return decode(raw)
}

func decode(raw []byte) (*Config, error) {
	var generic map[string]any
	if err := yaml.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("config: parsing yaml: %w", err)
	}

	var cfg Config
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "yaml",
		Result:           &cfg,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, fmt.Errorf("config: building decoder: %w", err)
	}
	if err := dec.Decode(generic); err != nil {
		return nil, fmt.Errorf("config: decoding: %w", err)
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: invalid: %w", err)
	}
	return &cfg, nil
}

// Watch starts the Provider's change-notification loop and, on each
// notification, reloads and dispatches to onChange. Returns immediately;
// the watch loop runs until ctx is cancelled.
func (l *Loader) Watch(ctx context.Context) error {
	if l.onChange == nil {
		return nil
	}
	changes, err := l.provider.Watch(ctx)
	if err != nil {
		return fmt.Errorf("config: watching: %w", err)
	}
	go func() {
		for range changes {
			cfg, err := l.Load(ctx)
			if err != nil {
				logger.Default().Warn("config reload failed, keeping previous config", slog.String("error", err.Error()))
				continue
			}
			l.onChange(cfg)
		}
	}()
	return nil
}
