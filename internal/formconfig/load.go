package formconfig

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/gotrs-io/formprobe/internal/placeholder"
)

const DefaultEnvPrefix = "FORMPROBE"

// ErrInvalidYAML is returned when the configuration cannot be parsed.
var ErrInvalidYAML = errors.New("invalid YAML file")

type loadOptions struct {
	envPrefix string
	seed      *int64
	locale    string
	logger    *log.Logger
	resolver  []placeholder.Option
}

// Option customizes loading.
type Option func(*loadOptions)

// WithEnvPrefix changes the environment override prefix. An empty prefix
// disables environment overrides.
func WithEnvPrefix(prefix string) Option {
	return func(o *loadOptions) {
		o.envPrefix = prefix
	}
}

// WithSeed overrides the seed key of the document.
func WithSeed(seed int64) Option {
	return func(o *loadOptions) {
		o.seed = &seed
	}
}

// WithLocale overrides the locale key of the document.
func WithLocale(locale string) Option {
	return func(o *loadOptions) {
		o.locale = locale
	}
}

// WithLogger sets the logger handed to the placeholder resolver.
func WithLogger(logger *log.Logger) Option {
	return func(o *loadOptions) {
		o.logger = logger
	}
}

// WithResolverOptions passes extra options, e.g. custom generators, to the
// placeholder resolver.
func WithResolverOptions(opts ...placeholder.Option) Option {
	return func(o *loadOptions) {
		o.resolver = append(o.resolver, opts...)
	}
}

// Load reads the YAML file at path, expands every placeholder and decodes it.
// A missing file yields an error wrapping fs.ErrNotExist.
func Load(path string, opts ...Option) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config file not found at %s: %w", path, err)
	}
	cfg, err := parse(data, path, opts)
	if err != nil {
		return nil, err
	}
	cfg.source = path
	return cfg, nil
}

// Parse behaves like Load for an in-memory document.
func Parse(data []byte, opts ...Option) (*Config, error) {
	return parse(data, "<inline>", opts)
}

func parse(data []byte, name string, opts []Option) (*Config, error) {
	o := loadOptions{envPrefix: DefaultEnvPrefix, logger: log.Default()}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w %s: %v", ErrInvalidYAML, name, err)
	}
	if len(doc.Content) == 0 {
		return nil, fmt.Errorf("%w %s: document is empty", ErrInvalidYAML, name)
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%w %s: top level must be a mapping", ErrInvalidYAML, name)
	}

	resolverOpts, err := o.resolverOptions(root)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", name, err)
	}
	resolver, err := placeholder.New(resolverOpts...)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", name, err)
	}
	resolved, err := resolver.ResolveNode(&doc)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", name, err)
	}

	var tree map[string]any
	if err := resolved.Decode(&tree); err != nil {
		return nil, fmt.Errorf("config %s: decode resolved document: %w", name, err)
	}
	out, err := yaml.Marshal(resolved)
	if err != nil {
		return nil, fmt.Errorf("config %s: encode resolved document: %w", name, err)
	}

	v := viper.New()
	v.SetConfigType("yaml")
	if err := v.MergeConfigMap(tree); err != nil {
		return nil, fmt.Errorf("config %s: %w", name, err)
	}
	if o.envPrefix != "" {
		v.SetEnvPrefix(o.envPrefix)
		v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
		v.AutomaticEnv()
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.EmailCheck = restoreSectionNames(tree, cfg.EmailCheck)
	cfg.resolved = out
	if o.seed != nil {
		cfg.Seed = *o.seed
	}
	cfg.Locale = resolver.Locale().String()
	return cfg, nil
}

// resolverOptions reads the locale and seed keys from the raw document so
// they are known before any placeholder is expanded.
func (o loadOptions) resolverOptions(root *yaml.Node) ([]placeholder.Option, error) {
	opts := []placeholder.Option{placeholder.WithLogger(o.logger)}

	locale := o.locale
	if locale == "" {
		if n := mappingValue(root, "locale"); n != nil {
			locale = n.Value
		}
	}
	if locale != "" {
		opts = append(opts, placeholder.WithLocale(locale))
	}

	switch {
	case o.seed != nil:
		opts = append(opts, placeholder.WithSeed(*o.seed))
	default:
		if n := mappingValue(root, "seed"); n != nil && n.Kind == yaml.ScalarNode && n.Value != "" {
			seed, err := strconv.ParseInt(n.Value, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("seed (line %d): %q is not an integer", n.Line, n.Value)
			}
			opts = append(opts, placeholder.WithSeed(seed))
		}
	}
	return append(opts, o.resolver...), nil
}

func mappingValue(mapping *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value == key {
			return mapping.Content[i+1]
		}
	}
	return nil
}

// restoreSectionNames re-keys email_check sections with the names written in
// the document; viper lower-cases every key it stores.
func restoreSectionNames(tree map[string]any, checks map[string]EmailCheck) map[string]EmailCheck {
	raw, ok := tree["email_check"].(map[string]any)
	if !ok || len(checks) == 0 {
		return checks
	}
	out := make(map[string]EmailCheck, len(checks))
	for name := range raw {
		if check, ok := checks[strings.ToLower(name)]; ok {
			out[name] = check
		}
	}
	for name, check := range checks {
		if _, ok := raw[name]; !ok && !hasFold(out, name) {
			out[name] = check
		}
	}
	return out
}

func hasFold(checks map[string]EmailCheck, name string) bool {
	for key := range checks {
		if strings.EqualFold(key, name) {
			return true
		}
	}
	return false
}
