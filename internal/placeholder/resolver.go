// Package placeholder expands {{name[param]}} tokens embedded in configuration
// values into synthetic test data.
package placeholder

import (
	crand "crypto/rand"
	"encoding/binary"
	"fmt"
	"log"
	"math/rand/v2"
	"regexp"
	"strings"

	"github.com/brianvoe/gofakeit/v7"
	"golang.org/x/text/language"
)

const defaultLocale = "en_US"

var tokenPattern = regexp.MustCompile(`\{\{([A-Za-z0-9_]+)(?:\[(.*?)\])?\}\}`)

// GeneratorFunc produces the value for a single placeholder occurrence.
// param is empty when the token carried no [param] part.
type GeneratorFunc func(r *Resolver, param string) (string, error)

type generator struct {
	fn            GeneratorFunc
	requiresParam bool
	usage         string
}

// Resolver replaces placeholders with generated values. A Resolver owns a
// single random stream and is not safe for concurrent use.
type Resolver struct {
	localeName string
	locale     language.Tag
	region     string
	seed       *int64
	src        *rand.ChaCha8
	rng        *rand.Rand
	faker      *gofakeit.Faker
	generators map[string]generator
	custom     map[string]GeneratorFunc
	logger     *log.Logger
}

// Option customizes a Resolver.
type Option func(*Resolver)

// WithLocale sets the locale tag, e.g. "en_US" or "pl-PL".
func WithLocale(locale string) Option {
	return func(r *Resolver) {
		if strings.TrimSpace(locale) != "" {
			r.localeName = strings.TrimSpace(locale)
		}
	}
}

// WithSeed makes the random stream reproducible.
func WithSeed(seed int64) Option {
	return func(r *Resolver) {
		r.seed = &seed
	}
}

// WithGenerator registers or overrides a generator for name.
func WithGenerator(name string, fn GeneratorFunc) Option {
	return func(r *Resolver) {
		if name == "" || fn == nil {
			return
		}
		if r.custom == nil {
			r.custom = make(map[string]GeneratorFunc)
		}
		r.custom[name] = fn
	}
}

// WithLogger overrides the logger used for diagnostics.
func WithLogger(logger *log.Logger) Option {
	return func(r *Resolver) {
		r.logger = logger
	}
}

// New builds a resolver. It fails when the locale tag cannot be parsed.
func New(opts ...Option) (*Resolver, error) {
	r := &Resolver{localeName: defaultLocale}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}

	tag, err := language.Parse(strings.ReplaceAll(r.localeName, "_", "-"))
	if err != nil {
		return nil, fmt.Errorf("invalid locale %q: %w", r.localeName, err)
	}
	r.locale = tag
	if region, conf := tag.Region(); conf != language.No {
		r.region = region.String()
	}

	var key [32]byte
	if r.seed != nil {
		binary.LittleEndian.PutUint64(key[:8], uint64(*r.seed))
	} else if _, err := crand.Read(key[:]); err != nil {
		return nil, fmt.Errorf("seed random stream: %w", err)
	}
	r.src = rand.NewChaCha8(key)
	r.rng = rand.New(r.src)
	r.faker = gofakeit.NewFaker(r.src, false)

	r.generators = builtinGenerators()
	for name, fn := range r.custom {
		r.generators[name] = generator{fn: fn}
	}
	return r, nil
}

// Locale returns the parsed locale tag.
func (r *Resolver) Locale() language.Tag { return r.locale }

// Region returns the ISO 3166 region of the locale, or "" when unknown.
func (r *Resolver) Region() string { return r.region }

// Rand exposes the resolver's random stream to custom generators.
func (r *Resolver) Rand() *rand.Rand { return r.rng }

// Faker exposes the resolver's faker, bound to the same random stream.
func (r *Resolver) Faker() *gofakeit.Faker { return r.faker }

// Resolve replaces every placeholder in text. Unknown placeholder names are
// kept verbatim. The first invalid placeholder aborts the whole resolution.
func (r *Resolver) Resolve(text string) (string, error) {
	matches := tokenPattern.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return text, nil
	}

	var b strings.Builder
	last := 0
	for _, m := range matches {
		b.WriteString(text[last:m[0]])
		token := text[m[0]:m[1]]
		name := text[m[2]:m[3]]
		param := ""
		if m[4] >= 0 {
			param = text[m[4]:m[5]]
		}
		value, err := r.expand(token, name, param)
		if err != nil {
			return "", err
		}
		b.WriteString(value)
		last = m[1]
	}
	b.WriteString(text[last:])
	return b.String(), nil
}

func (r *Resolver) expand(token, name, param string) (string, error) {
	gen, ok := r.generators[name]
	if !ok {
		r.logf("placeholder: leaving unknown token %s", token)
		return token, nil
	}
	if gen.requiresParam && strings.TrimSpace(param) == "" {
		return "", &Error{
			Token: token,
			Name:  name,
			Err:   fmt.Errorf("%w: the '%s' placeholder requires %s", ErrMissingParam, name, gen.usage),
		}
	}
	value, err := gen.fn(r, param)
	if err != nil {
		return "", &Error{Token: token, Name: name, Err: err}
	}
	return value, nil
}

func (r *Resolver) logf(format string, args ...any) {
	if r == nil || r.logger == nil {
		return
	}
	r.logger.Printf(format, args...)
}
