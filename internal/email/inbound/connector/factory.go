package connector

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

// ErrUnsupportedType is returned when no connector serves an account type.
var ErrUnsupportedType = errors.New("unsupported account type")

// FactoryOption customizes a connector factory.
type FactoryOption func(*registry)

// registry maps normalized account types to openers.
type registry struct {
	mu      sync.RWMutex
	openers map[string]Opener
}

// NewFactory builds a connector factory with the provided options.
func NewFactory(opts ...FactoryOption) Factory {
	f := &registry{openers: make(map[string]Opener)}
	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}
	return f
}

// DefaultFactory returns a factory preloaded with built-in connectors.
func DefaultFactory() Factory {
	return NewFactory(
		WithOpener(NewPOP3Opener(), "pop3", "pop3s", "pop3_tls", "pop3s_tls"),
		WithOpener(NewIMAPOpener(), "imap", "imaps", "imap_tls", "imaps_tls", "imaptls"),
	)
}

// WithOpener registers an opener for the provided account types.
func WithOpener(opener Opener, accountTypes ...string) FactoryOption {
	return func(f *registry) {
		if f == nil || opener == nil {
			return
		}
		f.mu.Lock()
		defer f.mu.Unlock()
		for _, t := range accountTypes {
			key := normalizeType(t)
			if key == "" {
				continue
			}
			f.openers[key] = opener
		}
	}
}

func (f *registry) OpenerFor(account Account) (Opener, error) {
	key := normalizeType(account.Type)
	f.mu.RLock()
	opener, ok := f.openers[key]
	f.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("account type %q: %w", account.Type, ErrUnsupportedType)
	}
	return opener, nil
}

// Supports reports whether the built-in connectors can open accountType.
func Supports(accountType string) bool {
	_, err := DefaultFactory().OpenerFor(Account{Type: accountType})
	return err == nil
}

func normalizeType(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}
