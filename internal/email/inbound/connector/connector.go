// Package connector opens authenticated mailbox sessions over IMAP and POP3.
package connector

import (
	"context"
	"errors"
)

// ErrMessageNotFound is returned when an id is not present in the mailbox.
var ErrMessageNotFound = errors.New("message not found")

// Account carries the minimal set of fields a connector needs to open a mailbox.
type Account struct {
	Type     string // pop3, pop3s, imap, imaps
	Host     string
	Port     int
	Username string
	Password []byte
	Folder   string // IMAP only, defaults to INBOX
}

// Mailbox is an open, authenticated session on a single folder. Ids are
// opaque strings: IMAP UIDs or POP3 UIDL values.
type Mailbox interface {
	// List returns every message id in ascending arrival order.
	List(ctx context.Context) ([]string, error)
	// Fetch returns the raw RFC 5322 payload without marking it read.
	Fetch(ctx context.Context, id string) ([]byte, error)
	// Delete marks the message deleted and purges it from the server.
	Delete(ctx context.Context, id string) error
	Close() error
}

// Opener implementations (POP3, IMAP) dial and authenticate a mailbox.
type Opener interface {
	Name() string
	Open(ctx context.Context, account Account) (Mailbox, error)
}

// Factory resolves the correct connector implementation for a mailbox.
type Factory interface {
	OpenerFor(account Account) (Opener, error)
}

// Open dials the account using the built-in connectors.
func Open(ctx context.Context, account Account) (Mailbox, error) {
	opener, err := DefaultFactory().OpenerFor(account)
	if err != nil {
		return nil, err
	}
	return opener.Open(ctx, account)
}
