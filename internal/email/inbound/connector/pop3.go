package connector

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/go-pop3"
)

type pop3Connection interface {
	Auth(user, password string) error
	Quit() error
	Uidl(msgID int) ([]pop3.MessageID, error)
	RetrRaw(msgID int) (*bytes.Buffer, error)
	Dele(msgID ...int) error
}

type pop3ConnFactory func(Account) (pop3Connection, error)

// POP3Opener opens POP3/POP3S mailbox sessions.
type POP3Opener struct {
	dialTimeout time.Duration
	logger      *log.Logger
	newConn     pop3ConnFactory
}

// POP3OpenerOption customizes opener behavior.
type POP3OpenerOption func(*POP3Opener)

// NewPOP3Opener returns a POP3 connector.
func NewPOP3Opener(opts ...POP3OpenerOption) *POP3Opener {
	o := &POP3Opener{
		dialTimeout: 10 * time.Second,
		logger:      log.Default(),
	}
	o.newConn = o.defaultConnFactory
	for _, opt := range opts {
		opt(o)
	}
	if o.newConn == nil {
		o.newConn = o.defaultConnFactory
	}
	return o
}

// WithPOP3Logger overrides the logger used for connector diagnostics.
func WithPOP3Logger(logger *log.Logger) POP3OpenerOption {
	return func(o *POP3Opener) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithPOP3DialTimeout overrides the socket dial timeout.
func WithPOP3DialTimeout(timeout time.Duration) POP3OpenerOption {
	return func(o *POP3Opener) {
		if timeout > 0 {
			o.dialTimeout = timeout
		}
	}
}

func withPOP3ConnFactory(factory pop3ConnFactory) POP3OpenerOption {
	return func(o *POP3Opener) {
		o.newConn = factory
	}
}

// Name returns the connector identifier.
func (o *POP3Opener) Name() string {
	return "pop3"
}

// Open dials and authenticates a POP3 session.
func (o *POP3Opener) Open(ctx context.Context, account Account) (Mailbox, error) {
	if err := validateAccount(account); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m := &pop3Mailbox{opener: o, account: account}
	if err := m.dial(); err != nil {
		return nil, err
	}
	return m, nil
}

func (o *POP3Opener) safeQuit(conn pop3Connection) {
	if conn == nil {
		return
	}
	if err := conn.Quit(); err != nil && o.logger != nil {
		o.logger.Printf("pop3 quit error: %v", err)
	}
}

func (o *POP3Opener) defaultConnFactory(account Account) (pop3Connection, error) {
	if account.Host == "" {
		return nil, errors.New("pop3 account missing host")
	}
	port := account.Port
	if port == 0 {
		if usePOP3TLS(account.Type) {
			port = 995
		} else {
			port = 110
		}
	}
	client := pop3.New(pop3.Opt{
		Host:        account.Host,
		Port:        port,
		DialTimeout: o.dialTimeout,
		TLSEnabled:  usePOP3TLS(account.Type),
	})
	return client.NewConn()
}

// pop3Mailbox maps UIDL values to message numbers of the current session.
// A POP3 maildrop is locked to a snapshot for the lifetime of a session,
// so every List after the first starts a fresh session.
type pop3Mailbox struct {
	opener  *POP3Opener
	account Account
	conn    pop3Connection
	listed  bool
	index   map[string]int
	closed  bool
}

func (m *pop3Mailbox) dial() error {
	conn, err := m.opener.newConn(m.account)
	if err != nil {
		return fmt.Errorf("pop3 connect: %w", err)
	}
	if err := conn.Auth(m.account.Username, string(m.account.Password)); err != nil {
		m.opener.safeQuit(conn)
		return fmt.Errorf("pop3 auth: %w", err)
	}
	m.conn = conn
	m.listed = false
	m.index = nil
	return nil
}

func (m *pop3Mailbox) List(ctx context.Context) ([]string, error) {
	if err := m.usable(ctx); err != nil {
		return nil, err
	}
	if m.conn == nil || m.listed {
		m.opener.safeQuit(m.conn)
		m.conn = nil
		if err := m.dial(); err != nil {
			return nil, err
		}
	}

	msgs, err := m.conn.Uidl(0)
	if err != nil {
		return nil, fmt.Errorf("pop3 uidl: %w", err)
	}
	m.listed = true
	m.index = make(map[string]int, len(msgs))
	ids := make([]string, 0, len(msgs))
	for _, meta := range msgs {
		uid := meta.UID
		if uid == "" {
			uid = strconv.Itoa(meta.ID)
		}
		m.index[uid] = meta.ID
		ids = append(ids, uid)
	}
	return ids, nil
}

func (m *pop3Mailbox) Fetch(ctx context.Context, id string) ([]byte, error) {
	num, err := m.lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	payload, err := m.conn.RetrRaw(num)
	if err != nil {
		return nil, fmt.Errorf("pop3 retr %d: %w", num, err)
	}
	return append([]byte(nil), payload.Bytes()...), nil
}

// Delete marks the message and ends the session, which is when a POP3
// server commits deletions.
func (m *pop3Mailbox) Delete(ctx context.Context, id string) error {
	num, err := m.lookup(ctx, id)
	if err != nil {
		return err
	}
	if err := m.conn.Dele(num); err != nil {
		return fmt.Errorf("pop3 delete %d: %w", num, err)
	}
	conn := m.conn
	m.conn = nil
	m.index = nil
	if err := conn.Quit(); err != nil {
		return fmt.Errorf("pop3 quit: %w", err)
	}
	return nil
}

func (m *pop3Mailbox) Close() error {
	if m.closed {
		return nil
	}
	m.closed = true
	if m.conn == nil {
		return nil
	}
	conn := m.conn
	m.conn = nil
	if err := conn.Quit(); err != nil {
		return fmt.Errorf("pop3 quit: %w", err)
	}
	return nil
}

func (m *pop3Mailbox) lookup(ctx context.Context, id string) (int, error) {
	if err := m.usable(ctx); err != nil {
		return 0, err
	}
	num, ok := m.index[id]
	if !ok || m.conn == nil {
		return 0, fmt.Errorf("pop3 message %s: %w", id, ErrMessageNotFound)
	}
	return num, nil
}

func (m *pop3Mailbox) usable(ctx context.Context) error {
	if m.closed {
		return errors.New("pop3 mailbox closed")
	}
	return ctx.Err()
}

func validateAccount(account Account) error {
	if account.Username == "" {
		return errors.New("pop3 account missing username")
	}
	if len(account.Password) == 0 {
		return errors.New("pop3 account missing password")
	}
	if !supportsPOP3(account.Type) {
		return fmt.Errorf("account type %s not supported by POP3 connector", account.Type)
	}
	return nil
}

func supportsPOP3(t string) bool {
	switch strings.ToLower(t) {
	case "pop3", "pop3s", "pop3_tls", "pop3s_tls":
		return true
	default:
		return false
	}
}

func usePOP3TLS(t string) bool {
	switch strings.ToLower(t) {
	case "pop3s", "pop3_tls", "pop3s_tls":
		return true
	default:
		return false
	}
}
