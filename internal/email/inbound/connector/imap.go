package connector

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
)

const defaultIMAPFolder = "INBOX"

type imapClient interface {
	Login(username, password string) commandWaiter
	Logout() commandWaiter
	Close() error
	Select(mailbox string, options *imap.SelectOptions) selectWaiter
	UIDSearch(criteria *imap.SearchCriteria, options *imap.SearchOptions) searchWaiter
	Fetch(numSet imap.NumSet, options *imap.FetchOptions) fetchWaiter
	Store(numSet imap.NumSet, store *imap.StoreFlags, options *imap.StoreOptions) fetchWaiter
	Expunge() expungeWaiter
}

type commandWaiter interface{ Wait() error }
type selectWaiter interface {
	Wait() (*imap.SelectData, error)
}
type searchWaiter interface {
	Wait() (*imap.SearchData, error)
}
type fetchWaiter interface {
	Collect() ([]*imapclient.FetchMessageBuffer, error)
	Close() error
}
type expungeWaiter interface{ Close() error }

// IMAPOpener opens IMAP/IMAPS mailbox sessions.
type IMAPOpener struct {
	dialTimeout time.Duration
	logger      *log.Logger
	newClient   func(Account) (imapClient, error)
}

// IMAPOpenerOption customizes opener behavior.
type IMAPOpenerOption func(*IMAPOpener)

// NewIMAPOpener returns an IMAP connector.
func NewIMAPOpener(opts ...IMAPOpenerOption) *IMAPOpener {
	o := &IMAPOpener{
		dialTimeout: 10 * time.Second,
		logger:      log.Default(),
	}
	o.newClient = o.defaultClientFactory
	for _, opt := range opts {
		opt(o)
	}
	if o.newClient == nil {
		o.newClient = o.defaultClientFactory
	}
	return o
}

// WithIMAPLogger overrides the logger used for connector diagnostics.
func WithIMAPLogger(logger *log.Logger) IMAPOpenerOption {
	return func(o *IMAPOpener) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithIMAPDialTimeout overrides the socket dial timeout.
func WithIMAPDialTimeout(timeout time.Duration) IMAPOpenerOption {
	return func(o *IMAPOpener) {
		if timeout > 0 {
			o.dialTimeout = timeout
		}
	}
}

func withIMAPClientFactory(factory func(Account) (imapClient, error)) IMAPOpenerOption {
	return func(o *IMAPOpener) {
		o.newClient = factory
	}
}

// Name returns the connector identifier.
func (o *IMAPOpener) Name() string {
	return "imap"
}

// Open dials, authenticates and selects the account folder.
func (o *IMAPOpener) Open(ctx context.Context, account Account) (Mailbox, error) {
	if err := validateIMAPAccount(account); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	client, err := o.newClient(account)
	if err != nil {
		return nil, fmt.Errorf("imap connect: %w", err)
	}
	if err := client.Login(account.Username, string(account.Password)).Wait(); err != nil {
		o.safeClose(client)
		return nil, fmt.Errorf("imap auth: %w", err)
	}

	folder := account.Folder
	if folder == "" {
		folder = defaultIMAPFolder
	}
	m := &imapMailbox{client: client, folder: folder, logger: o.logger}
	if err := m.selectFolder(); err != nil {
		o.safeClose(client)
		return nil, err
	}
	return m, nil
}

func (o *IMAPOpener) safeClose(client imapClient) {
	if client == nil {
		return
	}
	if err := client.Close(); err != nil && o.logger != nil {
		o.logger.Printf("imap close error: %v", err)
	}
}

func (o *IMAPOpener) defaultClientFactory(account Account) (imapClient, error) {
	if account.Host == "" {
		return nil, errors.New("imap account missing host")
	}
	port := account.Port
	if port == 0 {
		if useIMAPTLS(account.Type) {
			port = 993
		} else {
			port = 143
		}
	}
	opts := &imapclient.Options{Dialer: &net.Dialer{Timeout: o.dialTimeout}}
	addr := net.JoinHostPort(account.Host, strconv.Itoa(port))
	var client *imapclient.Client
	var err error
	if useIMAPTLS(account.Type) {
		client, err = imapclient.DialTLS(addr, opts)
	} else {
		client, err = imapclient.DialInsecure(addr, opts)
	}
	if err != nil {
		return nil, err
	}
	return &imapClientWrapper{Client: client}, nil
}

type imapMailbox struct {
	client imapClient
	folder string
	logger *log.Logger
	closed bool
}

func (m *imapMailbox) selectFolder() error {
	if _, err := m.client.Select(m.folder, nil).Wait(); err != nil {
		return fmt.Errorf("imap select %s: %w", m.folder, err)
	}
	return nil
}

// List re-selects the folder so messages delivered since the previous call
// are part of the search.
func (m *imapMailbox) List(ctx context.Context) ([]string, error) {
	if err := m.usable(ctx); err != nil {
		return nil, err
	}
	if err := m.selectFolder(); err != nil {
		return nil, err
	}
	searchData, err := m.client.UIDSearch(&imap.SearchCriteria{}, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("imap search: %w", err)
	}
	uids := searchData.AllUIDs()
	slices.Sort(uids)
	ids := make([]string, len(uids))
	for i, uid := range uids {
		ids[i] = strconv.FormatUint(uint64(uid), 10)
	}
	return ids, nil
}

func (m *imapMailbox) Fetch(ctx context.Context, id string) ([]byte, error) {
	if err := m.usable(ctx); err != nil {
		return nil, err
	}
	uid, err := parseUID(id)
	if err != nil {
		return nil, err
	}
	section := &imap.FetchItemBodySection{Peek: true}
	fetchOpts := &imap.FetchOptions{
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{section},
	}
	bufs, err := m.client.Fetch(imap.UIDSetNum(uid), fetchOpts).Collect()
	if err != nil {
		return nil, fmt.Errorf("imap fetch %s: %w", id, err)
	}
	for _, buf := range bufs {
		if buf.UID != uid {
			continue
		}
		if body := buf.FindBodySection(section); body != nil {
			return append([]byte(nil), body...), nil
		}
	}
	return nil, fmt.Errorf("imap fetch %s: %w", id, ErrMessageNotFound)
}

func (m *imapMailbox) Delete(ctx context.Context, id string) error {
	if err := m.usable(ctx); err != nil {
		return err
	}
	uid, err := parseUID(id)
	if err != nil {
		return err
	}
	store := &imap.StoreFlags{Op: imap.StoreFlagsAdd, Silent: true, Flags: []imap.Flag{imap.FlagDeleted}}
	if err := m.client.Store(imap.UIDSetNum(uid), store, nil).Close(); err != nil {
		return fmt.Errorf("imap store delete: %w", err)
	}
	if err := m.client.Expunge().Close(); err != nil {
		return fmt.Errorf("imap expunge: %w", err)
	}
	return nil
}

// Close logs out and releases the connection. It is safe to call twice.
func (m *imapMailbox) Close() error {
	if m.closed {
		return nil
	}
	m.closed = true
	logoutErr := m.client.Logout().Wait()
	if logoutErr != nil {
		logoutErr = fmt.Errorf("imap logout: %w", logoutErr)
	}
	if err := m.client.Close(); err != nil && m.logger != nil {
		m.logger.Printf("imap close error: %v", err)
	}
	return logoutErr
}

func (m *imapMailbox) usable(ctx context.Context) error {
	if m.closed {
		return errors.New("imap mailbox closed")
	}
	return ctx.Err()
}

func parseUID(id string) (imap.UID, error) {
	n, err := strconv.ParseUint(id, 10, 32)
	if err != nil || n == 0 {
		return 0, fmt.Errorf("imap: invalid uid %q", id)
	}
	return imap.UID(n), nil
}

type imapClientWrapper struct{ *imapclient.Client }

func (w *imapClientWrapper) Login(username, password string) commandWaiter {
	return w.Client.Login(username, password)
}
func (w *imapClientWrapper) Logout() commandWaiter { return w.Client.Logout() }
func (w *imapClientWrapper) Select(mailbox string, options *imap.SelectOptions) selectWaiter {
	return w.Client.Select(mailbox, options)
}
func (w *imapClientWrapper) UIDSearch(criteria *imap.SearchCriteria, options *imap.SearchOptions) searchWaiter {
	return w.Client.UIDSearch(criteria, options)
}
func (w *imapClientWrapper) Fetch(numSet imap.NumSet, options *imap.FetchOptions) fetchWaiter {
	return w.Client.Fetch(numSet, options)
}
func (w *imapClientWrapper) Store(numSet imap.NumSet, store *imap.StoreFlags, options *imap.StoreOptions) fetchWaiter {
	return w.Client.Store(numSet, store, options)
}
func (w *imapClientWrapper) Expunge() expungeWaiter { return w.Client.Expunge() }

func validateIMAPAccount(account Account) error {
	if account.Username == "" {
		return errors.New("imap account missing username")
	}
	if len(account.Password) == 0 {
		return errors.New("imap account missing password")
	}
	if !supportsIMAP(account.Type) {
		return fmt.Errorf("account type %s not supported by IMAP connector", account.Type)
	}
	return nil
}

func supportsIMAP(t string) bool {
	switch strings.ToLower(t) {
	case "imap", "imaps", "imap_tls", "imaps_tls", "imaptls":
		return true
	default:
		return false
	}
}

func useIMAPTLS(t string) bool {
	switch strings.ToLower(t) {
	case "imaps", "imap_tls", "imaps_tls", "imaptls":
		return true
	default:
		return false
	}
}
