package connector

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/knadh/go-pop3"
	"github.com/stretchr/testify/require"
)

type pop3Dialer struct {
	conns []*fakePOP3Conn
	dials int
}

func (d *pop3Dialer) factory(Account) (pop3Connection, error) {
	if d.dials >= len(d.conns) {
		return nil, errors.New("no more sessions")
	}
	conn := d.conns[d.dials]
	d.dials++
	return conn, nil
}

func openFakePOP3(t *testing.T, d *pop3Dialer) Mailbox {
	t.Helper()
	o := NewPOP3Opener(withPOP3ConnFactory(d.factory))
	mb, err := o.Open(context.Background(), Account{Type: "pop3s", Host: "mail.example", Port: 995, Username: "agent", Password: []byte("secret")})
	require.NoError(t, err)
	return mb
}

func TestPOP3MailboxListAndFetch(t *testing.T) {
	conn := &fakePOP3Conn{
		uidl: []pop3.MessageID{
			{ID: 1, UID: "uid-1", Size: 123},
			{ID: 2, Size: 456},
		},
		raw: map[int][]byte{1: []byte("first"), 2: []byte("second")},
	}
	mb := openFakePOP3(t, &pop3Dialer{conns: []*fakePOP3Conn{conn}})

	ids, err := mb.List(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"uid-1", "2"}, ids)

	raw, err := mb.Fetch(context.Background(), "uid-1")
	require.NoError(t, err)
	require.Equal(t, []byte("first"), raw)

	raw, err = mb.Fetch(context.Background(), "2")
	require.NoError(t, err)
	require.Equal(t, []byte("second"), raw)

	_, err = mb.Fetch(context.Background(), "uid-9")
	require.ErrorIs(t, err, ErrMessageNotFound)
}

func TestPOP3MailboxSecondListStartsNewSession(t *testing.T) {
	first := &fakePOP3Conn{uidl: []pop3.MessageID{{ID: 1, UID: "a"}}}
	second := &fakePOP3Conn{uidl: []pop3.MessageID{{ID: 1, UID: "a"}, {ID: 2, UID: "b"}}}
	d := &pop3Dialer{conns: []*fakePOP3Conn{first, second}}
	mb := openFakePOP3(t, d)

	ids, err := mb.List(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"a"}, ids)

	ids, err = mb.List(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, ids)
	require.Equal(t, 2, d.dials)
	require.Equal(t, 1, first.quitCalls)
}

func TestPOP3MailboxDeleteCommitsWithQuit(t *testing.T) {
	conn := &fakePOP3Conn{uidl: []pop3.MessageID{{ID: 1, UID: "a"}, {ID: 2, UID: "b"}}}
	mb := openFakePOP3(t, &pop3Dialer{conns: []*fakePOP3Conn{conn}})

	_, err := mb.List(context.Background())
	require.NoError(t, err)
	require.NoError(t, mb.Delete(context.Background(), "b"))
	require.Equal(t, []int{2}, conn.deleted)
	require.Equal(t, 1, conn.quitCalls)

	// the session is gone until the next List
	_, err = mb.Fetch(context.Background(), "a")
	require.ErrorIs(t, err, ErrMessageNotFound)
	require.NoError(t, mb.Close())
	require.Equal(t, 1, conn.quitCalls)
}

func TestPOP3MailboxDeleteError(t *testing.T) {
	conn := &fakePOP3Conn{uidl: []pop3.MessageID{{ID: 1, UID: "a"}}, deleErr: errors.New("locked")}
	mb := openFakePOP3(t, &pop3Dialer{conns: []*fakePOP3Conn{conn}})
	_, err := mb.List(context.Background())
	require.NoError(t, err)
	require.ErrorContains(t, mb.Delete(context.Background(), "a"), "pop3 delete 1")
}

func TestPOP3MailboxUidlError(t *testing.T) {
	conn := &fakePOP3Conn{uidlErr: errors.New("boom")}
	mb := openFakePOP3(t, &pop3Dialer{conns: []*fakePOP3Conn{conn}})
	_, err := mb.List(context.Background())
	require.ErrorContains(t, err, "pop3 uidl")
}

func TestPOP3OpenerReturnsAuthError(t *testing.T) {
	conn := &fakePOP3Conn{authErr: errors.New("bad creds")}
	o := NewPOP3Opener(withPOP3ConnFactory(func(Account) (pop3Connection, error) { return conn, nil }))
	_, err := o.Open(context.Background(), Account{Type: "pop3", Host: "mail.example", Username: "agent", Password: []byte("secret")})
	require.ErrorContains(t, err, "pop3 auth")
	require.Equal(t, 1, conn.quitCalls)
}

func TestPOP3OpenerValidation(t *testing.T) {
	o := NewPOP3Opener()
	for _, acc := range []Account{
		{Type: "pop3", Password: []byte("pw")},
		{Type: "pop3", Username: "user"},
		{Type: "imap", Username: "user", Password: []byte("pw")},
	} {
		_, err := o.Open(context.Background(), acc)
		require.Error(t, err, "account %+v", acc)
	}
}

type fakePOP3Conn struct {
	uidl      []pop3.MessageID
	raw       map[int][]byte
	deleted   []int
	quitCalls int

	authErr error
	uidlErr error
	retrErr map[int]error
	deleErr error
	quitErr error
}

func (f *fakePOP3Conn) Auth(_, _ string) error {
	return f.authErr
}

func (f *fakePOP3Conn) Quit() error {
	f.quitCalls++
	return f.quitErr
}

func (f *fakePOP3Conn) Uidl(_ int) ([]pop3.MessageID, error) {
	if f.uidlErr != nil {
		return nil, f.uidlErr
	}
	out := make([]pop3.MessageID, len(f.uidl))
	copy(out, f.uidl)
	return out, nil
}

func (f *fakePOP3Conn) RetrRaw(id int) (*bytes.Buffer, error) {
	if err, ok := f.retrErr[id]; ok {
		return nil, err
	}
	payload, ok := f.raw[id]
	if !ok {
		return nil, fmt.Errorf("unknown message %d", id)
	}
	return bytes.NewBuffer(payload), nil
}

func (f *fakePOP3Conn) Dele(ids ...int) error {
	if f.deleErr != nil {
		return f.deleErr
	}
	f.deleted = append(f.deleted, ids...)
	return nil
}
