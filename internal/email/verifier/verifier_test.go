package verifier

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gotrs-io/formprobe/internal/email/inbound/connector"
	"github.com/gotrs-io/formprobe/internal/formconfig"
)

func plainEmail(subject, body string) []byte {
	return []byte(strings.Join([]string{
		"From: Forms <noreply@example.test>",
		"Subject: " + subject,
		"Content-Type: text/plain; charset=utf-8",
		"",
		body,
	}, "\r\n"))
}

func emailWithAttachment(subject, body, filename string) []byte {
	return []byte(strings.Join([]string{
		"Subject: " + subject,
		`Content-Type: multipart/mixed; boundary="b1"`,
		"",
		"--b1",
		"Content-Type: text/plain",
		"",
		body,
		"--b1",
		"Content-Type: application/pdf",
		`Content-Disposition: attachment; filename="` + filename + `"`,
		"",
		"%PDF",
		"--b1--",
		"",
	}, "\r\n"))
}

type fakeMessage struct {
	id  string
	raw []byte
}

type fakeMailbox struct {
	messages  []fakeMessage
	listErr   error
	fetchErr  map[string]error
	deleteErr error
	deleted   []string
	lists     int
	closed    int
}

func (m *fakeMailbox) List(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.lists++
	if m.listErr != nil {
		return nil, m.listErr
	}
	ids := make([]string, len(m.messages))
	for i, msg := range m.messages {
		ids[i] = msg.id
	}
	return ids, nil
}

func (m *fakeMailbox) Fetch(_ context.Context, id string) ([]byte, error) {
	if err := m.fetchErr[id]; err != nil {
		return nil, err
	}
	for _, msg := range m.messages {
		if msg.id == id {
			return msg.raw, nil
		}
	}
	return nil, connector.ErrMessageNotFound
}

func (m *fakeMailbox) Delete(_ context.Context, id string) error {
	if m.deleteErr != nil {
		return m.deleteErr
	}
	m.deleted = append(m.deleted, id)
	kept := m.messages[:0]
	for _, msg := range m.messages {
		if msg.id != id {
			kept = append(kept, msg)
		}
	}
	m.messages = kept
	return nil
}

func (m *fakeMailbox) Close() error {
	m.closed++
	return nil
}

func (m *fakeMailbox) deliver(id string, raw []byte) {
	m.messages = append(m.messages, fakeMessage{id: id, raw: raw})
}

type fakeOpener struct {
	mailbox *fakeMailbox
	err     error
	opens   int
}

func (o *fakeOpener) Name() string { return "fake" }

func (o *fakeOpener) Open(context.Context, connector.Account) (connector.Mailbox, error) {
	o.opens++
	if o.err != nil {
		return nil, o.err
	}
	return o.mailbox, nil
}

// virtualClock advances only when the verifier sleeps.
type virtualClock struct {
	start   time.Time
	now     time.Time
	slept   []time.Duration
	onSleep func(n int)
}

func newVirtualClock() *virtualClock {
	start := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	return &virtualClock{start: start, now: start}
}

func (c *virtualClock) Now() time.Time { return c.now }

func (c *virtualClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.now = c.now.Add(d)
	c.slept = append(c.slept, d)
	if c.onSleep != nil {
		c.onSleep(len(c.slept))
	}
	return nil
}

func (c *virtualClock) Elapsed() time.Duration { return c.now.Sub(c.start) }

func newTestVerifier(t *testing.T, opener *fakeOpener, clock *virtualClock, opts ...Option) *Verifier {
	t.Helper()
	base := []Option{
		WithOpener(opener),
		WithClock(clock.Now),
		WithSleep(clock.Sleep),
		WithLogger(log.New(io.Discard, "", 0)),
	}
	v, err := New(connector.Account{Type: "imaps", Host: "imap.example.test", Username: "qa", Password: []byte("pw")}, append(base, opts...)...)
	require.NoError(t, err)
	return v
}

func autoresponderInbox() *fakeMailbox {
	mb := &fakeMailbox{}
	mb.deliver("1", plainEmail("Autoresponder: Thanks", "Hello, we received your application. Link: https://example.com"))
	return mb
}

func TestWaitForEmailFindsMatchingSubject(t *testing.T) {
	clock := newVirtualClock()
	opener := &fakeOpener{mailbox: autoresponderInbox()}
	v := newTestVerifier(t, opener, clock)

	found, err := v.WaitForEmail(context.Background(), Criteria{SubjectContains: "Autoresponder", Timeout: 5 * time.Second})
	require.NoError(t, err)
	require.True(t, found)
	require.Zero(t, clock.Elapsed())
	require.Equal(t, "Autoresponder: Thanks", v.LastMatched().Subject)
}

func TestWaitForEmailTimesOut(t *testing.T) {
	clock := newVirtualClock()
	opener := &fakeOpener{mailbox: autoresponderInbox()}
	v := newTestVerifier(t, opener, clock)

	found, err := v.WaitForEmail(context.Background(), Criteria{SubjectContains: "NoSuchSubject", Timeout: 2 * time.Second})
	require.NoError(t, err)
	require.False(t, found)
	require.Equal(t, 2*time.Second, clock.Elapsed())
	require.Nil(t, v.LastMatched())
}

func TestWaitForEmailBodyCriteriaCaseInsensitive(t *testing.T) {
	clock := newVirtualClock()
	v := newTestVerifier(t, &fakeOpener{mailbox: autoresponderInbox()}, clock)

	found, err := v.WaitForEmail(context.Background(), Criteria{
		SubjectContains: "autoRESPONDER",
		MustContain:     []string{"RECEIVED YOUR APPLICATION", "https://example.com"},
		Timeout:         time.Second,
	})
	require.NoError(t, err)
	require.True(t, found)

	found, err = v.WaitForEmail(context.Background(), Criteria{MustContain: []string{"rejected"}, Timeout: time.Second})
	require.NoError(t, err)
	require.False(t, found)
}

func TestWaitForEmailEmptyCriteriaMatchesAnything(t *testing.T) {
	v := newTestVerifier(t, &fakeOpener{mailbox: autoresponderInbox()}, newVirtualClock())
	found, err := v.WaitForEmail(context.Background(), Criteria{})
	require.NoError(t, err)
	require.True(t, found)
}

func TestWaitForEmailScansNewestFirst(t *testing.T) {
	mb := &fakeMailbox{}
	mb.deliver("1", plainEmail("Order confirmation", "old"))
	mb.deliver("2", plainEmail("Order confirmation", "new"))
	v := newTestVerifier(t, &fakeOpener{mailbox: mb}, newVirtualClock())

	found, err := v.WaitForEmail(context.Background(), Criteria{SubjectContains: "order"})
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "new", v.LastMatched().Body)
}

func TestWaitForEmailPicksUpLateArrival(t *testing.T) {
	clock := newVirtualClock()
	mb := &fakeMailbox{}
	opener := &fakeOpener{mailbox: mb}
	clock.onSleep = func(n int) {
		if n == 2 {
			mb.deliver("7", plainEmail("Autoresponder: Thanks", "late"))
		}
	}
	v := newTestVerifier(t, opener, clock)

	found, err := v.WaitForEmail(context.Background(), Criteria{SubjectContains: "Autoresponder", Timeout: 10 * time.Second})
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, 4*time.Second, clock.Elapsed())
	require.Equal(t, 3, mb.lists)
	require.Equal(t, 1, opener.opens, "session is reused across polls")
}

func TestWaitForEmailClampsLastSleepToDeadline(t *testing.T) {
	clock := newVirtualClock()
	v := newTestVerifier(t, &fakeOpener{mailbox: &fakeMailbox{}}, clock)

	found, err := v.WaitForEmail(context.Background(), Criteria{Timeout: 5 * time.Second})
	require.NoError(t, err)
	require.False(t, found)
	require.Equal(t, []time.Duration{2 * time.Second, 2 * time.Second, time.Second}, clock.slept)
}

func TestWaitForEmailSkipsBrokenMessages(t *testing.T) {
	mb := &fakeMailbox{fetchErr: map[string]error{"3": errors.New("connection reset on fetch")}}
	mb.deliver("1", plainEmail("Autoresponder: Thanks", "good"))
	mb.deliver("2", nil)
	mb.deliver("3", plainEmail("Autoresponder: newer", "unreachable"))
	v := newTestVerifier(t, &fakeOpener{mailbox: mb}, newVirtualClock())

	found, err := v.WaitForEmail(context.Background(), Criteria{SubjectContains: "Autoresponder"})
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "good", v.LastMatched().Body)
}

func TestConnectionErrorsAreFatal(t *testing.T) {
	opener := &fakeOpener{err: errors.New("imap auth: invalid credentials")}
	v := newTestVerifier(t, opener, newVirtualClock())

	_, err := v.WaitForEmail(context.Background(), Criteria{SubjectContains: "x"})
	require.ErrorIs(t, err, ErrConnection)
	require.ErrorContains(t, err, "invalid credentials")

	require.ErrorIs(t, v.Connect(context.Background()), ErrConnection)
	require.Equal(t, 1, opener.opens)
}

func TestListErrorPropagates(t *testing.T) {
	mb := &fakeMailbox{listErr: errors.New("imap search: connection closed")}
	v := newTestVerifier(t, &fakeOpener{mailbox: mb}, newVirtualClock())

	_, err := v.WaitForEmail(context.Background(), Criteria{})
	require.ErrorIs(t, err, ErrConnection)
}

func TestConnectIsIdempotent(t *testing.T) {
	opener := &fakeOpener{mailbox: &fakeMailbox{}}
	v := newTestVerifier(t, opener, newVirtualClock())
	require.NoError(t, v.Connect(context.Background()))
	require.NoError(t, v.Connect(context.Background()))
	require.Equal(t, 1, opener.opens)

	require.NoError(t, v.Close())
	require.NoError(t, v.Close())
	require.Equal(t, 1, opener.mailbox.closed)
}

func TestWaitForEmailHonoursCancellation(t *testing.T) {
	clock := newVirtualClock()
	ctx, cancel := context.WithCancel(context.Background())
	clock.onSleep = func(int) { cancel() }
	v := newTestVerifier(t, &fakeOpener{mailbox: &fakeMailbox{}}, clock)

	_, err := v.WaitForEmail(ctx, Criteria{Timeout: time.Minute})
	require.ErrorIs(t, err, context.Canceled)
}

func TestFetchBySubject(t *testing.T) {
	mb := autoresponderInbox()
	mb.deliver("2", plainEmail("Newsletter", "unrelated"))
	v := newTestVerifier(t, &fakeOpener{mailbox: mb}, newVirtualClock())

	email, err := v.FetchBySubject(context.Background(), "thanks")
	require.NoError(t, err)
	require.Equal(t, "Autoresponder: Thanks", email.Subject)

	_, err = v.FetchBySubject(context.Background(), "invoice")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestNewRejectsUnknownAccountType(t *testing.T) {
	_, err := New(connector.Account{Type: "carrier-pigeon"})
	require.Error(t, err)
}

func TestSleepContext(t *testing.T) {
	require.NoError(t, sleepContext(context.Background(), time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, sleepContext(ctx, time.Hour), context.Canceled)
}

func ExampleMismatchError() {
	err := &MismatchError{Subject: "New application", Missing: []string{`expected file attachment for "resume"`}}
	fmt.Println(err)
	// Output: email "New application" failed content checks: expected file attachment for "resume"
}

func TestCriteriaFromCheck(t *testing.T) {
	c := CriteriaFromCheck(formconfig.EmailCheck{SubjectContains: "Thanks", MustContain: []string{"a"}, CheckFormFields: []string{"b"}})
	assert.Equal(t, "Thanks", c.SubjectContains)
	assert.Equal(t, []string{"a"}, c.MustContain)
	assert.Equal(t, []string{"b"}, c.CheckFormFields)
	assert.Equal(t, formconfig.DefaultEmailTimeout, c.Timeout)
}
