package message

import (
	"io"
	"log"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rawMessage(lines ...string) []byte {
	return []byte(strings.Join(lines, "\r\n"))
}

func quietParser() *Parser {
	return NewParser(WithLogger(log.New(io.Discard, "", 0)))
}

func TestParseMultipartWithAttachment(t *testing.T) {
	raw := rawMessage(
		"From: Forms <noreply@example.test>",
		"To: qa@example.test",
		"Subject: New application",
		"Message-ID: <abc123@example.test>",
		"Date: Tue, 02 Jan 2024 15:04:05 +0000",
		"MIME-Version: 1.0",
		`Content-Type: multipart/mixed; boundary="BOUNDARY"`,
		"",
		"--BOUNDARY",
		"Content-Type: text/plain; charset=utf-8",
		"",
		"Hi",
		"--BOUNDARY",
		`Content-Type: application/pdf; name="cv.pdf"`,
		`Content-Disposition: attachment; filename="cv.pdf"`,
		"Content-Transfer-Encoding: base64",
		"",
		"JVBERi0xLjQK",
		"--BOUNDARY--",
		"",
	)

	parsed, err := quietParser().Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "New application", parsed.Subject)
	assert.Equal(t, "Hi", parsed.Body)
	assert.Equal(t, []string{"cv.pdf"}, parsed.Attachments)
	assert.Equal(t, "noreply@example.test", parsed.From)
	assert.Equal(t, "abc123@example.test", parsed.MessageID)
	assert.True(t, parsed.Date.Equal(time.Date(2024, 1, 2, 15, 4, 5, 0, time.UTC)))
}

func TestParseEncodedSubject(t *testing.T) {
	raw := rawMessage(
		"Subject: =?UTF-8?B?WmHFvMOzxYLEhyBnxJnFm2zEhQ==?=",
		"Content-Type: text/plain; charset=utf-8",
		"",
		"body",
	)
	parsed, err := quietParser().Parse(raw)
	require.NoError(t, err)
	require.Equal(t, "Zażółć gęślą", parsed.Subject)
	require.Equal(t, "body", parsed.Body)
	require.Empty(t, parsed.Attachments)
}

func TestParseSinglePartDecodesTransferEncodingAndCharset(t *testing.T) {
	raw := rawMessage(
		"Subject: Plain",
		"Content-Type: text/plain; charset=iso-8859-2",
		"Content-Transfer-Encoding: quoted-printable",
		"",
		"Za=BF=F3=B3=E6 =",
		"like a pro",
	)
	parsed, err := quietParser().Parse(raw)
	require.NoError(t, err)
	require.Equal(t, "Zażółć like a pro", parsed.Body)
}

func TestParseSinglePartHTMLIsWholePayload(t *testing.T) {
	raw := rawMessage(
		"Subject: Html only",
		"Content-Type: text/html; charset=utf-8",
		"",
		"<p>Thanks</p>",
	)
	parsed, err := quietParser().Parse(raw)
	require.NoError(t, err)
	require.Equal(t, "<p>Thanks</p>", parsed.Body)
}

func TestParseConcatenatesNestedPlainParts(t *testing.T) {
	raw := rawMessage(
		"Subject: Nested",
		`Content-Type: multipart/mixed; boundary="outer"`,
		"",
		"--outer",
		`Content-Type: multipart/alternative; boundary="inner"`,
		"",
		"--inner",
		"Content-Type: text/plain",
		"",
		"first ",
		"--inner",
		"Content-Type: text/html",
		"",
		"<b>ignored</b>",
		"--inner--",
		"--outer",
		"",
		"second",
		"--outer",
		"Content-Type: text/plain",
		`Content-Disposition: attachment; filename="notes.txt"`,
		"",
		"not body",
		"--outer",
		"Content-Type: image/png",
		"Content-Disposition: attachment",
		"",
		"nameless",
		"--outer--",
		"",
	)
	parsed, err := quietParser().Parse(raw)
	require.NoError(t, err)
	require.Equal(t, "first second", parsed.Body)
	require.Equal(t, []string{"notes.txt"}, parsed.Attachments)
}

func TestParseSkipsPartWithUnknownCharset(t *testing.T) {
	raw := rawMessage(
		"Subject: Charsets",
		`Content-Type: multipart/mixed; boundary="b"`,
		"",
		"--b",
		"Content-Type: text/plain; charset=x-no-such-charset",
		"",
		"garbled",
		"--b",
		"Content-Type: text/plain; charset=utf-8",
		"",
		"readable",
		"--b--",
		"",
	)
	parsed, err := quietParser().Parse(raw)
	require.NoError(t, err)
	require.Equal(t, "readable", parsed.Body)
}

func TestParseReplacesInvalidUTF8(t *testing.T) {
	raw := rawMessage(
		"Subject: Bytes",
		"Content-Type: text/plain; charset=utf-8",
		"",
		"ok \xff\xfe done",
	)
	parsed, err := quietParser().Parse(raw)
	require.NoError(t, err)
	require.Equal(t, "ok \uFFFD done", parsed.Body)
}

func TestParseEmpty(t *testing.T) {
	_, err := Parse(nil)
	require.ErrorIs(t, err, ErrEmpty)
}
