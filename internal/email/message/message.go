// Package message turns raw RFC 5322 payloads into the subject, plain-text
// body and attachment names used by mailbox assertions.
package message

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log"
	"mime"
	stdmail "net/mail"
	"strings"
	"time"

	gomessage "github.com/emersion/go-message"
	gomail "github.com/emersion/go-message/mail"
	htmlcharset "golang.org/x/net/html/charset"
)

const defaultPartLimit = 10 * 1024 * 1024

// ErrEmpty is returned for a zero-length payload.
var ErrEmpty = errors.New("empty message")

func init() {
	gomessage.CharsetReader = func(charset string, input io.Reader) (io.Reader, error) {
		return htmlcharset.NewReaderLabel(charset, input)
	}
}

// ParsedEmail is the decoded view of one fetched message.
type ParsedEmail struct {
	Subject     string
	Body        string
	Attachments []string

	From      string
	MessageID string
	Date      time.Time
}

// Parser decodes raw messages. The zero value is not usable; call NewParser.
type Parser struct {
	logger    *log.Logger
	partLimit int64
}

// Option customizes a Parser.
type Option func(*Parser)

// WithLogger overrides the logger used for skipped-part diagnostics.
func WithLogger(logger *log.Logger) Option {
	return func(p *Parser) {
		p.logger = logger
	}
}

// WithPartLimit caps how many bytes are read from each text part.
func WithPartLimit(limit int64) Option {
	return func(p *Parser) {
		if limit > 0 {
			p.partLimit = limit
		}
	}
}

// NewParser builds a parser with the provided options.
func NewParser(opts ...Option) *Parser {
	p := &Parser{logger: log.Default(), partLimit: defaultPartLimit}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// Parse decodes raw with a default parser.
func Parse(raw []byte) (*ParsedEmail, error) {
	return NewParser().Parse(raw)
}

// Parse decodes raw. For a multipart message Body is the concatenation of
// every text/plain part that is not an attachment and Attachments lists the
// attachment filenames in message order. For a single-part message Body is
// the whole decoded payload. Parts that cannot be decoded are skipped.
func (p *Parser) Parse(raw []byte) (*ParsedEmail, error) {
	if len(raw) == 0 {
		return nil, ErrEmpty
	}
	entity, err := gomessage.Read(bytes.NewReader(raw))
	if err != nil && !decodable(err) {
		p.logf("message: structured parse failed: %v", err)
		return p.legacyParse(raw)
	}

	header := gomail.Header{Header: entity.Header}
	out := &ParsedEmail{
		Subject: subjectFromHeader(header),
		From:    addressFromHeader(header),
	}
	if id, idErr := header.MessageID(); idErr == nil {
		out.MessageID = id
	}
	if date, dateErr := header.Date(); dateErr == nil {
		out.Date = date
	}

	if mr := entity.MultipartReader(); mr != nil {
		var body strings.Builder
		p.walk(mr, &body, &out.Attachments)
		out.Body = body.String()
		return out, nil
	}
	if gomessage.IsUnknownCharset(err) {
		p.logf("message: skipping body: %v", err)
		return out, nil
	}
	text, readErr := p.readText(entity.Body)
	if readErr != nil {
		p.logf("message: read body failed: %v", readErr)
		return out, nil
	}
	out.Body = text
	return out, nil
}

func (p *Parser) walk(mr gomessage.MultipartReader, body *strings.Builder, attachments *[]string) {
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return
		}
		if err != nil && (part == nil || !decodable(err)) {
			p.logf("message: read part failed: %v", err)
			return
		}

		if nested := part.MultipartReader(); nested != nil {
			p.walk(nested, body, attachments)
			continue
		}

		disposition := strings.ToLower(part.Header.Get("Content-Disposition"))
		if strings.Contains(disposition, "attachment") {
			if name := attachmentName(part.Header); name != "" {
				*attachments = append(*attachments, name)
			}
			continue
		}
		if mediaType(part.Header) != "text/plain" {
			continue
		}
		if gomessage.IsUnknownCharset(err) {
			p.logf("message: skipping text part: %v", err)
			continue
		}
		text, readErr := p.readText(part.Body)
		if readErr != nil {
			p.logf("message: read part body failed: %v", readErr)
			continue
		}
		body.WriteString(text)
	}
}

func (p *Parser) readText(r io.Reader) (string, error) {
	buf, err := io.ReadAll(io.LimitReader(r, p.partLimit))
	if err != nil {
		return "", err
	}
	return strings.ToValidUTF8(string(buf), "\uFFFD"), nil
}

// legacyParse handles payloads go-message rejects. Only headers and the
// undecoded body are available.
func (p *Parser) legacyParse(raw []byte) (*ParsedEmail, error) {
	msg, err := stdmail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parse message: %w", err)
	}
	out := &ParsedEmail{
		Subject:   decodeHeader(msg.Header.Get("Subject")),
		MessageID: strings.Trim(strings.TrimSpace(msg.Header.Get("Message-Id")), "<>"),
	}
	if addr, addrErr := stdmail.ParseAddress(msg.Header.Get("From")); addrErr == nil {
		out.From = addr.Address
	}
	if date, dateErr := msg.Header.Date(); dateErr == nil {
		out.Date = date
	}
	text, readErr := p.readText(msg.Body)
	if readErr != nil {
		p.logf("message: read body failed: %v", readErr)
		return out, nil
	}
	out.Body = text
	return out, nil
}

func (p *Parser) logf(format string, args ...any) {
	if p == nil || p.logger == nil {
		return
	}
	p.logger.Printf(format, args...)
}

// decodable reports errors after which go-message still returns a usable entity.
func decodable(err error) bool {
	return gomessage.IsUnknownCharset(err) || gomessage.IsUnknownEncoding(err)
}

func subjectFromHeader(header gomail.Header) string {
	if subject, err := header.Subject(); err == nil {
		return strings.ToValidUTF8(subject, "\uFFFD")
	}
	return decodeHeader(header.Get("Subject"))
}

func addressFromHeader(header gomail.Header) string {
	if list, err := header.AddressList("From"); err == nil && len(list) > 0 {
		return strings.TrimSpace(list[0].Address)
	}
	return strings.TrimSpace(header.Get("From"))
}

func attachmentName(header gomessage.Header) string {
	h := gomail.AttachmentHeader{Header: header}
	name, err := h.Filename()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(name)
}

// mediaType defaults to text/plain when Content-Type is absent or invalid.
func mediaType(header gomessage.Header) string {
	mt, _, err := header.ContentType()
	if err != nil || strings.TrimSpace(mt) == "" {
		return "text/plain"
	}
	return strings.ToLower(mt)
}

func decodeHeader(value string) string {
	dec := mime.WordDecoder{CharsetReader: gomessage.CharsetReader}
	decoded, err := dec.DecodeHeader(value)
	if err != nil {
		return strings.ToValidUTF8(value, "\uFFFD")
	}
	return strings.ToValidUTF8(decoded, "\uFFFD")
}
