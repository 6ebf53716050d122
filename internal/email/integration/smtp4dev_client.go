//go:build integration

// Package integration exercises the mailbox verifier against a running
// smtp4dev instance.
package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/gotrs-io/formprobe/internal/email/inbound/connector"
)

const defaultAPIBase = "http://localhost:8025/api/v3"

// mailServer drives the smtp4dev v3 REST API to provision the mailbox a
// verifier reads and to observe what is left in it afterwards.
type mailServer struct {
	base string
	http *http.Client
}

type serverMailbox struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Login string `json:"login"`
}

type serverMessage struct {
	ID      string `json:"id"`
	Subject string `json:"subject"`
}

func newMailServer(base string) *mailServer {
	if base == "" {
		base = defaultAPIBase
	}
	return &mailServer{base: strings.TrimRight(base, "/"), http: http.DefaultClient}
}

// provision creates a mailbox whose credentials match the account and
// empties the server so earlier runs do not leak matches.
func (s *mailServer) provision(ctx context.Context, account connector.Account) (*serverMailbox, error) {
	payload := map[string]string{
		"name":     account.Username,
		"login":    account.Username,
		"password": string(account.Password),
	}
	var box serverMailbox
	if err := s.call(ctx, http.MethodPost, "/mailboxes", payload, &box); err != nil {
		return nil, fmt.Errorf("provision mailbox %s: %w", account.Username, err)
	}
	if err := s.call(ctx, http.MethodDelete, "/messages", nil, nil); err != nil {
		return nil, fmt.Errorf("purge messages: %w", err)
	}
	return &box, nil
}

func (s *mailServer) remove(ctx context.Context, box *serverMailbox) error {
	return s.call(ctx, http.MethodDelete, "/mailboxes/"+url.PathEscape(box.ID), nil, nil)
}

// subjects lists the subjects still stored in the mailbox.
func (s *mailServer) subjects(ctx context.Context, box *serverMailbox) ([]string, error) {
	var msgs []serverMessage
	if err := s.call(ctx, http.MethodGet, "/messages?mailboxId="+url.QueryEscape(box.ID), nil, &msgs); err != nil {
		return nil, err
	}
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Subject
	}
	return out, nil
}

func (s *mailServer) call(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.base+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("smtp4dev %s %s: %s (%s)", method, path, resp.Status, strings.TrimSpace(string(detail)))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
