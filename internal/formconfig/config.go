// Package formconfig loads the harness YAML: the form under test, its
// fields, expected validation messages and the mailboxes to verify.
package formconfig

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gotrs-io/formprobe/internal/email/inbound/connector"
)

const (
	DefaultEmailTimeout = 60 * time.Second

	FieldText     = "text"
	FieldTextarea = "textarea"
	FieldFile     = "file"
	FieldCheckbox = "checkbox"
	FieldSelect   = "select"
	FieldRadio    = "radio"
)

// Config represents the harness configuration after placeholder resolution.
type Config struct {
	URL             string                `mapstructure:"url"`
	SuccessSelector string                `mapstructure:"success_selector"`
	Locale          string                `mapstructure:"locale"`
	Seed            int64                 `mapstructure:"seed"`
	FormFields      []Field               `mapstructure:"form_fields"`
	Validation      Validation            `mapstructure:"validation"`
	EmailCheck      map[string]EmailCheck `mapstructure:"email_check"`

	source   string
	resolved []byte
}

// Field describes one form control.
type Field struct {
	Name      string `mapstructure:"name"`
	Type      string `mapstructure:"type"`
	Required  bool   `mapstructure:"required"`
	Value     string `mapstructure:"value"`
	Label     string `mapstructure:"label"`
	File      string `mapstructure:"file"`
	FileWrong string `mapstructure:"file-wrong"`
	Checked   bool   `mapstructure:"checked"`
	Exclude   bool   `mapstructure:"exclude"`
}

// Kind returns the lower-cased field type, "text" when unset.
func (f Field) Kind() string {
	kind := strings.ToLower(strings.TrimSpace(f.Type))
	if kind == "" {
		return FieldText
	}
	return kind
}

type Validation struct {
	GlobalError        string `mapstructure:"global_error"`
	GlobalSuccess      string `mapstructure:"global_success"`
	FieldError         string `mapstructure:"field_error"`
	FieldErrorFileType string `mapstructure:"field_error_file_type"`
}

// EmailCheck is one email_check section: which mailbox to poll and what the
// notification must contain.
type EmailCheck struct {
	IMAP            MailboxConfig `mapstructure:"imap"`
	SubjectContains string        `mapstructure:"subject_contains"`
	MustContain     []string      `mapstructure:"must_contain"`
	CheckFormFields []string      `mapstructure:"check_form_fields"`
	TimeoutSeconds  int           `mapstructure:"timeout_seconds"`
}

// Timeout returns the polling deadline, DefaultEmailTimeout when unset.
func (e EmailCheck) Timeout() time.Duration {
	if e.TimeoutSeconds <= 0 {
		return DefaultEmailTimeout
	}
	return time.Duration(e.TimeoutSeconds) * time.Second
}

// MailboxConfig holds the connection settings of an email_check section.
// The section is named imap for compatibility; protocol: pop3 selects POP3.
type MailboxConfig struct {
	Server   string `mapstructure:"server"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	UseSSL   *bool  `mapstructure:"use_ssl"`
	Protocol string `mapstructure:"protocol"`
	Folder   string `mapstructure:"folder"`
}

// TLS reports whether the connection is encrypted. Defaults to true.
func (m MailboxConfig) TLS() bool {
	return m.UseSSL == nil || *m.UseSSL
}

// Account converts the settings into a connector account.
func (m MailboxConfig) Account() connector.Account {
	protocol := strings.ToLower(strings.TrimSpace(m.Protocol))
	if protocol == "" {
		protocol = "imap"
	}
	if m.TLS() {
		protocol += "s"
	}
	return connector.Account{
		Type:     protocol,
		Host:     m.Server,
		Port:     m.Port,
		Username: m.Username,
		Password: []byte(m.Password),
		Folder:   m.Folder,
	}
}

// Field returns the field with the given name.
func (c *Config) Field(name string) (Field, bool) {
	for _, f := range c.FormFields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// EmailSection returns the email_check section with the given name,
// falling back to a case-insensitive match.
func (c *Config) EmailSection(name string) (EmailCheck, bool) {
	if check, ok := c.EmailCheck[name]; ok {
		return check, true
	}
	for key, check := range c.EmailCheck {
		if strings.EqualFold(key, name) {
			return check, true
		}
	}
	return EmailCheck{}, false
}

// RequiredFields returns the required fields in configuration order.
func (c *Config) RequiredFields() []Field {
	var out []Field
	for _, f := range c.FormFields {
		if f.Required {
			out = append(out, f)
		}
	}
	return out
}

// Source returns the path the configuration was loaded from, if any.
func (c *Config) Source() string { return c.source }

// ResolvedYAML returns the configuration document with every placeholder
// expanded, before environment overrides, preserving comments and order.
func (c *Config) ResolvedYAML() []byte {
	return append([]byte(nil), c.resolved...)
}

// Validate reports every structural problem in the configuration.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.URL) == "" {
		errs = append(errs, errors.New("url is required"))
	}
	seen := make(map[string]bool, len(c.FormFields))
	for i, f := range c.FormFields {
		if strings.TrimSpace(f.Name) == "" {
			errs = append(errs, fmt.Errorf("form_fields[%d]: name is required", i))
			continue
		}
		if seen[f.Name] {
			errs = append(errs, fmt.Errorf("form_fields[%d]: duplicate name %q", i, f.Name))
		}
		seen[f.Name] = true
		switch f.Kind() {
		case FieldText, FieldTextarea, FieldFile, FieldCheckbox, FieldSelect, FieldRadio,
			"email", "tel", "number", "url", "date", "password":
		default:
			errs = append(errs, fmt.Errorf("form_fields[%d] %s: unsupported type %q", i, f.Name, f.Type))
		}
	}
	for name, check := range c.EmailCheck {
		if strings.TrimSpace(check.SubjectContains) == "" {
			errs = append(errs, fmt.Errorf("email_check.%s: subject_contains is required", name))
		}
		if check.IMAP.Server == "" || check.IMAP.Username == "" {
			errs = append(errs, fmt.Errorf("email_check.%s: imap server and username are required", name))
		}
		if !connector.Supports(check.IMAP.Account().Type) {
			errs = append(errs, fmt.Errorf("email_check.%s: unsupported protocol %q", name, check.IMAP.Protocol))
		}
		for _, fieldName := range check.CheckFormFields {
			if !seen[fieldName] {
				errs = append(errs, fmt.Errorf("email_check.%s: check_form_fields names unknown field %q", name, fieldName))
			}
		}
	}
	return errors.Join(errs...)
}
