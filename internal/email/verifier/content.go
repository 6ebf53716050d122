package verifier

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/text/cases"

	"github.com/gotrs-io/formprobe/internal/email/message"
	"github.com/gotrs-io/formprobe/internal/formconfig"
)

// MismatchError lists every expectation the matched email failed.
type MismatchError struct {
	Subject string
	Missing []string
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("email %q failed content checks: %s", e.Subject, strings.Join(e.Missing, "; "))
}

// CriteriaFromCheck converts an email_check section.
func CriteriaFromCheck(check formconfig.EmailCheck) Criteria {
	return Criteria{
		SubjectContains: check.SubjectContains,
		MustContain:     check.MustContain,
		CheckFormFields: check.CheckFormFields,
		Timeout:         check.Timeout(),
	}
}

// VerifyContent waits for an email whose subject matches, then checks that
// every MustContain string is in the body and every required field named by
// CheckFormFields made it into the email. A file field needs at least one
// attachment; any other field needs its value in the body. On success the
// message is deleted from the mailbox.
func (v *Verifier) VerifyContent(ctx context.Context, c Criteria, fields []formconfig.Field) error {
	if v.settleDelay > 0 {
		if err := v.sleep(ctx, v.settleDelay); err != nil {
			return err
		}
	}

	found, err := v.WaitForEmail(ctx, Criteria{SubjectContains: c.SubjectContains, Timeout: c.Timeout})
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: email with subject containing %q not received within %s", ErrNotFound, c.SubjectContains, c.timeout())
	}
	email, err := v.FetchBySubject(ctx, c.SubjectContains)
	if err != nil {
		return err
	}

	if missing := missingContent(email, c, fields); len(missing) > 0 {
		return &MismatchError{Subject: email.Subject, Missing: missing}
	}
	return v.deleteLast(ctx)
}

func missingContent(email *message.ParsedEmail, c Criteria, fields []formconfig.Field) []string {
	var missing []string
	body := foldText(email.Body)
	for _, text := range c.MustContain {
		if !body.contains(text) {
			missing = append(missing, fmt.Sprintf("expected %q in email body", text))
		}
	}
	for _, name := range c.CheckFormFields {
		field, ok := lookupField(fields, name)
		if !ok {
			missing = append(missing, fmt.Sprintf("field %q not found in form_fields", name))
			continue
		}
		if !field.Required {
			continue
		}
		if field.Kind() == formconfig.FieldFile {
			if len(email.Attachments) == 0 {
				missing = append(missing, fmt.Sprintf("expected file attachment for %q", name))
			}
			continue
		}
		expected := strings.TrimSpace(field.Value)
		if expected != "" && !body.contains(expected) {
			missing = append(missing, fmt.Sprintf("expected value %q for field %q in email body", expected, name))
		}
	}
	return missing
}

func (v *Verifier) deleteLast(ctx context.Context) error {
	if v.mailbox == nil || v.lastID == "" {
		return nil
	}
	id := v.lastID
	if err := v.mailbox.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete matched email %s: %w", id, err)
	}
	v.lastID = ""
	v.logf("verifier: deleted message %s", id)
	return nil
}

func lookupField(fields []formconfig.Field, name string) (formconfig.Field, bool) {
	for _, f := range fields {
		if f.Name == name {
			return f, true
		}
	}
	return formconfig.Field{}, false
}

// foldedText is a haystack folded once for repeated case-insensitive
// lookups. It reuses one Caser, so it is not safe for concurrent use.
type foldedText struct {
	caser cases.Caser
	text  string
}

func foldText(s string) foldedText {
	caser := cases.Fold()
	return foldedText{caser: caser, text: caser.String(s)}
}

func (f foldedText) contains(substr string) bool {
	return strings.Contains(f.text, f.caser.String(substr))
}

// containsFold reports whether substr is within s under Unicode case folding.
func containsFold(s, substr string) bool {
	return foldText(s).contains(substr)
}
