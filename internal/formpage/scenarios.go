package formpage

import (
	"context"
	"fmt"
	"strings"

	"github.com/gotrs-io/formprobe/internal/formconfig"
)

// Scenario names a validation run of the form.
type Scenario string

const (
	ScenarioConsentGate   Scenario = "consent-gate"
	ScenarioRequiredEmpty Scenario = "required-empty"
	ScenarioMissingFile   Scenario = "missing-file"
	ScenarioWrongFileType Scenario = "wrong-file-type"
)

// Scenarios lists every validation run in execution order.
var Scenarios = []Scenario{
	ScenarioConsentGate,
	ScenarioRequiredEmpty,
	ScenarioMissingFile,
	ScenarioWrongFileType,
}

// CheckError reports the failed expectations of one scenario.
type CheckError struct {
	Scenario Scenario
	Problems []string
}

func (e *CheckError) Error() string {
	return fmt.Sprintf("%s: %s", e.Scenario, strings.Join(e.Problems, "; "))
}

// Validate opens the form and runs one scenario against it. A failed
// expectation is reported as *CheckError; driver failures are returned as is.
func (p *Page) Validate(ctx context.Context, s Scenario) error {
	if err := p.Open(); err != nil {
		return err
	}
	var problems []string
	var err error
	switch s {
	case ScenarioConsentGate:
		problems, err = p.consentGate()
	case ScenarioRequiredEmpty:
		problems, err = p.requiredEmpty(ctx)
	case ScenarioMissingFile:
		problems, err = p.missingFile(ctx)
	case ScenarioWrongFileType:
		problems, err = p.wrongFileType(ctx)
	default:
		return fmt.Errorf("unknown scenario %q", s)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", s, err)
	}
	if len(problems) > 0 {
		return &CheckError{Scenario: s, Problems: problems}
	}
	p.logf("%s passed", s)
	return nil
}

// SubmitRequired fills the required fields with valid data, submits and
// waits for the success indicator.
func (p *Page) SubmitRequired(ctx context.Context) error {
	if err := p.Open(); err != nil {
		return err
	}
	if err := p.Fill(FillOptions{RequiredOnly: true, Click: true}); err != nil {
		return err
	}
	if err := p.d.Locate(SubmitSelector).Click(); err != nil {
		return fmt.Errorf("submit: %w", err)
	}
	if err := p.WaitForSuccess(DefaultSuccessTimeout); err != nil {
		return err
	}
	if want := p.cfg.Validation.GlobalSuccess; want != "" {
		ok, err := p.bodyContains(want)
		if err != nil {
			return err
		}
		if !ok {
			return &CheckError{Scenario: "submit", Problems: []string{fmt.Sprintf("success text %q not found on page", want)}}
		}
	}
	return ctx.Err()
}

func (p *Page) consentGate() ([]string, error) {
	var problems []string
	enabled, err := p.SubmitEnabled()
	if err != nil {
		return nil, err
	}
	if enabled {
		problems = append(problems, "submit should be disabled before consent is checked")
	}
	if err := p.CheckRequiredBoxes(); err != nil {
		return nil, err
	}
	if enabled, err = p.SubmitEnabled(); err != nil {
		return nil, err
	}
	if !enabled {
		problems = append(problems, "submit should be enabled after consent is checked")
	}
	return problems, nil
}

func (p *Page) requiredEmpty(ctx context.Context) ([]string, error) {
	if err := p.CheckRequiredBoxes(); err != nil {
		return nil, err
	}
	if err := p.Submit(ctx); err != nil {
		return nil, err
	}
	problems, err := p.expectGlobalError()
	if err != nil {
		return nil, err
	}
	more, err := p.expectFieldErrors(p.cfg.Validation.FieldError, func(f formconfig.Field) bool {
		return f.Required && f.Kind() != formconfig.FieldCheckbox && !f.Exclude
	}, false)
	if err != nil {
		return nil, err
	}
	return append(problems, more...), nil
}

func (p *Page) missingFile(ctx context.Context) ([]string, error) {
	if err := p.Fill(FillOptions{RequiredOnly: true, SkipExcluded: true, Click: true}); err != nil {
		return nil, err
	}
	if err := p.Submit(ctx); err != nil {
		return nil, err
	}
	problems, err := p.expectGlobalError()
	if err != nil {
		return nil, err
	}
	more, err := p.expectFieldErrors(p.cfg.Validation.FieldError, func(f formconfig.Field) bool {
		return f.Required && f.Kind() != formconfig.FieldCheckbox && f.Exclude
	}, false)
	if err != nil {
		return nil, err
	}
	return append(problems, more...), nil
}

func (p *Page) wrongFileType(ctx context.Context) ([]string, error) {
	if err := p.Fill(FillOptions{RequiredOnly: true, WrongFiles: true, Click: true}); err != nil {
		return nil, err
	}
	if err := p.Submit(ctx); err != nil {
		return nil, err
	}
	problems, err := p.expectGlobalError()
	if err != nil {
		return nil, err
	}
	more, err := p.expectFieldErrors(p.cfg.Validation.FieldErrorFileType, func(f formconfig.Field) bool {
		return f.Required && f.Kind() == formconfig.FieldFile
	}, true)
	if err != nil {
		return nil, err
	}
	return append(problems, more...), nil
}

func (p *Page) expectGlobalError() ([]string, error) {
	want := p.cfg.Validation.GlobalError
	if want == "" {
		return nil, nil
	}
	ok, err := p.bodyContains(want)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []string{fmt.Sprintf("global error %q not found on page", want)}, nil
	}
	return nil, nil
}

// expectFieldErrors checks the validation wrapper of every selected field.
// Fields are inspected when their value is empty, or non-empty when filled
// is set. At least one field must be inspected.
func (p *Page) expectFieldErrors(want string, selected func(formconfig.Field) bool, filled bool) ([]string, error) {
	var problems []string
	inspected := 0
	for _, f := range p.cfg.FormFields {
		if !selected(f) {
			continue
		}
		value, err := p.FieldValue(f)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", f.Name, err)
		}
		if (strings.TrimSpace(value) != "") != filled {
			continue
		}
		inspected++
		text, err := p.FieldError(f.Name)
		if err != nil {
			return nil, fmt.Errorf("read error of %s: %w", f.Name, err)
		}
		if !strings.Contains(strings.TrimSpace(text), want) {
			problems = append(problems, fmt.Sprintf("expected %q next to %s, got %q", want, f.Name, strings.TrimSpace(text)))
		}
	}
	if inspected == 0 {
		problems = append(problems, "no field validation errors were inspected")
	}
	return problems, nil
}
