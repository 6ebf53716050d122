package formpage

import (
	"fmt"
	"strings"

	"github.com/gotrs-io/formprobe/internal/formconfig"
)

// SubmitSelector matches the submit control of the form.
const SubmitSelector = "form input[type='submit'], form button[type='submit']"

// Selector builds the CSS selector of a configured field.
func Selector(f formconfig.Field) string {
	name := cssQuote(f.Name)
	switch f.Kind() {
	case formconfig.FieldTextarea:
		return fmt.Sprintf("textarea[name=%s]", name)
	case formconfig.FieldFile:
		return fmt.Sprintf("input[type='file'][name=%s]", name)
	case formconfig.FieldCheckbox:
		return fmt.Sprintf("input[type='checkbox'][name=%s]", name)
	case formconfig.FieldRadio:
		if f.Value != "" {
			return fmt.Sprintf("input[type='radio'][name=%s][value=%s]", name, cssQuote(f.Value))
		}
		return fmt.Sprintf("input[type='radio'][name=%s]", name)
	case formconfig.FieldSelect:
		return fmt.Sprintf("select[name=%s]", name)
	default:
		return fmt.Sprintf("input[name=%s]", name)
	}
}

// ErrorSelector matches the wrapper that holds a field's validation message.
func ErrorSelector(name string) string {
	return fmt.Sprintf("span[data-name=%s]", cssQuote(name))
}

// cssQuote renders s as a single-quoted CSS string.
func cssQuote(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`)
	return "'" + r.Replace(s) + "'"
}
