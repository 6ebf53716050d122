//go:build e2e

package formpage

import (
	"context"
	_ "embed"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gotrs-io/formprobe/internal/formconfig"
)

//go:embed testdata/form.html
var formHTML string

const (
	requiredMsg = "The field is required."
	fileTypeMsg = "You are not allowed to upload files of this type."
)

// formServer validates submissions the way a Contact Form 7 endpoint does:
// a JSON answer with per-field messages, rendered in place by the page.
func formServer(t *testing.T) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(formHTML))
	})
	mux.HandleFunc("/submit", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		fields := map[string]string{}
		for _, name := range []string{"your-name", "your-email", "position"} {
			if strings.TrimSpace(r.FormValue(name)) == "" {
				fields[name] = requiredMsg
			}
		}
		if r.FormValue("consent") == "" {
			fields["consent"] = requiredMsg
		}
		if _, hdr, err := r.FormFile("resume"); err != nil {
			fields["resume"] = requiredMsg
		} else if !strings.HasSuffix(hdr.Filename, ".pdf") {
			fields["resume"] = fileTypeMsg
		}
		resp := map[string]any{"ok": len(fields) == 0, "fields": fields}
		if len(fields) > 0 {
			resp["message"] = "One or more fields have an error. Please check and try again."
		} else {
			resp["message"] = "Thank you for your message. It has been sent."
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func e2eConfig(t *testing.T, url string) *formconfig.Config {
	t.Helper()
	pdf, err := filepath.Abs("testdata/cv.pdf")
	require.NoError(t, err)
	exe, err := filepath.Abs("testdata/cv.exe")
	require.NoError(t, err)
	doc := `
url: ` + url + `
success_selector: .sent-ok
seed: 3
form_fields:
  - name: your-name
    required: true
    value: "{{full_name}}"
  - name: your-email
    type: email
    required: true
    value: "{{email}}"
  - name: position
    type: select
    required: true
    value: qa
  - name: resume
    type: file
    required: true
    file: ` + pdf + `
    file-wrong: ` + exe + `
    exclude: true
  - name: consent
    type: checkbox
    required: true
validation:
  global_error: One or more fields have an error
  global_success: Thank you for your message
  field_error: ` + requiredMsg + `
  field_error_file_type: ` + fileTypeMsg + `
`
	cfg, err := formconfig.Parse([]byte(doc), formconfig.WithEnvPrefix(""))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	return cfg
}

func launchForTest(t *testing.T) *Browser {
	t.Helper()
	opts := BrowserOptionsFromEnv()
	opts.Timeout = 10 * time.Second
	b, err := Launch(opts, nil)
	if err != nil {
		t.Skipf("playwright unavailable: %v", err)
	}
	t.Cleanup(b.Close)
	return b
}

func TestBrowserScenarios(t *testing.T) {
	srv := formServer(t)
	b := launchForTest(t)
	page := b.Form(e2eConfig(t, srv.URL), WithSettle(500*time.Millisecond))

	for _, s := range Scenarios {
		t.Run(string(s), func(t *testing.T) {
			require.NoError(t, page.Validate(context.Background(), s))
		})
	}
}

func TestBrowserSubmitRequired(t *testing.T) {
	srv := formServer(t)
	b := launchForTest(t)
	page := b.Form(e2eConfig(t, srv.URL))

	require.NoError(t, page.SubmitRequired(context.Background()))
	body, err := page.BodyText()
	require.NoError(t, err)
	assert.Contains(t, body, "It has been sent.")
}
