package dispatch

import (
	"bytes"
	"embed"
	"net/http"
	"strings"

	"github.com/gofiber/template/django/v3"
	"github.com/goliatone/go-errors"
)

//go:embed templates
var templatesFS embed.FS

const subjectPrefix = "Subject:"

// Renderer renders notification templates. Templates put the subject on
// their first line as "Subject: ..." so copy lives in one file.
type Renderer struct {
	engine *django.Engine
}

// NewRenderer loads the embedded notification templates.
func NewRenderer() (*Renderer, error) {
	engine := django.NewPathForwardingFileSystem(http.FS(templatesFS), "/templates", ".django")
	if err := engine.Load(); err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to load notification templates")
	}
	return &Renderer{engine: engine}, nil
}

// Render evaluates the named template and splits the subject line from the
// body.
func (r *Renderer) Render(name string, binding map[string]any) (subject, body string, err error) {
	var buf bytes.Buffer
	if err := r.engine.Render(&buf, name, binding); err != nil {
		return "", "", errors.Wrap(err, errors.CategoryInternal, "failed to render notification template").
			WithMetadata(map[string]any{"template": name})
	}

	out := strings.TrimLeft(buf.String(), "\r\n")
	line, rest, found := strings.Cut(out, "\n")
	if !found || !strings.HasPrefix(line, subjectPrefix) {
		return "", "", errors.New("notification template is missing a subject line", errors.CategoryInternal).
			WithMetadata(map[string]any{"template": name})
	}

	subject = strings.TrimSpace(strings.TrimPrefix(line, subjectPrefix))
	body = strings.TrimLeft(rest, "\r\n")

	return subject, body, nil
}
