package pages

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"strings"
	"time"

	goAccount "github.com/MrEthical07/goAccount"
	"golang.org/x/text/message"
)

//go:embed templates/*.html
var embeddedTemplates embed.FS

var pageTemplates = []goAccount.PageID{
	goAccount.PageAccount,
	goAccount.PagePassword,
	goAccount.PageFederatedIdentity,
	goAccount.PageSessions,
	goAccount.PageApplications,
	goAccount.PageTOTP,
}

// Renderer owns the parsed templates and the message catalog. It is safe for
// concurrent use and is shared by every request.
type Renderer struct {
	catalog *Catalog
	pages   map[goAccount.PageID]*template.Template
	errors  *template.Template
	now     func() time.Time
}

// NewRenderer parses the embedded templates. A nil catalog loads the
// embedded message catalogs.
func NewRenderer(catalog *Catalog) (*Renderer, error) {
	if catalog == nil {
		loaded, err := LoadCatalog()
		if err != nil {
			return nil, err
		}
		catalog = loaded
	}

	r := &Renderer{
		catalog: catalog,
		pages:   make(map[goAccount.PageID]*template.Template, len(pageTemplates)),
		now:     time.Now,
	}

	for _, page := range pageTemplates {
		tmpl, err := template.ParseFS(embeddedTemplates, "templates/layout.html", "templates/"+string(page)+".html")
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", page, err)
		}
		r.pages[page] = tmpl
	}

	errTmpl, err := template.ParseFS(embeddedTemplates, "templates/error.html")
	if err != nil {
		return nil, fmt.Errorf("parse error template: %w", err)
	}
	r.errors = errTmpl

	return r, nil
}

// Catalog returns the message catalog used for rendering.
func (r *Renderer) Catalog() *Catalog {
	return r.catalog
}

// Factory returns a page builder factory bound to r.
func (r *Renderer) Factory() goAccount.PageBuilderFactory {
	return func(ctx context.Context) goAccount.PageBuilder {
		return r.NewBuilder(ctx)
	}
}

// NewBuilder returns a fresh page builder. The locale stored in ctx by
// [WithLocale] is used until the request info provides one.
func (r *Renderer) NewBuilder(ctx context.Context) *Builder {
	return &Builder{
		renderer:   r,
		locale:     LocaleFromContext(ctx),
		status:     http.StatusOK,
		attributes: map[string]string{},
	}
}

// CreateErrorPage renders a stand-alone error page with the localized
// message key.
func (r *Renderer) CreateErrorPage(ctx context.Context, status int, messageKey string) (*goAccount.Response, error) {
	if status == 0 {
		status = http.StatusInternalServerError
	}
	printer := r.catalog.Printer(LocaleFromContext(ctx))
	data := &Data{
		Lang:    r.catalog.Match(LocaleFromContext(ctx)).String(),
		Error:   printer.Sprintf(messageKey),
		printer: printer,
	}
	return r.render(r.errors, "error", status, data)
}

func (r *Renderer) render(tmpl *template.Template, name string, status int, data *Data) (*goAccount.Response, error) {
	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		return nil, fmt.Errorf("render %s: %w", name, err)
	}

	header := http.Header{}
	header.Set("Content-Type", "text/html; charset=utf-8")
	header.Set("Cache-Control", "no-store, must-revalidate, max-age=0")
	header.Set("X-Frame-Options", "SAMEORIGIN")
	header.Set("Content-Language", data.Lang)

	return &goAccount.Response{
		Status: status,
		Header: header,
		Body:   buf.Bytes(),
	}, nil
}

// Data is the template model of one rendered page.
type Data struct {
	Page         string
	Lang         string
	RealmName    string
	BaseURL      string
	Referrer     string
	Auth         *goAccount.AuthContext
	Features     goAccount.Features
	StateChecker string
	Sessions     []goAccount.SessionInfo
	PasswordSet  bool
	Success      string
	Error        string
	Attributes   map[string]string

	printer *message.Printer
}

// T translates key with the request locale.
func (d *Data) T(key string, args ...any) string {
	if d.printer == nil {
		return key
	}
	return d.printer.Sprintf(key, args...)
}

// URL returns the console path for a sub-page; "" is the overview.
func (d *Data) URL(sub string) string {
	base := strings.TrimRight(d.BaseURL, "/")
	if sub == "" {
		if base == "" {
			return "/"
		}
		return base + "/"
	}
	return base + "/" + sub
}

// Attr returns a page attribute or "".
func (d *Data) Attr(key string) string {
	return d.Attributes[key]
}

// FormatTime formats session timestamps; zero times render empty.
func (d *Data) FormatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format("2006-01-02 15:04")
}
