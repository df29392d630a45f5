package pages

import (
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
	"gopkg.in/yaml.v3"
)

//go:embed messages/*.yaml
var embeddedMessages embed.FS

type catalogFile struct {
	Locale   string            `yaml:"locale"`
	Messages map[string]string `yaml:"messages"`
}

// Catalog holds the localized console messages and picks the best
// supported language for a request.
type Catalog struct {
	builder   *catalog.Builder
	supported []language.Tag
	matcher   language.Matcher
}

// LoadCatalog loads the embedded message catalogs. English is the fallback
// for keys missing from other locales.
func LoadCatalog() (*Catalog, error) {
	return LoadCatalogFS(embeddedMessages)
}

// LoadCatalogFS loads messages/*.yaml from fsys.
func LoadCatalogFS(fsys fs.FS) (*Catalog, error) {
	paths, err := fs.Glob(fsys, "messages/*.yaml")
	if err != nil {
		return nil, fmt.Errorf("glob message catalogs: %w", err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no message catalogs found")
	}
	sort.Strings(paths)

	builder := catalog.NewBuilder(catalog.Fallback(language.English))
	var tags []language.Tag
	hasEnglish := false

	for _, path := range paths {
		data, err := fs.ReadFile(fsys, path)
		if err != nil {
			return nil, fmt.Errorf("read catalog %s: %w", path, err)
		}
		var file catalogFile
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("parse catalog %s: %w", path, err)
		}
		tag, err := language.Parse(strings.TrimSpace(file.Locale))
		if err != nil {
			return nil, fmt.Errorf("catalog %s: locale %q: %w", path, file.Locale, err)
		}
		if len(file.Messages) == 0 {
			return nil, fmt.Errorf("catalog %s: messages map is required", path)
		}
		for key, value := range file.Messages {
			if err := builder.SetString(tag, key, value); err != nil {
				return nil, fmt.Errorf("catalog %s: key %q: %w", path, key, err)
			}
		}
		if tag == language.English {
			hasEnglish = true
		}
		tags = append(tags, tag)
	}
	if !hasEnglish {
		return nil, fmt.Errorf("base locale %s is not defined in catalogs", language.English)
	}

	// The matcher falls back to its first tag.
	sort.SliceStable(tags, func(i, j int) bool { return tags[i] == language.English && tags[j] != language.English })

	return &Catalog{
		builder:   builder,
		supported: tags,
		matcher:   language.NewMatcher(tags),
	}, nil
}

// Match returns the supported tag closest to locale, which may be a single
// tag or an Accept-Language header value.
func (c *Catalog) Match(locale string) language.Tag {
	locale = strings.TrimSpace(locale)
	if locale == "" {
		return c.supported[0]
	}
	tags, _, err := language.ParseAcceptLanguage(locale)
	if err != nil || len(tags) == 0 {
		return c.supported[0]
	}
	tag, index, _ := c.matcher.Match(tags...)
	if index >= 0 && index < len(c.supported) {
		return c.supported[index]
	}
	return tag
}

// Printer returns a message printer for the best match of locale.
func (c *Catalog) Printer(locale string) *message.Printer {
	return message.NewPrinter(c.Match(locale), message.Catalog(c.builder))
}

// Supported returns the catalog languages, English first.
func (c *Catalog) Supported() []language.Tag {
	return append([]language.Tag(nil), c.supported...)
}
