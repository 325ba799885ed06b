// Package i18n renders semantic message keys into localized user-visible
// text. Catalogs are YAML files keyed by locale; a default catalog ships
// embedded, and deployments can overlay their own translations from a
// directory. Messages support {param} interpolation and :name: emoji
// placeholders resolved against the application emoji set.
package i18n

import (
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/hyeonsong/aria/internal/player"
)

//go:embed locales/*.yaml
var embedded embed.FS

// DefaultLocale is the catalog every lookup falls back to.
const DefaultLocale = "en-US"

var (
	paramPattern = regexp.MustCompile(`\{([a-zA-Z0-9_]+)\}`)
	emojiPattern = regexp.MustCompile(`:([a-zA-Z0-9_]+):`)
)

// EmojiResolver maps an emoji name to its platform rendering (for Discord,
// the <:name:id> form). An empty result keeps the :name: literal.
type EmojiResolver func(name string) string

// Catalog holds all loaded locales. Safe for concurrent use; the emoji
// resolver may be installed after construction, once the platform has
// fetched its emoji set.
type Catalog struct {
	mu       sync.RWMutex
	locales  map[string]map[string]string
	fallback string
	emoji    EmojiResolver
}

var _ player.Translator = (*Catalog)(nil)

// New loads the embedded catalogs. fallback defaults to [DefaultLocale].
func New(fallback string) (*Catalog, error) {
	if fallback == "" {
		fallback = DefaultLocale
	}
	c := &Catalog{
		locales:  make(map[string]map[string]string),
		fallback: fallback,
	}
	if err := c.loadFS(embedded, "locales"); err != nil {
		return nil, err
	}
	if _, ok := c.locales[fallback]; !ok {
		return nil, fmt.Errorf("i18n: fallback locale %q has no catalog", fallback)
	}
	return c, nil
}

// LoadDir overlays catalogs from dir onto the embedded set. Files are named
// by locale, e.g. de.yaml or en-US.yaml; keys present in both override the
// embedded message.
func (c *Catalog) LoadDir(dir string) error {
	matches, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return fmt.Errorf("i18n: scan %q: %w", dir, err)
	}
	for _, path := range matches {
		locale := strings.TrimSuffix(filepath.Base(path), ".yaml")
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("i18n: read %q: %w", path, err)
		}
		if err := c.merge(locale, data); err != nil {
			return fmt.Errorf("i18n: load %q: %w", path, err)
		}
	}
	return nil
}

func (c *Catalog) loadFS(fsys fs.FS, root string) error {
	entries, err := fs.ReadDir(fsys, root)
	if err != nil {
		return fmt.Errorf("i18n: read embedded catalogs: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".yaml") {
			continue
		}
		data, err := fs.ReadFile(fsys, root+"/"+e.Name())
		if err != nil {
			return fmt.Errorf("i18n: read embedded catalog %q: %w", e.Name(), err)
		}
		locale := strings.TrimSuffix(e.Name(), ".yaml")
		if err := c.merge(locale, data); err != nil {
			return fmt.Errorf("i18n: load embedded catalog %q: %w", e.Name(), err)
		}
	}
	return nil
}

func (c *Catalog) merge(locale string, data []byte) error {
	var messages map[string]string
	dec := yaml.NewDecoder(strings.NewReader(string(data)))
	dec.KnownFields(true)
	if err := dec.Decode(&messages); err != nil {
		return fmt.Errorf("decode yaml: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	cat, ok := c.locales[locale]
	if !ok {
		cat = make(map[string]string, len(messages))
		c.locales[locale] = cat
	}
	for k, v := range messages {
		cat[k] = v
	}
	return nil
}

// SetEmojiResolver installs the emoji resolver used for :name:
// placeholders.
func (c *Catalog) SetEmojiResolver(r EmojiResolver) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.emoji = r
}

// Locales returns the loaded locale names.
func (c *Catalog) Locales() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.locales))
	for l := range c.locales {
		out = append(out, l)
	}
	return out
}

// Has reports whether key exists in the fallback catalog.
func (c *Catalog) Has(key string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.locales[c.fallback][key]
	return ok
}

// Translate renders key for locale. Lookup order is the exact locale, its
// language prefix (de for de-CH), then the fallback catalog; a key missing
// everywhere is logged and returned verbatim so the failure is visible
// instead of silent.
func (c *Catalog) Translate(key, locale string, params map[string]any) string {
	c.mu.RLock()
	msg, ok := c.lookup(key, locale)
	emoji := c.emoji
	c.mu.RUnlock()

	if !ok {
		slog.Warn("missing translation", "key", key, "locale", locale)
		return key
	}

	msg = paramPattern.ReplaceAllStringFunc(msg, func(m string) string {
		name := paramPattern.FindStringSubmatch(m)[1]
		if v, ok := params[name]; ok {
			return fmt.Sprint(v)
		}
		return m
	})

	if emoji != nil {
		msg = emojiPattern.ReplaceAllStringFunc(msg, func(m string) string {
			name := emojiPattern.FindStringSubmatch(m)[1]
			if rendered := emoji(name); rendered != "" {
				return rendered
			}
			return m
		})
	}
	return msg
}

func (c *Catalog) lookup(key, locale string) (string, bool) {
	if cat, ok := c.locales[locale]; ok {
		if msg, ok := cat[key]; ok {
			return msg, true
		}
	}
	if lang, _, found := strings.Cut(locale, "-"); found {
		if cat, ok := c.locales[lang]; ok {
			if msg, ok := cat[key]; ok {
				return msg, true
			}
		}
	}
	msg, ok := c.locales[c.fallback][key]
	return msg, ok
}
