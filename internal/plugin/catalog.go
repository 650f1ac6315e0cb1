package plugin

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

var (
	// ErrManifestNotFound is returned when the manifest file does not exist.
	ErrManifestNotFound = errors.New("manifest not found")
	// ErrInvalidManifest is returned when the manifest does not have the expected shape.
	ErrInvalidManifest = errors.New("invalid manifest")
	// ErrDuplicatePlugin is returned when a plugin name is declared more than once.
	ErrDuplicatePlugin = errors.New("duplicate plugin")
	// ErrUnknownCategory is returned when a requested category is not declared.
	ErrUnknownCategory = errors.New("unknown category")
	// ErrUnknownPlugin is returned when a requested plugin is not declared.
	ErrUnknownPlugin = errors.New("unknown plugin")
)

// IsUnknownTarget reports whether err names a plugin or category missing from the catalog.
func IsUnknownTarget(err error) bool {
	return errors.Is(err, ErrUnknownCategory) || errors.Is(err, ErrUnknownPlugin)
}

// Catalog indexes the manifest's categories and plugins. It is read-only after construction.
type Catalog struct {
	categories []string
	byCategory map[string][]string
	owner      map[string]string
	plugins    []string
}

// LoadCatalog reads and indexes the manifest at path.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrManifestNotFound, path)
		}
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	m, err := ParseManifest(data)
	if err != nil {
		return nil, err
	}
	return NewCatalog(m)
}

// ParseManifest decodes {"categories": {<name>: {"plugins": [...]}}}.
// JSON and YAML documents are accepted; category declaration order is kept.
func ParseManifest(data []byte) (*Manifest, error) {
	if json.Valid(data) {
		return parseJSONManifest(data)
	}
	return parseYAMLManifest(data)
}

func parseJSONManifest(data []byte) (*Manifest, error) {
	var top struct {
		Categories json.RawMessage `json:"categories"`
	}
	if err := json.Unmarshal(data, &top); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidManifest, err)
	}
	if len(top.Categories) == 0 || string(top.Categories) == "null" {
		return nil, fmt.Errorf("%w: missing \"categories\"", ErrInvalidManifest)
	}

	dec := json.NewDecoder(bytes.NewReader(top.Categories))
	if tok, err := dec.Token(); err != nil || tok != json.Delim('{') {
		return nil, fmt.Errorf("%w: \"categories\" must be an object", ErrInvalidManifest)
	}

	m := &Manifest{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidManifest, err)
		}
		name, _ := tok.(string)

		var entry struct {
			Plugins []string `json:"plugins"`
		}
		if err := dec.Decode(&entry); err != nil {
			return nil, fmt.Errorf("%w: category %q: %v", ErrInvalidManifest, name, err)
		}
		if entry.Plugins == nil {
			return nil, fmt.Errorf("%w: category %q has no \"plugins\" list", ErrInvalidManifest, name)
		}
		m.Categories = append(m.Categories, Category{Name: name, Plugins: entry.Plugins})
	}

	return m, nil
}

func parseYAMLManifest(data []byte) (*Manifest, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidManifest, err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, fmt.Errorf("%w: empty document", ErrInvalidManifest)
	}

	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%w: top level must be a mapping", ErrInvalidManifest)
	}

	categories := mappingValue(root, "categories")
	if categories == nil {
		return nil, fmt.Errorf("%w: missing \"categories\"", ErrInvalidManifest)
	}
	if categories.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%w: \"categories\" must be a mapping", ErrInvalidManifest)
	}

	m := &Manifest{}
	for i := 0; i+1 < len(categories.Content); i += 2 {
		name := categories.Content[i].Value

		var entry struct {
			Plugins []string `yaml:"plugins"`
		}
		if err := categories.Content[i+1].Decode(&entry); err != nil {
			return nil, fmt.Errorf("%w: category %q: %v", ErrInvalidManifest, name, err)
		}
		if entry.Plugins == nil {
			return nil, fmt.Errorf("%w: category %q has no \"plugins\" list", ErrInvalidManifest, name)
		}

		m.Categories = append(m.Categories, Category{Name: name, Plugins: entry.Plugins})
	}

	return m, nil
}

func mappingValue(node *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value == key {
			return node.Content[i+1]
		}
	}
	return nil
}

// NewCatalog indexes m. Plugin names are global: a name declared twice,
// in the same or different categories, is rejected.
func NewCatalog(m *Manifest) (*Catalog, error) {
	c := &Catalog{
		byCategory: make(map[string][]string, len(m.Categories)),
		owner:      make(map[string]string),
	}

	for _, cat := range m.Categories {
		if _, exists := c.byCategory[cat.Name]; exists {
			return nil, fmt.Errorf("%w: category %q declared twice", ErrInvalidManifest, cat.Name)
		}

		plugins := make([]string, 0, len(cat.Plugins))
		for _, name := range cat.Plugins {
			if name == "" {
				return nil, fmt.Errorf("%w: empty plugin name in category %q", ErrInvalidManifest, cat.Name)
			}
			if prev, exists := c.owner[name]; exists {
				return nil, fmt.Errorf("%w: %q in categories %q and %q", ErrDuplicatePlugin, name, prev, cat.Name)
			}
			c.owner[name] = cat.Name
			c.plugins = append(c.plugins, name)
			plugins = append(plugins, name)
		}

		c.categories = append(c.categories, cat.Name)
		c.byCategory[cat.Name] = plugins
	}

	return c, nil
}

// ListPlugins returns every plugin name mapped to itself.
func (c *Catalog) ListPlugins() map[string]string {
	out := make(map[string]string, len(c.plugins))
	for _, name := range c.plugins {
		out[name] = name
	}
	return out
}

// Plugins returns every plugin name in declaration order.
func (c *Catalog) Plugins() []string {
	out := make([]string, len(c.plugins))
	copy(out, c.plugins)
	return out
}

// HasPlugin reports whether name is declared in any category.
func (c *Catalog) HasPlugin(name string) bool {
	_, ok := c.owner[name]
	return ok
}

// CategoryOf returns the category declaring the plugin.
func (c *Catalog) CategoryOf(name string) (string, error) {
	cat, ok := c.owner[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownPlugin, name)
	}
	return cat, nil
}

// Categories returns category names in declaration order.
func (c *Catalog) Categories() []string {
	out := make([]string, len(c.categories))
	copy(out, c.categories)
	return out
}

// CategoryPlugins returns the plugins of a category in declaration order.
func (c *Catalog) CategoryPlugins(name string) ([]string, error) {
	plugins, ok := c.byCategory[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCategory, name)
	}
	out := make([]string, len(plugins))
	copy(out, plugins)
	return out, nil
}
