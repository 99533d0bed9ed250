package annotation

import (
	"errors"
	"slices"
	"sort"
)

// AttributeConfiguration describes one attribute of a configured annotation.
type AttributeConfiguration struct {
	Name     string
	Kind     Kind
	Multiple bool

	// Default is applied when the attribute is omitted. Nil means the
	// attribute is required.
	Default *Value

	// AllowedValues restricts the attribute to a fixed set of literals. For
	// KindAnnotation it lists the annotation names that may be nested.
	AllowedValues []string
}

func (a *AttributeConfiguration) allows(v Value) bool {
	if len(a.AllowedValues) == 0 {
		return true
	}
	text := v.Text
	if v.Kind == KindAnnotation && v.Nested != nil {
		text = v.Nested.Name
	}
	return slices.Contains(a.AllowedValues, text)
}

// Configuration describes an annotation: where it may appear and which
// attributes it takes.
type Configuration struct {
	Name       string
	Targets    Target
	Attributes []*AttributeConfiguration

	// Repeatable names the container annotation that collects repeated
	// occurrences. Empty means the annotation may appear once per element.
	Repeatable string

	synthesized bool
}

// Attribute returns the named attribute configuration.
func (c *Configuration) Attribute(name string) (*AttributeConfiguration, bool) {
	for _, a := range c.Attributes {
		if a.Name == name {
			return a, true
		}
	}
	return nil, false
}

// Synthesized reports whether the configuration was created as the implicit
// container of a repeatable annotation.
func (c *Configuration) Synthesized() bool { return c.synthesized }

// Config is a validated, immutable set of annotation configurations.
type Config struct {
	byName map[string]*Configuration
}

// Lookup returns the configuration of the named annotation.
func (c *Config) Lookup(name string) (*Configuration, bool) {
	if c == nil {
		return nil, false
	}
	cfg, ok := c.byName[name]
	return cfg, ok
}

// Names returns the configured annotation names in sorted order.
func (c *Config) Names() []string {
	names := make([]string, 0, len(c.byName))
	for n := range c.byName {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// TypeIDAnnotation assigns the numeric type id of a message or enum.
const TypeIDAnnotation = "TypeId"

// ConfigBuilder assembles annotation configurations. Nothing is checked until
// Build, which validates everything at once.
type ConfigBuilder struct {
	configs []*Configuration
}

// NewConfigBuilder returns a builder preloaded with the built-in @TypeId
// annotation.
func NewConfigBuilder() *ConfigBuilder {
	b := &ConfigBuilder{}
	b.Annotation(TypeIDAnnotation, TargetType).Attribute("value", KindInt)
	return b
}

// Annotation starts the configuration of a new annotation.
func (b *ConfigBuilder) Annotation(name string, targets Target) *AnnotationBuilder {
	cfg := &Configuration{Name: name, Targets: targets}
	b.configs = append(b.configs, cfg)
	return &AnnotationBuilder{parent: b, cfg: cfg}
}

// AnnotationBuilder configures a single annotation.
type AnnotationBuilder struct {
	parent *ConfigBuilder
	cfg    *Configuration
}

// Repeatable allows the annotation to appear more than once; occurrences are
// collected into the container annotation.
func (a *AnnotationBuilder) Repeatable(container string) *AnnotationBuilder {
	a.cfg.Repeatable = container
	return a
}

// Attribute adds an attribute to the annotation.
func (a *AnnotationBuilder) Attribute(name string, kind Kind) *AttributeBuilder {
	attr := &AttributeConfiguration{Name: name, Kind: kind}
	a.cfg.Attributes = append(a.cfg.Attributes, attr)
	return &AttributeBuilder{ann: a, attr: attr}
}

// Annotation starts the next annotation.
func (a *AnnotationBuilder) Annotation(name string, targets Target) *AnnotationBuilder {
	return a.parent.Annotation(name, targets)
}

// Build validates and returns the configuration.
func (a *AnnotationBuilder) Build() (*Config, error) { return a.parent.Build() }

// AttributeBuilder configures a single attribute.
type AttributeBuilder struct {
	ann  *AnnotationBuilder
	attr *AttributeConfiguration
}

// Multiple lets the attribute take a {a, b, ...} list of values.
func (a *AttributeBuilder) Multiple() *AttributeBuilder {
	a.attr.Multiple = true
	return a
}

// Default sets the value used when the attribute is omitted. It is parsed
// against the attribute kind by Build.
func (a *AttributeBuilder) Default(text string) *AttributeBuilder {
	a.attr.Default = &Value{Kind: KindInvalid, Text: text}
	return a
}

// AllowedValues restricts the attribute to the given literals.
func (a *AttributeBuilder) AllowedValues(values ...string) *AttributeBuilder {
	a.attr.AllowedValues = append(a.attr.AllowedValues, values...)
	return a
}

// Attribute adds another attribute to the same annotation.
func (a *AttributeBuilder) Attribute(name string, kind Kind) *AttributeBuilder {
	return a.ann.Attribute(name, kind)
}

// Annotation starts the next annotation.
func (a *AttributeBuilder) Annotation(name string, targets Target) *AnnotationBuilder {
	return a.ann.Annotation(name, targets)
}

// Build validates and returns the configuration.
func (a *AttributeBuilder) Build() (*Config, error) { return a.ann.Build() }

// Build validates every configuration, synthesizes missing containers of
// repeatable annotations and returns the result. All problems are reported
// together.
func (b *ConfigBuilder) Build() (*Config, error) {
	c := &Config{byName: make(map[string]*Configuration, len(b.configs))}
	var errs []error

	for _, cfg := range b.configs {
		if !isIdentifier(cfg.Name) {
			errs = append(errs, configErr(cfg.Name, "", "invalid annotation name"))
			continue
		}
		if _, dup := c.byName[cfg.Name]; dup {
			// A user definition replaces the built-in one.
			if cfg.Name != TypeIDAnnotation || c.byName[cfg.Name] != b.configs[0] {
				errs = append(errs, configErr(cfg.Name, "", "configured more than once"))
				continue
			}
		}
		c.byName[cfg.Name] = cfg
	}

	for _, name := range c.Names() {
		errs = append(errs, validateAnnotation(c, c.byName[name])...)
	}

	for _, name := range c.Names() {
		cfg := c.byName[name]
		if cfg.Repeatable == "" {
			continue
		}
		if err := c.bindContainer(cfg); err != nil {
			errs = append(errs, err)
		}
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return c, nil
}

func validateAnnotation(c *Config, cfg *Configuration) []error {
	var errs []error
	if cfg.Targets == 0 || cfg.Targets&^TargetAny != 0 {
		errs = append(errs, configErr(cfg.Name, "", "invalid targets %s", cfg.Targets))
	}
	seen := make(map[string]bool, len(cfg.Attributes))
	for _, attr := range cfg.Attributes {
		if !isIdentifier(attr.Name) {
			errs = append(errs, configErr(cfg.Name, attr.Name, "invalid attribute name"))
			continue
		}
		if seen[attr.Name] {
			errs = append(errs, configErr(cfg.Name, attr.Name, "attribute configured more than once"))
			continue
		}
		seen[attr.Name] = true
		errs = append(errs, validateAttribute(c, cfg, attr)...)
	}
	return errs
}

func validateAttribute(c *Config, cfg *Configuration, attr *AttributeConfiguration) []error {
	if !attr.Kind.Valid() {
		return []error{configErr(cfg.Name, attr.Name, "unknown attribute kind %s", attr.Kind)}
	}
	var errs []error
	if attr.Kind == KindAnnotation {
		for _, name := range attr.AllowedValues {
			if _, ok := c.byName[name]; !ok && !isRepeatableContainerTarget(c, name) {
				errs = append(errs, configErr(cfg.Name, attr.Name, "allowed annotation @%s is not configured", name))
			}
		}
		if attr.Default != nil {
			errs = append(errs, configErr(cfg.Name, attr.Name, "annotation attributes cannot have a default"))
		}
		return errs
	}
	for _, text := range attr.AllowedValues {
		if _, err := defaultValue(attr.Kind, text); err != nil {
			errs = append(errs, configErr(cfg.Name, attr.Name, "allowed value %q: %v", text, err))
		}
	}
	if attr.Default != nil {
		raw := attr.Default.Text
		if attr.Default.Kind != KindInvalid {
			raw = attr.Default.String()
		}
		v, err := defaultValue(attr.Kind, raw)
		if err != nil {
			errs = append(errs, configErr(cfg.Name, attr.Name, "default %q: %v", raw, err))
		} else if !attr.allows(v) {
			errs = append(errs, configErr(cfg.Name, attr.Name, "default %q is not an allowed value", raw))
		} else {
			attr.Default = &v
		}
	}
	return errs
}

func isRepeatableContainerTarget(c *Config, name string) bool {
	for _, cfg := range c.byName {
		if cfg.Repeatable == name {
			return true
		}
	}
	return false
}

// bindContainer checks or synthesizes the container of a repeatable annotation.
func (c *Config) bindContainer(cfg *Configuration) error {
	if cfg.Repeatable == cfg.Name {
		return configErr(cfg.Name, "", "an annotation cannot be its own container")
	}
	container, ok := c.byName[cfg.Repeatable]
	if !ok {
		if !isIdentifier(cfg.Repeatable) {
			return configErr(cfg.Name, "", "invalid container name %q", cfg.Repeatable)
		}
		c.byName[cfg.Repeatable] = &Configuration{
			Name:    cfg.Repeatable,
			Targets: cfg.Targets,
			Attributes: []*AttributeConfiguration{{
				Name:          "value",
				Kind:          KindAnnotation,
				Multiple:      true,
				AllowedValues: []string{cfg.Name},
			}},
			synthesized: true,
		}
		return nil
	}
	value, ok := container.Attribute("value")
	switch {
	case !ok:
		return configErr(container.Name, "value", "container of @%s must declare a value attribute", cfg.Name)
	case value.Kind != KindAnnotation || !value.Multiple:
		return configErr(container.Name, "value", "container of @%s must hold multiple annotations", cfg.Name)
	case !slices.Contains(value.AllowedValues, cfg.Name):
		return configErr(container.Name, "value", "container does not allow @%s", cfg.Name)
	case container.Targets&cfg.Targets != cfg.Targets:
		return configErr(container.Name, "", "container targets do not cover those of @%s", cfg.Name)
	}
	return nil
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && (r == '.' || r >= '0' && r <= '9'):
		default:
			return false
		}
	}
	return true
}
