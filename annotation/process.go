package annotation

// Process validates the annotations found on one schema element, fills in
// attribute defaults and folds repeated occurrences of a repeatable
// annotation into a single occurrence of its container. Annotations without
// a configuration are returned unchecked.
func (c *Config) Process(anns []*Annotation, target Target) ([]*Annotation, error) {
	counts := make(map[string]int, len(anns))
	for _, a := range anns {
		cfg, ok := c.Lookup(a.Name)
		if !ok {
			continue
		}
		if cfg.Targets&target == 0 {
			return nil, usageErr(a.Name, "not allowed on a %s", target)
		}
		if err := c.check(cfg, a); err != nil {
			return nil, err
		}
		counts[a.Name]++
	}

	out := make([]*Annotation, 0, len(anns))
	folded := make(map[string]*Annotation)
	for _, a := range anns {
		if counts[a.Name] < 2 {
			out = append(out, a)
			continue
		}
		cfg, _ := c.Lookup(a.Name)
		if cfg.Repeatable == "" {
			return nil, usageErr(a.Name, "may appear only once on a %s", target)
		}
		container, ok := folded[a.Name]
		if !ok {
			container = &Annotation{Name: cfg.Repeatable, Offset: a.Offset}
			container.Attributes = []Attribute{{Name: "value"}}
			folded[a.Name] = container
			out = append(out, container)
		}
		container.Attributes[0].Values = append(container.Attributes[0].Values,
			Value{Kind: KindAnnotation, Text: a.Name, Nested: a})
	}
	return out, nil
}

// Find returns the first annotation with the given name.
func Find(anns []*Annotation, name string) (*Annotation, bool) {
	for _, a := range anns {
		if a.Name == name {
			return a, true
		}
	}
	return nil, false
}

func (c *Config) check(cfg *Configuration, a *Annotation) error {
	for i := range a.Attributes {
		attr := &a.Attributes[i]
		ac, ok := cfg.Attribute(attr.Name)
		if !ok {
			return usageErr(a.Name, "unknown attribute %s", attr.Name)
		}
		if len(attr.Values) != 1 && !ac.Multiple {
			return usageErr(a.Name, "attribute %s takes a single value", attr.Name)
		}
		for j, v := range attr.Values {
			cv, err := convert(ac.Kind, v)
			if err != nil {
				return usageErr(a.Name, "attribute %s: %v", attr.Name, err)
			}
			if !ac.allows(cv) {
				return usageErr(a.Name, "attribute %s: %s is not an allowed value", attr.Name, cv)
			}
			if cv.Nested != nil {
				nestedCfg, ok := c.Lookup(cv.Nested.Name)
				if ok {
					if err := c.check(nestedCfg, cv.Nested); err != nil {
						return err
					}
				}
			}
			attr.Values[j] = cv
		}
	}
	for _, ac := range cfg.Attributes {
		if _, ok := a.Attribute(ac.Name); ok {
			continue
		}
		if ac.Default == nil {
			if ac.Multiple {
				continue
			}
			return usageErr(a.Name, "missing attribute %s", ac.Name)
		}
		a.set(ac.Name, []Value{*ac.Default})
	}
	return nil
}
