package schemas

// Transform names the rule that converts a located element into a field value.
type Transform string

const (
	// TransformText yields the element's trimmed text content.
	TransformText Transform = "text"
	// TransformAttr yields the named attribute's value (Field.Attribute).
	TransformAttr Transform = "attr"
	// TransformHref yields the element's resolved href attribute.
	TransformHref Transform = "href"
	// TransformNumber parses the trimmed text content as a float64,
	// tolerating currency symbols and thousands separators.
	TransformNumber Transform = "number"
)

// Field maps one output column to a locator and transform rule.
// Download marks a URL-valued field (attr or href transform) whose targets
// should be fetched into the run's image directory after extraction.
type Field struct {
	Name      string    `yaml:"name"`
	Selector  string    `yaml:"selector"`
	Transform Transform `yaml:"transform"`
	Attribute string    `yaml:"attribute,omitempty"`
	Required  bool      `yaml:"required,omitempty"`
	Multiple  bool      `yaml:"multiple,omitempty"`
	Default   string    `yaml:"default,omitempty"`
	Download  bool      `yaml:"download,omitempty"`
}

// ExtractionSchema is the ordered set of fields extracted from one page kind.
// Schemas are read-only configuration; the extractor never mutates them.
type ExtractionSchema struct {
	Name   string  `yaml:"-"`
	Fields []Field `yaml:"fields"`
}
