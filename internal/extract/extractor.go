package extract

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/itchlabs/itch/api/schemas"
	"github.com/itchlabs/itch/internal/browser"
)

// Extractor reads current page state through a session's driver and applies
// an extraction schema. It is read-only with respect to the page: it issues
// no clicks, no scrolls, no script with side effects.
type Extractor struct {
	logger *zap.Logger
}

// New creates an extractor.
func New(logger *zap.Logger) *Extractor {
	return &Extractor{logger: logger.Named("extractor")}
}

// Extract resolves every schema field against the page and produces one
// record. A field whose locator matches nothing yields a nil value (or its
// declared default) unless it is marked required, in which case the whole
// extraction fails with *schemas.MissingRequiredField.
func (e *Extractor) Extract(ctx context.Context, s *browser.Session, schema schemas.ExtractionSchema) (*schemas.Record, error) {
	fields := make(map[string]any, len(schema.Fields))
	var downloads []string

	for _, field := range schema.Fields {
		value, err := e.extractField(ctx, s, field)
		if err != nil {
			return nil, err
		}
		fields[field.Name] = value
		if field.Download {
			downloads = append(downloads, urlValues(value)...)
		}
	}

	return &schemas.Record{
		// uuid4 in URN form, the shape downstream consumers key on.
		ID:          uuid.New().URN(),
		ExtractedAt: time.Now().UTC(),
		Fields:      fields,
		Downloads:   downloads,
	}, nil
}

// urlValues flattens a field value into the URL strings it carries. Download
// fields are validated to URL-producing transforms, so anything else here is
// an absent value.
func urlValues(v any) []string {
	switch t := v.(type) {
	case string:
		if t != "" {
			return []string{t}
		}
	case []any:
		urls := make([]string, 0, len(t))
		for _, item := range t {
			if s, ok := item.(string); ok && s != "" {
				urls = append(urls, s)
			}
		}
		return urls
	}
	return nil
}

func (e *Extractor) extractField(ctx context.Context, s *browser.Session, field schemas.Field) (any, error) {
	els, err := s.Driver().FindElements(ctx, field.Selector)
	if err != nil {
		return nil, err
	}

	if len(els) == 0 {
		if field.Required {
			return nil, &schemas.MissingRequiredField{Field: field.Name, Selector: field.Selector}
		}
		e.logger.Debug("Optional field matched no elements.",
			zap.String("field", field.Name), zap.String("selector", field.Selector))
		if field.Default != "" {
			return field.Default, nil
		}
		return nil, nil
	}

	if field.Multiple {
		values := make([]any, 0, len(els))
		for _, el := range els {
			v, err := transformValue(ctx, el, field)
			if err != nil {
				return nil, err
			}
			values = append(values, v)
		}
		return values, nil
	}

	return transformValue(ctx, els[0], field)
}

func transformValue(ctx context.Context, el schemas.Element, field schemas.Field) (any, error) {
	switch field.Transform {
	case schemas.TransformText:
		return el.Text(ctx)

	case schemas.TransformAttr, schemas.TransformHref:
		name := field.Attribute
		if field.Transform == schemas.TransformHref {
			name = "href"
		}
		v, ok, err := el.Attribute(ctx, name)
		if err != nil {
			return nil, err
		}
		if !ok {
			if field.Default != "" {
				return field.Default, nil
			}
			return nil, nil
		}
		return v, nil

	case schemas.TransformNumber:
		text, err := el.Text(ctx)
		if err != nil {
			return nil, err
		}
		return parseNumber(text), nil
	}

	// Unknown transforms are rejected at schema load time.
	return nil, &schemas.SchemaConfigError{
		Detail: "field " + field.Name + " has unvalidated transform " + string(field.Transform),
	}
}

var numberPattern = regexp.MustCompile(`-?\d+(?:\.\d+)?`)

// parseNumber pulls the first numeric token out of text such as "£2.99" or
// "1,204 ratings". Thousands separators are dropped before matching.
func parseNumber(text string) any {
	cleaned := strings.ReplaceAll(text, ",", "")
	match := numberPattern.FindString(cleaned)
	if match == "" {
		return nil
	}
	f, err := strconv.ParseFloat(match, 64)
	if err != nil {
		return nil
	}
	return f
}
