package extract_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itchlabs/itch/api/schemas"
	"github.com/itchlabs/itch/internal/extract"
)

const validSchemaYAML = `
schemas:
  game:
    fields:
      - name: title
        selector: "h1.game_title"
        transform: text
        required: true
      - name: price
        selector: ".price_value"
        transform: number
      - name: cover_url
        selector: "img.game_cover"
        transform: attr
        attribute: src
      - name: tags
        selector: ".game_genre a"
        transform: text
        multiple: true
  author:
    fields:
      - name: profile_url
        selector: "a.author_link"
        transform: href
`

func TestParseLibrary(t *testing.T) {
	lib, err := extract.ParseLibrary([]byte(validSchemaYAML))
	require.NoError(t, err)

	assert.Equal(t, []string{"author", "game"}, lib.Names())

	game, ok := lib.Get("game")
	require.True(t, ok)
	assert.Equal(t, "game", game.Name)
	require.Len(t, game.Fields, 4)
	assert.Equal(t, "title", game.Fields[0].Name)
	assert.True(t, game.Fields[0].Required)

	_, ok = lib.Get("nonexistent")
	assert.False(t, ok)
}

func TestParseLibrary_Invalid(t *testing.T) {
	testCases := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "not yaml",
			yaml:    "schemas: [unbalanced",
			wantErr: "not valid YAML",
		},
		{
			name:    "no schemas",
			yaml:    "schemas: {}",
			wantErr: "no schemas",
		},
		{
			name: "schema without fields",
			yaml: "schemas:\n  empty:\n    fields: []",
			wantErr: "has no fields",
		},
		{
			name: "field without name",
			yaml: "schemas:\n  bad:\n    fields:\n      - selector: h1\n        transform: text",
			wantErr: "empty name",
		},
		{
			name: "duplicate field",
			yaml: "schemas:\n  bad:\n    fields:\n      - {name: a, selector: h1, transform: text}\n      - {name: a, selector: h2, transform: text}",
			wantErr: "duplicate field",
		},
		{
			name: "field without selector",
			yaml: "schemas:\n  bad:\n    fields:\n      - {name: a, transform: text}",
			wantErr: "no selector",
		},
		{
			name: "field without transform",
			yaml: "schemas:\n  bad:\n    fields:\n      - {name: a, selector: h1}",
			wantErr: "no transform",
		},
		{
			name: "unknown transform",
			yaml: "schemas:\n  bad:\n    fields:\n      - {name: a, selector: h1, transform: uppercase}",
			wantErr: "unknown transform",
		},
		{
			name: "attr transform without attribute",
			yaml: "schemas:\n  bad:\n    fields:\n      - {name: a, selector: img, transform: attr}",
			wantErr: "without an attribute",
		},
		{
			name: "download on non-url transform",
			yaml: "schemas:\n  bad:\n    fields:\n      - {name: a, selector: h1, transform: text, download: true}",
			wantErr: "download on a non-URL transform",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := extract.ParseLibrary([]byte(tc.yaml))
			require.Error(t, err)

			var cfgErr *schemas.SchemaConfigError
			require.ErrorAs(t, err, &cfgErr, "schema problems must be SchemaConfigError")
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}
