package settings

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	apperrors "github.com/louisbranch/contentgraph/internal/platform/errors"
	"github.com/louisbranch/contentgraph/internal/services/contentrepository/domain/dimension"
	"github.com/louisbranch/contentgraph/internal/services/contentrepository/domain/nodetype"
)

const yamlSettings = `
dimensions:
  - name: language
    kind: language
    default: en
    values:
      en: {}
      de:
        fallback: en
      de_CH:
        fallback: de
nodeTypes:
  Sites:
    root: true
  Document:
    abstract: true
    properties:
      title:
        type: string
  Page:
    superTypes: [Document]
    childNodes:
      main: ContentCollection
    references:
      author:
        maxItems: 1
  ContentCollection: {}
`

const tomlSettings = `
[[dimensions]]
name = "language"
kind = "language"
default = "en"

[dimensions.values.en]

[dimensions.values.de]
fallback = "en"

[dimensions.values.de_CH]
fallback = "de"

[nodeTypes.Sites]
root = true

[nodeTypes.Document]
abstract = true

[nodeTypes.Document.properties.title]
type = "string"

[nodeTypes.Page]
superTypes = ["Document"]

[nodeTypes.Page.childNodes]
main = "ContentCollection"

[nodeTypes.Page.references.author]
maxItems = 1

[nodeTypes.ContentCollection]
`

func writeSettings(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write settings: %v", err)
	}
	return path
}

func TestLoadBuildsRepositoryFromEitherFormat(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{name: "yaml", file: "settings.yaml", content: yamlSettings},
		{name: "yml", file: "settings.yml", content: yamlSettings},
		{name: "toml", file: "settings.toml", content: tomlSettings},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := Load(writeSettings(t, tt.file, tt.content))
			if err != nil {
				t.Fatalf("load: %v", err)
			}
			repo, err := s.Build()
			if err != nil {
				t.Fatalf("build: %v", err)
			}

			chain, err := repo.Dimensions.ResolveFallbackChain(dimension.MustPoint(map[string]string{"language": "de_CH"}))
			if err != nil {
				t.Fatalf("fallback chain: %v", err)
			}
			if len(chain) != 3 {
				t.Fatalf("chain = %v, want 3 points", chain)
			}
			if got := repo.Dimensions.DefaultPoint(); got != dimension.MustPoint(map[string]string{"language": "en"}) {
				t.Fatalf("default point = %s", got)
			}

			page, err := repo.NodeTypes.Get("Page")
			if err != nil {
				t.Fatalf("get Page: %v", err)
			}
			if !page.HasProperty("title") {
				t.Fatal("Page should inherit title from Document")
			}
			if !page.HasReference("author") {
				t.Fatal("Page should declare author")
			}
			if len(page.Tethered) != 1 || page.Tethered[0].Name != "main" {
				t.Fatalf("tethered = %+v, want main", page.Tethered)
			}
		})
	}
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	tests := []struct {
		name   string
		format Format
		data   string
	}{
		{name: "yaml", format: FormatYAML, data: "dimensions: []\nnodeTypez: {}\n"},
		{name: "toml", format: FormatTOML, data: "[nodeTypes.Page]\nrooot = true\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data), tt.format)
			if err == nil {
				t.Fatal("expected error")
			}
			if !apperrors.HasCode(err, apperrors.CodeConfigurationInvalid) {
				t.Fatalf("code = %s, want %s", apperrors.GetCode(err), apperrors.CodeConfigurationInvalid)
			}
		})
	}
}

func TestParseEmptyYAML(t *testing.T) {
	s, err := Parse(nil, FormatYAML)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(s.Dimensions) != 0 || len(s.NodeTypes) != 0 {
		t.Fatalf("settings = %+v, want empty", s)
	}
}

func TestLoadRejectsUnknownExtension(t *testing.T) {
	_, err := Load(writeSettings(t, "settings.json", "{}"))
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("err = %v, want %v", err, ErrUnsupportedFormat)
	}
}

func TestBuildReportsConfigurationErrors(t *testing.T) {
	tests := []struct {
		name     string
		settings Settings
		want     error
	}{
		{
			name: "unknown fallback",
			settings: Settings{Dimensions: []dimension.DimensionConfig{{
				Name:   "language",
				Values: map[string]dimension.ValueConfig{"de": {Fallback: "en"}},
			}}},
			want: dimension.ErrUnknownFallback,
		},
		{
			name: "super type cycle",
			settings: Settings{NodeTypes: map[string]nodetype.Config{
				"A": {SuperTypes: []string{"B"}},
				"B": {SuperTypes: []string{"A"}},
			}},
			want: nodetype.ErrSuperTypeCycle,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.settings.Build()
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			if !apperrors.HasCode(err, apperrors.CodeConfigurationInvalid) {
				t.Fatalf("code = %s", apperrors.GetCode(err))
			}
		})
	}
}
