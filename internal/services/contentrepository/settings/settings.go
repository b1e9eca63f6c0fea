// Package settings loads the repository settings file: the dimension space
// and the node type catalog.
package settings

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	apperrors "github.com/louisbranch/contentgraph/internal/platform/errors"
	"github.com/louisbranch/contentgraph/internal/services/contentrepository/domain/dimension"
	"github.com/louisbranch/contentgraph/internal/services/contentrepository/domain/nodetype"
)

// Format is a settings file encoding.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// ErrUnsupportedFormat indicates a settings file with an unknown extension.
var ErrUnsupportedFormat = errors.New("unsupported settings format")

// Settings is the decoded settings file.
type Settings struct {
	Dimensions []dimension.DimensionConfig `yaml:"dimensions" toml:"dimensions"`
	NodeTypes  map[string]nodetype.Config  `yaml:"nodeTypes" toml:"nodeTypes"`
}

// Repository holds what the settings build.
type Repository struct {
	Dimensions *dimension.Resolver
	NodeTypes  *nodetype.Manager
}

// FormatOf picks the format from a file extension.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".toml":
		return FormatTOML, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
}

// Load reads and decodes the settings file at path.
func Load(path string) (Settings, error) {
	format, err := FormatOf(path)
	if err != nil {
		return Settings{}, invalid(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("read settings %s: %w", path, err)
	}
	return Parse(data, format)
}

// Parse decodes settings. Unknown keys are rejected.
func Parse(data []byte, format Format) (Settings, error) {
	var s Settings
	switch format {
	case FormatYAML:
		decoder := yaml.NewDecoder(bytes.NewReader(data))
		decoder.KnownFields(true)
		if err := decoder.Decode(&s); err != nil && !errors.Is(err, io.EOF) {
			return Settings{}, invalid(fmt.Errorf("decode yaml settings: %w", err))
		}
	case FormatTOML:
		meta, err := toml.Decode(string(data), &s)
		if err != nil {
			return Settings{}, invalid(fmt.Errorf("decode toml settings: %w", err))
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, 0, len(undecoded))
			for _, key := range undecoded {
				keys = append(keys, key.String())
			}
			sort.Strings(keys)
			return Settings{}, invalid(fmt.Errorf("unknown settings keys: %s", strings.Join(keys, ", ")))
		}
	default:
		return Settings{}, invalid(fmt.Errorf("%w: %q", ErrUnsupportedFormat, format))
	}
	return s, nil
}

// Build validates the settings and constructs the resolver and the node
// type catalog.
func (s Settings) Build() (Repository, error) {
	resolver, err := dimension.NewResolver(dimension.Config{Dimensions: s.Dimensions})
	if err != nil {
		return Repository{}, invalid(fmt.Errorf("dimensions: %w", err))
	}
	types, err := nodetype.NewManager(s.NodeTypes)
	if err != nil {
		return Repository{}, invalid(fmt.Errorf("node types: %w", err))
	}
	return Repository{Dimensions: resolver, NodeTypes: types}, nil
}

func invalid(err error) error {
	return apperrors.Wrap(apperrors.CodeConfigurationInvalid, err.Error(), err)
}
