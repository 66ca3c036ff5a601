package flagcatalog

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/kirillkom/media-upload-router/internal/core/domain"
	"github.com/kirillkom/media-upload-router/internal/core/flags"
)

// Load returns the embedded catalog when path is empty, otherwise the file
// at path. YAML and TOML are recognised by extension.
func Load(path string) (*flags.Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return flags.DefaultCatalog(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read flag catalog %s: %w", path, err)
	}
	return Parse(filepath.Ext(path), data)
}

// Parse decodes a catalog and rejects it when validation reports problems.
func Parse(ext string, data []byte) (*flags.Catalog, error) {
	var (
		catalog *flags.Catalog
		err     error
	)
	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "yaml", "yml":
		catalog, err = flags.ParseYAML(data)
	case "toml":
		catalog, err = parseTOML(data)
	default:
		return nil, domain.WrapError(domain.ErrInvalidInput, "parse flag catalog", fmt.Errorf("unsupported format %q", ext))
	}
	if err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "parse flag catalog", err)
	}
	if problems := catalog.Validate(); len(problems) > 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "validate flag catalog", errors.New(strings.Join(problems, "; ")))
	}
	return catalog, nil
}

func parseTOML(data []byte) (*flags.Catalog, error) {
	var c flags.Catalog
	if err := toml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse flag catalog: %w", err)
	}
	if err := c.Prepare(); err != nil {
		return nil, err
	}
	return &c, nil
}
