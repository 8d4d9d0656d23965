package schema

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Load decodes a YAML schema document and derives foreign-key flags.
func Load(r io.Reader) (*Schema, error) {
	var s Schema

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	err := dec.Decode(&s)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("schema: decoding yaml: %w", err)
	}

	return s.Derive(), nil
}

// LoadFile reads a YAML schema from path. The schema name defaults to the
// file name without extension.
func LoadFile(path string) (*Schema, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	s, err := Load(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	if s.Name == "" {
		base := filepath.Base(path)
		s.Name = base[:len(base)-len(filepath.Ext(base))]
	}

	return s, nil
}

// Write encodes the schema as YAML.
func Write(w io.Writer, s *Schema) (err error) {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)

	defer func() {
		if closeErr := enc.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	return enc.Encode(s)
}
