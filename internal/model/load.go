package model

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads a descriptor file and overlays it on Defaults. Keys missing
// from the file keep their default values. An empty path or an empty file
// returns Defaults.
func Load(path string) (*Descriptors, error) {
	d := Defaults()
	if path == "" {
		return d, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read descriptors: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	// An empty or comment-only file carries no overrides.
	if err := dec.Decode(d); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse descriptors: %w", err)
	}

	return d, nil
}
