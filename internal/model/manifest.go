package model

import (
	"encoding/json"
	"fmt"
)

// ImageDefinition is the single entry of the deploy manifest the ECS deploy
// action reads: which container gets which image.
type ImageDefinition struct {
	Name     string `json:"name"`
	ImageURI string `json:"imageUri"`
}

// Manifest is the build stage's output artifact. The deploy action requires
// exactly one entry.
type Manifest []ImageDefinition

// NewManifest returns the one-element manifest for a container.
func NewManifest(c Container, imageURI string) Manifest {
	return Manifest{{Name: c.Name, ImageURI: imageURI}}
}

// Marshal renders the manifest as a compact JSON array.
func (m Manifest) Marshal() ([]byte, error) {
	if len(m) != 1 {
		return nil, fmt.Errorf("manifest must have exactly one entry, got %d", len(m))
	}
	return json.Marshal(m)
}
