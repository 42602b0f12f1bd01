// Package classify assigns a kind to a model filename.
package classify

import (
	"strings"

	"github.com/ianscrivener/draw-things-companion/pkg/db/models"
)

// ManifestSource resolves kinds from the local manifests
type ManifestSource interface {
	Kind(filename string) (models.Kind, bool)
}

// RegistrySource resolves kinds from the remote filename lists
type RegistrySource interface {
	Lookup(filename string) (models.Kind, bool)
}

type rule struct {
	keywords []string
	kind     models.Kind
}

// First match wins
var rules = []rule{
	{[]string{"lora", "lycoris"}, models.KindLora},
	{[]string{"control", "t2i"}, models.KindControl},
	{[]string{"clip", "vit", "vision_model"}, models.KindClip},
	{[]string{"text_encoder", "t5"}, models.KindText},
	{[]string{"vae", "autoencoder"}, models.KindVAE},
	{[]string{"face", "gfpgan", "restoreformer"}, models.KindFaceRestorer},
	{[]string{"upscale", "esrgan", "realesrgan"}, models.KindUpscaler},
}

// Classifier resolves kinds from the manifest, then the registry, then filename
// heuristics. Either source may be nil.
type Classifier struct {
	manifest ManifestSource
	registry RegistrySource
}

func New(manifest ManifestSource, registry RegistrySource) *Classifier {
	return &Classifier{manifest: manifest, registry: registry}
}

// Classify returns the kind for filename and where it came from. Files nothing
// recognises are KindUnknown with a heuristic source.
func (c *Classifier) Classify(filename string) (models.Kind, models.KindSource) {
	if c != nil && c.manifest != nil {
		if kind, ok := c.manifest.Kind(filename); ok {
			return kind, models.KindSourceManifest
		}
	}
	if c != nil && c.registry != nil {
		if kind, ok := c.registry.Lookup(filename); ok {
			return kind, models.KindSourceRegistry
		}
	}
	return Heuristic(filename), models.KindSourceHeuristic
}

// Heuristic matches filename against the keyword table, ignoring case.
func Heuristic(filename string) models.Kind {
	lower := strings.ToLower(filename)
	for _, r := range rules {
		for _, keyword := range r.keywords {
			if strings.Contains(lower, keyword) {
				return r.kind
			}
		}
	}
	return models.KindUnknown
}
