// Package manifest reads the custom model lists kept next to the host's model files.
package manifest

import (
	"encoding/json"
	"errors"
	"math"
	"os"
	"path/filepath"
	"sort"

	"github.com/ianscrivener/draw-things-companion/internal/errdefs"
	"github.com/ianscrivener/draw-things-companion/pkg/db/models"
	"github.com/spf13/afero"
)

const (
	ModelsFile     = "custom.json"
	LorasFile      = "custom_lora.json"
	ControlNetFile = "custom_controlnet.json"
)

// Files lists every manifest in load order
var Files = []string{ModelsFile, LorasFile, ControlNetFile}

type CustomModel struct {
	Name        string  `json:"name"`
	File        string  `json:"file"`
	Autoencoder *string `json:"autoencoder,omitempty"`
	ClipEncoder *string `json:"clip_encoder,omitempty"`
	TextEncoder *string `json:"text_encoder,omitempty"`
	Version     *string `json:"version,omitempty"`
}

type LoraWeight struct {
	Value      float64  `json:"value"`
	LowerBound *float64 `json:"lower_bound,omitempty"`
	UpperBound *float64 `json:"upper_bound,omitempty"`
}

type CustomLora struct {
	Name    string      `json:"name"`
	File    string      `json:"file"`
	Weight  *LoraWeight `json:"weight,omitempty"`
	Version *string     `json:"version,omitempty"`
}

type CustomControlNet struct {
	Name    string  `json:"name"`
	File    string  `json:"file"`
	Version *string `json:"version,omitempty"`
}

// Entry is what the manifests say about one file
type Entry struct {
	Name     *string
	Kind     models.Kind
	Order    *int
	Strength *int
}

// Edge is a main model to encoder association
type Edge struct {
	Parent string
	Child  string
}

// Index is the merged, read-only view of all manifests in a directory. The zero
// value is an empty index.
type Index struct {
	entries map[string]Entry
	edges   []Edge
}

// Load reads every manifest in dir. A missing file contributes nothing; a malformed
// one is reported in the returned error slice and skipped, leaving the others intact.
func Load(fs afero.Fs, dir string) (*Index, []error) {
	var errs []error

	var mains []CustomModel
	if err := readJSON(fs, filepath.Join(dir, ModelsFile), &mains); err != nil {
		errs = append(errs, err)
		mains = nil
	}

	var loras []CustomLora
	if err := readJSON(fs, filepath.Join(dir, LorasFile), &loras); err != nil {
		errs = append(errs, err)
		loras = nil
	}

	var controls []CustomControlNet
	if err := readJSON(fs, filepath.Join(dir, ControlNetFile), &controls); err != nil {
		errs = append(errs, err)
		controls = nil
	}

	return Build(mains, loras, controls), errs
}

// Build assembles an index from already decoded lists. Encoder files get the kind
// of the slot they fill unless a list names them explicitly.
func Build(mains []CustomModel, loras []CustomLora, controls []CustomControlNet) *Index {
	idx := &Index{entries: make(map[string]Entry)}
	encoders := make(map[string]models.Kind)

	for i, m := range mains {
		if m.File == "" {
			continue
		}
		idx.put(m.File, m.Name, models.KindModel, i, nil)

		for _, slot := range []struct {
			file *string
			kind models.Kind
		}{
			{m.Autoencoder, models.KindVAE},
			{m.ClipEncoder, models.KindClip},
			{m.TextEncoder, models.KindText},
		} {
			if slot.file == nil || *slot.file == "" {
				continue
			}
			if _, ok := encoders[*slot.file]; !ok {
				encoders[*slot.file] = slot.kind
			}
			idx.edges = append(idx.edges, Edge{Parent: m.File, Child: *slot.file})
		}
	}

	for i, l := range loras {
		if l.File == "" {
			continue
		}
		var strength *int
		if l.Weight != nil {
			s := int(math.Round(l.Weight.Value * 10))
			strength = &s
		}
		idx.put(l.File, l.Name, models.KindLora, i, strength)
	}

	for i, c := range controls {
		if c.File == "" {
			continue
		}
		idx.put(c.File, c.Name, models.KindControl, i, nil)
	}

	for file, kind := range encoders {
		if _, ok := idx.entries[file]; !ok {
			idx.entries[file] = Entry{Kind: kind}
		}
	}

	sort.SliceStable(idx.edges, func(i, j int) bool {
		if idx.edges[i].Parent != idx.edges[j].Parent {
			return idx.edges[i].Parent < idx.edges[j].Parent
		}
		return idx.edges[i].Child < idx.edges[j].Child
	})
	idx.edges = dedupe(idx.edges)

	return idx
}

func (idx *Index) put(file, name string, kind models.Kind, order int, strength *int) {
	entry := Entry{Kind: kind, Order: &order, Strength: strength}
	if name != "" {
		entry.Name = &name
	}
	idx.entries[file] = entry
}

// Lookup returns the manifest entry for filename.
func (idx *Index) Lookup(filename string) (Entry, bool) {
	if idx == nil || idx.entries == nil {
		return Entry{}, false
	}
	e, ok := idx.entries[filename]
	return e, ok
}

// Kind returns the manifest-assigned kind for filename.
func (idx *Index) Kind(filename string) (models.Kind, bool) {
	e, ok := idx.Lookup(filename)
	if !ok {
		return "", false
	}
	return e.Kind, true
}

// Edges returns the encoder associations sorted by parent then child.
func (idx *Index) Edges() []Edge {
	if idx == nil {
		return nil
	}
	out := make([]Edge, len(idx.edges))
	copy(out, idx.edges)
	return out
}

func (idx *Index) Len() int {
	if idx == nil {
		return 0
	}
	return len(idx.entries)
}

func readJSON(fs afero.Fs, path string, v any) error {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return &errdefs.ManifestError{Source: path, Err: err}
	}

	if err := json.Unmarshal(data, v); err != nil {
		return &errdefs.ManifestError{Source: path, Err: err}
	}
	return nil
}

func dedupe(edges []Edge) []Edge {
	if len(edges) < 2 {
		return edges
	}
	out := edges[:1]
	for _, e := range edges[1:] {
		if e != out[len(out)-1] {
			out = append(out, e)
		}
	}
	return out
}
