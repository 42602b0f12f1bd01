package models

import (
	"fmt"
	"strings"
)

// Kind is the categorical tag of a model file
type Kind string

const (
	KindModel        Kind = "model"
	KindLora         Kind = "lora"
	KindControl      Kind = "control"
	KindClip         Kind = "clip"
	KindText         Kind = "text"
	KindVAE          Kind = "vae"
	KindFaceRestorer Kind = "face_restorer"
	KindUpscaler     Kind = "upscaler"
	KindEmbedding    Kind = "embedding"
	KindUnknown      Kind = "unknown"
)

var allKinds = []Kind{
	KindModel, KindLora, KindControl, KindClip, KindText,
	KindVAE, KindFaceRestorer, KindUpscaler, KindEmbedding, KindUnknown,
}

// Kinds returns every known kind in display order.
func Kinds() []Kind {
	return append([]Kind(nil), allKinds...)
}

// ParseKind accepts a kind name case-insensitively. "controlnet" is accepted as an
// alias for control because older catalogs stored it that way.
func ParseKind(s string) (Kind, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	if v == "controlnet" {
		return KindControl, nil
	}
	for _, k := range allKinds {
		if string(k) == v {
			return k, nil
		}
	}
	return KindUnknown, fmt.Errorf("unknown model kind '%s'", s)
}

// KindSource records where a stored kind came from. Higher ranks win.
type KindSource string

const (
	KindSourceHeuristic KindSource = "heuristic"
	KindSourceRegistry  KindSource = "registry"
	KindSourceManifest  KindSource = "manifest"
	KindSourceUser      KindSource = "user"
)

func (s KindSource) Rank() int {
	switch s {
	case KindSourceRegistry:
		return 1
	case KindSourceManifest:
		return 2
	case KindSourceUser:
		return 3
	}
	return 0
}

// Location names one of the two directories a model may live in
type Location string

const (
	LocationHost  Location = "host"
	LocationStash Location = "stash"
)

func ParseLocation(s string) (Location, error) {
	switch strings.ToLower(s) {
	case "host", "mac":
		return LocationHost, nil
	case "stash":
		return LocationStash, nil
	}
	return "", fmt.Errorf("unknown location '%s'", s)
}
