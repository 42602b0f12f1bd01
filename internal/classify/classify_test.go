package classify

import (
	"testing"

	"github.com/ianscrivener/draw-things-companion/internal/manifest"
	"github.com/ianscrivener/draw-things-companion/internal/registry"
	"github.com/ianscrivener/draw-things-companion/pkg/db/models"
	"github.com/stretchr/testify/assert"
)

func TestHeuristic(t *testing.T) {
	tests := []struct {
		filename string
		want     models.Kind
	}{
		{"my_lora_v2.safetensors", models.KindLora},
		{"Some_LyCORIS.ckpt", models.KindLora},
		{"controlnet_canny.ckpt", models.KindControl},
		{"t2i_adapter_depth.ckpt", models.KindControl},
		{"clip_vit_l14_f16.ckpt", models.KindClip},
		{"open_vision_model.ckpt", models.KindClip},
		{"text_encoder_q8.ckpt", models.KindText},
		{"t5_xxl.ckpt", models.KindText},
		{"sdxl_vae_f16.ckpt", models.KindVAE},
		{"clip_vae_combo.ckpt", models.KindClip},
		{"gfpgan_v1.4.ckpt", models.KindFaceRestorer},
		{"realesrgan_x4plus.ckpt", models.KindUpscaler},
		{"4x_upscaler.ckpt", models.KindUpscaler},
		{"sd_v1.5_f16.ckpt", models.KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			assert.Equal(t, tt.want, Heuristic(tt.filename))
		})
	}
}

func TestClassifier_ResolutionOrder(t *testing.T) {
	idx := manifest.Build(
		[]manifest.CustomModel{{Name: "Odd", File: "odd_lora_named_model.ckpt"}},
		nil, nil,
	)
	reg := &registry.Registry{
		Models:     registry.Set{"odd_lora_named_model.ckpt": {}},
		Embeddings: registry.Set{"bad_hands.pt": {}},
	}
	c := New(idx, reg)

	kind, source := c.Classify("odd_lora_named_model.ckpt")
	assert.Equal(t, models.KindModel, kind)
	assert.Equal(t, models.KindSourceManifest, source)

	kind, source = c.Classify("bad_hands.pt")
	assert.Equal(t, models.KindEmbedding, kind)
	assert.Equal(t, models.KindSourceRegistry, source)

	kind, source = c.Classify("my_lora_v2.safetensors")
	assert.Equal(t, models.KindLora, kind)
	assert.Equal(t, models.KindSourceHeuristic, source)

	kind, _ = c.Classify("mystery.ckpt")
	assert.Equal(t, models.KindUnknown, kind)
}

func TestClassifier_NilSources(t *testing.T) {
	c := New(nil, nil)

	first, _ := c.Classify("my_lora_v2.safetensors")
	second, _ := c.Classify("my_lora_v2.safetensors")
	assert.Equal(t, models.KindLora, first)
	assert.Equal(t, first, second)
}
