package workflow

import (
	"encoding/json"
	"testing"

	"github.com/DavidJBarnes/wan22-long-form-video/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildParams() BuildParams {
	settings := config.Default()
	return BuildParams{
		PositivePrompt:     "a cat walking through tall grass",
		NegativePrompt:     settings.DefaultNegativePrompt,
		ImageFilename:      "start_image.png",
		Width:              640,
		Height:             640,
		NumFrames:          81,
		FPS:                16,
		OutputPrefix:       "wan_segment_001",
		Models:             settings.Models,
		FirstPass:          settings.FirstPass,
		SecondPass:         settings.SecondPass,
		ModelSamplingShift: settings.ModelSamplingShift,
	}
}

func TestBuild(t *testing.T) {
	g := Build(buildParams())
	require.NoError(t, g.Validate())

	// Without LoRA overlays the graph has exactly the fifteen base nodes.
	assert.Len(t, g, 15)
	assert.NotContains(t, g, nodeHighNoiseLora)
	assert.NotContains(t, g, nodeLowNoiseLora)

	// The sampling nodes reference the raw weight loaders.
	assert.Equal(t, nodeHighNoiseUNet, g[nodeHighNoiseSampling].Inputs["model"].Ref.Node)
	assert.Equal(t, nodeLowNoiseUNet, g[nodeLowNoiseSampling].Inputs["model"].Ref.Node)

	// The second pass consumes the first pass's latent.
	assert.Equal(t, nodeFirstPass, g[nodeSecondPass].Inputs["latent_image"].Ref.Node)

	// Noise handling differs between the passes.
	assert.Equal(t, "enable", g[nodeFirstPass].Inputs["add_noise"].Literal)
	assert.Equal(t, "enable", g[nodeFirstPass].Inputs["return_with_leftover_noise"].Literal)
	assert.Equal(t, "disable", g[nodeSecondPass].Inputs["add_noise"].Literal)
	assert.Equal(t, "disable", g[nodeSecondPass].Inputs["return_with_leftover_noise"].Literal)

	// Step windows are continuous across the passes.
	assert.Equal(t, 0, g[nodeFirstPass].Inputs["start_at_step"].Literal)
	assert.Equal(t, 10, g[nodeFirstPass].Inputs["end_at_step"].Literal)
	assert.Equal(t, 10, g[nodeSecondPass].Inputs["start_at_step"].Literal)
	assert.Equal(t, 10000, g[nodeSecondPass].Inputs["end_at_step"].Literal)

	// Both passes share one seed.
	assert.Equal(t, g[nodeFirstPass].Inputs["noise_seed"].Literal, g[nodeSecondPass].Inputs["noise_seed"].Literal)
}

func TestBuild_HighNoiseLoraOnly(t *testing.T) {
	p := buildParams()
	p.HighNoiseLora = "wan_motion.safetensors"

	g := Build(p)
	require.NoError(t, g.Validate())
	assert.Len(t, g, 16)

	// The overlay sits between the loader and the sampling node.
	require.Contains(t, g, nodeHighNoiseLora)
	assert.Equal(t, nodeHighNoiseUNet, g[nodeHighNoiseLora].Inputs["model"].Ref.Node)
	assert.Equal(t, "wan_motion.safetensors", g[nodeHighNoiseLora].Inputs["lora_name"].Literal)
	assert.Equal(t, nodeHighNoiseLora, g[nodeHighNoiseSampling].Inputs["model"].Ref.Node)

	// The low-noise pass keeps its raw loader.
	assert.NotContains(t, g, nodeLowNoiseLora)
	assert.Equal(t, nodeLowNoiseUNet, g[nodeLowNoiseSampling].Inputs["model"].Ref.Node)
}

func TestBuild_BothLoras(t *testing.T) {
	p := buildParams()
	p.HighNoiseLora = "high.safetensors"
	p.LowNoiseLora = "low.safetensors"

	g := Build(p)
	require.NoError(t, g.Validate())
	assert.Len(t, g, 17)
	assert.Equal(t, nodeHighNoiseLora, g[nodeHighNoiseSampling].Inputs["model"].Ref.Node)
	assert.Equal(t, nodeLowNoiseLora, g[nodeLowNoiseSampling].Inputs["model"].Ref.Node)
}

func TestBuild_SeedHandling(t *testing.T) {
	var next int64
	origSeed := newSeed
	newSeed = func() int64 {
		next++
		return next
	}
	defer func() { newSeed = origSeed }()

	// A fresh seed is drawn per build when none is pinned.
	p := buildParams()
	first := Build(p)[nodeFirstPass].Inputs["noise_seed"].Literal
	second := Build(p)[nodeFirstPass].Inputs["noise_seed"].Literal
	assert.NotEqual(t, first, second)

	// A pinned seed is used verbatim.
	seed := int64(424242)
	p.Seed = &seed
	g := Build(p)
	assert.Equal(t, seed, g[nodeFirstPass].Inputs["noise_seed"].Literal)
	assert.Equal(t, seed, g[nodeSecondPass].Inputs["noise_seed"].Literal)
}

func TestInput_MarshalJSON(t *testing.T) {
	refJSON, err := json.Marshal(RefTo("10", 2))
	require.NoError(t, err)
	assert.JSONEq(t, `["10", 2]`, string(refJSON))

	litJSON, err := json.Marshal(Lit("euler"))
	require.NoError(t, err)
	assert.JSONEq(t, `"euler"`, string(litJSON))
}

func TestGraph_MarshalJSON(t *testing.T) {
	g := Build(buildParams())
	data, err := json.Marshal(g)
	require.NoError(t, err)

	var decoded map[string]struct {
		ClassType string                     `json:"class_type"`
		Inputs    map[string]json.RawMessage `json:"inputs"`
	}
	require.NoError(t, json.Unmarshal(data, &decoded))

	require.Contains(t, decoded, nodeSecondPass)
	assert.Equal(t, "KSamplerAdvanced", decoded[nodeSecondPass].ClassType)
	assert.JSONEq(t, `["11", 0]`, string(decoded[nodeSecondPass].Inputs["latent_image"]))
}

func TestGraph_Validate(t *testing.T) {
	t.Run("dangling reference", func(t *testing.T) {
		g := Graph{
			"1": {ClassType: "VAEDecode", Inputs: map[string]Input{
				"samples": RefTo("99", 0),
			}},
		}
		err := g.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "missing node 99")
	})

	t.Run("cycle", func(t *testing.T) {
		g := Graph{
			"1": {ClassType: "A", Inputs: map[string]Input{"in": RefTo("2", 0)}},
			"2": {ClassType: "B", Inputs: map[string]Input{"in": RefTo("1", 0)}},
		}
		err := g.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "cycle")
	})

	t.Run("self reference", func(t *testing.T) {
		g := Graph{
			"1": {ClassType: "A", Inputs: map[string]Input{"in": RefTo("1", 0)}},
		}
		assert.Error(t, g.Validate())
	})
}
