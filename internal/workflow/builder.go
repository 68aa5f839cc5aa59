package workflow

import (
	"math/rand"

	"github.com/DavidJBarnes/wan22-long-form-video/internal/config"
)

// Node identifiers mirror the reference workflow layout, so dumped
// graphs stay comparable against it.
const (
	nodeTextEncoder       = "1"
	nodeVAELoader         = "2"
	nodeHighNoiseUNet     = "3"
	nodeLowNoiseUNet      = "4"
	nodeHighNoiseSampling = "5"
	nodeLowNoiseSampling  = "6"
	nodePositivePrompt    = "7"
	nodeNegativePrompt    = "8"
	nodeStartImage        = "9"
	nodeImageToVideo      = "10"
	nodeFirstPass         = "11"
	nodeSecondPass        = "12"
	nodeDecode            = "13"
	nodeCreateVideo       = "14"
	nodeSaveVideo         = "15"
	nodeHighNoiseLora     = "101"
	nodeLowNoiseLora      = "102"
)

// newSeed draws a fresh seed when none is supplied. Variable so tests
// can substitute a deterministic source.
var newSeed = func() int64 {
	return rand.Int63n(1 << 53)
}

// BuildParams are the inputs for one stage's workflow graph.
type BuildParams struct {
	PositivePrompt string
	NegativePrompt string
	// ImageFilename is the server-side name of the already uploaded
	// start image.
	ImageFilename string
	Width         int
	Height        int
	NumFrames     int
	FPS           int
	OutputPrefix  string
	// Seed pins the noise seed; nil draws a fresh one.
	Seed *int64
	// Optional LoRA overlays per sampling pass.
	HighNoiseLora string
	LowNoiseLora  string

	Models             config.Models
	FirstPass          config.PassParams
	SecondPass         config.PassParams
	ModelSamplingShift float64
}

// Build constructs the two-pass image-to-video sampling graph. Pure
// construction: invalid geometry or frame counts are the server's
// concern, not the builder's.
func Build(p BuildParams) Graph {
	seed := newSeed()
	if p.Seed != nil {
		seed = *p.Seed
	}

	g := Graph{
		nodeTextEncoder: {
			ClassType: "CLIPLoader",
			Inputs: map[string]Input{
				"clip_name": Lit(p.Models.TextEncoder),
				"type":      Lit("wan"),
				"device":    Lit("default"),
			},
		},
		nodeVAELoader: {
			ClassType: "VAELoader",
			Inputs: map[string]Input{
				"vae_name": Lit(p.Models.VAE),
			},
		},
		nodeHighNoiseUNet: {
			ClassType: "UNETLoader",
			Inputs: map[string]Input{
				"unet_name":    Lit(p.Models.HighNoise),
				"weight_dtype": Lit("default"),
			},
		},
		nodeLowNoiseUNet: {
			ClassType: "UNETLoader",
			Inputs: map[string]Input{
				"unet_name":    Lit(p.Models.LowNoise),
				"weight_dtype": Lit("default"),
			},
		},
	}

	// A LoRA overlay sits between the weight loader and the model
	// sampling node for its pass; the sampling node then references the
	// overlay output instead of the raw loader.
	highNoiseModelSource := nodeHighNoiseUNet
	lowNoiseModelSource := nodeLowNoiseUNet

	if p.HighNoiseLora != "" {
		g[nodeHighNoiseLora] = &Node{
			ClassType: "LoraLoaderModelOnly",
			Inputs: map[string]Input{
				"model":          RefTo(nodeHighNoiseUNet, 0),
				"lora_name":      Lit(p.HighNoiseLora),
				"strength_model": Lit(1.0),
			},
		}
		highNoiseModelSource = nodeHighNoiseLora
	}
	if p.LowNoiseLora != "" {
		g[nodeLowNoiseLora] = &Node{
			ClassType: "LoraLoaderModelOnly",
			Inputs: map[string]Input{
				"model":          RefTo(nodeLowNoiseUNet, 0),
				"lora_name":      Lit(p.LowNoiseLora),
				"strength_model": Lit(1.0),
			},
		}
		lowNoiseModelSource = nodeLowNoiseLora
	}

	g[nodeHighNoiseSampling] = &Node{
		ClassType: "ModelSamplingSD3",
		Inputs: map[string]Input{
			"model": RefTo(highNoiseModelSource, 0),
			"shift": Lit(p.ModelSamplingShift),
		},
	}
	g[nodeLowNoiseSampling] = &Node{
		ClassType: "ModelSamplingSD3",
		Inputs: map[string]Input{
			"model": RefTo(lowNoiseModelSource, 0),
			"shift": Lit(p.ModelSamplingShift),
		},
	}

	g[nodePositivePrompt] = &Node{
		ClassType: "CLIPTextEncode",
		Inputs: map[string]Input{
			"clip": RefTo(nodeTextEncoder, 0),
			"text": Lit(p.PositivePrompt),
		},
	}
	g[nodeNegativePrompt] = &Node{
		ClassType: "CLIPTextEncode",
		Inputs: map[string]Input{
			"clip": RefTo(nodeTextEncoder, 0),
			"text": Lit(p.NegativePrompt),
		},
	}

	g[nodeStartImage] = &Node{
		ClassType: "LoadImage",
		Inputs: map[string]Input{
			"image": Lit(p.ImageFilename),
		},
	}

	g[nodeImageToVideo] = &Node{
		ClassType: "WanImageToVideo",
		Inputs: map[string]Input{
			"positive":    RefTo(nodePositivePrompt, 0),
			"negative":    RefTo(nodeNegativePrompt, 0),
			"vae":         RefTo(nodeVAELoader, 0),
			"start_image": RefTo(nodeStartImage, 0),
			"width":       Lit(p.Width),
			"height":      Lit(p.Height),
			"length":      Lit(p.NumFrames),
			"batch_size":  Lit(1),
		},
	}

	g[nodeFirstPass] = samplerNode(highNoisePassInputs(p, seed))
	g[nodeSecondPass] = samplerNode(lowNoisePassInputs(p, seed))

	g[nodeDecode] = &Node{
		ClassType: "VAEDecode",
		Inputs: map[string]Input{
			"samples": RefTo(nodeSecondPass, 0),
			"vae":     RefTo(nodeVAELoader, 0),
		},
	}
	g[nodeCreateVideo] = &Node{
		ClassType: "CreateVideo",
		Inputs: map[string]Input{
			"images": RefTo(nodeDecode, 0),
			"fps":    Lit(p.FPS),
		},
	}
	g[nodeSaveVideo] = &Node{
		ClassType: "SaveVideo",
		Inputs: map[string]Input{
			"video":           RefTo(nodeCreateVideo, 0),
			"filename_prefix": Lit(p.OutputPrefix),
			"format":          Lit("auto"),
			"codec":           Lit("auto"),
		},
	}

	return g
}

func samplerNode(inputs map[string]Input) *Node {
	return &Node{ClassType: "KSamplerAdvanced", Inputs: inputs}
}

func highNoisePassInputs(p BuildParams, seed int64) map[string]Input {
	return map[string]Input{
		"model":                      RefTo(nodeHighNoiseSampling, 0),
		"positive":                   RefTo(nodeImageToVideo, 0),
		"negative":                   RefTo(nodeImageToVideo, 1),
		"latent_image":               RefTo(nodeImageToVideo, 2),
		"add_noise":                  Lit(p.FirstPass.AddNoise),
		"noise_seed":                 Lit(seed),
		"control_after_generate":     Lit("randomize"),
		"steps":                      Lit(p.FirstPass.Steps),
		"cfg":                        Lit(p.FirstPass.CFG),
		"sampler_name":               Lit(p.FirstPass.SamplerName),
		"scheduler":                  Lit(p.FirstPass.Scheduler),
		"start_at_step":              Lit(p.FirstPass.StartAtStep),
		"end_at_step":                Lit(p.FirstPass.EndAtStep),
		"return_with_leftover_noise": Lit(p.FirstPass.ReturnWithLeftoverNoise),
	}
}

func lowNoisePassInputs(p BuildParams, seed int64) map[string]Input {
	return map[string]Input{
		"model":                      RefTo(nodeLowNoiseSampling, 0),
		"positive":                   RefTo(nodeImageToVideo, 0),
		"negative":                   RefTo(nodeImageToVideo, 1),
		"latent_image":               RefTo(nodeFirstPass, 0),
		"add_noise":                  Lit(p.SecondPass.AddNoise),
		"noise_seed":                 Lit(seed),
		"control_after_generate":     Lit("fixed"),
		"steps":                      Lit(p.SecondPass.Steps),
		"cfg":                        Lit(p.SecondPass.CFG),
		"sampler_name":               Lit(p.SecondPass.SamplerName),
		"scheduler":                  Lit(p.SecondPass.Scheduler),
		"start_at_step":              Lit(p.SecondPass.StartAtStep),
		"end_at_step":                Lit(p.SecondPass.EndAtStep),
		"return_with_leftover_noise": Lit(p.SecondPass.ReturnWithLeftoverNoise),
	}
}
