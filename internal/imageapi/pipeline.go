package imageapi

import (
	"context"
	"strings"
	"unicode/utf8"
)

// Models passed to the remote API per workflow. The edit endpoint defaults
// to the classic edit model; reference-guided work uses the vision-capable
// one.
const (
	ModelEdit   = "dall-e-2"
	ModelVision = "gpt-image-1"
)

// Params are the user-tunable generation knobs shared by all modes.
type Params struct {
	N       int
	Size    string
	Quality string
}

// Submission pairs a validated request with the endpoint it targets, plus
// any soft warning raised during validation.
type Submission struct {
	Request GenerationRequest
	Kind    EndpointKind
	Warning string
}

// NewEditSubmission validates a single-image edit: one PNG under the edit
// size limit plus a prompt.
func NewEditSubmission(image ImageAsset, prompt string, params Params) (Submission, error) {
	if err := validatePrompt(prompt); err != nil {
		return Submission{}, err
	}
	image, err := ValidateAsset(image, ModeEdit)
	if err != nil {
		return Submission{}, err
	}
	return Submission{
		Request: GenerationRequest{
			Prompt:  prompt,
			Image:   image,
			N:       params.N,
			Size:    params.Size,
			Quality: params.Quality,
			Model:   ModelEdit,
		},
		Kind: EndpointEdit,
	}, nil
}

// NewComposeSubmission validates a reference-guided generation: 1-4
// reference images plus a prompt.
func NewComposeSubmission(refs []ImageAsset, prompt string, params Params) (Submission, error) {
	if err := validatePrompt(prompt); err != nil {
		return Submission{}, err
	}
	refs, err := ValidateReferences(refs)
	if err != nil {
		return Submission{}, err
	}
	return Submission{
		Request: GenerationRequest{
			Prompt:     prompt,
			References: refs,
			N:          params.N,
			Size:       params.Size,
			Quality:    params.Quality,
			Model:      ModelVision,
		},
		Kind: EndpointVisionGenerate,
	}, nil
}

// NewInpaintSubmission validates a masked edit: base image and mask each
// checked independently, with a soft warning on dimension mismatch.
func NewInpaintSubmission(base ImageAsset, mask MaskAsset, prompt string, params Params) (Submission, error) {
	if err := validatePrompt(prompt); err != nil {
		return Submission{}, err
	}
	base, mask, warning, err := ValidateMaskPair(base, mask)
	if err != nil {
		return Submission{}, err
	}
	return Submission{
		Request: GenerationRequest{
			Prompt:  prompt,
			Image:   base,
			Mask:    &mask,
			N:       params.N,
			Size:    params.Size,
			Quality: params.Quality,
			Model:   ModelVision,
		},
		Kind:    EndpointEdit,
		Warning: warning,
	}, nil
}

func validatePrompt(prompt string) error {
	if strings.TrimSpace(prompt) == "" {
		return ErrPromptRequired
	}
	// The limit is in characters, matching the front-end counters; a
	// multibyte prompt must not be penalized for its encoding.
	if n := utf8.RuneCountInString(prompt); n > MaxPromptLen {
		return wrapf(ErrPromptTooLong, "%d characters, limit is %d", n, MaxPromptLen)
	}
	return nil
}

// Pipeline glues the four stages together: build, submit, materialize. Both
// front ends drive requests through the same instance; it holds no per
// request state.
type Pipeline struct {
	client       *Client
	materializer *Materializer
}

// NewPipeline wires a pipeline from its two networked stages.
func NewPipeline(client *Client, materializer *Materializer) *Pipeline {
	return &Pipeline{client: client, materializer: materializer}
}

// Run executes a validated submission end to end and returns the
// materialized outputs in API order.
func (p *Pipeline) Run(ctx context.Context, sub Submission, apiKey string) ([]Output, error) {
	payload, err := BuildPayload(sub.Request)
	if err != nil {
		return nil, err
	}
	result, err := p.client.Submit(ctx, payload, apiKey, sub.Kind)
	if err != nil {
		return nil, err
	}
	return p.materializer.Materialize(ctx, result)
}
