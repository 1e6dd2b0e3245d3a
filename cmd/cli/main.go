package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/joho/godotenv"

	"imagestudio/internal/imageapi"
	"imagestudio/internal/infra"
	"imagestudio/internal/infra/credentials"
	"imagestudio/internal/storage"
)

type options struct {
	mode    string
	image   string
	refs    string
	mask    string
	prompt  string
	out     string
	key     string
	n       int
	size    string
	quality string
}

func main() {
	_ = godotenv.Load()

	var opts options
	flag.StringVar(&opts.mode, "mode", "edit", "workflow: edit, compose or inpaint")
	flag.StringVar(&opts.image, "image", "", "path to the base image")
	flag.StringVar(&opts.refs, "refs", "", "comma-separated reference image paths (compose mode)")
	flag.StringVar(&opts.mask, "mask", "", "path to the mask image (inpaint mode)")
	flag.StringVar(&opts.prompt, "prompt", "", "generation prompt")
	flag.StringVar(&opts.out, "out", "generated_image.png", "output file name")
	flag.StringVar(&opts.key, "key", "", "API key (fallbacks to "+credentials.EnvVar+" or interactive entry)")
	flag.IntVar(&opts.n, "n", imageapi.DefaultN, "number of output images")
	flag.StringVar(&opts.size, "size", imageapi.DefaultSize, "output size")
	flag.StringVar(&opts.quality, "quality", "", "quality tier (standard or high)")
	flag.Parse()

	os.Exit(run(opts, os.Stdin, os.Stdout))
}

func run(opts options, stdin io.Reader, stdout io.Writer) int {
	fail := color.New(color.FgRed).FprintfFunc()
	note := color.New(color.FgCyan).FprintfFunc()
	warn := color.New(color.FgYellow).FprintfFunc()
	ok := color.New(color.FgGreen).FprintfFunc()

	cfg, err := infra.LoadConfig()
	if err != nil {
		fail(stdout, "configuration error: %v\n", err)
		return 1
	}
	logger := infra.NewLogger(cfg.AppEnv)

	p := newPrompter(stdin, stdout)
	sub, err := buildSubmission(opts, p)
	if err != nil {
		fail(stdout, "%v\n", err)
		return 1
	}
	if sub.Warning != "" {
		warn(stdout, "warning: %s\n", sub.Warning)
	}

	resolver := credentials.NewResolver(func() (string, error) {
		return p.ask("API key")
	})
	apiKey, err := resolver.Resolve(firstNonEmpty(opts.key, cfg.OpenAIAPIKey))
	if err != nil {
		fail(stdout, "%v\n", err)
		return 1
	}

	httpClient := &http.Client{Timeout: cfg.RequestTimeout}
	client := imageapi.NewClient(imageapi.ClientOptions{
		BaseURL:    cfg.OpenAIBaseURL,
		HTTPClient: httpClient,
		Logger:     &logger,
		MaxRetries: cfg.MaxRetries,
	})
	pipeline := imageapi.NewPipeline(client, imageapi.NewMaterializer(httpClient))

	note(stdout, "submitting request, this can take a minute...\n")
	outputs, err := pipeline.Run(context.Background(), sub, apiKey)
	if err != nil {
		fail(stdout, "%v\n", err)
		return 1
	}

	store, err := storage.NewFileStore(cfg.OutputDir)
	if err != nil {
		fail(stdout, "%v\n", err)
		return 1
	}
	saved := 0
	for _, out := range outputs {
		if out.Err != nil {
			fail(stdout, "image %d: %v\n", out.Index+1, out.Err)
			continue
		}
		path, err := store.Write(context.Background(), outputName(opts.out, out.Index, len(outputs)), out.Data)
		if err != nil {
			fail(stdout, "image %d: %v\n", out.Index+1, err)
			continue
		}
		ok(stdout, "saved %s\n", path)
		saved++
	}
	if saved == 0 {
		fail(stdout, "no images could be saved\n")
		return 1
	}
	return 0
}

// buildSubmission gathers and validates inputs for the selected mode,
// re-prompting interactively on recoverable input errors.
func buildSubmission(opts options, p *prompter) (imageapi.Submission, error) {
	mode := imageapi.NormalizeMode(opts.mode)
	prompt := strings.TrimSpace(opts.prompt)
	if prompt == "" {
		answer, err := p.ask("Prompt")
		if err != nil {
			return imageapi.Submission{}, err
		}
		prompt = answer
	}
	params := imageapi.Params{N: opts.n, Size: opts.size, Quality: opts.quality}

	switch mode {
	case imageapi.ModeCompose:
		refs, err := p.askAssets("Reference images", splitPaths(opts.refs))
		if err != nil {
			return imageapi.Submission{}, err
		}
		return imageapi.NewComposeSubmission(refs, prompt, params)
	case imageapi.ModeInpaint:
		base, err := p.askAsset("Base image path", opts.image, imageapi.ModeInpaint)
		if err != nil {
			return imageapi.Submission{}, err
		}
		mask, err := p.askAsset("Mask image path", opts.mask, imageapi.ModeInpaint)
		if err != nil {
			return imageapi.Submission{}, err
		}
		return imageapi.NewInpaintSubmission(base, mask, prompt, params)
	default:
		image, err := p.askAsset("Image path", opts.image, imageapi.ModeEdit)
		if err != nil {
			return imageapi.Submission{}, err
		}
		return imageapi.NewEditSubmission(image, prompt, params)
	}
}

func outputName(requested string, index, total int) string {
	if total == 1 {
		return requested
	}
	ext := filepath.Ext(requested)
	stem := strings.TrimSuffix(requested, ext)
	if ext == "" {
		ext = ".png"
	}
	return fmt.Sprintf("%s_%d%s", stem, index+1, ext)
}

func splitPaths(list string) []string {
	var paths []string
	for _, part := range strings.Split(list, ",") {
		if part = strings.TrimSpace(part); part != "" {
			paths = append(paths, part)
		}
	}
	return paths
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
