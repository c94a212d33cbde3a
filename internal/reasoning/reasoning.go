// Package reasoning wraps the language model used for enrichment and
// research packets.
package reasoning

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/arc-research/arc-pipeline/internal/datahub"
)

var ErrEmptyCompletion = errors.New("empty completion")

type Options struct {
	Model       string
	System      string
	Temperature float64
	MaxTokens   int
	JSON        bool
}

// Completer turns a prompt into text.
type Completer interface {
	Complete(ctx context.Context, prompt string, opts Options) (string, error)
}

type provider struct {
	completer Completer
	defaults  Options
}

// AsProvider exposes a completer as the hub's reasoning source. Request
// fields left empty fall back to defaults. The payload is the completion
// encoded as a JSON string.
func AsProvider(c Completer, defaults Options) datahub.Provider {
	return &provider{completer: c, defaults: defaults}
}

func (p *provider) Name() string { return datahub.SourceReasoner }

func (p *provider) Fetch(ctx context.Context, method string, params map[string]string) (json.RawMessage, error) {
	if method != datahub.MethodComplete {
		return nil, datahub.Permanent(fmt.Errorf("reasoner: unsupported method %q", method))
	}
	prompt := strings.TrimSpace(params["prompt"])
	if prompt == "" {
		return nil, datahub.Permanent(errors.New("reasoner: prompt is required"))
	}
	opts, err := p.options(params)
	if err != nil {
		return nil, datahub.Permanent(err)
	}
	text, err := p.completer.Complete(ctx, prompt, opts)
	if err != nil {
		return nil, err
	}
	out, err := json.Marshal(text)
	if err != nil {
		return nil, fmt.Errorf("encode completion: %w", err)
	}
	return out, nil
}

func (p *provider) options(params map[string]string) (Options, error) {
	opts := p.defaults
	if v := params["model"]; v != "" {
		opts.Model = v
	}
	if v := params["system"]; v != "" {
		opts.System = v
	}
	if v := params["temperature"]; v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return Options{}, fmt.Errorf("parse temperature: %w", err)
		}
		opts.Temperature = f
	}
	if v := params["max_tokens"]; v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Options{}, fmt.Errorf("parse max_tokens: %w", err)
		}
		opts.MaxTokens = n
	}
	if v := params["json"]; v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return Options{}, fmt.Errorf("parse json: %w", err)
		}
		opts.JSON = b
	}
	return opts, nil
}

// DecodeCompletion unwraps a reasoner payload back into text.
func DecodeCompletion(data json.RawMessage) (string, error) {
	var text string
	if err := json.Unmarshal(data, &text); err != nil {
		return "", fmt.Errorf("decode completion: %w", err)
	}
	return text, nil
}

// Unavailable is the completer used when no model API key is configured.
type Unavailable struct{}

func (Unavailable) Complete(context.Context, string, Options) (string, error) {
	return "", datahub.Permanent(errors.New("reasoner not configured: set GEMINI_API_KEY"))
}
