package asylum

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/lmittmann/tint"
)

// TransformKind is one of the text-transform slash commands. The set is
// closed; addTransformCommands and instructionFor cover every member.
type TransformKind string

const (
	TransformRewrite   TransformKind = "rewrite"
	TransformImprove   TransformKind = "improve"
	TransformProofread TransformKind = "proofread"
	TransformGrammar   TransformKind = "grammar"
	TransformTone      TransformKind = "tone"
	TransformShorten   TransformKind = "shorten"
	TransformExpand    TransformKind = "expand"
	TransformTitle     TransformKind = "title"
	TransformFeedback  TransformKind = "feedback"
)

const (
	// defaultStyle is used when a style option is omitted
	defaultStyle = "creative"
	// defaultTone is used when the tone option is omitted
	defaultTone = "friendly"
)

func transformKinds() []TransformKind {
	return []TransformKind{
		TransformRewrite,
		TransformImprove,
		TransformProofread,
		TransformGrammar,
		TransformTone,
		TransformShorten,
		TransformExpand,
		TransformTitle,
		TransformFeedback,
	}
}

// TransformRequest is one text-transform invocation.
type TransformRequest struct {
	Kind  TransformKind
	Text  string
	Style string
}

// Instruction renders the templated instruction sent to the AI
// collaborator for this request.
func (r TransformRequest) Instruction() string {
	style := r.Style
	switch r.Kind {
	case TransformRewrite, TransformImprove:
		if style == "" {
			style = defaultStyle
		}
		if r.Kind == TransformRewrite {
			return fmt.Sprintf("Rewrite the following text in a %s style:\n%s", style, r.Text)
		}
		return fmt.Sprintf("Improve the following text, keeping a %s voice:\n%s", style, r.Text)
	case TransformProofread:
		return fmt.Sprintf("Proofread the following text and fix any errors:\n%s", r.Text)
	case TransformGrammar:
		return fmt.Sprintf("Correct the grammar in the following text:\n%s", r.Text)
	case TransformTone:
		if style == "" {
			style = defaultTone
		}
		return fmt.Sprintf("Adjust the tone of the following text to be %s:\n%s", style, r.Text)
	case TransformShorten:
		return fmt.Sprintf("Shorten the following text while keeping its meaning:\n%s", r.Text)
	case TransformExpand:
		return fmt.Sprintf("Expand on the following text with more detail:\n%s", r.Text)
	case TransformTitle:
		return fmt.Sprintf("Suggest a title for the following text:\n%s", r.Text)
	case TransformFeedback:
		return fmt.Sprintf("Give constructive feedback on the following text:\n%s", r.Text)
	}
	return r.Text
}

// TextTransformer is one provider in the transform chain.
type TextTransformer interface {
	// Name identifies the provider in logs
	Name() string
	// Transform produces the result text for the request
	Transform(ctx context.Context, req TransformRequest) (string, error)
}

// TransformChain tries an ordered list of providers; the first success
// wins. The final provider (the offline proofreader) cannot fail, so a
// fully-exhausted chain only happens with a misconfigured empty chain.
type TransformChain struct {
	providers []TextTransformer
	logger    *slog.Logger
}

var errNoTransformProviders = errors.New("no transform providers configured")

// NewTransformChain builds a chain over the given providers, in order.
func NewTransformChain(logger *slog.Logger, providers ...TextTransformer) *TransformChain {
	if logger == nil {
		logger = slog.Default()
	}
	return &TransformChain{
		providers: providers,
		logger:    logger.With(loggerNameKey, "transform"),
	}
}

// Transform runs the request through the providers in order, returning
// the first successful result. Provider error text is logged, never
// returned to the caller's user.
func (c *TransformChain) Transform(
	ctx context.Context,
	req TransformRequest,
) (string, error) {
	for _, provider := range c.providers {
		result, err := provider.Transform(ctx, req)
		if err == nil {
			return result, nil
		}
		c.logger.WarnContext(
			ctx,
			"provider failed, trying next",
			"provider", provider.Name(),
			"kind", string(req.Kind),
			tint.Err(err),
		)
	}
	return "", errNoTransformProviders
}

// aiTransformer backs the chain with the OpenAI completion collaborator.
type aiTransformer struct {
	client CompletionClient
}

// CompletionClient is the narrow AI-rewrite collaborator interface:
// instruction text in, result text out, ErrAIUnavailable on any failure.
type CompletionClient interface {
	Complete(ctx context.Context, instruction string) (string, error)
}

// NewAITransformer wraps a completion client as a chain provider.
func NewAITransformer(client CompletionClient) TextTransformer {
	return &aiTransformer{client: client}
}

func (a *aiTransformer) Name() string { return "openai" }

func (a *aiTransformer) Transform(
	ctx context.Context,
	req TransformRequest,
) (string, error) {
	return a.client.Complete(ctx, req.Instruction())
}

// offlineTransformer backs the chain with the Proofreader. It always
// succeeds.
type offlineTransformer struct {
	proofreader *Proofreader
}

// NewOfflineTransformer wraps the offline proofreader as the chain's
// terminal provider.
func NewOfflineTransformer(p *Proofreader) TextTransformer {
	return &offlineTransformer{proofreader: p}
}

func (o *offlineTransformer) Name() string { return "offline" }

func (o *offlineTransformer) Transform(
	_ context.Context,
	req TransformRequest,
) (string, error) {
	if req.Kind == TransformProofread {
		fixed, issues := o.proofreader.Proofread(req.Text)
		return fmt.Sprintf(
			"%s\n\nIssues:\n- %s",
			fixed,
			strings.Join(issues, "\n- "),
		), nil
	}
	return o.proofreader.Rewrite(req.Text), nil
}
