package livia

import (
	"context"
	"log/slog"
)

// Models holds the model identifiers the engine routes between: the default
// text model, the vision model substituted when images are present, and the
// reasoner behind the thinking tool.
type Models struct {
	Text     string
	Vision   string
	Reasoner string
}

// MCPPipeline runs integration-routed requests: one streamed call with the
// service's MCP descriptor as the only tool and tool_choice=required, so the
// model cannot answer without performing the integration action. The
// provider hosts the multi-turn tool loop; the engine only consumes the
// stream. Calls run under the governor's integration pool.
type MCPPipeline struct {
	stream      streamer
	gatewayURL  string
	credentials map[string]string // service slug → bearer credential
	models      Models
	logger      *slog.Logger
}

// NewMCPPipeline creates the pipeline. credentials maps service slugs to the
// gateway bearer tokens; services without an entry send no Authorization
// header.
func NewMCPPipeline(pv Provider, g *Governor, gatewayURL string, credentials map[string]string, models Models, logger *slog.Logger) *MCPPipeline {
	if logger == nil {
		logger = nopLogger
	}
	return &MCPPipeline{
		stream:      streamer{provider: pv, governor: g},
		gatewayURL:  gatewayURL,
		credentials: credentials,
		models:      models,
		logger:      logger,
	}
}

// Run executes the request against svc. The fallback chain:
//
//   - context overflow on a service with a narrowed profile (mail): one
//     retry with the maximally restrictive instructions, then surface;
//   - context overflow anywhere else: surface immediately, the orchestrator
//     shows the fixed conversation-too-long message;
//   - any other failure: one retry with the generic profile;
//   - still failing: the error surfaces and the orchestrator falls back to
//     the agent pipeline.
func (m *MCPPipeline) Run(ctx context.Context, svc *MCPService, prompt string, images []string, sink StreamSink) (Result, error) {
	profile := ProfileFor(svc)

	res, err := m.attempt(ctx, svc, profile.Instructions, prompt, images, sink)
	if err == nil {
		return res, nil
	}

	if Category(err) == CatContextOverflow {
		if !profile.NarrowsOnOverflow() {
			return Result{}, err
		}
		m.logger.Warn("context overflow, retrying with narrowed instructions",
			"service", svc.Slug,
			"error", err)
		return m.attempt(ctx, svc, profile.Narrowed, prompt, images, sink)
	}

	m.logger.Warn("service profile failed, retrying with generic instructions",
		"service", svc.Slug,
		"error", err)
	return m.attempt(ctx, svc, GenericProfile(svc).Instructions, prompt, images, sink)
}

func (m *MCPPipeline) attempt(ctx context.Context, svc *MCPService, instructions, prompt string, images []string, sink StreamSink) (Result, error) {
	parts := make([]ContentPart, 0, 1+len(images))
	parts = append(parts, TextPart(prompt))
	for _, u := range images {
		parts = append(parts, ImagePart(u))
	}

	body := ResponseRequest{
		Model:        m.models.Text,
		Instructions: instructions,
		Input:        []InputItem{UserContent(parts...)},
		Tools:        []ToolSpec{MCPTool(svc.Label, m.gatewayURL, m.credentials[svc.Slug])},
		ToolChoice:   "required",
	}

	res, err := m.stream.respond(ctx, PoolIntegration, body, sink, "")
	if err != nil {
		return Result{}, err
	}
	if res.Model == "" {
		res.Model = m.models.Text
	}
	return res, nil
}
