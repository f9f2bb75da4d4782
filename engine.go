package livia

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// Engine defaults.
const (
	defaultHandlerLimit = 5
	defaultDedupeSize   = 4096
)

// thinkCommand marks a request for the direct reasoner flow.
const thinkCommand = "+think"

// audioOnlyPrompt is appended when a message carries audio but no text.
const audioOnlyPrompt = "Responda à mensagem de áudio transcrita acima."

// Fixed user-facing error messages, one per category. Never generated by the
// model.
const (
	ownerHandle = "@lucastzuka"

	msgTransient = "⚠️ O serviço está instável no momento. Tente novamente em alguns instantes."
	msgOverflow  = "⚠️ Esta conversa ficou longa demais para o modelo. Abra uma nova thread e tente de novo."
	msgProvider  = "⚠️ O provedor de IA recusou a solicitação. Tente reformular a mensagem."
	msgPlatform  = "⚠️ Não tenho permissão para operar neste canal. Verifique se o bot foi adicionado."
	msgResource  = "⚠️ Não consegui processar os arquivos anexados. Tente enviá-los novamente."
	msgInternal  = "⚠️ Algo deu errado ao processar sua mensagem. Se persistir, avise " + ownerHandle + "."
	msgEmpty     = "Não consegui gerar uma resposta. Tente reformular a mensagem."
)

// Memory warnings appended to the final message. Hard fires at 100% of the
// model's context window, soft at 90%.
const (
	memoryHardWarning = "⚠️ Limite de memória da conversa atingido. Abra uma nova thread para manter o contexto completo."
	memorySoftFormat  = "⚠️ Esta conversa usou %d%% da memória do modelo. Considere abrir uma nova thread em breve."
)

// errorMessage maps an error category to its fixed pt-BR message.
func errorMessage(cat ErrorCategory) string {
	switch cat {
	case CatTransient:
		return msgTransient
	case CatContextOverflow:
		return msgOverflow
	case CatProvider:
		return msgProvider
	case CatPlatformAuth:
		return msgPlatform
	case CatResource:
		return msgResource
	default:
		return msgInternal
	}
}

// memoryFooter renders the usage warning for the final message, or "".
func memoryFooter(used int64, window int) string {
	if window <= 0 {
		return ""
	}
	pct := used * 100 / int64(window)
	switch {
	case pct >= 100:
		return "\n\n" + memoryHardWarning
	case pct >= 90:
		return "\n\n" + fmt.Sprintf(memorySoftFormat, pct)
	}
	return ""
}

// EngineConfig holds the engine's static configuration. Zero fields fall
// back to documented defaults where one exists; BotUserID must be set (use
// Frontend.AuthTest at startup).
type EngineConfig struct {
	// BotUserID is the bot's own platform user id, used for mention and
	// self-message detection.
	BotUserID string
	// AllowedChannels are always eligible.
	AllowedChannels []string
	// AllowedUsers may talk to the bot over DM in production mode.
	AllowedUsers []string
	// Development restricts eligibility to AllowedChannels only.
	Development bool
	// HandlerLimit bounds concurrently running request handlers.
	HandlerLimit int64
	// Models selects the text, vision, and reasoner models.
	Models Models
	// MCPGatewayURL is the MCP gateway base URL. Empty disables the
	// integrations entirely; everything routes to the agent pipeline.
	MCPGatewayURL string
	// MCPCredentials maps service slugs to gateway bearer tokens.
	MCPCredentials map[string]string
	// DedupeSize caps the event dedupe set.
	DedupeSize int
}

// Engine ties the router and the orchestrator together: HandleEvent filters
// inbound platform events and spawns one bounded handler per accepted
// request; handleRequest drives media, documents, history, routing, the
// pipelines, and the presenter for that request.
type Engine struct {
	cfg      EngineConfig
	frontend Frontend
	provider Provider

	governor *Governor
	registry *ThreadRegistry
	tokens   *TokenCounter
	history  *HistoryBuilder
	media    *MediaProcessor
	ingestor *DocIngestor
	mcp      *MCPPipeline
	agent    *AgentPipeline

	handlers *semaphore.Weighted
	seen     *dedupeSet
	logger   *slog.Logger
	tracer   Tracer

	dmMu    sync.RWMutex
	dmCache map[string]bool

	wg sync.WaitGroup
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets the engine's structured logger. Defaults to a no-op logger.
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) { e.logger = l }
}

// WithTracer sets the span tracer. When unset, span creation is skipped.
func WithTracer(t Tracer) EngineOption {
	return func(e *Engine) { e.tracer = t }
}

// WithGovernor replaces the default governor, e.g. to tighten envelopes in
// tests.
func WithGovernor(g *Governor) EngineOption {
	return func(e *Engine) { e.governor = g }
}

// NewEngine wires the engine from its external dependencies: the chat
// platform, the LLM provider, its file store, and its transcriber.
func NewEngine(cfg EngineConfig, fe Frontend, pv Provider, store FileStore, tr Transcriber, opts ...EngineOption) *Engine {
	if cfg.HandlerLimit <= 0 {
		cfg.HandlerLimit = defaultHandlerLimit
	}
	if cfg.DedupeSize <= 0 {
		cfg.DedupeSize = defaultDedupeSize
	}
	if cfg.Models.Text == "" {
		cfg.Models.Text = "gpt-4.1"
	}
	if cfg.Models.Vision == "" {
		cfg.Models.Vision = "gpt-4o"
	}
	if cfg.Models.Reasoner == "" {
		cfg.Models.Reasoner = "o3"
	}

	e := &Engine{
		cfg:      cfg,
		frontend: fe,
		provider: pv,
		handlers: semaphore.NewWeighted(cfg.HandlerLimit),
		seen:     newDedupeSet(cfg.DedupeSize),
		dmCache:  make(map[string]bool),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = nopLogger
	}
	if e.governor == nil {
		e.governor = NewGovernor(WithGovernorLogger(e.logger))
	}

	e.registry = NewThreadRegistry()
	e.tokens = NewTokenCounter()
	e.history = NewHistoryBuilder(fe, e.tokens, e.logger)
	e.media = NewMediaProcessor(fe, tr, e.governor, e.logger)
	e.ingestor = NewDocIngestor(fe, store, e.registry, e.governor, e.logger)
	e.mcp = NewMCPPipeline(pv, e.governor, cfg.MCPGatewayURL, cfg.MCPCredentials, cfg.Models, e.logger)
	e.agent = NewAgentPipeline(pv, e.governor, e.registry, cfg.MCPGatewayURL, cfg.MCPCredentials, cfg.Models, e.logger)
	return e
}

// Registry exposes the thread registry, for startup wiring and tests.
func (e *Engine) Registry() *ThreadRegistry { return e.registry }

// Drain waits for in-flight handlers to finish or ctx to expire.
func (e *Engine) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// HandleEvent is the router: it filters one inbound platform event and, when
// the event is eligible, spawns a detached handler. It never blocks on
// pipeline work; back-pressure is applied inside the handler by the handler
// semaphore.
func (e *Engine) HandleEvent(ctx context.Context, ev Event) {
	if ev.BotID != "" || ev.User == "" || ev.User == e.cfg.BotUserID {
		return
	}

	images, audio, docs := splitFiles(ev.Files)
	if strings.TrimSpace(ev.Text) == "" && len(audio) == 0 {
		return
	}

	if !e.allowed(ctx, ev) {
		return
	}

	if e.seen.Seen(dedupeKey(ev.Channel, ev.TS, ev.User)) {
		e.logger.Debug("duplicate event dropped", "channel", ev.Channel, "ts", ev.TS)
		return
	}

	isDM := e.isDM(ctx, ev.Channel)
	threadTS, ok := e.decideRespond(ctx, ev, isDM)
	if !ok {
		return
	}

	if IsSelfEcho(ev.Text) {
		e.logger.Debug("self echo dropped", "channel", ev.Channel, "ts", ev.TS)
		return
	}

	text := stripMention(ev.Text, e.cfg.BotUserID)
	text, force := stripThinkCommand(text)

	req := Request{
		ID:            NewID(),
		Channel:       ev.Channel,
		ThreadTS:      threadTS,
		TS:            ev.TS,
		User:          ev.User,
		Text:          text,
		IsDM:          isDM,
		Images:        images,
		Audio:         audio,
		Documents:     docs,
		ForceThinking: force,
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.handleRequest(ctx, req)
	}()
}

// allowed enforces the channel allow-list. Development mode admits listed
// channels only; production mode additionally admits DMs from listed users.
func (e *Engine) allowed(ctx context.Context, ev Event) bool {
	if containsString(e.cfg.AllowedChannels, ev.Channel) {
		return true
	}
	if e.cfg.Development {
		return false
	}
	if !containsString(e.cfg.AllowedUsers, ev.User) {
		return false
	}
	return e.isDM(ctx, ev.Channel)
}

// isDM reports whether the channel is a direct message. The platform's "D"
// id prefix answers without a call; anything else is resolved once and
// cached.
func (e *Engine) isDM(ctx context.Context, channel string) bool {
	if strings.HasPrefix(channel, "D") {
		return true
	}

	e.dmMu.RLock()
	im, ok := e.dmCache[channel]
	e.dmMu.RUnlock()
	if ok {
		return im
	}

	info, err := e.frontend.ChannelInfo(ctx, channel)
	if err != nil {
		e.logger.Warn("channel info lookup failed", "channel", channel, "error", err)
		return false
	}

	e.dmMu.Lock()
	e.dmCache[channel] = info.IsIM
	e.dmMu.Unlock()
	return info.IsIM
}

// decideRespond applies the respond-or-ignore rules and returns the thread
// root the reply belongs to:
//
//   - DMs always get a response, threaded or not;
//   - a threaded reply gets one iff the thread's first message mentioned the
//     bot;
//   - a top-level channel message gets one iff it mentions the bot, and the
//     response starts a thread rooted at it.
func (e *Engine) decideRespond(ctx context.Context, ev Event, isDM bool) (string, bool) {
	if isDM {
		return ev.ThreadTS, true
	}

	if ev.ThreadTS != "" && ev.ThreadTS != ev.TS {
		if !e.threadAddressesBot(ctx, ev.Channel, ev.ThreadTS) {
			return "", false
		}
		return ev.ThreadTS, true
	}

	if !mentionsBot(ev.Text, e.cfg.BotUserID) {
		return "", false
	}
	return ev.TS, true
}

// threadAddressesBot reports whether the first message of the thread
// mentions the bot. Lookup failures fail closed: a later mention in the
// thread never overrides the root.
func (e *Engine) threadAddressesBot(ctx context.Context, channel, threadTS string) bool {
	replies, err := e.frontend.ThreadReplies(ctx, channel, threadTS, 1)
	if err != nil {
		e.logger.Warn("thread root lookup failed", "channel", channel, "thread", threadTS, "error", err)
		return false
	}
	return len(replies) > 0 && mentionsBot(replies[0].Text, e.cfg.BotUserID)
}

func mentionsBot(text, botUserID string) bool {
	return botUserID != "" && strings.Contains(text, "<@"+botUserID+">")
}

// stripMention removes the bot mention token wherever it appears.
func stripMention(text, botUserID string) string {
	if botUserID == "" {
		return strings.TrimSpace(text)
	}
	return strings.TrimSpace(strings.ReplaceAll(text, "<@"+botUserID+">", " "))
}

// stripThinkCommand detects the +think prefix, returning the remaining text
// and whether the direct reasoner flow was requested.
func stripThinkCommand(text string) (string, bool) {
	if !strings.HasPrefix(strings.ToLower(text), thinkCommand) {
		return text, false
	}
	return strings.TrimSpace(text[len(thinkCommand):]), true
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// handleRequest is the orchestrator: one request in, one finalized message
// out, whatever happens in between.
func (e *Engine) handleRequest(ctx context.Context, req Request) {
	if err := e.handlers.Acquire(ctx, 1); err != nil {
		return
	}
	defer e.handlers.Release(1)

	var span Span
	if e.tracer != nil {
		ctx, span = e.tracer.Start(ctx, "engine.handle_request",
			StringAttr("request.id", req.ID),
			StringAttr("channel", req.Channel),
			BoolAttr("dm", req.IsDM))
		defer span.End()
	}

	start := time.Now()
	e.logger.Info("handling request",
		"request", req.ID,
		"channel", req.Channel,
		"thread", req.ThreadTS,
		"user", req.User,
		"images", len(req.Images),
		"audio", len(req.Audio),
		"documents", len(req.Documents))

	base := TagInput{
		Model:         e.cfg.Models.Text,
		VisionModel:   e.cfg.Models.Vision,
		ReasonerModel: e.cfg.Models.Reasoner,
		HasImages:     len(req.Images) > 0 || len(ExtractImageURLs(req.Text)) > 0,
		HasAudio:      len(req.Audio) > 0,
		UserText:      req.Text,
	}
	if req.ForceThinking {
		base.ToolCalls = []ToolCall{{Name: ThinkingToolName}}
	}

	pres := NewPresenter(e.frontend, req.Channel, req.ThreadTS, base, e.logger)
	if err := pres.Begin(ctx); err != nil {
		e.logger.Error("placeholder post failed",
			"request", req.ID,
			"channel", req.Channel,
			"error", err)
		if span != nil {
			span.Error(err)
		}
		return
	}

	prompt, images := e.prepare(ctx, req, pres)

	res, err := e.run(ctx, req, prompt, images, pres)
	if err != nil && Category(err) == CatTransient {
		e.logger.Warn("transient failure, retrying request", "request", req.ID, "error", err)
		res, err = e.run(ctx, req, prompt, images, pres)
	}

	if err != nil {
		cat := Category(err)
		e.logger.Error("request failed",
			"request", req.ID,
			"category", cat.String(),
			"error", err)
		if span != nil {
			span.Error(err)
		}
		if ferr := pres.FinalizeError(ctx, errorMessage(cat)); ferr != nil {
			e.logger.Error("error finalize failed", "request", req.ID, "error", ferr)
		}
		return
	}

	text := strings.TrimSpace(res.Text)
	if text == "" {
		text = msgEmpty
	}

	total := e.registry.Get(req.ThreadKey()).AddTokens(res.Usage.Total())
	footer := memoryFooter(total, ContextWindow(res.Model))

	if ferr := pres.Finalize(ctx, text, res.ToolCalls, footer); ferr != nil {
		e.logger.Error("finalize failed", "request", req.ID, "error", ferr)
	}

	e.deliverImages(ctx, req, res.Images)

	e.logger.Info("request done",
		"request", req.ID,
		"model", res.Model,
		"tool_calls", len(res.ToolCalls),
		"input_tokens", res.Usage.InputTokens,
		"output_tokens", res.Usage.OutputTokens,
		"thread_tokens", total,
		"duration", time.Since(start).Round(time.Millisecond))
	if span != nil {
		span.SetAttr(
			StringAttr("model", res.Model),
			IntAttr("tool_calls", len(res.ToolCalls)),
			IntAttr("tokens", res.Usage.Total()))
	}
}

// prepare assembles the prompt: audio transcriptions, the user text, the
// document ingest note, and the trimmed thread history. Returns the prompt
// and the image URL list for the vision endpoint.
func (e *Engine) prepare(ctx context.Context, req Request, pres *Presenter) (string, []string) {
	images := e.media.CollectImages(ctx, req)

	var parts []string
	if transcripts := e.media.TranscribeAudio(ctx, req); len(transcripts) > 0 {
		parts = append(parts, strings.Join(transcripts, "\n"))
		if strings.TrimSpace(req.Text) == "" {
			parts = append(parts, audioOnlyPrompt)
		}
	}
	if strings.TrimSpace(req.Text) != "" {
		parts = append(parts, req.Text)
	}

	if len(req.Documents) > 0 {
		if _, note := e.ingestor.Ingest(ctx, req, func(msg string) { pres.Progress(ctx, msg) }); note != "" {
			parts = append(parts, note)
		}
	}

	prompt := strings.Join(parts, "\n\n")

	model := e.effectiveModel(req, images)
	if history, ok := e.history.Build(ctx, req.Channel, req.ThreadTS, model); ok {
		prompt = "Histórico da conversa:\n" + history + "\n\nMensagem atual:\n" + prompt
	}
	return prompt, images
}

// effectiveModel picks the model whose context window bounds history
// trimming for this request.
func (e *Engine) effectiveModel(req Request, images []string) string {
	switch {
	case req.ForceThinking:
		return e.cfg.Models.Reasoner
	case len(images) > 0:
		return e.cfg.Models.Vision
	default:
		return e.cfg.Models.Text
	}
}

// run routes the request and executes the selected pipeline. Integration
// failures fall back to the agent pipeline, except context overflow, which
// surfaces its fixed message directly.
func (e *Engine) run(ctx context.Context, req Request, prompt string, images []string, sink StreamSink) (Result, error) {
	if !req.ForceThinking && e.cfg.MCPGatewayURL != "" {
		if svc := RouteService(req.Text); svc != nil {
			res, err := e.mcp.Run(ctx, svc, prompt, images, sink)
			if err == nil {
				return res, nil
			}
			if Category(err) == CatContextOverflow {
				return Result{}, err
			}
			e.logger.Warn("integration pipeline failed, falling back to agent",
				"request", req.ID,
				"service", svc.Slug,
				"error", err)
		}
	}
	return e.agent.Run(ctx, req, prompt, images, sink)
}

// deliverImages uploads generated images into the thread after the final
// edit. Decode or upload failures are logged and skipped; the text response
// already stands.
func (e *Engine) deliverImages(ctx context.Context, req Request, images []GeneratedImage) {
	for i, img := range images {
		data, err := base64.StdEncoding.DecodeString(img.B64)
		if err != nil {
			e.logger.Warn("generated image decode failed", "request", req.ID, "error", err)
			continue
		}
		name := img.Name
		if name == "" {
			name = fmt.Sprintf("imagem-%d.png", i+1)
		}
		title := img.Prompt
		if title == "" {
			title = "Imagem gerada"
		}
		if err := e.frontend.UploadFile(ctx, req.Channel, req.ThreadTS, name, title, data); err != nil {
			e.logger.Warn("generated image upload failed", "request", req.ID, "file", name, "error", err)
		}
	}
}
