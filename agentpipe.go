package livia

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
)

// maxAgentTurns bounds the agent loop: each turn is one streamed provider
// call, and only local function calls (the thinking tool) force another
// turn. Hosted tools complete provider-side within a single turn.
const maxAgentTurns = 8

// agentInstructions is the system prompt of the native agent.
const agentInstructions = `Você é a Livia, assistente do time no Slack. Responda sempre em português brasileiro, de forma direta e útil.

- Use a busca na web para fatos recentes ou externos e cite as fontes.
- Use a busca em arquivos quando houver documentos anexados à conversa.
- Use as integrações conectadas (email, agenda, tarefas, horas, arquivos, documentos, planilhas, Slack) quando o pedido envolver esses serviços.
- Use deep_thinking_analysis para pedidos que exigem análise profunda ou planejamento.
- Formate a resposta em Markdown simples, sem título.`

const thinkingToolDescription = "Análise profunda de um problema: decomposição, " +
	"alternativas, riscos e recomendação. Use para pedidos de planejamento, " +
	"arquitetura ou decisões difíceis."

var thinkingParams = json.RawMessage(`{
	"type": "object",
	"properties": {
		"question": {
			"type": "string",
			"description": "O problema ou pergunta a analisar, com todo o contexto relevante."
		}
	},
	"required": ["question"],
	"additionalProperties": false
}`)

// thinkingInstructions drives the inner reasoner agent. The --- separator
// pair is the sentinel the formatter looks for when extracting the trace.
const thinkingInstructions = `Você é um analista sênior. Analise o problema com profundidade: decomponha-o, considere alternativas e riscos, e termine com uma recomendação clara.

Se quiser expor o raciocínio passo a passo, escreva-o entre duas linhas contendo apenas "---", e coloque a conclusão depois da segunda linha. Caso contrário, responda apenas com a análise final.`

// AgentPipeline is the native streaming loop: web search, per-thread file
// search, the thinking function tool, image generation and every MCP service
// are offered to the model, which picks freely. Calls run under the
// governor's llm pool.
type AgentPipeline struct {
	stream      streamer
	registry    *ThreadRegistry
	gatewayURL  string
	credentials map[string]string
	models      Models
	logger      *slog.Logger
}

// NewAgentPipeline creates the pipeline. gatewayURL may be empty, which
// leaves the MCP services out of the tool list.
func NewAgentPipeline(pv Provider, g *Governor, reg *ThreadRegistry, gatewayURL string, credentials map[string]string, models Models, logger *slog.Logger) *AgentPipeline {
	if logger == nil {
		logger = nopLogger
	}
	return &AgentPipeline{
		stream:      streamer{provider: pv, governor: g},
		registry:    reg,
		gatewayURL:  gatewayURL,
		credentials: credentials,
		models:      models,
		logger:      logger,
	}
}

// Run drives the agent loop for one request. prompt is the assembled user
// text (history, transcriptions, message); images are URLs the vision
// endpoint can load. ForceThinking requests bypass the loop and stream the
// reasoner directly.
func (a *AgentPipeline) Run(ctx context.Context, req Request, prompt string, images []string, sink StreamSink) (Result, error) {
	if req.ForceThinking {
		return a.runThinkingDirect(ctx, prompt, sink)
	}

	parts := make([]ContentPart, 0, 1+len(images))
	parts = append(parts, TextPart(prompt))
	for _, u := range images {
		parts = append(parts, ImagePart(u))
	}
	input := []InputItem{UserContent(parts...)}

	base := ResponseRequest{
		Model:        a.models.Text,
		Instructions: agentInstructions,
		Tools:        a.buildTools(req.ThreadKey()),
	}
	run := base // per-request copy
	if len(images) > 0 {
		run.Model = a.models.Vision
	}

	var total Result
	total.Model = run.Model
	accumulated := ""

	for turn := 0; turn < maxAgentTurns; turn++ {
		run.Input = input
		res, err := a.stream.respond(ctx, PoolLLM, run, sink, accumulated)
		if err != nil {
			return Result{}, err
		}
		total.Usage.Add(res.Usage)
		total.Images = append(total.Images, res.Images...)
		for _, tc := range res.ToolCalls {
			total.ToolCalls = appendCall(total.ToolCalls, tc)
		}
		accumulated += res.Text

		pending := pendingFunctionCalls(res.ToolCalls)
		if len(pending) == 0 {
			total.Text = accumulated
			return total, nil
		}

		for _, tc := range pending {
			output, usage := a.executeFunction(ctx, tc)
			total.Usage.Add(usage)
			input = append(input, FunctionCallItem(tc), FunctionOutputItem(tc.ID, output))
		}
	}

	a.logger.Warn("agent turn budget exhausted", "request", req.ID, "turns", maxAgentTurns)
	total.Text = accumulated
	return total, nil
}

// buildTools assembles the agent's tool list for one thread.
func (a *AgentPipeline) buildTools(threadKey string) []ToolSpec {
	tools := []ToolSpec{WebSearchTool("medium")}
	if storeID := a.registry.Get(threadKey).VectorStore(); storeID != "" {
		tools = append(tools, FileSearchTool(storeID))
	}
	tools = append(tools,
		FunctionTool(ThinkingToolName, thinkingToolDescription, thinkingParams),
		ImageGenTool(),
	)
	if a.gatewayURL != "" {
		for i := range Services {
			svc := &Services[i]
			tools = append(tools, MCPTool(svc.Label, a.gatewayURL, a.credentials[svc.Slug]))
		}
	}
	return tools
}

// pendingFunctionCalls returns the locally-executed function calls of one
// turn. The thinking tool is the only function tool the agent registers;
// every other call on the stream is provider-hosted.
func pendingFunctionCalls(calls []ToolCall) []ToolCall {
	var out []ToolCall
	for _, tc := range calls {
		if tc.Server == "" && tc.Name == ThinkingToolName && tc.Output == "" {
			out = append(out, tc)
		}
	}
	return out
}

// executeFunction runs one local function call and returns the output to
// feed back to the model. Failures become error strings so the loop can
// continue instead of aborting the response.
func (a *AgentPipeline) executeFunction(ctx context.Context, tc ToolCall) (string, Usage) {
	if tc.Name != ThinkingToolName {
		return "erro: ferramenta desconhecida " + tc.Name, Usage{}
	}

	var args struct {
		Question string `json:"question"`
	}
	_ = json.Unmarshal(tc.Args, &args)
	question := args.Question
	if question == "" {
		question = string(tc.Args)
	}

	text, usage, err := a.think(ctx, question, nil)
	if err != nil {
		a.logger.Warn("thinking tool failed", "call", tc.ID, "error", err)
		return "erro na análise: " + err.Error(), usage
	}
	return FormatThinking(text), usage
}

// think performs the inner reasoner call. When sink is nil the deltas are
// discarded (tool mode); ForceThinking passes the real sink through.
func (a *AgentPipeline) think(ctx context.Context, question string, sink StreamSink) (string, Usage, error) {
	if sink == nil {
		sink = discardSink{}
	}
	body := ResponseRequest{
		Model:        a.models.Reasoner,
		Instructions: thinkingInstructions,
		Input:        []InputItem{UserText(question)},
	}
	res, err := a.stream.respond(ctx, PoolLLM, body, sink, "")
	return res.Text, res.Usage, err
}

// runThinkingDirect streams the reasoner straight to the sink for +think
// requests. A synthetic tool call is recorded up front so the tag header
// shows the reasoner from the first delta.
func (a *AgentPipeline) runThinkingDirect(ctx context.Context, prompt string, sink StreamSink) (Result, error) {
	tc := ToolCall{ID: NewID(), Name: ThinkingToolName}
	sink.OnToolCall(ctx, tc)

	text, usage, err := a.think(ctx, prompt, sink)
	if err != nil {
		return Result{}, err
	}

	formatted := FormatThinking(text)
	if formatted != text {
		sink.OnDelta(ctx, "", formatted)
	}
	return Result{
		Text:      formatted,
		ToolCalls: []ToolCall{tc},
		Usage:     usage,
		Model:     a.models.Reasoner,
	}, nil
}

// FormatThinking extracts the reasoning trace between the first pair of ---
// separator lines and reformats it as a fenced block preceding the
// conclusion. Text without a complete separator pair passes through.
func FormatThinking(text string) string {
	lines := strings.Split(text, "\n")
	first, second := -1, -1
	for i, l := range lines {
		if strings.TrimSpace(l) == "---" {
			if first == -1 {
				first = i
			} else {
				second = i
				break
			}
		}
	}
	if first == -1 || second == -1 {
		return text
	}

	trace := strings.TrimSpace(strings.Join(lines[first+1:second], "\n"))
	if trace == "" {
		return text
	}

	rest := make([]string, 0, len(lines))
	rest = append(rest, lines[:first]...)
	rest = append(rest, lines[second+1:]...)
	conclusion := strings.TrimSpace(strings.Join(rest, "\n"))

	return "```\n" + trace + "\n```\n\n" + conclusion
}

// discardSink drops all stream progress. Used for inner calls whose output
// feeds back into the loop instead of the user-visible message.
type discardSink struct{}

func (discardSink) OnDelta(context.Context, string, string) {}
func (discardSink) OnToolCall(context.Context, ToolCall)    {}
