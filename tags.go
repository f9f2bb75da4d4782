package livia

import (
	"regexp"
	"strings"
	"unicode"
)

// Capability tags surfaced in the response header. The model tag always
// occupies position 0 and is not listed here.
const (
	TagVision    = "Vision"
	TagAudio     = "AudioTranscribe"
	TagWebSearch = "WebSearch"
	TagImageGen  = "ImageGen"
	TagThinking  = "Thinking"
)

// ThinkingToolName is the function tool that delegates to the reasoner
// sub-agent.
const ThinkingToolName = "deep_thinking_analysis"

// TagInput is everything tag derivation looks at. Derivation is pure: the
// presenter recomputes it on every streaming event.
type TagInput struct {
	Model         string
	VisionModel   string
	ReasonerModel string
	HasImages     bool
	HasAudio      bool
	ToolCalls     []ToolCall
	UserText      string
	ResponseText  string
}

// DeriveTags produces the ordered, de-duplicated capability tag list for a
// response. Position 0 is always the effective model: the reasoner when the
// thinking tool ran, the vision model when images were present, otherwise
// the configured model. File search is ambient and never tagged.
func DeriveTags(in TagInput) []string {
	tags := make([]string, 0, 4)
	seen := make(map[string]bool, 8)
	add := func(t string) {
		if t != "" && !seen[t] {
			seen[t] = true
			tags = append(tags, t)
		}
	}

	model := in.Model
	switch {
	case hasThinkingCall(in.ToolCalls) && in.ReasonerModel != "":
		model = in.ReasonerModel
	case in.HasImages && in.VisionModel != "":
		model = in.VisionModel
	}
	add(model)

	if in.HasImages {
		add(TagVision)
	}
	if in.HasAudio {
		add(TagAudio)
	}

	mcpSeen := false
	for _, tc := range in.ToolCalls {
		t := tagForTool(tc)
		if strings.HasPrefix(t, "Mcp") {
			mcpSeen = true
		}
		add(t)
	}

	// Fallback heuristics, used only when structured tool calls did not
	// already settle the question.
	if !seen[TagWebSearch] && looksLikeWebSearch(in.ResponseText) {
		add(TagWebSearch)
	}
	if !mcpSeen {
		if svc := routeEither(in.UserText, in.ResponseText); svc != nil {
			add(svc.Tag)
		}
	}

	return tags
}

func hasThinkingCall(calls []ToolCall) bool {
	for _, tc := range calls {
		if tc.Name == ThinkingToolName {
			return true
		}
	}
	return false
}

// tagForTool maps one observed tool call to its canonical capability tag.
// Returns "" for ambient tools (file search) and unknown names.
func tagForTool(tc ToolCall) string {
	if tc.Server != "" {
		if svc := ServiceByLabel(tc.Server); svc != nil {
			return svc.Tag
		}
		return "Mcp" + pascalCase(tc.Server)
	}
	name := strings.ToLower(tc.Name)
	switch {
	case name == ThinkingToolName:
		return TagThinking
	case strings.HasPrefix(name, "web_search"):
		return TagWebSearch
	case strings.HasPrefix(name, "image_generation"):
		return TagImageGen
	case strings.HasPrefix(name, "file_search"):
		return ""
	case strings.HasPrefix(name, "mcp_"):
		return "Mcp" + pascalCase(strings.TrimPrefix(name, "mcp_"))
	}
	return ""
}

// routeEither returns the highest-priority service whose keywords hit the
// user text or the response text.
func routeEither(userText, responseText string) *MCPService {
	if svc := RouteService(userText); svc != nil {
		return svc
	}
	return RouteService(responseText)
}

var externalURLRe = regexp.MustCompile(`https?://[^\s<>()|]+`)

// webSearchPhrases are the citation markers a web-search answer carries.
// Lowercase; checked against normalized text.
var webSearchPhrases = []string{
	"segundo ",
	"de acordo com",
	"fonte:",
	"fontes:",
	"according to",
	"source:",
	"sources:",
}

// looksLikeWebSearch reports whether the response text reads like a web
// search result: it must contain an external URL AND a citation phrase.
func looksLikeWebSearch(s string) bool {
	if s == "" || !externalURLRe.MatchString(s) {
		return false
	}
	t := normalizeText(s)
	for _, p := range webSearchPhrases {
		if strings.Contains(t, p) {
			return true
		}
	}
	return false
}

// pascalCase converts a snake/kebab label into PascalCase for Mcp tags.
func pascalCase(s string) string {
	var b strings.Builder
	upper := true
	for _, r := range s {
		switch {
		case r == '_' || r == '-' || r == ' ':
			upper = true
		case upper:
			b.WriteRune(unicode.ToUpper(r))
			upper = false
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// RenderHeader renders the tag list as the response header: the model tag
// gear-prefixed, subsequent tags plain, all backtick-quoted.
func RenderHeader(tags []string) string {
	if len(tags) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("`⛭ ")
	b.WriteString(tags[0])
	b.WriteString("`")
	for _, t := range tags[1:] {
		b.WriteString(" `")
		b.WriteString(t)
		b.WriteString("`")
	}
	return b.String()
}
