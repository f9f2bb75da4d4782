package observer

import "go.opentelemetry.io/otel/attribute"

// Attribute keys for livia's observability spans and metrics.
var (
	AttrLLMModel    = attribute.Key("llm.model")
	AttrLLMProvider = attribute.Key("llm.provider")

	AttrTokensInput  = attribute.Key("llm.tokens.input")
	AttrTokensOutput = attribute.Key("llm.tokens.output")
	AttrCostUSD      = attribute.Key("llm.cost_usd")

	AttrToolCount = attribute.Key("llm.tool_count")
	AttrToolNames = attribute.Key("llm.tool_names")

	AttrStreamChunks = attribute.Key("llm.stream_chunks")

	AttrPlatformMethod = attribute.Key("platform.method")
	AttrStatus         = attribute.Key("status")
	AttrErrorCategory  = attribute.Key("error.category")

	AttrPool = attribute.Key("governor.pool")
)
