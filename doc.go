// Package livia is the message-processing engine behind the Livia Slack
// assistant.
//
// It listens to workspace events, decides which messages deserve a reply,
// and produces streamed responses that may engage web search, per-thread
// document search, vision, audio transcription, image generation, a
// deep-thinking sub-agent, and a family of integrations exposed through a
// hosted MCP gateway (mail, calendar, sheets, docs, time tracking, task
// tracking, file drive, and cross-workspace chat).
//
// # Architecture
//
// Inbound events flow through the [Engine]: the router filters and dedupes
// them, the context assembler rebuilds the thread transcript, media adapters
// transcribe audio and collect image URLs, the document ingestor attaches
// uploads to an ephemeral per-thread vector index, and a keyword router picks
// between the native agent loop and a per-integration MCP pipeline. The
// chosen pipeline drives a streaming presenter that edits a single Slack
// message in place, rewriting a capability-tag header as tools are observed.
// Every outbound provider call runs through the [Governor], which enforces
// per-pool concurrency, sliding rate windows, and retry budgets.
//
// # Core Interfaces
//
// The root package defines the contracts the adapter packages implement:
//
//   - [Frontend]: the chat platform (frontend/slack)
//   - [Provider]: the LLM's streamed Responses surface (provider/openai)
//   - [FileStore]: provider file + vector-store API (provider/openai)
//   - [Transcriber]: the audio transcription endpoint (provider/openai)
//   - [Tracer]: span creation, implemented by the observer package
//
// All engine state (dedupe set, thread token counters, vector-index handles)
// is in-process and ephemeral. See cmd/livia for the wiring.
package livia
