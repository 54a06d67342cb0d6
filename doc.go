// Package parlor implements the bot mention-detection and execution-dispatch
// pipeline for a multi-tenant guild/channel chat platform.
//
// The root package holds the domain model, the LLM protocol types, and the
// narrow interfaces through which the pipeline consumes its collaborators
// (message/bot/memory storage, chat-completion providers, tools, and secret
// sealing). Subpackages implement the moving parts:
//
//   - dispatch: mention orchestration and strategy selection
//   - strategy/webhook, strategy/builtin, strategy/managedllm: the three
//     execution strategies
//   - provider/openaicompat: OpenAI-compatible chat-completion client with
//     incremental SSE parsing
//   - memory: rolling conversation summaries
//   - fanout: the split reliable/best-effort stream event delivery
//   - realtime: websocket hub broadcasting stream events to channel rooms
//   - store/sqlite: SQLite persistence for bots, messages, and memory
//
// Everything downstream of a message-created event is fire-and-forget: a
// single bot's failure is logged and converted into a user-visible fallback
// message, never propagated to the caller or to sibling dispatches.
package parlor
