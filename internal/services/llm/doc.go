// Package llm provides a client for OpenAI-compatible chat completion APIs
// such as OpenRouter.
//
// This package is used by:
//   - The run command: send each request's conversation and capture the reply
//   - The judge verifier: ask a second model to accept or reject a reply
//   - Preflight checks: confirm the API key and model respond
//
// # Configuration
//
// Requires api_key and model, and optionally base_url, referer, title and a
// timeout. base_url may be either the API root or the full
// /chat/completions URL.
//
// # Entry Points
//
// NewClient: construct client from Config.
// Client.Chat: send a conversation, receive the assistant reply and any
// reasoning text the provider returned.
// Client.CompleteJSON: send system/user prompts, receive a JSON payload.
// Client.HealthCheck: verify API key and model availability.
//
// # Retry Behaviour
//
// The client retries on HTTP 408/429/5xx errors, responses without choices,
// empty JSON payloads and network timeouts with exponential backoff (base 1s,
// max 10s, up to 5 attempts by default). Chat treats empty content as a valid
// reply. Context cancellation aborts retries immediately. The batch
// pipeline has its own requeue policy, so the run command usually lowers the
// attempt count with WithRetryMaxAttempts.
package llm
