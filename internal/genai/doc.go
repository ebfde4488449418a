// Package genai implements the client for the generative text backend.
//
// The client owns the resilience layer around each call: a per-call timeout,
// rate-limit retry honoring server-suggested delays with jitter, exponential
// backoff for service-unavailable responses, and balanced-JSON extraction with
// a repair pass for truncated structured output.
//
// Every terminal outcome, including zero-token failures, is recorded to the
// run-scoped Ledger so token consumption history can be reconstructed per
// stage and attempt.
package genai
