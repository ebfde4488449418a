package genai

import (
	"encoding/json"
	"time"
)

// Part is one element of a prompt: either text or an inline image.
type Part struct {
	Text  string
	Image *InlineImage
}

// InlineImage is binary image data sent inline with a prompt.
type InlineImage struct {
	MIMEType string
	Data     []byte
}

// TextPart builds a text prompt part.
func TextPart(text string) Part {
	return Part{Text: text}
}

// ImagePart builds an inline image prompt part.
func ImagePart(mimeType string, data []byte) Part {
	return Part{Image: &InlineImage{MIMEType: mimeType, Data: data}}
}

// supportedImageMIMETypes is the backend's accepted inline image set.
var supportedImageMIMETypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/webp": true,
	"image/heic": true,
	"image/heif": true,
}

// SupportedImageMIME reports whether the backend accepts the given MIME type
// for inline images. Unsupported images should be skipped, not failed.
func SupportedImageMIME(mimeType string) bool {
	return supportedImageMIMETypes[mimeType]
}

// Request is one prompt sent to the backend. Never mutated after creation.
type Request struct {
	// Parts are serialized in order into the backend wire format.
	Parts []Part

	// ExpectJSON requests structured output and enables JSON extraction.
	ExpectJSON bool

	// Stage labels ledger records and logs for this call.
	Stage string
}

// OutcomeKind discriminates Outcome variants.
type OutcomeKind string

const (
	// OutcomeSuccess carries the response content and token usage.
	OutcomeSuccess OutcomeKind = "success"
	// OutcomeRateLimited means retries were exhausted on HTTP 429.
	OutcomeRateLimited OutcomeKind = "rate_limited"
	// OutcomeUnavailable means retries were exhausted on HTTP 503,
	// network failures, or timeouts.
	OutcomeUnavailable OutcomeKind = "service_unavailable"
	// OutcomeMalformed means the response parsed but no valid JSON could be
	// extracted even after the repair pass.
	OutcomeMalformed OutcomeKind = "malformed"
	// OutcomeFatal covers auth failures, unexpected statuses, and
	// misconfiguration. Never retried.
	OutcomeFatal OutcomeKind = "fatal"
)

// Outcome is the terminal result of one client call. Exactly one variant per
// call attempt sequence; inspect Kind before reading variant fields.
type Outcome struct {
	Kind OutcomeKind

	// Text holds the response text for successful non-JSON calls.
	Text string
	// JSON holds the extracted JSON value for successful structured calls.
	JSON json.RawMessage

	InputTokens  int
	OutputTokens int

	// RetryAfter is the last server-suggested delay for rate_limited.
	RetryAfter time.Duration

	// Raw preserves the unparsable response for malformed.
	Raw string

	// Reason describes fatal and unavailable outcomes.
	Reason string
}

// Succeeded reports whether the call produced usable content.
func (o Outcome) Succeeded() bool {
	return o.Kind == OutcomeSuccess
}

func successText(text string, in, out int) Outcome {
	return Outcome{Kind: OutcomeSuccess, Text: text, InputTokens: in, OutputTokens: out}
}

func successJSON(raw json.RawMessage, in, out int) Outcome {
	return Outcome{Kind: OutcomeSuccess, JSON: raw, InputTokens: in, OutputTokens: out}
}

func rateLimited(retryAfter time.Duration) Outcome {
	return Outcome{Kind: OutcomeRateLimited, RetryAfter: retryAfter}
}

func unavailable(reason string) Outcome {
	return Outcome{Kind: OutcomeUnavailable, Reason: reason}
}

func malformed(raw string, in, out int) Outcome {
	return Outcome{Kind: OutcomeMalformed, Raw: raw, InputTokens: in, OutputTokens: out}
}

func fatal(reason string) Outcome {
	return Outcome{Kind: OutcomeFatal, Reason: reason}
}
