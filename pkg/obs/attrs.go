package obs

// Version is the SDK version reported in resource attributes and on every
// export request.
const Version = "0.3.0"

// ScopeName is the default instrumentation scope for tracers and meters
// minted by this SDK.
const ScopeName = "github.com/fyrsmithlabs/tracekit"

// Export request headers. Downstream collectors authenticate on the bearer
// token and route on the SDK version.
const (
	HeaderAuthorization = "Authorization"
	HeaderSDKVersion    = "X-Tracekit-Version"
)

// Span attribute keys. These names are part of the wire contract with
// downstream consumers; renaming one is a breaking change.
const (
	AttrType = "track.type"

	// Decorator-captured values. Inputs are keyed per argument name.
	AttrInputPrefix  = "input."
	AttrOutput       = "output"
	AttrOutputPrefix = "output."

	// Generator accounting.
	AttrYieldCount         = "yield_count"
	AttrGeneratorCompleted = "generator_completed"

	// Streaming accounting.
	AttrStreamChunkCount = "stream.chunk_count"
	AttrStreamCompleted  = "stream.completed"
	AttrStreamTTFTMillis = "stream.ttft_ms"

	// Inference response attributes extracted from accumulated chunks.
	AttrResponseModel         = "gen_ai.response.model"
	AttrResponseID            = "gen_ai.response.id"
	AttrResponseFinishReasons = "gen_ai.response.finish_reasons"
	AttrUsageInputTokens      = "gen_ai.usage.input_tokens"
	AttrUsageOutputTokens     = "gen_ai.usage.output_tokens"
	AttrUsageTotalTokens      = "gen_ai.usage.total_tokens"
)

// BaggageKeys is the fixed, ordered list of well-known baggage members copied
// onto every span at start by the baggage processor. Absent members produce no
// attribute.
var BaggageKeys = []string{
	"session_id",
	"user_id",
	"workspace_id",
	"conversation_id",
	"run_id",
}
