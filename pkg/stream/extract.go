package stream

import (
	"context"
	"reflect"
	"strings"

	"github.com/fyrsmithlabs/tracekit/internal/render"
	"github.com/fyrsmithlabs/tracekit/pkg/obs"
	"go.opentelemetry.io/otel/attribute"
)

// Completion wraps a text-completion chunk stream and extracts
// response-shaped attributes (model, id, usage, finish reasons, accumulated
// text) at finalize. Chunk types are matched structurally by field name, so
// any provider SDK whose chunks look like completions works unmodified.
func Completion[T any](ctx context.Context, name string, inner Iterator[T], opts ...Option) (*Tracked[T], context.Context) {
	opts = append([]Option{WithExtractor(CompletionAttributes)}, opts...)
	return New(ctx, name, inner, opts...)
}

// ChatCompletion is Completion for chat-shaped chunks, where streamed text
// lives under each choice's delta rather than directly on the choice.
func ChatCompletion[T any](ctx context.Context, name string, inner Iterator[T], opts ...Option) (*Tracked[T], context.Context) {
	opts = append([]Option{WithExtractor(ChatCompletionAttributes)}, opts...)
	return New(ctx, name, inner, opts...)
}

// CompletionAttributes derives inference response attributes from completion
// chunks. Text content is read from Choices[i].Text.
func CompletionAttributes(chunks []any) []attribute.KeyValue {
	return extractResponse(chunks, completionText)
}

// ChatCompletionAttributes derives inference response attributes from chat
// completion chunks. Text content is read from Choices[i].Delta.
func ChatCompletionAttributes(chunks []any) []attribute.KeyValue {
	return extractResponse(chunks, chatText)
}

func extractResponse(chunks []any, text func(choice reflect.Value) string) []attribute.KeyValue {
	var (
		model, id     string
		finishReasons []string
		inTok, outTok int64
		totalTok      int64
		content       strings.Builder
	)

	for _, chunk := range chunks {
		v := deref(reflect.ValueOf(chunk))
		if v.Kind() != reflect.Struct {
			continue
		}

		if s, ok := stringField(v, "Model"); ok && s != "" {
			model = s
		}
		if s, ok := stringField(v, "ID"); ok && s != "" && id == "" {
			id = s
		}
		if usage := deref(v.FieldByName("Usage")); usage.Kind() == reflect.Struct {
			if n, ok := intField(usage, "InputTokens", "PromptTokens"); ok && n > 0 {
				inTok = n
			}
			if n, ok := intField(usage, "OutputTokens", "CompletionTokens"); ok && n > 0 {
				outTok = n
			}
			if n, ok := intField(usage, "TotalTokens"); ok && n > 0 {
				totalTok = n
			}
		}

		choices := deref(v.FieldByName("Choices"))
		if choices.Kind() != reflect.Slice {
			continue
		}
		for i := 0; i < choices.Len(); i++ {
			choice := deref(choices.Index(i))
			if choice.Kind() != reflect.Struct {
				continue
			}
			if s, ok := stringField(choice, "FinishReason"); ok && s != "" {
				finishReasons = appendUnique(finishReasons, s)
			}
			content.WriteString(text(choice))
		}
	}

	var attrs []attribute.KeyValue
	if model != "" {
		attrs = append(attrs, attribute.String(obs.AttrResponseModel, model))
	}
	if id != "" {
		attrs = append(attrs, attribute.String(obs.AttrResponseID, id))
	}
	if len(finishReasons) > 0 {
		attrs = append(attrs, attribute.StringSlice(obs.AttrResponseFinishReasons, finishReasons))
	}
	if inTok > 0 {
		attrs = append(attrs, attribute.Int64(obs.AttrUsageInputTokens, inTok))
	}
	if outTok > 0 {
		attrs = append(attrs, attribute.Int64(obs.AttrUsageOutputTokens, outTok))
	}
	if totalTok > 0 {
		attrs = append(attrs, attribute.Int64(obs.AttrUsageTotalTokens, totalTok))
	}
	if content.Len() > 0 {
		attrs = append(attrs, attribute.String(obs.AttrOutput, render.Truncate(content.String())))
	}
	return attrs
}

func completionText(choice reflect.Value) string {
	s, _ := stringField(choice, "Text")
	return s
}

func chatText(choice reflect.Value) string {
	delta := deref(choice.FieldByName("Delta"))
	if delta.Kind() != reflect.Struct {
		return ""
	}
	s, _ := stringField(delta, "Content", "Text")
	return s
}

// deref unwraps pointers and interfaces down to the concrete value. Returns
// an invalid value for nil chains.
func deref(v reflect.Value) reflect.Value {
	for v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return reflect.Value{}
		}
		v = v.Elem()
	}
	return v
}

// stringField reads the first present string field among the given names.
func stringField(v reflect.Value, names ...string) (string, bool) {
	for _, name := range names {
		f := deref(v.FieldByName(name))
		if f.IsValid() && f.Kind() == reflect.String {
			return f.String(), true
		}
	}
	return "", false
}

// intField reads the first present integer field among the given names.
func intField(v reflect.Value, names ...string) (int64, bool) {
	for _, name := range names {
		f := deref(v.FieldByName(name))
		if !f.IsValid() {
			continue
		}
		switch f.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			return f.Int(), true
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			return int64(f.Uint()), true
		}
	}
	return 0, false
}

func appendUnique(list []string, s string) []string {
	for _, have := range list {
		if have == s {
			return list
		}
	}
	return append(list, s)
}
