/*
Package tracing provides lightweight spans logged through zap.

Spans are started per HTTP request and per event drained by the restriction
lane. A finished span is handed to a buffered collector goroutine, which logs
it; when the buffer is full the span is dropped with a warning.

Trace context travels in context.Context and across HTTP in the X-Trace-ID
and X-Span-ID headers.

	tracer := tracing.New("bgrestrict", logger)
	defer tracer.Close()

	span, ctx := tracer.StartSpan(ctx, "uid_active")
	span.SetTag("uid", "10123")
	defer tracer.Finish(span)
*/
package tracing
