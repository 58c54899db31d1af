package observability

import (
	"context"
	"encoding/json"
	"time"

	"go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/global"
)

// OTelWriter is an io.Writer that feeds zerolog's JSON output into the OTLP
// log pipeline. Each line becomes one log record: zerolog's time, level and
// message fields map onto the record, everything else rides along as
// attributes.
type OTelWriter struct {
	logger log.Logger
}

// NewOTelWriter builds a writer against the globally registered log provider.
func NewOTelWriter(name string) *OTelWriter {
	return &OTelWriter{logger: global.GetLoggerProvider().Logger(name)}
}

var severityByLevel = map[string]log.Severity{
	"trace":   log.SeverityTrace,
	"debug":   log.SeverityDebug,
	"info":    log.SeverityInfo,
	"warn":    log.SeverityWarn,
	"warning": log.SeverityWarn,
	"error":   log.SeverityError,
	"fatal":   log.SeverityFatal,
	"panic":   log.SeverityFatal4,
}

// Write implements io.Writer. Lines that are not zerolog JSON are emitted
// verbatim at info severity rather than dropped.
func (w *OTelWriter) Write(p []byte) (int, error) {
	var entry map[string]any
	if err := json.Unmarshal(p, &entry); err != nil {
		var rec log.Record
		rec.SetTimestamp(time.Now())
		rec.SetSeverity(log.SeverityInfo)
		rec.SetBody(log.StringValue(string(p)))
		w.logger.Emit(context.Background(), rec)
		return len(p), nil
	}
	w.logger.Emit(context.Background(), recordFrom(entry))
	return len(p), nil
}

func recordFrom(entry map[string]any) log.Record {
	var rec log.Record

	ts := time.Now()
	if raw, ok := entry["time"].(string); ok {
		if parsed, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			ts = parsed
		}
		delete(entry, "time")
	}
	rec.SetTimestamp(ts)

	lvl := "info"
	if s, ok := entry["level"].(string); ok {
		lvl = s
		delete(entry, "level")
	}
	sev, ok := severityByLevel[lvl]
	if !ok {
		sev = log.SeverityInfo
	}
	rec.SetSeverity(sev)
	rec.SetSeverityText(lvl)

	for _, key := range []string{"message", "msg"} {
		if msg, ok := entry[key].(string); ok {
			rec.SetBody(log.StringValue(msg))
			delete(entry, key)
			break
		}
	}

	attrs := make([]log.KeyValue, 0, len(entry))
	for k, v := range entry {
		attrs = append(attrs, log.KeyValue{Key: k, Value: attrValue(v)})
	}
	rec.AddAttributes(attrs...)
	return rec
}

func attrValue(v any) log.Value {
	switch val := v.(type) {
	case string:
		return log.StringValue(val)
	case bool:
		return log.BoolValue(val)
	case float64:
		return log.Float64Value(val)
	case int:
		return log.IntValue(val)
	case int64:
		return log.Int64Value(val)
	case nil:
		return log.StringValue("")
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return log.StringValue("")
		}
		return log.StringValue(string(b))
	}
}
