package logger

import (
	"github.com/deploymenttheory/go-api-auth-client/headers/redact"
	"go.uber.org/zap/zapcore"
)

// redactingCore masks string fields whose keys name credentials.
type redactingCore struct {
	zapcore.Core
}

// With adds structured context to the Core, redacting it on the way in.
func (c *redactingCore) With(fields []zapcore.Field) zapcore.Core {
	return &redactingCore{c.Core.With(redactFields(fields))}
}

// Check must route through the wrapper, otherwise Write below is bypassed.
func (c *redactingCore) Check(entry zapcore.Entry, checkedEntry *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(entry.Level) {
		return checkedEntry.AddCore(entry, c)
	}
	return checkedEntry
}

// Write serializes the Entry and any Fields supplied at the log site.
func (c *redactingCore) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	return c.Core.Write(entry, redactFields(fields))
}

func redactFields(fields []zapcore.Field) []zapcore.Field {
	out := make([]zapcore.Field, len(fields))
	for i, field := range fields {
		if field.Type == zapcore.StringType && redact.IsSensitiveKey(field.Key) {
			field.String = redact.Redacted
		}
		out[i] = field
	}
	return out
}
