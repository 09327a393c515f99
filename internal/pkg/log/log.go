package log

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/davecgh/go-spew/spew"
	"github.com/fatih/color"
)

type contextKey string

const (
	keyRequestID contextKey = "request_id"
	keyFields    contextKey = "log_fields"
)

var (
	mu      sync.Mutex
	out     io.Writer = os.Stdout
	debugOn bool

	infoTag  = color.New(color.FgWhite, color.BgGreen).SprintFunc()
	warnTag  = color.New(color.FgWhite, color.BgYellow).SprintFunc()
	errorTag = color.New(color.FgRed).SprintFunc()
	debugTag = color.New(color.FgCyan).SprintFunc()
)

// SetOutput redirects log output; tests use it to capture lines.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	out = w
}

// SetDebug toggles Debug output.
func SetDebug(on bool) {
	mu.Lock()
	defer mu.Unlock()
	debugOn = on
}

// WithRequestID adds request ID to context for logging
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, keyRequestID, requestID)
}

// RequestID returns the request ID carried by ctx, if any.
func RequestID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if id, ok := ctx.Value(keyRequestID).(string); ok {
		return id
	}
	return ""
}

// WithField attaches a key/value pair printed with every context log line,
// e.g. the current user or the schema being served.
func WithField(ctx context.Context, key, value string) context.Context {
	prev, _ := ctx.Value(keyFields).(map[string]string)
	fields := make(map[string]string, len(prev)+1)
	for k, v := range prev {
		fields[k] = v
	}
	fields[key] = value
	return context.WithValue(ctx, keyFields, fields)
}

func prefix(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	var parts []string
	if id := RequestID(ctx); id != "" {
		parts = append(parts, "req_id="+id)
	}
	if fields, ok := ctx.Value(keyFields).(map[string]string); ok {
		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			parts = append(parts, k+"="+fields[k])
		}
	}
	if len(parts) == 0 {
		return ""
	}
	return "[" + strings.Join(parts, " ") + "] "
}

func write(ctx context.Context, tag string, format string, a ...interface{}) {
	mu.Lock()
	defer mu.Unlock()
	fmt.Fprintf(out, "%s %s%s\n", tag, prefix(ctx), fmt.Sprintf(format, a...))
}

// Info log information
func Info(format string, a ...interface{}) {
	write(context.Background(), infoTag("[INFO] "), format, a...)
}

// InfoWithContext logs information with the request ID and fields of ctx.
func InfoWithContext(ctx context.Context, format string, a ...interface{}) {
	write(ctx, infoTag("[INFO] "), format, a...)
}

// Warn log warning
func Warn(format string, a ...interface{}) {
	write(context.Background(), warnTag("[WARN] "), format, a...)
}

func WarnWithContext(ctx context.Context, format string, a ...interface{}) {
	write(ctx, warnTag("[WARN] "), format, a...)
}

// Error log error
func Error(format string, a ...interface{}) {
	write(context.Background(), errorTag("[Error]"), format, a...)
}

func ErrorWithContext(ctx context.Context, format string, a ...interface{}) {
	write(ctx, errorTag("[Error]"), format, a...)
}

// Debug is silent unless SetDebug(true).
func Debug(format string, a ...interface{}) {
	mu.Lock()
	on := debugOn
	mu.Unlock()
	if on {
		write(context.Background(), debugTag("[DEBUG]"), format, a...)
	}
}

// InfoStruct dumps values for debugging.
func InfoStruct(a ...interface{}) {
	write(context.Background(), infoTag("[INFO] "), "%s", spew.Sdump(a...))
}
