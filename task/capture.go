package task

import (
	"fmt"
	"html"
	"regexp"
	"strings"
	"sync/atomic"
	"time"

	"github.com/arloliu/go-instrument/logger"
)

var htmlTag = regexp.MustCompile(`<[^>]*>`)

// stripHTML removes markup from a log message; procedures may log rich text for UIs.
func stripHTML(s string) string {
	return html.UnescapeString(htmlTag.ReplaceAllString(s, ""))
}

// captureLogger forwards every record to its base logger and mirrors it into a Result
// until detached. Error and fatal records are also collected as result errors.
type captureLogger struct {
	base     logger.Logger
	result   *Result
	fields   []any
	detached *atomic.Bool
}

var _ logger.Logger = (*captureLogger)(nil)

func newCaptureLogger(base logger.Logger, r *Result) *captureLogger {
	return &captureLogger{base: base, result: r, detached: &atomic.Bool{}}
}

func (c *captureLogger) detach() { c.detached.Store(true) }

func (c *captureLogger) mirror(level logger.Level, msg string, keysAndValues []any) {
	if c.detached.Load() || level < c.base.Level() {
		return
	}

	var sb strings.Builder
	sb.WriteString(time.Now().Format("15:04:05.000"))
	sb.WriteByte(' ')
	sb.WriteString(logger.LevelName(level))
	sb.WriteByte(' ')
	sb.WriteString(stripHTML(msg))
	writeFields(&sb, c.fields)
	writeFields(&sb, keysAndValues)

	c.result.appendLog(sb.String(), level >= logger.ErrorLevel)
}

func writeFields(sb *strings.Builder, kv []any) {
	for i := 0; i < len(kv); i += 2 {
		sb.WriteByte(' ')
		if i+1 == len(kv) {
			fmt.Fprintf(sb, "!BADKEY=%v", kv[i])
			break
		}
		fmt.Fprintf(sb, "%v=%s", kv[i], stripHTML(fmt.Sprint(kv[i+1])))
	}
}

func (c *captureLogger) Debug(msg string, keysAndValues ...any) {
	c.mirror(logger.DebugLevel, msg, keysAndValues)
	c.base.Debug(msg, keysAndValues...)
}

func (c *captureLogger) Info(msg string, keysAndValues ...any) {
	c.mirror(logger.InfoLevel, msg, keysAndValues)
	c.base.Info(msg, keysAndValues...)
}

func (c *captureLogger) Warn(msg string, keysAndValues ...any) {
	c.mirror(logger.WarnLevel, msg, keysAndValues)
	c.base.Warn(msg, keysAndValues...)
}

func (c *captureLogger) Error(msg string, keysAndValues ...any) {
	c.mirror(logger.ErrorLevel, msg, keysAndValues)
	c.base.Error(msg, keysAndValues...)
}

func (c *captureLogger) Fatal(msg string, keysAndValues ...any) {
	c.mirror(logger.FatalLevel, msg, keysAndValues)
	c.base.Fatal(msg, keysAndValues...)
}

func (c *captureLogger) With(keyValues ...any) logger.Logger {
	fields := make([]any, 0, len(c.fields)+len(keyValues))
	fields = append(fields, c.fields...)
	fields = append(fields, keyValues...)

	return &captureLogger{
		base:     c.base.With(keyValues...),
		result:   c.result,
		fields:   fields,
		detached: c.detached,
	}
}

func (c *captureLogger) Level() logger.Level { return c.base.Level() }

func (c *captureLogger) SetLevel(level logger.Level) { c.base.SetLevel(level) }
