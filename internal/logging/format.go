package logging

import (
	"fmt"
	"log/slog"
	"strconv"
	"time"
	"unicode/utf8"
)

// Console timestamps carry milliseconds; concurrent workers routinely log
// within the same second.
const consoleTimestampLayout = "2006-01-02 15:04:05.000"

// maxConsoleValueRunes bounds a single console value. Prompts and replies can
// run to thousands of characters and would bury the surrounding fields.
const maxConsoleValueRunes = 240

func formatTimestamp(ts time.Time) string {
	if ts.IsZero() {
		return ""
	}
	return ts.In(time.Local).Format(consoleTimestampLayout)
}

// attrString renders v without quoting, for labelled info fields.
func attrString(v slog.Value) string {
	return clipValue(rawString(v), maxConsoleValueRunes)
}

// formatValue renders v as a logfmt-style token, quoting when needed.
func formatValue(v slog.Value) string {
	v = v.Resolve()
	switch v.Kind() {
	case slog.KindBool:
		return strconv.FormatBool(v.Bool())
	case slog.KindInt64:
		return strconv.FormatInt(v.Int64(), 10)
	case slog.KindUint64:
		return strconv.FormatUint(v.Uint64(), 10)
	case slog.KindFloat64:
		return strconv.FormatFloat(v.Float64(), 'f', -1, 64)
	case slog.KindDuration:
		return v.Duration().String()
	case slog.KindTime:
		return formatTimestamp(v.Time())
	}
	s := clipValue(rawString(v), maxConsoleValueRunes)
	if needsQuotes(s) {
		return strconv.Quote(s)
	}
	return s
}

func rawString(v slog.Value) string {
	v = v.Resolve()
	switch v.Kind() {
	case slog.KindString:
		return v.String()
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return err.Error()
		}
		return fmt.Sprint(v.Any())
	default:
		return v.String()
	}
}

// clipValue shortens s to limit runes and notes how much was dropped.
func clipValue(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	cut, runes := 0, 0
	for i := range s {
		if runes == limit {
			cut = i
			break
		}
		runes++
	}
	dropped := utf8.RuneCountInString(s[cut:])
	return s[:cut] + "… (+" + strconv.Itoa(dropped) + " chars)"
}

func needsQuotes(s string) bool {
	if s == "" {
		return true
	}
	for _, r := range s {
		if r <= ' ' || r == '=' || r == '"' {
			return true
		}
	}
	return false
}
