package util

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	constants "github.com/CodeAndHammer/memorama/internal/constants"
)

func DirExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false
		}
		LogWarn("Error checking directory existence: %v", err)
		return false
	}
	return info.IsDir()
}

func FormatUptime(d time.Duration) string {
	seconds := int(d.Seconds()) % 60
	minutes := int(d.Minutes()) % 60
	hours := int(d.Hours())
	switch {
	case hours > 0:
		return fmt.Sprintf("%d hour%s, %d minute%s, %d second%s",
			hours, Plural(hours),
			minutes, Plural(minutes),
			seconds, Plural(seconds))
	case minutes > 0:
		return fmt.Sprintf("%d minute%s, %d second%s",
			minutes, Plural(minutes),
			seconds, Plural(seconds))
	default:
		return fmt.Sprintf("%d second%s", seconds, Plural(seconds))
	}
}

func Plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}

// RequestID returns the id stored by the request-id middleware, or "" for
// work that does not originate from a request (timer callbacks, cleanup).
func RequestID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	reqID, _ := ctx.Value(constants.RequestIDKey).(string)
	return reqID
}

func LogInfo(format string, v ...any) {
	log.Printf("[INFO] "+format, v...)
}

func LogWarn(format string, v ...any) {
	log.Printf("[WARN] "+format, v...)
}

func LogFatal(format string, v ...any) {
	log.Fatalf("[FATAL] "+format, v...)
}

func LogInfoCtx(ctx context.Context, format string, v ...any) {
	if reqID := RequestID(ctx); reqID != "" {
		LogInfo("[request_id=%v] "+format, append([]any{reqID}, v...)...)
		return
	}
	LogInfo(format, v...)
}

func LogWarnCtx(ctx context.Context, format string, v ...any) {
	if reqID := RequestID(ctx); reqID != "" {
		LogWarn("[request_id=%v] "+format, append([]any{reqID}, v...)...)
		return
	}
	LogWarn(format, v...)
}
