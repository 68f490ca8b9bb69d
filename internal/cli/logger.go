package cli

import (
	"io"
	"log/slog"

	"github.com/lmittmann/tint"
)

// newLogger builds the CLI logger writing to stderr.
func newLogger(output io.Writer, noColor bool) *slog.Logger {
	handler := tint.NewHandler(output, &tint.Options{
		Level:      slog.LevelInfo,
		TimeFormat: "15:04:05.000",
		NoColor:    noColor,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Value.Kind() == slog.KindAny {
				if _, ok := a.Value.Any().(error); ok {
					return tint.Attr(9, a)
				}
			}
			return a
		},
	})
	return slog.New(handler)
}
