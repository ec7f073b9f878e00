package log

import (
	"context"
	"log/slog"
)

// SlogAdapter writes journal events to an slog.Logger at Debug level.
type SlogAdapter struct {
	logger *slog.Logger
}

// NewSlogAdapter creates a new SlogAdapter that writes to the given slog.Logger.
func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	return &SlogAdapter{logger: logger}
}

// Log writes the event to the slog logger.
func (a *SlogAdapter) Log(event Event) {
	attrs := []slog.Attr{
		slog.String("boot_id", event.BootID),
		slog.String("category", event.Category.String()),
	}
	if event.Mode != "" {
		attrs = append(attrs, slog.String("mode", event.Mode))
	}
	if event.RemoteAddr != "" {
		attrs = append(attrs, slog.String("remote", event.RemoteAddr))
	}

	switch {
	case event.StateChange != nil:
		attrs = append(attrs,
			slog.String("old_state", event.StateChange.OldState),
			slog.String("new_state", event.StateChange.NewState),
		)
		if event.StateChange.Reason != "" {
			attrs = append(attrs, slog.String("reason", event.StateChange.Reason))
		}
	case event.Request != nil:
		attrs = append(attrs,
			slog.String("method", event.Request.Method),
			slog.String("path", event.Request.Path),
			slog.Int("status", event.Request.Status),
			slog.Duration("duration", event.Request.Duration),
		)
		if event.Request.Host != "" {
			attrs = append(attrs, slog.String("host", event.Request.Host))
		}
	case event.Storage != nil:
		attrs = append(attrs, slog.String("op", event.Storage.Op.String()))
		if event.Storage.Bytes > 0 {
			attrs = append(attrs, slog.Int("bytes", event.Storage.Bytes))
		}
	case event.Radio != nil:
		attrs = append(attrs, slog.String("op", event.Radio.Op.String()))
		if event.Radio.SSID != "" {
			attrs = append(attrs, slog.String("ssid", event.Radio.SSID))
		}
		if event.Radio.Status != "" {
			attrs = append(attrs, slog.String("status", event.Radio.Status))
		}
		if event.Radio.Attempts > 0 {
			attrs = append(attrs, slog.Int("attempts", event.Radio.Attempts))
		}
	case event.Error != nil:
		attrs = append(attrs,
			slog.String("error_msg", event.Error.Message),
			slog.String("error_context", event.Error.Context),
		)
	}

	a.logger.LogAttrs(context.Background(), slog.LevelDebug, "journal", attrs...)
}

// Compile-time interface satisfaction check.
var _ Logger = (*SlogAdapter)(nil)
