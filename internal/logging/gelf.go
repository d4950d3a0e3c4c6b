package logging

import (
	"context"
	"log/slog"
	"os"

	"github.com/Graylog2/go-gelf/gelf"
)

// syslog severity values used by GELF.
const (
	gelfLevelError   = 3
	gelfLevelWarning = 4
	gelfLevelInfo    = 6
	gelfLevelDebug   = 7
)

// GelfHandler ships log records to a Graylog server over UDP.
type GelfHandler struct {
	writer *gelf.Writer
	host   string
	level  slog.Level
	attrs  []slog.Attr
	group  string
}

// NewGelfHandler connects to the Graylog address (host:port) and returns
// a handler emitting records at or above the given level.
func NewGelfHandler(address string, level slog.Level) (*GelfHandler, error) {
	writer, err := gelf.NewWriter(address)
	if err != nil {
		return nil, err
	}
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	return &GelfHandler{writer: writer, host: host, level: level}, nil
}

// Enabled reports whether the level passes the handler threshold.
func (h *GelfHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

// Handle converts the record into a GELF message and writes it.
func (h *GelfHandler) Handle(_ context.Context, r slog.Record) error {
	extra := make(map[string]any, len(h.attrs)+r.NumAttrs())
	for _, a := range h.attrs {
		extra["_"+h.key(a.Key)] = a.Value.Any()
	}
	r.Attrs(func(a slog.Attr) bool {
		extra["_"+h.key(a.Key)] = a.Value.Any()
		return true
	})

	msg := &gelf.Message{
		Version:  "1.1",
		Host:     h.host,
		Short:    r.Message,
		TimeUnix: float64(r.Time.UnixNano()) / 1e9,
		Level:    toGelfLevel(r.Level),
		Facility: "fleettrackd",
		Extra:    extra,
	}
	return h.writer.WriteMessage(msg)
}

// WithAttrs returns a handler that includes the attributes on every message.
func (h *GelfHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	return &clone
}

// WithGroup returns a handler that prefixes attribute keys with the group.
func (h *GelfHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	if h.group != "" {
		clone.group = h.group + "." + name
	} else {
		clone.group = name
	}
	return &clone
}

func (h *GelfHandler) key(k string) string {
	if h.group == "" {
		return k
	}
	return h.group + "." + k
}

func toGelfLevel(level slog.Level) int32 {
	switch {
	case level >= slog.LevelError:
		return gelfLevelError
	case level >= slog.LevelWarn:
		return gelfLevelWarning
	case level >= slog.LevelInfo:
		return gelfLevelInfo
	default:
		return gelfLevelDebug
	}
}
