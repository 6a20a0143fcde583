package logctx

import (
	"context"
	"log/slog"
)

type Handler struct {
	slog.Handler
}

// Wrap returns a logger whose handler adds the connection and message groups
// carried by the context of each record.
func Wrap(l *slog.Logger) *slog.Logger {
	if l == nil {
		l = slog.Default()
	}
	if _, ok := l.Handler().(Handler); ok {
		return l
	}
	return slog.New(Handler{Handler: l.Handler()})
}

func (h Handler) Handle(ctx context.Context, r slog.Record) error {
	if cd, ok := ctx.Value(connDataKey{}).(*ConnectionData); ok {
		r.AddAttrs(slog.Group("conn",
			slog.String("id", cd.ID),
			slog.String("name", cd.Name),
		))
	}

	if md, ok := ctx.Value(msgDataKey{}).(*MessageData); ok {
		r.AddAttrs(slog.Group("msg",
			slog.String("name", md.Name),
			slog.Uint64("context", md.Context),
			slog.String("kind", md.Kind),
		))
	}

	return h.Handler.Handle(ctx, r)
}

func (h Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return Handler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h Handler) WithGroup(name string) slog.Handler {
	return Handler{Handler: h.Handler.WithGroup(name)}
}

type connDataKey struct{}

type ConnectionData struct {
	ID   string
	Name string
}

func WithConnection(ctx context.Context, data *ConnectionData) context.Context {
	return context.WithValue(ctx, connDataKey{}, data)
}

type msgDataKey struct{}

type MessageData struct {
	Name    string
	Context uint64
	Kind    string
}

func WithMessage(ctx context.Context, data *MessageData) context.Context {
	return context.WithValue(ctx, msgDataKey{}, data)
}
