package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/media-upload-router/internal/core/domain"
	"github.com/kirillkom/media-upload-router/internal/infrastructure/resilience"
)

const (
	subjectToggled = "flags.toggled"
	workerGroup    = "workers"
)

// Bus publishes upload outcomes and flag toggles and lets the worker
// consume them. Subjects are namespaced by a configurable prefix.
type Bus struct {
	conn     *nats.Conn
	prefix   string
	executor *resilience.Executor
	publish  func(subject string, data []byte) error
}

type Options struct {
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	ResilienceExecutor   *resilience.Executor
}

func New(url, prefix string) (*Bus, error) {
	return NewWithOptions(url, prefix, Options{})
}

func NewWithOptions(url, prefix string, options Options) (*Bus, error) {
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}
	retryOnFailedConnect := true
	if options.RetryOnFailedConnect != nil {
		retryOnFailedConnect = *options.RetryOnFailedConnect
	}

	conn, err := nats.Connect(
		url,
		nats.Name("media-upload-router"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Bus{
		conn:     conn,
		prefix:   normalizePrefix(prefix),
		executor: options.ResilienceExecutor,
		publish:  conn.Publish,
	}, nil
}

func normalizePrefix(prefix string) string {
	if prefix == "" {
		return "mur"
	}
	return prefix
}

func (b *Bus) subject(name string) string {
	return b.prefix + "." + name
}

func (b *Bus) Close() {
	if b.conn != nil {
		b.conn.Close()
	}
}

func (b *Bus) PublishUploadEvent(ctx context.Context, event domain.UploadEvent) error {
	if event.Kind != domain.UploadCompleted && event.Kind != domain.UploadFailed {
		return domain.WrapError(domain.ErrInvalidInput, "publish upload event", fmt.Errorf("unknown kind %q", event.Kind))
	}
	return b.publishJSON(ctx, b.subject(string(event.Kind)), event)
}

func (b *Bus) RecordToggle(ctx context.Context, event domain.ToggleEvent) error {
	return b.publishJSON(ctx, b.subject(subjectToggled), event)
}

func (b *Bus) publishJSON(ctx context.Context, subject string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	call := func(_ context.Context) error {
		if err := b.publish(subject, data); err != nil {
			return fmt.Errorf("nats publish %s: %w", subject, err)
		}
		return nil
	}

	if b.executor != nil {
		err = b.executor.Execute(ctx, "nats.publish", call, classifyNATSError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return asTemporary(subject, err)
	}
	return nil
}

// SubscribeUploadEvents blocks until ctx is done.
func (b *Bus) SubscribeUploadEvents(ctx context.Context, handler func(context.Context, domain.UploadEvent) error) error {
	return b.subscribe(ctx, b.subject("uploads.>"), func(handlerCtx context.Context, msg *nats.Msg) error {
		var event domain.UploadEvent
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			return fmt.Errorf("decode upload event: %w", err)
		}
		return handler(handlerCtx, event)
	})
}

// SubscribeToggles blocks until ctx is done.
func (b *Bus) SubscribeToggles(ctx context.Context, handler func(context.Context, domain.ToggleEvent) error) error {
	return b.subscribe(ctx, b.subject(subjectToggled), func(handlerCtx context.Context, msg *nats.Msg) error {
		var event domain.ToggleEvent
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			return fmt.Errorf("decode toggle event: %w", err)
		}
		return handler(handlerCtx, event)
	})
}

func (b *Bus) subscribe(ctx context.Context, subject string, handle func(context.Context, *nats.Msg) error) error {
	sub, err := b.conn.QueueSubscribe(subject, workerGroup, func(msg *nats.Msg) {
		if errors.Is(ctx.Err(), context.Canceled) {
			return
		}

		handlerCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		if err := handle(handlerCtx, msg); err != nil {
			slog.Error("worker_handler_failed", "subject", msg.Subject, "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("nats subscribe %s: %w", subject, err)
	}

	if err := b.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	if err := b.conn.FlushTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}
