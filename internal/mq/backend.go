package mq

import (
	"context"
	"errors"
	"fmt"

	"github.com/messagely/apiserver/config"
)

var errNoBackend = errors.New("message queue backend is not configured")

// Open connects to the backend selected by cfg. It returns nil, nil when
// publishing is disabled.
func Open(ctx context.Context, cfg config.MQConfig) (*MQ, error) {
	switch cfg.Backend {
	case config.MQBackendNone:
		return nil, nil
	case config.MQBackendRabbitMQ:
		client, err := NewRabbitMQClient(cfg.RabbitMQ)
		if err != nil {
			return nil, err
		}
		return New(client), nil
	case config.MQBackendPubSub:
		client, err := NewPubSubClient(ctx, cfg.PubSub)
		if err != nil {
			return nil, err
		}
		return New(client), nil
	default:
		return nil, fmt.Errorf("unknown mq backend %q", cfg.Backend)
	}
}

// MustOpen is like Open but fails when no backend is configured.
func MustOpen(ctx context.Context, cfg config.MQConfig) (*MQ, error) {
	m, err := Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, errNoBackend
	}
	return m, nil
}
