package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"

	"github.com/layer-3/keyvault/core"
	"github.com/layer-3/keyvault/ports"
)

// NewApplier builds a router that applies touch events to the store.
// Handler errors are retried a few times, then logged and acked so a bad
// record cannot wedge the subscription.
func NewApplier(sub message.Subscriber, store ports.Store, logger watermill.LoggerAdapter) (*message.Router, error) {
	router, err := message.NewRouter(message.RouterConfig{CloseTimeout: 5 * time.Second}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create router: %w", err)
	}

	router.AddMiddleware(
		dropAfterRetries,
		middleware.Retry{
			MaxRetries:      3,
			InitialInterval: 50 * time.Millisecond,
			Logger:          logger,
		}.Middleware,
		middleware.Recoverer,
	)

	router.AddNoPublisherHandler("wallet_accessed", TopicWalletAccessed, sub, touchHandler(store.TouchWallet))
	router.AddNoPublisherHandler("apikey_used", TopicAPIKeyUsed, sub, touchHandler(store.TouchAPIKey))

	return router, nil
}

func touchHandler(touch func(ctx context.Context, id string, at time.Time) error) message.NoPublishHandlerFunc {
	return func(msg *message.Message) error {
		var event TouchEvent
		if err := json.Unmarshal(msg.Payload, &event); err != nil {
			log.Errorf("dropping malformed touch event %s: %v", msg.UUID, err)
			return nil
		}
		err := touch(msg.Context(), event.ID, event.At)
		if errors.Is(err, core.ErrNotFound) {
			log.Warnf("touch event for unknown record %s", event.ID)
			return nil
		}
		return err
	}
}

func dropAfterRetries(h message.HandlerFunc) message.HandlerFunc {
	return func(msg *message.Message) ([]*message.Message, error) {
		msgs, err := h(msg)
		if err != nil {
			log.Errorf("giving up on event %s: %v", msg.UUID, err)
			return nil, nil
		}
		return msgs, nil
	}
}
