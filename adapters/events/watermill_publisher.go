package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"

	"github.com/layer-3/keyvault/ports"
)

const (
	TopicWalletAccessed = "keyvault.wallet.accessed"
	TopicAPIKeyUsed     = "keyvault.apikey.used"
)

// TouchEvent records that a wallet or API key was used at At
type TouchEvent struct {
	ID string    `json:"id"`
	At time.Time `json:"at"`
}

// WatermillPublisher implements the Bookkeeper interface using Watermill.
// Publishing happens off the request path; failures are logged and dropped.
type WatermillPublisher struct {
	publisher message.Publisher
	wg        sync.WaitGroup
}

var _ ports.Bookkeeper = (*WatermillPublisher)(nil)

// NewWatermillPublisher creates a new Watermill publisher
func NewWatermillPublisher(publisher message.Publisher) *WatermillPublisher {
	return &WatermillPublisher{publisher: publisher}
}

func (p *WatermillPublisher) WalletAccessed(ctx context.Context, walletID string, at time.Time) {
	p.publish(ctx, TopicWalletAccessed, TouchEvent{ID: walletID, At: at})
}

func (p *WatermillPublisher) APIKeyUsed(ctx context.Context, keyID string, at time.Time) {
	p.publish(ctx, TopicAPIKeyUsed, TouchEvent{ID: keyID, At: at})
}

func (p *WatermillPublisher) publish(ctx context.Context, topic string, event TouchEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Errorf("failed to marshal %s event for %s: %v", topic, event.ID, err)
		return
	}

	msg := message.NewMessage(uuid.New().String(), payload)
	msg.SetContext(context.WithoutCancel(ctx))

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		if err := p.publisher.Publish(topic, msg); err != nil {
			log.Warnf("failed to publish %s event for %s: %v", topic, event.ID, err)
		}
	}()
}

// Flush waits for in-flight publishes to finish
func (p *WatermillPublisher) Flush() {
	p.wg.Wait()
}
