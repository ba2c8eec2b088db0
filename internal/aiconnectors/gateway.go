package aiconnectors

import (
	"context"
	"fmt"
	"time"

	"github.com/totalrecall/pkg/models"
)

// Sender is a provider connection as seen by the request handlers
type Sender interface {
	Send(ctx context.Context, messages []models.Message, summary string) (models.Message, error)
	Summarize(ctx context.Context, messages []models.Message) (string, error)
}

// Observer receives the outcome of every provider call
type Observer interface {
	ObserveProviderCall(provider, op string, duration time.Duration, err error)
}

// Gateway resolves provider names to registered senders. It is built once at
// startup and only read afterwards.
type Gateway struct {
	senders map[Provider]Sender
	obs     Observer
}

// NewGateway creates an empty gateway. obs may be nil.
func NewGateway(obs Observer) *Gateway {
	return &Gateway{
		senders: make(map[Provider]Sender),
		obs:     obs,
	}
}

// Register registers a sender for a provider
func (g *Gateway) Register(provider Provider, sender Sender) {
	if g.obs != nil {
		sender = &observedSender{provider: provider, next: sender, obs: g.obs}
	}
	g.senders[provider] = sender
}

// Sender returns the sender for name. Unknown names fail with
// ErrUnsupportedProvider; known providers without credentials fail with
// ErrProviderNotConfigured.
func (g *Gateway) Sender(name string) (Sender, error) {
	provider, err := ParseProvider(name)
	if err != nil {
		return nil, err
	}
	sender, ok := g.senders[provider]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProviderNotConfigured, provider)
	}
	return sender, nil
}

// Providers lists the registered providers
func (g *Gateway) Providers() []Provider {
	out := make([]Provider, 0, len(g.senders))
	for _, p := range []Provider{ProviderOpenAI, ProviderAnthropic} {
		if _, ok := g.senders[p]; ok {
			out = append(out, p)
		}
	}
	return out
}

type observedSender struct {
	provider Provider
	next     Sender
	obs      Observer
}

func (o *observedSender) Send(ctx context.Context, messages []models.Message, summary string) (models.Message, error) {
	start := time.Now()
	msg, err := o.next.Send(ctx, messages, summary)
	o.obs.ObserveProviderCall(string(o.provider), "send", time.Since(start), err)
	return msg, err
}

func (o *observedSender) Summarize(ctx context.Context, messages []models.Message) (string, error) {
	start := time.Now()
	s, err := o.next.Summarize(ctx, messages)
	o.obs.ObserveProviderCall(string(o.provider), "summarize", time.Since(start), err)
	return s, err
}
