package llm

import (
	"context"
	"sync"
)

// Provider names recognised by SwitchProvider/NewClient.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
)

type wireProvider interface {
	chat(ctx context.Context, req Request) (*Response, error)
	streamChat(ctx context.Context, req Request, onText TextCallback) (*Response, error)
}

// overrides is the mutable, hot-swappable half of Client state. Reads
// snapshot it under RLock; an in-flight request holds its own copy of the
// api key/provider/model by value so a concurrent SwitchProvider/
// UpdateAPIKey call never perturbs work already underway, per spec §4.2
// ("Hot credential swap uses copy-on-read snapshots").
type overrides struct {
	mu       sync.RWMutex
	provider string
	apiKey   string
	baseURL  string
	model    string
}

func (o *overrides) snapshot() (provider, apiKey, baseURL, model string) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.provider, o.apiKey, o.baseURL, o.model
}

// Client is the concrete, provider-unified Transport implementation.
type Client struct {
	ov *overrides
}

// NewClient constructs a Client pinned to the given provider/credentials.
func NewClient(provider, apiKey, baseURL, defaultModel string) *Client {
	return &Client{ov: &overrides{provider: provider, apiKey: apiKey, baseURL: baseURL, model: defaultModel}}
}

func (c *Client) resolve() wireProvider {
	provider, apiKey, baseURL, model := c.ov.snapshot()
	switch provider {
	case ProviderOpenAI:
		return newOpenAIProvider(apiKey, baseURL, model)
	default:
		return newAnthropicProvider(apiKey, baseURL, model)
	}
}

// Chat implements Transport.
func (c *Client) Chat(ctx context.Context, req Request) (*Response, error) {
	return c.resolve().chat(ctx, req)
}

// StreamChat implements Transport.
func (c *Client) StreamChat(ctx context.Context, req Request, onText TextCallback) (*Response, error) {
	return c.resolve().streamChat(ctx, req, onText)
}

// UpdateAPIKey implements Transport: swaps the credential used by
// subsequent requests without reconstructing the client.
func (c *Client) UpdateAPIKey(newKey string) {
	c.ov.mu.Lock()
	defer c.ov.mu.Unlock()
	c.ov.apiKey = newKey
}

// SwitchProvider implements Transport: swaps provider/base URL/default
// model atomically.
func (c *Client) SwitchProvider(provider, baseURL, defaultModel string) {
	c.ov.mu.Lock()
	defer c.ov.mu.Unlock()
	c.ov.provider = provider
	c.ov.baseURL = baseURL
	c.ov.model = defaultModel
}

// CurrentProvider implements Transport.
func (c *Client) CurrentProvider() string {
	c.ov.mu.RLock()
	defer c.ov.mu.RUnlock()
	return c.ov.provider
}

var _ Transport = (*Client)(nil)
