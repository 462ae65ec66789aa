// Package openai provides a unified client for OpenAI API access
// with support for both Azure OpenAI (primary) and OpenAI platform (fallback)
package openai

import (
	"context"
	"fmt"
	"time"

	"mailchat/internal/config"

	"github.com/sashabaranov/go-openai"
)

// provider is one configured OpenAI-compatible backend
type provider struct {
	client     *openai.Client
	name       string
	gptModel   string
	embedModel openai.EmbeddingModel
}

// Client fans calls across Azure OpenAI (primary) and the OpenAI platform
// (fallback). Providers are tried in order; the first success wins.
type Client struct {
	providers []provider
	timeout   time.Duration
	useAzure  bool
}

// NewClient builds the provider chain from configuration
func NewClient(cfg *config.Config) (*Client, error) {
	client := &Client{
		timeout: time.Duration(cfg.OpenAITimeout) * time.Second,
	}

	// Azure OpenAI first (primary)
	if cfg.UseAzureOpenAI() {
		azureConfig := openai.DefaultAzureConfig(cfg.AzureOpenAIKey, cfg.AzureOpenAIEndpoint)
		client.providers = append(client.providers, provider{
			client:     openai.NewClientWithConfig(azureConfig),
			name:       "Azure OpenAI",
			gptModel:   cfg.AzureOpenAIGPTDeployment,
			embedModel: openai.EmbeddingModel(cfg.AzureOpenAIEmbeddingDeployment),
		})
		client.useAzure = true

		fmt.Printf("[OPENAI_CLIENT] Primary provider: Azure OpenAI (endpoint: %s)\n", cfg.AzureOpenAIEndpoint)
	}

	// OpenAI platform as fallback (or primary if Azure not configured)
	if cfg.HasOpenAIFallback() {
		client.providers = append(client.providers, provider{
			client:     openai.NewClient(cfg.OpenAIKey),
			name:       "OpenAI",
			gptModel:   string(openai.GPT4oMini),
			embedModel: openai.SmallEmbedding3,
		})

		if client.useAzure {
			fmt.Printf("[OPENAI_CLIENT] Fallback provider: OpenAI\n")
		} else {
			fmt.Printf("[OPENAI_CLIENT] Primary provider: OpenAI (Azure not configured)\n")
		}
	}

	if len(client.providers) == 0 {
		return nil, fmt.Errorf("no OpenAI provider configured: set AZURE_OPENAI_ENDPOINT + AZURE_OPENAI_KEY or OPENAI_API_KEY")
	}

	return client, nil
}

// TestConnection verifies the API connection works
func (c *Client) TestConnection(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	_, err := c.CreateEmbeddings(ctx, []string{"test"})
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %v", c.GetProviderName(), err)
	}

	fmt.Printf("[OPENAI_CLIENT] Connection test successful (%s)\n", c.GetProviderName())
	return nil
}

// CreateEmbeddings generates embeddings for the given texts
func (c *Client) CreateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	ctx, cancel := c.callContext(ctx)
	defer cancel()

	var lastErr error
	for i, p := range c.providers {
		resp, err := p.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Input: texts,
			Model: p.embedModel,
		})
		if err != nil {
			lastErr = err
			if i+1 < len(c.providers) {
				fmt.Printf("[OPENAI_CLIENT] %s embeddings failed, trying fallback: %v\n", p.name, err)
			}
			continue
		}
		if i > 0 {
			fmt.Printf("[OPENAI_CLIENT] Fallback succeeded\n")
		}

		embeddings := make([][]float32, len(resp.Data))
		for j, data := range resp.Data {
			embeddings[j] = data.Embedding
		}
		return embeddings, nil
	}

	if len(c.providers) > 1 {
		return nil, fmt.Errorf("both providers failed: %v", lastErr)
	}
	return nil, lastErr
}

// CreateChatCompletion generates a chat completion
func (c *Client) CreateChatCompletion(ctx context.Context, messages []openai.ChatCompletionMessage, maxTokens int, temperature float32) (*openai.ChatCompletionResponse, error) {
	ctx, cancel := c.callContext(ctx)
	defer cancel()

	var lastErr error
	for i, p := range c.providers {
		resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:       p.gptModel,
			Messages:    messages,
			MaxTokens:   maxTokens,
			Temperature: temperature,
		})
		if err != nil {
			lastErr = err
			if i+1 < len(c.providers) {
				fmt.Printf("[OPENAI_CLIENT] %s chat failed, trying fallback: %v\n", p.name, err)
			}
			continue
		}
		if i > 0 {
			fmt.Printf("[OPENAI_CLIENT] Fallback chat succeeded\n")
		}
		return &resp, nil
	}

	if len(c.providers) > 1 {
		return nil, fmt.Errorf("both providers failed: %v", lastErr)
	}
	return nil, lastErr
}

// GetProviderName returns the current primary provider name
func (c *Client) GetProviderName() string {
	return c.providers[0].name
}

// IsUsingAzure returns true if Azure OpenAI is the primary provider
func (c *Client) IsUsingAzure() bool {
	return c.useAzure
}

// GetGPTModel returns the GPT model/deployment name being used
func (c *Client) GetGPTModel() string {
	return c.providers[0].gptModel
}

// GetEmbeddingModel returns the embedding model/deployment name being used
func (c *Client) GetEmbeddingModel() string {
	return string(c.providers[0].embedModel)
}

// callContext applies the configured request timeout when one is set
func (c *Client) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}
