// Package embed implements the Discovery Index's embedding providers (spec
// §4.6, §6 "Embeddings provider"): AWS Bedrock and OpenAI, selected by
// configuration. Both satisfy store.Vectorizer.
package embed

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/mcpgw/authgw/internal/gwerrors"
)

// BedrockEmbedder embeds text via an AWS Bedrock embedding model (e.g.
// amazon.titan-embed-text-v2:0 or cohere.embed-english-v3).
type BedrockEmbedder struct {
	client *bedrockruntime.Client
	model  string
}

// NewBedrockEmbedder builds an embedder bound to a Bedrock runtime client.
func NewBedrockEmbedder(ctx context.Context, region, model string) (*BedrockEmbedder, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, gwerrors.NewInternalError("loading AWS config for bedrock embedder", err)
	}
	return &BedrockEmbedder{client: bedrockruntime.NewFromConfig(cfg), model: model}, nil
}

type titanEmbedRequest struct {
	InputText string `json:"inputText"`
}

type titanEmbedResponse struct {
	Embedding []float32 `json:"embedding"`
}

// Embed implements store.Vectorizer.
func (b *BedrockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(titanEmbedRequest{InputText: text})
	if err != nil {
		return nil, fmt.Errorf("marshaling bedrock embed request: %w", err)
	}
	out, err := b.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(b.model),
		ContentType: aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		return nil, gwerrors.NewUpstreamUnavailableError("invoking bedrock embedding model", err)
	}
	var resp titanEmbedResponse
	if err := json.Unmarshal(out.Body, &resp); err != nil {
		return nil, fmt.Errorf("decoding bedrock embed response: %w", err)
	}
	return resp.Embedding, nil
}

// OpenAIEmbedder embeds text via the OpenAI embeddings API.
type OpenAIEmbedder struct {
	client openai.Client
	model  string
}

// NewOpenAIEmbedder builds an embedder bound to the OpenAI API.
func NewOpenAIEmbedder(apiKey, model string) *OpenAIEmbedder {
	return &OpenAIEmbedder{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}
}

// Embed implements store.Vectorizer.
func (o *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := o.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfString: openai.String(text)},
		Model: o.model,
	})
	if err != nil {
		return nil, gwerrors.NewUpstreamUnavailableError("invoking openai embeddings", err)
	}
	if len(resp.Data) == 0 {
		return nil, gwerrors.NewUpstreamUnavailableError("openai embeddings returned no data", nil)
	}
	embedding := resp.Data[0].Embedding
	out := make([]float32, len(embedding))
	for i, v := range embedding {
		out[i] = float32(v)
	}
	return out, nil
}

// New selects an embedder by provider name ("bedrock" or "openai"), per
// spec §6's EMBEDDINGS_PROVIDER configuration variable.
func New(ctx context.Context, provider, model, region, apiKey string) (interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}, error) {
	switch provider {
	case "bedrock":
		return NewBedrockEmbedder(ctx, region, model)
	case "openai":
		return NewOpenAIEmbedder(apiKey, model), nil
	default:
		return nil, fmt.Errorf("unknown embeddings provider: %s", provider)
	}
}
