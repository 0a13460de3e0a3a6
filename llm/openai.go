package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"
)

// DefaultModel matches the model the diary prompts were tuned against.
const DefaultModel = "gpt-4o-mini"

// OpenAISettings configures an OpenAI generator. APIKey and Model are required.
type OpenAISettings struct {
	APIKey  string
	Model   string
	BaseURL string
}

// OpenAI implements Generator on top of the Responses API.
type OpenAI struct {
	client *openai.Client
	model  string
}

func NewOpenAI(s OpenAISettings) (*OpenAI, error) {
	if strings.TrimSpace(s.APIKey) == "" {
		return nil, errors.New("openai: api key is empty")
	}
	if strings.TrimSpace(s.Model) == "" {
		return nil, errors.New("openai: model is empty")
	}
	opts := []option.RequestOption{option.WithAPIKey(s.APIKey)}
	if s.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(s.BaseURL))
	}
	client := openai.NewClient(opts...)
	return &OpenAI{client: &client, model: s.Model}, nil
}

func (o *OpenAI) Model() string { return o.model }

func (o *OpenAI) Generate(ctx context.Context, req Request) (string, error) {
	if o == nil || o.client == nil {
		return "", errors.New("openai: client is nil")
	}

	params := responses.ResponseNewParams{
		Model:       o.model,
		Temperature: openai.Float(req.Temperature),
		Input: responses.ResponseNewParamsInputUnion{
			OfInputItemList: []responses.ResponseInputItemUnionParam{
				responses.ResponseInputItemParamOfMessage(req.Input, responses.EasyInputMessageRoleUser),
			},
		},
	}
	if strings.TrimSpace(req.Instructions) != "" {
		params.Instructions = openai.String(req.Instructions)
	}
	if req.MaxOutputTokens > 0 {
		params.MaxOutputTokens = openai.Int(req.MaxOutputTokens)
	}
	if req.Schema != nil {
		params.Text = responses.ResponseTextConfigParam{
			Format: responses.ResponseFormatTextConfigUnionParam{
				OfJSONSchema: &responses.ResponseFormatTextJSONSchemaConfigParam{
					Name:        req.Schema.Name,
					Schema:      req.Schema.Definition,
					Strict:      openai.Bool(true),
					Description: openai.String(req.Schema.Description),
					Type:        "json_schema",
				},
			},
		}
	}

	resp, err := o.client.Responses.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrUpstreamModel, requestName(req), err)
	}
	out := strings.TrimSpace(resp.OutputText())
	if out == "" {
		return "", fmt.Errorf("%w: %s: empty response", ErrMalformedModelOutput, requestName(req))
	}
	return out, nil
}

func requestName(req Request) string {
	if req.Name == "" {
		return "generate"
	}
	return req.Name
}
