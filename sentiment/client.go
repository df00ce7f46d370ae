package sentiment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/invopop/jsonschema"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"
)

// Request is one classification call to the completion endpoint.
type Request struct {
	Model        string
	Temperature  float64
	SystemPrompt string
	UserPrompt   string
}

// Response carries the endpoint's raw structured-output body plus token
// usage for cost accounting.
type Response struct {
	Content      string
	InputTokens  int
	OutputTokens int
	CachedTokens int
}

// Client is the completion endpoint the analyzer talks to. The production
// implementation is OpenAIClient; tests substitute fakes.
type Client interface {
	Complete(ctx context.Context, req Request) (Response, error)
}

// classificationOutput is the structured-output shape the endpoint is asked
// to produce.
type classificationOutput struct {
	Sentiment    string  `json:"sentiment"`
	PositiveProb float64 `json:"positive_prob"`
	NegativeProb float64 `json:"negative_prob"`
	NeutralProb  float64 `json:"neutral_prob"`
	Reasoning    string  `json:"reasoning"`
}

var classificationSchema = generateSchema[classificationOutput]()

// OpenAIClient implements Client against the OpenAI Responses API.
type OpenAIClient struct {
	client *openai.Client
}

// NewOpenAIClient builds a client with the given API key.
func NewOpenAIClient(apiKey string) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, errors.New("NewOpenAIClient: api key is empty")
	}
	c := openai.NewClient(option.WithAPIKey(apiKey))
	return &OpenAIClient{client: &c}, nil
}

// Complete issues one structured-output request. It performs no retries of
// its own; the analyzer owns the retry and timeout policy.
func (c *OpenAIClient) Complete(ctx context.Context, req Request) (Response, error) {
	if c.client == nil {
		return Response{}, errors.New("OpenAIClient: client is nil")
	}
	if req.Model == "" {
		return Response{}, errors.New("OpenAIClient: model is empty")
	}

	format := responses.ResponseFormatTextConfigUnionParam{
		OfJSONSchema: &responses.ResponseFormatTextJSONSchemaConfigParam{
			Name:        "SentimentClassification",
			Schema:      classificationSchema,
			Strict:      openai.Bool(true),
			Description: openai.String("Earnings call sentiment classification JSON"),
			Type:        "json_schema",
		},
	}

	params := responses.ResponseNewParams{
		Model:        req.Model,
		Temperature:  openai.Float(req.Temperature),
		Instructions: openai.String(req.SystemPrompt),
		Input: responses.ResponseNewParamsInputUnion{
			OfInputItemList: []responses.ResponseInputItemUnionParam{
				responses.ResponseInputItemParamOfMessage(req.UserPrompt, responses.EasyInputMessageRoleUser),
			},
		},
		Text: responses.ResponseTextConfigParam{
			Format: format,
		},
	}

	resp, err := c.client.Responses.New(ctx, params)
	if err != nil {
		return Response{}, fmt.Errorf("OpenAIClient.Complete: %w", err)
	}

	return Response{
		Content:      resp.OutputText(),
		InputTokens:  int(resp.Usage.InputTokens),
		OutputTokens: int(resp.Usage.OutputTokens),
		CachedTokens: int(resp.Usage.InputTokensDetails.CachedTokens),
	}, nil
}

// ---- Structured output schema helper ----

func generateSchema[T any]() map[string]interface{} {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties:  false,
		DoNotReference:             true,
		RequiredFromJSONSchemaTags: true,
	}
	var v T
	schema := reflector.Reflect(v)
	schemaObj, err := schemaToMap(schema)
	if err != nil {
		panic(err)
	}
	ensureOpenAICompliance(schemaObj)
	return schemaObj
}

func schemaToMap(schema *jsonschema.Schema) (map[string]interface{}, error) {
	b, err := schema.MarshalJSON()
	if err != nil {
		return nil, err
	}
	var m map[string]interface{}
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return m, nil
}

const (
	propertiesKey           = "properties"
	additionalPropertiesKey = "additionalProperties"
	typeKey                 = "type"
	requiredKey             = "required"
	itemsKey                = "items"
)

func ensureOpenAICompliance(schema map[string]interface{}) {
	if schemaType, ok := schema[typeKey].(string); ok && schemaType == "object" {
		schema[additionalPropertiesKey] = false

		if properties, ok := schema[propertiesKey].(map[string]interface{}); ok {
			var requiredFields []string
			for propName := range properties {
				requiredFields = append(requiredFields, propName)
			}
			if len(requiredFields) > 0 {
				schema[requiredKey] = requiredFields
			}
		}
	}

	if properties, ok := schema[propertiesKey].(map[string]interface{}); ok {
		for _, prop := range properties {
			if propMap, ok := prop.(map[string]interface{}); ok {
				ensureOpenAICompliance(propMap)
			}
		}
	}

	if items, ok := schema[itemsKey].(map[string]interface{}); ok {
		ensureOpenAICompliance(items)
	}

	if additionalProps, ok := schema[additionalPropertiesKey].(map[string]interface{}); ok {
		ensureOpenAICompliance(additionalProps)
	}
}
