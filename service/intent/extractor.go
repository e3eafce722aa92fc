package intent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

// Extractor maps a single utterance to a structured intent. Implementations
// return a nil intent with a nil error when the utterance does not yield a
// complete, valid intent; an *ExtractionError when the capability itself
// failed for this utterance.
type Extractor interface {
	ExtractTransfer(ctx context.Context, utterance string, knownUsernames []string) (*TransferIntent, error)
	ExtractSwap(ctx context.Context, utterance string) (*SwapIntent, error)
}

const transferSystemPrompt = `The user will provide you with a text transcription of a spoken request to create a blockchain transfer.
Extract the recipient, amount, currency and network from the message.
Output a single JSON object with 'to' for the recipient username, 'amount' for the amount, 'currency' for the currency and 'network' for the network.
Use 'USDC' for dollar amounts, otherwise use 'ETH'.
The network must be one of: base, polygon, arbitrum, ethereum. Default to 'base' when the network is not mentioned.
Here are the available usernames: %s.`

const swapSystemPrompt = `The user will provide you with a text transcription of a spoken request to swap one asset for another.
Extract the amount, source currency, target currency and network from the message.
Output a single JSON object with 'amount' for the deposit amount, 'fromCurrency' for the source currency, 'toCurrency' for the target currency and 'network' for the network.
Currencies must be 'USDC' or 'ETH'; treat dollar amounts as 'USDC'.
The network must be one of: base, polygon, arbitrum, ethereum. Default to 'base' when the network is not mentioned.`

// OpenAIExtractor implements Extractor using the OpenAI chat completions API
// with a JSON-object response format.
type OpenAIExtractor struct {
	client oai.Client
	model  string
}

// NewOpenAIExtractor constructs an extractor. baseURL may be empty to use the
// default API endpoint.
func NewOpenAIExtractor(apiKey, baseURL, model string) (*OpenAIExtractor, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("intent: apiKey must not be empty")
	}
	if model == "" {
		return nil, fmt.Errorf("intent: model must not be empty")
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(baseURL))
	}

	return &OpenAIExtractor{
		client: oai.NewClient(reqOpts...),
		model:  model,
	}, nil
}

// ExtractTransfer implements Extractor.
func (e *OpenAIExtractor) ExtractTransfer(ctx context.Context, utterance string, knownUsernames []string) (*TransferIntent, error) {
	prompt := fmt.Sprintf(transferSystemPrompt, strings.Join(knownUsernames, ", "))
	content, err := e.complete(ctx, prompt, utterance)
	if err != nil {
		return nil, err
	}

	var raw rawTransfer
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return nil, &ExtractionError{Reason: "malformed extraction response", Err: err}
	}

	result, ok := transferFromRaw(raw, utterance)
	if !ok {
		return nil, nil
	}
	return result, nil
}

// ExtractSwap implements Extractor.
func (e *OpenAIExtractor) ExtractSwap(ctx context.Context, utterance string) (*SwapIntent, error) {
	content, err := e.complete(ctx, swapSystemPrompt, utterance)
	if err != nil {
		return nil, err
	}

	var raw rawSwap
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return nil, &ExtractionError{Reason: "malformed extraction response", Err: err}
	}

	result, ok := swapFromRaw(raw, utterance)
	if !ok {
		return nil, nil
	}
	return result, nil
}

// complete issues a single JSON-constrained chat completion and returns the
// raw message content.
func (e *OpenAIExtractor) complete(ctx context.Context, systemPrompt, userText string) (string, error) {
	resp, err := e.client.Chat.Completions.New(ctx, oai.ChatCompletionNewParams{
		Model: shared.ChatModel(e.model),
		Messages: []oai.ChatCompletionMessageParamUnion{
			oai.SystemMessage(systemPrompt),
			oai.UserMessage(userText),
		},
		ResponseFormat: oai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		},
	})
	if err != nil {
		return "", &ExtractionError{Reason: "extraction call failed", Err: err}
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", &ExtractionError{Reason: "no intent detected"}
	}
	return resp.Choices[0].Message.Content, nil
}
