package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sashabaranov/go-openai"

	"github.com/gdxemberai/gmm-tools/internal/model"
)

const maxCompletionTokens = 1000

const systemPrompt = "You are an expert sports card listing parser. " +
	"Return ONLY valid JSON, no explanations or markdown formatting."

const userPromptTemplate = `Extract structured card data from the listing title below.
Return a JSON object with exactly these fields:
player_name (string), year (int or null), brand (string),
card_number (string or null), card_type (string or null),
variation (string or null), serial_numbered (int or null),
is_rookie (bool), is_prospect (bool), is_first_bowman (bool),
is_autograph (bool), has_patch (bool),
is_graded (bool), grading_company (string or null), grade (number or null),
has_perfect_subgrade (bool), is_reprint (bool), is_redemption (bool),
sport (string or null), confidence ("high"|"medium"|"low"),
warnings (array of strings).

A card cannot be both a rookie and a prospect. Set is_graded true only
when both grading_company and grade are known.

Listing title:
%s`

// OpenAIExtractor implements Extractor on the OpenAI chat completion API
// with a JSON response format. Auth failures are fatal; everything else
// (timeouts, rate limits, malformed output) is left transient for the
// retry wrapper.
type OpenAIExtractor struct {
	client *openai.Client
	model  string
}

// NewOpenAIExtractor creates an extractor using the given API key and
// model. An empty model falls back to gpt-4o-mini.
func NewOpenAIExtractor(apiKey, model string) *OpenAIExtractor {
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAIExtractor{
		client: openai.NewClient(apiKey),
		model:  model,
	}
}

func (e *OpenAIExtractor) Extract(ctx context.Context, description string) (*model.ParsedCard, error) {
	resp, err := e.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     e.model,
		MaxTokens: maxCompletionTokens,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: fmt.Sprintf(userPromptTemplate, description)},
		},
	})
	if err != nil {
		return nil, classify(err)
	}

	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return nil, errors.New("extract: empty completion")
	}

	var card model.ParsedCard
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &card); err != nil {
		return nil, fmt.Errorf("extract: malformed completion: %w", err)
	}
	if card.PlayerName == "" || card.Brand == "" {
		return nil, errors.New("extract: completion missing required fields")
	}

	return &card, nil
}

// classify wraps auth/configuration failures as fatal so the retry wrapper
// stops immediately instead of burning the budget.
func classify(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case 401, 403:
			return Fatal(err)
		}
	}
	return err
}
