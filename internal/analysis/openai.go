package analysis

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

const chatModel = openai.ChatModelGPT4_1Mini

type OpenAIAnalyzer struct {
	client *openai.Client
}

// NewOpenAIAnalyzer creates an analyzer using the OpenAI chat API.
// A positive timeout limits each request, retries included.
func NewOpenAIAnalyzer(apiKey string, timeout time.Duration, opts ...option.RequestOption) *OpenAIAnalyzer {
	base := []option.RequestOption{option.WithAPIKey(apiKey)}
	if timeout > 0 {
		base = append(base, option.WithRequestTimeout(timeout))
	}
	client := openai.NewClient(append(base, opts...)...)
	return &OpenAIAnalyzer{client: &client}
}

func (a *OpenAIAnalyzer) Name() string {
	return "openai/" + chatModel
}

func (a *OpenAIAnalyzer) Analyze(ctx context.Context, path string) (*Demographics, error) {
	const maxRetries = 3

	imageData, err := loadImage(path)
	if err != nil {
		return nil, err
	}
	imageURL := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(imageData)

	messages := []openai.ChatCompletionMessageParamUnion{
		{
			OfSystem: &openai.ChatCompletionSystemMessageParam{
				Content: openai.ChatCompletionSystemMessageParamContentUnion{
					OfString: openai.String(faceAnalysisPrompt),
				},
			},
		},
		{
			OfUser: &openai.ChatCompletionUserMessageParam{
				Content: openai.ChatCompletionUserMessageParamContentUnion{
					OfArrayOfContentParts: []openai.ChatCompletionContentPartUnionParam{
						openai.TextContentPart("Analyze the face in this photo."),
						openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
							URL:    imageURL,
							Detail: "low",
						}),
					},
				},
			},
		},
	}

	var lastError error
	var lastResponse string

	for range maxRetries {
		resp, err := a.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
			Model:    chatModel,
			Messages: messages,
			ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
				OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
			},
			MaxTokens: openai.Int(200),
		})
		if err != nil {
			return nil, fmt.Errorf("OpenAI API error: %w", err)
		}

		if len(resp.Choices) == 0 {
			return nil, errors.New("no response from OpenAI")
		}

		content := resp.Choices[0].Message.Content
		lastResponse = content

		demographics, err := parseFaceAnalysis(content)
		if err == nil || errors.Is(err, ErrNoFace) {
			return demographics, err
		}
		lastError = err

		// Add assistant response and error feedback to messages for retry
		messages = append(messages,
			openai.ChatCompletionMessageParamUnion{
				OfAssistant: &openai.ChatCompletionAssistantMessageParam{
					Content: openai.ChatCompletionAssistantMessageParamContentUnion{
						OfString: openai.String(content),
					},
				},
			},
			openai.ChatCompletionMessageParamUnion{
				OfUser: &openai.ChatCompletionUserMessageParam{
					Content: openai.ChatCompletionUserMessageParamContentUnion{
						OfString: openai.String(retryFeedback(err)),
					},
				},
			},
		)
	}

	return nil, fmt.Errorf("failed to parse face analysis after %d attempts: %w (last response: %s)", maxRetries, lastError, lastResponse)
}
