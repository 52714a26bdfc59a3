package llm

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/Morwran/yagpt"
)

// YandexClient talks to YandexGPT. The IAM token is exchanged on the first
// call.
type YandexClient struct {
	oauthToken string
	folderID   string

	mu       sync.Mutex
	ya       yagpt.YaGPTFace
	iamToken string
}

func NewYandex(oauthToken, folderID string) *YandexClient {
	return &YandexClient{oauthToken: oauthToken, folderID: folderID}
}

func (c *YandexClient) init() (yagpt.YaGPTFace, string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ya != nil {
		return c.ya, c.iamToken, nil
	}
	if strings.TrimSpace(c.oauthToken) == "" || strings.TrimSpace(c.folderID) == "" {
		return nil, "", ErrMissingCredential
	}

	iam, err := yagpt.NewYaIam(c.oauthToken)
	if err != nil {
		return nil, "", fmt.Errorf("failed to init yandex iam: %w", err)
	}
	resp, err := iam.Create()
	if err != nil {
		return nil, "", fmt.Errorf("failed to create iam token: %w", err)
	}
	ya, err := yagpt.NewYagpt(c.folderID)
	if err != nil {
		return nil, "", fmt.Errorf("failed to init yagpt: %w", err)
	}

	c.ya = ya
	c.iamToken = resp.IamToken
	return c.ya, c.iamToken, nil
}

func (c *YandexClient) Generate(ctx context.Context, messages []Message) (Response, error) {
	ya, token, err := c.init()
	if err != nil {
		return Response{}, err
	}

	yaMsgs := make([]yagpt.Message, 0, len(messages))
	for _, m := range messages {
		yaMsgs = append(yaMsgs, yagpt.Message{Role: m.Role, Content: m.Content})
	}

	resp, err := ya.CompletionWithCtx(ctx, token, yaMsgs)
	if err != nil {
		return Response{}, fmt.Errorf("yagpt completion failed: %w", err)
	}
	if resp == nil || len(resp.Alternatives) == 0 {
		return Response{}, ErrEmptyResponse
	}

	out := Response{Content: resp.Alternatives[0].Message.Content, Model: yagpt.YaModelLite}
	out.PromptTokens = int(resp.Usage.InputTextTokens)
	out.CompletionTokens = int(resp.Usage.CompletionTokens)
	out.TotalTokens = int(resp.Usage.TotalTokens)
	return out, nil
}
