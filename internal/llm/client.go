package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// qwen3 系列走 input/output 报文结构，其余模型走 OpenAI 兼容结构
const shapeAPrefix = "qwen3"

// Client 大模型网关：对 dashscope 兼容接口做一次 system+user 对话调用，
// 超时或失败按 2^retry 秒指数退避重试。
type Client struct {
	baseURL     string
	apiKey      string
	maxRetries  int
	thinking    bool
	temperature float32

	hc    *http.Client
	sleep func(time.Duration)
}

// NewClient 创建大模型客户端
func NewClient(baseURL, apiKey string, timeout time.Duration, maxRetries int, enableThinking bool, temperature float32) *Client {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &Client{
		baseURL:     baseURL,
		apiKey:      apiKey,
		maxRetries:  maxRetries,
		thinking:    enableThinking,
		temperature: temperature,
		hc:          &http.Client{Timeout: timeout},
		sleep:       time.Sleep,
	}
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// payloadA qwen3 报文：messages 包在 input 里，应答读 output.text
type payloadA struct {
	Model     string         `json:"model"`
	Input     payloadAInput  `json:"input"`
	ExtraBody map[string]any `json:"extra_body"`
}

type payloadAInput struct {
	Messages []message `json:"messages"`
}

// payloadB OpenAI 兼容报文，应答读 choices[0].message.content
type payloadB struct {
	Model     string         `json:"model"`
	Messages  []message      `json:"messages"`
	ExtraBody map[string]any `json:"extra_body"`
}

// buildPayload 按模型名前缀选择请求报文结构
func buildPayload(model, systemPrompt, userPrompt string, enableThinking bool, temperature float32) ([]byte, error) {
	messages := []message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: userPrompt},
	}

	extraBody := map[string]any{"temperature": temperature}
	if enableThinking {
		extraBody["enable_thinking"] = true
	}

	if strings.HasPrefix(model, shapeAPrefix) {
		return json.Marshal(payloadA{
			Model:     model,
			Input:     payloadAInput{Messages: messages},
			ExtraBody: extraBody,
		})
	}
	return json.Marshal(payloadB{
		Model:     model,
		Messages:  messages,
		ExtraBody: extraBody,
	})
}

// parseContent 从应答 JSON 中取出文本内容，取不到返回错误
func parseContent(model string, body []byte) (string, error) {
	if strings.HasPrefix(model, shapeAPrefix) {
		var resp struct {
			Output struct {
				Text *string `json:"text"`
			} `json:"output"`
		}
		if err := json.Unmarshal(body, &resp); err != nil {
			return "", errors.Wrap(err, "decode response")
		}
		if resp.Output.Text == nil {
			return "", fmt.Errorf("response missing output.text")
		}
		return strings.TrimSpace(*resp.Output.Text), nil
	}

	var resp struct {
		Choices []struct {
			Message struct {
				Content *string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", errors.Wrap(err, "decode response")
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == nil {
		return "", fmt.Errorf("response missing choices[0].message.content")
	}
	return strings.TrimSpace(*resp.Choices[0].Message.Content), nil
}

// Call 发起一次对话调用。所有失败（超时、非 2xx、应答解析失败）都会重试，
// 第 i 次失败后等待 2^i 秒；重试耗尽后返回错误，不向上抛出 panic。
func (c *Client) Call(ctx context.Context, model, systemPrompt, userPrompt string) (string, error) {
	payload, err := buildPayload(model, systemPrompt, userPrompt, c.thinking, c.temperature)
	if err != nil {
		return "", errors.Wrap(err, "build payload")
	}

	var lastErr error
	for retry := 0; retry < c.maxRetries; retry++ {
		if retry > 0 {
			c.sleep(time.Duration(1<<(retry-1)) * time.Second)
		}

		content, err := c.doRequest(ctx, model, payload)
		if err == nil {
			return content, nil
		}
		lastErr = err
		log.Warnf("LLM call failed (attempt %d/%d): %v", retry+1, c.maxRetries, err)
	}

	return "", errors.Wrapf(lastErr, "LLM call exhausted %d attempts", c.maxRetries)
}

func (c *Client) doRequest(ctx context.Context, model string, payload []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(payload))
	if err != nil {
		return "", errors.Wrap(err, "create request")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "do request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", errors.Wrap(err, "read response body")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("unexpected status %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	return parseContent(model, body)
}

// truncate 按 rune 截断，避免把多字节字符切成半个
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
