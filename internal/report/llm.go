package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Narrative is the four-field bundle a composer produces.
type Narrative struct {
	Summary     string `json:"summary"`
	Strengths   string `json:"strengths"`
	Weaknesses  string `json:"weaknesses"`
	Suggestions string `json:"suggestions"`
}

// LLMClient talks to an OpenAI-compatible chat-completions endpoint. The call
// is one-shot and best-effort: any failure surfaces as an error and the
// caller falls back to the deterministic template.
type LLMClient struct {
	client  *http.Client
	baseURL string
	apiKey  string
	model   string
}

func NewLLMClient(baseURL, apiKey, model string) *LLMClient {
	return &LLMClient{
		client:  &http.Client{Timeout: 60 * time.Second},
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Compose sends the prompt and parses the model's JSON reply into a
// Narrative. The prompt instructs the model to answer with the four keys.
func (c *LLMClient) Compose(ctx context.Context, prompt string) (Narrative, error) {
	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: "You are an aptitude test mentor. Reply with JSON only."},
			{Role: "user", Content: prompt},
		},
		Temperature: 0.7,
	})
	if err != nil {
		return Narrative{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return Narrative{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return Narrative{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Narrative{}, fmt.Errorf("llm status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}

	var cr chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return Narrative{}, err
	}
	if len(cr.Choices) == 0 {
		return Narrative{}, fmt.Errorf("llm returned no choices")
	}

	content := strings.TrimSpace(cr.Choices[0].Message.Content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	var n Narrative
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &n); err != nil {
		return Narrative{}, fmt.Errorf("parse llm reply: %w", err)
	}
	if n.Summary == "" {
		return Narrative{}, fmt.Errorf("llm reply missing summary")
	}
	return n, nil
}
