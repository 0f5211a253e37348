package dashscope

import (
	"encoding/json"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/shelfscan/backend/internal/domain"
)

// chatResponse covers both DashScope envelopes: the OpenAI-compatible
// {"choices": [...]} and the native {"output": {"choices": [...]}}.
// Error bodies come as {"error": {"message"}} or {"code", "message"}.
type chatResponse struct {
	Choices []choice `json:"choices"`
	Output  *struct {
		Choices []choice `json:"choices"`
		Text    string   `json:"text"`
	} `json:"output"`

	Code    string `json:"code"`
	Message string `json:"message"`
	Error   *struct {
		Message string `json:"message"`
	} `json:"error"`
}

type choice struct {
	Message struct {
		Role    string          `json:"role"`
		Content json.RawMessage `json:"content"`
	} `json:"message"`
}

// contentPart is one element of the native multimodal content array
type contentPart struct {
	Text string `json:"text"`
}

// extractContent returns the assistant text from either envelope shape
func extractContent(body []byte) (string, error) {
	var resp chatResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", &domain.MalformedResponseError{Reason: "response is not JSON", Raw: truncate(string(body))}
	}

	choices := resp.Choices
	if len(choices) == 0 && resp.Output != nil {
		if resp.Output.Text != "" {
			return resp.Output.Text, nil
		}
		choices = resp.Output.Choices
	}
	if len(choices) == 0 {
		return "", &domain.MalformedResponseError{Reason: "response has no choices", Raw: truncate(string(body))}
	}

	text := contentText(choices[0].Message.Content)
	if strings.TrimSpace(text) == "" {
		return "", &domain.MalformedResponseError{Reason: "empty response"}
	}
	return text, nil
}

// contentText accepts content as a plain string or as an array of text parts
func contentText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	var parts []contentPart
	if err := json.Unmarshal(raw, &parts); err == nil {
		texts := make([]string, 0, len(parts))
		for _, p := range parts {
			if p.Text != "" {
				texts = append(texts, p.Text)
			}
		}
		return strings.Join(texts, "\n")
	}

	return ""
}

// errorMessage pulls a human readable message out of an error body
func errorMessage(status int, body []byte) string {
	var resp chatResponse
	if err := json.Unmarshal(body, &resp); err == nil {
		if resp.Error != nil && resp.Error.Message != "" {
			return resp.Error.Message
		}
		if resp.Message != "" {
			if resp.Code != "" {
				return resp.Code + ": " + resp.Message
			}
			return resp.Message
		}
	}
	if text := strings.TrimSpace(string(body)); text != "" {
		return truncate(text)
	}
	return http.StatusText(status)
}

// stripQuotes removes quotes a model wraps around a one-line answer
func stripQuotes(s string) string {
	s = strings.TrimSpace(s)
	for len(s) >= 2 {
		first, last := s[0], s[len(s)-1]
		if (first == '"' && last == '"') || (first == '\'' && last == '\'') || (first == '`' && last == '`') {
			s = strings.TrimSpace(s[1 : len(s)-1])
			continue
		}
		break
	}
	return s
}

// truncate shortens s to at most 300 bytes without splitting a rune
func truncate(s string) string {
	const limit = 300
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
