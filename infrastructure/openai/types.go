package openai

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fjgonzalezmgt/cv-maker/domain/generation"
)

// Responses API wire types. Optional knobs are pointers or omitempty so
// an absent value is truly absent from the body, preserving API-side
// defaulting.

type apiContentItem struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
	Filename string `json:"filename,omitempty"`
	FileData string `json:"file_data,omitempty"`
}

type apiMessage struct {
	Role    string           `json:"role"`
	Content []apiContentItem `json:"content"`
}

type apiRequest struct {
	Model           string          `json:"model"`
	Input           []apiMessage    `json:"input"`
	Temperature     *float64        `json:"temperature,omitempty"`
	MaxOutputTokens *int            `json:"max_output_tokens,omitempty"`
	Reasoning       json.RawMessage `json:"reasoning,omitempty"`
	Text            json.RawMessage `json:"text,omitempty"`
	Stream          bool            `json:"stream,omitempty"`
}

type apiResponse struct {
	ID         string            `json:"id"`
	Status     string            `json:"status"`
	Model      string            `json:"model"`
	OutputText string            `json:"output_text,omitempty"`
	Output     []apiOutput       `json:"output"`
	Usage      *apiUsage         `json:"usage,omitempty"`
	Error      *apiResponseError `json:"error,omitempty"`
}

type apiOutput struct {
	Type    string             `json:"type"`
	Role    string             `json:"role,omitempty"`
	Content []apiOutputContent `json:"content,omitempty"`
}

type apiOutputContent struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type apiUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

type apiResponseError struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// streamEvent is one SSE payload from a streaming response.
type streamEvent struct {
	Type  string            `json:"type"`
	Delta string            `json:"delta,omitempty"`
	Error *apiResponseError `json:"error,omitempty"`
}

func dataURI(mime, base64Data string) string {
	return fmt.Sprintf("data:%s;base64,%s", mime, base64Data)
}

// encodeMessages maps domain messages onto the wire shape. Warning
// items travel as plain input_text; the distinction only matters on
// this side of the boundary.
func encodeMessages(messages []generation.Message) []apiMessage {
	encoded := make([]apiMessage, 0, len(messages))
	for _, msg := range messages {
		out := apiMessage{Role: msg.Role, Content: make([]apiContentItem, 0, len(msg.Content))}
		for _, item := range msg.Content {
			switch item.Kind {
			case generation.ItemImage:
				out.Content = append(out.Content, apiContentItem{
					Type:     "input_image",
					ImageURL: dataURI(item.MIME, item.Data),
				})
			case generation.ItemFile:
				out.Content = append(out.Content, apiContentItem{
					Type:     "input_file",
					Filename: item.Filename,
					FileData: dataURI(item.MIME, item.Data),
				})
			default:
				out.Content = append(out.Content, apiContentItem{
					Type: "input_text",
					Text: item.Text,
				})
			}
		}
		encoded = append(encoded, out)
	}
	return encoded
}

// outputText extracts the concatenated text of a completed response.
func (r *apiResponse) outputText() string {
	if r.OutputText != "" {
		return r.OutputText
	}
	var sb strings.Builder
	for _, out := range r.Output {
		if out.Type != "message" {
			continue
		}
		for _, content := range out.Content {
			if content.Type == "output_text" {
				sb.WriteString(content.Text)
			}
		}
	}
	return sb.String()
}
