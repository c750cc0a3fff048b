package openai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/fjgonzalezmgt/cv-maker/domain/generation"
)

var sseDataPrefix = []byte("data: ")

// Stream executes a streaming completion. Establishing the stream goes
// through the same retry policy as blocking calls; once established,
// the returned sequence is pull-based and single-pass. A terminal error
// event surfaces at Recv, not before. The per-request timeout is not
// applied here: a slow consumer is not a transport failure.
func (c *Client) Stream(ctx context.Context, cfg generation.RequestConfig, messages []generation.Message) (*generation.TextStream, error) {
	resp, err := c.send(ctx, cfg, messages, true)
	if err != nil {
		return nil, err
	}

	reader := bufio.NewReader(resp.Body)
	next := func() (string, error) {
		for {
			line, err := reader.ReadBytes('\n')
			if err != nil {
				if err == io.EOF {
					return "", io.EOF
				}
				return "", fmt.Errorf("stream read: %w", err)
			}
			line = bytes.TrimSpace(line)
			if !bytes.HasPrefix(line, sseDataPrefix) {
				continue
			}
			payload := bytes.TrimSpace(line[len(sseDataPrefix):])
			if bytes.Equal(payload, []byte("[DONE]")) {
				return "", io.EOF
			}

			var event streamEvent
			if err := json.Unmarshal(payload, &event); err != nil {
				logrus.WithField("payload", string(payload)).Error("Failed to decode stream event")
				return "", fmt.Errorf("decode stream event: %w", err)
			}

			switch event.Type {
			case "response.output_text.delta":
				return event.Delta, nil
			case "response.completed":
				return "", io.EOF
			case "response.error", "error":
				message := "unknown stream error"
				if event.Error != nil {
					message = event.Error.Message
				}
				logrus.WithField("error", message).Error("Stream aborted by error event")
				return "", fmt.Errorf("stream error event: %s", message)
			default:
				// Lifecycle events carry no text.
				continue
			}
		}
	}

	return generation.NewTextStream(next, resp.Body), nil
}
