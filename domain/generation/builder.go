package generation

// BuildInput assembles the ordered message list for one completion call:
// developer message first when a system prompt is present, then the user
// message (user text before file-derived items), then any extra messages
// verbatim in caller order. Ordering is semantically meaningful to the
// model and is never reshuffled.
func BuildInput(systemPrompt, userText string, items []ContentItem, extra []Message) ([]Message, error) {
	var userContent []ContentItem
	if userText != "" {
		userContent = append(userContent, TextItem(userText))
	}
	userContent = append(userContent, items...)

	var messages []Message
	if systemPrompt != "" {
		messages = append(messages, Message{
			Role:    RoleDeveloper,
			Content: []ContentItem{TextItem(systemPrompt)},
		})
	}
	if len(userContent) > 0 {
		messages = append(messages, Message{Role: RoleUser, Content: userContent})
	}
	messages = append(messages, extra...)

	if len(messages) == 0 {
		return nil, ErrEmptyRequest
	}
	return messages, nil
}
