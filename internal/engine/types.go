package engine

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatRequest is the OpenAI-compatible chat completion body. TopP and TopK
// are only sent to local servers.
type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens"`
	TopP        float64   `json:"top_p,omitempty"`
	TopK        int       `json:"top_k,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// ModelList is the response from /v1/models.
type ModelList struct {
	Data []struct {
		ID string `json:"id"`
	} `json:"data"`
}

func conversation(prompt string) []Message {
	return []Message{
		{Role: "system", Content: SystemPersona},
		{Role: "user", Content: prompt},
	}
}
