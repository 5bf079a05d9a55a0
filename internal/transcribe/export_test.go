package transcribe

// Exports for testing. These allow black-box tests to inject dependencies
// without modifying the public API.

// NewTestOpenAI creates an OpenAIProvider backed by a mock audioTranscriber.
func NewTestOpenAI(client audioTranscriber, name, model string) *OpenAIProvider {
	return &OpenAIProvider{name: name, model: model, client: client}
}

// ClassifyError exposes classifyError.
var ClassifyError = classifyError
