package transcribe

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/alnah/go-chunkscribe/internal/apierr"
	"github.com/alnah/go-chunkscribe/internal/lang"
	"github.com/alnah/go-chunkscribe/internal/provider"
)

// Model identifiers for the OpenAI-compatible endpoints.
const (
	ModelWhisper      = openai.Whisper1
	ModelGroqWhisper  = "whisper-large-v3-turbo"
	groqBaseURL       = "https://api.groq.com/openai/v1"
	defaultUploadName = "audio.mp3"
)

// audioTranscriber is the subset of *openai.Client used here.
// Tests replace it with a mock.
type audioTranscriber interface {
	CreateTranscription(ctx context.Context, req openai.AudioRequest) (openai.AudioResponse, error)
}

// Compile-time interface compliance checks.
var (
	_ Provider         = (*OpenAIProvider)(nil)
	_ audioTranscriber = (*openai.Client)(nil)
)

// OpenAIProvider transcribes through the OpenAI audio API. Groq exposes the
// same API under a different base URL and model.
type OpenAIProvider struct {
	name   string
	model  string
	client audioTranscriber
}

// NewOpenAI returns a provider for api.openai.com using whisper-1.
func NewOpenAI(apiKey string) *OpenAIProvider {
	return &OpenAIProvider{
		name:   provider.NameOpenAI,
		model:  ModelWhisper,
		client: openai.NewClient(apiKey),
	}
}

// NewGroq returns a provider for Groq's OpenAI-compatible endpoint.
func NewGroq(apiKey string) *OpenAIProvider {
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = groqBaseURL
	return &OpenAIProvider{
		name:   provider.NameGroq,
		model:  ModelGroqWhisper,
		client: openai.NewClientWithConfig(cfg),
	}
}

// Name returns the provider name.
func (p *OpenAIProvider) Name() string { return p.name }

// Transcribe uploads req.Payload and returns its text. With segment
// granularity the response is verbose_json and segments are kept.
func (p *OpenAIProvider) Transcribe(ctx context.Context, req Request) (Response, error) {
	name := req.FileName
	if name == "" {
		name = defaultUploadName
	}
	areq := openai.AudioRequest{
		Model:    p.model,
		FilePath: name,
		Reader:   req.Payload,
		Format:   openai.AudioResponseFormatJSON,
		Language: lang.BaseCode(req.Language),
	}
	if req.Granularity == GranularitySegment {
		areq.Format = openai.AudioResponseFormatVerboseJSON
		areq.TimestampGranularities = []openai.TranscriptionTimestampGranularity{
			openai.TranscriptionTimestampGranularitySegment,
		}
	}

	resp, err := p.client.CreateTranscription(ctx, areq)
	if err != nil {
		return Response{}, classifyError(err)
	}

	out := Response{Text: strings.TrimSpace(resp.Text)}
	for _, seg := range resp.Segments {
		out.Segments = append(out.Segments, Segment{Start: seg.Start, End: seg.End, Text: seg.Text})
		out.Tokens += len(seg.Tokens)
	}
	return out, nil
}

// classifyError maps go-openai errors to apierr sentinels.
func classifyError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apierr.FromStatus(apiErr.HTTPStatusCode, apiErr.Message)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		msg := ""
		if reqErr.Err != nil {
			msg = reqErr.Err.Error()
		}
		return apierr.FromStatus(reqErr.HTTPStatusCode, msg)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("request timed out: %w", apierr.ErrTimeout)
	}
	return err
}
