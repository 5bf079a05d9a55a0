package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/alnah/go-chunkscribe/internal/apierr"
	"github.com/alnah/go-chunkscribe/internal/format"
	"github.com/alnah/go-chunkscribe/internal/lang"
	"github.com/alnah/go-chunkscribe/internal/provider"
	"github.com/alnah/go-chunkscribe/internal/strategy"
)

const (
	// ModelGemini is the default generateContent model.
	ModelGemini = "gemini-2.5-flash"

	geminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"
)

const geminiPrompt = `Transcribe this audio verbatim.
Start a new line at every change of speaker or topic and prefix it with the elapsed time as [MM:SS] (use [HH:MM:SS] past one hour).
Output only the transcript, without commentary.`

const geminiPlainPrompt = `Transcribe this audio verbatim. Output only the transcript, without commentary.`

// httpDoer abstracts the HTTP client for testing.
type httpDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

var _ Provider = (*GeminiProvider)(nil)

// GeminiProvider transcribes through the Gemini generateContent REST API
// with the audio sent inline.
type GeminiProvider struct {
	apiKey  string
	model   string
	baseURL string
	http    httpDoer
}

// GeminiOption configures a GeminiProvider.
type GeminiOption func(*GeminiProvider)

// WithGeminiModel overrides the model name.
func WithGeminiModel(model string) GeminiOption {
	return func(g *GeminiProvider) {
		if model != "" {
			g.model = model
		}
	}
}

// WithGeminiBaseURL overrides the API root (for testing).
func WithGeminiBaseURL(u string) GeminiOption {
	return func(g *GeminiProvider) { g.baseURL = strings.TrimRight(u, "/") }
}

// WithGeminiHTTPClient sets a custom HTTP client.
func WithGeminiHTTPClient(c httpDoer) GeminiOption {
	return func(g *GeminiProvider) { g.http = c }
}

// NewGemini creates a GeminiProvider. Per-request deadlines come from the
// caller's context, so the default client has no timeout of its own.
func NewGemini(apiKey string, opts ...GeminiOption) *GeminiProvider {
	g := &GeminiProvider{
		apiKey:  apiKey,
		model:   ModelGemini,
		baseURL: geminiBaseURL,
		http:    &http.Client{},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Name returns the provider name.
func (g *GeminiProvider) Name() string { return provider.NameGemini }

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inline_data,omitempty"`
}

// geminiInlineData carries the payload; []byte marshals as base64.
type geminiInlineData struct {
	MIMEType string `json:"mime_type"`
	Data     []byte `json:"data"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata struct {
		TotalTokenCount int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
}

type geminiErrorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// Transcribe sends the payload inline and returns the model's text.
func (g *GeminiProvider) Transcribe(ctx context.Context, req Request) (Response, error) {
	if req.Payload == nil {
		return Response{}, errors.New("gemini: nil payload")
	}
	audio, err := io.ReadAll(req.Payload)
	if err != nil {
		return Response{}, fmt.Errorf("read payload: %w", err)
	}

	mimeType := req.MIMEType
	if mimeType == "" {
		mimeType = "audio/mpeg"
	}
	body, err := json.Marshal(geminiRequest{Contents: []geminiContent{{Parts: []geminiPart{
		{Text: g.prompt(req)},
		{InlineData: &geminiInlineData{MIMEType: mimeType, Data: audio}},
	}}}})
	if err != nil {
		return Response{}, fmt.Errorf("encode request: %w", err)
	}
	if int64(len(body)) > strategy.GeminiRequestBytes {
		return Response{}, fmt.Errorf("gemini: request of %s exceeds %s: %w",
			format.Size(int64(len(body))), format.Size(strategy.GeminiRequestBytes), apierr.ErrPayloadTooLarge)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", g.baseURL, g.model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Response{}, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", g.apiKey)

	resp, err := g.http.Do(httpReq)
	if err != nil {
		return Response{}, classifyError(err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return Response{}, parseGeminiHTTPError(resp.StatusCode, respBody)
	}

	var gr geminiResponse
	if err := json.Unmarshal(respBody, &gr); err != nil {
		return Response{}, fmt.Errorf("parse response: %w", err)
	}
	var b strings.Builder
	if len(gr.Candidates) > 0 {
		for _, p := range gr.Candidates[0].Content.Parts {
			b.WriteString(p.Text)
		}
	}
	return Response{
		Text:   strings.TrimSpace(b.String()),
		Tokens: gr.UsageMetadata.TotalTokenCount,
	}, nil
}

func (g *GeminiProvider) prompt(req Request) string {
	p := geminiPlainPrompt
	if req.Granularity == GranularitySegment {
		p = geminiPrompt
	}
	if req.Language != "" {
		p += fmt.Sprintf("\nThe audio is in %s.", lang.DisplayName(req.Language))
	}
	return p
}

// parseGeminiHTTPError extracts the API message and classifies the status.
func parseGeminiHTTPError(statusCode int, body []byte) error {
	var errResp geminiErrorResponse
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error.Message == "" {
		return apierr.FromStatus(statusCode, strings.TrimSpace(string(body)))
	}
	return apierr.FromStatus(statusCode, errResp.Error.Message)
}
