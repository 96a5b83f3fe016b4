package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/sentinelops/gatekeep/internal/adapter/outbound/crypt"
	"github.com/sentinelops/gatekeep/internal/domain/detect"
	"github.com/sentinelops/gatekeep/internal/domain/disposition"
	"github.com/sentinelops/gatekeep/internal/domain/tenant"
)

// proxyUpstreamTimeout is the total-request timeout for proxy forwarding
// (spec §5: "120 s (proxy)"), longer than the detection HTTP client's 30s
// since it additionally waits on the upstream model's full completion.
const proxyUpstreamTimeout = 120 * time.Second

// RouteStore is the subset of the relational store ProxyService needs to
// pick an upstream, grounded on the teacher's ReverseProxy.Match
// (longest-prefix target selection) generalized to model-name routing.
type RouteStore interface {
	ListModelRoutes(ctx context.Context, tenantID string) ([]tenant.ModelRoute, error)
	ListUpstreamAPIConfigs(ctx context.Context, tenantID string) ([]tenant.UpstreamAPIConfig, error)
	GetUpstreamAPIConfig(ctx context.Context, id string) (tenant.UpstreamAPIConfig, error)
}

// ChatRequest is one incoming /v1/chat/completions call, already
// authenticated.
type ChatRequest struct {
	TenantID      string
	ApplicationID string
	IsSuperAdmin  bool
	Body          openai.ChatCompletionRequest
}

// ChatResult is ProxyService.Chat's outcome for the non-streaming path.
// When Blocked is true, Response is an OpenAI-shaped content_filter
// completion synthesized locally and upstream was never contacted.
type ChatResult struct {
	Response  openai.ChatCompletionResponse
	Blocked   bool
	RequestID string
}

// ProxyService implements the §4.3 streaming-proxy state machine:
// authenticate (done by the caller via AuthService) -> route -> detect
// input -> branch on disposition -> forward to upstream -> (optional)
// detect output -> restore -> respond. It is grounded on the teacher's
// httpgw.ReverseProxy (atomic target table, http.Client with a bounded
// timeout, 502 on upstream failure) generalized from path-prefix
// forwarding to OpenAI-compatible model forwarding.
type ProxyService struct {
	routes  RouteStore
	detect  *DetectionService
	anon    *AnonymizationService
	box     *crypt.Box
	client  *http.Client
	logger  *slog.Logger
}

// NewProxyService builds a ProxyService. box decrypts UpstreamAPIConfig.
// APIKeyEncrypted; logger may be nil to fall back to slog.Default().
func NewProxyService(routes RouteStore, detect *DetectionService, anon *AnonymizationService, box *crypt.Box, logger *slog.Logger) *ProxyService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProxyService{
		routes: routes, detect: detect, anon: anon, box: box,
		client: &http.Client{
			Timeout: proxyUpstreamTimeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{Timeout: 5 * time.Second}).DialContext,
			},
		},
		logger: logger,
	}
}

// Chat runs the full non-streaming RECEIVED -> COMPLETED pipeline.
func (p *ProxyService) Chat(ctx context.Context, req ChatRequest) (ChatResult, error) {
	upstream, err := p.resolveUpstream(ctx, req.TenantID, req.ApplicationID, req.Body.Model)
	if err != nil {
		return ChatResult{}, fmt.Errorf("service: resolve upstream: %w", err)
	}

	messages := toDetectMessages(req.Body.Messages)
	evalResult, err := p.detect.Evaluate(ctx, EvaluateRequest{
		TenantID: req.TenantID, ApplicationID: req.ApplicationID, IsSuperAdmin: req.IsSuperAdmin,
		Messages: messages, Side: disposition.SideInput, WantRestore: true,
	})
	if err != nil {
		return ChatResult{}, fmt.Errorf("service: evaluate input: %w", err)
	}

	result := evalResult.Disposition
	switch result.Action {
	case disposition.ActionReject:
		return ChatResult{Response: rejectionResponse(req.Body.Model, result.Answer), Blocked: true, RequestID: evalResult.RequestID}, nil
	case disposition.ActionReplaceWithAnonymized:
		req.Body.Messages = replaceLastContent(req.Body.Messages, result.AnonymizedMessage)
	case disposition.ActionSwitchPrivateModel:
		if result.SwitchUpstreamID != "" {
			swapped, err := p.loadUpstream(ctx, result.SwitchUpstreamID)
			if err == nil {
				upstream = swapped
			}
		}
	case disposition.ActionReplace, disposition.ActionPass:
	}

	req.Body.Stream = false
	resp, err := p.forward(ctx, upstream, req.Body)
	if err != nil {
		return ChatResult{}, fmt.Errorf("service: forward to upstream: %w", err)
	}

	if result.RestoreMapping != nil {
		for i, c := range resp.Choices {
			resp.Choices[i].Message.Content = p.anon.RestoreResponse(evalResult.RequestID, c.Message.Content, result.RestoreMapping)
		}
	}

	if upstream.BlockOnOutputRisk {
		if outBlocked, blockedResp := p.evaluateOutput(ctx, req, resp); outBlocked {
			return ChatResult{Response: blockedResp, Blocked: true, RequestID: evalResult.RequestID}, nil
		}
	}

	return ChatResult{Response: resp, RequestID: evalResult.RequestID}, nil
}

// evaluateOutput runs the output-side disposition over the upstream's
// response content (§4.3 step 6, non-streaming branch), gated by the
// chosen upstream's block_on_output_risk flag. A failure here degrades
// to pass-through rather than failing an otherwise-successful upstream
// call.
func (p *ProxyService) evaluateOutput(ctx context.Context, req ChatRequest, resp openai.ChatCompletionResponse) (bool, openai.ChatCompletionResponse) {
	if len(resp.Choices) == 0 {
		return false, resp
	}
	content := resp.Choices[0].Message.Content
	evalResult, err := p.detect.Evaluate(ctx, EvaluateRequest{
		TenantID: req.TenantID, ApplicationID: req.ApplicationID, IsSuperAdmin: req.IsSuperAdmin,
		Messages: []detect.Message{{Role: detect.RoleAssistant, Content: content}},
		Side:     disposition.SideOutput,
	})
	if err != nil {
		p.logger.Error("output detection failed, passing through", "error", err)
		return false, resp
	}
	switch evalResult.Disposition.Action {
	case disposition.ActionReject:
		return true, rejectionResponse(req.Body.Model, evalResult.Disposition.Answer)
	case disposition.ActionReplace, disposition.ActionReplaceWithAnonymized:
		resp.Choices[0].Message.Content = evalResult.Disposition.Answer
		if evalResult.Disposition.AnonymizedMessage != "" {
			resp.Choices[0].Message.Content = evalResult.Disposition.AnonymizedMessage
		}
	}
	return false, resp
}

func (p *ProxyService) resolveUpstream(ctx context.Context, tenantID, applicationID, model string) (tenant.UpstreamAPIConfig, error) {
	routes, err := p.routes.ListModelRoutes(ctx, tenantID)
	if err != nil {
		return tenant.UpstreamAPIConfig{}, fmt.Errorf("list model routes: %w", err)
	}
	if route, ok := tenant.ResolveRoute(routes, applicationID, model); ok {
		return p.loadUpstream(ctx, route.UpstreamAPIConfigID)
	}

	defaults, err := p.routes.ListUpstreamAPIConfigs(ctx, tenantID)
	if err != nil {
		return tenant.UpstreamAPIConfig{}, fmt.Errorf("list default upstreams: %w", err)
	}
	if len(defaults) == 0 {
		return tenant.UpstreamAPIConfig{}, errors.New("no upstream configured for tenant")
	}
	return defaults[0], nil
}

func (p *ProxyService) loadUpstream(ctx context.Context, id string) (tenant.UpstreamAPIConfig, error) {
	return p.routes.GetUpstreamAPIConfig(ctx, id)
}

// forward sends body to upstream's OpenAI-compatible endpoint,
// decrypting its stored API key first.
func (p *ProxyService) forward(ctx context.Context, upstream tenant.UpstreamAPIConfig, body openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	key, err := p.box.Decrypt(string(upstream.APIKeyEncrypted))
	if err != nil {
		return openai.ChatCompletionResponse{}, fmt.Errorf("decrypt upstream key: %w", err)
	}
	cfg := openai.DefaultConfig(key)
	if upstream.BaseURL != "" {
		cfg.BaseURL = upstream.BaseURL
	}
	cfg.HTTPClient = p.client
	client := openai.NewClientWithConfig(cfg)

	resp, err := client.CreateChatCompletion(ctx, body)
	if err != nil {
		return openai.ChatCompletionResponse{}, err
	}
	return resp, nil
}

// StreamChat runs the RECEIVED -> COMPLETED pipeline for stream=true,
// writing each chunk to onChunk as it arrives. Restoration is applied
// per-chunk (the restore mapping rarely spans a chunk boundary since
// placeholders are short tokens emitted by the detection pass, not by
// the model, so they appear intact within one chunk's delta). Returns
// once the stream ends or onChunk requests a stop by returning false.
func (p *ProxyService) StreamChat(ctx context.Context, req ChatRequest, onChunk func(openai.ChatCompletionStreamResponse) bool) (ChatResult, error) {
	upstream, err := p.resolveUpstream(ctx, req.TenantID, req.ApplicationID, req.Body.Model)
	if err != nil {
		return ChatResult{}, fmt.Errorf("service: resolve upstream: %w", err)
	}

	messages := toDetectMessages(req.Body.Messages)
	evalResult, err := p.detect.Evaluate(ctx, EvaluateRequest{
		TenantID: req.TenantID, ApplicationID: req.ApplicationID, IsSuperAdmin: req.IsSuperAdmin,
		Messages: messages, Side: disposition.SideInput, WantRestore: true,
	})
	if err != nil {
		return ChatResult{}, fmt.Errorf("service: evaluate input: %w", err)
	}

	result := evalResult.Disposition
	if result.Action == disposition.ActionReject {
		onChunk(rejectionChunk(req.Body.Model, result.Answer))
		return ChatResult{Blocked: true, RequestID: evalResult.RequestID}, nil
	}
	if result.Action == disposition.ActionReplaceWithAnonymized {
		req.Body.Messages = replaceLastContent(req.Body.Messages, result.AnonymizedMessage)
	}
	if result.Action == disposition.ActionSwitchPrivateModel && result.SwitchUpstreamID != "" {
		if swapped, err := p.loadUpstream(ctx, result.SwitchUpstreamID); err == nil {
			upstream = swapped
		}
	}

	key, err := p.box.Decrypt(string(upstream.APIKeyEncrypted))
	if err != nil {
		return ChatResult{}, fmt.Errorf("service: decrypt upstream key: %w", err)
	}
	cfg := openai.DefaultConfig(key)
	if upstream.BaseURL != "" {
		cfg.BaseURL = upstream.BaseURL
	}
	cfg.HTTPClient = p.client
	client := openai.NewClientWithConfig(cfg)

	req.Body.Stream = true
	stream, err := client.CreateChatCompletionStream(ctx, req.Body)
	if err != nil {
		return ChatResult{}, fmt.Errorf("service: open upstream stream: %w", err)
	}
	defer stream.Close()

	var accumulated strings.Builder
	chunksSinceCheck := 0
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return ChatResult{RequestID: evalResult.RequestID}, nil
		}
		if err != nil {
			return ChatResult{RequestID: evalResult.RequestID}, fmt.Errorf("service: stream recv: %w", err)
		}
		if result.RestoreMapping != nil {
			for i, c := range chunk.Choices {
				chunk.Choices[i].Delta.Content = p.anon.RestoreResponse(evalResult.RequestID, c.Delta.Content, result.RestoreMapping)
			}
		}

		if upstream.BlockOnOutputRisk && len(chunk.Choices) > 0 {
			accumulated.WriteString(chunk.Choices[0].Delta.Content)
			chunksSinceCheck++
			atBoundary := chunksSinceCheck >= streamOutputCheckInterval || chunk.Choices[0].FinishReason != ""
			if atBoundary {
				chunksSinceCheck = 0
				if blocked, answer := p.streamOutputBlocked(ctx, req, accumulated.String()); blocked {
					onChunk(rejectionChunk(req.Body.Model, answer))
					return ChatResult{Blocked: true, RequestID: evalResult.RequestID}, nil
				}
			}
		}

		if !onChunk(chunk) {
			return ChatResult{RequestID: evalResult.RequestID}, nil
		}
	}
}

// streamOutputCheckInterval bounds how often StreamChat re-runs output
// detection against the accumulated so-far content, trading detection
// latency for not invoking the scanner engine on every delta.
const streamOutputCheckInterval = 5

// streamOutputBlocked runs output detection against the accumulated
// streaming content so far, gated by the caller on block_on_output_risk.
// A failure here degrades to pass-through, matching evaluateOutput.
func (p *ProxyService) streamOutputBlocked(ctx context.Context, req ChatRequest, accumulated string) (bool, string) {
	evalResult, err := p.detect.Evaluate(ctx, EvaluateRequest{
		TenantID: req.TenantID, ApplicationID: req.ApplicationID, IsSuperAdmin: req.IsSuperAdmin,
		Messages: []detect.Message{{Role: detect.RoleAssistant, Content: accumulated}},
		Side:     disposition.SideOutput,
	})
	if err != nil {
		p.logger.Error("streaming output detection failed, passing through", "error", err)
		return false, ""
	}
	if evalResult.Disposition.Action == disposition.ActionReject {
		return true, evalResult.Disposition.Answer
	}
	return false, ""
}

func toDetectMessages(msgs []openai.ChatCompletionMessage) []detect.Message {
	out := make([]detect.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, detect.Message{Role: detect.Role(m.Role), Content: m.Content})
	}
	return out
}

func replaceLastContent(msgs []openai.ChatCompletionMessage, content string) []openai.ChatCompletionMessage {
	if len(msgs) == 0 {
		return msgs
	}
	msgs[len(msgs)-1].Content = content
	return msgs
}

// rejectionResponse synthesizes an OpenAI-shaped completion carrying
// the disposition's suggested answer with finish_reason=content_filter,
// per §4.3 step 5, without ever contacting upstream.
func rejectionResponse(model, answer string) openai.ChatCompletionResponse {
	return openai.ChatCompletionResponse{
		Model: model,
		Choices: []openai.ChatCompletionChoice{
			{
				Index:        0,
				Message:      openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: answer},
				FinishReason: openai.FinishReasonContentFilter,
			},
		},
	}
}

func rejectionChunk(model, answer string) openai.ChatCompletionStreamResponse {
	return openai.ChatCompletionStreamResponse{
		Model: model,
		Choices: []openai.ChatCompletionStreamChoice{
			{
				Index:        0,
				Delta:        openai.ChatCompletionStreamChoiceDelta{Role: openai.ChatMessageRoleAssistant, Content: answer},
				FinishReason: openai.FinishReasonContentFilter,
			},
		},
	}
}
