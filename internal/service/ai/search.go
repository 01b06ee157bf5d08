package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/tool/duckduckgo/v2"
	"github.com/cloudwego/eino-ext/components/tool/googlesearch"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"

	"chatstream/internal/config"
	"chatstream/internal/ratelimit"
)

const (
	WebSearchHTTPTimeout = 10 * time.Second
	webSearchMaxBody     = 512 * 1024
)

// WebSearchRate bounds tool invocations across all requests of this process.
var WebSearchRate = ratelimit.Rate{Limit: 10, Window: time.Minute}

type webSearchTool struct {
	google     tool.InvokableTool
	duck       tool.InvokableTool
	httpClient *http.Client
	limiter    ratelimit.Limiter
	logger     zerolog.Logger
}

type webSearchParams struct {
	Query string `json:"query"`
}

// NewWebSearchTool builds the web_search tool. Google is used when configured,
// DuckDuckGo otherwise or on failure. Returns nil when no backend is available.
func NewWebSearchTool(ctx context.Context, cfg config.SearchConfig, logger zerolog.Logger) tool.InvokableTool {
	ws := &webSearchTool{
		google:     newGoogleSearch(ctx, cfg, logger),
		duck:       newDuckDuckGoSearch(ctx, logger),
		httpClient: &http.Client{Timeout: WebSearchHTTPTimeout},
		limiter:    ratelimit.NewWindow(WebSearchRate),
		logger:     logger,
	}
	if ws.google == nil && ws.duck == nil {
		logger.Warn().Msg("web search tool disabled: no search providers available")
		return nil
	}

	info := &schema.ToolInfo{
		Name: "web_search",
		Desc: "Search the web for current information. Accepts a natural language query or a URL to fetch.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"query": {
				Desc:     "Natural language query or URL to search",
				Type:     schema.String,
				Required: true,
			},
		}),
	}
	return utils.NewTool(info, ws.run)
}

func (w *webSearchTool) run(ctx context.Context, params *webSearchParams) (string, error) {
	if params == nil {
		return "", errors.New("missing search parameters")
	}
	query := strings.TrimSpace(params.Query)
	if query == "" {
		return "", errors.New("query must not be empty")
	}
	if ok, _, _ := w.limiter.Allow(ctx, "web_search"); !ok {
		return "", errors.New("web search rate limit exceeded, please retry in a minute")
	}

	if looksLikeURL(query) {
		content, err := w.fetchURL(ctx, query)
		if err == nil {
			return content, nil
		}
		w.logger.Warn().Err(err).Str("url", query).Msg("web url fetch failed")
	}

	payload, err := json.Marshal(webSearchParams{Query: query})
	if err != nil {
		return "", fmt.Errorf("marshal search params: %w", err)
	}
	if w.google != nil {
		result, err := w.google.InvokableRun(ctx, string(payload))
		if err == nil {
			return result, nil
		}
		w.logger.Warn().Err(err).Msg("google search failed")
	}
	if w.duck != nil {
		result, err := w.duck.InvokableRun(ctx, string(payload))
		if err == nil {
			return result, nil
		}
		w.logger.Warn().Err(err).Msg("duckduckgo search failed")
	}
	return "", errors.New("no search provider succeeded")
}

func (w *webSearchTool) fetchURL(ctx context.Context, target string) (string, error) {
	parsed, err := url.Parse(target)
	if err != nil {
		return "", fmt.Errorf("invalid url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", errors.New("unsupported url scheme")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, parsed.String(), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", "chatstream-websearch/1.0")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch url: %s", resp.Status)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, webSearchMaxBody))
	if err != nil {
		return "", err
	}
	return string(body), nil
}

func looksLikeURL(input string) bool {
	lower := strings.ToLower(input)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

func newDuckDuckGoSearch(ctx context.Context, logger zerolog.Logger) tool.InvokableTool {
	duckTool, err := duckduckgo.NewTextSearchTool(ctx, &duckduckgo.Config{
		ToolName:   "web_search_ddg",
		ToolDesc:   "DuckDuckGo Search Tool (no token required)",
		MaxResults: 3,
		Region:     duckduckgo.RegionWT,
		Timeout:    WebSearchHTTPTimeout,
	})
	if err != nil {
		logger.Warn().Err(err).Msg("duckduckgo search disabled")
		return nil
	}
	return duckTool
}

func newGoogleSearch(ctx context.Context, cfg config.SearchConfig, logger zerolog.Logger) tool.InvokableTool {
	if cfg.GoogleAPIKey == "" || cfg.GoogleSearchEngineID == "" {
		logger.Info().Msg("google search disabled: missing GOOGLE_API_KEY or GOOGLE_SEARCH_ENGINE_ID")
		return nil
	}
	googleTool, err := googlesearch.NewTool(ctx, &googlesearch.Config{
		ToolName:       "web_search_google",
		ToolDesc:       "Google Search Tool",
		APIKey:         cfg.GoogleAPIKey,
		SearchEngineID: cfg.GoogleSearchEngineID,
		Lang:           "en",
		Num:            5,
	})
	if err != nil {
		logger.Warn().Err(err).Msg("google search disabled")
		return nil
	}
	return googleTool
}
