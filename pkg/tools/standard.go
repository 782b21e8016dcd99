package tools

import (
	"log/slog"
	"net/http"

	"github.com/zen-systems/contentflow/pkg/workspace"
)

// Options configures the standard tool set.
type Options struct {
	TavilyAPIKey     string
	TavilyBaseURL    string
	ElevenLabsAPIKey string
	ElevenLabsURL    string
	HTTPClient       *http.Client
	Workspace        *workspace.Workspace
	Logger           *slog.Logger
}

// NewStandardRegistry registers every tool the content plans use. Web and
// speech tools are registered even without API keys and fail when invoked.
func NewStandardRegistry(opts Options) *Registry {
	tavilyOpts := []TavilyOption{WithTavilyAPIKey(opts.TavilyAPIKey), WithHTTPClient(opts.HTTPClient)}
	if opts.TavilyBaseURL != "" {
		tavilyOpts = append(tavilyOpts, WithBaseURL(opts.TavilyBaseURL))
	}
	tavily := NewTavily(tavilyOpts...)

	ttsOpts := []TTSOption{WithTTSAPIKey(opts.ElevenLabsAPIKey), WithTTSHTTPClient(opts.HTTPClient)}
	if opts.ElevenLabsURL != "" {
		ttsOpts = append(ttsOpts, WithTTSBaseURL(opts.ElevenLabsURL))
	}

	return NewRegistry(opts.Logger,
		NewSearchTool(tavily),
		NewExtractTool(tavily),
		NewCrawlTool(tavily),
		NewMakeDirectoryTool(opts.Workspace),
		NewMakeFileInFolderTool(opts.Workspace),
		NewFileWriterTool(opts.Workspace),
		NewTTSTool(opts.Workspace, ttsOpts...),
	)
}
