package builder

import (
	"context"
	"fmt"

	"github.com/Vhari-Maven/ai-image-generator/internal/config"
	"github.com/Vhari-Maven/ai-image-generator/pkg/backend"
)

// BuildBackend は選択されたサービスに対応するバックエンドを構築するのだ。
// 選択は閉じた enum スイッチで行い、文字列によるダック・タイピングはしないのだ。
func BuildBackend(ctx context.Context, appCtx AppContext) (backend.ImageBackend, error) {
	opts := appCtx.Options
	resolver := appCtx.Resolver

	svc, err := backend.ParseService(opts.Service)
	if err != nil {
		return nil, err
	}

	switch svc {
	case backend.ServiceGenAI:
		apiKey := opts.APIKey
		if apiKey == "" {
			apiKey = resolver.APIKey("genai")
		}
		model := opts.Model
		if model == "" {
			model = resolver.GetString("genai.model", config.DefaultGenAIModel)
		}
		return backend.NewGenAIBackend(ctx, apiKey, model)

	case backend.ServiceOpenAI:
		apiKey := opts.APIKey
		if apiKey == "" {
			apiKey = resolver.APIKey("openai")
		}
		model := opts.Model
		if model == "" {
			model = resolver.GetString("openai.model", config.DefaultOpenAIModel)
		}
		return backend.NewOpenAIBackend(apiKey, model)

	case backend.ServiceVertex:
		projectID := opts.ProjectID
		if projectID == "" {
			projectID = resolver.APIKey("vertex")
		}
		location := opts.Location
		if location == "" {
			location = resolver.GetString("vertex.location", config.DefaultVertexLocation)
		}
		model := opts.Model
		if model == "" {
			model = resolver.GetString("vertex.model", config.DefaultVertexModel)
		}
		lookup := func(name string) backend.VertexModelInfo {
			info := resolver.VertexModel(name)
			return backend.VertexModelInfo{
				MaxImages:         info.MaxImages,
				RPMLimit:          info.RPMLimit,
				SupportsWatermark: info.SupportsWatermark,
				SupportsSeed:      info.SupportsSeed,
			}
		}
		return backend.NewVertexBackend(ctx, projectID, location, model, opts.Quality, lookup)
	}

	return nil, fmt.Errorf("サービス '%s' は未対応なのだ", opts.Service)
}
