package backend

import (
	"context"
	"fmt"
	"log/slog"

	"google.golang.org/genai"

	"github.com/Vhari-Maven/ai-image-generator/pkg/domain"
)

// genai (Gemini API) の Imagen は1回の呼び出しで最大4枚まで。
const genaiMaxImagesPerCall = 4

// GenAIBackend は Gemini API キー認証で Imagen を呼ぶバックエンドです。
type GenAIBackend struct {
	client *genai.Client
	model  string
}

// NewGenAIBackend は APIキーからクライアントを初期化するのだ。
func NewGenAIBackend(ctx context.Context, apiKey, model string) (*GenAIBackend, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("Google AI APIキーが設定されていません。環境変数 GOOGLE_AI_API_KEY を設定するのだ")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("GenAIクライアントの初期化に失敗したのだ: %w", err)
	}

	return &GenAIBackend{client: client, model: model}, nil
}

// Name は表示名を返します。
func (b *GenAIBackend) Name() string { return "Google GenAI" }

// MaxWorkers は min(promptCount, 8) を返します。
func (b *GenAIBackend) MaxWorkers(promptCount int) int {
	return capWorkers(promptCount, genaiWorkerCap)
}

// GenerateOne は解決済み設定に従って1回の Imagen 呼び出しを行うのだ。
func (b *GenAIBackend) GenerateOne(ctx context.Context, prompt domain.PromptRecord, cfg RequestConfig, count int) ([]domain.GeneratedImage, error) {
	count = clampImageCount(b.model, count, genaiMaxImagesPerCall)

	genCfg := &genai.GenerateImagesConfig{
		NumberOfImages: int32(count),
	}
	if ar := cfg.GetString("aspect_ratio"); ar != "" {
		genCfg.AspectRatio = ar
	}
	if level := cfg.GetString("safety_filter_level"); level != "" {
		genCfg.SafetyFilterLevel = genai.SafetyFilterLevel(level)
	}
	if person := cfg.GetString("person_generation"); person != "" {
		genCfg.PersonGeneration = genai.PersonGeneration(person)
	}

	resp, err := b.client.Models.GenerateImages(ctx, b.model, prompt.Prompt, genCfg)
	if err != nil {
		return nil, &GenerationError{Service: ServiceGenAI, Err: err}
	}
	if len(resp.GeneratedImages) == 0 {
		return nil, &GenerationError{Service: ServiceGenAI, Err: fmt.Errorf("APIが画像を1枚も返しませんでした")}
	}

	images := make([]domain.GeneratedImage, 0, len(resp.GeneratedImages))
	for _, gi := range resp.GeneratedImages {
		if gi.Image == nil || len(gi.Image.ImageBytes) == 0 {
			continue
		}
		bitmap, err := domain.DecodeImage(gi.Image.ImageBytes)
		if err != nil {
			return nil, &GenerationError{Service: ServiceGenAI, Err: err}
		}
		images = append(images, domain.GeneratedImage{
			Bitmap:    bitmap,
			Generator: b.Name(),
			Model:     b.model,
		})
	}
	if len(images) == 0 {
		return nil, &GenerationError{Service: ServiceGenAI, Err: fmt.Errorf("レスポンスに有効な画像データがありませんでした")}
	}
	return images, nil
}

// TestConnection はクライアントが初期化できていれば成功とみなすのだ。
// APIキーの妥当性は最初の生成呼び出しで検証されるのだ。
func (b *GenAIBackend) TestConnection(ctx context.Context) bool {
	if b.client == nil {
		return false
	}
	slog.Info("Google GenAI への接続確認に成功したのだ", "model", b.model)
	return true
}
