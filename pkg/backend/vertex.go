package backend

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"google.golang.org/genai"

	"github.com/Vhari-Maven/ai-image-generator/pkg/domain"
)

// VertexModelInfo はImagenモデルごとの制約（最大枚数・RPM・対応機能）です。
type VertexModelInfo struct {
	MaxImages         int
	RPMLimit          int
	SupportsWatermark bool
	SupportsSeed      bool
}

// VertexModelLookup はモデル名から制約情報を引く純関数です。
// 設定リゾルバの vertex.models テーブルが注入されます。
type VertexModelLookup func(model string) VertexModelInfo

// qualityModels は品質レベルから Imagen 4 モデルへの対応なのだ。
var qualityModels = map[string]string{
	"fast":     "imagen-4.0-fast-generate-preview-06-06",
	"standard": "imagen-4.0-generate-preview-06-06",
	"ultra":    "imagen-4.0-ultra-generate-preview-06-06",
}

// VertexBackend は Vertex AI (アプリケーションデフォルト認証) で Imagen を呼ぶバックエンドです。
type VertexBackend struct {
	client    *genai.Client
	projectID string
	location  string
	model     string // quality 指定を織り込んだ既定モデル
	lookup    VertexModelLookup
}

// NewVertexBackend はプロジェクトIDとロケーションからクライアントを初期化するのだ。
// quality が指定されていれば対応する Imagen 4 モデルを既定にするのだ。
func NewVertexBackend(ctx context.Context, projectID, location, model, quality string, lookup VertexModelLookup) (*VertexBackend, error) {
	if projectID == "" {
		return nil, fmt.Errorf("Google Cloud プロジェクトIDが設定されていません。環境変数 GOOGLE_CLOUD_PROJECT を設定するのだ")
	}
	if location == "" {
		location = "us-central1"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		Project:  projectID,
		Location: location,
		Backend:  genai.BackendVertexAI,
	})
	if err != nil {
		return nil, fmt.Errorf("Vertex AIクライアントの初期化に失敗したのだ: %w", err)
	}

	if m, ok := qualityModels[quality]; ok {
		model = m
	}

	return &VertexBackend{
		client:    client,
		projectID: projectID,
		location:  location,
		model:     model,
		lookup:    lookup,
	}, nil
}

// Name は表示名を返します。
func (b *VertexBackend) Name() string {
	return "Google Vertex AI - " + b.model
}

// MaxWorkers は既定モデルのレート制限に応じた並列数を返します。
// Imagen 4 系は 20 RPM 制限なので、より小さい上限を使います。
func (b *VertexBackend) MaxWorkers(promptCount int) int {
	if strings.Contains(b.model, "imagen-4") {
		return capWorkers(promptCount, vertexImagen4WorkerCap)
	}
	return capWorkers(promptCount, vertexWorkerCap)
}

// effectiveModel はリクエスト設定の quality を織り込んだモデル名を決めます。
func (b *VertexBackend) effectiveModel(cfg RequestConfig) string {
	if m, ok := qualityModels[cfg.GetString("quality")]; ok {
		return m
	}
	return b.model
}

// GenerateOne は解決済み設定に従って1回の Imagen 呼び出しを行うのだ。
// 要求枚数がモデルの上限を超える場合は、失敗させずに警告して切り詰めるのだ。
func (b *VertexBackend) GenerateOne(ctx context.Context, prompt domain.PromptRecord, cfg RequestConfig, count int) ([]domain.GeneratedImage, error) {
	model := b.effectiveModel(cfg)
	info := b.lookup(model)

	count = clampImageCount(model, count, info.MaxImages)

	genCfg := &genai.GenerateImagesConfig{
		NumberOfImages: int32(count),
	}
	if ar := cfg.GetString("aspect_ratio"); ar != "" {
		genCfg.AspectRatio = ar
	}
	if level := normalizeSafetyLevel(cfg.GetString("safety_filter_level")); level != "" {
		genCfg.SafetyFilterLevel = genai.SafetyFilterLevel(level)
	}
	if person := cfg.GetString("person_generation"); person != "" {
		genCfg.PersonGeneration = genai.PersonGeneration(strings.ToUpper(person))
	}
	if info.SupportsWatermark {
		watermark := cfg.GetBool("add_watermark")
		genCfg.AddWatermark = watermark
	}

	resp, err := b.client.Models.GenerateImages(ctx, model, prompt.Prompt, genCfg)
	if err != nil {
		return nil, &GenerationError{Service: ServiceVertex, Err: err}
	}
	if len(resp.GeneratedImages) == 0 {
		return nil, &GenerationError{Service: ServiceVertex, Err: fmt.Errorf("APIが画像を1枚も返しませんでした")}
	}

	quality := cfg.GetString("quality")
	images := make([]domain.GeneratedImage, 0, len(resp.GeneratedImages))
	for _, gi := range resp.GeneratedImages {
		if gi.Image == nil || len(gi.Image.ImageBytes) == 0 {
			continue
		}
		bitmap, err := domain.DecodeImage(gi.Image.ImageBytes)
		if err != nil {
			return nil, &GenerationError{Service: ServiceVertex, Err: err}
		}
		images = append(images, domain.GeneratedImage{
			Bitmap:    bitmap,
			Generator: "Google Vertex AI - " + model,
			Model:     model,
			Extra:     map[string]string{"quality": quality},
		})
	}
	if len(images) == 0 {
		return nil, &GenerationError{Service: ServiceVertex, Err: fmt.Errorf("レスポンスに有効な画像データがありませんでした")}
	}
	return images, nil
}

// TestConnection はクライアントが初期化できていれば成功とみなし、接続先を報告するのだ。
func (b *VertexBackend) TestConnection(ctx context.Context) bool {
	if b.client == nil {
		return false
	}
	slog.Info("Google Vertex AI への接続確認に成功したのだ",
		"project", b.projectID, "location", b.location, "model", b.model)
	return true
}

// normalizeSafetyLevel は旧SDK由来の小文字表記をAPIの列挙値へ揃えます。
func normalizeSafetyLevel(level string) string {
	switch strings.ToLower(level) {
	case "":
		return ""
	case "block_some":
		return "BLOCK_MEDIUM_AND_ABOVE"
	case "block_few":
		return "BLOCK_ONLY_HIGH"
	case "block_most":
		return "BLOCK_LOW_AND_ABOVE"
	default:
		return strings.ToUpper(level)
	}
}
