package backend

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/Vhari-Maven/ai-image-generator/pkg/domain"
)

// gpt-image-1 は n を最大10まで受け付ける。
const openaiMaxImagesPerCall = 10

const (
	openaiDefaultBaseURL = "https://api.openai.com/v1"
	openaiImagesPath     = "/images/generations"
	openaiHTTPTimeout    = 120 * time.Second
)

// OpenAIBackend は OpenAI の画像生成エンドポイントを直接叩くバックエンドです。
// 公式Go SDKを使わず、必要最小限のリクエスト/レスポンス型だけを持ちます。
type OpenAIBackend struct {
	hc     *http.Client
	url    string
	apiKey string
	model  string
	do     func(*http.Request) (*http.Response, error)
}

// NewOpenAIBackend は APIキーからクライアントを構築するのだ。
func NewOpenAIBackend(apiKey, model string) (*OpenAIBackend, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("OpenAI APIキーが設定されていません。環境変数 OPENAI_API_KEY を設定するのだ")
	}
	hc := &http.Client{Timeout: openaiHTTPTimeout}
	return &OpenAIBackend{
		hc:     hc,
		url:    strings.TrimRight(openaiDefaultBaseURL, "/") + openaiImagesPath,
		apiKey: apiKey,
		model:  model,
		do:     hc.Do,
	}, nil
}

// Name は表示名を返します。
func (b *OpenAIBackend) Name() string { return "OpenAI GPT-Image" }

// MaxWorkers は min(promptCount, 5) を返します（Tier 1 の毎分5枚制限に合わせる）。
func (b *OpenAIBackend) MaxWorkers(promptCount int) int {
	return capWorkers(promptCount, openaiWorkerCap)
}

// リクエスト/レスポンスの最小構造体なのだ。
type oaImageReq struct {
	Model   string `json:"model"`
	Prompt  string `json:"prompt"`
	N       int    `json:"n"`
	Size    string `json:"size,omitempty"`
	Quality string `json:"quality,omitempty"`
}

type oaImageResp struct {
	Data []struct {
		B64JSON string `json:"b64_json"`
		URL     string `json:"url"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// GenerateOne は解決済み設定に従って1回の生成リクエストを送るのだ。
// gpt-image-1 は既定で b64_json を返すが、URL形式にもフォールバックするのだ。
func (b *OpenAIBackend) GenerateOne(ctx context.Context, prompt domain.PromptRecord, cfg RequestConfig, count int) ([]domain.GeneratedImage, error) {
	count = clampImageCount(b.model, count, openaiMaxImagesPerCall)

	size := cfg.GetString("size")
	quality := cfg.GetString("quality")
	// style は gpt-image-1 が未対応のため送信せず、メタデータにだけ残す。
	style := cfg.GetString("style")

	req := oaImageReq{
		Model:  b.model,
		Prompt: prompt.Prompt,
		N:      count,
		Size:   size,
	}
	switch quality {
	case "low", "medium", "high":
		req.Quality = quality
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, &GenerationError{Service: ServiceOpenAI, Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.url, bytes.NewReader(body))
	if err != nil {
		return nil, &GenerationError{Service: ServiceOpenAI, Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+b.apiKey)

	httpResp, err := b.do(httpReq)
	if err != nil {
		return nil, &GenerationError{Service: ServiceOpenAI, Err: err}
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, &GenerationError{Service: ServiceOpenAI, Err: err}
	}

	var resp oaImageResp
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, &GenerationError{Service: ServiceOpenAI, Err: fmt.Errorf("レスポンスの解析に失敗: %w", err)}
	}
	if httpResp.StatusCode != http.StatusOK {
		msg := httpResp.Status
		if resp.Error != nil {
			msg = resp.Error.Message
		}
		return nil, &GenerationError{Service: ServiceOpenAI, Err: fmt.Errorf("upstream %d: %s", httpResp.StatusCode, msg)}
	}
	if len(resp.Data) == 0 {
		return nil, &GenerationError{Service: ServiceOpenAI, Err: fmt.Errorf("APIが画像を1枚も返しませんでした")}
	}

	extra := map[string]string{"size": size, "quality": quality, "style": style}
	images := make([]domain.GeneratedImage, 0, len(resp.Data))
	for _, d := range resp.Data {
		raw, err := b.rawImage(ctx, d.B64JSON, d.URL)
		if err != nil {
			return nil, &GenerationError{Service: ServiceOpenAI, Err: err}
		}
		bitmap, err := domain.DecodeImage(raw)
		if err != nil {
			return nil, &GenerationError{Service: ServiceOpenAI, Err: err}
		}
		images = append(images, domain.GeneratedImage{
			Bitmap:    bitmap,
			Generator: b.Name(),
			Model:     b.model,
			Extra:     extra,
		})
	}
	return images, nil
}

// rawImage は b64_json を優先し、URLしか無ければダウンロードするのだ。
func (b *OpenAIBackend) rawImage(ctx context.Context, b64, url string) ([]byte, error) {
	if b64 != "" {
		return base64.StdEncoding.DecodeString(b64)
	}
	if url == "" {
		return nil, fmt.Errorf("レスポンスに画像データ（URLもbase64も）がありません")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := b.do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("画像のダウンロードに失敗: %s", resp.Status)
	}
	return io.ReadAll(resp.Body)
}

// TestConnection は最小パラメータで1枚だけ生成してみて到達性を確かめるのだ。
func (b *OpenAIBackend) TestConnection(ctx context.Context) bool {
	testPrompt := domain.PromptRecord{Prompt: "A simple test image of a red circle"}
	cfg := staticConfig{"size": "1024x1024"}
	if _, err := b.GenerateOne(ctx, testPrompt, cfg, 1); err != nil {
		slog.Error("OpenAIへの接続確認に失敗したのだ", "error", err)
		return false
	}
	slog.Info("OpenAIへの接続確認に成功したのだ", "model", b.model)
	return true
}

// staticConfig は接続確認用の固定パラメータです。
type staticConfig map[string]string

func (c staticConfig) GetString(key string) string { return c[key] }
func (c staticConfig) GetBool(key string) bool     { return false }
