package backend

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Vhari-Maven/ai-image-generator/pkg/domain"
)

// Service は利用可能な画像生成バックエンドの閉じた集合です。
// 実行時のダック・タイピングではなく、CLI境界での enum スイッチで選択します。
type Service string

const (
	ServiceGenAI  Service = "genai"
	ServiceOpenAI Service = "openai"
	ServiceVertex Service = "vertex"
)

// ParseService はCLIで指定されたサービス名を解釈するのだ。
// 旧称の "gpt4o" は openai の別名として受け付けるのだ。
func ParseService(name string) (Service, error) {
	switch name {
	case "genai":
		return ServiceGenAI, nil
	case "openai", "gpt4o":
		return ServiceOpenAI, nil
	case "vertex":
		return ServiceVertex, nil
	}
	return "", fmt.Errorf("未対応のサービスです: %s (genai / openai / vertex から選ぶのだ)", name)
}

// ImageBackend は1つのベンダー統合が満たすべき能力インターフェースです。
type ImageBackend interface {
	// Name はログとメタデータに使う表示名を返します。
	Name() string

	// GenerateOne は1プロンプトに対して正確に1回の生成呼び出しを行い、
	// デコード済みの画像列を返します。転送・認証・クォータ・コンテンツ
	// ポリシーいずれの失敗も *GenerationError として返します。
	GenerateOne(ctx context.Context, prompt domain.PromptRecord, cfg RequestConfig, count int) ([]domain.GeneratedImage, error)

	// MaxWorkers はベンダーのレート制限に収まる並列数を返す純関数です。
	// min(promptCount, サービス固有の上限) で、promptCount > 0 なら必ず正です。
	MaxWorkers(promptCount int) int

	// TestConnection は資格情報と到達性を確かめる最小限の生存確認です。
	// 決してパニックせず、いかなる失敗でも false を返します。
	TestConnection(ctx context.Context) bool
}

// RequestConfig は解決済みのリクエストパラメータの読み取りビューです。
// internal/config.ResolvedConfig がこれを満たします。
type RequestConfig interface {
	GetString(key string) string
	GetBool(key string) bool
}

// サービスごとのワーカー数上限。ベンダーのレート制限に対する保守的な見積もりなのだ。
const (
	genaiWorkerCap         = 8 // デフォルトの 50 RPM クォータに収まる数
	openaiWorkerCap        = 5 // Tier 1: 毎分5枚
	vertexWorkerCap        = 6 // Imagen 3 (50 RPM) 向けの控えめな値
	vertexImagen4WorkerCap = 4 // Imagen 4 は 20 RPM 制限
)

// clampImageCount は要求枚数をモデルの1回あたり上限へ切り詰めるのだ。
// 上限超過は失敗にせず、警告して縮めるだけなのだ。max が 0 以下なら制限なし。
func clampImageCount(model string, count, max int) int {
	if max > 0 && count > max {
		slog.Warn("要求枚数がモデルの上限を超えているため切り詰めるのだ",
			"model", model, "requested", count, "max", max)
		return max
	}
	return count
}

// capWorkers は min(promptCount, cap) を返します。
func capWorkers(promptCount, cap int) int {
	if promptCount < cap {
		return promptCount
	}
	return cap
}

// GenerationError は生成呼び出しの失敗を表します。ディスパッチャにとっては
// 不透明で、ログのために元の原因だけを運びます。
type GenerationError struct {
	Service Service
	Err     error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("%s: 画像生成に失敗しました: %v", e.Service, e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}
