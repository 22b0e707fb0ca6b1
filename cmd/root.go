package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/Vhari-Maven/ai-image-generator/internal/config"
)

// opts は全サブコマンドで共有される実行時パラメータなのだ。
var opts config.GenerateOptions

var rootCmd = &cobra.Command{
	Use:   "art-generator",
	Short: "AI画像生成サービスでビジュアルアセットを一括生成するのだ。",
	Long: `JSONのプロンプト定義を読み込み、複数の画像生成バックエンド
（Google GenAI / OpenAI / Vertex AI）へ一括で分配して画像を生成・保存するのだ。`,
	SilenceUsage: true,
}

// addAppFlags は、アプリケーション全般に適用されるグローバルフラグを定義するのだ。
func addAppFlags(rootCmd *cobra.Command) {
	// --- 入力関連 ---
	rootCmd.PersistentFlags().StringVarP(&opts.PromptsFile, "prompts", "p", "", "生成するプロンプトを含むJSONファイルなのだ。")
	rootCmd.PersistentFlags().StringVarP(&opts.Type, "type", "t", "all", "生成するアセットのタイプ（backgrounds / characters / all）なのだ。")
	rootCmd.PersistentFlags().StringSliceVar(&opts.ImageIDs, "image-id", nil, "指定したIDの画像だけを生成するのだ（繰り返し・カンマ区切り両対応）。")

	// --- 生成パラメータ ---
	rootCmd.PersistentFlags().IntVarP(&opts.ImagesPerPrompt, "images-per-prompt", "n", config.DefaultImagesPerPrompt, "1プロンプトあたりの生成枚数なのだ。")
	rootCmd.PersistentFlags().StringVar(&opts.AspectRatio, "aspect-ratio", "", "アスペクト比のオーバーライド（1:1, 3:4, 4:3, 9:16, 16:9）なのだ。")
	rootCmd.PersistentFlags().StringVar(&opts.Size, "size", "", "画像サイズのオーバーライド（OpenAIのみ、例: 1024x1024）なのだ。")
	rootCmd.PersistentFlags().StringVar(&opts.Quality, "quality", "", "品質のオーバーライド（OpenAI: low/medium/high、Vertex: fast/standard/ultra）なのだ。")
	rootCmd.PersistentFlags().StringVar(&opts.Style, "style", "", "スタイルのオーバーライド（natural / vivid）なのだ。")
	rootCmd.PersistentFlags().StringVar(&opts.SafetyFilter, "safety-filter", "", "セーフティフィルタレベルのオーバーライドなのだ。")
	rootCmd.PersistentFlags().StringVar(&opts.AllowPeople, "allow-people", "", "人物生成設定のオーバーライド（DONT_ALLOW / ALLOW_ADULT）なのだ。")
	rootCmd.PersistentFlags().StringVar(&opts.Model, "model", "", "モデル名のオーバーライドなのだ。")

	// --- サービス選択・認証 ---
	rootCmd.PersistentFlags().StringVar(&opts.Service, "service", config.DefaultService, "使用するAIサービス（genai / openai / vertex）なのだ。")
	rootCmd.PersistentFlags().StringVar(&opts.APIKey, "api-key", "", "サービスのAPIキー（環境変数より優先）なのだ。")
	rootCmd.PersistentFlags().StringVar(&opts.ProjectID, "project-id", "", "Vertex AI用のGoogle CloudプロジェクトIDなのだ。")
	rootCmd.PersistentFlags().StringVar(&opts.Location, "location", "", "Vertex AI用のGoogle Cloudロケーションなのだ。")

	// --- 出力・実行制御 ---
	rootCmd.PersistentFlags().StringVar(&opts.OutputDir, "output-dir", "", "出力ディレクトリ（デフォルト: "+config.DefaultOutputDir+"）なのだ。")
	rootCmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "設定YAMLのパス（デフォルト: config.yaml）なのだ。")
	rootCmd.PersistentFlags().BoolVar(&opts.DryRun, "dry-run", false, "実際には生成せず、何が生成されるかだけを表示するのだ。")
	rootCmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "詳細出力なのだ。")
}

// Execute は、アプリケーションのメインエントリポイントなのだ。
// main.go から呼び出されて、cobra のコマンドライン解析を開始するのだよ。
// 割り込み（Ctrl-C）は context 経由で各コマンドへ伝搬し、新規の仕事の着手を止めるのだ。
func Execute() {
	addAppFlags(rootCmd)
	rootCmd.AddCommand(generateCmd, listCmd, testCmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "エラー: %v\n", err)
		os.Exit(1)
	}
}
