package cmd

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Vhari-Maven/ai-image-generator/internal/pipeline"
)

// generateCmd は、プロンプトファイルに基づく一括画像生成を実行するのだ。
var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "プロンプトファイルからAI画像を一括生成するのだ。",
	Long: `JSONファイルのプロンプト定義を読み込み、選択したバックエンドへ
並列分配して画像を生成・保存するのだ。一部のプロンプトが失敗しても
バッチ全体は止まらず、最後に成否の集計が表示されるのだ。`,
	RunE: generateCommand,
}

// generateCommand は、generate サブコマンドの実行ロジック本体なのだ。
func generateCommand(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	slog.Info("画像生成バッチを起動するのだ！",
		"prompts", opts.PromptsFile,
		"service", opts.Service,
		"images_per_prompt", opts.ImagesPerPrompt)

	return pipeline.Execute(ctx, opts)
}
