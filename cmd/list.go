package cmd

import (
	"github.com/spf13/cobra"

	"github.com/Vhari-Maven/ai-image-generator/internal/pipeline"
)

// listCmd は、プロンプトファイルの内容をカテゴリごとに一覧表示する診断コマンドです。
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "プロンプトファイルの内容を一覧表示するのだ。",
	RunE: func(cmd *cobra.Command, args []string) error {
		return pipeline.ExecuteList(opts)
	},
}
