package cmd

import (
	"github.com/spf13/cobra"

	"github.com/Vhari-Maven/ai-image-generator/internal/pipeline"
)

// testCmd は、選択中のサービスへの到達性と資格情報を確認する診断コマンドです。
var testCmd = &cobra.Command{
	Use:   "test",
	Short: "選択したサービスへの接続を確認するのだ。",
	RunE: func(cmd *cobra.Command, args []string) error {
		return pipeline.ExecuteTestConnection(cmd.Context(), opts)
	},
}
