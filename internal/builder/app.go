package builder

import (
	"github.com/google/uuid"

	"github.com/Vhari-Maven/ai-image-generator/internal/config"
)

// AppContext は、アプリケーション実行に必要な共通コンテキストを保持する。
// これを各Build関数に渡すことで、依存関係の注入を簡素化します。
type AppContext struct {
	Resolver *config.Resolver       // Resolverは、階層設定を解決する読み取り専用の共有状態です。
	Options  config.GenerateOptions // Optionsは、コマンドラインから渡された実行時の設定です。
	BatchID  string                 // BatchIDは、1回のバッチ実行を識別し、ログと出力メタデータに埋め込まれます。
}

// NewAppContext は AppContext の新しいインスタンスを生成する。
func NewAppContext(resolver *config.Resolver, opts config.GenerateOptions) AppContext {
	return AppContext{
		Resolver: resolver,
		Options:  opts,
		BatchID:  uuid.NewString(),
	}
}
