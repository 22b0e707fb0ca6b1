package publisher

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/Vhari-Maven/ai-image-generator/pkg/domain"
)

const (
	backgroundsDirName = "backgrounds"
	charactersDirName  = "characters"
)

// OutputDirFor はカテゴリに応じた出力サブディレクトリを解決します。
// background は backgrounds/ へ、それ以外はすべて characters/ へ振り分けます。
func OutputDirFor(outputRoot string, category domain.PromptCategory) string {
	if category == domain.CategoryBackground {
		return filepath.Join(outputRoot, backgroundsDirName)
	}
	return filepath.Join(outputRoot, charactersDirName)
}

// ImageFilename は保存ファイル名を組み立てるのだ。
// 1プロンプトに2枚以上要求されたときだけ、ゼロ埋めの連番サフィックスを付けるのだ。
// 例: requested=3 のとき hero.png -> hero_001.png, hero_002.png, hero_003.png
func ImageFilename(baseFilename string, index, requested int) string {
	stem := strings.TrimSuffix(baseFilename, filepath.Ext(baseFilename))
	if requested > 1 {
		return fmt.Sprintf("%s_%03d.png", stem, index+1)
	}
	return stem + ".png"
}
