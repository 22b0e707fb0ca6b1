package pipeline

import (
	"path/filepath"
	"testing"

	"github.com/Vhari-Maven/ai-image-generator/internal/config"
)

func TestCanonicalService(t *testing.T) {
	t.Run("gpt4o は openai へ正規化されるのだ", func(t *testing.T) {
		got, err := canonicalService("gpt4o")
		if err != nil {
			t.Fatalf("別名は受け付けるはずなのだ: %v", err)
		}
		if got != "openai" {
			t.Errorf("期待 openai, 実際 %s", got)
		}
	})

	t.Run("正準名はそのまま通るのだ", func(t *testing.T) {
		for _, name := range []string{"genai", "openai", "vertex"} {
			got, err := canonicalService(name)
			if err != nil || got != name {
				t.Errorf("%s: 期待 %s, 実際 %s (%v)", name, name, got, err)
			}
		}
	})

	t.Run("未知のサービス名はエラーなのだ", func(t *testing.T) {
		if _, err := canonicalService("dalle"); err == nil {
			t.Error("未対応サービスは拒否されるはずなのだ")
		}
	})

	t.Run("別名経由でも openai の設定レイヤが引けるのだ", func(t *testing.T) {
		r := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
		svc, err := canonicalService("gpt4o")
		if err != nil {
			t.Fatal(err)
		}

		cfg := r.Resolve(svc, "character", nil)
		if got := cfg.GetString("quality"); got != "high" {
			t.Errorf("characterカテゴリのqualityが引けないのだ: %q", got)
		}
		if got := cfg.GetString("size"); got != "1024x1536" {
			t.Errorf("characterカテゴリのsizeが引けないのだ: %q", got)
		}
	})
}
