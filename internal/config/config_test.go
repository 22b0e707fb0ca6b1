package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func resolverFromYAML(t *testing.T, content string) *Resolver {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("設定ファイルの書き込みに失敗なのだ: %v", err)
	}
	return newResolver(path)
}

func TestNewResolver(t *testing.T) {
	t.Run("ファイルが無くてもデフォルトで成立するのだ", func(t *testing.T) {
		r := newResolver(filepath.Join(t.TempDir(), "missing.yaml"))
		if got := r.GetString("genai.model", ""); got != DefaultGenAIModel {
			t.Errorf("デフォルトモデルが引けないのだ: %s", got)
		}
		if got := r.GetInt("generation.images_per_prompt", 0); got != 1 {
			t.Errorf("images_per_prompt のデフォルトが違うのだ: %d", got)
		}
	})

	t.Run("壊れたYAMLでも失敗せずデフォルトへ落ちるのだ", func(t *testing.T) {
		r := resolverFromYAML(t, "genai: [unclosed")
		if got := r.GetString("genai.model", ""); got != DefaultGenAIModel {
			t.Errorf("壊れた設定でもデフォルトが使えるべきなのだ: %s", got)
		}
	})

	t.Run("ユーザー設定はデフォルトへ深マージされるのだ", func(t *testing.T) {
		r := resolverFromYAML(t, `
genai:
  model: imagen-custom
generation:
  rate_interval: 3
`)
		if got := r.GetString("genai.model", ""); got != "imagen-custom" {
			t.Errorf("上書きが効いていないのだ: %s", got)
		}
		// 兄弟キーはマージで生き残ること
		if got := r.GetString("genai.defaults.aspect_ratio", ""); got != "1:1" {
			t.Errorf("深マージで兄弟キーが消えたのだ: %s", got)
		}
		if got := r.RateInterval(); got != 3*time.Second {
			t.Errorf("rate_interval が反映されていないのだ: %v", got)
		}
	})
}

func TestLoad(t *testing.T) {
	resetCache := func(t *testing.T) {
		t.Helper()
		mu.Lock()
		cached, cachedPath = nil, ""
		mu.Unlock()
		t.Cleanup(func() {
			mu.Lock()
			cached, cachedPath = nil, ""
			mu.Unlock()
		})
	}

	t.Run("空パスとデフォルトパスの明示指定は同じインスタンスなのだ", func(t *testing.T) {
		resetCache(t)
		r1 := Load("")
		r2 := Load(defaultConfigPath)
		if r1 != r2 {
			t.Error("正規化後のパスが同じなら読み直さないはずなのだ")
		}
		if r3 := Load(""); r3 != r1 {
			t.Error("空パスの再呼び出しはキャッシュを返すはずなのだ")
		}
	})

	t.Run("別パスの要求では読み直すのだ", func(t *testing.T) {
		resetCache(t)
		r1 := Load("")
		other := filepath.Join(t.TempDir(), "other.yaml")
		r2 := Load(other)
		if r1 == r2 {
			t.Error("異なるパスでは新しいインスタンスになるはずなのだ")
		}
		if r3 := Load(other); r3 != r2 {
			t.Error("同じ明示パスの再呼び出しはキャッシュを返すはずなのだ")
		}
	})
}

func TestResolve(t *testing.T) {
	r := newResolver(filepath.Join(t.TempDir(), "missing.yaml"))

	t.Run("カテゴリブロックがサービスデフォルトを浅く上書きするのだ", func(t *testing.T) {
		cfg := r.Resolve("genai", "background", nil)
		if got := cfg.GetString("aspect_ratio"); got != "16:9" {
			t.Errorf("背景カテゴリは16:9のはずなのだ: %s", got)
		}
		// カテゴリに無いキーはデフォルトのまま
		if got := cfg.GetString("safety_filter_level"); got != "BLOCK_LOW_AND_ABOVE" {
			t.Errorf("デフォルトが貫通すべきなのだ: %s", got)
		}
	})

	t.Run("CLIオーバーライドが最優先なのだ", func(t *testing.T) {
		cfg := r.Resolve("genai", "character", map[string]any{
			"aspect_ratio": "9:16",
		})
		if got := cfg.GetString("aspect_ratio"); got != "9:16" {
			t.Errorf("CLIが勝つべきなのだ: %s", got)
		}
	})

	t.Run("nilと空文字列のオーバーライドは無視されるのだ", func(t *testing.T) {
		cfg := r.Resolve("openai", "character", map[string]any{
			"quality": nil,
			"size":    "",
		})
		if got := cfg.GetString("quality"); got != "high" {
			t.Errorf("nilは下層を透過すべきなのだ: %s", got)
		}
		if got := cfg.GetString("size"); got != "1024x1536" {
			t.Errorf("空文字列は下層を透過すべきなのだ: %s", got)
		}
	})

	t.Run("未知のサービスやカテゴリでも失敗しないのだ", func(t *testing.T) {
		cfg := r.Resolve("no-such-service", "no-such-category", map[string]any{"k": "v"})
		if got := cfg.GetString("k"); got != "v" {
			t.Errorf("オーバーライドだけでも解決できるべきなのだ: %s", got)
		}
	})
}

func TestVertexModel(t *testing.T) {
	r := newResolver(filepath.Join(t.TempDir(), "missing.yaml"))

	t.Run("既知モデルの制約を引けるのだ", func(t *testing.T) {
		info := r.VertexModel("imagen-3.0-generate-002")
		if info.MaxImages != 8 || info.RPMLimit != 50 || !info.SupportsWatermark || !info.SupportsSeed {
			t.Errorf("imagen-3.0 の制約が違うのだ: %+v", info)
		}
		info = r.VertexModel("imagen-4.0-ultra-generate-preview-06-06")
		if info.MaxImages != 4 || info.SupportsWatermark {
			t.Errorf("imagen-4.0-ultra の制約が違うのだ: %+v", info)
		}
	})

	t.Run("未知モデルはデフォルトモデルの制約へフォールバックするのだ", func(t *testing.T) {
		info := r.VertexModel("imagen-99.0-experimental")
		if info.MaxImages != 8 {
			t.Errorf("デフォルトモデル(imagen-3.0)の制約が返るはずなのだ: %+v", info)
		}
	})
}

func TestAPIKey(t *testing.T) {
	t.Run("環境変数が設定ファイルより優先されるのだ", func(t *testing.T) {
		t.Setenv("GOOGLE_AI_API_KEY", "env-key")
		r := resolverFromYAML(t, "api:\n  google_ai_key: file-key\n")
		if got := r.APIKey("genai"); got != "env-key" {
			t.Errorf("環境変数が勝つべきなのだ: %s", got)
		}
	})

	t.Run("環境変数が無ければ設定ファイルへ落ちるのだ", func(t *testing.T) {
		t.Setenv("OPENAI_API_KEY", "")
		r := resolverFromYAML(t, "api:\n  openai_key: file-key\n")
		if got := r.APIKey("openai"); got != "file-key" {
			t.Errorf("設定ファイルのキーが返るはずなのだ: %s", got)
		}
	})

	t.Run("vertexはプロジェクトIDを返すのだ", func(t *testing.T) {
		t.Setenv("GOOGLE_CLOUD_PROJECT", "")
		r := resolverFromYAML(t, "vertex:\n  project_id: my-project\n")
		if got := r.APIKey("vertex"); got != "my-project" {
			t.Errorf("プロジェクトIDが返るはずなのだ: %s", got)
		}
	})
}
