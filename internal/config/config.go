package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/shouni/go-utils/envutil"
	"gopkg.in/yaml.v3"
)

// デフォルト値の定義なのだ
const (
	DefaultService         = "genai"
	DefaultOutputDir       = "./generated-images"
	DefaultImagesPerPrompt = 1
	DefaultGenAIModel      = "imagen-3.0-generate-002"
	DefaultOpenAIModel     = "gpt-image-1"
	DefaultVertexModel     = "imagen-3.0-generate-002"
	DefaultVertexLocation  = "us-central1"
)

// Resolver は階層化された設定（コンパイル時デフォルト → 設定ファイル →
// カテゴリ別オーバーレイ → CLIオーバーライド）を1つの具体的な
// パラメータセットへ解決します。ロード後は読み取り専用で、
// ワーカー間でロックなしに共有できます。
type Resolver struct {
	tree map[string]any
	path string
	memo *cache.Cache // service+category ごとのマージ済みブロックのメモ化
}

var (
	mu         sync.Mutex
	cached     *Resolver
	cachedPath string
)

// defaultConfigPath はパス未指定時に読む設定ファイルなのだ。
const defaultConfigPath = "config.yaml"

// Load はプロセス全体で共有する Resolver を返すのだ。
// 空パスはキャッシュ済みインスタンスの再利用を意味し、初回だけデフォルトパスを読むのだ。
// キャッシュの照合は正規化後のパスで行うため、Load("") と Load("config.yaml") は
// 同じインスタンスを共有するのだ。
// ファイルが無い・壊れている場合でも失敗せず、通知を出してデフォルトへ落ちるのだ。
func Load(path string) *Resolver {
	mu.Lock()
	defer mu.Unlock()

	if path == "" {
		if cached != nil {
			return cached
		}
		path = defaultConfigPath
	}
	if cached != nil && path == cachedPath {
		return cached
	}

	cached = newResolver(path)
	cachedPath = path
	return cached
}

// newResolver はデフォルトツリーの上に設定ファイルを深マージして Resolver を作ります。
func newResolver(path string) *Resolver {
	tree := defaultTree()

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		slog.Info("設定ファイルが見つからないため、デフォルト設定を使うのだ", "path", path)
	case err != nil:
		slog.Warn("設定ファイルの読み込みに失敗したため、デフォルト設定を使うのだ", "path", path, "error", err)
	default:
		var user map[string]any
		if err := yaml.Unmarshal(data, &user); err != nil {
			slog.Warn("設定ファイルの解析に失敗したため、デフォルト設定を使うのだ", "path", path, "error", err)
		} else if user != nil {
			tree = deepMerge(tree, user)
		}
	}

	return &Resolver{
		tree: tree,
		path: path,
		memo: cache.New(cache.NoExpiration, cache.NoExpiration),
	}
}

// deepMerge は overlay を base の上に再帰的に重ねます。
// 両側が辞書のキーは再帰マージ、それ以外は overlay 側で丸ごと置き換えます。
func deepMerge(base, overlay map[string]any) map[string]any {
	out := make(map[string]any, len(base))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range overlay {
		if bm, ok := out[k].(map[string]any); ok {
			if om, ok := v.(map[string]any); ok {
				out[k] = deepMerge(bm, om)
				continue
			}
		}
		out[k] = v
	}
	return out
}

// Get はドット記法（例: "generation.images_per_prompt"）で設定値を引きます。
// 見つからなければ nil を返します。
func (r *Resolver) Get(key string) any {
	var cur any = r.tree
	for _, part := range strings.Split(key, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur, ok = m[part]
		if !ok {
			return nil
		}
	}
	return cur
}

// GetString は文字列値を引き、無ければ fallback を返します。
func (r *Resolver) GetString(key, fallback string) string {
	if v, ok := r.Get(key).(string); ok && v != "" {
		return v
	}
	return fallback
}

// GetBool は真偽値を引き、無ければ fallback を返します。
func (r *Resolver) GetBool(key string, fallback bool) bool {
	if v, ok := r.Get(key).(bool); ok {
		return v
	}
	return fallback
}

// GetInt は整数値を引き、無ければ fallback を返すのだ。
// YAMLの数値は int で来るが、文字列で書かれていても拾えるようにしておくのだ。
func (r *Resolver) GetInt(key string, fallback int) int {
	switch v := r.Get(key).(type) {
	case int:
		return v
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

// RateInterval は generation.rate_interval（秒）をディスパッチャの流量制限間隔として返します。
// 0 以下は「制限なし」です。
func (r *Resolver) RateInterval() time.Duration {
	return time.Duration(r.GetInt("generation.rate_interval", 0)) * time.Second
}

// CreateBackups は上書き時のバックアップを作るかどうかを返します。
func (r *Resolver) CreateBackups() bool {
	return r.GetBool("output.create_backups", false)
}

// APIKey はサービスの認証情報を返すのだ。環境変数が最優先で、
// 無ければ設定ファイルへフォールバックするのだ。
// vertex はアプリケーションデフォルト認証を使うため、キーの代わりにプロジェクトIDを返すのだ。
func (r *Resolver) APIKey(service string) string {
	switch service {
	case "genai":
		if key := envutil.GetEnv("GOOGLE_AI_API_KEY", ""); key != "" {
			return key
		}
		return r.GetString("api.google_ai_key", "")
	case "openai":
		if key := envutil.GetEnv("OPENAI_API_KEY", ""); key != "" {
			return key
		}
		return r.GetString("api.openai_key", "")
	case "vertex":
		if project := envutil.GetEnv("GOOGLE_CLOUD_PROJECT", ""); project != "" {
			return project
		}
		return r.GetString("vertex.project_id", "")
	}
	return ""
}

// ResolvedConfig は1回の生成呼び出しに使う、完全にマージ済みのパラメータセットです。
// ネットワーク呼び出しの前に必ず具体化されており、部分適用はありません。
type ResolvedConfig map[string]any

// GetString は解決済みパラメータから文字列を取り出します。
func (c ResolvedConfig) GetString(key string) string {
	if v, ok := c[key].(string); ok {
		return v
	}
	return ""
}

// GetBool は解決済みパラメータから真偽値を取り出します。
func (c ResolvedConfig) GetBool(key string) bool {
	v, _ := c[key].(bool)
	return v
}

// Resolve はサービス・カテゴリ・CLIオーバーライドを重ねた最終設定を返すのだ。
// 合成順序: サービスの defaults → カテゴリブロック（浅いマージ）→ overrides の非nil値。
// どんな入力に対しても失敗しない全域関数なのだ。
func (r *Resolver) Resolve(service, category string, overrides map[string]any) ResolvedConfig {
	base := r.serviceBlock(service, category)

	resolved := make(ResolvedConfig, len(base)+len(overrides))
	for k, v := range base {
		resolved[k] = v
	}
	for k, v := range overrides {
		if v == nil {
			continue
		}
		if s, ok := v.(string); ok && s == "" {
			continue
		}
		resolved[k] = v
	}
	return resolved
}

// serviceBlock は defaults + カテゴリオーバーレイのマージ結果を返します。
// オーバーライドを含まない基底部分は service/category ごとに不変なので、
// go-cache にメモ化して並列ワーカーからの再計算を省きます。
func (r *Resolver) serviceBlock(service, category string) map[string]any {
	key := service + "/" + category
	if v, ok := r.memo.Get(key); ok {
		return v.(map[string]any)
	}

	merged := make(map[string]any)
	if defaults, ok := r.Get(service + ".defaults").(map[string]any); ok {
		for k, v := range defaults {
			merged[k] = v
		}
	}
	if category != "" {
		if overlay, ok := r.Get(fmt.Sprintf("%s.categories.%s", service, category)).(map[string]any); ok {
			for k, v := range overlay {
				merged[k] = v
			}
		}
	}

	r.memo.Set(key, merged, cache.NoExpiration)
	return merged
}

// VertexModelInfo は vertex.models テーブルの1エントリです。
type VertexModelInfo struct {
	MaxImages         int
	RPMLimit          int
	SupportsWatermark bool
	SupportsSeed      bool
}

// VertexModel はモデル名に対応する制約情報を返すのだ。
// 未知のモデル名はデフォルトモデルの情報へフォールバックするのだ。
func (r *Resolver) VertexModel(name string) VertexModelInfo {
	block, ok := r.Get("vertex.models." + name).(map[string]any)
	if !ok {
		fallback := r.GetString("vertex.model", DefaultVertexModel)
		block, ok = r.Get("vertex.models." + fallback).(map[string]any)
		if !ok {
			return VertexModelInfo{MaxImages: 4, RPMLimit: 20}
		}
	}
	info := VertexModelInfo{MaxImages: 4, RPMLimit: 20}
	if v, ok := block["max_images"].(int); ok {
		info.MaxImages = v
	}
	if v, ok := block["rpm_limit"].(int); ok {
		info.RPMLimit = v
	}
	if v, ok := block["supports_watermark"].(bool); ok {
		info.SupportsWatermark = v
	}
	if v, ok := block["supports_seed"].(bool); ok {
		info.SupportsSeed = v
	}
	return info
}

// defaultTree はコンパイル時デフォルトの設定ツリーを返します。
// 設定ファイルが無くても常に使える構成が成立するよう、全キーを持ちます。
func defaultTree() map[string]any {
	return map[string]any{
		"api": map[string]any{
			"google_ai_key": "",
			"openai_key":    "",
		},
		"generation": map[string]any{
			"images_per_prompt": DefaultImagesPerPrompt,
			"default_service":   DefaultService,
			"image_format":      "png",
			"embed_metadata":    true,
			"rate_interval":     0,
		},
		"output": map[string]any{
			"create_backups":       false,
			"organize_by_category": true,
		},
		"genai": map[string]any{
			"model": DefaultGenAIModel,
			"defaults": map[string]any{
				"aspect_ratio":        "1:1",
				"safety_filter_level": "BLOCK_LOW_AND_ABOVE",
				"person_generation":   "ALLOW_ADULT",
			},
			"categories": map[string]any{
				"background": map[string]any{
					"aspect_ratio": "16:9",
				},
				"character": map[string]any{
					"aspect_ratio": "3:4",
				},
			},
		},
		"openai": map[string]any{
			"model": DefaultOpenAIModel,
			"defaults": map[string]any{
				"size":    "1024x1024",
				"quality": "medium",
				"style":   "natural",
			},
			"categories": map[string]any{
				"background": map[string]any{
					"size":    "1536x1024",
					"quality": "medium",
					"style":   "natural",
				},
				"character": map[string]any{
					"size":    "1024x1536",
					"quality": "high",
					"style":   "vivid",
				},
			},
		},
		"vertex": map[string]any{
			"model":      DefaultVertexModel,
			"project_id": "",
			"location":   DefaultVertexLocation,
			"defaults": map[string]any{
				"aspect_ratio":        "1:1",
				"quality":             "standard",
				"safety_filter_level": "block_some",
				"person_generation":   "allow_adult",
				"add_watermark":       false,
			},
			"categories": map[string]any{
				"background": map[string]any{
					"aspect_ratio": "16:9",
				},
				"character": map[string]any{
					"aspect_ratio": "3:4",
				},
			},
			"models": map[string]any{
				"imagen-3.0-generate-002": map[string]any{
					"max_images":         8,
					"rpm_limit":          50,
					"supports_watermark": true,
					"supports_seed":      true,
				},
				"imagen-4.0-generate-preview-06-06": map[string]any{
					"max_images":         4,
					"rpm_limit":          20,
					"supports_watermark": false,
					"supports_seed":      false,
				},
				"imagen-4.0-fast-generate-preview-06-06": map[string]any{
					"max_images":         4,
					"rpm_limit":          20,
					"supports_watermark": false,
					"supports_seed":      false,
				},
				"imagen-4.0-ultra-generate-preview-06-06": map[string]any{
					"max_images":         4,
					"rpm_limit":          20,
					"supports_watermark": false,
					"supports_seed":      false,
				},
			},
		},
	}
}
