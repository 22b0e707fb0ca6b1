package config

// GenerateOptions は CLI フラグから渡される実行時のパラメータなのだ。
type GenerateOptions struct {
	// 入力関連
	PromptsFile string   // --prompts
	Type        string   // --type: backgrounds | characters | all
	ImageIDs    []string // --image-id（繰り返し・カンマ区切り両対応）

	// 生成パラメータのオーバーライド
	ImagesPerPrompt int    // --images-per-prompt
	AspectRatio     string // --aspect-ratio (genai / vertex)
	Size            string // --size (openai)
	Quality         string // --quality
	Style           string // --style (openai)
	SafetyFilter    string // --safety-filter
	AllowPeople     string // --allow-people
	Model           string // --model

	// サービス選択と認証
	Service   string // --service: genai | openai | vertex
	APIKey    string // --api-key（環境変数より優先）
	ProjectID string // --project-id (vertex)
	Location  string // --location (vertex)

	// 出力・実行制御
	OutputDir  string // --output-dir
	ConfigPath string // --config
	DryRun     bool   // --dry-run
	Verbose    bool   // --verbose
}

// CLIOverrides はフラグで明示された値だけを解決レイヤの最上位オーバーライドへ写すのだ。
// 空文字は「指定なし」を意味し、Resolve 側で無視されるのだ。
func (o GenerateOptions) CLIOverrides() map[string]any {
	return map[string]any{
		"aspect_ratio":        o.AspectRatio,
		"size":                o.Size,
		"quality":             o.Quality,
		"style":               o.Style,
		"safety_filter_level": o.SafetyFilter,
		"person_generation":   o.AllowPeople,
	}
}
