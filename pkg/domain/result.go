package domain

// GenerationResult は1プロンプト分の成果です。
// 成功なら生成画像のファイルパスが1枚ごとに並び、全滅なら空スライスになります。
// プロンプト内の部分失敗という状態は持ちません（N枚かゼロ枚か）。
type GenerationResult struct {
	Filename string
	Paths    []string
}

// Succeeded は1枚以上の画像が保存できたかどうかを返します。
func (r GenerationResult) Succeeded() bool {
	return len(r.Paths) > 0
}

// BatchResult はプロンプトのファイル名から GenerationResult への対応です。
// 挿入順はワーカーの完了順であって投入順ではない点に注意（テストは順序に依存しないこと）。
type BatchResult map[string]GenerationResult

// Summary はバッチ全体の集計値を保持します。
type Summary struct {
	TotalImages int
	Failed      int
}

// Summarize は生成枚数と失敗プロンプト数を集計するのだ。
func (br BatchResult) Summarize() Summary {
	var s Summary
	for _, r := range br {
		if r.Succeeded() {
			s.TotalImages += len(r.Paths)
		} else {
			s.Failed++
		}
	}
	return s
}
