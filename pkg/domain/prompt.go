package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
)

// PromptCategory はプロンプトの分類（背景かキャラクターか）を表します。
// 設定のオーバーレイ選択と出力サブディレクトリの振り分けの両方に使われます。
type PromptCategory string

const (
	CategoryBackground PromptCategory = "background"
	CategoryCharacter  PromptCategory = "character"
)

// プロンプト読み込み系のセンチネルエラーなのだ。
var (
	// ErrPromptNotFound はプロンプトファイルが存在しないときに返されます。
	ErrPromptNotFound = errors.New("プロンプトファイルが見つかりません")
	// ErrPromptParse はJSONとして不正、または prompts 配列を欠くときに返されます。
	ErrPromptParse = errors.New("プロンプトファイルの解析に失敗しました")
	// ErrNoMatchingIDs はIDフィルタが1件もヒットしなかったときに返されます。
	ErrNoMatchingIDs = errors.New("指定されたIDに一致するプロンプトがありません")
)

// PromptRecord は1件の画像生成指示を保持する不変の値です。
// 読み込み時に一度だけ生成され、以後のワーカーからは読み取り専用で共有されます。
type PromptRecord struct {
	ID          string         `json:"id"`
	Title       string         `json:"title"`
	Filename    string         `json:"filename"`
	Description string         `json:"description"`
	Prompt      string         `json:"prompt"`
	Category    PromptCategory `json:"category"`
	Tags        []string       `json:"tags"`
}

// promptFile は入力JSONのトップレベル構造です。prompts 配列だけを見ます。
type promptFile struct {
	Prompts []json.RawMessage `json:"prompts"`
}

// LoadPrompts は指定されたJSONファイルからプロンプト列を順序を保って読み込むのだ。
// prompt フィールドは必須で、欠けていればどのレコードかを示すエラーで全体を失敗させるのだ。
// id / title / filename / description / category / tags は生成デフォルトで補完されるのだ。
func LoadPrompts(path string) ([]PromptRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrPromptNotFound, path)
		}
		return nil, fmt.Errorf("プロンプトファイルの読み込みに失敗したのだ: %w", err)
	}

	var file promptFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrPromptParse, path, err)
	}
	if len(file.Prompts) == 0 {
		return nil, fmt.Errorf("%w: %s に prompts 配列がありません", ErrPromptParse, path)
	}

	records := make([]PromptRecord, 0, len(file.Prompts))
	for i, raw := range file.Prompts {
		var rec PromptRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, fmt.Errorf("%w: プロンプト %d のデコードに失敗: %v", ErrPromptParse, i, err)
		}
		if strings.TrimSpace(rec.Prompt) == "" {
			return nil, fmt.Errorf("%w: プロンプト %d に必須フィールド 'prompt' がありません", ErrPromptParse, i)
		}
		applyDefaults(&rec, i)
		records = append(records, rec)
	}
	return records, nil
}

// applyDefaults は省略可能なフィールドに生成デフォルトを埋めます。
func applyDefaults(rec *PromptRecord, index int) {
	if rec.ID == "" {
		rec.ID = fmt.Sprintf("prompt-%d", index)
	}
	if rec.Filename == "" {
		rec.Filename = fmt.Sprintf("image-%d.png", index)
	}
	if rec.Category == "" {
		rec.Category = CategoryBackground
	}
	if rec.Tags == nil {
		rec.Tags = []string{}
	}
}

// FilterResult はIDフィルタの結果です。元の相対順序を保った部分列と、
// 要求されたが見つからなかったIDの一覧を持ちます。
type FilterResult struct {
	Matched    []PromptRecord
	MissingIDs []string
}

// FilterByIDs はID集合によるフィルタを行うのだ。
// 1件もヒットしなければ ErrNoMatchingIDs（呼び出し側は処理を止めるべきなのだ）。
// 一部だけヒットした場合は MissingIDs に詰めて続行を許すのだ。
// IDの一意性は強制しない：重複IDはすべてのマッチを返す仕様なのだ。
func FilterByIDs(prompts []PromptRecord, ids []string) (FilterResult, error) {
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}

	var matched []PromptRecord
	found := make(map[string]bool)
	for _, p := range prompts {
		if want[p.ID] {
			matched = append(matched, p)
			found[p.ID] = true
		}
	}

	if len(matched) == 0 {
		return FilterResult{}, fmt.Errorf("%w: %s", ErrNoMatchingIDs, strings.Join(ids, ", "))
	}

	var missing []string
	for _, id := range ids {
		if !found[id] {
			missing = append(missing, id)
		}
	}
	return FilterResult{Matched: matched, MissingIDs: missing}, nil
}

// FilterByCategory はカテゴリによる順序保存フィルタです。
func FilterByCategory(prompts []PromptRecord, cat PromptCategory) []PromptRecord {
	var out []PromptRecord
	for _, p := range prompts {
		if p.Category == cat {
			out = append(out, p)
		}
	}
	return out
}

// GroupByCategory は list サブコマンド向けにカテゴリごとのグループを返します。
// マップのキー順は不定なので、表示側でカテゴリ名を固定順に並べること。
func GroupByCategory(prompts []PromptRecord) map[PromptCategory][]PromptRecord {
	groups := make(map[PromptCategory][]PromptRecord)
	for _, p := range prompts {
		groups[p.Category] = append(groups[p.Category], p)
	}
	return groups
}

// ExpandIDArgs は繰り返しフラグとカンマ区切りが混在したID指定を平坦化するのだ。
// 例: ["id1,id2", "id3"] -> ["id1", "id2", "id3"]
func ExpandIDArgs(args []string) []string {
	var out []string
	for _, group := range args {
		for _, id := range strings.Split(group, ",") {
			id = strings.TrimSpace(id)
			if id != "" {
				out = append(out, id)
			}
		}
	}
	return out
}
