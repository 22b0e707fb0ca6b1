package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/Vhari-Maven/ai-image-generator/internal/builder"
	"github.com/Vhari-Maven/ai-image-generator/internal/config"
	"github.com/Vhari-Maven/ai-image-generator/internal/runner"
	"github.com/Vhari-Maven/ai-image-generator/pkg/backend"
	"github.com/Vhari-Maven/ai-image-generator/pkg/domain"
	"github.com/Vhari-Maven/ai-image-generator/pkg/publisher"
)

// canonicalService は別名（gpt4o など）を含むサービス指定を、
// 設定ツリーのブロック名と一致する正準名へ正規化するのだ。
func canonicalService(name string) (string, error) {
	svc, err := backend.ParseService(name)
	if err != nil {
		return "", err
	}
	return string(svc), nil
}

// Execute は generate サブコマンドの本体なのだ。
// プロンプト読み込み → フィルタ → バックエンド構築 → バッチ分配 → 集計表示、の一連を行うのだ。
// バッチ内の部分失敗はエラーとせず、致命的な入力/設定エラーだけをエラーとして返すのだ。
func Execute(ctx context.Context, opts config.GenerateOptions) error {
	// 別名のまま先へ流すと設定ブロックの照合に失敗するため、ここで一度だけ正規化するのだ
	svc, err := canonicalService(opts.Service)
	if err != nil {
		return err
	}
	opts.Service = svc

	resolver := config.Load(opts.ConfigPath)

	prompts, err := loadAndFilter(opts)
	if err != nil {
		return err
	}

	printPlan(opts, prompts)
	if opts.DryRun {
		fmt.Println("\nドライランなのだ - 画像は生成されないのだ")
		return nil
	}

	appCtx := builder.NewAppContext(resolver, opts)
	be, err := builder.BuildBackend(ctx, appCtx)
	if err != nil {
		return fmt.Errorf("バックエンドの初期化に失敗したのだ: %w", err)
	}

	sink := publisher.NewSink(resolver.CreateBackups(), appCtx.BatchID)
	overrides := opts.CLIOverrides()
	resolve := func(p domain.PromptRecord) config.ResolvedConfig {
		return resolver.Resolve(opts.Service, string(p.Category), overrides)
	}

	outputRoot := opts.OutputDir
	if outputRoot == "" {
		outputRoot = config.DefaultOutputDir
	}

	slog.Info("バッチ実行を開始するのだ", "batch_id", appCtx.BatchID, "output", outputRoot)

	batch := runner.NewBatchRunner(be, sink, resolve, opts.ImagesPerPrompt, outputRoot, resolver.RateInterval())
	results, runErr := batch.Run(ctx, prompts)

	printSummary(results)

	// 中断された場合は、完了済み分の集計を表示した上で非ゼロ終了にするのだ
	if runErr != nil {
		return fmt.Errorf("バッチ実行が中断されたのだ: %w", runErr)
	}
	return nil
}

// loadAndFilter はプロンプトを読み込み、ID指定（最優先）またはカテゴリでフィルタするのだ。
func loadAndFilter(opts config.GenerateOptions) ([]domain.PromptRecord, error) {
	if opts.PromptsFile == "" {
		return nil, fmt.Errorf("生成には --prompts の指定が必要なのだ")
	}

	all, err := domain.LoadPrompts(opts.PromptsFile)
	if err != nil {
		return nil, err
	}

	if len(opts.ImageIDs) > 0 {
		ids := domain.ExpandIDArgs(opts.ImageIDs)
		result, err := domain.FilterByIDs(all, ids)
		if err != nil {
			if errors.Is(err, domain.ErrNoMatchingIDs) {
				printAvailableIDs(all)
			}
			return nil, err
		}
		if len(result.MissingIDs) > 0 {
			slog.Warn("見つからなかったIDがあるのだ。ヒットした分だけで続行するのだ",
				"missing", strings.Join(result.MissingIDs, ", "))
		}
		return result.Matched, nil
	}

	if opts.Type != "" && opts.Type != "all" {
		// 'backgrounds' -> 'background', 'characters' -> 'character'
		cat := domain.PromptCategory(strings.TrimSuffix(opts.Type, "s"))
		filtered := domain.FilterByCategory(all, cat)
		if len(filtered) == 0 {
			return nil, fmt.Errorf("'%s' に %s のプロンプトが見つからないのだ", opts.PromptsFile, opts.Type)
		}
		return filtered, nil
	}

	return all, nil
}

// printPlan は生成前に何が行われるかを表示します。
func printPlan(opts config.GenerateOptions, prompts []domain.PromptRecord) {
	fmt.Printf("プロンプトファイル: %s\n", opts.PromptsFile)
	fmt.Printf("サービス: %s\n", opts.Service)
	if len(opts.ImageIDs) > 0 {
		fmt.Printf("指定ID: %s\n", strings.Join(domain.ExpandIDArgs(opts.ImageIDs), ", "))
	} else {
		fmt.Printf("タイプ: %s\n", opts.Type)
	}
	fmt.Printf("1プロンプトあたりの枚数: %d\n", opts.ImagesPerPrompt)
	if opts.AspectRatio != "" {
		fmt.Printf("アスペクト比オーバーライド: %s\n", opts.AspectRatio)
	}
	if opts.Size != "" {
		fmt.Printf("サイズオーバーライド: %s\n", opts.Size)
	}
	if opts.Quality != "" {
		fmt.Printf("品質オーバーライド: %s\n", opts.Quality)
	}
	if opts.Style != "" {
		fmt.Printf("スタイルオーバーライド: %s\n", opts.Style)
	}
	if opts.SafetyFilter != "" {
		fmt.Printf("セーフティフィルタオーバーライド: %s\n", opts.SafetyFilter)
	}
	if opts.AllowPeople != "" {
		fmt.Printf("人物生成オーバーライド: %s\n", opts.AllowPeople)
	}
	fmt.Printf("対象プロンプト数: %d\n", len(prompts))

	if opts.Verbose {
		fmt.Println("\n生成するプロンプト:")
		for _, p := range prompts {
			fmt.Printf("  %s: %s - %s\n", p.Category, p.Filename, p.Description)
		}
	}
}

// printSummary はバッチ結果の集計を表示するのだ。
// BatchResult の反復順は完了順依存なので、表示はファイル名でソートして安定させるのだ。
func printSummary(results domain.BatchResult) {
	fmt.Println("\n" + strings.Repeat("=", 50))
	fmt.Println("生成サマリー:")

	names := make([]string, 0, len(results))
	for name := range results {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		r := results[name]
		if r.Succeeded() {
			fmt.Printf("  ✓ %s: %d 枚\n", name, len(r.Paths))
		} else {
			fmt.Printf("  ✗ %s: 失敗\n", name)
		}
	}

	s := results.Summarize()
	fmt.Printf("\n合計生成枚数: %d\n", s.TotalImages)
	if s.Failed > 0 {
		fmt.Printf("失敗: %d\n", s.Failed)
	}
	fmt.Println("完了なのだ！")
}

// printAvailableIDs はIDが1件もヒットしなかったときの案内表示です。
func printAvailableIDs(prompts []domain.PromptRecord) {
	fmt.Println("利用可能な画像ID:")
	for _, p := range prompts {
		fmt.Printf("  %s (%s): %s\n", p.ID, p.Category, p.Title)
	}
}

// ExecuteList は list サブコマンド本体です。プロンプトをカテゴリごとに表示します。
func ExecuteList(opts config.GenerateOptions) error {
	if opts.PromptsFile == "" {
		return fmt.Errorf("一覧表示には --prompts の指定が必要なのだ")
	}

	prompts, err := domain.LoadPrompts(opts.PromptsFile)
	if err != nil {
		return err
	}

	fmt.Printf("%s のプロンプト一覧:\n", opts.PromptsFile)
	groups := domain.GroupByCategory(prompts)
	for _, cat := range []domain.PromptCategory{domain.CategoryBackground, domain.CategoryCharacter} {
		group := groups[cat]
		if len(group) == 0 {
			continue
		}
		fmt.Printf("  %ss (%d):\n", cat, len(group))
		for _, p := range group {
			fmt.Printf("    %s: %s\n", p.ID, p.Title)
			if p.Description != "" {
				fmt.Printf("      %s\n", p.Description)
			}
		}
		fmt.Println()
	}
	return nil
}

// ExecuteTestConnection は test サブコマンド本体なのだ。
// 最小限の生存確認を行い、失敗なら非ゼロ終了させるためにエラーを返すのだ。
func ExecuteTestConnection(ctx context.Context, opts config.GenerateOptions) error {
	resolver := config.Load(opts.ConfigPath)
	appCtx := builder.NewAppContext(resolver, opts)

	fmt.Printf("%s への接続を確認中...\n", opts.Service)
	be, err := builder.BuildBackend(ctx, appCtx)
	if err != nil {
		fmt.Println("接続テスト失敗なのだ！")
		return err
	}

	if !be.TestConnection(ctx) {
		fmt.Println("接続テスト失敗なのだ！")
		return fmt.Errorf("%s への接続確認に失敗したのだ", opts.Service)
	}
	fmt.Println("接続テスト成功なのだ！")
	return nil
}
