package runner

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/Vhari-Maven/ai-image-generator/internal/config"
	"github.com/Vhari-Maven/ai-image-generator/pkg/backend"
	"github.com/Vhari-Maven/ai-image-generator/pkg/domain"
	"github.com/Vhari-Maven/ai-image-generator/pkg/publisher"
)

// ResolveFunc はプロンプトごとの解決済み設定を供給します。
// リゾルバ本体を持ち込まないことで、テストではスタブに差し替えられます。
type ResolveFunc func(p domain.PromptRecord) config.ResolvedConfig

// BatchRunner はプロンプト列を1つのバックエンドへ扇状に分配するディスパッチャです。
// ワーカー数はバックエンドのレート制限見積もりで制限され、
// 1プロンプトの失敗が他の実行中・待機中プロンプトを止めることはありません。
type BatchRunner struct {
	backend         backend.ImageBackend
	sink            *publisher.Sink
	resolve         ResolveFunc
	imagesPerPrompt int
	outputRoot      string
	interval        time.Duration // 0 なら流量制限なし
}

// NewBatchRunner は BatchRunner の新しいインスタンスを生成して返す。
func NewBatchRunner(be backend.ImageBackend, sink *publisher.Sink, resolve ResolveFunc, imagesPerPrompt int, outputRoot string, interval time.Duration) *BatchRunner {
	if imagesPerPrompt < 1 {
		imagesPerPrompt = 1
	}
	return &BatchRunner{
		backend:         be,
		sink:            sink,
		resolve:         resolve,
		imagesPerPrompt: imagesPerPrompt,
		outputRoot:      outputRoot,
		interval:        interval,
	}
}

// Run は全プロンプトの処理完了まで待つ完全バリアなのだ。
// 結果マップへの挿入順はワーカーの完了順であって投入順ではないのだ。
// キャンセル時は新規の着手だけを止め、未着手プロンプトは結果から単に欠落するのだ。
// 全滅してもエラーにはせず、全エントリが空の BatchResult を返すのだ。
func (r *BatchRunner) Run(ctx context.Context, prompts []domain.PromptRecord) (domain.BatchResult, error) {
	results := make(domain.BatchResult, len(prompts))
	if len(prompts) == 0 {
		return results, nil
	}

	workers := r.backend.MaxWorkers(len(prompts))
	slog.Info("並列バッチ生成を開始するのだ",
		"backend", r.backend.Name(), "prompts", len(prompts), "workers", workers)

	// 収集側は単一ゴルーチンに集約し、結果マップへの書き込みを直列化するのだ
	resCh := make(chan domain.GenerationResult)
	done := make(chan struct{})
	go func() {
		defer close(done)
		completed := 0
		for res := range resCh {
			results[res.Filename] = res
			completed++
			progress := fmt.Sprintf("%d/%d", completed, len(prompts))
			if res.Succeeded() {
				slog.Info("プロンプト完了", "progress", progress, "file", res.Filename, "images", len(res.Paths))
			} else {
				slog.Error("プロンプト失敗", "progress", progress, "file", res.Filename)
			}
		}
	}()

	var limiter *rate.Limiter
	if r.interval > 0 {
		// Burst 2 により、開始直後に2件までは同時にリクエストを開始できるのだ
		limiter = rate.NewLimiter(rate.Every(r.interval), 2)
	}

	// WithContext は使わない：ワーカーは決してエラーを返さず、
	// 1件の失敗で兄弟をキャンセルさせないためなのだ。
	var eg errgroup.Group
	eg.SetLimit(workers)

	for _, p := range prompts {
		p := p
		eg.Go(func() error {
			// キャンセル後は新しい仕事に着手しない
			if ctx.Err() != nil {
				return nil
			}
			if limiter != nil {
				if err := limiter.Wait(ctx); err != nil {
					return nil
				}
			}
			resCh <- domain.GenerationResult{
				Filename: p.Filename,
				Paths:    r.generateOne(ctx, p),
			}
			return nil
		})
	}

	_ = eg.Wait()
	close(resCh)
	<-done

	return results, ctx.Err()
}

// generateOne は1プロンプト分の生成と保存を端から端まで行うのだ。
// 生成エラーも保存エラーもこの境界で回収してログし、空の結果（nil）に落とすのだ。
func (r *BatchRunner) generateOne(ctx context.Context, p domain.PromptRecord) []string {
	cfg := r.resolve(p)

	images, err := r.backend.GenerateOne(ctx, p, cfg, r.imagesPerPrompt)
	if err != nil {
		slog.Error("画像生成に失敗したのだ", "file", p.Filename, "error", err)
		return nil
	}

	dir := publisher.OutputDirFor(r.outputRoot, p.Category)
	paths := make([]string, 0, len(images))
	for i, img := range images {
		dest := filepath.Join(dir, publisher.ImageFilename(p.Filename, i, r.imagesPerPrompt))
		if err := r.sink.Save(img, dest, p.Prompt, p.Description); err != nil {
			slog.Error("画像の保存に失敗したのだ", "path", dest, "error", err)
			return nil
		}
		slog.Info("保存したのだ", "path", dest)
		paths = append(paths, dest)
	}
	return paths
}
