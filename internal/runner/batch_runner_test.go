package runner

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/Vhari-Maven/ai-image-generator/internal/config"
	"github.com/Vhari-Maven/ai-image-generator/pkg/backend"
	"github.com/Vhari-Maven/ai-image-generator/pkg/domain"
	"github.com/Vhari-Maven/ai-image-generator/pkg/publisher"
)

// stubBackend は指定したファイル名の集合だけを失敗させるテスト用バックエンドなのだ。
type stubBackend struct {
	failFiles map[string]bool
	cap       int

	mu          sync.Mutex
	inFlight    int
	maxObserved int
	calls       atomic.Int64
}

func (s *stubBackend) Name() string { return "stub" }

func (s *stubBackend) GenerateOne(ctx context.Context, p domain.PromptRecord, cfg backend.RequestConfig, count int) ([]domain.GeneratedImage, error) {
	s.calls.Add(1)
	s.mu.Lock()
	s.inFlight++
	if s.inFlight > s.maxObserved {
		s.maxObserved = s.inFlight
	}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.inFlight--
		s.mu.Unlock()
	}()

	if s.failFiles[p.Filename] {
		return nil, fmt.Errorf("生成に失敗したのだ: %s", p.Filename)
	}

	images := make([]domain.GeneratedImage, count)
	for i := range images {
		bmp := image.NewRGBA(image.Rect(0, 0, 2, 2))
		bmp.Set(0, 0, color.RGBA{R: 255, A: 255})
		images[i] = domain.GeneratedImage{Bitmap: bmp, Generator: "stub", Model: "stub-model"}
	}
	return images, nil
}

func (s *stubBackend) MaxWorkers(promptCount int) int {
	if promptCount < s.cap {
		return promptCount
	}
	return s.cap
}

func (s *stubBackend) TestConnection(ctx context.Context) bool { return true }

func stubResolve(p domain.PromptRecord) config.ResolvedConfig {
	return config.ResolvedConfig{}
}

func testPrompts(n int) []domain.PromptRecord {
	prompts := make([]domain.PromptRecord, n)
	for i := range prompts {
		prompts[i] = domain.PromptRecord{
			ID:       fmt.Sprintf("id-%d", i),
			Filename: fmt.Sprintf("img-%d.png", i),
			Prompt:   "a test scene",
			Category: domain.CategoryBackground,
		}
	}
	return prompts
}

func TestBatchRunnerRun(t *testing.T) {
	t.Run("一部が失敗しても全プロンプト分のエントリが揃うのだ", func(t *testing.T) {
		be := &stubBackend{cap: 8, failFiles: map[string]bool{"img-1.png": true, "img-3.png": true}}
		sink := publisher.NewSink(false, "test-batch")
		outputRoot := t.TempDir()
		r := NewBatchRunner(be, sink, stubResolve, 1, outputRoot, 0)

		results, err := r.Run(context.Background(), testPrompts(5))
		if err != nil {
			t.Fatalf("部分失敗はエラーにならないはずなのだ: %v", err)
		}
		if len(results) != 5 {
			t.Fatalf("5エントリ揃うはずなのだ: %d", len(results))
		}
		for name, res := range results {
			failed := be.failFiles[name]
			if failed && res.Succeeded() {
				t.Errorf("%s は失敗して空のはずなのだ: %v", name, res.Paths)
			}
			if !failed && !res.Succeeded() {
				t.Errorf("%s は成功してパスを持つはずなのだ", name)
			}
		}
	})

	t.Run("成功分は実際にカテゴリ別ディレクトリへ書かれるのだ", func(t *testing.T) {
		be := &stubBackend{cap: 8}
		sink := publisher.NewSink(false, "test-batch")
		outputRoot := t.TempDir()
		r := NewBatchRunner(be, sink, stubResolve, 1, outputRoot, 0)

		results, err := r.Run(context.Background(), testPrompts(3))
		if err != nil {
			t.Fatalf("失敗なのだ: %v", err)
		}
		for _, res := range results {
			if len(res.Paths) != 1 {
				t.Fatalf("1枚ずつのはずなのだ: %+v", res)
			}
			path := res.Paths[0]
			if !strings.Contains(path, filepath.Join(outputRoot, "backgrounds")) {
				t.Errorf("backgroundカテゴリは backgrounds/ 配下のはずなのだ: %s", path)
			}
			if _, err := os.Stat(path); err != nil {
				t.Errorf("ファイルが実在するはずなのだ: %v", err)
			}
		}
	})

	t.Run("複数枚指定では連番サフィックスが付くのだ", func(t *testing.T) {
		be := &stubBackend{cap: 8}
		sink := publisher.NewSink(false, "test-batch")
		outputRoot := t.TempDir()
		r := NewBatchRunner(be, sink, stubResolve, 3, outputRoot, 0)

		results, err := r.Run(context.Background(), testPrompts(1))
		if err != nil {
			t.Fatalf("失敗なのだ: %v", err)
		}
		res := results["img-0.png"]
		if len(res.Paths) != 3 {
			t.Fatalf("3枚のはずなのだ: %+v", res)
		}
		for i, path := range res.Paths {
			want := fmt.Sprintf("img-0_%03d.png", i+1)
			if filepath.Base(path) != want {
				t.Errorf("期待: %s, 実際: %s", want, filepath.Base(path))
			}
		}
	})

	t.Run("同時実行数はバックエンドの見積もりを超えないのだ", func(t *testing.T) {
		be := &stubBackend{cap: 2}
		sink := publisher.NewSink(false, "test-batch")
		r := NewBatchRunner(be, sink, stubResolve, 1, t.TempDir(), 0)

		if _, err := r.Run(context.Background(), testPrompts(6)); err != nil {
			t.Fatalf("失敗なのだ: %v", err)
		}
		if be.maxObserved > 2 {
			t.Errorf("同時実行は2を超えないはずなのだ: %d", be.maxObserved)
		}
		if be.calls.Load() != 6 {
			t.Errorf("全プロンプトが処理されるはずなのだ: %d", be.calls.Load())
		}
	})

	t.Run("カテゴリで絞った2件はワーカー2で backgrounds/ へ入るのだ", func(t *testing.T) {
		all := []domain.PromptRecord{
			{ID: "bg-1", Filename: "bg-1.png", Prompt: "p", Category: domain.CategoryBackground},
			{ID: "bg-2", Filename: "bg-2.png", Prompt: "p", Category: domain.CategoryBackground},
			{ID: "ch-1", Filename: "ch-1.png", Prompt: "p", Category: domain.CategoryCharacter},
		}
		filtered := domain.FilterByCategory(all, domain.CategoryBackground)

		be := &stubBackend{cap: 8}
		if got := be.MaxWorkers(len(filtered)); got != 2 {
			t.Fatalf("min(2,8)=2 のはずなのだ: %d", got)
		}

		outputRoot := t.TempDir()
		r := NewBatchRunner(be, publisher.NewSink(false, "test-batch"), stubResolve, 1, outputRoot, 0)
		results, err := r.Run(context.Background(), filtered)
		if err != nil {
			t.Fatalf("失敗なのだ: %v", err)
		}
		if len(results) != 2 {
			t.Fatalf("2エントリのはずなのだ: %d", len(results))
		}
		for _, res := range results {
			if !strings.Contains(res.Paths[0], filepath.Join(outputRoot, "backgrounds")) {
				t.Errorf("backgrounds/ 配下のはずなのだ: %s", res.Paths[0])
			}
		}
	})

	t.Run("事前キャンセルでは未着手分が結果から欠落するのだ", func(t *testing.T) {
		be := &stubBackend{cap: 8}
		sink := publisher.NewSink(false, "test-batch")
		r := NewBatchRunner(be, sink, stubResolve, 1, t.TempDir(), 0)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		results, err := r.Run(ctx, testPrompts(4))
		if err == nil {
			t.Error("キャンセルは ctx.Err() として報告されるはずなのだ")
		}
		if len(results) != 0 {
			t.Errorf("未着手プロンプトは結果に現れないはずなのだ: %v", results)
		}
	})

	t.Run("空のプロンプト列は空の結果なのだ", func(t *testing.T) {
		be := &stubBackend{cap: 8}
		sink := publisher.NewSink(false, "test-batch")
		r := NewBatchRunner(be, sink, stubResolve, 1, t.TempDir(), 0)

		results, err := r.Run(context.Background(), nil)
		if err != nil || len(results) != 0 {
			t.Errorf("空入力は空出力なのだ: %v, %v", results, err)
		}
	})
}
