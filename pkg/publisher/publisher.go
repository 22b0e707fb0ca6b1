package publisher

import (
	"bytes"
	"fmt"
	"image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/Vhari-Maven/ai-image-generator/pkg/domain"
)

// Sink は生成画像の永続化を担います。正準ビットマップをPNGへ再エンコードし、
// 生成メタデータを埋め込み、必要なら既存ファイルをバックアップしてから書き込みます。
type Sink struct {
	createBackups bool
	batchID       string
	now           func() time.Time // テストで時刻を固定するためのフック
}

// NewSink creates and returns a new Sink.
func NewSink(createBackups bool, batchID string) *Sink {
	return &Sink{
		createBackups: createBackups,
		batchID:       batchID,
		now:           time.Now,
	}
}

// Save は1枚の画像をメタデータ付きPNGとして destPath へ書き出すのだ。
// 中間ディレクトリは必要に応じて作成し、上書き時はバックアップ設定に従うのだ。
func (s *Sink) Save(img domain.GeneratedImage, destPath, promptText, description string) error {
	if _, err := os.Stat(destPath); err == nil && s.createBackups {
		if err := s.backupExisting(destPath); err != nil {
			return fmt.Errorf("既存ファイルのバックアップに失敗しました: %w", err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return fmt.Errorf("出力ディレクトリの作成に失敗しました: %w", err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img.Bitmap); err != nil {
		return fmt.Errorf("PNGエンコードに失敗しました: %w", err)
	}

	encoded, err := embedTextChunks(buf.Bytes(), s.metadataFields(img, promptText, description))
	if err != nil {
		return fmt.Errorf("メタデータの埋め込みに失敗しました: %w", err)
	}

	if err := os.WriteFile(destPath, encoded, 0o644); err != nil {
		return fmt.Errorf("画像の書き込みに失敗しました %s: %w", destPath, err)
	}
	return nil
}

// metadataFields は固定フィールドとサービス固有フィールドを合成するのだ。
// 値が空のフィールドは埋め込まず、省略するのだ。
func (s *Sink) metadataFields(img domain.GeneratedImage, promptText, description string) []textField {
	fields := []textField{
		{"prompt", promptText},
		{"description", description},
		{"generator", img.Generator},
		{"model", img.Model},
		{"generated_at", s.now().Format(time.RFC3339)},
		{"batch_id", s.batchID},
	}
	for _, key := range sortedKeys(img.Extra) {
		fields = append(fields, textField{key, img.Extra[key]})
	}

	out := fields[:0]
	for _, f := range fields {
		if f.Value != "" {
			out = append(out, f)
		}
	}
	return out
}

// backupExisting は既存ファイルをタイムスタンプ付きの名前で退避するのだ。
// 退避先はリポジトリルート配下の assets/drafts（.git が見つからなければカレントディレクトリ）なのだ。
func (s *Sink) backupExisting(destPath string) error {
	root := findRepoRoot(destPath)
	backupDir := filepath.Join(root, "assets", "drafts")
	if err := os.MkdirAll(backupDir, 0o755); err != nil {
		return err
	}

	base := filepath.Base(destPath)
	ext := filepath.Ext(base)
	stem := base[:len(base)-len(ext)]
	stamp := s.now().Format("20060102_150405")
	backupPath := filepath.Join(backupDir, fmt.Sprintf("%s_%s_backup%s", stem, stamp, ext))

	if err := copyFile(destPath, backupPath); err != nil {
		return err
	}
	slog.Info("既存ファイルをバックアップしたのだ", "from", destPath, "to", backupPath)
	return nil
}

// findRepoRoot は .git ディレクトリを探してリポジトリルートを特定します。
// ファイルシステムのルートまで見つからなければカレントディレクトリへフォールバックします。
func findRepoRoot(path string) string {
	dir, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		dir = filepath.Dir(path)
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	if cwd, err := os.Getwd(); err == nil {
		return cwd
	}
	return "."
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
