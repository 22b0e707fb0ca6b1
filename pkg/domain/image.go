package domain

import (
	"bytes"
	"fmt"
	"image"

	// 各バックエンドが返しうるフォーマットのデコーダを登録するのだ。
	_ "image/jpeg"
	_ "image/png"
)

// GeneratedImage はバックエンドから返ってきた画像の正準表現です。
// ベンダーごとのレスポンス形状（生バイト列、base64、SDKラッパー）は
// アダプター境界で即座にデコードされ、シンクはこの型だけを受け取ります。
type GeneratedImage struct {
	Bitmap    image.Image
	Generator string            // 例: "Google GenAI"
	Model     string            // 生成に使ったモデル名
	Extra     map[string]string // サービス固有の追記メタデータ（size/quality/style/seed など）
}

// DecodeImage は生のエンコード済みバイト列を正準のビットマップへデコードします。
func DecodeImage(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("画像データのデコードに失敗しました: %w", err)
	}
	return img, nil
}
