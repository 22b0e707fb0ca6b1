package publisher

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"sort"
)

// textField はPNGに埋め込む1つのキーワード/値の組です。埋め込み順を保ちます。
type textField struct {
	Keyword string
	Value   string
}

var pngSignature = []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}

// embedTextChunks はエンコード済みPNGの IEND の直前に iTXt チャンクを挿入するのだ。
// 標準ライブラリの image/png はテキストチャンクを書けないため、ここで直接組み立てるのだ。
// iTXt を使うのはプロンプト本文にLatin-1外の文字が含まれうるためなのだ。
func embedTextChunks(data []byte, fields []textField) ([]byte, error) {
	if !bytes.HasPrefix(data, pngSignature) {
		return nil, fmt.Errorf("PNGシグネチャがありません")
	}

	iend, err := findIENDOffset(data)
	if err != nil {
		return nil, err
	}

	var out bytes.Buffer
	out.Grow(len(data) + 64*len(fields))
	out.Write(data[:iend])
	for _, f := range fields {
		writeITXtChunk(&out, f.Keyword, f.Value)
	}
	out.Write(data[iend:])
	return out.Bytes(), nil
}

// findIENDOffset はチャンク列を走査して IEND チャンクの先頭位置を返します。
func findIENDOffset(data []byte) (int, error) {
	off := len(pngSignature)
	for off+12 <= len(data) {
		length := int(binary.BigEndian.Uint32(data[off : off+4]))
		chunkType := string(data[off+4 : off+8])
		if chunkType == "IEND" {
			return off, nil
		}
		off += 12 + length
	}
	return 0, fmt.Errorf("IENDチャンクが見つかりません")
}

// writeITXtChunk は非圧縮の iTXt チャンクを1つ書き出します。
// データ部: keyword \0 compressionFlag(0) compressionMethod(0) languageTag \0 translatedKeyword \0 text
func writeITXtChunk(out *bytes.Buffer, keyword, text string) {
	var payload bytes.Buffer
	payload.WriteString(keyword)
	payload.WriteByte(0) // keyword 終端
	payload.WriteByte(0) // compression flag: 非圧縮
	payload.WriteByte(0) // compression method
	payload.WriteByte(0) // language tag (空) 終端
	payload.WriteByte(0) // translated keyword (空) 終端
	payload.WriteString(text)

	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(payload.Len()))
	out.Write(lenBuf[:])

	chunk := append([]byte("iTXt"), payload.Bytes()...)
	out.Write(chunk)

	var crcBuf [4]byte
	binary.BigEndian.PutUint32(crcBuf[:], crc32.ChecksumIEEE(chunk))
	out.Write(crcBuf[:])
}

// ExtractTextChunks は埋め込み済みの iTXt チャンクを読み戻します。
// 往復確認のテストと診断用で、保存経路では使いません。
func ExtractTextChunks(data []byte) (map[string]string, error) {
	if !bytes.HasPrefix(data, pngSignature) {
		return nil, fmt.Errorf("PNGシグネチャがありません")
	}

	fields := make(map[string]string)
	off := len(pngSignature)
	for off+12 <= len(data) {
		length := int(binary.BigEndian.Uint32(data[off : off+4]))
		chunkType := string(data[off+4 : off+8])
		if chunkType == "IEND" {
			break
		}
		if chunkType == "iTXt" && off+8+length <= len(data) {
			payload := data[off+8 : off+8+length]
			if kw, text, ok := parseITXt(payload); ok {
				fields[kw] = text
			}
		}
		off += 12 + length
	}
	return fields, nil
}

func parseITXt(payload []byte) (keyword, text string, ok bool) {
	parts := bytes.SplitN(payload, []byte{0}, 2)
	if len(parts) != 2 || len(parts[1]) < 4 {
		return "", "", false
	}
	keyword = string(parts[0])
	rest := parts[1][2:] // compression flag + method を読み飛ばす
	// language tag と translated keyword の2つのNUL終端を読み飛ばす
	for i := 0; i < 2; i++ {
		idx := bytes.IndexByte(rest, 0)
		if idx < 0 {
			return "", "", false
		}
		rest = rest[idx+1:]
	}
	return keyword, string(rest), true
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
