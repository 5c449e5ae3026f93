package download

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"net/http"
	"sync"
)

// ArchiveSaver は生成したZIPの保存先。
type ArchiveSaver interface {
	Save(name string, r io.Reader) error
}

// MemorySaver はZIPをメモリ上に保持する。ダウンロードジョブで使用する。
type MemorySaver struct {
	mu   sync.Mutex
	name string
	data []byte
}

// Save はZIPを読み込んで保持する。
func (s *MemorySaver) Save(name string, r io.Reader) error {
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return fmt.Errorf("アーカイブの読み込みに失敗しました: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.name = name
	s.data = buf.Bytes()
	return nil
}

// Archive は保持しているファイル名と内容を返す。
func (s *MemorySaver) Archive() (string, []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.name, s.data
}

// WriteAttachmentHeaders は添付ファイルのレスポンスヘッダーを設定する。
// 日本語のファイル名はRFC 2231形式でエンコードされる。
func WriteAttachmentHeaders(w http.ResponseWriter, name, contentType string) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
}
