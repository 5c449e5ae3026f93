package download

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/nogiblog/internal/model"
)

type mockSharer struct {
	canShareFn func(files []ShareFile) bool
	shareFn    func(ctx context.Context, title string, files []ShareFile) error
	shared     []ShareFile
}

func (m *mockSharer) CanShare(files []ShareFile) bool {
	if m.canShareFn == nil {
		return true
	}
	return m.canShareFn(files)
}

func (m *mockSharer) Share(ctx context.Context, title string, files []ShareFile) error {
	m.shared = files
	if m.shareFn == nil {
		return nil
	}
	return m.shareFn(ctx, title, files)
}

func TestShareImages_Success(t *testing.T) {
	ts := newImageServer(t)
	var buf bytes.Buffer
	p := NewPipeline(ts.Client(), nil, newTestLogger(&buf), PipelineConfig{}, nil)
	sharer := &mockSharer{}

	var progress []model.DownloadProgress
	result := p.ShareImages(context.Background(), []string{ts.URL + "/a.jpg", ts.URL + "/missing/x.jpg", ts.URL + "/b.jpg"}, "タイトル", sharer, func(pr model.DownloadProgress) {
		progress = append(progress, pr)
	})

	if result != (ShareResult{Success: true, Shared: 2, Failed: 1}) {
		t.Errorf("ShareResult = %+v", result)
	}
	if len(sharer.shared) != 2 || sharer.shared[0].Name != "1_a.jpg" || sharer.shared[1].Name != "3_b.jpg" {
		t.Errorf("共有ファイル = %+v", sharer.shared)
	}
	if sharer.shared[0].ContentType != "image/jpeg" {
		t.Errorf("ContentType = %q", sharer.shared[0].ContentType)
	}
	if len(progress) != 4 || progress[3].Percentage != 100 {
		t.Errorf("進捗 = %+v", progress)
	}
}

func TestShareImages_CancelIsSuccess(t *testing.T) {
	ts := newImageServer(t)
	var buf bytes.Buffer
	p := NewPipeline(ts.Client(), nil, newTestLogger(&buf), PipelineConfig{}, nil)
	sharer := &mockSharer{shareFn: func(ctx context.Context, title string, files []ShareFile) error {
		return ErrShareCanceled
	}}

	result := p.ShareImages(context.Background(), []string{ts.URL + "/a.jpg"}, "t", sharer, nil)
	if !result.Success || result.Shared != 1 {
		t.Errorf("取り消しが成功として扱われなかった: %+v", result)
	}
}

func TestShareImages_Failures(t *testing.T) {
	ts := newImageServer(t)
	var buf bytes.Buffer
	p := NewPipeline(ts.Client(), nil, newTestLogger(&buf), PipelineConfig{}, nil)

	tests := []struct {
		name   string
		urls   []string
		sharer *mockSharer
		want   ShareResult
	}{
		{
			name:   "共有に失敗",
			urls:   []string{ts.URL + "/a.jpg"},
			sharer: &mockSharer{shareFn: func(context.Context, string, []ShareFile) error { return errors.New("boom") }},
			want:   ShareResult{Success: false, Shared: 1, Failed: 0},
		},
		{
			name:   "1枚も取得できない",
			urls:   []string{ts.URL + "/missing/a.jpg", ts.URL + "/missing/b.jpg"},
			sharer: &mockSharer{},
			want:   ShareResult{Success: false, Shared: 0, Failed: 2},
		},
		{
			name:   "複数ファイルの共有に非対応",
			urls:   []string{ts.URL + "/a.jpg"},
			sharer: &mockSharer{canShareFn: func([]ShareFile) bool { return false }},
			want:   ShareResult{Success: false, Shared: 1, Failed: 0},
		},
		{
			name:   "空の入力",
			urls:   nil,
			sharer: &mockSharer{},
			want:   ShareResult{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := p.ShareImages(context.Background(), tt.urls, "t", tt.sharer, nil); got != tt.want {
				t.Errorf("ShareResult = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestMultipartSharer_WritesParts(t *testing.T) {
	rec := httptest.NewRecorder()
	sharer := NewMultipartSharer(rec)

	files := []ShareFile{
		{Name: "1_a.jpg", ContentType: "image/jpeg", Data: []byte("AAA")},
		{Name: "2_b.png", ContentType: "image/png", Data: []byte("BBB")},
	}
	if !sharer.CanShare(files) || sharer.CanShare(nil) {
		t.Fatal("CanShare の結果が不正")
	}
	if sharer.Started() {
		t.Fatal("Share前にStartedがtrue")
	}
	if err := sharer.Share(context.Background(), "記事タイトル", files); err != nil {
		t.Fatalf("Share がエラーを返した: %v", err)
	}
	if !sharer.Started() {
		t.Error("Share後にStartedがfalse")
	}

	mediaType, params, err := mime.ParseMediaType(rec.Header().Get("Content-Type"))
	if err != nil || mediaType != "multipart/mixed" {
		t.Fatalf("Content-Type = %q", rec.Header().Get("Content-Type"))
	}

	mr := multipart.NewReader(rec.Body, params["boundary"])
	for i, want := range files {
		part, err := mr.NextPart()
		if err != nil {
			t.Fatalf("パート%d が読めない: %v", i, err)
		}
		if part.FileName() != want.Name {
			t.Errorf("ファイル名 = %q, want %q", part.FileName(), want.Name)
		}
		data, _ := io.ReadAll(part)
		if string(data) != string(want.Data) {
			t.Errorf("内容 = %q", data)
		}
	}
	if _, err := mr.NextPart(); err != io.EOF {
		t.Errorf("余分なパートがある: %v", err)
	}
}

type brokenWriter struct {
	*httptest.ResponseRecorder
}

func (w brokenWriter) Write(p []byte) (int, error) {
	return 0, errors.New("connection reset")
}

func TestMultipartSharer_DisconnectIsCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sharer := NewMultipartSharer(brokenWriter{httptest.NewRecorder()})
	err := sharer.Share(ctx, "", []ShareFile{{Name: "a.jpg", ContentType: "image/jpeg", Data: []byte("x")}})
	if !errors.Is(err, ErrShareCanceled) {
		t.Errorf("err = %v, want ErrShareCanceled", err)
	}

	err = NewMultipartSharer(brokenWriter{httptest.NewRecorder()}).Share(context.Background(), "", []ShareFile{{Name: "a.jpg", Data: []byte("x")}})
	if err == nil || errors.Is(err, ErrShareCanceled) {
		t.Errorf("err = %v, want 送信エラー", err)
	}
}
