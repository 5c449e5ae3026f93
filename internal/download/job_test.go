package download

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/nogiblog/internal/model"
)

type mockDownloader struct {
	downloadFn func(ctx context.Context, urls []string, zipFilename string, saver ArchiveSaver, onProgress ProgressFunc) Result
}

func (m *mockDownloader) DownloadAllImages(ctx context.Context, urls []string, zipFilename string, saver ArchiveSaver, onProgress ProgressFunc) Result {
	return m.downloadFn(ctx, urls, zipFilename, saver, onProgress)
}

func succeedingDownloader() *mockDownloader {
	return &mockDownloader{downloadFn: func(ctx context.Context, urls []string, zipFilename string, saver ArchiveSaver, onProgress ProgressFunc) Result {
		for i := range urls {
			onProgress(model.NewDownloadProgress(len(urls), i+1, 0))
		}
		saver.Save(zipFilename, strings.NewReader("zipdata"))
		return Result{Success: true, Downloaded: len(urls)}
	}}
}

func TestJobManager_RunsToCompletion(t *testing.T) {
	var buf bytes.Buffer
	m := NewJobManager(succeedingDownloader(), 0, newTestLogger(&buf))

	status := m.Start(context.Background(), []string{"u1", "u2"}, "a.zip")
	if status.ID == "" || status.State != JobRunning || status.Progress.Total != 2 {
		t.Errorf("開始時の状態 = %+v", status)
	}
	m.Wait()

	got, ok := m.Status(status.ID)
	if !ok {
		t.Fatal("ジョブが見つからない")
	}
	if got.State != JobSucceeded || got.Result == nil || got.Result.Downloaded != 2 || got.FinishedAt == nil {
		t.Errorf("完了後の状態 = %+v", got)
	}
	if got.Progress.Percentage != 100 {
		t.Errorf("進捗 = %+v", got.Progress)
	}

	name, data, err := m.Archive(status.ID)
	if err != nil {
		t.Fatalf("Archive がエラーを返した: %v", err)
	}
	if name != "a.zip" || string(data) != "zipdata" {
		t.Errorf("Archive = %q, %q", name, data)
	}
}

func TestJobManager_ArchiveErrors(t *testing.T) {
	var buf bytes.Buffer
	release := make(chan struct{})
	d := &mockDownloader{downloadFn: func(ctx context.Context, urls []string, zipFilename string, saver ArchiveSaver, onProgress ProgressFunc) Result {
		<-release
		return Result{Success: false, Failed: len(urls)}
	}}
	m := NewJobManager(d, 0, newTestLogger(&buf))

	if _, _, err := m.Archive("nope"); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("err = %v, want ErrJobNotFound", err)
	}

	status := m.Start(context.Background(), []string{"u1"}, "a.zip")
	if _, _, err := m.Archive(status.ID); !errors.Is(err, ErrJobNotFinished) {
		t.Errorf("err = %v, want ErrJobNotFinished", err)
	}

	close(release)
	m.Wait()
	if _, _, err := m.Archive(status.ID); !errors.Is(err, ErrNoArchive) {
		t.Errorf("err = %v, want ErrNoArchive", err)
	}
	if got, _ := m.Status(status.ID); got.State != JobFailed {
		t.Errorf("State = %s, want failed", got.State)
	}
}

func TestJobManager_SubscribeReceivesFinalStatus(t *testing.T) {
	var buf bytes.Buffer
	release := make(chan struct{})
	d := &mockDownloader{downloadFn: func(ctx context.Context, urls []string, zipFilename string, saver ArchiveSaver, onProgress ProgressFunc) Result {
		<-release
		onProgress(model.NewDownloadProgress(1, 1, 0))
		saver.Save(zipFilename, strings.NewReader("z"))
		return Result{Success: true, Downloaded: 1}
	}}
	m := NewJobManager(d, 0, newTestLogger(&buf))
	status := m.Start(context.Background(), []string{"u1"}, "a.zip")

	ch, cancel, ok := m.Subscribe(status.ID)
	if !ok {
		t.Fatal("Subscribe が失敗した")
	}
	defer cancel()

	close(release)

	var last JobStatus
	timeout := time.After(2 * time.Second)
	for done := false; !done; {
		select {
		case s, open := <-ch:
			if !open {
				done = true
				break
			}
			last = s
		case <-timeout:
			t.Fatal("チャネルが閉じられなかった")
		}
	}
	if last.State != JobSucceeded || last.Progress.Percentage != 100 {
		t.Errorf("最終状態 = %+v", last)
	}

	// 完了済みジョブの購読は最終状態を1件返して閉じる
	ch2, _, ok := m.Subscribe(status.ID)
	if !ok {
		t.Fatal("完了済みジョブの Subscribe が失敗した")
	}
	s := <-ch2
	if s.State != JobSucceeded {
		t.Errorf("状態 = %+v", s)
	}
	if _, open := <-ch2; open {
		t.Error("完了済みジョブのチャネルが閉じられていない")
	}

	if _, _, ok := m.Subscribe("nope"); ok {
		t.Error("存在しないジョブの Subscribe が成功した")
	}
}

func TestJobManager_CancelSubscription(t *testing.T) {
	var buf bytes.Buffer
	release := make(chan struct{})
	d := &mockDownloader{downloadFn: func(ctx context.Context, urls []string, zipFilename string, saver ArchiveSaver, onProgress ProgressFunc) Result {
		<-release
		return Result{}
	}}
	m := NewJobManager(d, 0, newTestLogger(&buf))
	status := m.Start(context.Background(), []string{"u1"}, "a.zip")

	ch, cancel, _ := m.Subscribe(status.ID)
	<-ch
	cancel()
	cancel()
	if _, open := <-ch; open {
		t.Error("解除後もチャネルが開いている")
	}

	close(release)
	m.Wait()
}

func TestJobManager_Prune(t *testing.T) {
	var buf bytes.Buffer
	m := NewJobManager(succeedingDownloader(), 10*time.Minute, newTestLogger(&buf))
	base := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return base }

	status := m.Start(context.Background(), []string{"u1"}, "a.zip")
	m.Wait()

	if n := m.Prune(); n != 0 {
		t.Errorf("保持期間内に削除された: %d", n)
	}

	m.now = func() time.Time { return base.Add(11 * time.Minute) }
	if n := m.Prune(); n != 1 {
		t.Errorf("削除件数 = %d, want 1", n)
	}
	if _, ok := m.Status(status.ID); ok {
		t.Error("削除後もジョブが残っている")
	}
}
