package download

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/nogiblog/internal/model"
)

// DefaultJobRetention は完了したジョブを保持する期間。
const DefaultJobRetention = 15 * time.Minute

var (
	// ErrJobNotFound はジョブが存在しないことを表す。
	ErrJobNotFound = errors.New("download job not found")
	// ErrJobNotFinished はジョブが実行中であることを表す。
	ErrJobNotFinished = errors.New("download job not finished")
	// ErrNoArchive はジョブが完了したがZIPが無いことを表す。
	ErrNoArchive = errors.New("download job has no archive")
)

// JobState はダウンロードジョブの状態。
type JobState string

// ジョブの状態
const (
	JobRunning   JobState = "running"
	JobSucceeded JobState = "succeeded"
	JobFailed    JobState = "failed"
)

// JobStatus はダウンロードジョブの状態のスナップショット。
type JobStatus struct {
	ID          string                 `json:"id"`
	State       JobState               `json:"state"`
	ZipFilename string                 `json:"zip_filename"`
	Progress    model.DownloadProgress `json:"progress"`
	Result      *Result                `json:"result,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
	FinishedAt  *time.Time             `json:"finished_at,omitempty"`
}

// Done はジョブが完了しているかを返す。
func (s JobStatus) Done() bool {
	return s.State != JobRunning
}

// Downloader は一括ダウンロードの実行インターフェース。Pipelineが満たす。
type Downloader interface {
	DownloadAllImages(ctx context.Context, urls []string, zipFilename string, saver ArchiveSaver, onProgress ProgressFunc) Result
}

type job struct {
	status      JobStatus
	saver       *MemorySaver
	subscribers map[int]chan JobStatus
	nextSub     int
}

// JobManager は非同期のダウンロードジョブを管理する。
// 進捗は購読者へ配信し、完了したZIPは保持期間が過ぎるまでメモリに残す。
type JobManager struct {
	downloader Downloader
	logger     *slog.Logger
	retention  time.Duration
	now        func() time.Time

	mu   sync.Mutex
	jobs map[string]*job
	wg   sync.WaitGroup
}

// NewJobManager はJobManagerの新しいインスタンスを生成する。
// retentionが0以下の場合はDefaultJobRetention。
func NewJobManager(downloader Downloader, retention time.Duration, logger *slog.Logger) *JobManager {
	if retention <= 0 {
		retention = DefaultJobRetention
	}
	return &JobManager{
		downloader: downloader,
		logger:     logger,
		retention:  retention,
		now:        time.Now,
		jobs:       make(map[string]*job),
	}
}

// Start はジョブを作成してバックグラウンドで実行する。
// ctxはジョブの実行に使われるため、リクエストではなくアプリケーションのコンテキストを渡す。
func (m *JobManager) Start(ctx context.Context, urls []string, zipFilename string) JobStatus {
	j := &job{
		status: JobStatus{
			ID:          uuid.New().String(),
			State:       JobRunning,
			ZipFilename: zipFilename,
			Progress:    model.NewDownloadProgress(len(urls), 0, 0),
			CreatedAt:   m.now(),
		},
		saver:       &MemorySaver{},
		subscribers: make(map[int]chan JobStatus),
	}

	m.mu.Lock()
	m.jobs[j.status.ID] = j
	status := j.status
	m.mu.Unlock()

	m.logger.Info("ダウンロードジョブを開始しました",
		slog.String("job_id", status.ID),
		slog.Int("total", len(urls)),
	)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		result := m.downloader.DownloadAllImages(ctx, urls, zipFilename, j.saver, func(p model.DownloadProgress) {
			m.update(j, func(s *JobStatus) { s.Progress = p })
		})
		m.finish(j, result)
	}()

	return status
}

func (m *JobManager) update(j *job, fn func(s *JobStatus)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(&j.status)
	for _, ch := range j.subscribers {
		offer(ch, j.status)
	}
}

func (m *JobManager) finish(j *job, result Result) {
	m.mu.Lock()
	defer m.mu.Unlock()

	finished := m.now()
	j.status.Result = &result
	j.status.FinishedAt = &finished
	if result.Success {
		j.status.State = JobSucceeded
	} else {
		j.status.State = JobFailed
	}
	for id, ch := range j.subscribers {
		offer(ch, j.status)
		close(ch)
		delete(j.subscribers, id)
	}

	m.logger.Info("ダウンロードジョブが完了しました",
		slog.String("job_id", j.status.ID),
		slog.String("state", string(j.status.State)),
		slog.Int("downloaded", result.Downloaded),
		slog.Int("failed", result.Failed),
	)
}

// offer は最新の状態のみを保持するよう、未受信の古い状態を捨てて送信する。
func offer(ch chan JobStatus, s JobStatus) {
	select {
	case ch <- s:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- s:
	default:
	}
}

// Status はジョブの状態を返す。
func (m *JobManager) Status(id string) (JobStatus, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return JobStatus{}, false
	}
	return j.status, true
}

// Subscribe はジョブの状態変化を受け取るチャネルを返す。
// チャネルには常に最新の状態が届き、ジョブ完了時に最終状態を送ってから閉じられる。
// 戻り値の関数で購読を解除する。
func (m *JobManager) Subscribe(id string) (<-chan JobStatus, func(), bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[id]
	if !ok {
		return nil, func() {}, false
	}

	ch := make(chan JobStatus, 1)
	ch <- j.status
	if j.status.Done() {
		close(ch)
		return ch, func() {}, true
	}

	subID := j.nextSub
	j.nextSub++
	j.subscribers[subID] = ch

	cancel := func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if c, ok := j.subscribers[subID]; ok {
			close(c)
			delete(j.subscribers, subID)
		}
	}
	return ch, cancel, true
}

// Archive は完了したジョブのZIPを返す。
func (m *JobManager) Archive(id string) (string, []byte, error) {
	m.mu.Lock()
	j, ok := m.jobs[id]
	if !ok {
		m.mu.Unlock()
		return "", nil, ErrJobNotFound
	}
	status, saver := j.status, j.saver
	m.mu.Unlock()

	if !status.Done() {
		return "", nil, ErrJobNotFinished
	}
	name, data := saver.Archive()
	if status.State != JobSucceeded || len(data) == 0 {
		return "", nil, ErrNoArchive
	}
	return name, data, nil
}

// Prune は保持期間を過ぎた完了済みジョブを削除し、削除件数を返す。
func (m *JobManager) Prune() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().Add(-m.retention)
	removed := 0
	for id, j := range m.jobs {
		if j.status.FinishedAt != nil && j.status.FinishedAt.Before(cutoff) {
			delete(m.jobs, id)
			removed++
		}
	}
	return removed
}

// Wait は実行中のジョブがすべて終わるまで待つ。
func (m *JobManager) Wait() {
	m.wg.Wait()
}
