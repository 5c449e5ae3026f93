package jsonp

import (
	"context"
	"sync"
)

// fifoLock は深さ1のFIFOロック。
// 呼び出し順に完了通知チャネルを連結し、各呼び出しは直前の呼び出しが
// 成功・失敗を問わず終了するまで待機する。
type fifoLock struct {
	mu   sync.Mutex
	tail chan struct{} // 最後に並んだ呼び出しの完了通知
}

// acquire は順番が来るまで待機し、解放関数を返す。
// 待機中にctxが終了した場合はエラーを返すが、列上の位置は直前の呼び出しの
// 終了後に解放されるため、後続の順序は崩れない。
func (l *fifoLock) acquire(ctx context.Context) (func(), error) {
	done := make(chan struct{})

	l.mu.Lock()
	prev := l.tail
	l.tail = done
	l.mu.Unlock()

	var once sync.Once
	release := func() {
		once.Do(func() { close(done) })
	}

	if prev == nil {
		return release, nil
	}

	select {
	case <-prev:
		return release, nil
	case <-ctx.Done():
		go func() {
			<-prev
			release()
		}()
		return nil, ctx.Err()
	}
}
