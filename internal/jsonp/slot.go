package jsonp

import (
	"fmt"
	"sync"
)

// callbackSlot はJSONPコールバックの設置場所。
// APIがコールバック名を固定しているため、同時に1つしか設置できない。
type callbackSlot struct {
	mu       sync.Mutex
	name     string
	fn       func(payload []byte)
	installs int
	removals int
}

// install はコールバックを設置する。既に設置済みの場合はErrCallbackCollisionを返す。
func (s *callbackSlot) install(name string, fn func(payload []byte)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.fn != nil {
		return fmt.Errorf("%w: %s", ErrCallbackCollision, s.name)
	}
	s.name = name
	s.fn = fn
	s.installs++
	return nil
}

// remove は設置済みのコールバックを取り除く。名前が一致しない場合は何もしない。
func (s *callbackSlot) remove(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.fn == nil || s.name != name {
		return
	}
	s.name = ""
	s.fn = nil
	s.removals++
}

// dispatch は名前が一致するコールバックにペイロードを渡す。
// 該当するコールバックが無い場合はfalseを返す。
func (s *callbackSlot) dispatch(name string, payload []byte) bool {
	s.mu.Lock()
	fn := s.fn
	installed := s.name
	s.mu.Unlock()

	if fn == nil || installed != name {
		return false
	}
	fn(payload)
	return true
}

// installed はコールバックが設置中かどうかを返す。
func (s *callbackSlot) installed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fn != nil
}

// counts は設置回数と除去回数を返す。
func (s *callbackSlot) counts() (installs, removals int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.installs, s.removals
}
