package apiclient

import "sync"

// TokenStore はアクセストークンの保存先。
type TokenStore interface {
	AccessToken() string
	SetAccessToken(token string)
	Clear()
}

// MemoryTokenStore はメモリ上にアクセストークンを保持するTokenStore。
type MemoryTokenStore struct {
	mu    sync.RWMutex
	token string
}

var _ TokenStore = (*MemoryTokenStore)(nil)

// AccessToken は保持しているトークンを返す。未ログインの場合は空文字列。
func (s *MemoryTokenStore) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// SetAccessToken はトークンを置き換える。
func (s *MemoryTokenStore) SetAccessToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
}

// Clear はトークンを破棄する。
func (s *MemoryTokenStore) Clear() {
	s.SetAccessToken("")
}
