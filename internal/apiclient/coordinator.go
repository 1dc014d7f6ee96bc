package apiclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// ErrSessionExpired はリフレッシュに失敗し、再ログインが必要になったことを表す。
var ErrSessionExpired = errors.New("session expired")

// RefreshFunc はリフレッシュCookieを新しいアクセストークンに交換する。
type RefreshFunc func(ctx context.Context) (string, error)

type refreshResult struct {
	token string
	err   error
}

type waiter struct {
	seq uint64
	ch  chan refreshResult
}

// RefreshCoordinator は同時に発生した401に対してリフレッシュを1回だけ実行する。
// 実行中に到着した呼び出しは待機列に並び、完了後に登録順で同じ結果を受け取る。
// リフレッシュに失敗するとResetが呼ばれるまで期限切れ状態になり、以後はリフレッシュせずに失敗を返す。
type RefreshCoordinator struct {
	store     TokenStore
	refresh   RefreshFunc
	onExpired func()

	mu       sync.Mutex
	inFlight bool
	expired  bool
	nextSeq  uint64
	waiters  []waiter

	// delivered はテスト用のフック。待機者に結果を渡す直前に登録番号で呼ばれる。
	delivered func(seq uint64)
}

// NewRefreshCoordinator はRefreshCoordinatorを生成する。
// onExpiredはリフレッシュ失敗時に1回呼ばれる。nilでもよい。
func NewRefreshCoordinator(store TokenStore, refresh RefreshFunc, onExpired func()) *RefreshCoordinator {
	return &RefreshCoordinator{
		store:     store,
		refresh:   refresh,
		onExpired: onExpired,
	}
}

// AwaitToken はstaleTokenに代わるアクセストークンを返す。
//
// 別の呼び出しで既にトークンが更新済みの場合はリフレッシュせずにそれを返す。
// 期限切れ状態ではErrSessionExpiredを即座に返す。
// リフレッシュ中であれば完了を待ち、そうでなければ新たにリフレッシュを開始する。
// リフレッシュ自体は呼び出し元のctxがキャンセルされても最後まで実行される。
func (c *RefreshCoordinator) AwaitToken(ctx context.Context, staleToken string) (string, error) {
	c.mu.Lock()
	if current := c.store.AccessToken(); !c.inFlight && current != "" && current != staleToken {
		c.mu.Unlock()
		return current, nil
	}
	if !c.inFlight && c.expired {
		c.mu.Unlock()
		return "", ErrSessionExpired
	}

	ch := make(chan refreshResult, 1)
	c.nextSeq++
	c.waiters = append(c.waiters, waiter{seq: c.nextSeq, ch: ch})
	if !c.inFlight {
		c.inFlight = true
		go c.run(context.WithoutCancel(ctx))
	}
	c.mu.Unlock()

	select {
	case res := <-ch:
		return res.token, res.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Waiting は結果を待っている呼び出しの数を返す。
func (c *RefreshCoordinator) Waiting() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.waiters)
}

// Reset は期限切れ状態を解除する。ログインで新しいトークンを得たときに呼ぶ。
func (c *RefreshCoordinator) Reset() {
	c.mu.Lock()
	c.expired = false
	c.mu.Unlock()
}

// Expired は直近のリフレッシュが失敗し、再ログイン待ちであるかを返す。
func (c *RefreshCoordinator) Expired() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.expired
}

// run はリフレッシュを実行し、待機列を登録順に解放する。
func (c *RefreshCoordinator) run(ctx context.Context) {
	token, err := c.refresh(ctx)

	c.mu.Lock()
	if err == nil {
		c.store.SetAccessToken(token)
	} else {
		c.store.Clear()
	}
	c.expired = err != nil
	waiters := c.waiters
	c.waiters = nil
	c.inFlight = false
	c.mu.Unlock()

	res := refreshResult{token: token}
	if err != nil {
		slog.Warn("token refresh failed", slog.String("error", err.Error()))
		res = refreshResult{err: fmt.Errorf("%w: %w", ErrSessionExpired, err)}
		if c.onExpired != nil {
			c.onExpired()
		}
	}

	for _, w := range waiters {
		if c.delivered != nil {
			c.delivered(w.seq)
		}
		w.ch <- res
	}
}
