package loader

import (
	"context"
	"sync"
	"time"

	"github.com/hitoshi/nogiblog/internal/blog"
	"github.com/hitoshi/nogiblog/internal/model"
)

// dataCacheBlogCount はDataCacheが取得する記事数。
const dataCacheBlogCount = 200

// DataSnapshot はDataCacheの内容。
type DataSnapshot struct {
	Blogs           []model.BlogPost `json:"blogs"`
	Members         []model.Member   `json:"members"`
	Generations     []string         `json:"generations"`
	Loading         bool             `json:"loading"`
	HasFetched      bool             `json:"has_fetched"`
	LastFetchedAt   *time.Time       `json:"last_fetched_at"`
	CacheAgeMinutes *int             `json:"cache_age_minutes"`
}

// DataCache はプロセス全体で共有する記事・メンバーのキャッシュ。
// 同梱データで初期化し、ライブデータの取得はプロセス中1回だけ行う。
type DataCache struct {
	blogs   BlogSource
	members MemberSource
	now     func() time.Time

	// loadMu はライブ取得を直列化する。
	loadMu sync.Mutex

	mu          sync.RWMutex
	blogList    []model.BlogPost
	memberList  []model.Member
	generations []string
	fetchedAt   time.Time
	hasFetched  bool
	loading     bool
}

// NewDataCache は同梱データで初期化したDataCacheを生成する。
func NewDataCache(blogs BlogSource, members MemberSource) *DataCache {
	return &DataCache{
		blogs:       blogs,
		members:     members,
		now:         time.Now,
		blogList:    blogs.StaticBlogs(),
		memberList:  members.StaticMembers(),
		generations: []string{},
	}
}

// Fetch はまだ取得していない場合にのみライブデータを取得する。
// 取得に失敗した場合はキャッシュの内容を維持してエラーを返す。
func (c *DataCache) Fetch(ctx context.Context) error {
	c.loadMu.Lock()
	defer c.loadMu.Unlock()

	c.mu.RLock()
	fetched := c.hasFetched
	c.mu.RUnlock()
	if fetched {
		return nil
	}
	return c.load(ctx)
}

// Refresh は取得済みかどうかに関係なくライブデータを取得し直す。
func (c *DataCache) Refresh(ctx context.Context) error {
	c.loadMu.Lock()
	defer c.loadMu.Unlock()
	return c.load(ctx)
}

func (c *DataCache) load(ctx context.Context) error {
	c.setLoading(true)
	defer c.setLoading(false)

	var (
		wg                    sync.WaitGroup
		blogs                 []model.BlogPost
		members               []model.Member
		gens                  []string
		blogErr, memErr, gErr error
	)
	wg.Add(3)
	go func() {
		defer wg.Done()
		blogs, blogErr = c.blogs.FetchBlogs(ctx, blog.FetchOptions{Count: dataCacheBlogCount})
	}()
	go func() {
		defer wg.Done()
		members, memErr = c.members.FetchActiveMembers(ctx)
	}()
	go func() {
		defer wg.Done()
		gens, gErr = c.members.FetchGenerations(ctx)
	}()
	wg.Wait()

	for _, err := range []error{blogErr, memErr, gErr} {
		if err != nil {
			return err
		}
	}

	c.mu.Lock()
	c.blogList = blogs
	c.memberList = members
	c.generations = gens
	c.fetchedAt = c.now()
	c.hasFetched = true
	c.mu.Unlock()
	return nil
}

func (c *DataCache) setLoading(v bool) {
	c.mu.Lock()
	c.loading = v
	c.mu.Unlock()
}

// CacheAge は最後にライブ取得してからの経過時間を返す。未取得の場合はfalse。
func (c *DataCache) CacheAge() (time.Duration, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.fetchedAt.IsZero() {
		return 0, false
	}
	return c.now().Sub(c.fetchedAt), true
}

// Snapshot はキャッシュの内容のコピーを返す。
func (c *DataCache) Snapshot() DataSnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := DataSnapshot{
		Blogs:       append([]model.BlogPost{}, c.blogList...),
		Members:     append([]model.Member{}, c.memberList...),
		Generations: append([]string{}, c.generations...),
		Loading:     c.loading,
		HasFetched:  c.hasFetched,
	}
	if !c.fetchedAt.IsZero() {
		at := c.fetchedAt
		minutes := int(c.now().Sub(at) / time.Minute)
		s.LastFetchedAt = &at
		s.CacheAgeMinutes = &minutes
	}
	return s
}
