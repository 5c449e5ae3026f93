package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ストレージドライバー
const (
	StorageDriverPostgres = "postgres"
	StorageDriverSQLite   = "sqlite"
	StorageDriverMemory   = "memory"
)

// Config はアプリケーション全体の設定を保持する。
// 起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Server
	ServerPort        string
	CORSAllowedOrigin string
	RateLimitGeneral  int

	// Logging
	LogLevel string

	// Storage
	StorageDriver string
	DatabaseURL   string
	SQLitePath    string

	// Upstream API
	APIBaseURL          string
	JSONPTimeout        time.Duration
	CommentJSONPTimeout time.Duration
	APIInterval         time.Duration

	// Comment detection
	CommentCacheDuration time.Duration
	CommentBatchSize     int
	CommentMaxPages      int

	// Image download
	ImageFetchTimeout     time.Duration
	ImageMaxSize          int64
	ImageAllowedHosts     []string
	DownloadMaxConcurrent int
	DownloadJobRetention  time.Duration

	// Comment watcher
	WatchInterval       time.Duration
	WatchPostsPerMember int
}

// Load は設定を読み込む。
// 既定値に対して、NOGIBLOG_CONFIG で指定されたYAMLファイルの値、環境変数の値の順で上書きする。
// 数値や期間として解釈できない値は既定値のままとする。
func Load() (*Config, error) {
	src, err := newSource(os.Getenv("NOGIBLOG_CONFIG"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		ServerPort:        src.getString("SERVER_PORT", "server_port", "8080"),
		CORSAllowedOrigin: src.getString("CORS_ALLOWED_ORIGIN", "cors_allowed_origin", "http://localhost:5173"),
		RateLimitGeneral:  src.getInt("RATE_LIMIT_GENERAL", "rate_limit_general", 120),

		LogLevel: strings.ToLower(src.getString("LOG_LEVEL", "log_level", "info")),

		StorageDriver: strings.ToLower(src.getString("STORAGE_DRIVER", "storage_driver", StorageDriverSQLite)),
		DatabaseURL:   src.getString("DATABASE_URL", "database_url", ""),
		SQLitePath:    src.getString("SQLITE_PATH", "sqlite_path", "./nogiblog.db"),

		APIBaseURL:          strings.TrimRight(src.getString("API_BASE_URL", "api_base_url", "https://www.nogizaka46.com"), "/"),
		JSONPTimeout:        src.getDuration("JSONP_TIMEOUT", "jsonp_timeout", 10*time.Second),
		CommentJSONPTimeout: src.getDuration("COMMENT_JSONP_TIMEOUT", "comment_jsonp_timeout", 15*time.Second),
		APIInterval:         src.getDuration("API_INTERVAL", "api_interval", 200*time.Millisecond),

		CommentCacheDuration: src.getDuration("COMMENT_CACHE_DURATION", "comment_cache_duration", 10*time.Minute),
		CommentBatchSize:     src.getInt("COMMENT_BATCH_SIZE", "comment_batch_size", 10),
		CommentMaxPages:      src.getInt("COMMENT_MAX_PAGES", "comment_max_pages", 100),

		ImageFetchTimeout:     src.getDuration("IMAGE_FETCH_TIMEOUT", "image_fetch_timeout", 15*time.Second),
		ImageMaxSize:          src.getInt64("IMAGE_MAX_SIZE", "image_max_size", 10485760),
		ImageAllowedHosts:     src.getList("IMAGE_ALLOWED_HOSTS", "image_allowed_hosts"),
		DownloadMaxConcurrent: src.getInt("DOWNLOAD_MAX_CONCURRENT", "download_max_concurrent", 0),
		DownloadJobRetention:  src.getDuration("DOWNLOAD_JOB_RETENTION", "download_job_retention", 15*time.Minute),

		WatchInterval:       src.getDuration("WATCH_INTERVAL", "watch_interval", 10*time.Minute),
		WatchPostsPerMember: src.getInt("WATCH_POSTS_PER_MEMBER", "watch_posts_per_member", 5),
	}

	var missing []string
	switch cfg.StorageDriver {
	case StorageDriverPostgres:
		if cfg.DatabaseURL == "" {
			missing = append(missing, "DATABASE_URL")
		}
	case StorageDriverSQLite:
		if cfg.SQLitePath == "" {
			missing = append(missing, "SQLITE_PATH")
		}
	case StorageDriverMemory:
	default:
		return nil, fmt.Errorf("unsupported STORAGE_DRIVER: %q (postgres, sqlite, memory)", cfg.StorageDriver)
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	return cfg, nil
}

// source は環境変数とYAMLファイルの値を引く。環境変数が優先される。
type source struct {
	file map[string]string
}

func newSource(path string) (source, error) {
	if path == "" {
		return source{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return source{}, fmt.Errorf("設定ファイルの読み込みに失敗しました: %w", err)
	}
	file := make(map[string]string)
	if err := yaml.Unmarshal(data, &file); err != nil {
		return source{}, fmt.Errorf("設定ファイルの解析に失敗しました: %w", err)
	}
	return source{file: file}, nil
}

func (s source) lookup(envKey, fileKey string) string {
	if v := os.Getenv(envKey); v != "" {
		return v
	}
	return strings.TrimSpace(s.file[fileKey])
}

func (s source) getString(envKey, fileKey, defaultVal string) string {
	if v := s.lookup(envKey, fileKey); v != "" {
		return v
	}
	return defaultVal
}

func (s source) getInt(envKey, fileKey string, defaultVal int) int {
	v := s.lookup(envKey, fileKey)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func (s source) getInt64(envKey, fileKey string, defaultVal int64) int64 {
	v := s.lookup(envKey, fileKey)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
}

func (s source) getDuration(envKey, fileKey string, defaultVal time.Duration) time.Duration {
	v := s.lookup(envKey, fileKey)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

// getList はカンマ区切りの値を空要素を除いて返す。
func (s source) getList(envKey, fileKey string) []string {
	var out []string
	for _, v := range strings.Split(s.lookup(envKey, fileKey), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
