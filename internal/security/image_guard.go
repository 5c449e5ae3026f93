// Package security はブログ本文から拾った画像URLを取りに行く前の安全確認を担う。
package security

import (
	"errors"
	"fmt"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
	"time"

	"github.com/doyensec/safeurl"
)

var (
	ErrUnsupportedScheme = errors.New("security: unsupported scheme")
	ErrBlockedAddress    = errors.New("security: blocked address")
	ErrHostNotAllowed    = errors.New("security: host not allowed")
)

// ImageGuardService は画像URLの事前検証と、接続時にも検証するHTTPクライアントを提供する。
type ImageGuardService interface {
	// NewSafeClient はDNS解決後のIPがプライベート帯なら接続しないクライアントを返す。
	NewSafeClient(timeout time.Duration) *http.Client
	ValidateURL(rawURL string) error
}

// blockedPrefixes はURLにIPが直書きされていた場合に拒否する範囲。
// 名前解決後の確認はsafeurl側で行う。
var blockedPrefixes = []netip.Prefix{
	netip.MustParsePrefix("0.0.0.0/8"),
	netip.MustParsePrefix("10.0.0.0/8"),
	netip.MustParsePrefix("100.64.0.0/10"),
	netip.MustParsePrefix("127.0.0.0/8"),
	netip.MustParsePrefix("169.254.0.0/16"), // メタデータIPを含む
	netip.MustParsePrefix("172.16.0.0/12"),
	netip.MustParsePrefix("192.168.0.0/16"),
	netip.MustParsePrefix("::/128"),
	netip.MustParsePrefix("::1/128"),
	netip.MustParsePrefix("fc00::/7"),
	netip.MustParsePrefix("fe80::/10"),
}

// ImageGuard はImageGuardServiceの実装。
type ImageGuard struct {
	// hostSuffixes が空なら公開ホストは全て許可する。
	hostSuffixes []string
}

// NewImageGuard は許可するホストのサフィックスを受け取る。
// "nogizaka46.com" ならnogizaka46.com自身とそのサブドメインだけを通す。
func NewImageGuard(hostSuffixes ...string) *ImageGuard {
	g := &ImageGuard{}
	for _, s := range hostSuffixes {
		s = strings.ToLower(strings.Trim(strings.TrimSpace(s), "."))
		if s != "" {
			g.hostSuffixes = append(g.hostSuffixes, s)
		}
	}
	return g
}

// NewSafeClient はhttp/httpsの80/443番ポートだけに繋ぐクライアントを返す。
func (g *ImageGuard) NewSafeClient(timeout time.Duration) *http.Client {
	cfg := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes("http", "https").
		SetAllowedPorts(80, 443).
		Build()
	return safeurl.Client(cfg).Client
}

// ValidateURL は接続せずに判定できる範囲でrawURLを検証する。
func (g *ImageGuard) ValidateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("security: parse %q: %w", rawURL, err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}

	host := strings.ToLower(strings.TrimSuffix(u.Hostname(), "."))
	if host == "" {
		return fmt.Errorf("%w: empty host", ErrBlockedAddress)
	}
	if host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return fmt.Errorf("%w: %s", ErrBlockedAddress, host)
	}
	if addr, err := netip.ParseAddr(host); err == nil && isBlocked(addr) {
		return fmt.Errorf("%w: %s", ErrBlockedAddress, addr)
	}

	if !g.allows(host) {
		return fmt.Errorf("%w: %s", ErrHostNotAllowed, host)
	}
	return nil
}

func (g *ImageGuard) allows(host string) bool {
	if len(g.hostSuffixes) == 0 {
		return true
	}
	for _, s := range g.hostSuffixes {
		if host == s || strings.HasSuffix(host, "."+s) {
			return true
		}
	}
	return false
}

func isBlocked(addr netip.Addr) bool {
	// ::ffff:127.0.0.1 のような書き方もIPv4として判定する
	addr = addr.Unmap()
	for _, p := range blockedPrefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}
