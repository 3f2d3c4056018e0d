// Package security は外部URLの取り込みとユーザー入力テキストの安全性を扱う。
package security

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/doyensec/safeurl"
)

var (
	// ErrInvalidURL はURLとして解釈できない、または許可されないスキームの場合のエラー。
	ErrInvalidURL = errors.New("invalid url")
	// ErrBlockedURL は内部ネットワーク等、取り込みが禁止された宛先の場合のエラー。
	ErrBlockedURL = errors.New("blocked url")
)

// URLGuard は求人情報の取り込み先URLを検証し、安全なHTTPクライアントを提供する。
type URLGuard interface {
	// ValidateURL はDNS解決を伴わない静的な検証を行う。
	ValidateURL(rawURL string) error
	// NewSafeClient は接続時に解決後のIPアドレスを検証するHTTPクライアントを返す。
	NewSafeClient(timeout time.Duration) *http.Client
}

var allowedSchemes = []string{"http", "https"}

var blockedNetworks = mustParseCIDRs(
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"100.64.0.0/10", // CGNAT
	"127.0.0.0/8",
	"169.254.0.0/16", // メタデータIPを含む
	"0.0.0.0/8",
	"::1/128",
	"fe80::/10",
	"fc00::/7",
)

func mustParseCIDRs(cidrs ...string) []*net.IPNet {
	networks := make([]*net.IPNet, 0, len(cidrs))
	for _, cidr := range cidrs {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			panic(fmt.Sprintf("invalid CIDR %s: %v", cidr, err))
		}
		networks = append(networks, network)
	}
	return networks
}

var blockedHostSuffixes = []string{".localhost", ".local", ".internal"}

type urlGuard struct{}

// NewURLGuard はURLGuardを生成する。
func NewURLGuard() URLGuard {
	return urlGuard{}
}

// NewSafeClient はsafeurlでラップしたHTTPクライアントを返す。
// safeurlはDialerのControlフックで解決後のIPを検証するため、DNS再バインディングも防げる。
func (urlGuard) NewSafeClient(timeout time.Duration) *http.Client {
	config := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes(allowedSchemes...).
		SetAllowedPorts(80, 443).
		Build()
	return safeurl.Client(config).Client
}

func (urlGuard) ValidateURL(rawURL string) error {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return fmt.Errorf("%w: empty", ErrInvalidURL)
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return fmt.Errorf("%w: scheme %q is not allowed", ErrInvalidURL, parsed.Scheme)
	}
	if parsed.User != nil {
		return fmt.Errorf("%w: credentials in url", ErrInvalidURL)
	}
	host := strings.ToLower(parsed.Hostname())
	if host == "" {
		return fmt.Errorf("%w: empty host", ErrInvalidURL)
	}
	if port := parsed.Port(); port != "" && port != "80" && port != "443" {
		return fmt.Errorf("%w: port %s", ErrBlockedURL, port)
	}

	if ip := net.ParseIP(host); ip != nil {
		if isBlockedIP(ip) {
			return fmt.Errorf("%w: %s", ErrBlockedURL, ip)
		}
		return nil
	}
	if host == "localhost" {
		return fmt.Errorf("%w: %s", ErrBlockedURL, host)
	}
	for _, suffix := range blockedHostSuffixes {
		if strings.HasSuffix(host, suffix) {
			return fmt.Errorf("%w: %s", ErrBlockedURL, host)
		}
	}
	return nil
}

func isBlockedIP(ip net.IP) bool {
	if v4 := ip.To4(); v4 != nil {
		ip = v4
	}
	if ip.IsUnspecified() || ip.IsMulticast() {
		return true
	}
	for _, network := range blockedNetworks {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}
