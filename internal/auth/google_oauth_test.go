package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
)

func TestGoogleOAuthProvider_GetLoginURL(t *testing.T) {
	provider := NewGoogleOAuthProvider(GoogleOAuthConfig{
		ClientID:    "client-1",
		RedirectURL: "http://localhost:8080/auth/google/callback",
	})

	loginURL, err := url.Parse(provider.GetLoginURL("state-abc"))
	if err != nil {
		t.Fatalf("URLの解析に失敗: %v", err)
	}
	if loginURL.Host != "accounts.google.com" {
		t.Errorf("host = %q, want accounts.google.com", loginURL.Host)
	}

	q := loginURL.Query()
	want := map[string]string{
		"client_id":     "client-1",
		"redirect_uri":  "http://localhost:8080/auth/google/callback",
		"response_type": "code",
		"state":         "state-abc",
		"scope":         "openid email profile",
	}
	for k, v := range want {
		if got := q.Get(k); got != v {
			t.Errorf("%s = %q, want %q", k, got, v)
		}
	}
}

// newGoogleServers はトークンとユーザー情報のエンドポイントを模したサーバーを返す。
func newGoogleServers(t *testing.T, userInfoStatus int) (*httptest.Server, *httptest.Server) {
	t.Helper()
	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("フォームの解析に失敗: %v", err)
		}
		if r.PostForm.Get("code") != "auth-code" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]string{"error": "invalid_grant"})
			return
		}
		if got := r.PostForm.Get("grant_type"); got != "authorization_code" {
			t.Errorf("grant_type = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "access-1",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	}))
	t.Cleanup(tokenServer.Close)

	userInfoServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer access-1" {
			t.Errorf("Authorization = %q", got)
		}
		if userInfoStatus != http.StatusOK {
			w.WriteHeader(userInfoStatus)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"sub":   "google-sub-1",
			"email": "taro@example.com",
			"name":  "山田太郎",
		})
	}))
	t.Cleanup(userInfoServer.Close)

	return tokenServer, userInfoServer
}

func TestGoogleOAuthProvider_ExchangeCode(t *testing.T) {
	tokenServer, userInfoServer := newGoogleServers(t, http.StatusOK)
	provider := NewGoogleOAuthProvider(GoogleOAuthConfig{
		ClientID:     "client-1",
		ClientSecret: "secret-1",
		RedirectURL:  "http://localhost:8080/auth/google/callback",
		TokenURL:     tokenServer.URL,
		UserInfoURL:  userInfoServer.URL,
	})

	info, err := provider.ExchangeCode(context.Background(), "auth-code")
	if err != nil {
		t.Fatalf("ExchangeCode() error = %v", err)
	}
	if info.Provider != "google" || info.ProviderUserID != "google-sub-1" {
		t.Errorf("info = %+v", info)
	}
	if info.Email != "taro@example.com" || info.Name != "山田太郎" {
		t.Errorf("info = %+v", info)
	}
}

func TestGoogleOAuthProvider_ExchangeCode_InvalidCode(t *testing.T) {
	tokenServer, userInfoServer := newGoogleServers(t, http.StatusOK)
	provider := NewGoogleOAuthProvider(GoogleOAuthConfig{
		ClientID:    "client-1",
		TokenURL:    tokenServer.URL,
		UserInfoURL: userInfoServer.URL,
	})

	if _, err := provider.ExchangeCode(context.Background(), "used-code"); err == nil {
		t.Fatal("無効な認可コードでエラーにならなかった")
	}
}

func TestGoogleOAuthProvider_ExchangeCode_UserInfoError(t *testing.T) {
	tokenServer, userInfoServer := newGoogleServers(t, http.StatusUnauthorized)
	provider := NewGoogleOAuthProvider(GoogleOAuthConfig{
		ClientID:    "client-1",
		TokenURL:    tokenServer.URL,
		UserInfoURL: userInfoServer.URL,
	})

	if _, err := provider.ExchangeCode(context.Background(), "auth-code"); err == nil {
		t.Fatal("ユーザー情報の取得失敗がエラーにならなかった")
	}
}
