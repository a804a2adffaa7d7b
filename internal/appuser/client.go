// Package appuser はアプリケーションのユーザープロフィールを管理するバックエンドサービスとの連携を提供する。
package appuser

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/hitoshi/solidfoundation/internal/model"
)

// ErrNotFound は対象のユーザープロフィールが存在しない場合のエラー。
var ErrNotFound = errors.New("appuser: user not found")

// StatusError はユーザーサービスが404以外の非2xxステータスを返した場合のエラー。
type StatusError struct {
	Method string
	Path   string
	Status int
	Body   string
}

// Error はerrorインターフェースを実装する。
func (e *StatusError) Error() string {
	return fmt.Sprintf("ユーザーサービスがステータス %d を返しました (%s %s)", e.Status, e.Method, e.Path)
}

// LookupField はGetで検索に使う項目。空の場合はIDで検索する。
type LookupField string

const (
	ByID         LookupField = ""
	ByEmail      LookupField = "email"
	ByIdentifier LookupField = "identifier"
)

// Client はユーザーサービスのRESTクライアント。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	baseURL    string
}

// NewClient はClientの新しいインスタンスを生成する。
func NewClient(httpClient *http.Client, logger *slog.Logger, baseURL string) *Client {
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
}

// Create はユーザープロフィールを作成する。
func (c *Client) Create(ctx context.Context, profile model.UserProfile) (*model.UserProfile, error) {
	var created model.UserProfile
	if err := c.do(ctx, http.MethodPost, "/users", nil, profile, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// Get はユーザープロフィールを取得する。
// byを指定するとID以外の項目（メールアドレス等）で検索する。
// 存在しない場合はErrNotFoundを返す。
func (c *Client) Get(ctx context.Context, value string, by LookupField) (*model.UserProfile, error) {
	var q url.Values
	if by != ByID {
		q = url.Values{"by": {string(by)}}
	}

	var profile model.UserProfile
	if err := c.do(ctx, http.MethodGet, "/user/"+url.PathEscape(value), q, nil, &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

// Update はユーザープロフィールを部分更新する。
// 存在しない場合はErrNotFoundを返す。
func (c *Client) Update(ctx context.Context, id string, patch model.UserProfilePatch) (*model.UserProfile, error) {
	var updated model.UserProfile
	if err := c.do(ctx, http.MethodPatch, "/users/"+url.PathEscape(id), nil, patch, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

// do はユーザーサービスへのHTTPリクエストを実行し、レスポンスをoutにデコードする。
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	reqURL := c.baseURL + path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("リクエストボディのエンコードに失敗しました: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	// HTTPリクエスト作成
	req, err := http.NewRequestWithContext(ctx, method, reqURL, reader)
	if err != nil {
		return fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	// HTTPリクエスト実行
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("ユーザーサービスの呼び出しに失敗しました",
			slog.String("method", method),
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("ユーザーサービスの呼び出しに失敗しました: %w", err)
	}
	defer resp.Body.Close()

	// レスポンスボディ読み取り
	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		c.logger.Error("レスポンスボディの読み取りに失敗しました",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}

	// HTTPステータスチェック
	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Error("ユーザーサービスがエラーステータスを返しました",
			slog.String("method", method),
			slog.String("path", path),
			slog.Int("http_status", resp.StatusCode),
		)
		return &StatusError{Method: method, Path: path, Status: resp.StatusCode, Body: string(respBody)}
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}

	// JSONデコード
	if err := json.Unmarshal(respBody, out); err != nil {
		c.logger.Error("ユーザーサービスのレスポンスのパースに失敗しました",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("レスポンスJSONのパースに失敗しました: %w", err)
	}

	return nil
}
