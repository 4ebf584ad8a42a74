// Package clickup はClickUp API v2のクライアントを提供する。
// OAuth 2.0フロー、ユーザー・チーム・タスクの取得、およびレート制限時の
// リトライ処理を含む。
package clickup

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const (
	// defaultBaseURL はClickUp API v2のベースURL。
	defaultBaseURL = "https://api.clickup.com/api/v2"
	// defaultAuthorizeURL はClickUpのOAuth認可画面のURL。
	defaultAuthorizeURL = "https://app.clickup.com/api"

	// maxAttempts はレート制限・サーバーエラー時の最大試行回数。
	maxAttempts = 3
	// retryBaseDelay はRetry-Afterヘッダが無い場合の基本待機時間。
	retryBaseDelay = 500 * time.Millisecond
	// maxRetryAfter はRetry-Afterヘッダの待機時間の上限。
	maxRetryAfter = 30 * time.Second
)

// Config はClickUp APIクライアントの設定。
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string

	// テスト用・環境変数でオーバーライド可能なURL
	BaseURL      string
	AuthorizeURL string
}

// UpstreamError はClickUp APIがエラーステータスを返したことを表す。
type UpstreamError struct {
	StatusCode int
	Body       string
}

// Error はエラーメッセージを返す。
func (e *UpstreamError) Error() string {
	return fmt.Sprintf("clickup API returned status %d: %s", e.StatusCode, e.Body)
}

// Client はClickUp API v2のHTTPクライアント。
// SSRF防止機能付きのhttp.Clientを受け取る想定。
type Client struct {
	httpClient *http.Client
	config     Config
	logger     *slog.Logger

	// onStatus は上流レスポンスのステータスコードの観測フック。
	// メトリクス収集用で、nilの場合は何もしない。
	onStatus func(statusCode int)

	// テスト用に差し替え可能な待機関数
	sleep func(time.Duration)
}

// NewClient はClientの新しいインスタンスを生成する。
func NewClient(httpClient *http.Client, config Config, logger *slog.Logger) *Client {
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}
	if config.AuthorizeURL == "" {
		config.AuthorizeURL = defaultAuthorizeURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		httpClient: httpClient,
		config:     config,
		logger:     logger,
		sleep:      time.Sleep,
	}
}

// SetStatusObserver は上流ステータスコードの観測フックを設定する。
func (c *Client) SetStatusObserver(fn func(statusCode int)) {
	c.onStatus = fn
}

// AuthorizationURL はClickUpのOAuth認可画面のURLを生成する。
// stateはコールバックでそのまま返却され、リプレイ検証に使用される。
func (c *Client) AuthorizationURL(state string) string {
	params := url.Values{
		"client_id":    {c.config.ClientID},
		"redirect_uri": {c.config.RedirectURL},
		"state":        {state},
	}
	return c.config.AuthorizeURL + "?" + params.Encode()
}

// ExchangeCode は認可コードをアクセストークンに交換する。
func (c *Client) ExchangeCode(ctx context.Context, code string) (*TokenResponse, error) {
	params := url.Values{
		"client_id":     {c.config.ClientID},
		"client_secret": {c.config.ClientSecret},
		"code":          {code},
	}
	reqURL := c.config.BaseURL + "/oauth/token?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create token request: %w", err)
	}

	var tokenResp TokenResponse
	if err := c.doJSON(req, &tokenResp); err != nil {
		return nil, fmt.Errorf("failed to exchange authorization code: %w", err)
	}

	if tokenResp.AccessToken == "" {
		return nil, fmt.Errorf("empty access token in response")
	}
	if tokenResp.TokenType == "" {
		tokenResp.TokenType = "Bearer"
	}

	return &tokenResp, nil
}

// GetCurrentUser は認可済みユーザーのプロフィールを取得する。
func (c *Client) GetCurrentUser(ctx context.Context, accessToken string) (*User, error) {
	var resp struct {
		User User `json:"user"`
	}
	if err := c.getJSON(ctx, accessToken, "/user", &resp); err != nil {
		return nil, fmt.Errorf("failed to fetch current user: %w", err)
	}
	if resp.User.ID == 0 {
		return nil, fmt.Errorf("empty user in response")
	}
	return &resp.User, nil
}

// GetAuthorizedTeams は認可済みのチーム（ワークスペース）一覧を取得する。
func (c *Client) GetAuthorizedTeams(ctx context.Context, accessToken string) ([]Team, error) {
	var resp struct {
		Teams []Team `json:"teams"`
	}
	if err := c.getJSON(ctx, accessToken, "/team", &resp); err != nil {
		return nil, fmt.Errorf("failed to fetch authorized teams: %w", err)
	}
	return resp.Teams, nil
}

// GetTeamMembers はチームのメンバー一覧を取得する。
// チーム詳細エンドポイントのmembersフィールドから抽出する。
func (c *Client) GetTeamMembers(ctx context.Context, accessToken, teamID string) ([]Member, error) {
	var resp struct {
		Team Team `json:"team"`
	}
	if err := c.getJSON(ctx, accessToken, "/team/"+url.PathEscape(teamID), &resp); err != nil {
		return nil, fmt.Errorf("failed to fetch members of team %s: %w", teamID, err)
	}
	return resp.Team.Members, nil
}

// GetTeamTasks はチーム横断のタスク一覧を取得する。
// サブタスクを含み、クローズ済みタスクは除外する。
func (c *Client) GetTeamTasks(ctx context.Context, accessToken, teamID string) ([]Task, error) {
	path := "/team/" + url.PathEscape(teamID) + "/task?subtasks=true&include_closed=false"
	var resp struct {
		Tasks []Task `json:"tasks"`
	}
	if err := c.getJSON(ctx, accessToken, path, &resp); err != nil {
		return nil, fmt.Errorf("failed to fetch tasks of team %s: %w", teamID, err)
	}
	return resp.Tasks, nil
}

// GetSpaces はチーム配下のスペース一覧を取得する。
func (c *Client) GetSpaces(ctx context.Context, accessToken, teamID string) ([]Space, error) {
	var resp struct {
		Spaces []Space `json:"spaces"`
	}
	if err := c.getJSON(ctx, accessToken, "/team/"+url.PathEscape(teamID)+"/space", &resp); err != nil {
		return nil, fmt.Errorf("failed to fetch spaces of team %s: %w", teamID, err)
	}
	return resp.Spaces, nil
}

// GetFolders はスペース配下のフォルダ一覧を取得する。
func (c *Client) GetFolders(ctx context.Context, accessToken, spaceID string) ([]Folder, error) {
	var resp struct {
		Folders []Folder `json:"folders"`
	}
	if err := c.getJSON(ctx, accessToken, "/space/"+url.PathEscape(spaceID)+"/folder", &resp); err != nil {
		return nil, fmt.Errorf("failed to fetch folders of space %s: %w", spaceID, err)
	}
	return resp.Folders, nil
}

// GetLists はフォルダ配下のリスト一覧を取得する。
func (c *Client) GetLists(ctx context.Context, accessToken, folderID string) ([]List, error) {
	var resp struct {
		Lists []List `json:"lists"`
	}
	if err := c.getJSON(ctx, accessToken, "/folder/"+url.PathEscape(folderID)+"/list", &resp); err != nil {
		return nil, fmt.Errorf("failed to fetch lists of folder %s: %w", folderID, err)
	}
	return resp.Lists, nil
}

// GetListTasks はリスト配下のタスク一覧を取得する。
func (c *Client) GetListTasks(ctx context.Context, accessToken, listID string) ([]Task, error) {
	var resp struct {
		Tasks []Task `json:"tasks"`
	}
	if err := c.getJSON(ctx, accessToken, "/list/"+url.PathEscape(listID)+"/task", &resp); err != nil {
		return nil, fmt.Errorf("failed to fetch tasks of list %s: %w", listID, err)
	}
	return resp.Tasks, nil
}

// getJSON は認可ヘッダ付きのGETリクエストを実行してJSONをデコードする。
func (c *Client) getJSON(ctx context.Context, accessToken, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", accessToken)

	return c.doJSON(req, out)
}

// doJSON はリクエストを実行してレスポンスJSONをデコードする。
// 429とサーバーエラー（5xx）は最大3回まで再試行し、429の場合は
// Retry-Afterヘッダの秒数を待機する。
func (c *Client) doJSON(req *http.Request, out interface{}) error {
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		body, status, retryAfter, err := c.doOnce(req)
		if err != nil {
			return err
		}

		if status == http.StatusOK {
			if err := json.Unmarshal(body, out); err != nil {
				return fmt.Errorf("failed to parse response JSON: %w", err)
			}
			return nil
		}

		lastErr = &UpstreamError{StatusCode: status, Body: string(body)}

		if !isRetryable(status) || attempt == maxAttempts {
			return lastErr
		}

		delay := retryDelay(attempt, retryAfter)
		c.logger.Warn("ClickUp APIの呼び出しを再試行します",
			slog.Int("http_status", status),
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay),
		)
		c.sleep(delay)
	}

	return lastErr
}

// doOnce はリクエストを1回実行してボディ、ステータスコード、
// Retry-Afterヘッダを返す。上流ステータスは観測フックに記録される。
func (c *Client) doOnce(req *http.Request) ([]byte, int, string, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("ClickUp APIの呼び出しに失敗しました",
			slog.String("url", req.URL.Path),
			slog.String("error", err.Error()),
		)
		return nil, 0, "", fmt.Errorf("clickup API request failed: %w", err)
	}
	defer resp.Body.Close()

	if c.onStatus != nil {
		c.onStatus(resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, "", fmt.Errorf("failed to read response body: %w", err)
	}

	return body, resp.StatusCode, resp.Header.Get("Retry-After"), nil
}

// isRetryable は再試行可能なステータスコードかを判定する。
func isRetryable(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

// retryDelay は次の試行までの待機時間を返す。Retry-Afterヘッダが
// あればその秒数（上限30秒）、無ければ試行回数に比例した待機時間。
func retryDelay(attempt int, retryAfter string) time.Duration {
	if retryAfter != "" {
		if seconds, err := strconv.Atoi(retryAfter); err == nil && seconds > 0 {
			d := time.Duration(seconds) * time.Second
			if d > maxRetryAfter {
				d = maxRetryAfter
			}
			return d
		}
	}
	return time.Duration(attempt) * retryBaseDelay
}
