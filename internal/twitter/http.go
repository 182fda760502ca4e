package twitter

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/schlind/karlsruher/internal/metrics"
	"github.com/schlind/karlsruher/internal/model"
)

// HTTPClient implements Client against the Twitter REST API v1.1 with
// OAuth 1.0a user-context signing, client-side rate limiting and bounded
// retries on 429/5xx responses.
type HTTPClient struct {
	baseURL        string
	consumerKey    string
	consumerSecret string
	accessKey      string
	accessSecret   string
	httpClient     *http.Client
	limiter        *rate.Limiter
	maxAttempts    int
	baseBackoff    time.Duration
	nowFn          func() time.Time
	nonceFn        func() string
}

var _ Client = (*HTTPClient)(nil)

func NewHTTPClient(consumerKey, consumerSecret, accessKey, accessSecret string) *HTTPClient {
	return &HTTPClient{
		baseURL:        "https://api.twitter.com/1.1",
		consumerKey:    consumerKey,
		consumerSecret: consumerSecret,
		accessKey:      accessKey,
		accessSecret:   accessSecret,
		httpClient:     &http.Client{Timeout: 15 * time.Second},
		limiter:        newDefaultLimiter(),
		maxAttempts:    getEnvInt("TWITTER_API_MAX_ATTEMPTS", 5),
		baseBackoff:    time.Duration(getEnvInt("TWITTER_API_BASE_BACKOFF_MS", 500)) * time.Millisecond,
		nowFn:          time.Now,
		nonceFn:        func() string { return strconv.FormatInt(rand.Int63(), 36) },
	}
}

// SetBaseURL overrides the API base URL, for tests.
func (c *HTTPClient) SetBaseURL(u string) { c.baseURL = u }

func (c *HTTPClient) Me(ctx context.Context) (model.User, error) {
	body, err := c.call(ctx, "me", http.MethodGet, "/account/verify_credentials.json", nil)
	if err != nil {
		return model.User{}, err
	}
	var raw rawUser
	if err := json.Unmarshal(body, &raw); err != nil {
		return model.User{}, remoteErr("me", err)
	}
	return raw.toUser(), nil
}

func (c *HTTPClient) MentionsTimeline(ctx context.Context) ([]model.Tweet, error) {
	body, err := c.call(ctx, "mentions_timeline", http.MethodGet, "/statuses/mentions_timeline.json", map[string]string{
		"count":      "200",
		"tweet_mode": "extended",
	})
	if err != nil {
		return nil, err
	}
	var raw []rawTweet
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, remoteErr("mentions_timeline", err)
	}
	out := make([]model.Tweet, 0, len(raw))
	for _, t := range raw {
		out = append(out, t.toTweet())
	}
	return out, nil
}

func (c *HTTPClient) ListMembers(ctx context.Context, ownerScreenName, slug string) ([]model.User, error) {
	return c.pagedUsers(ctx, "list_members", "/lists/members.json", map[string]string{
		"owner_screen_name": ownerScreenName,
		"slug":              slug,
		"count":             "200",
	})
}

func (c *HTTPClient) Followers(ctx context.Context) ([]model.User, error) {
	return c.pagedUsers(ctx, "followers", "/followers/list.json", map[string]string{
		"count":       "200",
		"skip_status": "true",
	})
}

func (c *HTTPClient) Friends(ctx context.Context) ([]model.User, error) {
	return c.pagedUsers(ctx, "friends", "/friends/list.json", map[string]string{
		"count":       "200",
		"skip_status": "true",
	})
}

func (c *HTTPClient) UpdateStatus(ctx context.Context, status, inReplyToID string) (model.Tweet, error) {
	params := map[string]string{"status": status}
	if inReplyToID != "" {
		params["in_reply_to_status_id"] = inReplyToID
	}
	body, err := c.call(ctx, "update_status", http.MethodPost, "/statuses/update.json", params)
	if err != nil {
		return model.Tweet{}, err
	}
	var raw rawTweet
	if err := json.Unmarshal(body, &raw); err != nil {
		return model.Tweet{}, remoteErr("update_status", err)
	}
	return raw.toTweet(), nil
}

func (c *HTTPClient) Retweet(ctx context.Context, tweetID string) (model.Tweet, error) {
	endpoint := "/statuses/retweet/" + url.PathEscape(tweetID) + ".json"
	body, err := c.call(ctx, "retweet", http.MethodPost, endpoint, nil)
	if err != nil {
		return model.Tweet{}, err
	}
	var raw rawTweet
	if err := json.Unmarshal(body, &raw); err != nil {
		return model.Tweet{}, remoteErr("retweet", err)
	}
	return raw.toTweet(), nil
}

// pagedUsers walks a cursored user list endpoint until the cursor is
// exhausted.
func (c *HTTPClient) pagedUsers(ctx context.Context, op, endpoint string, params map[string]string) ([]model.User, error) {
	var out []model.User
	cursor := "-1"
	for cursor != "0" && cursor != "" {
		page := make(map[string]string, len(params)+1)
		for k, v := range params {
			page[k] = v
		}
		page["cursor"] = cursor
		body, err := c.call(ctx, op, http.MethodGet, endpoint, page)
		if err != nil {
			return out, err
		}
		var raw struct {
			Users         []rawUser `json:"users"`
			NextCursorStr string    `json:"next_cursor_str"`
		}
		if err := json.Unmarshal(body, &raw); err != nil {
			return out, remoteErr(op, err)
		}
		for _, u := range raw.Users {
			out = append(out, u.toUser())
		}
		cursor = raw.NextCursorStr
	}
	return out, nil
}

// call performs one signed API call with rate limiting and retries,
// returning the response body.
func (c *HTTPClient) call(ctx context.Context, op, method, endpoint string, params map[string]string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, remoteErr(op, err)
	}
	resp, err := c.doWithRetry(ctx, op, method, endpoint, params)
	if err != nil {
		return nil, remoteErr(op, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, remoteErr(op, err)
	}
	if resp.StatusCode >= 400 {
		return nil, remoteErr(op, fmt.Errorf("status %d", resp.StatusCode))
	}
	return body, nil
}

// newRequest builds a signed request. GET parameters go to the query
// string, POST parameters to a form body; both are covered by the
// OAuth signature base string.
func (c *HTTPClient) newRequest(ctx context.Context, method, endpoint string, params map[string]string) (*http.Request, error) {
	reqURL := c.baseURL + endpoint
	var body io.Reader
	if method == http.MethodGet {
		if len(params) > 0 {
			reqURL += "?" + encodeQuery(params)
		}
	} else if len(params) > 0 {
		body = strings.NewReader(encodeQuery(params))
	}
	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return nil, err
	}
	if method != http.MethodGet && len(params) > 0 {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	c.oauth1Sign(req, params)
	return req, nil
}

func (c *HTTPClient) doWithRetry(ctx context.Context, op, method, endpoint string, params map[string]string) (*http.Response, error) {
	backoff := c.baseBackoff
	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		req, err := c.newRequest(ctx, method, endpoint, params)
		if err != nil {
			return nil, err
		}
		resp, err := c.httpClient.Do(req)
		if err == nil {
			if resp.StatusCode == http.StatusTooManyRequests || (resp.StatusCode >= 500 && resp.StatusCode <= 599) {
				ra := resp.Header.Get("Retry-After")
				_ = resp.Body.Close()
				metrics.IncAPIRetry(op)
				wait := backoff
				if ra != "" {
					if secs, err := strconv.Atoi(ra); err == nil {
						wait = time.Duration(secs) * time.Second
					} else if t, err := http.ParseTime(ra); err == nil {
						if d := time.Until(t); d > 0 {
							wait = d
						}
					}
				}
				// jitter +/-20%
				jitter := time.Duration(float64(wait) * 0.2)
				if jitter > 0 {
					wait = wait - jitter + time.Duration(time.Now().UnixNano()%int64(2*jitter))
				}
				select {
				case <-time.After(wait):
				case <-ctx.Done():
					return nil, ctx.Err()
				}
				backoff *= 2
				continue
			}
			return resp, nil
		}
		lastErr = err
		metrics.IncAPIRetry(op)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		backoff *= 2
	}
	return nil, fmt.Errorf("request failed after %d attempts: %v", c.maxAttempts, lastErr)
}

func (c *HTTPClient) oauth1Sign(req *http.Request, reqParams map[string]string) {
	oauth := map[string]string{
		"oauth_consumer_key":     c.consumerKey,
		"oauth_nonce":            c.nonceFn(),
		"oauth_signature_method": "HMAC-SHA1",
		"oauth_timestamp":        strconv.FormatInt(c.nowFn().Unix(), 10),
		"oauth_token":            c.accessKey,
		"oauth_version":          "1.0",
	}
	all := map[string]string{}
	for k, v := range oauth {
		all[k] = v
	}
	for k, v := range reqParams {
		all[k] = v
	}
	keys := make([]string, 0, len(all))
	for k := range all {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	paramParts := make([]string, 0, len(keys))
	for _, k := range keys {
		paramParts = append(paramParts, rfc3986(k)+"="+rfc3986(all[k]))
	}
	paramStr := strings.Join(paramParts, "&")
	baseURL := req.URL.Scheme + "://" + req.URL.Host + req.URL.Path
	base := req.Method + "&" + rfc3986(baseURL) + "&" + rfc3986(paramStr)
	signingKey := rfc3986(c.consumerSecret) + "&" + rfc3986(c.accessSecret)
	mac := hmac.New(sha1.New, []byte(signingKey))
	_, _ = mac.Write([]byte(base))
	oauth["oauth_signature"] = base64.StdEncoding.EncodeToString(mac.Sum(nil))

	hdrKeys := make([]string, 0, len(oauth))
	for k := range oauth {
		hdrKeys = append(hdrKeys, k)
	}
	sort.Strings(hdrKeys)
	authParts := make([]string, 0, len(hdrKeys))
	for _, k := range hdrKeys {
		authParts = append(authParts, fmt.Sprintf("%s=%q", rfc3986(k), rfc3986(oauth[k])))
	}
	req.Header.Set("Authorization", "OAuth "+strings.Join(authParts, ", "))
	req.Header.Set("Accept", "application/json")
}

type rawUser struct {
	IDStr      string `json:"id_str"`
	ScreenName string `json:"screen_name"`
	Name       string `json:"name"`
	Protected  bool   `json:"protected"`
}

func (u rawUser) toUser() model.User {
	return model.User{ID: u.IDStr, ScreenName: u.ScreenName, Name: u.Name, Protected: u.Protected}
}

type rawTweet struct {
	IDStr         string  `json:"id_str"`
	FullText      string  `json:"full_text"`
	Text          string  `json:"text"`
	CreatedAt     string  `json:"created_at"`
	InReplyToStat string  `json:"in_reply_to_status_id_str"`
	User          rawUser `json:"user"`
}

func (t rawTweet) toTweet() model.Tweet {
	// Example: Mon Jan 2 15:04:05 -0700 2006
	ts, _ := time.Parse(time.RubyDate, t.CreatedAt)
	text := t.FullText
	if text == "" {
		text = t.Text
	}
	return model.Tweet{
		ID:          t.IDStr,
		Author:      t.User.toUser(),
		Text:        text,
		InReplyToID: t.InReplyToStat,
		CreatedAt:   ts,
	}
}

func encodeQuery(m map[string]string) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, url.QueryEscape(k)+"="+url.QueryEscape(m[k]))
	}
	return strings.Join(parts, "&")
}

// RFC 3986 percent-encoding for OAuth
func rfc3986(s string) string {
	return strings.ReplaceAll(strings.ReplaceAll(url.QueryEscape(s), "+", "%20"), "*", "%2A")
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if i, err := strconv.Atoi(v); err == nil && i > 0 {
		return i
	}
	return def
}
