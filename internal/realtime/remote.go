package realtime

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/goccy/go-json"
	"github.com/pkg/errors"
)

// apiResponse 服务端统一返回结构
type apiResponse struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// RestRemote 通知 REST 接口客户端
type RestRemote struct {
	client *resty.Client

	mu    sync.RWMutex
	token string
}

func NewRestRemote(baseURL string, timeout time.Duration) *RestRemote {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
	client.JSONMarshal = json.Marshal
	client.JSONUnmarshal = json.Unmarshal
	return &RestRemote{client: client}
}

// SetToken 会话开始/结束时更新凭据
func (r *RestRemote) SetToken(token string) {
	r.mu.Lock()
	r.token = token
	r.mu.Unlock()
}

func (r *RestRemote) request(ctx context.Context) *resty.Request {
	r.mu.RLock()
	token := r.token
	r.mu.RUnlock()
	req := r.client.R().SetContext(ctx)
	if token != "" {
		req.SetAuthToken(token)
	}
	return req
}

// Login 换取访问令牌
func (r *RestRemote) Login(ctx context.Context, username, password string) (string, error) {
	var res apiResponse
	resp, err := r.request(ctx).
		SetBody(map[string]string{"username": username, "password": password}).
		SetResult(&res).
		Post("/api/user/login")
	if err := check(resp, err, &res, "login"); err != nil {
		return "", err
	}
	var data struct {
		Token string `json:"token"`
	}
	if err = json.Unmarshal(res.Data, &data); err != nil {
		return "", errors.Wrap(err, "decode login response")
	}
	return data.Token, nil
}

// List 拉取通知列表，格式错误的条目被丢弃
func (r *RestRemote) List(ctx context.Context, pageSize int) ([]Record, error) {
	var res apiResponse
	resp, err := r.request(ctx).
		SetQueryParams(map[string]string{"page": "1", "page_size": strconv.Itoa(pageSize)}).
		SetResult(&res).
		Get("/api/notifications/list")
	if err := check(resp, err, &res, "list notifications"); err != nil {
		return nil, err
	}
	if len(res.Data) == 0 || string(res.Data) == "null" {
		return nil, nil
	}
	return DecodeNotificationList(res.Data)
}

func (r *RestRemote) MarkRead(ctx context.Context, id string) error {
	var res apiResponse
	resp, err := r.request(ctx).
		SetBody(ReadPayload{ID: id}).
		SetResult(&res).
		Post("/api/notifications/read")
	return check(resp, err, &res, "mark read")
}

func (r *RestRemote) MarkAllRead(ctx context.Context) error {
	var res apiResponse
	resp, err := r.request(ctx).
		SetResult(&res).
		Post("/api/notifications/read/all")
	return check(resp, err, &res, "mark all read")
}

// check 4xx 或业务码 4xx 视为明确拒绝，其余失败视为传输错误
func check(resp *resty.Response, err error, res *apiResponse, op string) error {
	if err != nil {
		return errors.Wrap(err, op)
	}
	status := resp.StatusCode()
	if status >= http.StatusBadRequest && status < http.StatusInternalServerError {
		return errors.Wrapf(ErrRejected, "%s: http %d", op, status)
	}
	if status >= http.StatusInternalServerError {
		return errors.Errorf("%s: http %d", op, status)
	}
	if res.Code >= http.StatusBadRequest && res.Code < http.StatusInternalServerError {
		return errors.Wrapf(ErrRejected, "%s: %s", op, res.Message)
	}
	if res.Code != http.StatusOK {
		return errors.Errorf("%s: code %d %s", op, res.Code, res.Message)
	}
	return nil
}

// SocketRemote 通过实时连接发送回执，无法观察到拒绝，因此从不回滚
type SocketRemote struct {
	manager *Manager
}

func NewSocketRemote(m *Manager) *SocketRemote {
	return &SocketRemote{manager: m}
}

func (s *SocketRemote) MarkRead(ctx context.Context, id string) error {
	return s.manager.Emit(EventAckMarkRead, ReadPayload{ID: id})
}

func (s *SocketRemote) MarkAllRead(ctx context.Context) error {
	return s.manager.Emit(EventAckClearAll, nil)
}
