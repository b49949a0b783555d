package handler

import (
	"Folio/internal/api/dto"
	"Folio/internal/pkg/consts"
	"Folio/internal/service"
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func notificationRouter(svc service.NotificationService) *gin.Engine {
	h := NewNotificationHandler(svc)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(consts.CtxUserID, uint64(7))
		c.Next()
	})
	r.GET("/list", h.GetNotificationList)
	r.GET("/unread", h.GetUnreadCount)
	r.POST("/read", h.MarkRead)
	r.POST("/read/all", h.MarkAllRead)
	r.POST("/create", h.Create)
	return r
}

func do(t *testing.T, r http.Handler, method, path, body string) dto.Response {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("%s %s status = %d", method, path, w.Code)
	}
	var res dto.Response
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return res
}

func TestNotificationHandlerList(t *testing.T) {
	svc := &stubNotificationService{pending: []*dto.NotificationDTO{{ID: "n1", Type: "loan", Message: "a"}}}
	r := notificationRouter(svc)

	res := do(t, r, http.MethodGet, "/list?page=2&page_size=10", "")
	if res.Code != 200 {
		t.Fatalf("code = %d", res.Code)
	}
	if svc.listArgs[0] != 7 || svc.listArgs[1] != 2 || svc.listArgs[2] != 10 {
		t.Fatalf("list args = %v", svc.listArgs)
	}

	res = do(t, r, http.MethodGet, "/unread", "")
	data, _ := res.Data.(map[string]any)
	if res.Code != 200 || data["unread_count"] != float64(1) {
		t.Fatalf("unread response = %+v", res)
	}
}

func TestNotificationHandlerMarkRead(t *testing.T) {
	svc := &stubNotificationService{}
	r := notificationRouter(svc)

	if res := do(t, r, http.MethodPost, "/read", `{}`); res.Code != 400 {
		t.Fatalf("empty body code = %d, want 400", res.Code)
	}
	if res := do(t, r, http.MethodPost, "/read", `{"id":"n1"}`); res.Code != 200 {
		t.Fatalf("code = %d, want 200", res.Code)
	}
	if calls := svc.readCalls(); len(calls) != 1 || calls[0].userID != 7 || calls[0].id != "n1" {
		t.Fatalf("MarkRead calls = %+v", calls)
	}

	svc.err = service.ErrNotificationNotFound
	if res := do(t, r, http.MethodPost, "/read", `{"id":"n2"}`); res.Code != 404 {
		t.Fatalf("missing notification code = %d, want 404", res.Code)
	}
	svc.err = service.UnauthorizedError
	if res := do(t, r, http.MethodPost, "/read/all", ``); res.Code != 401 {
		t.Fatalf("code = %d, want 401", res.Code)
	}
}

func TestNotificationHandlerCreate(t *testing.T) {
	svc := &stubNotificationService{}
	r := notificationRouter(svc)

	res := do(t, r, http.MethodPost, "/create", `{"user_id":3,"type":"loan","message":"vence mañana"}`)
	if res.Code != 200 {
		t.Fatalf("code = %d, message %q", res.Code, res.Message)
	}
	if len(svc.created) != 1 || svc.created[0].UserID != 3 {
		t.Fatalf("created = %+v", svc.created)
	}

	if res = do(t, r, http.MethodPost, "/create", `{"user_id":3}`); res.Code != 400 {
		t.Fatalf("missing message code = %d, want 400", res.Code)
	}
	long := `{"user_id":3,"message":"x","title":"` + strings.Repeat("t", 81) + `"}`
	if res = do(t, r, http.MethodPost, "/create", long); res.Code != 400 {
		t.Fatalf("long title code = %d, want 400", res.Code)
	}
	if len(svc.created) != 1 {
		t.Fatalf("invalid requests reached the service: %d", len(svc.created))
	}
}
