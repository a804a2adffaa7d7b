package middleware

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/hitoshi/solidfoundation/internal/model"
	"github.com/hitoshi/solidfoundation/internal/session"
)

// NewRouteGuard はポリシーに基づいてアクセスを制御するミドルウェアを返す。
// NewSessionMiddlewareの後に配置する。
// 拒否時、ブラウザ（Accept: text/html）にはloginPath?next=<元のパス>への303、
// APIリクエストには401のJSONを返す。
func NewRouteGuard(policy session.Policy, loginPath string) func(next http.Handler) http.Handler {
	guard := session.Guard{Policy: policy}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var st session.State
			if store, ok := StoreFromContext(r.Context()); ok {
				st = store.Snapshot()
			}

			// サーバー側ではInit完了後に評価するため、Placeholderは未確定のセッションとして拒否する
			if guard.Evaluate(st) == session.DecisionAllow {
				next.ServeHTTP(w, r)
				return
			}

			if wantsHTML(r) {
				target := loginPath + "?next=" + url.QueryEscape(r.URL.RequestURI())
				http.Redirect(w, r, target, http.StatusSeeOther)
				return
			}
			WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		})
	}
}

func wantsHTML(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}
