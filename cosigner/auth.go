package cosigner

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/MixinNetwork/mixin/logger"
	"github.com/ckb-cosigner/cosigner/common"
	"github.com/dimfeld/httptreemux/v5"
)

type contextKey string

const (
	userContextKey contextKey = "user"

	cookiePubKeyHash = "pubKeyHash"
	cookieUserName   = "userName"
	cookieMaxAge     = 86400
)

func (node *Node) findUser(pubKeyHash string) *User {
	hash, valid := common.NormalizeHex(pubKeyHash)
	if !valid {
		return nil
	}
	return node.users[hash]
}

func (node *Node) Users() []*User {
	users := make([]*User, 0)
	for _, u := range node.conf.Users {
		users = append(users, node.findUser(u.PubKeyHash))
	}
	return users
}

func (node *Node) httpAuth(w http.ResponseWriter, r *http.Request, params map[string]string) {
	var body struct {
		PubKeyHash string `json:"pubKeyHash"`
	}
	err := json.NewDecoder(r.Body).Decode(&body)
	if err != nil {
		common.RenderJSON(w, r, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}
	user := node.findUser(body.PubKeyHash)
	if user == nil {
		logger.Printf("node.httpAuth(%s) user not found", body.PubKeyHash)
		common.RenderJSON(w, r, http.StatusUnauthorized, map[string]any{"error": "User not found"})
		return
	}

	if r.URL.Query().Get("verify") != "true" {
		logger.Printf("node.httpAuth(%s, %s) sign in", user.PubKeyHash, user.Name)
		setUserCookie(w, cookiePubKeyHash, user.PubKeyHash, cookieMaxAge)
		setUserCookie(w, cookieUserName, user.Name, cookieMaxAge)
	}
	common.RenderJSON(w, r, http.StatusOK, map[string]any{"result": true})
}

// authorized rejects requests without a cookie of a configured user and
// passes the user to the handler through the request context.
func (node *Node) authorized(handler httptreemux.HandlerFunc) httptreemux.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request, params map[string]string) {
		cookie, err := r.Cookie(cookiePubKeyHash)
		if err != nil || cookie.Value == "" {
			common.RenderJSON(w, r, http.StatusUnauthorized, map[string]any{"error": "Unauthorized"})
			return
		}
		user := node.findUser(cookie.Value)
		if user == nil {
			setUserCookie(w, cookiePubKeyHash, "", -1)
			common.RenderJSON(w, r, http.StatusUnauthorized, map[string]any{"error": "Unauthorized"})
			return
		}
		ctx := context.WithValue(r.Context(), userContextKey, user)
		handler(w, r.WithContext(ctx), params)
	}
}

func currentUser(r *http.Request) *User {
	user, _ := r.Context().Value(userContextKey).(*User)
	return user
}

func setUserCookie(w http.ResponseWriter, name, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	})
}
