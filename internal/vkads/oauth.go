package vkads

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"html"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/radiusdt/vector-gateway/internal/config"
	"go.uber.org/zap"
)

const (
	authorizeURL = "https://id.vk.com/authorize"
	tokenURL     = "https://id.vk.com/oauth2/token"

	verifierCookie = "vk_pkce_verifier"
	stateCookie    = "vk_pkce_state"
	cookieTTL      = 10 * time.Minute
)

// OAuth implements the one-time VK OAuth 2.1 PKCE setup flow. The operator
// opens /oauth/vk/login with the setup secret, authorizes in VK, and copies
// the returned tokens into the environment.
type OAuth struct {
	cfg        config.VKConfig
	httpClient *http.Client
	logger     *zap.Logger
}

// NewOAuth creates the OAuth flow handlers.
func NewOAuth(cfg config.VKConfig, logger *zap.Logger) *OAuth {
	return &OAuth{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		logger: logger,
	}
}

// HandleLogin starts the PKCE authorization flow. Guarded by the setup
// secret so the endpoint cannot be used to phish tokens.
func (o *OAuth) HandleLogin(w http.ResponseWriter, r *http.Request) {
	if !secretMatches(r.URL.Query().Get("key"), o.cfg.SetupSecret) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	if o.cfg.AppID == "" || o.cfg.RedirectURI == "" {
		http.Error(w, "vk oauth is not configured", http.StatusInternalServerError)
		return
	}

	verifier, err := randomToken(32)
	if err != nil {
		o.logger.Error("failed to generate pkce verifier", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	state, err := randomToken(16)
	if err != nil {
		o.logger.Error("failed to generate oauth state", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	sum := sha256.Sum256([]byte(verifier))
	challenge := base64.RawURLEncoding.EncodeToString(sum[:])

	setFlowCookie(w, verifierCookie, verifier)
	setFlowCookie(w, stateCookie, state)

	params := url.Values{}
	params.Set("client_id", o.cfg.AppID)
	params.Set("response_type", "code")
	params.Set("scope", "ads")
	params.Set("redirect_uri", o.cfg.RedirectURI)
	params.Set("state", state)
	params.Set("code_challenge", challenge)
	params.Set("code_challenge_method", "S256")

	http.Redirect(w, r, authorizeURL+"?"+params.Encode(), http.StatusFound)
}

// tokenResponse is the id.vk.com token exchange payload.
type tokenResponse struct {
	AccessToken      string `json:"access_token"`
	RefreshToken     string `json:"refresh_token"`
	ExpiresIn        int64  `json:"expires_in"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// HandleCallback finishes the flow: verifies state against the cookie,
// exchanges the code for tokens and shows them for copy-out.
func (o *OAuth) HandleCallback(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	state := r.URL.Query().Get("state")
	cookieState := cookieValue(r, stateCookie)
	verifier := cookieValue(r, verifierCookie)

	if code == "" || state == "" || verifier == "" || state != cookieState {
		http.Error(w, "invalid state or code", http.StatusBadRequest)
		return
	}

	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("client_id", o.cfg.AppID)
	form.Set("client_secret", o.cfg.AppSecret)
	form.Set("redirect_uri", o.cfg.RedirectURI)
	form.Set("code", code)
	form.Set("code_verifier", verifier)

	req, err := http.NewRequestWithContext(r.Context(), http.MethodPost, tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		o.logger.Error("failed to create token request", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		o.logger.Error("token exchange failed", zap.Error(err))
		http.Error(w, "token exchange failed", http.StatusInternalServerError)
		return
	}
	defer resp.Body.Close()

	var tokens tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tokens); err != nil {
		o.logger.Error("failed to decode token response", zap.Error(err))
		http.Error(w, "token exchange failed", http.StatusInternalServerError)
		return
	}
	if tokens.Error != "" {
		o.logger.Error("vk token error",
			zap.String("error", tokens.Error),
			zap.String("description", tokens.ErrorDescription),
		)
		http.Error(w, "VK error: "+tokens.ErrorDescription, http.StatusBadRequest)
		return
	}

	clearFlowCookie(w, verifierCookie)
	clearFlowCookie(w, stateCookie)

	refresh := tokens.RefreshToken
	if refresh == "" {
		refresh = "(not returned)"
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, `<pre style="font-size:14px; line-height:1.4; white-space:pre-wrap;">
VECTOR_GW_VK_ACCESS_TOKEN = %s
VECTOR_GW_VK_REFRESH_TOKEN = %s
EXPIRES_IN = %d sec

Copy the tokens into the environment and restart.
Check with /cron/pull-vk?key=&lt;cron secret&gt;
</pre>`, html.EscapeString(tokens.AccessToken), html.EscapeString(refresh), tokens.ExpiresIn)
}

func randomToken(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func secretMatches(got, want string) bool {
	if want == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

func setFlowCookie(w http.ResponseWriter, name, value string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(cookieTTL.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func clearFlowCookie(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
}

func cookieValue(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}
