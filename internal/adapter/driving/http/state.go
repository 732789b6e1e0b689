package httphandler

import (
	"net/http"

	"github.com/ericfisherdev/adpanel/internal/domain/model"
)

const (
	stateCookieName = "adpanel_oauth_state"
	// stateCookieMaxAge bounds how long an authorization attempt may take.
	stateCookieMaxAge = 10 * 60
)

// setStateCookie stores the OAuth state for p, scoped to p's callback path so
// concurrent attempts for different providers do not collide.
func setStateCookie(w http.ResponseWriter, p model.Provider, state string, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     callbackPath(string(p)),
		MaxAge:   stateCookieMaxAge,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   secure,
	})
}

// readStateCookie returns the state issued for this browser, or "".
func readStateCookie(r *http.Request) string {
	cookie, err := r.Cookie(stateCookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// clearStateCookie expires the state cookie so a state is used at most once.
func clearStateCookie(w http.ResponseWriter, rawProvider string, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    "",
		Path:     callbackPath(rawProvider),
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   secure,
	})
}

func callbackPath(provider string) string {
	return "/callback/" + provider
}
