package auth

import (
	"net/http"
	"time"
)

// CookieConfig holds cookie configuration settings
type CookieConfig struct {
	Name     string
	Domain   string // Empty string = current host only
	Secure   bool   // HTTPS only
	SameSite string // "strict", "lax", or "none"
}

// SetSessionCookie writes an HttpOnly cookie carrying token for maxAge
func SetSessionCookie(w http.ResponseWriter, token string, maxAge time.Duration, config CookieConfig) {
	cookie := &http.Cookie{
		Name:     config.Name,
		Value:    token,
		Path:     "/",
		Domain:   config.Domain,
		Expires:  time.Now().Add(maxAge),
		MaxAge:   int(maxAge / time.Second),
		HttpOnly: true,
		Secure:   config.Secure,
		SameSite: parseSameSite(config.SameSite),
	}
	http.SetCookie(w, cookie)
}

// ClearSessionCookie expires the cookie in the browser
func ClearSessionCookie(w http.ResponseWriter, config CookieConfig) {
	cookie := &http.Cookie{
		Name:     config.Name,
		Value:    "",
		Path:     "/",
		Domain:   config.Domain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   config.Secure,
		SameSite: parseSameSite(config.SameSite),
	}
	http.SetCookie(w, cookie)
}

// GetSessionCookie returns the cookie value, or "" when absent
func GetSessionCookie(r *http.Request, name string) string {
	cookie, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return cookie.Value
}

func parseSameSite(sameSite string) http.SameSite {
	switch sameSite {
	case "strict":
		return http.SameSiteStrictMode
	case "lax":
		return http.SameSiteLaxMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteDefaultMode
	}
}
