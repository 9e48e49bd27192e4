package common

// Cookie names shared by the HTTP layer and its tests.
const (
	// TempTokenCookieName carries the single-use token between the password
	// step and the TOTP step of sign-in.
	TempTokenCookieName = "2fa-temp-token"

	// SessionCookieName carries the signed session token.
	SessionCookieName = "session"
)

// MediaPathPrefix is the public path under which uploaded media is served.
const MediaPathPrefix = "/api/media/"
