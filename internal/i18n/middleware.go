package i18n

import "net/http"

// Middleware attaches a localizer for the server-wide language to every
// request context. The language is fixed per process (the --lang flag),
// so one localizer is shared across requests.
func Middleware(lang string) func(http.Handler) http.Handler {
	loc := NewLocalizer(lang)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := WithLocalizer(r.Context(), loc)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
