package httpapi

import (
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"
)

// Routes lists "METHOD /pattern" for every route registered on h. Handlers not
// built by NewMux yield nil.
func Routes(h http.Handler) []string {
	rt, ok := h.(chi.Routes)
	if !ok {
		return nil
	}
	var out []string
	_ = chi.Walk(rt, func(method, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		out = append(out, method+" "+route)
		return nil
	})
	sort.Strings(out)
	return out
}
