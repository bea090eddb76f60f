package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/FairForge/marketplace/internal/access"
	"github.com/FairForge/marketplace/internal/addons"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// AddonParam is the route parameter holding an add-on id or slug.
const AddonParam = "addon_id"

// AddonHandlerFunc serves a request for an already resolved add-on.
type AddonHandlerFunc func(w http.ResponseWriter, r *http.Request, addon *addons.Addon)

// QuerySetFunc returns the query set to resolve against. It runs on every
// request so per-request state (locale, filters) is never captured early.
type QuerySetFunc func(r *http.Request) addons.QuerySet

// ParamFunc reads a named route parameter from a request.
type ParamFunc func(r *http.Request, name string) string

// ChiParam reads parameters set by a chi router.
func ChiParam(r *http.Request, name string) string { return chi.URLParam(r, name) }

// MuxParam reads parameters set by a gorilla/mux router.
func MuxParam(r *http.Request, name string) string { return mux.Vars(r)[name] }

// AddonViewOption customizes AddonView.
type AddonViewOption func(*addonView)

// WithParam sets how the identifier is read from the request.
func WithParam(fn ParamFunc) AddonViewOption {
	return func(v *addonView) { v.param = fn }
}

// WithParamName changes the route parameter name.
func WithParamName(name string) AddonViewOption {
	return func(v *addonView) { v.paramName = name }
}

// WithViewLogger sets the logger used for lookup errors.
func WithViewLogger(logger *zap.Logger) AddonViewOption {
	return func(v *addonView) { v.logger = logger }
}

type addonView struct {
	qs        QuerySetFunc
	next      AddonHandlerFunc
	param     ParamFunc
	paramName string
	logger    *zap.Logger
}

// AddonView resolves the add-on named by the route parameter and calls
// next with it.
//
// A numeric identifier is looked up by id; when the add-on's slug differs
// from the identifier the client is permanently redirected to the slug
// URL, query string included. Anything else is looked up by slug only.
// Missing add-ons and unlisted add-ons the caller may not see both yield
// 404.
func AddonView(qs QuerySetFunc, next AddonHandlerFunc, opts ...AddonViewOption) http.Handler {
	v := &addonView{
		qs:        qs,
		next:      next,
		param:     ChiParam,
		paramName: AddonParam,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// AddonViewFactory binds a query set to AddonView. qs is not called
// until a request arrives.
func AddonViewFactory(qs QuerySetFunc, opts ...AddonViewOption) func(AddonHandlerFunc) http.Handler {
	return func(next AddonHandlerFunc) http.Handler {
		return AddonView(qs, next, opts...)
	}
}

func (v *addonView) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	addonID := v.param(r, v.paramName)
	if addonID == "" {
		v.logger.Error("addon view mounted without identifier", zap.String("param", v.paramName), zap.String("path", r.URL.Path))
		http.NotFound(w, r)
		return
	}

	qs := v.qs(r)
	var (
		addon *addons.Addon
		err   error
	)
	if isDigits(addonID) {
		id, perr := strconv.ParseInt(addonID, 10, 64)
		if perr != nil {
			http.NotFound(w, r)
			return
		}
		addon, err = qs.ByID(r.Context(), id)
		if err == nil && addon.Slug != addonID {
			// A numeric slug equal to the id must not redirect to itself.
			url := replaceSegment(r.URL.Path, addonID, addon.Slug)
			if r.URL.RawQuery != "" {
				url += "?" + r.URL.RawQuery
			}
			w.Header().Set("Location", url)
			w.WriteHeader(http.StatusMovedPermanently)
			return
		}
	} else {
		addon, err = qs.BySlug(r.Context(), addonID)
	}

	if err != nil {
		if !errors.Is(err, addons.ErrNotFound) {
			v.logger.Error("addon lookup failed", zap.String("addon_id", addonID), zap.Error(err))
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		http.NotFound(w, r)
		return
	}

	if !access.CanView(r, addon) {
		http.NotFound(w, r)
		return
	}

	v.next(w, r, addon)
}

// replaceSegment swaps the last path segment equal to old for repl.
func replaceSegment(path, old, repl string) string {
	segs := strings.Split(path, "/")
	for i := len(segs) - 1; i >= 0; i-- {
		if segs[i] == old {
			segs[i] = repl
			return strings.Join(segs, "/")
		}
	}
	return path
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
