package handler

import (
	"net/http"
	"net/http/httputil"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/edvin/frontstack/internal/api/response"
	"github.com/edvin/frontstack/internal/api/rewrite"
)

var upstreamRequestsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "frontend_upstream_requests_total",
		Help: "Requests forwarded to the backend, by upstream status code or error",
	},
	[]string{"code"},
)

// Proxy forwards /api/ requests to the backend. Failed upstream calls are
// answered with 502 and never retried.
type Proxy struct {
	backend *url.URL
	proxy   *httputil.ReverseProxy
	logger  zerolog.Logger
}

func NewProxy(backend *url.URL, logger zerolog.Logger) *Proxy {
	p := &Proxy{backend: backend, logger: logger}
	p.proxy = &httputil.ReverseProxy{
		Rewrite:        p.rewrite,
		ModifyResponse: p.observe,
		ErrorHandler:   p.fail,
	}
	return p
}

func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !rewrite.Matches(r.URL.EscapedPath()) {
		response.WriteError(w, http.StatusNotFound, "not found")
		return
	}
	p.proxy.ServeHTTP(w, r)
}

func (p *Proxy) rewrite(pr *httputil.ProxyRequest) {
	target, _ := rewrite.Target(p.backend, pr.In.URL)
	pr.Out.URL = target
	pr.Out.Host = ""
	pr.SetXForwarded()
}

func (p *Proxy) observe(resp *http.Response) error {
	upstreamRequestsTotal.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()
	return nil
}

func (p *Proxy) fail(w http.ResponseWriter, r *http.Request, err error) {
	upstreamRequestsTotal.WithLabelValues("error").Inc()
	p.logger.Warn().Err(err).
		Str("request_id", middleware.GetReqID(r.Context())).
		Str("path", r.URL.Path).
		Str("backend", p.backend.Host).
		Msg("upstream request failed")
	response.WriteError(w, http.StatusBadGateway, "upstream unavailable")
}
