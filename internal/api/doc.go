// Package api hosts the HTTP server, middleware and page handlers of the site.
// Notable routes:
//   - GET / and /articulos/... for the news pages.
//   - GET /mercados/dashboard.json for the commodity dashboard.
//   - GET /normativa/api/list for the regulation directory.
//   - GET /healthz and /readyz for probes, /metrics for Prometheus.
//   - GET /sitemap.xml and /news-sitemap.xml for crawlers.
package api
