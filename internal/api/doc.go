// Package api hosts the HTTP server, middleware, and REST handlers for
// operator access. Notable routes:
//   - GET /healthz / readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/messages to enqueue a captured message for extraction.
//   - GET /v1/products to read recently stored records.
//   - POST/GET /v1/users and POST /v1/notifications for the Telegram
//     notification side-channel.
package api
