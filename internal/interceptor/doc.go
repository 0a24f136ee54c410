// Package interceptor provides ready-made interceptors for the dispatch
// execution chain: request logging, request IDs, Prometheus metrics, rate
// limiting, circuit breaking and distributed tracing.
package interceptor
