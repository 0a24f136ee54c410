// Package route provides the concrete routing strategy for the dispatch
// machinery: path, method, header and query matchers compiled from
// configuration, specificity-based ranking, and optional CEL request
// conditions.
//
// # Features
//
//   - Exact, prefix, parameter ("/users/{id}"), wildcard and regex path
//     matching with parameter extraction
//   - Bounded LRU cache for compiled regular expressions
//   - Route ranking by match specificity, literal paths first
//   - CEL conditions evaluated against request attributes
//   - Live route table swaps driven by configuration reloads
package route
