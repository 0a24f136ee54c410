// Package dispatch implements the request-dispatch core of the routing
// layer: a concurrently-mutable registry of mapping criteria to handler
// references, best-match resolution with ambiguity detection, and an
// ordered interceptor chain around handler invocation.
//
// # Features
//
//   - Thread-safe registration and removal of mappings at any time
//   - Direct-path fast lookup with a full-scan fallback
//   - Request-scoped ranking with a hard error on true ties
//   - Permissive sentinel handling for ambiguous CORS preflights
//   - Per-request execution chains with pre/post/completion phases
//   - Isolated completion and async-notification failures
//
// # Usage
//
// Create a handler mapping with a concrete routing strategy, register
// handlers, and resolve requests:
//
//	hm := dispatch.NewHandlerMapping(strategy)
//	err := hm.RegisterMapping(mapping, handlerRef)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	chain, req, err := hm.Resolve(request)
//	if chain != nil {
//	    // Drive chain.ApplyPreHandle, the handler, chain.ApplyPostHandle,
//	    // and chain.TriggerAfterCompletion.
//	}
package dispatch
