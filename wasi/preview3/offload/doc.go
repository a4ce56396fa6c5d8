// Package offload runs blocking host operations in isolated execution
// contexts, away from the cooperative caller.
//
// A Pool owns zero or more contexts. Each context has a private Handler
// (built by the pool's HandlerFactory) holding that context's host
// resources. Submit assigns a correlation id, queues the request on a live
// or newly spawned context and returns a future immediately:
//
//	pool := offload.NewPool(offload.Config{Name: "sockets"}, newSocketHandler)
//	defer pool.Close(ctx)
//
//	v, err := pool.Submit("tcp-create", req).Await(ctx)
//
// Requests touching a resource that lives in one context are routed there
// with WithContext; handlers learn their own id through ContextFrom.
//
// # Lifecycle
//
// Contexts are spawned lazily up to Config.MaxContexts and reclaimed once
// nothing is pending and their handler reports Idle. A panic inside a
// handler (or inside a goroutine started with Go) faults the context:
// every request pending on it is rejected with a *FaultError, transferred
// endpoints are abandoned, and the handler is closed.
package offload
