// Package server hosts the Fiber HTTP service and the request middleware
// chain sitting in front of the blob handlers: panic recovery, request IDs,
// optional Prometheus instrumentation, and the dispatcher that validates the
// /XXX request path before handing (method, key) to a BlobHandler. Anything
// that does not match the path contract or uses an unsupported verb is
// answered here without touching the cache directory.
package server
