// Package rpc is the synchronous JSON-RPC execution engine. A Registry maps
// method names to procedures along with the capability tags declared at
// registration time, and an Endpoint decodes serialized requests, runs them
// through an interceptor chain and the resolved procedure, and encodes the
// responses.
package rpc
