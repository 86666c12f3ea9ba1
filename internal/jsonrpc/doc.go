// Package jsonrpc defines the JSON-RPC 2.0 wire types shared by the execution
// engine, the async dispatch core and the HTTP transport, together with the
// error codes those layers agree on.
package jsonrpc
