// Package transport provides the links over which instrument commands travel.
//
// A Transport owns exactly one connection, either a serial port (SerialTransport)
// or a TCP socket (TCPTransport), and frames ASCII command lines with a configurable
// terminator. Every exchange on one Transport is serialized by a single lock; a query
// holds it for the whole send and receive, so request/reply pairs never interleave.
//
// # Kinds and parameter strings
//
// Instruments offer one or more transport kinds. Each Kind declares a parameter Schema
// used both to build connection UIs and to parse persisted parameter strings:
//
//	serial:<port>[:<baud>[:<flow>[:<parity>]]]
//	tcpip:<ip>[:<user>[:<password>[:<port>]]]
//	socket:<ip>:<port>
//
// # Errors
//
// Link faults (timeouts, closed connections, port or socket failures) wrap
// ErrCommunication. A rejected login wraps ErrLoginFailure. QueryInt and QueryFloat
// report non-numeric replies as *QueryError.
package transport
