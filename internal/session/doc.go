// Package session implements the one-shot request/response exchange between
// a client and the renewal server.
//
// Each TCP connection carries exactly one request packet and one response
// packet. The server handles connections one at a time: it reads with a
// bounded deadline, applies the availability gate, performs at most one
// renewal and always answers with Ok or Error before closing.
package session
