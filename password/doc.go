// Package password implements credential hashing and verification with bcrypt.
//
// Digests carry their own salt and cost factor, so verification needs no
// out-of-band parameters. A malformed or truncated digest is reported as a
// plain verification failure, never as a distinct error the caller could
// leak to a client.
//
// This package owns hashing, verification, and the minimum-length floor.
// It must not store or log plaintext passwords and must not import any
// other authcore package.
package password
