// Package keys manages the identity key-pair of a ledgersync node.
//
// Every node of the pool owns a secp256k1 key-pair. The public key, in
// uncompressed hexadecimal form, is what other nodes list in their
// peers.json file; a short numeric identifier is derived from it for logs
// and statistics.
package keys
