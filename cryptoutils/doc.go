// Package cryptoutils provides typed PEM wrappers for TLS credential
// material and the generator for the throwaway self-signed certificate used
// when no credential is configured.
package cryptoutils
