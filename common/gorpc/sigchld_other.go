//go:build !unix

package gorpc

// ignoreSIGCHLD is a no-op on platforms without SIGCHLD.
func ignoreSIGCHLD() {}
