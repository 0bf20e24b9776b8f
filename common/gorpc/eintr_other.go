//go:build !unix

package gorpc

func isEINTR(err error) bool { return false }
