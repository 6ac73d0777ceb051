// Package rethrow contains the common policies for the on-exception hook of a pipeline.
package rethrow

import "github.com/casualjim/relay/chain"

// Always rethrow the error, the failure reaches the caller
func Always(error) bool {
	return true
}

// Never rethrow, the failure is swallowed and the run returns the context as if it succeeded
func Never(error) bool {
	return false
}

// OnCancel rethrows cancellations and timeouts but swallows other errors
func OnCancel(err error) bool {
	return chain.IsCanceled(err)
}
