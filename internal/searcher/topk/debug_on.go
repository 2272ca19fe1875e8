//go:build topkdebug

package topk

// checkBounds makes a bound violation panic.
const checkBounds = true
