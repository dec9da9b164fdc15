// Package mux is the payload multiplexer (C4): it interleaves N item
// Encrypt-then-MAC pipelines into a single payload stream under a
// deterministic PRNG schedule, in the Simple, Frameshift, or Fabric
// layout variants.
package mux

import "errors"

var errUnknownVariant = errors.New("mux: unknown payload scheme")
