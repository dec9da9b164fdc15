package mux

import (
	"github.com/ocpkg/ocpkg/internal/manifest"
	"github.com/ocpkg/ocpkg/internal/ocrand"
)

// frameshiftLen samples this bracket's padding length. A fixed min==max
// config skips the PRNG draw entirely; otherwise L is drawn from
// [min, max] inclusive via NextInRange(min, max+1), whose upper bound is
// exclusive.
func frameshiftLen(cfg *manifest.FrameshiftConfig, scheduler *ocrand.Scheduler) (int, error) {
	if cfg.Min == cfg.Max {
		return cfg.Min, nil
	}
	return scheduler.NextInRange(cfg.Min, cfg.Max+1)
}

// fabricLen samples this turn's stripe length, same fixed-vs-sampled rule
// as frameshiftLen.
func fabricLen(cfg *manifest.FabricConfig, scheduler *ocrand.Scheduler) (int, error) {
	if cfg.Min == cfg.Max {
		return cfg.Min, nil
	}
	return scheduler.NextInRange(cfg.Min, cfg.Max+1)
}

// randomPadding draws n bytes from the default entropy source. Frameshift
// padding is authenticated (AbsorbExtra) but never decrypted back out, so
// its content never needs to be reproducible — only its length does, and
// that comes from the scheduler, not from this source.
func randomPadding(n int) ([]byte, error) {
	return ocrand.NewCryptoSource().Read(n)
}
