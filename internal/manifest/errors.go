package manifest

import (
	"errors"

	"github.com/ocpkg/ocpkg/internal/ocerrors"
)

var (
	errMissingEphemeralKey   = ocerrors.NewConfigFieldError("scheme_config.ephemeral_public_key", errors.New("manifest: UM1Hybrid scheme requires an ephemeral public key"))
	errUnknownScheme         = ocerrors.NewConfigFieldError("scheme_config.scheme", errors.New("manifest: unknown crypto scheme"))
	errPathTraversal         = errors.New("manifest: relative_path contains a \"..\" segment")
	errMissingSchemeConfig   = ocerrors.NewConfigFieldError("payload_cfg", errors.New("manifest: payload scheme requires a scheme-specific config"))
	errSchemeConfigOutOfRange = ocerrors.NewConfigFieldError("payload_cfg", errors.New("manifest: payload scheme config out of allowed range"))
	errUnknownPayloadScheme  = ocerrors.NewConfigFieldError("payload_cfg.scheme", errors.New("manifest: unknown payload scheme"))
	errNoItems               = errors.New("manifest: at least one payload item is required")
	errDuplicateIdentifier   = errors.New("manifest: duplicate item identifier")
)
