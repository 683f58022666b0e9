// internal/i18n/keys.go
package i18n

// Translation keys constants
const (
	// Common
	KeySuccess       = "success"
	KeyError         = "error"
	KeyInternalError = "error.internal"
	KeyRateLimited   = "error.rate_limited"

	// Authentication
	KeyAuthRequired     = "auth.required"
	KeyAuthInvalidToken = "auth.invalid_token"
	KeyAuthTokenExpired = "auth.token_expired"
	KeyAccessDenied     = "auth.access_denied"

	// Validation
	KeyValidationInvalid = "validation.invalid"

	// Resources, looked up as "<resource>.not_found"
	KeyGroupNotFound   = "group.not_found"
	KeyProductNotFound = "product.not_found"
	KeyListingNotFound = "listing.not_found"
	KeyOrderNotFound   = "order.not_found"

	KeyConcurrentUpdate = "conflict.concurrent_update"

	// Marketplace
	KeyPieceOrderingDisabled = "listing.piece_ordering_disabled"
	KeyInvalidConfiguration  = "listing.invalid_configuration"
	KeyPiecesInvalid         = "listing.pieces_invalid"
)
