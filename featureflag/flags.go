package featureflag

type Flag string

const (
	// Tiles are always read from their source.
	FlagDisableTileCache Flag = "DISABLE_TILE_CACHE"

	// The /events WebSocket endpoint is not served.
	FlagDisableTileEvents Flag = "DISABLE_TILE_EVENTS"

	// Tile servers are requested without rate limiting.
	FlagDisableRateLimit Flag = "DISABLE_RATE_LIMIT"
)
