package featureflag

type Flag string

const (
	// FlagValidateTrees checks the tree invariants after each update.
	FlagValidateTrees Flag = "VALIDATE_TREES"

	// FlagDisableRebalance turns off tree rotations.
	FlagDisableRebalance Flag = "DISABLE_REBALANCE"

	// FlagInlineJobs runs query branches on the querying goroutine instead of
	// the worker pool.
	FlagInlineJobs Flag = "INLINE_JOBS"

	FlagDisableWebsocket Flag = "DISABLE_WEBSOCKET"
)
