package db

// TransferStatus values are stored as small integers. The numbering is part
// of the persisted data contract and must not be reordered.
type TransferStatus int

const (
	TransferFailed     TransferStatus = 0
	TransferCompleted  TransferStatus = 1
	TransferPending    TransferStatus = 2
	TransferProcessing TransferStatus = 3
)

type CommandStatus int

const (
	CommandUnprocessed CommandStatus = 0
	CommandReady       CommandStatus = 1
	CommandNeedsLookup CommandStatus = 2
)

const (
	CommandNotSent = 0
	CommandSent    = 1
)
