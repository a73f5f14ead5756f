package loadgen

// Generation defaults.
const (
	defaultSubmissions  = 100
	defaultParticipants = 20
	defaultWorkers      = 8
	defaultMinLength    = 40
	defaultLengthSpread = 80
)

const (
	workerChannelMultiplier = 2
	percentageMultiplier    = 100
	directoryPermission     = 0o750
)
