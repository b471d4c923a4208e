package config

const (
	defaultStateDir          = "~/.local/share/bibtag"
	defaultLogFormat         = "console"
	defaultLogLevel          = "info"
	defaultExiftoolBinary    = "exiftool"
	defaultPreviewBinary     = "rawpreview"
	defaultRecognitionPreset = "balanced"

	defaultRecognitionTimeout = 60
	defaultRecognitionRetries = 4

	defaultAcceptFloor     = 0.55
	defaultScoreEpsilon    = 0.05
	defaultMaxEditDistance = 2
	defaultNumberWeight    = 0.75
	defaultTokenWeight     = 0.25
	defaultCategoryPenalty = 0.30

	defaultClusterGapSeconds     = 3.0
	defaultLowConfidence         = 0.45
	defaultNeighborFloor         = 0.70
	defaultSupermajorityFraction = 0.60
	defaultTemporalMaxWait       = 30

	defaultDecodeWorkers    = 2
	defaultRecognizeWorkers = 4
	defaultMatchWorkers     = 2
	defaultCommitWorkers    = 2

	defaultQueuePollInterval  = 1
	defaultErrorRetryInterval = 5
	defaultHeartbeatInterval  = 15
	defaultHeartbeatTimeout   = 120

	defaultMinFreeDiskGiB         = 2
	defaultMaxResidentMemoryMiB   = 2048
	defaultResourceSampleInterval = 10
	defaultCounterRefreshInterval = 5

	defaultPreviewTimeout = 30
	defaultCommitTimeout  = 30
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir: defaultStateDir,
		},
		Recognition: Recognition{
			QualityPreset:  defaultRecognitionPreset,
			TimeoutSeconds: defaultRecognitionTimeout,
			RetryAttempts:  defaultRecognitionRetries,
		},
		Preview: Preview{
			Binary:         defaultPreviewBinary,
			TimeoutSeconds: defaultPreviewTimeout,
		},
		Matcher: Matcher{
			AcceptFloor:     defaultAcceptFloor,
			ScoreEpsilon:    defaultScoreEpsilon,
			MaxEditDistance: defaultMaxEditDistance,
			NumberWeight:    defaultNumberWeight,
			TokenWeight:     defaultTokenWeight,
			CategoryPenalty: defaultCategoryPenalty,
		},
		Temporal: Temporal{
			ClusterGapSeconds:     defaultClusterGapSeconds,
			LowConfidence:         defaultLowConfidence,
			NeighborFloor:         defaultNeighborFloor,
			SupermajorityFraction: defaultSupermajorityFraction,
			MaxWaitSeconds:        defaultTemporalMaxWait,
		},
		Commit: Commit{
			Mode:           "auto",
			KeywordPolicy:  "append",
			ExiftoolBinary: defaultExiftoolBinary,
			TimeoutSeconds: defaultCommitTimeout,
		},
		Workflow: Workflow{
			DecodeWorkers:          defaultDecodeWorkers,
			RecognizeWorkers:       defaultRecognizeWorkers,
			MatchWorkers:           defaultMatchWorkers,
			CommitWorkers:          defaultCommitWorkers,
			QueuePollInterval:      defaultQueuePollInterval,
			ErrorRetryInterval:     defaultErrorRetryInterval,
			HeartbeatInterval:      defaultHeartbeatInterval,
			HeartbeatTimeout:       defaultHeartbeatTimeout,
			MinFreeDiskGiB:         defaultMinFreeDiskGiB,
			MaxResidentMemoryMiB:   defaultMaxResidentMemoryMiB,
			ResourceSampleInterval: defaultResourceSampleInterval,
			CounterRefreshInterval: defaultCounterRefreshInterval,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
