package config

const (
	defaultWorkdir        = "out/work"
	defaultResultDir      = "out/results"
	defaultLogDir         = "out/logs"
	defaultWorkers        = 4
	defaultContextMode    = "process"
	defaultBackend        = "local"
	defaultCPUs           = 1
	defaultTerminateGrace = 10
	defaultSGEPE          = "mpi"
	defaultSGESlots       = 1
	defaultSGEPoll        = 5
	defaultLogFormat      = "console"
	defaultLogLevel       = "info"
	defaultTagLayout      = "060102-150405"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			Workdir:   defaultWorkdir,
			ResultDir: defaultResultDir,
			LogDir:    defaultLogDir,
		},
		Pipeline: Pipeline{
			Workers:      defaultWorkers,
			RequireFiles: true,
			ContextMode:  defaultContextMode,
		},
		Executor: Executor{
			Backend:        defaultBackend,
			CPUs:           defaultCPUs,
			TerminateGrace: defaultTerminateGrace,
		},
		SGE: SGE{
			PE:           defaultSGEPE,
			Slots:        defaultSGESlots,
			PollInterval: defaultSGEPoll,
			Qsub:         "qsub",
			Qstat:        "qstat",
			Qacct:        "qacct",
			Qdel:         "qdel",
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
