package register

import (
	// Pull in the core's advisory power-gauge collector.
	_ "github.com/slurm-sched/coresched/internal/core"
)
