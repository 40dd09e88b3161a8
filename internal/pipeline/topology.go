package pipeline

import (
	"context"
	"fmt"
	"strings"
)

// Stage names used in logs, metrics and the topology description.
const (
	StageDispatch   = "dispatch"
	StageVerify     = "verify"
	StageCollect    = "collect"
	StageCheckpoint = "checkpoint"
)

// StageInfo describes one enabled stage.
type StageInfo struct {
	Name    string
	Workers int
}

type stageSpec struct {
	name    string
	workers int
	run     func(b *batch, ctx context.Context, worker int) error
}

// buildTopology lists the enabled stages in pipeline order. Optional stages
// are decided here once; the stage loops never check whether they are enabled.
func buildTopology(opts Options) []stageSpec {
	stages := []stageSpec{{
		name:    StageDispatch,
		workers: opts.Workers,
		run:     dispatchStage(opts.Verifier != nil),
	}}
	if opts.Verifier != nil {
		stages = append(stages, stageSpec{
			name:    StageVerify,
			workers: opts.VerifyWorkers,
			run:     (*batch).verifyLoop,
		})
	}
	stages = append(stages, stageSpec{
		name:    StageCollect,
		workers: 1,
		run:     (*batch).collectLoop,
	})
	if opts.CheckpointInterval > 0 {
		stages = append(stages, stageSpec{
			name:    StageCheckpoint,
			workers: 1,
			run:     (*batch).checkpointLoop,
		})
	}
	return stages
}

// Topology returns the enabled stages in order.
func (p *Pipeline) Topology() []StageInfo {
	out := make([]StageInfo, 0, len(p.topology))
	for _, st := range p.topology {
		out = append(out, StageInfo{Name: st.name, Workers: st.workers})
	}
	return out
}

func describeTopology(stages []stageSpec) string {
	parts := make([]string, 0, len(stages))
	for _, st := range stages {
		parts = append(parts, fmt.Sprintf("%s(%d)", st.name, st.workers))
	}
	return strings.Join(parts, " -> ")
}
