package uc

import (
	"github.com/captep/studio/engine/compiler"
	"github.com/captep/studio/engine/core"
	"github.com/captep/studio/engine/workflow"
)

// Factory builds the workflow use cases over one set of dependencies.
type Factory struct {
	repo      workflow.Repository
	refresher Refresher
	assembler *compiler.Assembler
	runtime   Runtime
	metrics   workflow.Metrics
}

func NewFactory(
	repo workflow.Repository,
	refresher Refresher,
	assembler *compiler.Assembler,
	runtime Runtime,
	metrics workflow.Metrics,
) *Factory {
	return &Factory{repo: repo, refresher: refresher, assembler: assembler, runtime: runtime, metrics: metrics}
}

func (f *Factory) Save(input *SaveInput) *SaveWorkflow {
	return NewSaveWorkflow(f.repo, f.metrics, input)
}

func (f *Factory) Load(id core.ID) *LoadWorkflow {
	return NewLoadWorkflow(f.repo, id)
}

func (f *Factory) List(input *ListInput) *ListWorkflows {
	return NewListWorkflows(f.repo, input)
}

func (f *Factory) Compile(id core.ID) *CompileWorkflow {
	return NewCompileWorkflow(f.repo, f.refresher, f.assembler, f.runtime, f.metrics, id)
}

func (f *Factory) Cancel(id core.ID) *CancelWorkflow {
	return NewCancelWorkflow(f.repo, f.runtime, id)
}
