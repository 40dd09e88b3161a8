package preflight

import (
	"context"
	"path/filepath"

	"chatbatch/internal/config"
	"chatbatch/internal/dataset"
	"chatbatch/internal/services/llm"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail"`
}

// Options tunes RunAll, mostly for tests.
type Options struct {
	HubEndpoint string
	HubToken    string
	LLMOptions  []llm.Option
}

// RunAll executes all applicable preflight checks for the given config.
// Checks are only run when the corresponding feature is enabled.
func RunAll(ctx context.Context, cfg *config.Config, opts Options) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result

	// Input (always checked)
	if cfg.Data.Type == config.DataTypeHF {
		token := opts.HubToken
		if token == "" {
			token = dataset.HubTokenFromEnv()
		}
		results = append(results, CheckHubDataset(ctx, opts.hubEndpoint(), cfg.Data.Path, token))
	} else {
		results = append(results, CheckFileReadable("Dataset", cfg.Data.Path))
	}

	// Output directory (when persistence is configured)
	if cfg.PersistenceEnabled() {
		out := dataset.OutputPath(cfg.Output)
		results = append(results, CheckOutputDirectory("Output directory", filepath.Dir(out)))
	}

	results = append(results, CheckLLM(ctx, "Chat API", cfg.LLM(), opts.LLMOptions...))

	// Judge LLM (only when it resolves to a different model)
	if judgeUsesDistinctModel(cfg) {
		results = append(results, CheckLLM(ctx, "Judge API", cfg.JudgeLLM(), opts.LLMOptions...))
	}

	return results
}

func (o Options) hubEndpoint() string {
	if o.HubEndpoint != "" {
		return o.HubEndpoint
	}
	return dataset.DefaultHubEndpoint
}

// judgeUsesDistinctModel returns true when the judge verifier is enabled and
// talks to a model other than the dispatch model. When they're identical, the
// chat API check already covers it.
func judgeUsesDistinctModel(cfg *config.Config) bool {
	if !cfg.Verification.Enabled || cfg.Verification.Method != config.VerifyJudge {
		return false
	}
	return cfg.JudgeLLM().Model != cfg.LLM().Model
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}
