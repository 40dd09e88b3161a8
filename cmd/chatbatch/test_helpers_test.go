package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"chatbatch/internal/testsupport"
)

type cliTestEnv struct {
	baseDir    string
	configPath string
	dataPath   string
	outputPath string
	server     *testsupport.ChatServer
}

type envOptions struct {
	reply        func([]testsupport.ChatMessage) testsupport.ChatReply
	extraConfig  string
	prompts      []string
	withoutInput bool
	maxAttempts  int
}

func setupCLITestEnv(t *testing.T, opts envOptions) *cliTestEnv {
	t.Helper()

	base := t.TempDir()
	homeDir := filepath.Join(base, "home")
	if err := os.MkdirAll(homeDir, 0o755); err != nil {
		t.Fatalf("mkdir home: %v", err)
	}
	t.Setenv("HOME", homeDir)
	t.Setenv("CHATBATCH_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")

	reply := opts.reply
	if reply == nil {
		reply = testsupport.EchoReply
	}
	srv := testsupport.NewChatServer(t, reply)

	env := &cliTestEnv{
		baseDir:    base,
		configPath: filepath.Join(base, "config.toml"),
		dataPath:   filepath.Join(base, "input.jsonl"),
		outputPath: filepath.Join(base, "out", "results.jsonl"),
		server:     srv,
	}
	if !opts.withoutInput {
		prompts := opts.prompts
		if len(prompts) == 0 {
			prompts = []string{"alpha", "beta", "gamma"}
		}
		testsupport.WriteJSONL(t, env.dataPath, testsupport.PromptRows(prompts...)...)
	}
	writeTestConfig(t, env, opts.maxAttempts, opts.extraConfig)
	return env
}

func writeTestConfig(t *testing.T, env *cliTestEnv, maxAttempts int, extra string) {
	t.Helper()
	content := fmt.Sprintf(`[api]
base_url = %q
model = "test/model"
api_key = "test-key"

[data]
path = %q
type = "jsonl"
format = "prompt_column"

[processes]
parallel = 2
max_attempts = %d

[output]
path = %q
checkpoint_interval = 1

[logging]
level = "warn"
%s`, env.server.URL, env.dataPath, maxAttempts, env.outputPath, extra)
	if err := os.WriteFile(env.configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
