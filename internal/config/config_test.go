package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func TestValidate_NormalizesCommaDelimitedTargets(t *testing.T) {
	cfg := New()
	cfg.Targeting.Targets = []string{"https://github.com/acme/foo, https://github.com/acme/bar", "./local", ",,"}

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() returned error: %v", err)
	}

	want := []string{"https://github.com/acme/foo", "https://github.com/acme/bar", "./local"}
	if !reflect.DeepEqual(cfg.Targeting.Targets, want) {
		t.Fatalf("Targets normalized mismatch: got %v want %v", cfg.Targeting.Targets, want)
	}
}

func TestValidate_RequiresTargets(t *testing.T) {
	cfg := New()
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error, got nil")
	}
}

func TestValidate_AppendsTargetsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "targets.txt")
	content := "# benchmark set\nhttps://github.com/acme/one\n\n  https://github.com/acme/two  \n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write targets file: %v", err)
	}

	cfg := New()
	cfg.Targeting.Targets = []string{"https://github.com/acme/zero"}
	cfg.Targeting.TargetsFile = path
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() returned error: %v", err)
	}

	want := []string{"https://github.com/acme/zero", "https://github.com/acme/one", "https://github.com/acme/two"}
	if !reflect.DeepEqual(cfg.Targeting.Targets, want) {
		t.Fatalf("Targets mismatch: got %v want %v", cfg.Targeting.Targets, want)
	}

	// Validate is idempotent: the file is consumed once.
	if err := cfg.Validate(); err != nil {
		t.Fatalf("second Validate() returned error: %v", err)
	}
	if len(cfg.Targeting.Targets) != 3 {
		t.Fatalf("expected 3 targets after second Validate, got %v", cfg.Targeting.Targets)
	}
}

func TestValidate_MissingTargetsFile(t *testing.T) {
	cfg := New()
	cfg.Targeting.TargetsFile = filepath.Join(t.TempDir(), "nope.txt")
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error, got nil")
	}
}

func TestValidate_SplitsToolCommandString(t *testing.T) {
	cfg := New()
	cfg.Targeting.Targets = []string{"x"}
	cfg.Tool.Command = []string{"  cargo-rusty-ex   --print-metadata "}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() returned error: %v", err)
	}
	want := []string{"cargo-rusty-ex", "--print-metadata"}
	if !reflect.DeepEqual(cfg.Tool.Command, want) {
		t.Fatalf("Command mismatch: got %v want %v", cfg.Tool.Command, want)
	}
}

func TestValidate_ParsesMaxOutput(t *testing.T) {
	tests := []struct {
		raw  string
		want int64
	}{
		{raw: "", want: 0},
		{raw: "0", want: 0},
		{raw: "4096", want: 4096},
		{raw: "64MiB", want: 64 << 20},
		{raw: "1 kB", want: 1000},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			cfg := New()
			cfg.Targeting.Targets = []string{"x"}
			cfg.Supervision.MaxOutput = tt.raw
			if err := cfg.Validate(); err != nil {
				t.Fatalf("Validate() returned error: %v", err)
			}
			if cfg.Supervision.MaxOutputBytes != tt.want {
				t.Fatalf("MaxOutputBytes = %d, want %d", cfg.Supervision.MaxOutputBytes, tt.want)
			}
		})
	}
}

func TestValidate_RejectsInvalidConsoleFormat(t *testing.T) {
	tests := []struct {
		name          string
		consoleFormat string
	}{
		{name: "empty", consoleFormat: ""},
		{name: "spaces", consoleFormat: "   "},
		{name: "unknown", consoleFormat: "yaml"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := New()
			cfg.Targeting.Targets = []string{"x"}
			cfg.Output.ConsoleFormat = tt.consoleFormat
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected error, got nil")
			}
		})
	}
}

func TestValidate_AllowsKnownConsoleFormats(t *testing.T) {
	for _, f := range []string{"text", "json", "ndjson", " NDJSON "} {
		t.Run(f, func(t *testing.T) {
			cfg := New()
			cfg.Targeting.Targets = []string{"x"}
			cfg.Output.ConsoleFormat = f
			if err := cfg.Validate(); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
		})
	}
}

func TestValidate_RejectsInvalidEmit(t *testing.T) {
	cfg := New()
	cfg.Targeting.Targets = []string{"x"}
	cfg.Output.Emit = []string{"ndjson", "yaml"}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error, got nil")
	}
}

func TestValidate_MakesWorkDirAbsolute(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}

	cfg := New()
	cfg.Targeting.Targets = []string{"x"}
	cfg.Targeting.WorkDir = "work"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() returned error: %v", err)
	}
	if want := filepath.Join(wd, "work"); cfg.Targeting.WorkDir != want {
		t.Fatalf("WorkDir = %q, want %q", cfg.Targeting.WorkDir, want)
	}
}

func TestValidate_InfersOutAndReportFormats(t *testing.T) {
	cfg := New()
	cfg.Targeting.Targets = []string{"x"}
	cfg.Output.Out = "results/run.jsonl"
	cfg.Output.Report = "results/table.tex"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() returned error: %v", err)
	}
	if cfg.Output.OutFormat != "ndjson" {
		t.Fatalf("OutFormat = %q, want ndjson", cfg.Output.OutFormat)
	}
	if cfg.Output.ReportFormat != "latex" {
		t.Fatalf("ReportFormat = %q, want latex", cfg.Output.ReportFormat)
	}
}

func TestValidate_RejectsUninferableFormats(t *testing.T) {
	tests := []struct {
		name      string
		mutateCfg func(cfg *Config)
	}{
		{name: "out_no_ext", mutateCfg: func(cfg *Config) { cfg.Output.Out = "results" }},
		{name: "out_unknown_ext", mutateCfg: func(cfg *Config) { cfg.Output.Out = "results.csv" }},
		{name: "out_bad_format", mutateCfg: func(cfg *Config) { cfg.Output.Out = "r.json"; cfg.Output.OutFormat = "xml" }},
		{name: "report_unknown_ext", mutateCfg: func(cfg *Config) { cfg.Output.Report = "r.html" }},
		{name: "report_bad_format", mutateCfg: func(cfg *Config) { cfg.Output.Report = "r.md"; cfg.Output.ReportFormat = "html" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := New()
			cfg.Targeting.Targets = []string{"x"}
			tt.mutateCfg(cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected error, got nil")
			}
		})
	}
}

func TestValidate_RejectsInvalidBounds(t *testing.T) {
	tests := []struct {
		name      string
		mutateCfg func(cfg *Config)
	}{
		{name: "zero_concurrency", mutateCfg: func(cfg *Config) { cfg.Runtime.Concurrency = 0 }},
		{name: "negative_timeout", mutateCfg: func(cfg *Config) { cfg.Runtime.Timeout = -1 }},
		{name: "zero_unit_timeout", mutateCfg: func(cfg *Config) { cfg.Supervision.Timeout = 0 }},
		{name: "zero_sample_interval", mutateCfg: func(cfg *Config) { cfg.Supervision.SampleInterval = 0 }},
		{name: "zero_grace", mutateCfg: func(cfg *Config) { cfg.Supervision.GracePeriod = 0 }},
		{name: "zero_pre_timeout", mutateCfg: func(cfg *Config) { cfg.Supervision.PreCommandTimeout = 0 }},
		{name: "bad_max_output", mutateCfg: func(cfg *Config) { cfg.Supervision.MaxOutput = "lots" }},
		{name: "empty_tool", mutateCfg: func(cfg *Config) { cfg.Tool.Command = []string{" "} }},
		{name: "empty_scratch", mutateCfg: func(cfg *Config) { cfg.Tool.ScratchManifest = "" }},
		{name: "empty_work_dir", mutateCfg: func(cfg *Config) { cfg.Targeting.WorkDir = " " }},
		{name: "bad_log_format", mutateCfg: func(cfg *Config) { cfg.Runtime.LogFormat = "xml" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := New()
			cfg.Targeting.Targets = []string{"x"}
			tt.mutateCfg(cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected error, got nil")
			}
		})
	}
}

func TestNew_Defaults(t *testing.T) {
	cfg := New()
	if cfg.Supervision.Timeout != 600*time.Second {
		t.Fatalf("unit timeout default = %v", cfg.Supervision.Timeout)
	}
	if cfg.Supervision.SampleInterval != 10*time.Millisecond {
		t.Fatalf("sample interval default = %v", cfg.Supervision.SampleInterval)
	}
	if cfg.Tool.Toolchain != DefaultToolchain {
		t.Fatalf("toolchain default = %q", cfg.Tool.Toolchain)
	}
	if !reflect.DeepEqual(cfg.Tool.Command, []string{"cargo-rusty-ex", "--print-metadata"}) {
		t.Fatalf("tool default = %v", cfg.Tool.Command)
	}
}

func TestResolveReportFormat_Aliases(t *testing.T) {
	for in, want := range map[string]string{"md": "markdown", "TEX": "latex", "markdown": "markdown"} {
		got, err := ResolveReportFormat("out.txt", in)
		if err != nil {
			t.Fatalf("ResolveReportFormat(%q) error: %v", in, err)
		}
		if got != want {
			t.Fatalf("ResolveReportFormat(%q) = %q, want %q", in, got, want)
		}
	}
}
