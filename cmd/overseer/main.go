package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Dom110/KI-AutoAgent-sub003/internal/config"
	"github.com/Dom110/KI-AutoAgent-sub003/internal/events"
	"github.com/Dom110/KI-AutoAgent-sub003/internal/health"
	"github.com/Dom110/KI-AutoAgent-sub003/internal/iterate"
	"github.com/Dom110/KI-AutoAgent-sub003/internal/model"
	"github.com/Dom110/KI-AutoAgent-sub003/internal/pattern"
	"github.com/Dom110/KI-AutoAgent-sub003/internal/rules"
	"github.com/Dom110/KI-AutoAgent-sub003/internal/validate"
)

const version = "1.0.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "check":
		runCheck(os.Args[2:])
	case "health":
		runHealth(os.Args[2:])
	case "analyze":
		runAnalyze(os.Args[2:])
	case "iterate":
		runIterate(os.Args[2:])
	case "version":
		fmt.Printf("overseer %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

// commonOpts are the flags shared by the state-reading subcommands.
type commonOpts struct {
	statePath  string
	configPath string
	auditPath  string
}

func parseCommon(args []string, usage string) (commonOpts, []string) {
	var opts commonOpts
	var rest []string
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--state":
			if i+1 >= len(args) {
				fmt.Fprintln(os.Stderr, "--state requires a value")
				os.Exit(1)
			}
			i++
			opts.statePath = args[i]
		case "--config":
			if i+1 >= len(args) {
				fmt.Fprintln(os.Stderr, "--config requires a value")
				os.Exit(1)
			}
			i++
			opts.configPath = args[i]
		case "--audit":
			if i+1 >= len(args) {
				fmt.Fprintln(os.Stderr, "--audit requires a value")
				os.Exit(1)
			}
			i++
			opts.auditPath = args[i]
		default:
			rest = append(rest, args[i])
		}
	}
	if opts.statePath == "" {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(1)
	}
	return opts, rest
}

func loadState(path string) *model.WorkflowState {
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read state: %v\n", err)
		os.Exit(1)
	}
	var state model.WorkflowState
	if err := yaml.Unmarshal(data, &state); err != nil {
		fmt.Fprintf(os.Stderr, "parse state: %v\n", err)
		os.Exit(1)
	}
	return &state
}

func loadConfig(path string) *config.Config {
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

// wireAudit attaches a JSONL audit logger to the bus when requested. The
// returned cleanup flushes subscriptions before the process exits.
func wireAudit(bus *events.Bus, path string) func() {
	if path == "" {
		return func() {}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open audit log: %v\n", err)
		os.Exit(1)
	}
	logger := events.NewAuditLogger(f)
	logger.Attach(bus)
	return func() {
		// the bus delivers asynchronously; give in-flight events a moment
		time.Sleep(50 * time.Millisecond)
		logger.Detach()
		f.Close()
	}
}

func printYAML(v interface{}) {
	out, err := yaml.Marshal(v)
	if err != nil {
		fmt.Fprintf(os.Stderr, "encode output: %v\n", err)
		os.Exit(1)
	}
	os.Stdout.Write(out)
}

func runCheck(args []string) {
	usage := "usage: overseer check --state <file> [--config <file>] [--out <file>] [--no-repair] [--audit <file>]"
	opts, rest := parseCommon(args, usage)

	var outPath string
	noRepair := false
	for i := 0; i < len(rest); i++ {
		switch rest[i] {
		case "--out":
			if i+1 >= len(rest) {
				fmt.Fprintln(os.Stderr, "--out requires a value")
				os.Exit(1)
			}
			i++
			outPath = rest[i]
		case "--no-repair":
			noRepair = true
		default:
			fmt.Fprintf(os.Stderr, "unknown flag: %s\n%s\n", rest[i], usage)
			os.Exit(1)
		}
	}

	cfg := loadConfig(opts.configPath)
	if noRepair {
		disabled := false
		cfg.Validator.AutoRepair = &disabled
	}
	state := loadState(opts.statePath)

	bus := events.NewBus(100)
	defer bus.Close()
	cleanup := wireAudit(bus, opts.auditPath)
	defer cleanup()

	checker := rules.NewChecker(rules.Limits{
		MaxMessages:        cfg.Limits.MaxMessages,
		MaxSteps:           cfg.Limits.MaxSteps,
		MaxEscalationLevel: cfg.Limits.MaxEscalationLevel,
	})
	catalogue := rules.NewCatalogue(rules.DefaultThresholds())
	validator := validate.New(cfg.Validator, checker, catalogue, bus)

	valid, issues, repaired := validator.Validate(state)

	type checkOutput struct {
		Valid  bool                       `yaml:"valid"`
		Issues []validate.ValidationIssue `yaml:"issues,omitempty"`
	}
	printYAML(checkOutput{Valid: valid, Issues: issues})

	if outPath != "" {
		data, err := yaml.Marshal(repaired)
		if err != nil {
			fmt.Fprintf(os.Stderr, "encode repaired state: %v\n", err)
			os.Exit(1)
		}
		if err := os.WriteFile(outPath, data, 0644); err != nil {
			fmt.Fprintf(os.Stderr, "write repaired state: %v\n", err)
			os.Exit(1)
		}
	}

	if !valid {
		os.Exit(1)
	}
}

func runHealth(args []string) {
	usage := "usage: overseer health --state <file> [--config <file>] [--audit <file>]"
	opts, rest := parseCommon(args, usage)
	if len(rest) > 0 {
		fmt.Fprintf(os.Stderr, "unknown flag: %s\n%s\n", rest[0], usage)
		os.Exit(1)
	}

	cfg := loadConfig(opts.configPath)
	state := loadState(opts.statePath)

	bus := events.NewBus(100)
	defer bus.Close()
	cleanup := wireAudit(bus, opts.auditPath)
	defer cleanup()

	monitor := health.NewMonitor(rules.Limits{
		MaxMessages:        cfg.Limits.MaxMessages,
		MaxSteps:           cfg.Limits.MaxSteps,
		MaxEscalationLevel: cfg.Limits.MaxEscalationLevel,
	}, bus, os.Stderr)

	report := monitor.Check(state)
	printYAML(report)

	if report.Label == health.LabelCritical {
		os.Exit(1)
	}
}

func runAnalyze(args []string) {
	usage := "usage: overseer analyze --state <file> [--audit <file>]"
	opts, rest := parseCommon(args, usage)
	if len(rest) > 0 {
		fmt.Fprintf(os.Stderr, "unknown flag: %s\n%s\n", rest[0], usage)
		os.Exit(1)
	}

	state := loadState(opts.statePath)

	bus := events.NewBus(100)
	defer bus.Close()
	cleanup := wireAudit(bus, opts.auditPath)
	defer cleanup()

	engine := pattern.NewEngine(bus)
	report := engine.Analyze(state)

	type analyzeOutput struct {
		Patterns        []pattern.Finding `yaml:"patterns,omitempty"`
		Anomalies       []pattern.Finding `yaml:"anomalies,omitempty"`
		RiskScore       float64           `yaml:"risk_score"`
		Recommendations []string          `yaml:"recommendations,omitempty"`
	}
	printYAML(analyzeOutput{
		Patterns:        report.Patterns,
		Anomalies:       report.Anomalies,
		RiskScore:       report.RiskScore,
		Recommendations: report.Recommendations,
	})
}

func runIterate(args []string) {
	usage := "usage: overseer iterate --current <n> [--max <n>] [--decision <choice>]"

	current := -1
	max := 0
	var decision string
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--current":
			if i+1 >= len(args) {
				fmt.Fprintln(os.Stderr, "--current requires a value")
				os.Exit(1)
			}
			i++
			if _, err := fmt.Sscanf(args[i], "%d", &current); err != nil {
				fmt.Fprintf(os.Stderr, "invalid --current value: %s\n", args[i])
				os.Exit(1)
			}
		case "--max":
			if i+1 >= len(args) {
				fmt.Fprintln(os.Stderr, "--max requires a value")
				os.Exit(1)
			}
			i++
			if _, err := fmt.Sscanf(args[i], "%d", &max); err != nil {
				fmt.Fprintf(os.Stderr, "invalid --max value: %s\n", args[i])
				os.Exit(1)
			}
		case "--decision":
			if i+1 >= len(args) {
				fmt.Fprintln(os.Stderr, "--decision requires a value")
				os.Exit(1)
			}
			i++
			decision = args[i]
		default:
			fmt.Fprintf(os.Stderr, "unknown flag: %s\n%s\n", args[i], usage)
			os.Exit(1)
		}
	}

	controller := iterate.NewController(max, nil, os.Stderr)

	if decision != "" {
		d, err := controller.ExecuteDecision(iterate.RemediationChoice(decision))
		if err != nil {
			fmt.Fprintf(os.Stderr, "iterate: %v\n", err)
		}
		printYAML(map[string]interface{}{
			"choice":    string(d.Choice),
			"signal":    string(d.Signal),
			"extend_by": d.ExtendBy,
			"warning":   d.Warning,
		})
		return
	}

	if current < 0 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(1)
	}

	result := controller.Check(current, iterate.QualityResult{})
	type iterateOutput struct {
		LimitReached bool                        `yaml:"limit_reached"`
		Remaining    int                         `yaml:"remaining"`
		Options      []iterate.RemediationOption `yaml:"options,omitempty"`
		Primary      string                      `yaml:"primary,omitempty"`
	}
	printYAML(iterateOutput{
		LimitReached: result.LimitReached,
		Remaining:    result.Remaining,
		Options:      result.Options,
		Primary:      string(result.Primary),
	})
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `overseer %s — Workflow safety and control plane

Usage: overseer <command> [options]

Commands:
  check    Validate a workflow state file and auto-repair what it can
  health   Score a workflow state across the five health categories
  analyze  Detect routing patterns and statistical anomalies
  iterate  Inspect the iteration budget or map a remediation decision
  version  Show version
  help     Show this help

Common flags:
  --state <file>    Workflow state snapshot (YAML)
  --config <file>   Control-plane configuration (YAML, optional)
  --audit <file>    Append governance events as JSONL

`, version)
}
