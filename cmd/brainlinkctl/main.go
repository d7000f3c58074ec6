package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"

	"brainlink/internal/contract"
	"brainlink/internal/decode"
	"brainlink/internal/feedback"
	"brainlink/internal/model"
	"brainlink/internal/recorder"
	"brainlink/internal/session"
)

func main() {
	if err := run(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usageError("missing command")
	}

	switch args[0] {
	case "sync":
		return runSync(ctx, args[1:])
	case "decode":
		return runDecode(ctx, args[1:])
	case "raster":
		return runRaster(ctx, args[1:])
	case "runs":
		return runRuns(ctx, args[1:])
	case "export":
		return runExport(ctx, args[1:])
	default:
		return usageError(fmt.Sprintf("unknown command: %s", args[0]))
	}
}

// runSync fetches (or reads) a run contract and scaffolds the policy
// workspace around it.
func runSync(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("sync", flag.ContinueOnError)
	baseURL := fs.String("base-url", os.Getenv("BRAINLINK_BASE_URL"), "backend base url")
	apiKey := fs.String("api-key", os.Getenv("BRAINLINK_API_KEY"), "backend api key")
	projectID := fs.String("project", "", "project id")
	contractFile := fs.String("contract-file", "", "read the contract from a JSON file instead of the backend")
	dir := fs.String("dir", ".", "policy workspace directory")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var c model.Contract
	switch {
	case *contractFile != "":
		raw, err := os.ReadFile(*contractFile)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(raw, &c); err != nil {
			return fmt.Errorf("parse contract file %s: %w", *contractFile, err)
		}
		c.Constants.ApplyDefaults()
	default:
		if *projectID == "" {
			return usageError("sync requires -project or -contract-file")
		}
		client, err := session.NewClient(session.ClientConfig{BaseURL: *baseURL, APIKey: *apiKey})
		if err != nil {
			return err
		}
		c, err = client.Contract(ctx, *projectID)
		if err != nil {
			return err
		}
	}

	result, err := contract.Scaffold(c, *dir)
	if err != nil {
		return err
	}
	fmt.Printf("contract checksum %s\n", result.Checksum)
	fmt.Printf("workspace %s\n", result.Dir)
	if result.CreatedRewardPolicy {
		fmt.Println("created reward_policy.go")
	}
	if result.CreatedDeviationPolicy {
		fmt.Println("created deviation_policy.go")
	}
	return nil
}

// runDecode reads spike rows and a mapping table from JSON files and
// prints the decoded command list.
func runDecode(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("decode", flag.ContinueOnError)
	rowsFile := fs.String("rows", "", "JSON file of spike rows")
	mappingFile := fs.String("mapping", "", "JSON file of mapping records")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *rowsFile == "" || *mappingFile == "" {
		return usageError("decode requires -rows and -mapping")
	}

	var rows []any
	if err := readJSON(*rowsFile, &rows); err != nil {
		return err
	}
	var mapping []any
	if err := readJSON(*mappingFile, &mapping); err != nil {
		return err
	}

	commands := decode.DecodeLoose(rows, mapping)
	out, err := json.MarshalIndent(commands, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

// runRaster builds a feedback raster from a deviation file and reports its
// shape and spike density.
func runRaster(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("raster", flag.ContinueOnError)
	deviationsFile := fs.String("deviations", "", "JSON file of per-timestep deviations")
	n := fs.Int("n", model.DefaultFeedbackN, "feedback population size")
	deadZone := fs.Float64("dead-zone", 0, "deviation dead zone")
	seed := fs.Int64("seed", 0, "random seed (0 = time-based)")
	outFile := fs.String("out", "", "write the raster JSON here instead of stdout summary only")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *deviationsFile == "" {
		return usageError("raster requires -deviations")
	}

	var deviations []float64
	if err := readJSON(*deviationsFile, &deviations); err != nil {
		return err
	}

	cfg := feedback.Config{N: *n, DeadZone: *deadZone}
	if *seed != 0 {
		cfg.Rand = rand.New(rand.NewSource(*seed))
	}
	raster, err := feedback.Build(deviations, cfg)
	if err != nil {
		return err
	}

	nonzero := 0
	for _, v := range raster {
		if v != 0 {
			nonzero++
		}
	}
	fmt.Printf("raster T=%d N=%d len=%d nonzero=%d\n", len(deviations), *n, len(raster), nonzero)
	if *outFile != "" {
		out, err := json.Marshal(raster)
		if err != nil {
			return err
		}
		if err := os.WriteFile(*outFile, out, 0o644); err != nil {
			return err
		}
		fmt.Printf("wrote %s (%s)\n", *outFile, humanize.Bytes(uint64(len(out))))
	}
	return nil
}

// runRuns lists locally recorded runs.
func runRuns(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	storeKind := fs.String("store", recorder.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", "brainlink.db", "sqlite database path")
	limit := fs.Int("limit", 20, "maximum runs to list")
	if err := fs.Parse(args); err != nil {
		return err
	}

	store, err := recorder.NewStore(*storeKind, *dbPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = recorder.CloseIfSupported(store)
	}()
	if err := store.Init(ctx); err != nil {
		return err
	}

	runs, err := store.ListRuns(ctx)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no recorded runs")
		return nil
	}
	if *limit > 0 && len(runs) > *limit {
		runs = runs[len(runs)-*limit:]
	}

	color := isatty.IsTerminal(os.Stdout.Fd())
	for _, r := range runs {
		status := "stopped"
		if r.StoppedAt.IsZero() {
			status = "running"
		}
		started := humanize.Time(r.StartedAt)
		line := fmt.Sprintf("%-36s  %-10s  %-8s  started %s", r.ID, r.ProjectID, status, started)
		if color && status == "running" {
			line = "\033[32m" + line + "\033[0m"
		}
		fmt.Println(line)
	}
	return nil
}

// runExport dumps one recorded run (header, cycles, commands, rewards,
// baselines) into a directory of JSON files.
func runExport(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	storeKind := fs.String("store", recorder.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", "brainlink.db", "sqlite database path")
	runID := fs.String("run", "", "run id to export")
	outDir := fs.String("out", "exports", "output directory")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *runID == "" {
		return usageError("export requires -run")
	}

	store, err := recorder.NewStore(*storeKind, *dbPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = recorder.CloseIfSupported(store)
	}()
	if err := store.Init(ctx); err != nil {
		return err
	}

	header, ok, err := store.GetRun(ctx, *runID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("run %s not found", *runID)
	}

	dir := filepath.Join(*outDir, *runID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	var total uint64
	write := func(name string, v any) error {
		out, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return err
		}
		total += uint64(len(out))
		return os.WriteFile(filepath.Join(dir, name), out, 0o644)
	}

	if err := write("run.json", header); err != nil {
		return err
	}
	if cycles, ok, err := store.GetCycles(ctx, *runID); err != nil {
		return err
	} else if ok {
		if err := write("cycles.json", cycles); err != nil {
			return err
		}
	}
	if commands, ok, err := store.GetCommands(ctx, *runID); err != nil {
		return err
	} else if ok {
		if err := write("commands.json", commands); err != nil {
			return err
		}
	}
	if rewards, ok, err := store.GetRewards(ctx, *runID); err != nil {
		return err
	} else if ok {
		if err := write("rewards.json", rewards); err != nil {
			return err
		}
	}
	if baselines, ok, err := store.GetBaselines(ctx, *runID); err != nil {
		return err
	} else if ok {
		if err := write("baselines.json", baselines); err != nil {
			return err
		}
	}

	fmt.Printf("exported run %s to %s (%s, started %s)\n",
		*runID, dir, humanize.Bytes(total), humanize.Time(header.StartedAt))
	return nil
}

func readJSON(path string, v any) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func usageError(msg string) error {
	return fmt.Errorf("%s\nusage: brainlinkctl <sync|decode|raster|runs|export> [flags]", msg)
}
