package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ryanking13/micropip/internal/config"
	"github.com/ryanking13/micropip/internal/dist"
	"github.com/ryanking13/micropip/internal/fetcher"
	"github.com/ryanking13/micropip/internal/installer"
	"github.com/ryanking13/micropip/internal/mock"
	"github.com/ryanking13/micropip/internal/mockfile"
	"github.com/ryanking13/micropip/internal/runtime"
)

// The INSTALLER text stamped on real (non-mock) installs.
const realInstallerTag = "micropip"

var (
	configPath string
	rootDir    string
	verbose    bool

	addVersion    string
	addPersistent bool
	addModules    []string

	applyPath string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "micropip",
		Short: "Lightweight package installer with mock distribution support",
		Long:  "micropip installs packages onto a Lua module search path and can simulate installed packages with mock distributions, so dependency checks succeed without fetching real code.",
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file path (default ~/.micropip/config.toml)")
	rootCmd.PersistentFlags().StringVar(&rootDir, "root", "", "Module search root (overrides config)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")

	mockCmd := &cobra.Command{
		Use:   "mock",
		Short: "Manage mock distributions",
	}

	mockAddCmd := &cobra.Command{
		Use:   "add NAME",
		Short: "Add a mock distribution",
		Args:  cobra.ExactArgs(1),
		RunE:  runMockAdd,
	}
	mockAddCmd.Flags().StringVar(&addVersion, "version", "1.0.0", "Distribution version")
	mockAddCmd.Flags().BoolVar(&addPersistent, "persistent", false, "Write the mock to the search root instead of memory")
	mockAddCmd.Flags().StringArrayVar(&addModules, "module", nil, "Declared module as NAME or NAME=SOURCE_FILE (repeatable)")

	mockListCmd := &cobra.Command{
		Use:   "list",
		Short: "List mock distributions",
		Args:  cobra.NoArgs,
		RunE:  runMockList,
	}

	mockRemoveCmd := &cobra.Command{
		Use:   "remove NAME",
		Short: "Remove a mock distribution",
		Args:  cobra.ExactArgs(1),
		RunE:  runMockRemove,
	}

	mockApplyCmd := &cobra.Command{
		Use:   "apply",
		Short: "Add every mock declared in a mockfile",
		Args:  cobra.NoArgs,
		RunE:  runMockApply,
	}
	mockApplyCmd.Flags().StringVarP(&applyPath, "file", "f", "./mocks.yaml", "Mockfile path")

	mockCmd.AddCommand(mockAddCmd, mockListCmd, mockRemoveCmd, mockApplyCmd)

	installCmd := &cobra.Command{
		Use:   "install URL|FILE...",
		Short: "Install package archives onto the search root",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runInstall,
	}

	rootCmd.AddCommand(mockCmd, installCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// setup loads configuration and wires a runtime and manager rooted at the
// configured search directory.
func setup() (*config.Config, *runtime.Runtime, *mock.Manager, error) {
	path := configPath
	required := path != ""
	if path == "" {
		path = config.DefaultPath()
	}
	cfg, err := config.Load(path, required)
	if err != nil {
		return nil, nil, nil, err
	}
	if rootDir != "" {
		cfg.Paths.Root = rootDir
	}
	if verbose && cfg.Logging.Verbosity < 1 {
		cfg.Logging.Verbosity = 1
	}
	if cfg.Paths.Root == "" {
		return nil, nil, nil, fmt.Errorf("no module search root configured")
	}

	rt := runtime.New()
	rt.AddDirectory(cfg.Paths.Root)
	mgr := mock.NewManager(rt, cfg.Paths.Root)
	return cfg, rt, mgr, nil
}

func runMockAdd(cmd *cobra.Command, args []string) error {
	cfg, rt, mgr, err := setup()
	if err != nil {
		return err
	}
	defer rt.Close()

	modules, err := parseModuleFlags(addModules)
	if err != nil {
		return err
	}

	if err := mgr.Add(args[0], addVersion, modules, addPersistent); err != nil {
		return err
	}
	cfg.Log(1, "Added mock %s %s", args[0], addVersion)
	if !addPersistent {
		cfg.Log(1, "Note: in-memory mocks last only for this process")
	}
	return nil
}

// parseModuleFlags turns --module NAME or --module NAME=FILE flags into
// builder input. A bare NAME declares an empty module.
func parseModuleFlags(flags []string) (map[string]dist.ModuleSpec, error) {
	if len(flags) == 0 {
		return nil, nil
	}
	modules := make(map[string]dist.ModuleSpec, len(flags))
	for _, f := range flags {
		name, file, found := strings.Cut(f, "=")
		if name == "" {
			return nil, fmt.Errorf("invalid --module value %q", f)
		}
		if !found {
			modules[name] = dist.EmptyModule()
			continue
		}
		src, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("reading module source %s: %w", file, err)
		}
		modules[name] = dist.SourceModule(string(src))
	}
	return modules, nil
}

func runMockList(cmd *cobra.Command, args []string) error {
	_, rt, mgr, err := setup()
	if err != nil {
		return err
	}
	defer rt.Close()

	names, err := mgr.List()
	if err != nil {
		return err
	}
	for _, name := range names {
		fmt.Println(name)
	}
	return nil
}

func runMockRemove(cmd *cobra.Command, args []string) error {
	cfg, rt, mgr, err := setup()
	if err != nil {
		return err
	}
	defer rt.Close()

	if err := mgr.Remove(args[0]); err != nil {
		return err
	}
	cfg.Log(1, "Removed mock %s", args[0])
	return nil
}

func runMockApply(cmd *cobra.Command, args []string) error {
	cfg, rt, mgr, err := setup()
	if err != nil {
		return err
	}
	defer rt.Close()

	file, err := mockfile.ParseFile(applyPath)
	if err != nil {
		return err
	}

	for _, entry := range file.Mocks {
		version := entry.Version
		if version == "" {
			version = "1.0.0"
		}
		if err := mgr.Add(entry.Name, version, entry.ModuleSpecs(), entry.Persistent); err != nil {
			return fmt.Errorf("applying %s: %w", entry.Name, err)
		}
		cfg.Log(1, "Added mock %s %s", entry.Name, version)
	}

	fmt.Printf("Applied %d mocks from %s\n", len(file.Mocks), applyPath)
	return nil
}

func runInstall(cmd *cobra.Command, args []string) error {
	cfg, rt, _, err := setup()
	if err != nil {
		return err
	}
	defer rt.Close()

	f := fetcher.New(cfg.Fetch.Workers, cfg.Fetch.CacheDir)

	// Fetch remote archives into the cache in parallel; local files are
	// installed from where they are.
	var jobs []fetcher.Job
	archives := make([]string, len(args))
	for i, arg := range args {
		if strings.HasPrefix(arg, "http://") || strings.HasPrefix(arg, "https://") {
			dest := f.CachePath(filepath.Base(arg))
			jobs = append(jobs, fetcher.Job{URL: arg, DestPath: dest})
			archives[i] = dest
		} else {
			archives[i] = arg
		}
	}

	for _, result := range f.Fetch(jobs) {
		if result.Error != nil {
			return fmt.Errorf("fetching %s: %w", result.Job.URL, result.Error)
		}
		cfg.Log(1, "Fetched %s", result.Job.URL)
	}

	metadata := map[string]string{"INSTALLER": realInstallerTag}
	for _, archive := range archives {
		if err := installer.InstallFile(archive, cfg.Paths.Root, metadata); err != nil {
			return fmt.Errorf("installing %s: %w", archive, err)
		}
		cfg.Log(1, "Installed %s", archive)
	}
	rt.InvalidateCaches()

	fmt.Printf("Installed %d packages into %s\n", len(archives), cfg.Paths.Root)
	return nil
}
