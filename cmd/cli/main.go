package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/himanishpuri/codematch/internal/config"
	"github.com/himanishpuri/codematch/internal/metrics"
	"github.com/himanishpuri/codematch/pkg/logger"
	"github.com/himanishpuri/codematch/pkg/trackstore"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Global flags
var (
	configPath string
	dbDSN      string
	dbDriver   string
	strategy   string
	tempDir    string
	traceSQL   bool
)

func init() {
	flag.StringVar(&configPath, "config", getEnvOrDefault("CODEMATCH_CONFIG", "codematch.toml"), "Path to the TOML config file")
	flag.StringVar(&dbDSN, "db", "", "Database DSN (overrides database.dsn)")
	flag.StringVar(&dbDriver, "driver", "", "Database driver: sqlite or mysql (overrides database.driver)")
	flag.StringVar(&strategy, "strategy", "", "Code load strategy: batch or file (overrides ingest.strategy)")
	flag.StringVar(&tempDir, "temp", "", "Directory for spooled code files (overrides ingest.temp_dir)")
	flag.BoolVar(&traceSQL, "trace-sql", false, "Log every SQL statement")
	flag.Usage = printUsage
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

type command struct {
	name       string
	args       string
	help       string
	needsStore bool
	run        func(ctx context.Context, a *app, args []string) error
}

var commands = []command{
	{"add", "<fingerprint.json>... [-artist <id>]", "Add the tracks in one or more fingerprint files", true, handleAdd},
	{"match", "<fingerprint.json> [-n <results>]", "Rank stored tracks against a query fingerprint", true, handleMatch},
	{"get", "<track_id>", "Show one track", true, handleGet},
	{"find", "<name_pattern>", "Find the first track whose name matches a LIKE pattern", true, handleFind},
	{"list", "[-offset <n>] [-limit <n>]", "List stored tracks", true, handleList},
	{"rename", "<track_id> <new_name>", "Change a track's name", true, handleRename},
	{"delete", "<track_id>", "Delete a track and its codes", true, handleDelete},
	{"delete-name", "<exact_name>", "Delete the single track with this name", true, handleDeleteName},
	{"ingest", "<file>... [-workers <n>]", "Bulk-add fingerprint files concurrently", true, handleIngest},
	{"watch", "<dir> [-metrics-addr <addr>]", "Ingest fingerprint files dropped into a directory", true, handleWatch},
	{"init-config", "[path] [-force]", "Write a default config file", false, handleInitConfig},
}

// app carries what a command needs once configuration is resolved.
type app struct {
	cfg      *config.Config
	log      *logger.Logger
	registry *prometheus.Registry
	store    *trackstore.DBStore
}

func main() {
	flag.Parse()

	if flag.NArg() < 1 {
		printUsage()
		os.Exit(1)
	}

	name := flag.Arg(0)
	var cmd *command
	for i := range commands {
		if commands[i].name == name {
			cmd = &commands[i]
			break
		}
	}
	if cmd == nil {
		fmt.Printf("Unknown command: %s\n", name)
		printUsage()
		os.Exit(1)
	}

	a, err := newApp(cmd.needsStore)
	if err != nil {
		fmt.Printf("❌ %v\n", err)
		os.Exit(1)
	}
	a.log.Debugf("Executing command: %s", name)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = cmd.run(ctx, a, flag.Args()[1:])
	stop()

	if cerr := a.close(); cerr != nil {
		a.log.Warnf("closing store: %v", cerr)
	}
	if err != nil {
		fmt.Printf("\n❌ %v\n", err)
		a.log.Errorf("%s failed: %v", name, err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	if dbDSN != "" {
		cfg.Database.DSN = dbDSN
	}
	if dbDriver != "" {
		cfg.Database.Driver = dbDriver
	}
	if strategy != "" {
		cfg.Ingest.Strategy = strategy
	}
	if tempDir != "" {
		cfg.Ingest.TempDir = tempDir
	}
	if traceSQL {
		cfg.Logging.TraceSQL = true
		cfg.Logging.Level = "debug"
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func newApp(withStore bool) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:      cfg,
		log:      cfg.NewLogger(),
		registry: prometheus.NewRegistry(),
	}
	if !withStore {
		return a, nil
	}

	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	opts := append(cfg.StoreOptions(),
		trackstore.WithLogger(a.log.WithPrefix("trackstore:")),
		trackstore.WithMetrics(metrics.NewStore(a.registry)),
	)
	a.store, err = trackstore.Open(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to open track store: %w", err)
	}
	return a, nil
}

func (a *app) close() error {
	if a.store == nil {
		return nil
	}
	return a.store.Disconnect()
}

// parseCommand parses a subcommand's flags. Positional arguments may come
// before the flags, so "add song.json -artist AR1" works.
func parseCommand(fs *flag.FlagSet, args []string) ([]string, error) {
	var positional []string
	for len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		positional = append(positional, args[0])
		args = args[1:]
	}
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return append(positional, fs.Args()...), nil
}

func printUsage() {
	fmt.Println("codematch - fingerprint track store CLI")
	fmt.Println("\nGlobal Options:")
	fmt.Println("  -config <path>     Config file (env: CODEMATCH_CONFIG, default: codematch.toml)")
	fmt.Println("  -db <dsn>          Database DSN: a file path for sqlite, user:pass@tcp(host:3306)/db for mysql")
	fmt.Println("  -driver <name>     sqlite or mysql")
	fmt.Println("  -strategy <name>   batch or file")
	fmt.Println("  -temp <dir>        Directory for spooled code files")
	fmt.Println("  -trace-sql         Log every SQL statement")
	fmt.Println("\nCommands:")
	for _, c := range commands {
		fmt.Printf("  %-12s %s\n", c.name, c.args)
		fmt.Printf("  %-12s %s\n", "", c.help)
	}
	fmt.Println("\nExamples:")
	fmt.Println("  codematch init-config")
	fmt.Println("  codematch add song.json -artist AR12345")
	fmt.Println("  codematch -driver mysql -db 'echo:pw@tcp(db:3306)/echoprint' -strategy file ingest dump/*.json")
	fmt.Println("  codematch match query.json -n 5")
	fmt.Println("  codematch watch ./incoming -metrics-addr :9464")
}
