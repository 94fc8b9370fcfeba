// towerscan extracts transmission towers from a PCD corridor scan, records
// the run in sqlite and optionally emits per-tower clouds, a summary
// workbook and diagnostic charts.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/caarlos0/env/v10"
	"github.com/golang/geo/r3"
	"github.com/joho/godotenv"

	"github.com/gridline-data/corridor.report/internal/config"
	"github.com/gridline-data/corridor.report/internal/db"
	"github.com/gridline-data/corridor.report/internal/pcd"
	"github.com/gridline-data/corridor.report/internal/report"
	"github.com/gridline-data/corridor.report/internal/towers"
	"github.com/gridline-data/corridor.report/internal/towers/storage/sqlite"
	"github.com/gridline-data/corridor.report/internal/version"
)

var (
	inputFile     = flag.String("input", "", "input PCD point cloud (required unless -migrate)")
	dbFile        = flag.String("db", "corridor_survey.db", "path to the sqlite database file")
	migrationsDir = flag.String("migrations", "migrations", "path to the schema migrations directory")
	configFile    = flag.String("config", "", "extraction config JSON (optional)")
	preset        = flag.String("preset", "", "named parameter preset (default|sparse|strict-dedupe|wide-corridor)")
	workers       = flag.Int("workers", 0, "parallel workers for clustering and geometry (0 = config value)")
	voxelSize     = flag.Float64("voxel", 0, "voxel edge in metres for downsampling (0 = config value)")
	cloudDir      = flag.String("clouds", "", "directory for per-tower PCD exports (empty disables)")
	cloudFormat   = flag.String("cloud-format", "binary", "per-tower PCD encoding (ascii|binary)")
	xlsxPath      = flag.String("xlsx", "", "write the tower summary workbook to this path")
	htmlPath      = flag.String("html", "", "write the HTML overview chart to this path")
	pngPath       = flag.String("png", "", "write the PNG plan view to this path")
	inflation     = flag.String("inflate", "original", "plan view footprint preset (original|conservative|moderate|aggressive)")
	migrateCmd    = flag.String("migrate", "", "run a schema admin command (up|down|version) and exit")
	quiet         = flag.Bool("quiet", false, "suppress progress output")
	showVersion   = flag.Bool("version", false, "print build version and exit")
)

// Env is the resolved operational configuration. Precedence is flags over
// process environment over .env file over the defaults below; extraction
// tuning keeps its own file > preset > compiled-default chain in
// internal/config.
type Env struct {
	Input         string  `env:"TOWERSCAN_INPUT"`
	DBPath        string  `env:"TOWERSCAN_DB" envDefault:"corridor_survey.db"`
	MigrationsDir string  `env:"TOWERSCAN_MIGRATIONS" envDefault:"migrations"`
	ConfigPath    string  `env:"TOWERSCAN_CONFIG"`
	Preset        string  `env:"TOWERSCAN_PRESET"`
	Workers       int     `env:"TOWERSCAN_WORKERS"`
	VoxelSize     float64 `env:"TOWERSCAN_VOXEL"`
	CloudDir      string  `env:"TOWERSCAN_CLOUD_DIR"`
	CloudFormat   string  `env:"TOWERSCAN_CLOUD_FORMAT" envDefault:"binary"`
	XLSXPath      string  `env:"TOWERSCAN_XLSX"`
	HTMLPath      string  `env:"TOWERSCAN_HTML"`
	PNGPath       string  `env:"TOWERSCAN_PNG"`
	Inflation     string  `env:"TOWERSCAN_INFLATE" envDefault:"original"`
}

// flagEnv maps each overridable flag to its environment key. Process
// control flags (-migrate, -quiet) stay out of the environment.
var flagEnv = map[string]string{
	"input":        "TOWERSCAN_INPUT",
	"db":           "TOWERSCAN_DB",
	"migrations":   "TOWERSCAN_MIGRATIONS",
	"config":       "TOWERSCAN_CONFIG",
	"preset":       "TOWERSCAN_PRESET",
	"workers":      "TOWERSCAN_WORKERS",
	"voxel":        "TOWERSCAN_VOXEL",
	"clouds":       "TOWERSCAN_CLOUD_DIR",
	"cloud-format": "TOWERSCAN_CLOUD_FORMAT",
	"xlsx":         "TOWERSCAN_XLSX",
	"html":         "TOWERSCAN_HTML",
	"png":          "TOWERSCAN_PNG",
	"inflate":      "TOWERSCAN_INFLATE",
}

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("towerscan %s (%s, built %s)\n", version.Version, version.GitSHA, version.BuildTime)
		return
	}

	cfg, err := resolveEnv()
	if err != nil {
		log.Fatalf("towerscan: %v", err)
	}

	if *migrateCmd != "" {
		if err := runMigrate(cfg, *migrateCmd); err != nil {
			log.Fatalf("migrate %s: %v", *migrateCmd, err)
		}
		return
	}

	if cfg.Input == "" {
		log.Fatal("no input cloud; use -input or TOWERSCAN_INPUT")
	}

	if err := run(cfg); err != nil {
		log.Fatalf("towerscan: %v", err)
	}
}

// resolveEnv pushes explicitly set flags into the environment, overlays an
// optional .env file for still-unset keys and parses the result.
func resolveEnv() (Env, error) {
	flag.Visit(func(f *flag.Flag) {
		if key, ok := flagEnv[f.Name]; ok {
			os.Setenv(key, f.Value.String())
		}
	})
	_ = godotenv.Load()

	var cfg Env
	if err := env.Parse(&cfg); err != nil {
		return Env{}, fmt.Errorf("parse environment: %w", err)
	}
	return cfg, nil
}

func runMigrate(cfg Env, cmd string) error {
	database, err := db.NewDB(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer database.Close()

	switch cmd {
	case "up":
		return database.MigrateUp(cfg.MigrationsDir)
	case "down":
		return database.MigrateDown(cfg.MigrationsDir)
	case "version":
		v, dirty, err := database.MigrateVersion(cfg.MigrationsDir)
		if err != nil {
			return err
		}
		if dirty {
			fmt.Printf("version %d (dirty)\n", v)
		} else {
			fmt.Printf("version %d\n", v)
		}
		return nil
	default:
		return fmt.Errorf("unknown command %q (want up, down or version)", cmd)
	}
}

func run(cfg Env) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	points, err := loadCloud(cfg.Input)
	if err != nil {
		return err
	}
	log.Printf("loaded %d points from %s", len(points), cfg.Input)

	params, paramsJSON, err := buildParams(cfg)
	if err != nil {
		return err
	}

	database, err := db.NewDB(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer database.Close()
	if err := database.MigrateUp(cfg.MigrationsDir); err != nil {
		return fmt.Errorf("migrate db: %w", err)
	}

	store := sqlite.NewRunStore(database.DB)
	runID, err := store.CreateRun(cfg.Input, paramsJSON)
	if err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	log.Printf("run %s started", runID)

	ex := towers.NewExtractor(params)
	if !*quiet {
		ex.Progress = func(percent int) { log.Printf("progress %d%%", percent) }
	}
	if cfg.CloudDir != "" {
		sink, err := newPCDSink(cfg.CloudDir, cfg.CloudFormat)
		if err != nil {
			return err
		}
		ex.Sink = sink
	}

	result, err := ex.Extract(ctx, points)
	if err != nil {
		if failErr := store.FailRun(runID, err.Error()); failErr != nil {
			log.Printf("record failed run: %v", failErr)
		}
		return fmt.Errorf("extract: %w", err)
	}
	if err := store.CompleteRun(runID, result); err != nil {
		return fmt.Errorf("record run: %w", err)
	}

	log.Printf("extracted %d towers (%d clusters, %d candidates, %d duplicates, %d faults)",
		len(result.Towers), result.Stats.Clusters, result.Stats.Candidates,
		result.Stats.Duplicates, len(result.Faults))
	for _, rec := range result.Towers {
		log.Printf("tower %d: center (%.2f, %.2f) height %.1fm width %.1fm bearing %.1f",
			rec.Seq, rec.Box.Center.X, rec.Box.Center.Y, rec.HeightM, rec.WidthM, rec.NorthAngleDeg)
	}
	for _, flt := range result.Faults {
		log.Printf("fault at %s %d: %s", flt.Stage, flt.Ref, flt.Err)
	}

	return writeReports(cfg, result.Towers)
}

// buildParams resolves the extraction tuning: config file or preset, then
// the operational worker/voxel overrides. The JSON form is persisted with
// the run for auditability.
func buildParams(cfg Env) (towers.Params, string, error) {
	if cfg.ConfigPath != "" && cfg.Preset != "" {
		return towers.Params{}, "", fmt.Errorf("use either a config file or a preset, not both (the file can name a preset itself)")
	}

	var (
		ec  *config.ExtractionConfig
		err error
	)
	switch {
	case cfg.ConfigPath != "":
		ec, err = config.LoadExtractionConfig(cfg.ConfigPath)
	case cfg.Preset != "":
		ec, err = config.PresetConfig(cfg.Preset)
	default:
		ec = config.EmptyExtractionConfig()
	}
	if err != nil {
		return towers.Params{}, "", fmt.Errorf("load config: %w", err)
	}

	params := towers.Params{
		VoxelSize:          ec.GetVoxelSize(),
		HeightOffset:       ec.GetHeightOffset(),
		FallbackOffset:     ec.GetFallbackOffset(),
		MinViablePoints:    ec.GetMinViablePoints(),
		Eps:                ec.GetEps(),
		MinPoints:          ec.GetMinPoints(),
		ChunkSize:          ec.GetChunkSize(),
		Workers:            ec.GetWorkers(),
		MinHeight:          ec.GetMinHeight(),
		MinWidth:           ec.GetMinWidth(),
		MaxWidth:           ec.GetMaxWidth(),
		AspectRatio:        ec.GetAspectRatioThreshold(),
		DuplicateThreshold: ec.GetDuplicateThreshold(),
		StrictThreshold:    ec.GetStrictThreshold(),
		ReplaceWithin:      ec.GetReplaceWithin(),
	}
	if cfg.Workers > 0 {
		params.Workers = cfg.Workers
	}
	if cfg.VoxelSize > 0 {
		params.VoxelSize = cfg.VoxelSize
	}

	raw, err := json.Marshal(params)
	if err != nil {
		return towers.Params{}, "", fmt.Errorf("marshal params: %w", err)
	}
	return params, string(raw), nil
}

// loadCloud reads a PCD file into world-frame points. Scanners emit NaN
// rows for dropped returns; those are stripped here so the pipeline sees a
// clean cloud even when voxel thinning is off.
func loadCloud(path string) ([]r3.Vector, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open cloud: %w", err)
	}
	defer f.Close()

	pc, err := pcd.Parse(f)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	raw, err := pc.XYZ()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	points := make([]r3.Vector, 0, len(raw))
	for _, p := range raw {
		if !isFinite(p) {
			continue
		}
		points = append(points, p)
	}
	if dropped := len(raw) - len(points); dropped > 0 {
		log.Printf("dropped %d non-finite points from %s", dropped, path)
	}
	return points, nil
}

func writeReports(cfg Env, recs []towers.TowerRecord) error {
	if cfg.XLSXPath != "" {
		if err := (report.Workbook{Path: cfg.XLSXPath}).WriteSummary(recs); err != nil {
			return err
		}
		log.Printf("wrote summary workbook %s", cfg.XLSXPath)
	}
	if cfg.HTMLPath != "" {
		if err := report.WriteOverview(cfg.HTMLPath, recs); err != nil {
			return err
		}
		log.Printf("wrote overview chart %s", cfg.HTMLPath)
	}
	if cfg.PNGPath != "" {
		factor, err := report.InflationFactor(cfg.Inflation)
		if err != nil {
			return err
		}
		if err := report.WritePlanView(cfg.PNGPath, recs, factor); err != nil {
			return err
		}
		log.Printf("wrote plan view %s", cfg.PNGPath)
	}
	return nil
}
