// Command reloc runs the SCoRe-Forest + Preemptive RANSAC relocaliser over
// a directory of captured frames against a frozen forest, writing one pose
// (or failure) line per frame.
package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	goerrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/BurntSushi/toml"
	"github.com/fatih/color"
	"github.com/golang/geo/r3"
	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"github.com/viam-labs/scorereloc/forest"
	"github.com/viam-labs/scorereloc/logging"
	"github.com/viam-labs/scorereloc/predict"
	"github.com/viam-labs/scorereloc/reloc"
	"github.com/viam-labs/scorereloc/spatialmath"
)

func main() {
	app := &cli.App{
		Name:  "reloc",
		Usage: "camera relocalisation against a frozen SCoRe forest",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "forest", Required: true, Usage: "path to a frozen forest file"},
			&cli.StringFlag{Name: "frames", Required: true, Usage: "directory of frame JSON files"},
			&cli.StringFlag{Name: "config", Usage: "path to a TOML relocaliser config"},
			&cli.StringFlag{Name: "out", Usage: "output CSV path (default stdout)"},
			&cli.StringFlag{Name: "dump-pcd", Usage: "directory to write, per successful frame, a point cloud of each usable keypoint's first-mode mean"},
			// The remaining flags mirror the Configuration table and
			// override the value loaded from --config when set.
			&cli.IntFlag{Name: "m-max", Usage: "override config: initial candidate pool size"},
			&cli.IntFlag{Name: "b", Usage: "override config: inlier samples drawn per round"},
			&cli.IntFlag{Name: "k", Usage: "override config: output modes per keypoint"},
			&cli.IntFlag{Name: "k-in", Usage: "override config: per-tree input modes per keypoint"},
			&cli.Float64Flag{Name: "r-merge", Usage: "override config: mode merge radius, metres"},
			&cli.Float64Flag{Name: "d-min", Usage: "override config: minimum pairwise triple distance, metres"},
			&cli.Float64Flag{Name: "tau-t", Usage: "override config: rigid-transform tolerance on pairwise triple distances, metres"},
			&cli.BoolFlag{Name: "use-all-modes", Usage: "override config: sample candidate modes from every mode, not just the first"},
			&cli.BoolFlag{Name: "check-min-distance", Usage: "override config: reject geometrically close triples"},
			&cli.BoolFlag{Name: "check-rigid-transform", Usage: "override config: reject non-rigid triples"},
			&cli.IntFlag{Name: "max-rounds", Usage: "override config: halving-round budget"},
			&cli.IntFlag{Name: "lm-max-iters", Usage: "override config: refiner LM iteration cap"},
			&cli.Float64Flag{Name: "lm-tol-rel", Usage: "override config: refiner LM relative convergence tolerance"},
			&cli.Int64Flag{Name: "rng-seed", Usage: "override config: base RNG seed"},
		},
		Action: runAction,
		Commands: []*cli.Command{
			{
				Name:  "forest-info",
				Usage: "print summary statistics for a frozen forest file",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "forest", Required: true, Usage: "path to a frozen forest file"},
				},
				Action: forestInfoAction,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "reloc:", err)
		if goerrors.Is(err, errAnyFrameFailed) {
			os.Exit(3)
		}
		os.Exit(2)
	}
}

// errAnyFrameFailed is returned by runAction when every frame was read and
// relocalisation ran to completion, but at least one frame's relocalisation
// failed (EmptyCandidatePool, Timeout, or Cancelled) — the spec's exit code
// 3. Any other error (bad flags, an unreadable forest or frames directory)
// is a usage error, exit code 2.
var errAnyFrameFailed = goerrors.New("reloc: at least one frame failed relocalisation")

// frameFile is the JSON on-disk representation of one captured frame: a
// flat list of keypoints and the descriptor vector the forest was trained
// on, aligned 1:1 with Keypoints. Capture and feature extraction are
// external collaborators (out of scope); this is only the hand-off shape
// the CLI reads.
type frameFile struct {
	Keypoints []struct {
		X, Y, Z float64
		Valid   bool
	} `json:"keypoints"`
	Features [][]float32 `json:"features"`
}

type flatDescriptorImage struct {
	features [][]float32
}

func (d flatDescriptorImage) Width() int  { return len(d.features) }
func (d flatDescriptorImage) Height() int { return 1 }
func (d flatDescriptorImage) At(x, _ int) []float32 {
	return d.features[x]
}

func loadFrame(path string) (reloc.KeypointImage, flatDescriptorImage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return reloc.KeypointImage{}, flatDescriptorImage{}, errors.Wrapf(err, "reading frame %s", path)
	}
	var ff frameFile
	if err := json.Unmarshal(data, &ff); err != nil {
		return reloc.KeypointImage{}, flatDescriptorImage{}, errors.Wrapf(err, "decoding frame %s", path)
	}

	kps := make([]reloc.Keypoint, len(ff.Keypoints))
	for i, kp := range ff.Keypoints {
		kps[i] = reloc.Keypoint{Pos: r3.Vector{X: kp.X, Y: kp.Y, Z: kp.Z}, Valid: kp.Valid}
	}
	return reloc.KeypointImage{W: len(kps), H: 1, Keypoints: kps}, flatDescriptorImage{features: ff.Features}, nil
}

func loadConfig(path string) (reloc.Config, error) {
	if path == "" {
		return reloc.DefaultConfig(), nil
	}
	var cfg reloc.Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return reloc.Config{}, errors.Wrapf(err, "decoding config %s", path)
	}
	return cfg.WithDefaults(), nil
}

// applyFlagOverrides replaces every Config field whose matching CLI flag was
// explicitly set, leaving values loaded from --config (or the compiled-in
// defaults) untouched otherwise. Flags mirror the Configuration table 1:1.
func applyFlagOverrides(cfg reloc.Config, cCtx *cli.Context) reloc.Config {
	if cCtx.IsSet("m-max") {
		cfg.MMax = cCtx.Int("m-max")
	}
	if cCtx.IsSet("b") {
		cfg.B = cCtx.Int("b")
	}
	if cCtx.IsSet("k") {
		cfg.K = cCtx.Int("k")
	}
	if cCtx.IsSet("k-in") {
		cfg.KIn = cCtx.Int("k-in")
	}
	if cCtx.IsSet("r-merge") {
		cfg.RMerge = cCtx.Float64("r-merge")
	}
	if cCtx.IsSet("d-min") {
		cfg.DMin = cCtx.Float64("d-min")
	}
	if cCtx.IsSet("tau-t") {
		cfg.TauT = cCtx.Float64("tau-t")
	}
	if cCtx.IsSet("use-all-modes") {
		cfg.UseAllModes = cCtx.Bool("use-all-modes")
	}
	if cCtx.IsSet("check-min-distance") {
		cfg.CheckMinDistance = cCtx.Bool("check-min-distance")
	}
	if cCtx.IsSet("check-rigid-transform") {
		cfg.CheckRigidTransform = cCtx.Bool("check-rigid-transform")
	}
	if cCtx.IsSet("max-rounds") {
		v := cCtx.Int("max-rounds")
		cfg.MaxRounds = &v
	}
	if cCtx.IsSet("lm-max-iters") {
		cfg.LMMaxIters = cCtx.Int("lm-max-iters")
	}
	if cCtx.IsSet("lm-tol-rel") {
		cfg.LMTolRel = cCtx.Float64("lm-tol-rel")
	}
	if cCtx.IsSet("rng-seed") {
		cfg.RngSeed = cCtx.Int64("rng-seed")
	}
	return cfg
}

// frameResult is one frame's outcome: its status, pose (zero value on
// failure), and the loop stats Relocalise reported.
type frameResult struct {
	frameID string
	status  string
	pose    spatialmath.Pose
	stats   *reloc.FrameStats
}

func runAction(cCtx *cli.Context) error {
	runID := uuid.New()
	logger := logging.New(logging.INFO)
	logger.Infow("starting relocalisation run", "run_id", runID)

	f, err := os.Open(cCtx.String("forest"))
	if err != nil {
		return errors.Wrap(err, "opening forest file")
	}
	defer f.Close()

	frst, err := forest.Load(f)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(cCtx.String("config"))
	if err != nil {
		return err
	}
	cfg = applyFlagOverrides(cfg, cCtx)

	framePaths, err := listFrameFiles(cCtx.String("frames"))
	if err != nil {
		return err
	}

	out := os.Stdout
	if outPath := cCtx.String("out"); outPath != "" {
		file, err := os.Create(outPath)
		if err != nil {
			return errors.Wrap(err, "creating output file")
		}
		defer file.Close()
		out = file
	}
	csvw := csv.NewWriter(out)
	defer csvw.Flush()

	dumpDir := cCtx.String("dump-pcd")
	if dumpDir != "" {
		if err := os.MkdirAll(dumpDir, 0o755); err != nil {
			return errors.Wrap(err, "creating dump-pcd directory")
		}
	}

	relocaliser := reloc.NewRelocaliser(frst, predict.Config{K: cfg.K, KIn: cfg.KIn, RMerge: cfg.RMerge}, logger.Sublogger("run"))

	ctx := context.Background()
	ok, fail := 0, 0
	summary := table.NewWriter()
	summary.AppendHeader(table.Row{"Frame", "Status", "Rounds", "Pool"})

	for _, path := range framePaths {
		res, err := relocaliseOneFrame(ctx, relocaliser, path, cfg, dumpDir)
		if err != nil {
			return errors.Wrapf(err, "frame %s", res.frameID)
		}

		rounds, pool := "", ""
		if res.stats != nil {
			rounds = strconv.Itoa(res.stats.Rounds)
			pool = strconv.Itoa(res.stats.InitialPool)
		}
		if res.status == "OK" {
			ok++
			summary.AppendRow(table.Row{res.frameID, color.GreenString("OK"), rounds, pool})
		} else {
			fail++
			summary.AppendRow(table.Row{res.frameID, color.RedString("FAIL"), rounds, pool})
		}

		if err := writeCSVLine(csvw, res); err != nil {
			return err
		}
	}

	fmt.Fprintln(os.Stderr, summary.Render())
	fmt.Fprintf(os.Stderr, "%d frames: %d ok, %d failed\n", len(framePaths), ok, fail)
	if fail > 0 {
		return errAnyFrameFailed
	}
	return nil
}

func listFrameFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrap(err, "reading frames directory")
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}

func frameIDFromPath(path string) string {
	base := filepath.Base(path)
	return base[:len(base)-len(filepath.Ext(base))]
}

func relocaliseOneFrame(ctx context.Context, r *reloc.Relocaliser, path string, cfg reloc.Config, dumpDir string) (frameResult, error) {
	frameID := frameIDFromPath(path)
	res := frameResult{frameID: frameID, status: "FAIL"}

	kps, desc, err := loadFrame(path)
	if err != nil {
		return res, err
	}

	preds, err := r.Predict(ctx, kps, desc)
	if err != nil {
		return res, err
	}

	pose, stats, err := r.Relocalise(ctx, kps, preds, cfg, nil)
	res.stats = stats
	if err != nil {
		return res, nil
	}
	res.status = "OK"
	res.pose = pose

	if dumpDir != "" {
		if err := dumpFramePCD(dumpDir, frameID, preds); err != nil {
			return res, err
		}
	}
	return res, nil
}

func dumpFramePCD(dumpDir, frameID string, preds reloc.PredictionImage) error {
	pts := make([]r3.Vector, 0, len(preds.Predictions))
	for _, p := range preds.Predictions {
		if p.Usable() {
			pts = append(pts, p.Modes[0].Mean)
		}
	}
	pcdFile, err := os.Create(filepath.Join(dumpDir, frameID+".pcd"))
	if err != nil {
		return errors.Wrap(err, "creating pcd dump")
	}
	defer pcdFile.Close()
	return reloc.WritePCD(pcdFile, pts)
}

func writeCSVLine(w *csv.Writer, res frameResult) error {
	record := make([]string, 0, 14)
	record = append(record, res.frameID, res.status)
	if res.status == "OK" {
		for r := 0; r < 3; r++ {
			for c := 0; c < 3; c++ {
				record = append(record, strconv.FormatFloat(res.pose.Rotation.At(r, c), 'f', 6, 64))
			}
		}
		record = append(record,
			strconv.FormatFloat(res.pose.Translation.X, 'f', 6, 64),
			strconv.FormatFloat(res.pose.Translation.Y, 'f', 6, 64),
			strconv.FormatFloat(res.pose.Translation.Z, 'f', 6, 64),
		)
	} else {
		record = append(record, make([]string, 12)...)
	}
	return w.Write(record)
}

func forestInfoAction(cCtx *cli.Context) error {
	f, err := os.Open(cCtx.String("forest"))
	if err != nil {
		return errors.Wrap(err, "opening forest file")
	}
	defer f.Close()

	frst, err := forest.Load(f)
	if err != nil {
		return err
	}

	modeHist := map[int]int{}
	totalLeaves := 0
	for _, t := range frst.Trees {
		totalLeaves += len(t.Leaves)
		for _, l := range t.Leaves {
			modeHist[len(l.Modes)]++
		}
	}

	summary := table.NewWriter()
	summary.AppendHeader(table.Row{"Trees", "Feature count", "Max modes/leaf", "Total leaves"})
	summary.AppendRow(table.Row{frst.TreeCount, frst.FeatureCount, frst.MaxModesPerLeaf, totalLeaves})
	fmt.Fprintln(os.Stdout, summary.Render())

	hist := table.NewWriter()
	hist.AppendHeader(table.Row{"Modes in leaf", "Leaf count"})
	counts := make([]int, 0, len(modeHist))
	for k := range modeHist {
		counts = append(counts, k)
	}
	sort.Ints(counts)
	for _, k := range counts {
		hist.AppendRow(table.Row{k, modeHist[k]})
	}
	fmt.Fprintln(os.Stdout, hist.Render())
	return nil
}
