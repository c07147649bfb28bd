package main

import(
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"luckystack/pkg/lframe"
	"luckystack/pkg/lstack"
)

var(
	fVerbosity int
	fConfigFile string
	fOutputFilename string
	fHDRFilename string
	fDiagPrefix string

	fMetric string
	fRetainFraction float64
	fRetainCount int
	fPatchSize int
	fPatchOverlap int
	fSearchRadius int
	fEstimateRotation bool
	fWorkers int
)

func init() {
	flag.IntVar(&fVerbosity, "v", 0, "how verbose to get")
	flag.StringVar(&fConfigFile, "config", "", "yaml config file; flags override it")
	flag.StringVar(&fOutputFilename, "o", "stacked.png", "name of output image file")
	flag.StringVar(&fHDRFilename, "hdr", "", "also write a radiance .hdr with full precision")
	flag.StringVar(&fDiagPrefix, "diag", "", "write <prefix>-patches.png and <prefix>-shifts.png diagnostics")

	flag.StringVar(&fMetric, "metric", "", "frame quality metric: xygradient, laplace, sobel")
	flag.Float64Var(&fRetainFraction, "retain", 0, "fraction of frames to stack, best first (0.0->1.0)")
	flag.IntVar(&fRetainCount, "retaincount", 0, "absolute number of frames to stack; overrides -retain")
	flag.IntVar(&fPatchSize, "patchsize", 0, "alignment patch size in pixels")
	flag.IntVar(&fPatchOverlap, "patchoverlap", -1, "alignment patch overlap in pixels")
	flag.IntVar(&fSearchRadius, "searchradius", 0, "local tracking search radius in pixels")
	flag.BoolVar(&fEstimateRotation, "rotation", false, "estimate field rotation during global alignment")
	flag.IntVar(&fWorkers, "workers", 0, "worker goroutines (0 = all CPUs)")
	flag.Parse()
}

func main() {
	log.Printf("luckystack starting\n")

	cfg := lstack.NewConfig()
	if fConfigFile != "" {
		var err error
		if cfg, err = lstack.LoadConfig(fConfigFile); err != nil {
			log.Fatal(err)
		}
	}

	// Override the config file with command line args, if relevant
	if fMetric != "" { cfg.QualityMetric = fMetric }
	if fRetainFraction > 0 { cfg.RetainFraction = fRetainFraction }
	if fRetainCount > 0 { cfg.RetainCount = fRetainCount }
	if fPatchSize > 0 { cfg.PatchSize = fPatchSize }
	if fPatchOverlap >= 0 { cfg.PatchOverlap = fPatchOverlap }
	if fSearchRadius > 0 { cfg.SearchRadius = fSearchRadius }
	if fWorkers > 0 { cfg.Workers = fWorkers }
	cfg.EstimateRotation = fEstimateRotation
	cfg.Verbosity = fVerbosity

	if err := cfg.FinalizeConfig(); err != nil {
		log.Fatal(err)
	}
	if cfg.Verbosity > 0 {
		log.Printf("Final configuration:-\n\n%s\n", cfg.AsYaml())
	}

	if flag.NArg() == 0 {
		log.Fatal("no input frames; pass image files or directories")
	}

	fb, err := lframe.LoadFiles(flag.Args()...)
	if err != nil {
		log.Fatal(err)
	}

	// Ctrl-C cancels the run cleanly; a second one kills the process.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := lstack.Run(ctx, fb, cfg)
	if errors.Is(err, lstack.ErrCancelled) {
		log.Printf("cancelled:-\n\n%s\n", res.Summary)
		os.Exit(1)
	} else if err != nil {
		log.Fatal(err)
	}

	if err := res.Output.WritePNG(fOutputFilename); err != nil {
		log.Fatal(err)
	}
	log.Printf("wrote %s\n", fOutputFilename)

	if fHDRFilename != "" {
		if err := res.Output.WriteHDR(fHDRFilename); err != nil {
			log.Fatal(err)
		}
		log.Printf("wrote %s\n", fHDRFilename)
	}

	if fDiagPrefix != "" {
		if err := res.Grid.WritePatchDiag(fb.W, fb.H, fDiagPrefix+"-patches.png"); err != nil {
			log.Printf("patch diagnostic: %v\n", err)
		}
		if err := res.Grid.WriteShiftDiag(fb.W, fb.H, fDiagPrefix+"-shifts.png"); err != nil {
			log.Printf("shift diagnostic: %v\n", err)
		}
	}

	log.Printf("%s", strings.TrimRight(res.Summary.String(), "\n"))
}
