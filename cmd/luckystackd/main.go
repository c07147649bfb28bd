package main

import(
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"luckystack/pkg/lframe"
	"luckystack/pkg/lstack"
)

// luckystackd runs the stacker behind a small HTTP API, so a capture
// rig can fire off stacking jobs as recordings finish. One job runs
// at a time; stacking saturates every core anyway.

var(
	fPort int
	fOutputDir string
	fConfigFile string
	fVerbosity int
)

func init() {
	flag.IntVar(&fPort, "port", 8086, "port to listen on")
	flag.StringVar(&fOutputDir, "outdir", ".", "directory for stacked output images")
	flag.StringVar(&fConfigFile, "config", "", "yaml config file with stacking defaults")
	flag.IntVar(&fVerbosity, "v", 0, "how verbose to get")
	flag.Parse()
}

type stackRequest struct {
	Paths []string `json:"paths" binding:"required"`
	Name  string   `json:"name"`

	// Optional overrides of the daemon's base config
	QualityMetric  string  `json:"qualitymetric"`
	RetainFraction float64 `json:"retainfraction"`
	RetainCount    int     `json:"retaincount"`
	PatchSize      int     `json:"patchsize"`
	SearchRadius   int     `json:"searchradius"`
}

type stacker struct {
	mu      sync.Mutex
	busy    bool
	baseCfg lstack.Config
}

func (st *stacker)tryAcquire() bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.busy { return false }
	st.busy = true
	return true
}

func (st *stacker)release() {
	st.mu.Lock()
	st.busy = false
	st.mu.Unlock()
}

func (st *stacker)handleStack(c *gin.Context) {
	var req stackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if !st.tryAcquire() {
		c.JSON(http.StatusConflict, gin.H{"error": "a stacking job is already running"})
		return
	}
	defer st.release()

	cfg := st.baseCfg
	if req.QualityMetric != "" { cfg.QualityMetric = req.QualityMetric }
	if req.RetainFraction > 0 { cfg.RetainFraction = req.RetainFraction }
	if req.RetainCount > 0 { cfg.RetainCount = req.RetainCount }
	if req.PatchSize > 0 { cfg.PatchSize = req.PatchSize }
	if req.SearchRadius > 0 { cfg.SearchRadius = req.SearchRadius }
	if err := cfg.FinalizeConfig(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	fb, err := lframe.LoadFiles(req.Paths...)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := lstack.Run(c.Request.Context(), fb, cfg)
	if errors.Is(err, lstack.ErrCancelled) {
		c.JSON(http.StatusRequestTimeout, gin.H{"error": "cancelled", "summary": res.Summary.String()})
		return
	} else if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	name := req.Name
	if name == "" {
		name = fmt.Sprintf("stack-%s", time.Now().Format("20060102-150405"))
	}
	outfile := filepath.Join(fOutputDir, name+".png")
	if err := res.Output.WritePNG(outfile); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"output":     outfile,
		"frames":     res.Summary.FramesUsable,
		"rejected":   res.Summary.FramesRejected,
		"reference":  res.Summary.ReferenceIndex,
		"undefined":  res.Summary.UndefinedPixels,
		"elapsed_ms": res.Summary.Elapsed.Milliseconds(),
		"summary":    res.Summary.String(),
	})
}

func main() {
	cfg := lstack.NewConfig()
	if fConfigFile != "" {
		var err error
		if cfg, err = lstack.LoadConfig(fConfigFile); err != nil {
			log.Fatal(err)
		}
	}
	cfg.Verbosity = fVerbosity
	if err := cfg.FinalizeConfig(); err != nil {
		log.Fatal(err)
	}

	st := &stacker{baseCfg: cfg}

	r := gin.New()
	r.Use(gin.Logger())
	r.Use(gin.Recovery())

	r.GET("/api/v1/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})
	r.POST("/api/v1/stack", st.handleStack)

	log.Printf("luckystackd listening on :%d\n", fPort)
	r.Run(fmt.Sprintf(":%d", fPort))
}
