package lstack

import(
	"fmt"
	"log"
	"os"
	"runtime"

	"gopkg.in/yaml.v2"
)

/* Example config file ...

qualitymetric: xygradient
qualitystride: 2
retainfraction: 0.5
patchsize: 64
patchoverlap: 16
searchradius: 10
mintrackconfidence: 0.4
estimaterotation: false
workers: 0

*/

type Config struct {
	Verbosity           int

	// Frame scoring + ranking
	QualityMetric       string  // xygradient | laplace | sobel
	QualityStride       int     // pixel stride for gradient metrics
	NormalizeBrightness bool    // divide scores by mean frame brightness
	RetainFraction      float64 // fraction of frames kept for stacking
	RetainCount         int     // absolute count; overrides the fraction when > 0
	MinQuality          float64 // frames scoring at or below this are never usable
	MinUsableFrames     int     // fewer than this aborts the run

	// Global alignment
	MaxGlobalShift      int     // px; larger estimates mark the frame unusable
	GlobalMinConfidence float64
	EstimateRotation    bool
	MaxRotationDeg      float64
	RotationStepDeg     float64

	// Patch grid + tracking
	PatchSize            int
	PatchOverlap         int
	MinPatchContrast     float64 // relative to the mean patch contrast
	SearchRadius         int
	MinTrackConfidence   float64
	SaturationConfidence float64 // stop searching once a candidate correlates this well

	// Accumulation weight blend: quality^q * confidence^c
	QualityExponent    float64
	ConfidenceExponent float64

	Workers int // <= 0 means NumCPU

	metric Metric
}

func NewConfig() Config {
	return Config{
		QualityMetric:        "xygradient",
		QualityStride:        2,
		NormalizeBrightness:  true,
		RetainFraction:       0.5,
		MinUsableFrames:      1,
		MaxGlobalShift:       64,
		GlobalMinConfidence:  0.2,
		MaxRotationDeg:       2.0,
		RotationStepDeg:      0.25,
		PatchSize:            64,
		PatchOverlap:         16,
		MinPatchContrast:     0.1,
		SearchRadius:         10,
		MinTrackConfidence:   0.4,
		SaturationConfidence: 0.95,
		QualityExponent:      1.0,
		ConfidenceExponent:   1.0,
	}
}

func LoadConfig(filename string) (Config, error) {
	c := NewConfig()
	contents, err := os.ReadFile(filename)
	if err != nil {
		return c, fmt.Errorf("config read '%s': %v", filename, err)
	}
	if err := yaml.Unmarshal(contents, &c); err != nil {
		return c, fmt.Errorf("config parse '%s': %v", filename, err)
	}
	return c, c.FinalizeConfig()
}

func (c Config)AsYaml() string {
	b, err := yaml.Marshal(c)
	if err != nil {
		log.Fatalf("Can't marshal config yaml: %v\n", err)
	}
	return string(b)
}

// FinalizeConfig does sanity checks and resolves strategy names.
func (c *Config)FinalizeConfig() error {
	if c.QualityMetric == "" { c.QualityMetric = "xygradient" }
	switch c.QualityMetric {
	case "xygradient": c.metric = XYGradientMetric{}
	case "laplace":    c.metric = LaplaceMetric{}
	case "sobel":      c.metric = SobelMetric{}
	default:
		return fmt.Errorf("no quality metric named '%s'", c.QualityMetric)
	}

	if c.QualityStride < 1 { c.QualityStride = 1 }
	if c.RetainCount == 0 && (c.RetainFraction <= 0 || c.RetainFraction > 1) {
		return fmt.Errorf("retainfraction %f outside (0,1]", c.RetainFraction)
	}
	if c.MinUsableFrames < 1 { c.MinUsableFrames = 1 }

	if c.PatchSize < 8 {
		return fmt.Errorf("patchsize %d too small", c.PatchSize)
	}
	if c.PatchOverlap < 0 || c.PatchOverlap >= c.PatchSize {
		return fmt.Errorf("patchoverlap %d outside [0,patchsize)", c.PatchOverlap)
	}
	if c.SearchRadius < 1 {
		return fmt.Errorf("searchradius %d too small", c.SearchRadius)
	}
	if c.MaxGlobalShift < 1 { c.MaxGlobalShift = 1 }
	if c.QualityExponent < 0 || c.ConfidenceExponent < 0 {
		return fmt.Errorf("weight exponents must be >= 0")
	}
	if c.SaturationConfidence <= 0 || c.SaturationConfidence > 1 {
		c.SaturationConfidence = 0.95
	}
	if c.RotationStepDeg <= 0 { c.RotationStepDeg = 0.25 }

	if c.Workers <= 0 { c.Workers = runtime.NumCPU() }

	return nil
}

// GetMetric returns the resolved quality metric. FinalizeConfig must
// have succeeded first; callers who build a Config by hand and skip
// it get the default metric.
func (c Config)GetMetric() Metric {
	if c.metric == nil { return XYGradientMetric{} }
	return c.metric
}
