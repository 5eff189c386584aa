// Package logic contains the pure measurement logic of the gateway.
// This package has NO external dependencies (no GPIO, MQTT, OS, or time.Sleep).
// Time is always injectable as uint32 milliseconds.
package logic

// MillisPerMinute is the CPM normalisation window.
const MillisPerMinute = 60000

// DoseSample is the result of one sampling period.
type DoseSample struct {
	CountsInPeriod   uint64
	CountsPerMinute  uint64
	LogPeriodSeconds uint32
	DoseRate         float64 // µSv/h
}

// Tube conversion factors (µSv/h per CPM).
const (
	FactorJ305  = 0.00812037037037
	FactorSMB20 = 0.0057
	FactorSTS5  = 0.0060
)

// DefaultTube is the tube model assumed when none is configured.
const DefaultTube = "J305"

var tubeFactors = map[string]float64{
	"J305":   FactorJ305,
	"SMB-20": FactorSMB20,
	"STS-5":  FactorSTS5,
}

// TubeFactor returns the conversion factor for a known tube model.
func TubeFactor(model string) (float64, bool) {
	f, ok := tubeFactors[model]
	return f, ok
}
