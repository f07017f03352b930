package metrics

// Default violation thresholds in per-unit.
const (
	DefaultOvervoltage  = 1.05
	DefaultUndervoltage = 0.95
	DefaultThermalLimit = 1.0
)

// efficiencyFloor is the throughput in kW below which efficiency is
// reported as 100%.
const efficiencyFloor = 0.01

// Thresholds are the per-unit limits that define a violation.
type Thresholds struct {
	Overvoltage  float64 `json:"overvoltage"`
	Undervoltage float64 `json:"undervoltage"`
	ThermalLimit float64 `json:"thermal_limit"`
}

// DefaultThresholds returns 1.05/0.95 pu voltage and 1.0 pu loading limits.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Overvoltage:  DefaultOvervoltage,
		Undervoltage: DefaultUndervoltage,
		ThermalLimit: DefaultThermalLimit,
	}
}

// VoltageGamma returns the depth of a bus voltage violation given the
// highest and lowest phase magnitudes. When both limits are crossed the
// deeper excursion counts.
func VoltageGamma(vmax, vmin, upper, lower float64) float64 {
	over, under := vmax > upper, vmin < lower
	switch {
	case over && under:
		return max(vmax-upper, lower-vmin)
	case over:
		return vmax - upper
	case under:
		return lower - vmin
	}
	return 0
}

// ThermalGamma returns how far a per-unit loading exceeds its limit.
func ThermalGamma(loading, limit float64) float64 {
	return max(0, loading-limit)
}

// Efficiency returns 100 - loss/(10*power) for losses in W and throughput
// in kW, which is the loss share in percent. Throughput at or below 0.01 kW
// is reported as 100%.
func Efficiency(lossW, powerKW float64) float64 {
	if powerKW <= efficiencyFloor {
		return 100
	}
	return 100 - lossW/(10*powerKW)
}

// efficiency accumulates loss and throughput for a whole run and for the
// current recording window.
type efficiency struct {
	loss, power       float64
	winLoss, winPower float64
}

func (e *efficiency) add(lossW, powerKW float64) {
	e.loss += lossW
	e.power += powerKW
	e.winLoss += lossW
	e.winPower += powerKW
}

func (e *efficiency) total() float64 { return Efficiency(e.loss, e.power) }

// window returns the efficiency since the previous call and starts a new
// window.
func (e *efficiency) window() float64 {
	v := Efficiency(e.winLoss, e.winPower)
	e.winLoss, e.winPower = 0, 0
	return v
}
