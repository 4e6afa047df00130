package opt

import "fmt"

const (
	// AverageSpeed is the flat distance-units-per-hour used for time estimates.
	AverageSpeed = 30.0
	// CostPerUnit and BaseFee form the flat route cost estimate.
	CostPerUnit = 2.0
	BaseFee     = 3.0
)

// EstimateHours converts route distance to hours at AverageSpeed.
// Per-stop dwell time is not modelled.
func EstimateHours(distance float64) float64 { return distance / AverageSpeed }

// EstimateTime formats EstimateHours as "H.HH hours".
func EstimateTime(distance float64) string {
	return fmt.Sprintf("%.2f hours", EstimateHours(distance))
}

// EstimateCostValue is a rough per-distance rate plus a fixed per-route fee.
// Not a carrier rate card.
func EstimateCostValue(distance float64) float64 { return distance*CostPerUnit + BaseFee }

// EstimateCost formats EstimateCostValue with two decimals.
func EstimateCost(distance float64) string {
	return fmt.Sprintf("%.2f", EstimateCostValue(distance))
}
