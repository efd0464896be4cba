package scoring

import (
	"math"
	"slices"
	"time"

	"github.com/kilianp07/zonedispatch/core/model"
)

// round rounds halves up.
func round(v float64) float64 { return math.Floor(v + 0.5) }

func round2(v float64) float64 { return round(v*100) / 100 }

// ProximityScore rates travel distance. An unknown current zone scores 0;
// the travel time is ignored in that case since it carries no information.
func ProximityScore(current, taskZone model.ZoneID, travelSeconds int) float64 {
	if current == "" {
		return 0
	}
	if current == taskZone {
		return 100
	}
	t := float64(travelSeconds)
	if t <= 60 {
		return round(100 - t/6)
	}
	return math.Max(0, round(100-t/3))
}

// ReliabilityScore scales a 0..1 reliability to 0..100.
func ReliabilityScore(r float64) float64 {
	return round(r * 100)
}

// LoadScore is a stepped inverse of the active task count.
func LoadScore(active int) float64 {
	switch {
	case active <= 0:
		return 100
	case active == 1:
		return 75
	case active == 2:
		return 50
	case active == 3:
		return 25
	default:
		return 0
	}
}

// DeviceScore rates how fresh the last heartbeat is. An online device that
// never reported scores 20.
func DeviceScore(lastSeen time.Time, online bool, now time.Time) float64 {
	if !online {
		return 0
	}
	if lastSeen.IsZero() {
		return 20
	}
	ago := now.Sub(lastSeen)
	switch {
	case ago <= 30*time.Second:
		return 100
	case ago <= 60*time.Second:
		return 80
	case ago <= 5*time.Minute:
		return 50
	default:
		return 20
	}
}

// SkillScore matches a required skill against the worker's skill tags.
// Without a required skill the role compatibility table decides.
func SkillScore(required string, taskType model.TaskType, role model.Role, primary, secondary []string) float64 {
	if required == "" {
		if preferred, ok := model.PreferredRole(taskType); ok && preferred == role {
			return 100
		}
		if role == model.RoleHousekeeping {
			return 80
		}
		return 50
	}
	if slices.Contains(primary, required) {
		return 100
	}
	if slices.Contains(secondary, required) {
		return 70
	}
	return 0
}
