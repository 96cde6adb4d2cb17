package thermostat

import "strconv"

// Reading is one device field: the native value and its display string.
type Reading[T any] struct {
	Raw   T
	Human string
}

// Runtime is an hours/minutes total from the device data log.
type Runtime struct {
	Hour   int `json:"hour"`
	Minute int `json:"minute"`
}

// DayLog holds one day's heating and cooling runtime.
type DayLog struct {
	Heat Runtime `json:"heat_runtime"`
	Cool Runtime `json:"cool_runtime"`
}

// Datalog is the /tstat/datalog document.
type Datalog struct {
	Today     DayLog `json:"today"`
	Yesterday DayLog `json:"yesterday"`
}

// Snapshot is a single consistent read of the thermostat.
type Snapshot struct {
	HeatSetpoint Reading[float64] // t_heat
	CoolSetpoint Reading[float64] // t_cool
	SystemMode   Reading[int]     // tmode
	FanMode      Reading[int]     // fmode
	Hold         Reading[int]
	Override     Reading[int]
	Temperature  Reading[float64] // temp
	SystemStatus Reading[int]     // tstate
	FanStatus    Reading[int]     // fstate
	Runtime      Datalog
}

// Display names for the device's integer codes.
var (
	systemModeNames   = map[int]string{0: "Off", 1: "Heat", 2: "Cool", 3: "Auto"}
	fanModeNames      = map[int]string{0: "Auto", 1: "Auto/Circulate", 2: "On"}
	holdNames         = map[int]string{0: "Disabled", 1: "Enabled"}
	systemStatusNames = map[int]string{0: "Off", 1: "Heat", 2: "Cool"}
	fanStatusNames    = map[int]string{0: "Off", 1: "On"}
)

// codeReading pairs a code with its name, falling back to the decimal code
// when the firmware reports something outside the known table.
func codeReading(names map[int]string, code int) Reading[int] {
	human, ok := names[code]
	if !ok {
		human = strconv.Itoa(code)
	}
	return Reading[int]{Raw: code, Human: human}
}

func floatReading(v float64) Reading[float64] {
	return Reading[float64]{Raw: v, Human: strconv.FormatFloat(v, 'f', -1, 64)}
}

// tstatDoc is the /tstat document. Fields the bridge does not use are omitted.
type tstatDoc struct {
	Temp     *float64 `json:"temp"`
	TMode    *int     `json:"tmode"`
	FMode    *int     `json:"fmode"`
	Override *int     `json:"override"`
	Hold     *int     `json:"hold"`
	TState   *int     `json:"tstate"`
	FState   *int     `json:"fstate"`
}

// ttempDoc is the /tstat/ttemp document.
type ttempDoc struct {
	THeat *float64 `json:"t_heat"`
	TCool *float64 `json:"t_cool"`
}

// nameDoc is the /sys/name document.
type nameDoc struct {
	Name string `json:"name"`
}
