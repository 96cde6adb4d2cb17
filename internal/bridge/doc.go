// Package bridge synchronises a Radio Thermostat with a Homie property tree.
//
// The tree has three nodes:
//
//	controls  heatsetpoint, coolsetpoint (float 55:85 °F, settable)
//	          systemmode, fanmode, hold (enum, settable)
//	          override (enum, read-only)
//	status    temperature (float), systemstatus, fanstatus (string)
//	runtime   todayheat, todaycool, yesterdayheat, yesterdaycool ("2 hrs, 15 min")
//
// Enum names map to device codes by position (see Mapping). Command values
// are matched under an EnumPolicy: strict accepts names only, lenient also
// accepts a known decimal code.
//
// A Scheduler drives Refresh at the configured interval. Commands are applied
// as they arrive and echoed immediately; the device is not re-read.
package bridge
