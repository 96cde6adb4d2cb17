package homie

import (
	"fmt"
	"strings"
)

// DefaultBaseTopic is the Homie root topic when none is configured.
const DefaultBaseTopic = "homie"

// SetSuffix is the last topic level of a property command topic.
const SetSuffix = "set"

// Topics builds Homie v4 topics under a base topic.
// Using these helpers keeps topic construction in one place:
//
//	topics := homie.NewTopics("homie")
//	topics.Property("livingroom", "controls", "systemmode")
//	// Returns: "homie/livingroom/controls/systemmode"
type Topics struct {
	base string
}

// NewTopics returns a topic builder rooted at base. Trailing slashes are
// dropped and an empty base falls back to DefaultBaseTopic.
func NewTopics(base string) Topics {
	base = strings.TrimRight(base, "/")
	if base == "" {
		base = DefaultBaseTopic
	}
	return Topics{base: base}
}

// Base returns the root topic.
func (t Topics) Base() string {
	return t.base
}

// Device returns the device root.
//
// Example: homie/livingroom
func (t Topics) Device(deviceID string) string {
	return fmt.Sprintf("%s/%s", t.base, deviceID)
}

// DeviceAttribute returns a device attribute topic.
//
// Example: homie/livingroom/$state
func (t Topics) DeviceAttribute(deviceID, attr string) string {
	return fmt.Sprintf("%s/%s/%s", t.base, deviceID, attr)
}

// State returns the $state topic, which also carries the Last Will.
func (t Topics) State(deviceID string) string {
	return t.DeviceAttribute(deviceID, "$state")
}

// NodeAttribute returns a node attribute topic.
//
// Example: homie/livingroom/controls/$properties
func (t Topics) NodeAttribute(deviceID, nodeID, attr string) string {
	return fmt.Sprintf("%s/%s/%s/%s", t.base, deviceID, nodeID, attr)
}

// Property returns the value topic of a property.
//
// Example: homie/livingroom/status/temperature
func (t Topics) Property(deviceID, nodeID, propertyID string) string {
	return fmt.Sprintf("%s/%s/%s/%s", t.base, deviceID, nodeID, propertyID)
}

// PropertyAttribute returns a property attribute topic.
//
// Example: homie/livingroom/controls/heatsetpoint/$format
func (t Topics) PropertyAttribute(deviceID, nodeID, propertyID, attr string) string {
	return fmt.Sprintf("%s/%s/%s/%s/%s", t.base, deviceID, nodeID, propertyID, attr)
}

// PropertySet returns the command topic of a settable property.
//
// Example: homie/livingroom/controls/systemmode/set
func (t Topics) PropertySet(deviceID, nodeID, propertyID string) string {
	return fmt.Sprintf("%s/%s/%s/%s/%s", t.base, deviceID, nodeID, propertyID, SetSuffix)
}

// ParseSet splits a command topic into node and property IDs.
// It returns ok=false for anything that is not a /set topic of deviceID.
func (t Topics) ParseSet(deviceID, topic string) (nodeID, propertyID string, ok bool) {
	prefix := t.Device(deviceID) + "/"
	rest, found := strings.CutPrefix(topic, prefix)
	if !found {
		return "", "", false
	}
	parts := strings.Split(rest, "/")
	if len(parts) != 3 || parts[2] != SetSuffix || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

// SanitizeID converts a display name into a valid Homie ID: lower case,
// whitespace removed, anything outside [a-z0-9-] dropped, and no leading or
// trailing hyphen.
//
// Example: "Living Room" becomes "livingroom".
func SanitizeID(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-':
			b.WriteRune(r)
		}
	}
	return strings.Trim(b.String(), "-")
}

// ValidID reports whether id satisfies the Homie topic ID rules.
func ValidID(id string) bool {
	if id == "" || id[0] == '-' || id[len(id)-1] == '-' {
		return false
	}
	for _, r := range id {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') && r != '-' {
			return false
		}
	}
	return true
}
