// Package homie publishes a device/node/property tree over MQTT following
// the Homie v4 convention.
//
// Topic layout for a device "livingroom" under the default base topic:
//
//	homie/livingroom/$homie               4.0.0
//	homie/livingroom/$state               init | ready | disconnected | lost
//	homie/livingroom/$nodes               controls,status,runtime
//	homie/livingroom/controls/$properties heatsetpoint,coolsetpoint,...
//	homie/livingroom/controls/heatsetpoint/$datatype  float
//	homie/livingroom/controls/heatsetpoint/$format    55:85
//	homie/livingroom/controls/heatsetpoint            68
//	homie/livingroom/controls/heatsetpoint/set        (commands in)
//
// All attributes and values are retained. Register "lost" as the MQTT Last
// Will on Topics.State so controllers notice an unclean disconnect.
//
// Writes on /set topics are checked against the property datatype and
// format, then passed to a single CommandHandler. The handler decides what
// value to publish back.
package homie
