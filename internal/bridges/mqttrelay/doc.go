// Package mqttrelay mirrors mixer state onto an MQTT broker and accepts
// commands from it.
//
// Outbound, every applied change is published retained on
// graymixer/state/{device}/{channel}/{parameter}, full device state on
// graymixer/state/{device} after scene recalls and resyncs, device status
// on graymixer/device/{device}/status and, when enabled, meter snapshots
// on graymixer/meters/{device}.
//
// Inbound commands arrive on graymixer/command/#:
//
//	graymixer/command/qu/input_1/fader   0.75 or {"value":0.75}
//	graymixer/command/qu/batch           [{"channel":"input_1","parameter":"mute","value":true}]
//	graymixer/command/scene              5 or {"scene":5}
//
// Changes submitted over MQTT carry source "mqtt".
package mqttrelay
