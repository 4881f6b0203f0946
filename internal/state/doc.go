// Package state holds the canonical mixer state for every connected
// console and is the single entry point for changing it.
//
// The Manager owns the plugin registry. Each device has one MixerState
// guarded by a writer lock: a change is validated, clamped, applied and
// dispatched to the hardware as one unit under that lock. Readers never
// take the lock; they load an immutable snapshot that is republished after
// every write.
//
// Channel keys are namespaced "device_id:channel_id". A bare channel id
// addresses every device that declares the channel.
//
// Changes reported by the hardware update canonical state without being
// sent back to the console.
package state
