// Package broadcast fans canonical mixer changes out to observers.
//
// Observers connect with an optional channel filter and immediately receive
// a full state event. Parameter, batch and meter events honour the filter;
// state and device events always go to everyone. An observer whose Send
// fails is marked and pruned at the start of the next broadcast, so a dead
// observer never delays delivery to the others.
//
// RunMeterLoop polls a MeterSource on a fixed interval and hands the
// readings to a MeterSink, backing off after a failed iteration.
package broadcast
