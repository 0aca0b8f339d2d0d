// Package dispatch streams Datastar commands to one client connection.
//
// A Dispatcher is built per inbound request. Callers register streamers and
// lifecycle callbacks, then call Run (or Serve) exactly once.
//
// Execution paths:
//   - One streamer, no heartbeat: the streamer's Generator writes straight to the sink
//   - Several streamers, or one plus a heartbeat: every streamer runs in its own
//     scheduler unit and writes into a shared queue; a single consumer drains the
//     queue onto the sink, so frames never interleave mid-frame
//
// Frames from one streamer keep their order. Frames from different streamers
// interleave in whatever order their writes reach the queue.
//
// Outcomes (exactly one per run):
//   - Completed → OnServerDisconnect callbacks
//   - Client went away (EPIPE, ECONNRESET, closed stream, request context cancelled)
//     → OnClientDisconnect callbacks
//   - Any other error, including recovered panics → OnError callbacks; the
//     configured ErrorHandler is always first
//
// Teardown always stops remaining units without waiting for them, closes the
// sink and calls the Finalize hook once.
package dispatch
