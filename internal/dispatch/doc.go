// Package dispatch connects a chat transport to the agent registry.
//
// Monitor reads the prompt stream and turns every prompt into a Task on an
// unbounded TaskQueue, so a slow agent never stalls intake. A fixed pool of
// workers drains the queue. For each prompt the worker resolves the agent of
// the thread being replied to (or a fresh one), runs it, and posts every
// round's response as a reply. Each sent reply is associated with the agent,
// so answering it continues the same conversation.
//
// An agent runs one prompt at a time. A prompt for an agent that is already
// running is parked beside the dispatcher rather than on a worker; when the
// run ends, the oldest parked prompt goes back on the queue. One busy thread
// therefore occupies at most one worker.
//
// Prompts redelivered by the transport are dropped by message id.
package dispatch
