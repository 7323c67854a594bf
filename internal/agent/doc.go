// Package agent implements tool-using conversational agents and the registry
// that threads chat replies back to the agent that produced them.
//
// # Overview
//
// An Agent owns a transcript, a fixed tool Catalog and a depth bound. Each
// call to Run appends the user's utterance and drives the reasoning loop:
//
//	Idle → Proposing → (ExecutingTools → Proposing)* → Done
//
// Proposing asks the llm.Completer for a continuation of the full transcript.
// A continuation without tool calls is terminal. Otherwise every requested
// tool runs in order and its result is appended as an observation before the
// next round.
//
// # Responses
//
// Run returns a lazy iter.Seq2 yielding one *Response per completed round:
//
//	for resp, err := range a.Run(ctx, "find the latest debian iso") {
//	    if err != nil {
//	        return err
//	    }
//	    send(resp)
//	}
//
// Breaking out of the loop stops the agent after the current round. The
// sequence can be consumed once; ranging over it again yields ErrAlreadyRun.
//
// # Depth Bound
//
// The number of rounds never exceeds the agent's depth bound. When the model
// still requests tools on the last allowed round, those tools are not
// executed and the final Response carries DepthExhausted. This is a terminal
// state, not an error.
//
// # Tool Failures
//
// Unknown tools, invalid parameters and tool faults become error observations
// ({"error": "..."}) in the transcript. They never abort sibling tool calls or
// the loop. Only a completion failure ends the sequence with an error.
//
// # Registry
//
// The Registry maps CorrelationKeys to live agents:
//
//	reg := agent.NewRegistry(1440*time.Hour, 0, logger)
//	reg.Register(agent.KindDownload, factory)
//
//	a, err := reg.Resolve(agent.KindDownload, agent.Correlate(replyTo, sender))
//	...
//	reg.Associate(agent.Correlate(sentID, sender), a)
//
// Keys expire a fixed duration after insertion and are not refreshed on
// access. Several keys may point at one agent, one per reply in a thread.
//
// # Thread Safety
//
// Registry is safe for concurrent use. Runs of the same Agent are strictly
// sequential: a second Run waits until the first sequence finishes.
package agent
