// Package voicecommand turns a voice recording into actions by running a
// coordinator agent that delegates tasks to named worker agents.
//
// One Execute call is a sequence of turns. Each turn invokes the coordinator
// once and, when it delegates, one worker. The coordinator is stateless: after
// every worker turn it receives a freshly built JSON context holding the
// transcript, the full action log and the required response shape. A run ends
// when the coordinator answers DONE, when the iteration ceiling is reached, or
// when the context is cancelled. Only the DONE path sets a summary.
package voicecommand
