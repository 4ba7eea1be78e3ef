// Package value holds the results produced while a workflow graph runs.
//
// A StepValue is the normalized, lazily resolved result of one executed
// graph node. It accepts plain values (strings, slices, maps, structs,
// *Result) and live chunk streams (iter.Seq2[Chunk, error], <-chan Chunk,
// io.Reader). Streams are drained by a background consumer into a recorded
// chunk log, so StreamIterator can be replayed from the start any number of
// times.
//
// A RunValue aggregates the steps of one run: it tracks the step table,
// selects the final output, attributes token usage across generated values,
// and serves the streaming response protocol:
//
//	[data] {"type":"text-delta","textDelta":"Hel"}
//	[data] {"type":"text-delta","textDelta":"lo"}
//	[data] {"type":"finish","usage":{...}}
//	[done]
//
// Every response stream ends with exactly one "[done]" segment.
package value
