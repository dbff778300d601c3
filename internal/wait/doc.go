// Package wait synchronizes callers with external state that changes on its
// own schedule, such as a page that renders asynchronously.
//
// Two modes are provided. [For] polls one of a fixed set of element
// conditions ([Present], [Visible], [Clickable], [Absent], [ContainsText])
// at a default cadence. [Poll] is the configurable mode: the caller supplies
// the interval, the errors to tolerate between polls and an [Evaluator] that
// reports a resolved value, "not yet", or a fatal error.
//
// Every wait ends in exactly one of three states: satisfied, timed out
// ([ErrTimedOut], carried by [*TimeoutError]) or fatal ([ErrFatal], carried by
// [*FatalError]).
package wait
