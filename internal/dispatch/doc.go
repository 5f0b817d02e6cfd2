// Package dispatch formats analytics digests and hands them to a Mailer.
//
// Dispatch is best effort. A failed send is logged and reported as false;
// it never fails the analytics run that produced the content. Each run is
// delivered at most once: the dispatcher claims "digest:<run id>" before
// sending and releases the claim if the send fails. Queue runs dispatches
// on a fixed worker pool behind a bounded buffer so callers never block.
package dispatch
