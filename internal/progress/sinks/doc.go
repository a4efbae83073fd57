// Package sinks implements concrete frame consumers: structured logging, line
// files, Redis streams, Pub/Sub topics, Postgres, blob archives and an
// in-process replica. Each sink satisfies progress.Sink. Sinks are called
// under the publisher's lock and must not call back into it.
package sinks
