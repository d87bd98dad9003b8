// Package gamewatch turns game log files into structured events.
//
// A [Watcher] tails one log file, feeds every new line to a [Parser] and
// publishes the resulting events on its [EventBus]. Subscribers register per
// event kind and are called synchronously, in registration order, on the
// tailer goroutine:
//
//	p, err := gamewatch.NewBuiltinParser("tasklog", gamewatch.BuiltinOptions{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	w, err := gamewatch.NewWatcher(
//	    gamewatch.WithLogFile("/path/to/tasks.log"),
//	    gamewatch.WithParser(p),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	w.NotifyOnEvent(event.KindTaskFinish, func(e event.Event) {
//	    task := e.Payload.(event.Task)
//	    fmt.Printf("%s finished after %s\n", task.Name, task.Duration)
//	})
//	if err := w.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer w.Stop()
//
// # Time gate
//
// By default events stamped before Start, or more than [DefaultFutureTolerance]
// after the current time, are dropped. This keeps a stale log tail from a
// previous session from being reported as new. See [WithThreshold] and
// [WithTimeGate].
//
// # Parsers
//
// Built-in parsers are listed by [BuiltinNames]. Games without one can be
// described with a YAML pattern file (package pattern) or a WebAssembly
// plugin. Combine several with [ParserChain].
//
// # Game state integration
//
// Games that push JSON snapshots over HTTP instead of writing logs are
// handled by package gsi, which publishes on the same [EventBus] type.
package gamewatch
