// Package gsi turns game state integration snapshots, pushed by the game over
// HTTP, into gamewatch events.
//
// Server receives POST /{game}/gsi requests and passes each decoded Snapshot
// to the delegates registered for that game. StateManager is the delegate that
// diffs successive snapshots against their "previously" section and publishes
// match, round, bomb and kill events on a gamewatch.EventBus:
//
//	bus := gamewatch.NewEventBus()
//	bus.NotifyOnEvent(event.KindKill, func(e event.Event) { ... })
//
//	srv := gsi.NewServer(cfg, gsi.WithArtifact(&gsi.Artifact{
//		Path:     cfgPath,
//		Template: gsi.DefaultCSGOTemplate,
//	}))
//	srv.AddDelegate("csgo", gsi.NewStateManager(bus))
//	if err := srv.Start(ctx); err != nil { ... }
//	defer srv.Stop(context.Background())
//
// Kill, death and assist events are derived from counter changes; their
// weapon and headshot fields are marked BestEffort.
package gsi
