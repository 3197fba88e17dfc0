package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"matchd/internal/adminapi"
	"matchd/internal/arena"
	"matchd/internal/capability"
	"matchd/internal/cli"
	"matchd/internal/clock"
	"matchd/internal/config"
	"matchd/internal/loot"
	"matchd/internal/match"
	"matchd/internal/matcherr"
	"matchd/internal/metrics"
	"matchd/internal/projectile"
	"matchd/internal/registry"
	"matchd/internal/stats"
	"matchd/internal/team"
	"matchd/internal/tracker"
	"matchd/internal/worldsim"
)

func main() {
	config.LoadDotEnv()

	log.Println("🎮 ================================")
	log.Println("🎮  MATCHD - LAST PLAYER STANDING")
	log.Println("🎮 ================================")

	appConfig := config.Load()

	clk := clock.NewScheduler(log.Printf)
	clk.Start(config.TicksPerSecond)
	defer clk.Stop()

	world := worldsim.New(log.Printf)
	arenas := arena.NewRegistry(world)
	seedDemoArena(world, arenas)

	if f, err := os.Open(appConfig.ArenaFile); err == nil {
		if err := arenas.Load(f); err != nil {
			log.Printf("⚠️ Arena file %s not loaded: %v", appConfig.ArenaFile, err)
		} else {
			log.Printf("📂 Arenas loaded from %s", appConfig.ArenaFile)
		}
		f.Close()
	} else {
		log.Printf("💡 No arena file at %s, using demo arena only", appConfig.ArenaFile)
	}

	lootTable := loot.New()
	entries := make([]loot.Entry, len(appConfig.Loot))
	for i, e := range appConfig.Loot {
		entries[i] = loot.Entry{Tier: e.Tier, ItemID: e.ItemID, Opaque: e.Opaque, Weight: e.Weight, MinAmount: e.MinAmount, MaxAmount: e.MaxAmount}
	}
	if err := lootTable.Load(entries, nil); err != nil {
		log.Fatalf("❌ Loot table failed to load: %v", err)
	}
	log.Printf("🎁 Loot table loaded: %d tiers", len(lootTable.Tiers()))

	statsSink, err := stats.NewDefaultSink(appConfig.EventLogFile)
	if err != nil {
		log.Fatalf("❌ Event log failed to start: %v", err)
	}
	defer statsSink.Close()
	log.Printf("📝 Event log: %s", appConfig.EventLogFile)

	teams := team.NewManager(clk, capability.Tick(config.TicksPerSecond*300)) // 5 minute invite TTL

	// trackers is constructed after matches (it needs matches.ByID for its
	// RosterLookup), but matchCfg.NotifyTracker needs to call into trackers.
	// Forward-declare and close over the variable rather than reordering the
	// whole boot sequence around a circular dependency.
	var trackers *tracker.Manager

	setup, countdown, grace, active, deathmatch, refill, containerCooldown := appConfig.Match.Ticks()
	matchCfg := match.Config{
		SetupPeriodTicks:       setup,
		CountdownTicks:         countdown,
		GraceTicks:             grace,
		ActiveTicks:            active,
		DeathmatchTicks:        deathmatch,
		RefillIntervalTicks:    refill,
		ContainerCooldownTicks: containerCooldown,
		MaxContainersPerRefill: appConfig.Match.MaxContainersPerRefill,
		MinStacksPerContainer:  appConfig.Match.ItemsPerContainerMin,
		MaxStacksPerContainer:  appConfig.Match.ItemsPerContainerMax,
		TierMix:                map[string]float64{"common": 70, "rare": 25, "epic": 5},
		TrackerNotifyPeriod:    capability.Tick(appConfig.Tracker.UpdatePeriodSeconds * config.TicksPerSecond),
		NotifyTracker: func(matchID string) {
			if trackers != nil {
				trackers.NotifyMatch(matchID)
			}
		},
	}

	matches := registry.New(arenas, matchCfg, clk, world, statsSink, lootTable, teams)

	explosiveCfg := projectile.Config{
		FuseTicks:       capability.Tick(appConfig.Explosive.FuseSeconds * config.TicksPerSecond),
		Radius:          appConfig.Explosive.Radius,
		BaseDamage:      appConfig.Explosive.BaseDamage,
		EffectDuration:  capability.Tick(appConfig.Explosive.EffectSeconds * config.TicksPerSecond),
		EffectAmplifier: appConfig.Explosive.EffectAmplifier,
		DamageThrower:   appConfig.Explosive.DamageThrower,
		ThrowVelocity:   appConfig.Explosive.ThrowVelocity,
		CooldownTicks:   capability.Tick(appConfig.Explosive.CooldownSeconds * config.TicksPerSecond),
		SweepInterval:   6000,
	}
	projectiles := projectile.NewManager(explosiveCfg, world, clk, func(matchID string) []capability.Participant {
		m, ok := matches.ByID(matchID)
		if !ok {
			return nil
		}
		return m.AliveParticipants()
	})
	projectiles.StartCooldownSweep()

	trackers = tracker.NewManager(world, clk,
		func(holderID string) bool { return true },
		func(matchID string) []capability.RosterEntry {
			m, ok := matches.ByID(matchID)
			if !ok {
				return nil
			}
			return m.RosterSnapshot()
		},
		func(matchID string) []tracker.SupplyDrop { return nil },
		func(holderID string, columns [tracker.BarWidth]tracker.Column) {},
	)

	matches.OnCleanup(func(matchID string) { teams.DestroyMatchTeams(matchID) })
	matches.OnCleanup(func(matchID string) { projectiles.CleanupMatch(matchID) })
	matches.OnCleanup(func(matchID string) { trackers.CleanupMatch(matchID) })

	clk.ScheduleEvery(config.TicksPerSecond*5, func() {
		active := matches.Active()
		byPhase := map[match.Phase]int{}
		for _, m := range active {
			byPhase[m.Phase()]++
		}
		metrics.SetActiveMatches(len(active))
		for _, phase := range []match.Phase{match.Inactive, match.Waiting, match.Countdown, match.Grace, match.Active, match.Deathmatch, match.Finished, match.Aborted} {
			metrics.SetMatchesByPhase(string(phase), byPhase[phase])
		}
	})

	dispatcher := cli.New(arenas, matches)

	snapshot := func() interface{} {
		active := matches.Active()
		out := make([]map[string]interface{}, len(active))
		for i, m := range active {
			out[i] = map[string]interface{}{
				"id":     m.ID,
				"arena":  m.Arena.Name,
				"phase":  m.Phase(),
				"roster": len(m.RosterSnapshot()),
			}
		}
		return out
	}

	srv := adminapi.NewServer(dispatcher, appConfig.Server.AllowOrigins, snapshot)
	defer srv.Stop()

	if os.Getenv("DISABLE_DEBUG_SERVER") != "true" {
		debugCfg := metrics.DefaultDebugServerConfig()
		if err := metrics.StartDebugServer(debugCfg); err != nil {
			log.Printf("⚠️ Debug server disabled: %v", err)
		}
	}

	addr := ":" + itoaPort(appConfig.Server.Port)
	go func() {
		log.Printf("🌐 Admin API on http://localhost%s", addr)
		if err := srv.Start(addr); err != nil {
			log.Fatalf("❌ Admin API failed: %v", err)
		}
	}()

	log.Printf("🏟️ Arenas registered: %v", dispatcher.ArenaNames())
	log.Println("✅ Server ready! Press Ctrl+C to stop.")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("🛑 Shutting down...")
	log.Println("👋 Goodbye!")
}

// seedDemoArena places a handful of chest blocks around the origin and
// registers a single demo arena over them, so a freshly booted server has
// somewhere to `start` a match without a pre-existing arena file.
func seedDemoArena(world *worldsim.World, arenas *arena.Registry) {
	origin := capability.Position{WorldID: "overworld", X: 0, Y: 64, Z: 0}
	chestOffsets := [][3]float64{{4, 0, 4}, {-4, 0, 4}, {4, 0, -4}, {-4, 0, -4}}
	for _, off := range chestOffsets {
		pos := capability.Position{WorldID: origin.WorldID, X: origin.X + off[0], Y: origin.Y + off[1], Z: origin.Z + off[2]}
		world.SetBlock(pos, capability.BlockKind("chest"))
		world.PlaceContainer(pos, 27)
	}
	if _, err := arenas.Create("demo", origin, 16, arena.DefaultCreateOptions()); err != nil {
		log.Printf("⚠️ Demo arena not created: %v", matcherr.Wrap(err, "seedDemoArena"))
	}
}

func itoaPort(p int) string {
	if p <= 0 {
		p = 3000
	}
	var buf [8]byte
	i := len(buf)
	if p == 0 {
		return "0"
	}
	for p > 0 {
		i--
		buf[i] = byte('0' + p%10)
		p /= 10
	}
	return string(buf[i:])
}
