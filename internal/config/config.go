// Package config is the single source of truth for every tunable the match
// engine reads at boot: phase timing, loot weights, explosive behavior, and
// tracker projection parameters (§6).
//
// Grounded directly on the teacher's config.go: the same
// Default*()/*FromEnv() pairing and getEnvInt/getEnvFloat helpers, recomposed
// around match/loot/explosive/tracker settings instead of video/audio/server
// settings. godotenv.Load is used the way cmd/server's boot sequence used it,
// to let a local .env populate os.Getenv before *FromEnv() runs.
package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"matchd/internal/capability"
)

// TicksPerSecond is the engine's fixed tick rate; every *Ticks field in
// MatchConfig is expressed in ticks at this rate.
const TicksPerSecond = 20

// LoadDotEnv loads a .env file if present, silently continuing if it is
// absent — matching the teacher's boot-time best-effort godotenv.Load call.
func LoadDotEnv() {
	_ = godotenv.Load()
}

// MatchConfig controls phase timing and refill cadence (§4.4, §4.5).
type MatchConfig struct {
	SetupPeriodSeconds       int
	CountdownSeconds         int
	GraceSeconds             int
	ActiveSeconds            int
	DeathmatchSeconds        int
	RefillIntervalSeconds    int
	ContainerCooldownSeconds int
	MaxContainersPerRefill   int
	ItemsPerContainerMin     int
	ItemsPerContainerMax    int
}

// DefaultMatchConfig mirrors the §4.4 phase-timing table's defaults.
func DefaultMatchConfig() MatchConfig {
	return MatchConfig{
		SetupPeriodSeconds:       120,
		CountdownSeconds:         30,
		GraceSeconds:             30,
		ActiveSeconds:            600,
		DeathmatchSeconds:        180,
		RefillIntervalSeconds:    30,
		ContainerCooldownSeconds: 60,
		MaxContainersPerRefill:   4,
		ItemsPerContainerMin:     4,
		ItemsPerContainerMax:     6,
	}
}

// MatchConfigFromEnv overlays DefaultMatchConfig with MATCH_* env overrides.
func MatchConfigFromEnv() MatchConfig {
	cfg := DefaultMatchConfig()

	if v := getEnvInt("MATCH_SETUP_PERIOD_SECONDS", 0); v > 0 {
		cfg.SetupPeriodSeconds = v
	}
	if v := getEnvInt("MATCH_COUNTDOWN_SECONDS", 0); v > 0 {
		cfg.CountdownSeconds = v
	}
	if v := getEnvInt("MATCH_GRACE_SECONDS", 0); v > 0 {
		cfg.GraceSeconds = v
	}
	if v := getEnvInt("MATCH_ACTIVE_SECONDS", 0); v > 0 {
		cfg.ActiveSeconds = v
	}
	if v := getEnvInt("MATCH_DEATHMATCH_SECONDS", 0); v > 0 {
		cfg.DeathmatchSeconds = v
	}
	if v := getEnvInt("MATCH_REFILL_INTERVAL_SECONDS", 0); v > 0 {
		cfg.RefillIntervalSeconds = v
	}
	if v := getEnvInt("MATCH_CONTAINER_COOLDOWN_SECONDS", 0); v > 0 {
		cfg.ContainerCooldownSeconds = v
	}
	if v := getEnvInt("MATCH_MAX_CONTAINERS_PER_REFILL", 0); v > 0 {
		cfg.MaxContainersPerRefill = v
	}
	if v := getEnvInt("MATCH_ITEMS_PER_CONTAINER_MIN", 0); v > 0 {
		cfg.ItemsPerContainerMin = v
	}
	if v := getEnvInt("MATCH_ITEMS_PER_CONTAINER_MAX", 0); v > 0 {
		cfg.ItemsPerContainerMax = v
	}
	return cfg
}

// Ticks converts MatchConfig's second-denominated fields into the
// capability.Tick values match.Config wants, at TicksPerSecond.
func (c MatchConfig) Ticks() (setup, countdown, grace, active, deathmatch, refill, containerCooldown capability.Tick) {
	return capability.Tick(c.SetupPeriodSeconds * TicksPerSecond),
		capability.Tick(c.CountdownSeconds * TicksPerSecond),
		capability.Tick(c.GraceSeconds * TicksPerSecond),
		capability.Tick(c.ActiveSeconds * TicksPerSecond),
		capability.Tick(c.DeathmatchSeconds * TicksPerSecond),
		capability.Tick(c.RefillIntervalSeconds * TicksPerSecond),
		capability.Tick(c.ContainerCooldownSeconds * TicksPerSecond)
}

// LootEntryConfig is one configured drop-table row (§4.3).
type LootEntryConfig struct {
	Tier      string
	ItemID    string
	Opaque    bool
	Weight    float64
	MinAmount int
	MaxAmount int
}

// DefaultLootEntries returns a small common/rare/epic drop table sufficient
// to exercise every tier at boot; hosts are expected to override via a
// loaded config file in production.
func DefaultLootEntries() []LootEntryConfig {
	return []LootEntryConfig{
		{Tier: "common", ItemID: "arrow", Weight: 60, MinAmount: 4, MaxAmount: 12},
		{Tier: "common", ItemID: "bandage", Weight: 40, MinAmount: 1, MaxAmount: 3},
		{Tier: "rare", ItemID: "fire-grenade", Weight: 15, MinAmount: 1, MaxAmount: 2},
		{Tier: "rare", ItemID: "poison-grenade", Weight: 10, MinAmount: 1, MaxAmount: 2},
		{Tier: "epic", ItemID: "tracker", Weight: 5, MinAmount: 1, MaxAmount: 1},
	}
}

// ExplosiveConfig controls the thrown fire/poison projectile (§4.7).
type ExplosiveConfig struct {
	FuseSeconds       float64
	EffectSeconds     float64
	CooldownSeconds   float64
	Radius            float64
	BaseDamage        float64
	ThrowVelocity     float64
	EffectAmplifier   int
	DamageThrower     bool
}

// DefaultExplosiveConfig mirrors projectile.DefaultConfig's values expressed
// in seconds instead of ticks, for human-editable config sources.
func DefaultExplosiveConfig() ExplosiveConfig {
	return ExplosiveConfig{
		FuseSeconds:     3,
		EffectSeconds:   5,
		CooldownSeconds: 2,
		Radius:          4.0,
		BaseDamage:      6.0,
		ThrowVelocity:   1.2,
		EffectAmplifier: 1,
		DamageThrower:   false,
	}
}

// ExplosiveConfigFromEnv overlays DefaultExplosiveConfig with EXPLOSIVE_*
// env overrides.
func ExplosiveConfigFromEnv() ExplosiveConfig {
	cfg := DefaultExplosiveConfig()
	if v := getEnvFloat("EXPLOSIVE_FUSE_SECONDS", -1); v >= 0 {
		cfg.FuseSeconds = v
	}
	if v := getEnvFloat("EXPLOSIVE_EFFECT_SECONDS", -1); v >= 0 {
		cfg.EffectSeconds = v
	}
	if v := getEnvFloat("EXPLOSIVE_COOLDOWN_SECONDS", -1); v >= 0 {
		cfg.CooldownSeconds = v
	}
	if v := getEnvFloat("EXPLOSIVE_RADIUS", -1); v >= 0 {
		cfg.Radius = v
	}
	if v := getEnvFloat("EXPLOSIVE_BASE_DAMAGE", -1); v >= 0 {
		cfg.BaseDamage = v
	}
	if os.Getenv("EXPLOSIVE_DAMAGE_THROWER") == "true" {
		cfg.DamageThrower = true
	}
	return cfg
}

// TrackerConfig controls the compass-projection behavior (§4.8).
type TrackerConfig struct {
	UpdatePeriodSeconds float64
	MaxRange            float64
	CloseDistance       float64
	MediumDistance      float64
}

// DefaultTrackerConfig mirrors the bearing-bar defaults used throughout
// §4.8's worked examples.
func DefaultTrackerConfig() TrackerConfig {
	return TrackerConfig{
		UpdatePeriodSeconds: 1,
		MaxRange:            64,
		CloseDistance:       8,
		MediumDistance:      24,
	}
}

// TrackerConfigFromEnv overlays DefaultTrackerConfig with TRACKER_* env
// overrides.
func TrackerConfigFromEnv() TrackerConfig {
	cfg := DefaultTrackerConfig()
	if v := getEnvFloat("TRACKER_UPDATE_PERIOD_SECONDS", -1); v >= 0 {
		cfg.UpdatePeriodSeconds = v
	}
	if v := getEnvFloat("TRACKER_MAX_RANGE", -1); v >= 0 {
		cfg.MaxRange = v
	}
	if v := getEnvFloat("TRACKER_CLOSE_DISTANCE", -1); v >= 0 {
		cfg.CloseDistance = v
	}
	if v := getEnvFloat("TRACKER_MEDIUM_DISTANCE", -1); v >= 0 {
		cfg.MediumDistance = v
	}
	return cfg
}

// ServerConfig holds the admin API's HTTP settings.
type ServerConfig struct {
	Port         int
	AllowOrigins []string
}

// DefaultServer mirrors the teacher's DefaultServer, narrowed to what the
// admin API needs.
func DefaultServer() ServerConfig {
	return ServerConfig{
		Port:         3000,
		AllowOrigins: []string{"*"},
	}
}

// ServerFromEnv overlays DefaultServer with PORT.
func ServerFromEnv() ServerConfig {
	cfg := DefaultServer()
	if p := getEnvInt("PORT", 0); p > 0 {
		cfg.Port = p
	}
	return cfg
}

// AppConfig holds the complete application configuration.
type AppConfig struct {
	Match      MatchConfig
	Loot       []LootEntryConfig
	Explosive  ExplosiveConfig
	Tracker    TrackerConfig
	Server     ServerConfig
	ArenaFile  string
	EventLogFile string
}

// Load returns the complete configuration, applying environment overrides
// over every sub-config. Call LoadDotEnv before Load to pick up a local
// .env file.
func Load() AppConfig {
	return AppConfig{
		Match:        MatchConfigFromEnv(),
		Loot:         DefaultLootEntries(),
		Explosive:    ExplosiveConfigFromEnv(),
		Tracker:      TrackerConfigFromEnv(),
		Server:       ServerFromEnv(),
		ArenaFile:    getEnvString("ARENA_FILE", "arenas.yaml"),
		EventLogFile: getEnvString("EVENT_LOG_FILE", "events.jsonl"),
	}
}

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
