// Package arena implements the Arena Registry (§4.2): immutable arena
// definitions plus the administrative container scan that is the one
// mutation an Arena permits after creation.
//
// Grounded on other_examples' terminal-velocity internal/arena/manager.go
// (a sync.RWMutex-guarded map[id]*Arena with radial spawn-point generation
// and a narrow config struct), adapted from a combat-manager-owned arena
// pool to a standalone registry the match engine references by name.
package arena

import (
	"math"
	"sort"
	"strings"
	"sync"

	"matchd/internal/capability"
	"matchd/internal/matcherr"
)

// SpawnPoint is a position with facing assigned to new participants.
type SpawnPoint struct {
	Position capability.Position
}

// Arena is immutable once created, except for Containers which is replaced
// wholesale (and only wholesale) by RescanContainers.
type Arena struct {
	Name             string
	WorldID          string
	Origin           capability.Position
	Radius           int
	Spawns           []SpawnPoint
	DeathmatchCenter capability.Position
	MinParticipants  int
	MaxParticipants  int

	mu         sync.RWMutex
	containers []capability.Position
}

// Containers returns a snapshot of the current container set.
func (a *Arena) Containers() []capability.Position {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]capability.Position, len(a.containers))
	copy(out, a.containers)
	return out
}

func (a *Arena) setContainers(positions []capability.Position) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.containers = positions
}

// CreateOptions configures Registry.Create beyond the required
// (name, origin, radius) triple.
type CreateOptions struct {
	MinParticipants   int
	MaxParticipants   int
	SpawnCount        int
	ContainerBlock    capability.BlockKind
	DeathmatchCenter  *capability.Position // defaults to origin
}

// DefaultCreateOptions mirrors the teacher's DefaultLimits() pattern: a
// named constructor for sane defaults rather than zero-value structs.
func DefaultCreateOptions() CreateOptions {
	return CreateOptions{
		MinParticipants: 2,
		MaxParticipants: 16,
		SpawnCount:      8,
		ContainerBlock:  capability.BlockKind("chest"),
	}
}

// Registry holds every known Arena and the one World capability container
// scans are performed through.
type Registry struct {
	mu     sync.RWMutex
	arenas map[string]*Arena
	world  capability.World
}

func NewRegistry(world capability.World) *Registry {
	return &Registry{
		arenas: make(map[string]*Arena),
		world:  world,
	}
}

func key(name string) string { return strings.ToLower(name) }

// Create scans a cubic volume of side 2*radius+1 centered on origin for
// containers, assigns a radial spawn layout, and registers the arena.
// Fails with matcherr.ErrArenaExists or matcherr.ErrInvalidBounds.
func (r *Registry) Create(name string, origin capability.Position, radius int, opts CreateOptions) (*Arena, error) {
	if radius <= 0 {
		return nil, matcherr.Wrap(matcherr.ErrInvalidBounds, "arena %q: radius %d", name, radius)
	}
	if opts.MinParticipants <= 0 || opts.MaxParticipants < opts.MinParticipants {
		return nil, matcherr.Wrap(matcherr.ErrInvalidBounds, "arena %q: min %d max %d", name, opts.MinParticipants, opts.MaxParticipants)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	k := key(name)
	if _, exists := r.arenas[k]; exists {
		return nil, matcherr.ErrArenaExists
	}

	center := origin
	if opts.DeathmatchCenter != nil {
		center = *opts.DeathmatchCenter
	}

	a := &Arena{
		Name:             name,
		WorldID:          origin.WorldID,
		Origin:           origin,
		Radius:           radius,
		DeathmatchCenter: center,
		MinParticipants:  opts.MinParticipants,
		MaxParticipants:  opts.MaxParticipants,
		Spawns:           radialSpawns(origin, radius, opts.SpawnCount),
	}

	containerBlock := opts.ContainerBlock
	if containerBlock == "" {
		containerBlock = capability.BlockKind("chest")
	}
	a.setContainers(scanContainers(r.world, origin, radius, containerBlock))

	r.arenas[k] = a
	return a, nil
}

// Get performs a case-insensitive lookup.
func (r *Registry) Get(name string) (*Arena, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.arenas[key(name)]
	return a, ok
}

// All returns every registered arena, sorted by name for deterministic
// output (CLI `list`, admin API, tests).
func (r *Registry) All() []*Arena {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Arena, 0, len(r.arenas))
	for _, a := range r.arenas {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// RescanContainers replaces an arena's container set atomically and returns
// the new count.
func (r *Registry) RescanContainers(name string) (int, error) {
	a, ok := r.Get(name)
	if !ok {
		return 0, matcherr.ErrArenaNotFound
	}
	positions := scanContainers(r.world, a.Origin, a.Radius, capability.BlockKind("chest"))
	a.setContainers(positions)
	return len(positions), nil
}

func scanContainers(world capability.World, origin capability.Position, radius int, kind capability.BlockKind) []capability.Position {
	if world == nil {
		return nil
	}
	var found []capability.Position
	for dx := -radius; dx <= radius; dx++ {
		for dy := -radius; dy <= radius; dy++ {
			for dz := -radius; dz <= radius; dz++ {
				pos := capability.Position{
					WorldID: origin.WorldID,
					X:       origin.X + float64(dx),
					Y:       origin.Y + float64(dy),
					Z:       origin.Z + float64(dz),
				}
				blockKind, err := world.GetBlock(pos)
				if err != nil {
					continue
				}
				if blockKind == kind {
					found = append(found, pos)
				}
			}
		}
	}
	return found
}

// radialSpawns lays out `count` spawn points evenly around origin at
// distance radius*0.8, each facing the center — the same "radial layout"
// the arena-manager example derives for PvP arenas.
func radialSpawns(origin capability.Position, radius, count int) []SpawnPoint {
	if count <= 0 {
		count = 8
	}
	spawnRadius := float64(radius) * 0.8
	spawns := make([]SpawnPoint, 0, count)
	for i := 0; i < count; i++ {
		angle := 2 * math.Pi * float64(i) / float64(count)
		x := origin.X + spawnRadius*math.Cos(angle)
		z := origin.Z + spawnRadius*math.Sin(angle)
		yaw := math.Mod(math.Atan2(origin.X-x, origin.Z-z)*180/math.Pi+360, 360)
		spawns = append(spawns, SpawnPoint{Position: capability.Position{
			WorldID: origin.WorldID,
			X:       x,
			Y:       origin.Y,
			Z:       z,
			Yaw:     yaw,
		}})
	}
	return spawns
}
