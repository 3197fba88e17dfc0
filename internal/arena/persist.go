package arena

import (
	"io"

	"gopkg.in/yaml.v3"

	"matchd/internal/capability"
)

// docPosition and docArena are the on-disk shapes for arenas.yaml — the
// "hierarchical key-value" structured document §6 calls for. Field names
// are deliberately flat/lowercase to read well hand-edited.
type docPosition struct {
	World string  `yaml:"world"`
	X     float64 `yaml:"x"`
	Y     float64 `yaml:"y"`
	Z     float64 `yaml:"z"`
	Yaw   float64 `yaml:"yaw"`
	Pitch float64 `yaml:"pitch"`
}

func toDocPosition(p capability.Position) docPosition {
	return docPosition{World: p.WorldID, X: p.X, Y: p.Y, Z: p.Z, Yaw: p.Yaw, Pitch: p.Pitch}
}

func (d docPosition) toPosition() capability.Position {
	return capability.Position{WorldID: d.World, X: d.X, Y: d.Y, Z: d.Z, Yaw: d.Yaw, Pitch: d.Pitch}
}

type docArena struct {
	Name             string        `yaml:"name"`
	MinParticipants  int           `yaml:"min_participants"`
	MaxParticipants  int           `yaml:"max_participants"`
	Origin           docPosition   `yaml:"origin"`
	Radius           int           `yaml:"radius"`
	DeathmatchCenter docPosition   `yaml:"deathmatch_center"`
	Spawns           []docPosition `yaml:"spawns"`
	Containers       []docPosition `yaml:"containers"`
}

type document struct {
	Arenas []docArena `yaml:"arenas"`
}

// Save serializes every registered arena: name, min/max, world id, spawn
// points (with orientation), container positions, and deathmatch center —
// exactly the field list §6 specifies.
func (r *Registry) Save(w io.Writer) error {
	r.mu.RLock()
	doc := document{Arenas: make([]docArena, 0, len(r.arenas))}
	for _, a := range r.allLocked() {
		spawns := make([]docPosition, len(a.Spawns))
		for i, s := range a.Spawns {
			spawns[i] = toDocPosition(s.Position)
		}
		containers := a.Containers()
		containerDocs := make([]docPosition, len(containers))
		for i, c := range containers {
			containerDocs[i] = toDocPosition(c)
		}
		doc.Arenas = append(doc.Arenas, docArena{
			Name:             a.Name,
			MinParticipants:  a.MinParticipants,
			MaxParticipants:  a.MaxParticipants,
			Origin:           toDocPosition(a.Origin),
			Radius:           a.Radius,
			DeathmatchCenter: toDocPosition(a.DeathmatchCenter),
			Spawns:           spawns,
			Containers:       containerDocs,
		})
	}
	r.mu.RUnlock()

	enc := yaml.NewEncoder(w)
	defer enc.Close()
	return enc.Encode(doc)
}

// Load replaces the registry's arena set from a previously Saved document.
// Container scans are not re-run — the persisted container positions are
// restored as-is; call RescanContainers to refresh them against a live
// World.
func (r *Registry) Load(rd io.Reader) error {
	var doc document
	if err := yaml.NewDecoder(rd).Decode(&doc); err != nil {
		if err == io.EOF {
			return nil
		}
		return err
	}

	arenas := make(map[string]*Arena, len(doc.Arenas))
	for _, da := range doc.Arenas {
		spawns := make([]SpawnPoint, len(da.Spawns))
		for i, s := range da.Spawns {
			spawns[i] = SpawnPoint{Position: s.toPosition()}
		}
		containers := make([]capability.Position, len(da.Containers))
		for i, c := range da.Containers {
			containers[i] = c.toPosition()
		}
		a := &Arena{
			Name:             da.Name,
			WorldID:          da.Origin.World,
			Origin:           da.Origin.toPosition(),
			Radius:           da.Radius,
			DeathmatchCenter: da.DeathmatchCenter.toPosition(),
			MinParticipants:  da.MinParticipants,
			MaxParticipants:  da.MaxParticipants,
			Spawns:           spawns,
		}
		a.setContainers(containers)
		arenas[key(da.Name)] = a
	}

	r.mu.Lock()
	r.arenas = arenas
	r.mu.Unlock()
	return nil
}

// allLocked returns the arena slice assuming r.mu is already held.
func (r *Registry) allLocked() []*Arena {
	out := make([]*Arena, 0, len(r.arenas))
	for _, a := range r.arenas {
		out = append(out, a)
	}
	return out
}
