// Package cli implements the host-agnostic admin command surface (§6, "CLI
// surface"): start/stop/list/info/reload/create/select-arena/
// rescan-containers, each returning a binary success/failure result plus a
// human-readable message. internal/adminapi is one HTTP transport over this
// dispatcher; a terminal REPL or test harness is another.
//
// Grounded on the teacher's cmd/server/main.go command handling style (plain
// functions returning (string, error), no framework-specific request/response
// types threaded through business logic).
package cli

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"matchd/internal/arena"
	"matchd/internal/capability"
	"matchd/internal/registry"
)

// Dispatcher holds the one piece of state a CLI session needs beyond the
// registries themselves: which arena `stop`/`info`/`rescan-containers` act
// on when invoked without an explicit argument, set by `select-arena`.
// `start` always takes an explicit arena.
type Dispatcher struct {
	arenas    *arena.Registry
	matches   *registry.Registry

	mu      sync.Mutex
	current string
}

func New(arenas *arena.Registry, matches *registry.Registry) *Dispatcher {
	return &Dispatcher{arenas: arenas, matches: matches}
}

// Result is the outcome of one command: Message is shown to the operator,
// Err is non-nil on failure (the exit-code boundary §6 mandates).
type Result struct {
	Message string
	Err     error
}

func ok(format string, args ...interface{}) Result {
	return Result{Message: fmt.Sprintf(format, args...)}
}

func fail(err error) Result {
	return Result{Err: err}
}

// Dispatch parses a command line the way a REPL or HTTP handler would and
// runs it. args[0] is the command name; the rest are its arguments.
func (d *Dispatcher) Dispatch(args []string) Result {
	if len(args) == 0 {
		return fail(fmt.Errorf("no command given"))
	}
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "start":
		if len(rest) != 1 {
			return fail(fmt.Errorf("usage: start <arena>"))
		}
		return d.Start(rest[0])
	case "stop":
		name := d.selected(rest)
		if name == "" {
			return fail(fmt.Errorf("usage: stop [arena] (or select-arena first)"))
		}
		return d.Stop(name)
	case "list":
		return d.List()
	case "info":
		name := d.selected(rest)
		if name == "" {
			return fail(fmt.Errorf("usage: info [arena] (or select-arena first)"))
		}
		return d.Info(name)
	case "reload":
		return d.Reload()
	case "create":
		if len(rest) != 2 {
			return fail(fmt.Errorf("usage: create <name> <radius>"))
		}
		radius, err := strconv.Atoi(rest[1])
		if err != nil {
			return fail(fmt.Errorf("invalid radius %q: %w", rest[1], err))
		}
		return d.Create(rest[0], radius)
	case "select-arena":
		if len(rest) != 1 {
			return fail(fmt.Errorf("usage: select-arena <name>"))
		}
		return d.SelectArena(rest[0])
	case "rescan-containers":
		name := d.selected(rest)
		if name == "" {
			return fail(fmt.Errorf("usage: rescan-containers [arena] (or select-arena first)"))
		}
		return d.RescanContainers(name)
	default:
		return fail(fmt.Errorf("unknown command %q", cmd))
	}
}

func (d *Dispatcher) selected(rest []string) string {
	if len(rest) == 1 {
		return rest[0]
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.current
}

// Start creates (or reuses) the Match bound to arenaName and activates it,
// transitioning INACTIVE -> WAITING.
func (d *Dispatcher) Start(arenaName string) Result {
	m, err := d.matches.GetOrCreate(arenaName)
	if err != nil {
		return fail(err)
	}
	if err := m.Activate(); err != nil {
		return fail(err)
	}
	return ok("match %s started on %s", m.ID, arenaName)
}

// Stop administratively aborts the Match bound to arenaName, if any.
func (d *Dispatcher) Stop(arenaName string) Result {
	m, ok2 := d.matches.ByArena(arenaName)
	if !ok2 {
		return fail(fmt.Errorf("no active match on arena %q", arenaName))
	}
	m.AdminStop()
	return ok("match %s stopping on %s", m.ID, arenaName)
}

// List enumerates every non-terminal match, one line each.
func (d *Dispatcher) List() Result {
	matches := d.matches.Active()
	if len(matches) == 0 {
		return ok("no active matches")
	}
	var b strings.Builder
	for _, m := range matches {
		fmt.Fprintf(&b, "%s\t%s\t%s\n", m.ID, m.Arena.Name, m.Phase())
	}
	return ok("%s", strings.TrimRight(b.String(), "\n"))
}

// Info reports the phase and roster size of the Match bound to arenaName.
func (d *Dispatcher) Info(arenaName string) Result {
	m, ok2 := d.matches.ByArena(arenaName)
	if !ok2 {
		return fail(fmt.Errorf("no active match on arena %q", arenaName))
	}
	roster := m.RosterSnapshot()
	return ok("match %s on %s: phase=%s roster=%d", m.ID, arenaName, m.Phase(), len(roster))
}

// Reload acknowledges the command and does nothing else: no config or arena
// document is re-read, here or in cmd/matchd.
func (d *Dispatcher) Reload() Result {
	return ok("reload acknowledged (host handles config/arena reload)")
}

// CreateAt registers a new Arena by scanning a cubic volume around the given
// origin. Its only caller is Create, which passes the world origin.
func (d *Dispatcher) CreateAt(name string, origin capability.Position, radius int) Result {
	a, err := d.arenas.Create(name, origin, radius, arena.DefaultCreateOptions())
	if err != nil {
		return fail(err)
	}
	return ok("arena %s created, radius %d, %d containers found", a.Name, a.Radius, len(a.Containers()))
}

// Create implements the bare `create <name> <radius>` CLI form, using the
// world origin (0,0,0) as the scan center.
func (d *Dispatcher) Create(name string, radius int) Result {
	return d.CreateAt(name, capability.Position{}, radius)
}

// SelectArena sets the arena implicit in stop/info/rescan-containers
// invocations that omit an explicit name.
func (d *Dispatcher) SelectArena(name string) Result {
	if _, found := d.arenas.Get(name); !found {
		return fail(fmt.Errorf("no such arena %q", name))
	}
	d.mu.Lock()
	d.current = name
	d.mu.Unlock()
	return ok("selected arena %s", name)
}

// RescanContainers re-scans arenaName's container volume and replaces its
// container set atomically.
func (d *Dispatcher) RescanContainers(arenaName string) Result {
	n, err := d.arenas.RescanContainers(arenaName)
	if err != nil {
		return fail(err)
	}
	return ok("arena %s: %d containers found", arenaName, n)
}

// ArenaNames lists every registered arena, sorted.
func (d *Dispatcher) ArenaNames() []string {
	arenas := d.arenas.All()
	names := make([]string, len(arenas))
	for i, a := range arenas {
		names[i] = a.Name
	}
	sort.Strings(names)
	return names
}
