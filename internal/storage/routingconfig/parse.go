// Package routingconfig parses the Storage Server's persisted routing
// configuration, per spec.md §6: a text file, comment lines starting with
// `#`, declaring the transposer set and the role-tagged inventories wired
// to them.
package routingconfig

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/rsned/transposer-crafting-fabric/internal/storage/route"
	"github.com/rsned/transposer-crafting-fabric/pkg/fabric"
)

// Connection is one `<transposer-idx>:<side>` entry on an inventory line.
type Connection struct {
	TransposerIndex int
	Side            int
}

// Inventory is one parsed role-section entry, still in file order (which
// is this inventory's priority within its role, per spec.md §6).
type Inventory struct {
	Role        fabric.Role
	Display     string
	Connections []Connection
}

// Config is the fully parsed routing configuration.
type Config struct {
	TransposerIDs []string // declared UUIDs, in index order
	Inventories   []Inventory
}

var sectionRoles = map[string]fabric.Role{
	"storage:":  fabric.RoleStorage,
	"input:":    fabric.RoleInput,
	"output:":   fabric.RoleOutput,
	"transfer:": fabric.RoleTransfer,
	"drone:":    fabric.RoleDrone,
}

// ParseFile reads and parses the routing config at path.
func ParseFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("routingconfig: opening %s: %w", path, err)
	}
	defer f.Close()
	cfg, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("routingconfig: parsing %s: %w", path, err)
	}
	return cfg, nil
}

// Parse reads the routing config grammar from r.
func Parse(r io.Reader) (*Config, error) {
	cfg := &Config{}
	scanner := bufio.NewScanner(r)

	section := ""
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if line == "transposers:" {
			section = "transposers:"
			continue
		}
		if _, ok := sectionRoles[line]; ok {
			section = line
			continue
		}

		switch section {
		case "transposers:":
			cfg.TransposerIDs = append(cfg.TransposerIDs, line)
		case "storage:", "input:", "output:", "transfer:", "drone:":
			inv, err := parseInventoryLine(sectionRoles[section], line)
			if err != nil {
				return nil, fmt.Errorf("routingconfig: line %d: %w", lineNo, err)
			}
			cfg.Inventories = append(cfg.Inventories, inv)
		default:
			return nil, fmt.Errorf("routingconfig: line %d: %q outside any section", lineNo, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("routingconfig: reading: %w", err)
	}
	return cfg, nil
}

// parseInventoryLine parses `"<display>"; connections = idx:side,idx:side,...`.
func parseInventoryLine(role fabric.Role, line string) (Inventory, error) {
	if !strings.HasPrefix(line, `"`) {
		return Inventory{}, fmt.Errorf("expected inventory line to start with a quoted display name, got %q", line)
	}
	end := strings.Index(line[1:], `"`)
	if end < 0 {
		return Inventory{}, fmt.Errorf("unterminated display name in %q", line)
	}
	display := line[1 : end+1]
	rest := strings.TrimSpace(line[end+2:])
	rest = strings.TrimPrefix(rest, ";")
	rest = strings.TrimSpace(rest)

	const prefix = "connections"
	if !strings.HasPrefix(rest, prefix) {
		return Inventory{}, fmt.Errorf("expected %q field, got %q", prefix, rest)
	}
	rest = strings.TrimSpace(rest[len(prefix):])
	rest = strings.TrimPrefix(rest, "=")
	rest = strings.TrimSpace(rest)

	var conns []Connection
	for _, tok := range strings.Split(rest, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		idxStr, sideStr, ok := strings.Cut(tok, ":")
		if !ok {
			return Inventory{}, fmt.Errorf("malformed connection %q", tok)
		}
		idx, err := strconv.Atoi(strings.TrimSpace(idxStr))
		if err != nil {
			return Inventory{}, fmt.Errorf("bad transposer index in %q: %w", tok, err)
		}
		side, err := strconv.Atoi(strings.TrimSpace(sideStr))
		if err != nil {
			return Inventory{}, fmt.Errorf("bad side in %q: %w", tok, err)
		}
		conns = append(conns, Connection{TransposerIndex: idx, Side: side})
	}

	return Inventory{Role: role, Display: display, Connections: conns}, nil
}

// BuildGraph wires cfg's inventories into a route.Graph. Priority index
// within each role is assigned by file declaration order (first = 0 =
// highest priority), per spec.md §6. Returns the graph plus each
// inventory's assigned InventoryRef and display name, in declaration
// order, for the caller to build physical Inventory objects against.
func BuildGraph(cfg *Config) (*route.Graph, []fabric.InventoryRef, map[fabric.InventoryRef]string, error) {
	g := route.NewGraph()
	roleCounters := make(map[fabric.Role]int)
	refs := make([]fabric.InventoryRef, 0, len(cfg.Inventories))
	displays := make(map[fabric.InventoryRef]string, len(cfg.Inventories))

	for _, inv := range cfg.Inventories {
		ref := fabric.InventoryRef{Role: inv.Role, Index: roleCounters[inv.Role]}
		roleCounters[inv.Role]++
		for _, c := range inv.Connections {
			g.Connect(ref, c.TransposerIndex, c.Side)
		}
		refs = append(refs, ref)
		displays[ref] = inv.Display
	}

	if err := g.Validate(); err != nil {
		return nil, nil, nil, fmt.Errorf("routingconfig: %w", err)
	}
	return g, refs, displays, nil
}
