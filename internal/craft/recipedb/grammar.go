package recipedb

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/rsned/transposer-crafting-fabric/pkg/fabric"
)

// craftStationName is the synthetic robot-workbench station. It need not
// appear in a `station ... end` block; recipes may reference it directly.
const craftStationName = "craft"

// ParsedCatalog is the raw result of parsing a recipe file: every declared
// station plus every recipe, in file order.
type ParsedCatalog struct {
	Stations map[string]fabric.Station
	Recipes  []fabric.Recipe
}

// ParseFile reads and parses the recipe file at path.
func ParseFile(path string) (*ParsedCatalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("recipedb: opening %s: %w", path, err)
	}
	defer f.Close()
	cat, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("recipedb: parsing %s: %w", path, err)
	}
	return cat, nil
}

// recipeHeader matches a line of the form "<station-name>:" that begins a
// recipe block.
func recipeHeader(line string) (string, bool) {
	if !strings.HasSuffix(line, ":") {
		return "", false
	}
	name := strings.TrimSuffix(line, ":")
	if name == "" || strings.ContainsAny(name, " \t") {
		return "", false
	}
	return name, true
}

// Parse reads the station/recipe grammar from r, per spec.md §6: station
// blocks (`station <name>` ... `end`, fields `in`, `out`, `path<n>`, `time`,
// `type`), then recipe blocks (`<station-name>:`, output lines, `with`,
// input lines). Parsing is whitespace-tolerant and line-oriented; `#`
// starts a comment.
func Parse(r io.Reader) (*ParsedCatalog, error) {
	cat := &ParsedCatalog{Stations: make(map[string]fabric.Station)}
	cat.Stations[craftStationName] = fabric.Station{Name: craftStationName, Type: fabric.StationDefault, IsWorkshop: true}

	scanner := bufio.NewScanner(r)
	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("recipedb: reading: %w", err)
	}

	i := 0
	for i < len(lines) {
		line := strings.TrimSpace(lines[i])
		if line == "" || strings.HasPrefix(line, "#") {
			i++
			continue
		}

		if fields := strings.Fields(line); len(fields) >= 2 && fields[0] == "station" {
			st, consumed, err := parseStation(lines, i)
			if err != nil {
				return nil, fmt.Errorf("recipedb: line %d: %w", i+1, err)
			}
			cat.Stations[st.Name] = st
			i += consumed
			continue
		}

		if name, ok := recipeHeader(line); ok {
			recipes, consumed, err := parseRecipeBlock(lines, i, name, cat.Stations)
			if err != nil {
				return nil, fmt.Errorf("recipedb: line %d: %w", i+1, err)
			}
			cat.Recipes = append(cat.Recipes, recipes...)
			i += consumed
			continue
		}

		return nil, fmt.Errorf("recipedb: line %d: unexpected %q outside any block", i+1, line)
	}

	return cat, nil
}

// parseStation parses a `station <name> ... end` block starting at
// lines[start]. Returns the station and the number of lines consumed.
func parseStation(lines []string, start int) (fabric.Station, int, error) {
	header := strings.Fields(strings.TrimSpace(lines[start]))
	st := fabric.Station{Name: header[1], Type: fabric.StationDefault, Paths: make(map[int]string)}

	i := start + 1
	for i < len(lines) {
		line := strings.TrimSpace(lines[i])
		if line == "" || strings.HasPrefix(line, "#") {
			i++
			continue
		}
		if line == "end" {
			i++
			break
		}
		fields := strings.Fields(line)
		key := fields[0]
		value := strings.TrimSpace(strings.TrimPrefix(line, key))

		switch {
		case key == "in":
			st.InPaths = append(st.InPaths, value)
		case key == "out":
			st.OutPaths = append(st.OutPaths, value)
		case key == "time":
			t, err := strconv.ParseFloat(value, 64)
			if err != nil {
				return fabric.Station{}, 0, fmt.Errorf("bad time value %q: %w", value, err)
			}
			st.TimeSec = t
		case key == "type":
			switch fabric.StationType(value) {
			case fabric.StationDefault, fabric.StationSequential, fabric.StationBulk:
				st.Type = fabric.StationType(value)
			default:
				return fabric.Station{}, 0, fmt.Errorf("unrecognized station type %q", value)
			}
		case strings.HasPrefix(key, "path"):
			n, err := strconv.Atoi(strings.TrimPrefix(key, "path"))
			if err != nil {
				return fabric.Station{}, 0, fmt.Errorf("unrecognized station option %q", key)
			}
			st.Paths[n] = value
		default:
			return fabric.Station{}, 0, fmt.Errorf("unrecognized station option %q", key)
		}
		i++
	}

	return st, i - start, nil
}

// parseRecipeBlock parses one or more recipes sharing a station header and
// input list: consecutive output lines, the `with` keyword, then the input
// lines. Multiple output lines before `with` produce that many recipes, one
// per output, all sharing the parsed Components.
func parseRecipeBlock(lines []string, start int, station string, stations map[string]fabric.Station) ([]fabric.Recipe, int, error) {
	st, ok := stations[station]
	if !ok {
		return nil, 0, fmt.Errorf("recipe block references undeclared station %q", station)
	}

	i := start + 1
	var outputs []fabric.RecipeOutput
	for i < len(lines) {
		line := strings.TrimSpace(lines[i])
		if line == "" || strings.HasPrefix(line, "#") {
			i++
			continue
		}
		if line == "with" {
			i++
			break
		}
		out, err := parseOutputLine(line)
		if err != nil {
			return nil, 0, fmt.Errorf("line %d: %w", i+1, err)
		}
		outputs = append(outputs, out)
		i++
	}
	if len(outputs) == 0 {
		return nil, 0, fmt.Errorf("recipe block for %q has no output lines", station)
	}

	var components []fabric.RecipeComponent
	for i < len(lines) {
		line := strings.TrimSpace(lines[i])
		if line == "" || strings.HasPrefix(line, "#") {
			i++
			continue
		}
		if _, ok := recipeHeader(line); ok {
			break
		}
		if fields := strings.Fields(line); len(fields) >= 2 && fields[0] == "station" {
			break
		}
		comp, err := parseInputLine(line, st.IsWorkshop)
		if err != nil {
			return nil, 0, fmt.Errorf("line %d: %w", i+1, err)
		}
		components = append(components, comp)
		i++
	}

	recipes := make([]fabric.Recipe, len(outputs))
	for n, out := range outputs {
		recipes[n] = fabric.Recipe{
			ID:          fmt.Sprintf("%s:%s:%d", station, out.Kind.String(), n),
			Station:     station,
			StationType: st.Type,
			Output:      out,
			Components:  components,
		}
	}

	return recipes, i - start, nil
}

// parseOutputLine parses `<count> <kind> "<label>" <max-stack>`.
func parseOutputLine(line string) (fabric.RecipeOutput, error) {
	firstSpace := strings.IndexAny(line, " \t")
	if firstSpace < 0 {
		return fabric.RecipeOutput{}, fmt.Errorf("malformed output line %q", line)
	}
	count, err := strconv.Atoi(line[:firstSpace])
	if err != nil {
		return fabric.RecipeOutput{}, fmt.Errorf("bad output count in %q: %w", line, err)
	}
	rest := strings.TrimSpace(line[firstSpace:])

	secondSpace := strings.IndexAny(rest, " \t")
	if secondSpace < 0 {
		return fabric.RecipeOutput{}, fmt.Errorf("malformed output line %q", line)
	}
	kind, err := ParseKind(rest[:secondSpace])
	if err != nil {
		return fabric.RecipeOutput{}, fmt.Errorf("bad output kind in %q: %w", line, err)
	}
	rest = strings.TrimSpace(rest[secondSpace:])

	if !strings.HasPrefix(rest, `"`) {
		return fabric.RecipeOutput{}, fmt.Errorf("expected quoted label in %q", line)
	}
	end := strings.Index(rest[1:], `"`)
	if end < 0 {
		return fabric.RecipeOutput{}, fmt.Errorf("unterminated label in %q", line)
	}
	label := rest[1 : end+1]
	maxStackStr := strings.TrimSpace(rest[end+2:])
	maxStack, err := strconv.Atoi(maxStackStr)
	if err != nil {
		return fabric.RecipeOutput{}, fmt.Errorf("bad max stack in %q: %w", line, err)
	}

	return fabric.RecipeOutput{Kind: kind, Label: label, MaxStack: maxStack, Quantity: count}, nil
}

// parseInputLine parses a processing-station input (`<count> <kind>`) or,
// for the synthetic craft station, `<kind> <slot-index>...`.
func parseInputLine(line string, isWorkshop bool) (fabric.RecipeComponent, error) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return fabric.RecipeComponent{}, fmt.Errorf("malformed input line %q", line)
	}

	if isWorkshop {
		kind, err := ParseKind(fields[0])
		if err != nil {
			return fabric.RecipeComponent{}, fmt.Errorf("bad input kind in %q: %w", line, err)
		}
		slots := make([]int, 0, len(fields)-1)
		for _, s := range fields[1:] {
			n, err := strconv.Atoi(s)
			if err != nil {
				return fabric.RecipeComponent{}, fmt.Errorf("bad slot index %q in %q: %w", s, line, err)
			}
			if n < 1 || n > 9 {
				return fabric.RecipeComponent{}, fmt.Errorf("slot index %d out of range 1..9 in %q", n, line)
			}
			slots = append(slots, n)
		}
		return fabric.RecipeComponent{Kind: kind, Quantity: len(slots), SlotIndices: slots}, nil
	}

	count, err := strconv.Atoi(fields[0])
	if err != nil {
		return fabric.RecipeComponent{}, fmt.Errorf("bad input count in %q: %w", line, err)
	}
	kind, err := ParseKind(fields[1])
	if err != nil {
		return fabric.RecipeComponent{}, fmt.Errorf("bad input kind in %q: %w", line, err)
	}
	return fabric.RecipeComponent{Kind: kind, Quantity: count}, nil
}
