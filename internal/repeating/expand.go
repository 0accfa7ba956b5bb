package repeating

import (
	"strconv"
	"strings"

	"github.com/askelund/forma/internal/layout"
)

// TextResource is the slice of a text resource the expander needs: its key and
// whether any of its variables is row-indexed.
type TextResource struct {
	ID        string
	Variables []TextResourceVariable
}

// TextResourceVariable is one substitution variable of a text resource. A Key
// containing the "[{0}]" placeholder marks the resource as row-indexed.
type TextResourceVariable struct {
	Key        string `json:"key"`
	DataSource string `json:"dataSource"`
}

// indexPlaceholder marks a row-indexed path in text-resource variables and
// mapping keys.
const indexPlaceholder = "[{0}]"

// ExpandRows materializes one component list per row of a repeating group.
// Every template child is deep-copied with its data-model bindings rewritten
// to the row's indexed path, its id suffixed "-<row>", and the pre-suffix id
// recorded as BaseComponentID. Rows run from 0 to lastIndex unless the
// group's edit filter overrides start or stop.
func ExpandRows(
	container *layout.Container,
	templates []*layout.Component,
	lastIndex int,
	textResources []TextResource,
	hiddenFields []string,
) [][]*layout.Component {
	start, stop := rowRange(container, lastIndex)
	groupBinding := container.GroupBinding()

	indexed := map[string]bool{}
	for _, tr := range textResources {
		for _, v := range tr.Variables {
			if strings.Contains(v.Key, indexPlaceholder) {
				indexed[tr.ID] = true
			}
		}
	}
	hidden := map[string]bool{}
	for _, id := range hiddenFields {
		hidden[id] = true
	}

	var rows [][]*layout.Component
	for row := start; row <= stop; row++ {
		suffix := "-" + strconv.Itoa(row)
		rowComponents := make([]*layout.Component, 0, len(templates))
		for _, tpl := range templates {
			c := tpl.Clone()
			c.ID = tpl.ID + suffix
			c.BaseComponentID = tpl.ID
			c.Hidden = hidden[c.ID]
			for key, b := range c.Bindings {
				b.Field = indexBinding(b.Field, groupBinding, row)
				c.Bindings[key] = b
			}
			for key, resourceKey := range c.TextResourceBindings {
				if indexed[resourceKey] {
					c.TextResourceBindings[key] = resourceKey + suffix
				}
			}
			if len(c.Mapping) > 0 {
				mapping := make(map[string]string, len(c.Mapping))
				for key, value := range c.Mapping {
					mapping[indexMappingKey(key, row)] = value
				}
				c.Mapping = mapping
			}
			rowComponents = append(rowComponents, c)
		}
		rows = append(rows, rowComponents)
	}
	return rows
}

// rowRange resolves the expansion bounds: 0..lastIndex, overridden by the
// group's edit filter "start"/"stop" entries when present and parseable.
func rowRange(container *layout.Container, lastIndex int) (int, int) {
	start, stop := 0, lastIndex
	if container.Edit == nil {
		return start, stop
	}
	for _, f := range container.Edit.Filter {
		n, err := strconv.Atoi(f.Value)
		if err != nil {
			continue
		}
		switch f.Key {
		case "start":
			start = n
		case "stop":
			stop = n
		}
	}
	return start, stop
}

// indexBinding inserts "[row]" after the group's own binding prefix. A field
// outside the group's subtree is left untouched.
func indexBinding(field, groupBinding string, row int) string {
	if groupBinding == "" {
		return field
	}
	rest, ok := strings.CutPrefix(field, groupBinding)
	if !ok {
		return field
	}
	return groupBinding + "[" + strconv.Itoa(row) + "]" + rest
}

// indexMappingKey substitutes the row index into a mapping key's placeholder.
func indexMappingKey(key string, row int) string {
	return strings.ReplaceAll(key, indexPlaceholder, "["+strconv.Itoa(row)+"]")
}
