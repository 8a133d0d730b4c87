package validate

import (
	"errors"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/yungbote/materialmap/internal/catalog/materials"
	"github.com/yungbote/materialmap/internal/platform/logger"
)

// ParseSourceDocument parses one hand-authored YAML file into its list of
// source units. Empty input, YAML syntax errors and documents that are not
// a non-empty sequence are fatal for the file.
func ParseSourceDocument(file string, text []byte) ([]*yaml.Node, error) {
	if strings.TrimSpace(string(text)) == "" {
		return nil, &ParseError{File: file, Err: errors.New("Invalid YAML content: empty file")}
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(text, &doc); err != nil {
		return nil, &ParseError{File: file, Err: err}
	}
	root := &doc
	if root.Kind == yaml.DocumentNode && len(root.Content) > 0 {
		root = root.Content[0]
	}
	root = deref(root)
	if root == nil || root.Kind != yaml.SequenceNode {
		return nil, &ParseError{File: file, Err: errors.New("Invalid YAML structure: expected array of materials")}
	}
	if len(root.Content) == 0 {
		return nil, &ParseError{File: file, Err: errors.New("Invalid YAML content: empty materials array")}
	}
	return root.Content, nil
}

// FilterSourceUnits keeps the units that are mappings whose unwrapped record
// carries a non-empty id. A field of the wrong type is logged and left
// empty; the rest of the unit is kept. Rejected units are logged and
// skipped; if nothing survives the whole file is rejected with
// ErrNoValidMaterials.
func FilterSourceUnits(log *logger.Logger, file string, units []*yaml.Node) ([]materials.MaterialRecord, error) {
	out := make([]materials.MaterialRecord, 0, len(units))
	for i, n := range units {
		n = deref(n)
		if n == nil || n.Kind != yaml.MappingNode {
			warnSkip(log, file, i, "not an object")
			continue
		}
		var unit materials.SourceUnit
		if err := n.Decode(&unit); err != nil {
			var terr *yaml.TypeError
			if !errors.As(err, &terr) {
				warnSkip(log, file, i, err.Error())
				continue
			}
			if log != nil {
				log.Warn("ignoring mistyped material fields", "file", file, "index", i, "errors", terr.Errors)
			}
		}
		rec := unit.Record()
		if !rec.Valid() {
			warnSkip(log, file, i, "missing id")
			continue
		}
		rec.ID = strings.TrimSpace(rec.ID)
		out = append(out, rec)
	}
	if len(out) == 0 {
		return nil, ErrNoValidMaterials
	}
	return out, nil
}

func deref(n *yaml.Node) *yaml.Node {
	for n != nil && n.Kind == yaml.AliasNode {
		n = n.Alias
	}
	return n
}

func warnSkip(log *logger.Logger, file string, index int, reason string) {
	if log == nil {
		return
	}
	log.Warn("skipping invalid material", "file", file, "index", index, "reason", reason)
}
