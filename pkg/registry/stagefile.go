// Package registry implements SourceRegistry and ModelRegistry (C5):
// the shared add/remove/pull behavior the original called
// _DataSourceBase, specialized for sources and models.
package registry

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// rewriteStageFile loads the YAML mapping at path and sets "wdir" to
// filepath.Join(existing wdir, filepath.Base(sourcePath)) and
// "outs[0].path" to dstName, leaving every other key untouched —
// directly mirroring the original _fix_dvc_file's load-mutate-dump,
// reimplemented over yaml.v3's yaml.Node so unrelated keys and
// formatting round-trip rather than being reconstructed from a typed
// struct (which would silently drop any key this engine doesn't know
// about yet).
func rewriteStageFile(path, sourcePath, dstName string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return err
	}
	if len(doc.Content) == 0 {
		return fmt.Errorf("registry: stage file %s is empty", path)
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return fmt.Errorf("registry: stage file %s is not a mapping", path)
	}

	fields := mapNodeToFields(root)

	if wdirNode, ok := fields["wdir"]; ok {
		wdirNode.Value = filepath.Join(wdirNode.Value, filepath.Base(sourcePath))
	}
	if outsNode, ok := fields["outs"]; ok && outsNode.Kind == yaml.SequenceNode && len(outsNode.Content) > 0 {
		first := outsNode.Content[0]
		if first.Kind == yaml.MappingNode {
			outFields := mapNodeToFields(first)
			if pathNode, ok := outFields["path"]; ok {
				pathNode.Value = dstName
			}
		}
	}

	out, err := yaml.Marshal(&doc)
	if err != nil {
		return err
	}
	return os.WriteFile(path, out, 0o644)
}

// mapNodeToFields indexes a YAML mapping node's value nodes by key,
// mirroring the teacher's mapNodeToMap helper (pkg/util/overwrite_yaml.go)
// but returning just the value node, since callers here mutate in
// place rather than compare two trees.
func mapNodeToFields(node *yaml.Node) map[string]*yaml.Node {
	fields := make(map[string]*yaml.Node, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		fields[node.Content[i].Value] = node.Content[i+1]
	}
	return fields
}

// writeStageFile writes a fresh stage file at path recording wdir and
// the single output path — the minimal shape rewriteStageFile expects
// to find and mutate later.
func writeStageFile(path, wdir, outPath string) error {
	doc := map[string]interface{}{
		"wdir": wdir,
		"outs": []map[string]interface{}{{"path": outPath}},
	}
	data, err := yaml.Marshal(doc)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
