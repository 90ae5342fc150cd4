// Package canon turns a workflow graph snapshot into a deterministic
// canonical form: volatile layout fields stripped, all orderings fixed,
// keys sorted. The canonical JSON bytes feed the BLAKE3 fingerprint used
// as a cheap change-detection oracle.
package canon

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"

	"lukechampine.com/blake3"
)

// Volatile node fields carry layout and view state, not meaning. They are
// removed before hashing or diffing.
var volatileNodeFields = []string{"position", "size", "selected"}

// Normalize produces the canonical form of a graph snapshot. The input can
// be a graph.Graph, a pointer to one, or an already-decoded map; the output
// is always a freshly built map, so the caller's live graph is never
// mutated. Normalize is idempotent and insensitive to the input's array and
// key order.
func Normalize(v any) (map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding graph: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decoding graph: %w", err)
	}

	if nodes, ok := m["nodes"].([]any); ok {
		for _, n := range nodes {
			nm, ok := n.(map[string]any)
			if !ok {
				continue
			}
			for _, f := range volatileNodeFields {
				delete(nm, f)
			}
		}
		sort.SliceStable(nodes, func(i, j int) bool {
			return nodeSortKey(nodes[i]) < nodeSortKey(nodes[j])
		})
		m["nodes"] = nodes
	}

	if edges, ok := m["edges"].([]any); ok {
		for _, e := range edges {
			if em, ok := e.(map[string]any); ok {
				delete(em, "selected")
			}
		}
		sort.SliceStable(edges, func(i, j int) bool {
			return edgeSortKey(edges[i]) < edgeSortKey(edges[j])
		})
		m["edges"] = edges
	}

	return m, nil
}

// nodeSortKey orders nodes by (id, kind); kind breaks id ties.
func nodeSortKey(v any) string {
	m, ok := v.(map[string]any)
	if !ok {
		return ""
	}
	id, _ := m["id"].(string)
	kind, _ := m["kind"].(string)
	return id + "\x00" + kind
}

// EdgeKey builds the composite identity key for an edge. Two edges are the
// same edge iff their endpoints and kind match.
func EdgeKey(fromNode, fromPort, toNode, toPort, kind string) string {
	if kind == "" {
		kind = "control"
	}
	return fromNode + ":" + fromPort + "->" + toNode + ":" + toPort + ":" + kind
}

// EdgeKeyOf extracts the composite key from a normalized edge map.
func EdgeKeyOf(v any) string {
	m, ok := v.(map[string]any)
	if !ok {
		return ""
	}
	from, _ := m["from"].(map[string]any)
	to, _ := m["to"].(map[string]any)
	fn, _ := from["nodeId"].(string)
	fp, _ := from["portId"].(string)
	tn, _ := to["nodeId"].(string)
	tp, _ := to["portId"].(string)
	kind, _ := m["kind"].(string)
	return EdgeKey(fn, fp, tn, tp, kind)
}

func edgeSortKey(v any) string {
	return EdgeKeyOf(v)
}

// CanonicalJSON serializes a value with recursively sorted object keys and
// no insignificant whitespace. Arrays keep their element order.
func CanonicalJSON(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var obj any
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, err
	}
	return canonicalMarshal(obj)
}

func canonicalMarshal(v any) ([]byte, error) {
	switch val := v.(type) {
	case map[string]any:
		return marshalSortedMap(val)
	case []any:
		return marshalArray(val)
	default:
		return json.Marshal(v)
	}
}

func marshalSortedMap(m map[string]any) ([]byte, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		keyBytes, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(keyBytes)
		buf.WriteByte(':')
		valBytes, err := canonicalMarshal(m[k])
		if err != nil {
			return nil, err
		}
		buf.Write(valBytes)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func marshalArray(arr []any) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, v := range arr {
		if i > 0 {
			buf.WriteByte(',')
		}
		valBytes, err := canonicalMarshal(v)
		if err != nil {
			return nil, err
		}
		buf.Write(valBytes)
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

// Bytes returns the canonical serialization of a graph snapshot.
func Bytes(v any) ([]byte, error) {
	m, err := Normalize(v)
	if err != nil {
		return nil, err
	}
	return CanonicalJSON(m)
}

// Fingerprint returns the hex BLAKE3-256 digest of the canonical form.
// Graphs identical up to layout, selection, and ordering share a
// fingerprint; any semantic difference changes it. Change detection only,
// not a security primitive.
func Fingerprint(v any) (string, error) {
	data, err := Bytes(v)
	if err != nil {
		return "", err
	}
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
