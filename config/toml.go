package config

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// tomlToNode decodes TOML into a YAML node tree so every format shares one
// decoder. Table keys keep their document order, which matrix axes rely on.
func tomlToNode(data []byte) (*yaml.Node, error) {
	var raw map[string]interface{}
	md, err := toml.Decode(string(data), &raw)
	if err != nil {
		return nil, err
	}

	return toNode(raw, "", keyOrder(md))
}

// keyOrder maps each key path to its position in the document. Paths carry
// the instance index of every array of tables they pass through, so two
// [[releases.builds]] entries order their keys independently.
func keyOrder(md toml.MetaData) map[string]int {
	instances := make(map[string]int)
	order := make(map[string]int)
	for i, key := range md.Keys() {
		if md.Type(key...) == "ArrayHash" {
			p := indexedPath(key[:len(key)-1], instances) + "." + quoteKey(key[len(key)-1])
			p = strings.TrimPrefix(p, ".")
			instances[p]++
			for other := range instances {
				if strings.HasPrefix(other, p+"[") || strings.HasPrefix(other, p+".") {
					delete(instances, other)
				}
			}
		}
		path := indexedPath(key, instances)
		if _, ok := order[path]; !ok {
			order[path] = i
		}
	}
	return order
}

// indexedPath renders key, inserting [n] after every array of tables seen so far.
func indexedPath(key toml.Key, instances map[string]int) string {
	var b strings.Builder
	for _, part := range key {
		if b.Len() > 0 {
			b.WriteByte('.')
		}
		b.WriteString(quoteKey(part))
		if n, ok := instances[b.String()]; ok {
			fmt.Fprintf(&b, "[%d]", n-1)
		}
	}
	return b.String()
}

func toNode(v interface{}, path string, order map[string]int) (*yaml.Node, error) {
	switch val := v.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.SliceStable(keys, func(i, j int) bool {
			oi, okI := order[joinKey(path, keys[i])]
			oj, okJ := order[joinKey(path, keys[j])]
			switch {
			case okI && okJ:
				return oi < oj
			case okI != okJ:
				return okI
			default:
				return keys[i] < keys[j]
			}
		})

		node := &yaml.Node{Kind: yaml.MappingNode}
		for _, k := range keys {
			child, err := toNode(val[k], joinKey(path, k), order)
			if err != nil {
				return nil, err
			}
			node.Content = append(node.Content, scalar(k, "!!str"), child)
		}
		return node, nil

	case []map[string]interface{}:
		node := &yaml.Node{Kind: yaml.SequenceNode}
		for i, item := range val {
			child, err := toNode(item, fmt.Sprintf("%s[%d]", path, i), order)
			if err != nil {
				return nil, err
			}
			node.Content = append(node.Content, child)
		}
		return node, nil

	case []interface{}:
		node := &yaml.Node{Kind: yaml.SequenceNode}
		for _, item := range val {
			child, err := toNode(item, path, order)
			if err != nil {
				return nil, err
			}
			node.Content = append(node.Content, child)
		}
		return node, nil

	case string:
		return scalar(val, "!!str"), nil
	case bool:
		return scalar(strconv.FormatBool(val), "!!bool"), nil
	case int64:
		return scalar(strconv.FormatInt(val, 10), "!!int"), nil
	case float64:
		return scalar(strconv.FormatFloat(val, 'g', -1, 64), "!!float"), nil
	case time.Time:
		return scalar(val.Format(time.RFC3339Nano), "!!timestamp"), nil
	default:
		return nil, fmt.Errorf("unsupported TOML value %T at %q", v, path)
	}
}

func joinKey(parent, key string) string {
	if parent == "" {
		return quoteKey(key)
	}
	return parent + "." + quoteKey(key)
}

// quoteKey mirrors toml.Key.String: anything but a bare key is quoted.
func quoteKey(k string) string {
	bare := k != ""
	for _, r := range k {
		if !isBareKeyChar(r) {
			bare = false
			break
		}
	}
	if bare {
		return k
	}
	return strconv.Quote(k)
}

func isBareKeyChar(r rune) bool {
	return (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' || r == '-'
}

func scalar(value, tag string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: tag, Value: value}
}
