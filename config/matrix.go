package config

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Axis is one matrix dimension: a key and its ordered values.
type Axis struct {
	Key    string
	Values []string
}

// MatrixBlock is an ordered set of axes expanded as a cartesian product.
type MatrixBlock []Axis

// Matrix is a list of blocks. A single mapping in the config file decodes
// to one block; a list of mappings decodes to several, combined positionally.
type Matrix []MatrixBlock

// UnmarshalYAML keeps axis keys in declared order.
func (m *Matrix) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.MappingNode:
		block, err := decodeBlock(value)
		if err != nil {
			return err
		}
		*m = Matrix{block}
		return nil
	case yaml.SequenceNode:
		out := make(Matrix, 0, len(value.Content))
		for i, item := range value.Content {
			if item.Kind != yaml.MappingNode {
				return fmt.Errorf("line %d: matrix block %d must be a mapping", item.Line, i)
			}
			block, err := decodeBlock(item)
			if err != nil {
				return err
			}
			out = append(out, block)
		}
		*m = out
		return nil
	default:
		return fmt.Errorf("line %d: matrix must be a mapping or a list of mappings", value.Line)
	}
}

// MarshalYAML writes a single block as a mapping and several as a list.
func (m Matrix) MarshalYAML() (interface{}, error) {
	blocks := make([]*yaml.Node, 0, len(m))
	for _, block := range m {
		node := &yaml.Node{Kind: yaml.MappingNode}
		for _, axis := range block {
			values := &yaml.Node{Kind: yaml.SequenceNode}
			for _, v := range axis.Values {
				values.Content = append(values.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: v})
			}
			node.Content = append(node.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: axis.Key}, values)
		}
		blocks = append(blocks, node)
	}
	if len(blocks) == 1 {
		return blocks[0], nil
	}
	return &yaml.Node{Kind: yaml.SequenceNode, Content: blocks}, nil
}

func decodeBlock(node *yaml.Node) (MatrixBlock, error) {
	block := make(MatrixBlock, 0, len(node.Content)/2)
	seen := make(map[string]struct{}, len(node.Content)/2)

	for i := 0; i+1 < len(node.Content); i += 2 {
		keyNode, valNode := node.Content[i], node.Content[i+1]
		key := keyNode.Value
		if _, dup := seen[key]; dup {
			return nil, fmt.Errorf("line %d: duplicate matrix axis %q", keyNode.Line, key)
		}
		seen[key] = struct{}{}

		var values []string
		switch valNode.Kind {
		case yaml.ScalarNode:
			values = []string{valNode.Value}
		case yaml.SequenceNode:
			values = make([]string, 0, len(valNode.Content))
			for _, v := range valNode.Content {
				if v.Kind != yaml.ScalarNode {
					return nil, fmt.Errorf("line %d: matrix axis %q values must be scalars", v.Line, key)
				}
				values = append(values, v.Value)
			}
		default:
			return nil, fmt.Errorf("line %d: matrix axis %q must be a list of values", valNode.Line, key)
		}
		block = append(block, Axis{Key: key, Values: values})
	}
	return block, nil
}
