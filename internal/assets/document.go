// Package assets loads behavior tree documents from YAML or JSON and keeps a
// library of compiled trees.
package assets

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/zeusync/npcbrain/internal/core/bt"
)

var (
	ErrNoRoot      = errors.New("assets: document has no root node")
	ErrInvalidNode = errors.New("assets: invalid node")
	ErrDuplicate   = errors.New("assets: duplicate tree name")
	ErrNotFound    = errors.New("assets: tree not found")
)

// Document is one tree asset.
//
//	name: guard
//	variables: {hp: 100}
//	root:
//	  type: Selector
//	  children:
//	    - type: Condition
//	      params:
//	        condition: {type: VarCmpConst, left: hp, op: "<", right: 10}
//	      child: {type: Perform, params: {action: flee}}
//	    - Succeeder
type Document struct {
	Name        string
	Description string
	// Variables seed the working memory of agents running this tree.
	Variables map[string]any
	Root      *bt.NodeDescriptor
}

type rawDocument struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	Variables   map[string]any `yaml:"variables"`
	Root        yaml.Node      `yaml:"root"`
}

// Parse decodes a document. JSON input is accepted as YAML.
func Parse(data []byte) (*Document, error) {
	var raw rawDocument
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("assets: %w", err)
	}
	if raw.Root.Kind == 0 {
		return nil, ErrNoRoot
	}
	root, err := decodeNode(&raw.Root)
	if err != nil {
		return nil, err
	}
	return &Document{
		Name:        raw.Name,
		Description: raw.Description,
		Variables:   raw.Variables,
		Root:        root,
	}, nil
}

// Read parses a document from r.
func Read(r io.Reader) (*Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

func invalid(n *yaml.Node, format string, args ...any) error {
	return fmt.Errorf("%w at line %d: %s", ErrInvalidNode, n.Line, fmt.Sprintf(format, args...))
}

// decodeNode walks the YAML tree directly so that params keep their source
// order.
func decodeNode(n *yaml.Node) (*bt.NodeDescriptor, error) {
	if n.Kind == yaml.AliasNode {
		n = n.Alias
	}
	switch n.Kind {
	case yaml.ScalarNode:
		if n.Tag == "!!null" || strings.TrimSpace(n.Value) == "" {
			return nil, invalid(n, "empty node")
		}
		return &bt.NodeDescriptor{Type: n.Value}, nil
	case yaml.MappingNode:
	default:
		return nil, invalid(n, "expected a mapping or a type name")
	}

	desc := &bt.NodeDescriptor{}
	hasChild := false
	for i := 0; i+1 < len(n.Content); i += 2 {
		key, val := n.Content[i], n.Content[i+1]
		switch key.Value {
		case "type":
			desc.Type = val.Value
		case "params":
			params, err := decodeParams(val)
			if err != nil {
				return nil, err
			}
			desc.Params = params
		case "child":
			child, err := decodeNode(val)
			if err != nil {
				return nil, err
			}
			desc.Children = append(desc.Children, child)
			hasChild = true
		case "children":
			if val.Kind != yaml.SequenceNode {
				return nil, invalid(val, "children must be a list")
			}
			for _, item := range val.Content {
				child, err := decodeNode(item)
				if err != nil {
					return nil, err
				}
				desc.Children = append(desc.Children, child)
			}
		case "name", "description":
		default:
			return nil, invalid(key, "unknown field %q", key.Value)
		}
	}
	if desc.Type == "" {
		return nil, invalid(n, "missing type")
	}
	if hasChild && len(desc.Children) > 1 {
		return nil, invalid(n, "child and children are exclusive")
	}
	return desc, nil
}

func decodeParams(n *yaml.Node) (bt.Params, error) {
	if n.Kind == yaml.AliasNode {
		n = n.Alias
	}
	if n.Tag == "!!null" {
		return nil, nil
	}
	if n.Kind != yaml.MappingNode {
		return nil, invalid(n, "params must be a mapping")
	}
	params := make(bt.Params, 0, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		var v any
		if err := n.Content[i+1].Decode(&v); err != nil {
			return nil, invalid(n.Content[i+1], "param %s: %v", n.Content[i].Value, err)
		}
		params = append(params, bt.Param{Key: n.Content[i].Value, Value: v})
	}
	return params, nil
}
