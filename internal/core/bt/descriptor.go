package bt

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// NodeDescriptor is the authored form of one node and its subtree.
type NodeDescriptor struct {
	Type     string
	Params   Params
	Children []*NodeDescriptor
}

// Param is one key/value pair of node configuration.
type Param struct {
	Key   string
	Value any
}

// Params is order-preserving node configuration. Only the node kind that
// receives it in Init interprets it.
type Params []Param

// Get returns the last value stored under key.
func (p Params) Get(key string) (any, bool) {
	for i := len(p) - 1; i >= 0; i-- {
		if p[i].Key == key {
			return p[i].Value, true
		}
	}
	return nil, false
}

// Map flattens params into a map. Later duplicates win.
func (p Params) Map() map[string]any {
	m := make(map[string]any, len(p))
	for _, kv := range p {
		m[kv.Key] = kv.Value
	}
	return m
}

// Decode fills out from params. Fields are matched by their `param` tag,
// inputs are weakly typed and duration strings such as "1.5s" are accepted.
func (p Params) Decode(out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		WeaklyTypedInput: true,
		TagName:          "param",
		Result:           out,
	})
	if err != nil {
		return fmt.Errorf("bt: params decoder: %w", err)
	}
	if err = dec.Decode(p.Map()); err != nil {
		return fmt.Errorf("bt: decode params: %w", err)
	}
	return nil
}
