// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package cas

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/grailbio/base/errors"
)

// Values is the parameter tree passed to an action invocation. Keys
// name action parameters; values may be scalars, nested Values,
// []Values, []string, Tables, or durations. The zero value is an
// empty parameter set.
//
// Values are normalized before they are put on the wire: nil entries
// and empty nested trees are dropped, Tables are rendered to their
// wire form, and durations are converted to seconds. Normalization
// never mutates the receiver.
type Values map[string]interface{}

// Merged returns a copy of v with the entries of w merged in,
// overriding entries of v with the same key.
func (v Values) Merged(w Values) Values {
	u := make(Values, len(v)+len(w))
	for k, val := range v {
		u[k] = val
	}
	for k, val := range w {
		u[k] = val
	}
	return u
}

// Keys returns the keys of v in sorted order.
func (v Values) Keys() []string {
	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// normalize returns the wire form of v. Empty and nil entries are
// dropped so that engine-side defaulting applies.
func (v Values) normalize() (map[string]interface{}, error) {
	if len(v) == 0 {
		return map[string]interface{}{}, nil
	}
	m := make(map[string]interface{}, len(v))
	for key, val := range v {
		if key == "" {
			return nil, errors.E(errors.Invalid, "empty parameter name")
		}
		norm, ok, err := normalizeValue(val)
		if err != nil {
			return nil, errors.E(errors.Invalid, "parameter "+key, err)
		}
		if !ok {
			continue
		}
		m[key] = norm
	}
	return m, nil
}

// normalizeValue returns the wire form of a single parameter value.
// The second return is false if the value should be dropped.
func normalizeValue(val interface{}) (interface{}, bool, error) {
	switch v := val.(type) {
	case nil:
		return nil, false, nil
	case Values:
		m, err := v.normalize()
		if err != nil {
			return nil, false, err
		}
		if len(m) == 0 {
			return nil, false, nil
		}
		return m, true, nil
	case []Values:
		if len(v) == 0 {
			return nil, false, nil
		}
		ms := make([]interface{}, 0, len(v))
		for _, elem := range v {
			m, err := elem.normalize()
			if err != nil {
				return nil, false, err
			}
			ms = append(ms, m)
		}
		return ms, true, nil
	case Table:
		if v.IsZero() {
			return nil, false, nil
		}
		return v.wire(), true, nil
	case *Table:
		if v == nil || v.IsZero() {
			return nil, false, nil
		}
		return v.wire(), true, nil
	case time.Duration:
		return v.Seconds(), true, nil
	case []string:
		if len(v) == 0 {
			return nil, false, nil
		}
		return v, true, nil
	case string, bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64, json.Number, []byte:
		return v, true, nil
	case []interface{}:
		elems := make([]interface{}, 0, len(v))
		for _, elem := range v {
			norm, ok, err := normalizeValue(elem)
			if err != nil {
				return nil, false, err
			}
			if !ok {
				continue
			}
			elems = append(elems, norm)
		}
		return elems, true, nil
	default:
		return nil, false, errors.E(errors.Invalid, errors.New("unsupported parameter type"))
	}
}
