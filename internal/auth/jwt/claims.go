package jwt

import (
	"encoding/json"
	"fmt"
	"time"
)

// ClaimSet is the decoded, signature-verified payload of a token. It is
// immutable after construction: all accessors are pure reads. A ClaimSet
// is only ever produced from a payload whose signature verified.
type ClaimSet struct {
	values map[string]interface{}
}

// NewClaimSet creates a ClaimSet from an already decoded payload mapping.
// The mapping is copied; callers must only pass payloads from a trusted
// decode path.
func NewClaimSet(values map[string]interface{}) *ClaimSet {
	copied := make(map[string]interface{}, len(values))
	for k, v := range values {
		copied[k] = v
	}
	return &ClaimSet{values: copied}
}

// Has reports whether the named claim is present.
func (c *ClaimSet) Has(name string) bool {
	_, ok := c.values[name]
	return ok
}

// Value returns the raw claim value by name.
func (c *ClaimSet) Value(name string) (interface{}, bool) {
	v, ok := c.values[name]
	return v, ok
}

// Len returns the number of claims in the set.
func (c *ClaimSet) Len() int {
	return len(c.values)
}

// ExpiresAt returns the expiration timestamp from the "exp" claim. The
// second return value reports presence; a present claim that is not a
// JSON number yields a *ClaimTypeError.
func (c *ClaimSet) ExpiresAt() (time.Time, bool, error) {
	v, ok := c.values["exp"]
	if !ok {
		return time.Time{}, false, nil
	}
	seconds, ok := numericValue(v)
	if !ok {
		return time.Time{}, true, newClaimTypeError("exp", "number", jsonTypeName(v))
	}
	return time.Unix(seconds, 0), true, nil
}

// Expired reports whether the claim set's expiration is in the past
// relative to now, with the given clock skew tolerance. A token whose
// expiration equals now is still valid; only a strictly past expiration
// counts as expired. A missing or mistyped "exp" claim reports false
// here; callers that require an expiration use ExpiresAt directly.
func (c *ClaimSet) Expired(now time.Time, skew time.Duration) bool {
	exp, ok, err := c.ExpiresAt()
	if !ok || err != nil {
		return false
	}
	return now.After(exp.Add(skew))
}

// StringClaim returns the named claim as a string. The second return
// value reports presence; a present claim of any other type yields a
// *ClaimTypeError.
func (c *ClaimSet) StringClaim(name string) (string, bool, error) {
	v, ok := c.values[name]
	if !ok {
		return "", false, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", true, newClaimTypeError(name, "string", jsonTypeName(v))
	}
	return s, true, nil
}

// Int64Claim returns the named claim as an int64. A present claim that is
// not an integral JSON number yields a *ClaimTypeError.
func (c *ClaimSet) Int64Claim(name string) (int64, bool, error) {
	v, ok := c.values[name]
	if !ok {
		return 0, false, nil
	}
	switch n := v.(type) {
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, true, newClaimTypeError(name, "integer", "number")
		}
		return i, true, nil
	case float64:
		i := int64(n)
		if float64(i) != n {
			return 0, true, newClaimTypeError(name, "integer", "number")
		}
		return i, true, nil
	case int64:
		return n, true, nil
	case int:
		return int64(n), true, nil
	default:
		return 0, true, newClaimTypeError(name, "integer", jsonTypeName(v))
	}
}

// BoolClaim returns the named claim as a bool. A present claim of any
// other type yields a *ClaimTypeError.
func (c *ClaimSet) BoolClaim(name string) (bool, bool, error) {
	v, ok := c.values[name]
	if !ok {
		return false, false, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, true, newClaimTypeError(name, "boolean", jsonTypeName(v))
	}
	return b, true, nil
}

// StringListClaim returns the named claim as an ordered string slice,
// preserving element order and count. A nil slice with a nil error means
// the claim is absent. A present claim that is not an array yields a
// *ClaimTypeError; an array with a non-string element yields a
// *ClaimTypeError naming the offending element.
func (c *ClaimSet) StringListClaim(name string) ([]string, error) {
	v, ok := c.values[name]
	if !ok {
		return nil, nil
	}

	var raw []interface{}
	switch list := v.(type) {
	case []interface{}:
		raw = list
	case []string:
		result := make([]string, len(list))
		copy(result, list)
		return result, nil
	default:
		return nil, newClaimTypeError(name, "array", jsonTypeName(v))
	}

	result := make([]string, 0, len(raw))
	for i, item := range raw {
		s, ok := item.(string)
		if !ok {
			return nil, newElementTypeError(name, "string", jsonTypeName(item), i)
		}
		result = append(result, s)
	}
	return result, nil
}

// ToMap returns a copy of the claim mapping.
func (c *ClaimSet) ToMap() map[string]interface{} {
	result := make(map[string]interface{}, len(c.values))
	for k, v := range c.values {
		result[k] = v
	}
	return result
}

// numericValue extracts an integer seconds value from a decoded JSON
// number.
func numericValue(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, true
		}
		if f, err := n.Float64(); err == nil {
			return int64(f), true
		}
		return 0, false
	case float64:
		return int64(n), true
	case int64:
		return n, true
	case int:
		return int64(n), true
	default:
		return 0, false
	}
}

// jsonTypeName returns the JSON type name for a decoded value. Error
// messages name types only, never claim values.
func jsonTypeName(v interface{}) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case json.Number, float64, int64, int:
		return "number"
	case []interface{}, []string:
		return "array"
	case map[string]interface{}:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}
