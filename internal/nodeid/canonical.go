package nodeid

import (
	"fmt"
	"reflect"

	"github.com/cespare/xxhash/v2"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/gocty"
	ctyjson "github.com/zclconf/go-cty/cty/json"
)

// KeyFunc converts a family argument into its canonical key. Two arguments
// with the same key resolve to the same node instance.
type KeyFunc func(arg any) (string, error)

// Canonical is the default KeyFunc: deep structural comparison, independent
// of object identity. The argument is converted to a cty value, serialized
// together with its implied type, and hashed with xxhash.
//
// The argument must satisfy the cty conversion contract: primitives, maps,
// slices, and structs with `cty` field tags. Arguments that cannot be
// converted (functions, channels, untagged structs) return an error; families
// taking such arguments must supply their own KeyFunc.
func Canonical(arg any) (string, error) {
	if arg == nil {
		return "null", nil
	}

	ty, err := gocty.ImpliedType(arg)
	if err != nil {
		return "", fmt.Errorf("argument has no structural representation: %w", err)
	}

	// A struct with fields but no `cty` tags implies an empty object type,
	// which would collapse all values of that struct type into one key.
	if err := rejectUntagged(reflect.ValueOf(arg), ty); err != nil {
		return "", err
	}

	val, err := gocty.ToCtyValue(arg, ty)
	if err != nil {
		return "", fmt.Errorf("argument is not structurally convertible: %w", err)
	}

	typeJSON, err := ctyjson.MarshalType(ty)
	if err != nil {
		return "", fmt.Errorf("serializing argument type: %w", err)
	}
	valJSON, err := ctyjson.Marshal(val, ty)
	if err != nil {
		return "", fmt.Errorf("serializing argument value: %w", err)
	}

	h := xxhash.New()
	_, _ = h.Write(typeJSON)
	_, _ = h.Write(valJSON)
	return fmt.Sprintf("%x", h.Sum64()), nil
}

// rejectUntagged refuses struct arguments whose implied type carries no
// attributes even though the struct has fields.
func rejectUntagged(v reflect.Value, ty cty.Type) error {
	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return nil
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return nil
	}
	if v.NumField() > 0 && ty.IsObjectType() && len(ty.AttributeTypes()) == 0 {
		return fmt.Errorf("struct argument %s has no cty-tagged fields and cannot be compared structurally", v.Type())
	}
	return nil
}
