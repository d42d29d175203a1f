// Package canon produces canonical, hash-stable encodings for the values
// that participate in step identity.
//
// Step identities are content-derived: two steps hash equal exactly when
// their task name and argument encodings are equal. Everything here must
// therefore be deterministic across processes and architectures, which is
// why maps are sorted and every field is length-prefixed before hashing.
package canon

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/zclconf/go-cty/cty"
	ctyjson "github.com/zclconf/go-cty/cty/json"
)

// ValueString encodes a cty value as `<type>|<canonical JSON>`. cty iterates
// object and map elements in lexical key order, so the JSON body is already
// deterministic.
func ValueString(v cty.Value) (string, error) {
	if v == cty.NilVal {
		return "", fmt.Errorf("cannot canonically encode a nil value")
	}
	body, err := ctyjson.Marshal(v, v.Type())
	if err != nil {
		return "", fmt.Errorf("canonical encoding failed for %s: %w", v.Type().FriendlyName(), err)
	}
	return v.Type().FriendlyName() + "|" + string(body), nil
}

// Hash hashes an ordered list of fields into a short hex digest.
//
// Every field is length-prefixed so that ("ab","c") and ("a","bc") cannot
// collide. Callers are responsible for ordering: pass fields in a canonical
// (e.g. sorted) order.
func Hash(fields ...string) string {
	h := sha256.New()
	var lenBuf [8]byte
	for _, f := range fields {
		binary.BigEndian.PutUint64(lenBuf[:], uint64(len(f)))
		h.Write(lenBuf[:])
		h.Write([]byte(f))
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// HashPairs hashes a name plus key/value pairs, sorting pairs by key first.
func HashPairs(name string, pairs map[string]string) string {
	keys := make([]string, 0, len(pairs))
	for k := range pairs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fields := make([]string, 0, 2*len(keys)+1)
	fields = append(fields, name)
	for _, k := range keys {
		fields = append(fields, k, pairs[k])
	}
	return Hash(fields...)
}
