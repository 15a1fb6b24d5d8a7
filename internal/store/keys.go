package store

import "strings"

// Key layout:
//
//	doc:{collection}:{id}                          -> record JSON
//	idx:{collection}:{field}:{value}\x00{id}       -> empty (equality index)
//	arr:{collection}:{field}:{element}\x00{id}     -> empty (array-contains index)
//	uniq:{collection}:{f1,f2}:{v1}\x1f{v2}         -> id (uniqueness claim)
//
// Values use the encodeScalar encoding, which never contains \x00.
const (
	docPrefix   = "doc:"
	eqPrefix    = "idx:"
	arrPrefix   = "arr:"
	claimPrefix = "uniq:"
	idSep       = "\x00"
	valueSep    = "\x1f"
)

func docKey(collection, id string) []byte {
	return []byte(docPrefix + collection + ":" + id)
}

func docScanPrefix(collection string) []byte {
	return []byte(docPrefix + collection + ":")
}

func eqScanPrefix(collection, field, value string) []byte {
	return []byte(eqPrefix + collection + ":" + field + ":" + value + idSep)
}

func arrScanPrefix(collection, field, value string) []byte {
	return []byte(arrPrefix + collection + ":" + field + ":" + value + idSep)
}

func claimKey(collection string, fields, values []string) string {
	return claimPrefix + collection + ":" + strings.Join(fields, ",") + ":" + strings.Join(values, valueSep)
}

// idFromIndexKey extracts the document id that terminates an index key.
func idFromIndexKey(key []byte) string {
	s := string(key)
	if i := strings.LastIndex(s, idSep); i >= 0 {
		return s[i+1:]
	}
	return ""
}

// indexKeys returns every index key a document owns.
func indexKeys(collection, id string, fields map[string]any) [][]byte {
	keys := make([][]byte, 0, len(fields))
	for name, v := range fields {
		if enc, ok := encodeScalar(v); ok {
			keys = append(keys, append(eqScanPrefix(collection, name, enc), id...))
			continue
		}
		elems, ok := v.([]any)
		if !ok {
			continue
		}
		seen := make(map[string]struct{}, len(elems))
		for _, e := range elems {
			enc, ok := encodeScalar(e)
			if !ok {
				continue
			}
			if _, dup := seen[enc]; dup {
				continue
			}
			seen[enc] = struct{}{}
			keys = append(keys, append(arrScanPrefix(collection, name, enc), id...))
		}
	}
	return keys
}
