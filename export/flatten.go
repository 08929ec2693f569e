// Package export turns fetched records into tables, CSV files and console output.
package export

// DefaultSeparator joins nested keys, so {"BillAddr": {"City": ...}} becomes BillAddr_City.
const DefaultSeparator = "_"

// Flatten collapses nested objects into a single level by joining keys with sep.
// Arrays and scalars are kept as they are. Flattening a flat record returns an
// equal record.
func Flatten(record map[string]any, sep string) map[string]any {
	out := make(map[string]any, len(record))
	flattenInto(out, "", record, sep)
	return out
}

func flattenInto(out map[string]any, prefix string, m map[string]any, sep string) {
	for k, v := range m {
		key := k
		if prefix != "" {
			key = prefix + sep + k
		}
		if nested, ok := v.(map[string]any); ok {
			flattenInto(out, key, nested, sep)
			continue
		}
		out[key] = v
	}
}
