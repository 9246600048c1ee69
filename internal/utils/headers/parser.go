// Package headers parses "Key: Value" request header arguments.
package headers

import (
	"fmt"
	"net/http"
	"strings"
)

// Parse converts header strings ("Key: Value") into canonical header names
// and values. Later entries replace earlier ones with the same name.
func Parse(h []string) (map[string]string, error) {
	m := make(map[string]string, len(h))
	for _, hdr := range h {
		parts := strings.SplitN(hdr, ":", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("header %q must look like \"Key: Value\"", hdr)
		}
		key := strings.TrimSpace(parts[0])
		if key == "" || strings.ContainsAny(key, " \t") {
			return nil, fmt.Errorf("header %q has an invalid name", hdr)
		}
		m[http.CanonicalHeaderKey(key)] = strings.TrimSpace(parts[1])
	}
	return m, nil
}
