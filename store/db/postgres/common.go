package postgres

import (
	"encoding/json"
	"fmt"
	"strings"
)

// placeholder returns a positional placeholder for PostgreSQL ($n).
func placeholder(n int) string {
	return fmt.Sprintf("$%d", n)
}

// placeholders returns $1..$n.
func placeholders(n int) string {
	return placeholdersFrom(1, n)
}

// placeholdersFrom returns n placeholders starting at $start.
func placeholdersFrom(start, n int) string {
	list := make([]string, 0, n)
	for i := 0; i < n; i++ {
		list = append(list, placeholder(start+i))
	}
	return strings.Join(list, ", ")
}

func marshalStrings(list []string) (string, error) {
	if list == nil {
		list = []string{}
	}
	bytes, err := json.Marshal(list)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

func unmarshalStrings(raw string) ([]string, error) {
	list := []string{}
	if raw == "" {
		return list, nil
	}
	if err := json.Unmarshal([]byte(raw), &list); err != nil {
		return nil, err
	}
	return list, nil
}
