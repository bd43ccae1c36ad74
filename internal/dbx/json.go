package dbx

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// JSONArg encodes an optional JSON object for a JSONB parameter. Empty and
// nil maps are stored as SQL NULL.
func JSONArg(m map[string]any) (sql.NullString, error) {
	if len(m) == 0 {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("encode json: %w", err)
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

// ScanJSON decodes a JSONB column scanned into raw bytes. NULL yields nil.
func ScanJSON(raw []byte) (map[string]any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	m := map[string]any{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}
	return m, nil
}

// StringArg maps an optional string to a nullable parameter.
func StringArg(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// TimeArg maps an optional time to a nullable parameter.
func TimeArg(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// EmptyAsNull stores "" as SQL NULL.
func EmptyAsNull(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// StringPtr is the reverse of StringArg.
func StringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

// TimePtr is the reverse of TimeArg.
func TimePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}
