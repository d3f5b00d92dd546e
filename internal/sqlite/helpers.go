package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/unhackeddev/nfury/internal/domain"
)

// marshalJSONColumn serializes v into a nullable TEXT column. A nil pointer
// or empty map stores NULL rather than "null".
func marshalJSONColumn(v interface{}) (sql.NullString, error) {
	switch t := v.(type) {
	case *domain.AuthSpec:
		if t == nil {
			return sql.NullString{}, nil
		}
	case map[string]string:
		if len(t) == 0 {
			return sql.NullString{}, nil
		}
	case map[int]domain.StatusAggregate:
		if len(t) == 0 {
			return sql.NullString{}, nil
		}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("marshal json column: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func unmarshalAuth(col sql.NullString) (*domain.AuthSpec, error) {
	if !col.Valid {
		return nil, nil
	}
	var spec domain.AuthSpec
	if err := json.Unmarshal([]byte(col.String), &spec); err != nil {
		return nil, fmt.Errorf("unmarshal auth spec: %w", err)
	}
	return &spec, nil
}

func unmarshalHeaders(col sql.NullString) (map[string]string, error) {
	if !col.Valid {
		return nil, nil
	}
	var headers map[string]string
	if err := json.Unmarshal([]byte(col.String), &headers); err != nil {
		return nil, fmt.Errorf("unmarshal headers: %w", err)
	}
	return headers, nil
}

func unmarshalStatusCodes(col sql.NullString) (map[int]domain.StatusAggregate, error) {
	if !col.Valid {
		return nil, nil
	}
	var codes map[int]domain.StatusAggregate
	if err := json.Unmarshal([]byte(col.String), &codes); err != nil {
		return nil, fmt.Errorf("unmarshal status codes: %w", err)
	}
	return codes, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(col sql.NullString) *string {
	if !col.Valid {
		return nil
	}
	s := col.String
	return &s
}

func nullInt(n *int) sql.NullInt64 {
	if n == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*n), Valid: true}
}

func intPtr(col sql.NullInt64) *int {
	if !col.Valid {
		return nil
	}
	n := int(col.Int64)
	return &n
}

func nullInt64(n *int64) sql.NullInt64 {
	if n == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *n, Valid: true}
}

func int64Ptr(col sql.NullInt64) *int64 {
	if !col.Valid {
		return nil
	}
	n := col.Int64
	return &n
}
