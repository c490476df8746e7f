package providers

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// NormalizeDetails приводит непрозрачный payload провайдера к JSON-объекту.
// Объект проходит через structpb как есть, любое другое значение
// заворачивается в {"value": ...}. Пустой payload остается пустым.
func NormalizeDetails(raw json.RawMessage) (json.RawMessage, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("details are not valid json: %w", err)
	}

	m, ok := v.(map[string]interface{})
	if !ok {
		m = map[string]interface{}{"value": v}
	}

	st, err := structpb.NewStruct(m)
	if err != nil {
		return nil, fmt.Errorf("failed to create proto struct: %w", err)
	}
	out, err := protojson.Marshal(st)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal details: %w", err)
	}
	return out, nil
}
