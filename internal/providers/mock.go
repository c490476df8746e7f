package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"strings"
	"time"
)

// MockCaller — детерминированный провайдер без сети для локального запуска.
// Отвечает на операции onfido, refinitiv и скоринга риска.
// Имена, содержащие "sanction" или "blocked", дают совпадение AML;
// "declined" — отказ KYC.
type MockCaller struct {
	Latency time.Duration
}

func (c *MockCaller) Call(ctx context.Context, operation string, payload []byte) ([]byte, error) {
	if c.Latency > 0 {
		select {
		case <-time.After(c.Latency):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	var req map[string]interface{}
	_ = json.Unmarshal(payload, &req)

	switch operation {
	case onfidoOpCreateApplicant:
		name := fmt.Sprint(req["first_name"], " ", req["last_name"])
		return json.Marshal(map[string]string{"id": "app-" + mockID(name)})

	case onfidoOpStartWorkflow:
		// id прогона несет id заявителя, чтобы статус был воспроизводимым
		id := fmt.Sprint(req["applicant_id"])
		return json.Marshal(map[string]interface{}{
			"id":     "run-" + strings.TrimPrefix(id, "app-"),
			"status": "awaiting_input",
			"link":   map[string]string{"url": "https://verify.example.test/" + id},
		})

	case onfidoOpWorkflowStatus:
		id := fmt.Sprint(req["id"])
		status := "approved"
		if strings.Contains(id, "declined") {
			status = "declined"
		}
		return json.Marshal(map[string]interface{}{"id": id, "status": status, "output": map[string]string{"source": "mock"}})

	case refinitivOpScreen:
		return mockScreening(fmt.Sprint(req["name"]))

	case refinitivOpBatch:
		cases, _ := req["cases"].([]interface{})
		names := make([]string, 0, len(cases))
		for _, c := range cases {
			if m, ok := c.(map[string]interface{}); ok {
				names = append(names, fmt.Sprint(m["name"]))
			}
		}
		// Пакет "обрабатывается" сразу: имена зашиты в id
		return json.Marshal(map[string]string{"batchId": "batch:" + strings.Join(names, "|")})

	case refinitivOpBatchResults:
		id := strings.TrimPrefix(fmt.Sprint(req["batchId"]), "batch:")
		results := make([]json.RawMessage, 0)
		if id != "" {
			for _, name := range strings.Split(id, "|") {
				raw, _ := mockScreening(name)
				results = append(results, raw)
			}
		}
		return json.Marshal(map[string]interface{}{"status": "COMPLETED", "results": results})

	case riskOpScore:
		entity := fmt.Sprint(req["entity_id"])
		score := float64(mockHash(entity) % 100)
		return json.Marshal(map[string]interface{}{
			"score": score,
			"factors": []map[string]interface{}{
				{"name": "jurisdiction", "weight": 0.5, "score": score},
				{"name": "entity_profile", "weight": 0.5, "score": score},
			},
		})

	default:
		return nil, fmt.Errorf("operation %s not supported by mock provider", operation)
	}
}

func mockScreening(name string) ([]byte, error) {
	lower := strings.ToLower(name)
	hits := []map[string]string{}
	switch {
	case strings.Contains(lower, "sanction"), strings.Contains(lower, "blocked"):
		hits = append(hits, map[string]string{"matchStrength": "EXACT", "category": "SANCTIONS"})
	case strings.Contains(lower, "pep"):
		hits = append(hits, map[string]string{"matchStrength": "WEAK", "category": "PEP"})
	}
	return json.Marshal(map[string]interface{}{"name": name, "results": hits})
}

func mockHash(s string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return h.Sum32()
}

// mockID — читаемый slug имени, чтобы сценарий (declined и т.п.) доезжал до статуса
func mockID(s string) string {
	return strings.Join(strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return (r < 'a' || r > 'z') && (r < '0' || r > '9')
	}), "-")
}
