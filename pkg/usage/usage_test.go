package usage

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTotals_Add(t *testing.T) {
	a := Totals{SuccessfulRequests: 1, TotalTokens: 10, PromptTokens: 6, CompletionTokens: 4, TotalCost: 0.5}
	b := Totals{SuccessfulRequests: 2, TotalTokens: 5, PromptTokens: 3, CompletionTokens: 2, TotalCost: 0.25}

	assert.Equal(t, Totals{SuccessfulRequests: 3, TotalTokens: 15, PromptTokens: 9, CompletionTokens: 6, TotalCost: 0.75}, a.Add(b))
	assert.Equal(t, a, a.Add(Totals{}))
	assert.True(t, Totals{}.IsZero())
}

func TestFromMap(t *testing.T) {
	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(`{
		"successful_requests": 1,
		"total_tokens": 120,
		"prompt_tokens": 100,
		"completion_tokens": 20,
		"total_cost": 0.002,
		"input_token_details": {"audio": 0},
		"unknown": "x"
	}`), &decoded))

	got := FromMap(decoded)
	assert.Equal(t, Totals{SuccessfulRequests: 1, TotalTokens: 120, PromptTokens: 100, CompletionTokens: 20, TotalCost: 0.002}, got)
	assert.Equal(t, Totals{}, FromMap(nil))
	assert.Equal(t, Totals{PromptTokens: 7}, FromMap(map[string]any{"prompt_tokens": "7", "total_tokens": []int{1}}))
}

func TestTotals_MapRoundTrip(t *testing.T) {
	tot := Totals{SuccessfulRequests: 2, TotalTokens: 9, PromptTokens: 5, CompletionTokens: 4, TotalCost: 1.5}
	assert.Equal(t, tot, FromMap(tot.Map()))
}

func TestAccumulator(t *testing.T) {
	acc := NewAccumulator()
	acc.RecordToolUsageMap(map[string]any{"successful_requests": 1.0, "total_tokens": 3.0, "bogus": 99.0})
	assert.Equal(t, Totals{SuccessfulRequests: 1, TotalTokens: 3}, acc.Snapshot())

	acc.RecordModelUsage(Call{Model: "gpt-4o", PromptTokens: 10, CompletionTokens: 5, Cost: 0.01})

	snap := acc.Snapshot()
	assert.Equal(t, int64(2), snap.SuccessfulRequests)
	assert.Equal(t, int64(18), snap.TotalTokens)
	assert.InDelta(t, 0.01, snap.TotalCost, 1e-12)

	acc.Reset()
	assert.True(t, acc.Snapshot().IsZero())
}

func TestAccumulator_Concurrent(t *testing.T) {
	acc := NewAccumulator()
	var wg sync.WaitGroup
	for range 50 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			acc.RecordModelUsage(Call{PromptTokens: 2, CompletionTokens: 1})
		}()
		go func() {
			defer wg.Done()
			acc.RecordToolUsage(Totals{TotalTokens: 1})
		}()
	}
	wg.Wait()

	snap := acc.Snapshot()
	assert.Equal(t, int64(50), snap.SuccessfulRequests)
	assert.Equal(t, int64(200), snap.TotalTokens)
}
