package recon

import (
	"context"
	"testing"

	"github.com/randalmurphal/invoicegraph/pkg/conversation"
	"github.com/randalmurphal/invoicegraph/pkg/recon/recontest"
)

func reconcileScript() *recontest.Script {
	return recontest.NewScript().
		On(recontest.Clerk, recontest.Text("NO ATTACHMENTS")).
		On(recontest.Supervisor,
			recontest.Text("QUERY invoice ID: INV-100"),
			recontest.Text("UPDATE invoice ID: INV-100"),
		).
		On(recontest.Query,
			recontest.ToolCall(QueryToolName, `{"invoice_id":"INV-100"}`),
			recontest.Text("DONE"),
		).
		On(recontest.Update,
			recontest.ToolCall(UpdateToolName, `{"invoice_id":"INV-100","email_details":"x"}`),
			recontest.Text("DONE"),
		)
}

// BenchmarkNewAssistant measures building and compiling the workflow.
func BenchmarkNewAssistant(b *testing.B) {
	cfg := testConfig(nil, nil, b.TempDir())
	b.ReportAllocs()
	for b.Loop() {
		if _, err := NewAssistant(cfg); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkRun_Reconcile runs the full query and update path with
// scripted model replies, measuring framework overhead per conversation.
func BenchmarkRun_Reconcile(b *testing.B) {
	dir := b.TempDir()
	ctx := context.Background()
	b.ReportAllocs()
	b.ResetTimer()
	for range b.N {
		b.StopTimer()
		a, err := NewAssistant(testConfig(reconcileScript(), testLedger(), dir))
		if err != nil {
			b.Fatal(err)
		}
		b.StartTimer()
		if _, err := a.Run(ctx, nil, request); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkRoute measures one routing decision.
func BenchmarkRoute(b *testing.B) {
	rules := reconciliationRules()
	msg := conversation.NewAgentMessage("x", "After review, UPDATE invoice ID: INV-100 for Globex")
	b.ReportAllocs()
	for b.Loop() {
		_ = rules.Route(msg)
	}
}
