package detect

import (
	"fmt"
	"testing"
	"time"

	"github.com/agentic-finance/kestrel/internal/domain"
)

// fakeHistory is an in-memory History for detector tests. Transactions
// are assumed to be appended in time order, new transaction included.
type fakeHistory struct {
	txs []*domain.Transaction
}

func (f *fakeHistory) All() []*domain.Transaction {
	return f.txs
}

func (f *fakeHistory) ByRecipient(recipient string) []*domain.Transaction {
	var out []*domain.Transaction
	for _, tx := range f.txs {
		if tx.Recipient == recipient {
			out = append(out, tx)
		}
	}
	return out
}

func (f *fakeHistory) TotalSpend() float64 {
	total := 0.0
	for _, tx := range f.txs {
		total += tx.Amount
	}
	return total
}

var testBase = time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)

func tx(id, recipient string, amount float64, offsetHours int) *domain.Transaction {
	ts := testBase.Add(time.Duration(offsetHours) * time.Hour)
	return &domain.Transaction{
		ID:        id,
		Recipient: recipient,
		Amount:    amount,
		Status:    domain.StatusCompleted,
		Timestamp: ts,
		CreatedAt: ts,
	}
}

func repeated(recipient string, amount float64, n int) []*domain.Transaction {
	out := make([]*domain.Transaction, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, tx(fmt.Sprintf("tx-%d", i), recipient, amount, i*24))
	}
	return out
}

func TestMicroCostsBoundary(t *testing.T) {
	d := &MicroCosts{cfg: domain.DefaultDetectorConfig()}

	t.Run("ExactThresholdNeverTriggers", func(t *testing.T) {
		h := &fakeHistory{txs: repeated("coffee-shop", 50, 5)}
		newTx := h.txs[len(h.txs)-1]
		if _, ok := d.Detect(newTx, h); ok {
			t.Error("amount of exactly 50 must not count as a micro-cost")
		}
	})

	t.Run("JustBelowThresholdTriggers", func(t *testing.T) {
		txs := repeated("coffee-shop", 49.99, 3)
		last := tx("tx-new", "coffee-shop", 49.99, 100)
		h := &fakeHistory{txs: append(txs, last)}

		p, ok := d.Detect(last, h)
		if !ok {
			t.Fatal("expected micro-cost pattern with 3 prior qualifying transactions")
		}
		if p.Type != domain.PatternRecurringMicroCosts {
			t.Errorf("unexpected pattern type %s", p.Type)
		}
	})
}

func TestMicroCostsCoffeeSubscription(t *testing.T) {
	// Four payments of 15 over 30 days. The 3rd fires the pattern at a
	// cumulative 45; the 4th raises it to 60. Both stay LOW because the
	// MEDIUM band starts above 100: threat escalates on totals, not on
	// detection frequency.
	d := &MicroCosts{cfg: domain.DefaultDetectorConfig()}

	txs := repeated("coffee-shop", 15, 4)

	third := txs[2]
	h3 := &fakeHistory{txs: txs[:3]}
	p3, ok := d.Detect(third, h3)
	if !ok {
		t.Fatal("expected pattern on the 3rd payment")
	}
	if p3.ThreatLevel != domain.ThreatLow {
		t.Errorf("expected LOW at total 45, got %s", p3.ThreatLevel)
	}
	if p3.EstimatedImpact != 45 {
		t.Errorf("expected impact 45, got %.2f", p3.EstimatedImpact)
	}

	fourth := txs[3]
	h4 := &fakeHistory{txs: txs}
	p4, ok := d.Detect(fourth, h4)
	if !ok {
		t.Fatal("expected pattern on the 4th payment")
	}
	if p4.ThreatLevel != domain.ThreatLow {
		t.Errorf("expected LOW at total 60, got %s", p4.ThreatLevel)
	}
	if p4.EstimatedImpact != 60 {
		t.Errorf("expected impact 60, got %.2f", p4.EstimatedImpact)
	}
}

func TestMicroCostsThreatEscalation(t *testing.T) {
	d := &MicroCosts{cfg: domain.DefaultDetectorConfig()}

	t.Run("MediumAbove100", func(t *testing.T) {
		h := &fakeHistory{txs: repeated("vendor", 40, 3)} // total 120
		p, ok := d.Detect(h.txs[2], h)
		if !ok || p.ThreatLevel != domain.ThreatMedium {
			t.Errorf("expected MEDIUM at total 120, got %+v", p)
		}
	})

	t.Run("HighAbove200", func(t *testing.T) {
		h := &fakeHistory{txs: repeated("vendor", 45, 5)} // total 225
		p, ok := d.Detect(h.txs[4], h)
		if !ok || p.ThreatLevel != domain.ThreatHigh {
			t.Errorf("expected HIGH at total 225, got %+v", p)
		}
	})
}

func TestVendorConcentrationBoundary(t *testing.T) {
	d := &VendorConcentration{cfg: domain.DefaultDetectorConfig()}

	t.Run("ExactShareDoesNotTrigger", func(t *testing.T) {
		// vendor-a holds exactly 30% of a 1000 total.
		newTx := tx("tx-a", "vendor-a", 300, 0)
		h := &fakeHistory{txs: []*domain.Transaction{
			newTx,
			tx("tx-b", "vendor-b", 700, 1),
		}}
		if _, ok := d.Detect(newTx, h); ok {
			t.Error("share of exactly 30% must not trigger")
		}
	})

	t.Run("JustAboveShareIsMedium", func(t *testing.T) {
		newTx := tx("tx-a", "vendor-a", 300.1, 0)
		h := &fakeHistory{txs: []*domain.Transaction{
			newTx,
			tx("tx-b", "vendor-b", 699.9, 1),
		}}
		p, ok := d.Detect(newTx, h)
		if !ok {
			t.Fatal("share of 30.01% must trigger")
		}
		if p.ThreatLevel != domain.ThreatMedium {
			t.Errorf("expected MEDIUM below the 60%% band, got %s", p.ThreatLevel)
		}
	})

	t.Run("AboveSixtyPercentIsHigh", func(t *testing.T) {
		newTx := tx("tx-a", "vendor-a", 700, 0)
		h := &fakeHistory{txs: []*domain.Transaction{
			newTx,
			tx("tx-b", "vendor-b", 300, 1),
		}}
		p, ok := d.Detect(newTx, h)
		if !ok || p.ThreatLevel != domain.ThreatHigh {
			t.Errorf("expected HIGH above 60%% share, got %+v", p)
		}
	})
}

func TestConvenienceBias(t *testing.T) {
	d := &ConvenienceBias{cfg: domain.DefaultDetectorConfig()}

	t.Run("NonRoundAmountNeverTriggers", func(t *testing.T) {
		newTx := tx("tx-1", "vendor", 55, 0)
		h := &fakeHistory{txs: []*domain.Transaction{newTx}}
		if _, ok := d.Detect(newTx, h); ok {
			t.Error("55 is not a multiple of 10 and must not trigger")
		}
	})

	t.Run("SixtyPercentShareTriggersLow", func(t *testing.T) {
		newTx := tx("tx-new", "vendor", 60, 10)
		h := &fakeHistory{txs: []*domain.Transaction{
			tx("tx-1", "vendor", 60, 0),
			tx("tx-2", "vendor", 80, 1),
			tx("tx-3", "other", 12, 2),
			tx("tx-4", "other", 33, 3),
			newTx,
		}}
		p, ok := d.Detect(newTx, h)
		if !ok {
			t.Fatal("expected convenience bias at 60% round-large share")
		}
		if p.ThreatLevel != domain.ThreatLow {
			t.Errorf("expected LOW at 60%% share, got %s", p.ThreatLevel)
		}
	})

	t.Run("AboveEightyPercentIsMedium", func(t *testing.T) {
		newTx := tx("tx-new", "vendor", 100, 10)
		h := &fakeHistory{txs: []*domain.Transaction{
			tx("tx-1", "vendor", 60, 0),
			tx("tx-2", "vendor", 80, 1),
			tx("tx-3", "vendor", 90, 2),
			tx("tx-4", "vendor", 70, 3),
			newTx,
		}}
		p, ok := d.Detect(newTx, h)
		if !ok || p.ThreatLevel != domain.ThreatMedium {
			t.Errorf("expected MEDIUM at 100%% round-large share, got %+v", p)
		}
	})
}

func TestDecliningValue(t *testing.T) {
	d := &DecliningValue{cfg: domain.DefaultDetectorConfig()}

	t.Run("NeedsFourTransactions", func(t *testing.T) {
		txs := []*domain.Transaction{
			tx("tx-1", "vendor", 10, 0),
			tx("tx-2", "vendor", 10, 24),
			tx("tx-3", "vendor", 20, 48),
		}
		h := &fakeHistory{txs: txs}
		if _, ok := d.Detect(txs[2], h); ok {
			t.Error("fewer than 4 transactions must not trigger")
		}
	})

	t.Run("ModerateIncreaseIsMedium", func(t *testing.T) {
		// Early mean 10, recent mean 13: a 30% increase.
		txs := []*domain.Transaction{
			tx("tx-1", "vendor", 10, 0),
			tx("tx-2", "vendor", 10, 24),
			tx("tx-3", "vendor", 12, 48),
			tx("tx-4", "vendor", 14, 72),
		}
		h := &fakeHistory{txs: txs}
		p, ok := d.Detect(txs[3], h)
		if !ok {
			t.Fatal("expected declining value at a 30% increase")
		}
		if p.ThreatLevel != domain.ThreatMedium {
			t.Errorf("expected MEDIUM, got %s", p.ThreatLevel)
		}
	})

	t.Run("SteepIncreaseIsHigh", func(t *testing.T) {
		// Early mean 10, recent mean 17: a 70% increase.
		txs := []*domain.Transaction{
			tx("tx-1", "vendor", 10, 0),
			tx("tx-2", "vendor", 10, 24),
			tx("tx-3", "vendor", 16, 48),
			tx("tx-4", "vendor", 18, 72),
		}
		h := &fakeHistory{txs: txs}
		p, ok := d.Detect(txs[3], h)
		if !ok || p.ThreatLevel != domain.ThreatHigh {
			t.Errorf("expected HIGH above a 50%% increase, got %+v", p)
		}
	})

	t.Run("TwentyPercentBoundaryDoesNotTrigger", func(t *testing.T) {
		// Early mean 10, recent mean 12: exactly 20%.
		txs := []*domain.Transaction{
			tx("tx-1", "vendor", 10, 0),
			tx("tx-2", "vendor", 10, 24),
			tx("tx-3", "vendor", 12, 48),
			tx("tx-4", "vendor", 12, 72),
		}
		h := &fakeHistory{txs: txs}
		if _, ok := d.Detect(txs[3], h); ok {
			t.Error("an increase of exactly 20% must not trigger")
		}
	})
}

func TestRegistryDetectAll(t *testing.T) {
	reg := NewRegistry(domain.DefaultDetectorConfig())

	if got := len(reg.Detectors()); got != 4 {
		t.Fatalf("expected 4 detectors, got %d", got)
	}

	// Three micro payments to one recipient holding 100% of spend:
	// both micro-costs and vendor concentration fire.
	txs := repeated("solo-vendor", 15, 3)
	h := &fakeHistory{txs: txs}

	fired := reg.DetectAll(txs[2], h)
	types := make(map[domain.PatternType]bool)
	for _, p := range fired {
		types[p.Type] = true
	}

	if !types[domain.PatternRecurringMicroCosts] {
		t.Error("expected recurring micro-costs to fire")
	}
	if !types[domain.PatternVendorConcentration] {
		t.Error("expected vendor concentration to fire")
	}
	if types[domain.PatternConvenienceBias] || types[domain.PatternDecliningValue] {
		t.Error("convenience bias and declining value must not fire here")
	}
}
