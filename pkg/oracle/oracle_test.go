package oracle

import (
	"math"
	"testing"
	"time"

	"github.com/gregtusar/updown/pkg/models"
	"github.com/sirupsen/logrus"
)

var testNow = time.Date(2026, 10, 18, 15, 30, 0, 0, time.UTC)

func newTestOracle() *Oracle {
	o := New(DefaultHistorySize, logrus.New())
	o.SetClock(func() time.Time { return testNow })
	return o
}

func tick(open, close float64, elapsed, remaining time.Duration) models.CandleTick {
	return models.CandleTick{
		Open:      open,
		Close:     close,
		High:      math.Max(open, close),
		Low:       math.Min(open, close),
		StartTime: testNow.Add(-elapsed),
		CloseTime: testNow.Add(remaining),
	}
}

func TestSnapshot_NoData(t *testing.T) {
	o := newTestOracle()
	if o.HasData() {
		t.Fatal("expected HasData false before any tick")
	}
	s := o.Snapshot()
	if s.ProbUp != 0.5 || s.ProbDown != 0.5 {
		t.Errorf("expected neutral 0.5/0.5, got %v/%v", s.ProbUp, s.ProbDown)
	}
}

func TestSnapshot_ZeroOpenIsNeutral(t *testing.T) {
	o := newTestOracle()
	o.Ingest(tick(0, 50000, 30*time.Minute, 30*time.Minute))
	if o.HasData() {
		t.Fatal("expected HasData false with zero open")
	}
	if p := o.Snapshot().ProbUp; p != 0.5 {
		t.Errorf("expected 0.5, got %v", p)
	}
}

func TestSnapshot_FreshCandleIsNeutral(t *testing.T) {
	o := newTestOracle()
	// 59 of 60 minutes remaining.
	o.Ingest(tick(50000, 50500, time.Minute, 59*time.Minute))

	s := o.Snapshot()
	if s.ProbUp != 0.5 {
		t.Errorf("expected 0.5 for a fresh candle, got %v", s.ProbUp)
	}
	if s.PriceChange != 500 {
		t.Errorf("expected price change 500, got %v", s.PriceChange)
	}
	if math.Abs(s.PriceChangePercent-1) > 1e-9 {
		t.Errorf("expected 1%% change, got %v", s.PriceChangePercent)
	}
}

func TestSnapshot_ExpiredCandle(t *testing.T) {
	o := newTestOracle()
	o.Ingest(tick(50000, 50010, time.Hour, -time.Second))
	s := o.Snapshot()
	if s.ProbUp != 1 || s.ProbDown != 0 {
		t.Errorf("expected settled up 1/0, got %v/%v", s.ProbUp, s.ProbDown)
	}
	if s.TimeRemainingMs != 0 {
		t.Errorf("expected no time remaining, got %d", s.TimeRemainingMs)
	}

	o.Ingest(tick(50000, 49990, time.Hour, -time.Second))
	s = o.Snapshot()
	if s.ProbUp != 0 || s.ProbDown != 1 {
		t.Errorf("expected settled down 0/1, got %v/%v", s.ProbUp, s.ProbDown)
	}

	o.Ingest(tick(50000, 50000, time.Hour, 0))
	if p := o.Snapshot().ProbUp; p != 0 {
		t.Errorf("expected unchanged close to settle down, got %v", p)
	}
}

func TestSnapshot_NormalModel(t *testing.T) {
	o := newTestOracle()
	o.Ingest(tick(50000, 50100, 30*time.Minute, 30*time.Minute))

	s := o.Snapshot()
	expectedStdDev := BaseVolatility * 50000 * math.Sqrt(0.5)
	want := NormalCDF(100 / expectedStdDev)
	if s.ProbUp != want {
		t.Errorf("expected probUp %v, got %v", want, s.ProbUp)
	}
	if s.ProbUp <= 0.5 {
		t.Errorf("expected upward bias, got %v", s.ProbUp)
	}
	if s.TimeRemainingPercent != 50 {
		t.Errorf("expected 50%% remaining, got %v", s.TimeRemainingPercent)
	}
	// max(1 - 0.5, min(0.2 / 0.5, 1)) = 0.5
	if math.Abs(s.Confidence-0.5) > 1e-9 {
		t.Errorf("expected confidence 0.5, got %v", s.Confidence)
	}
}

func TestSnapshot_ConfidenceFromMove(t *testing.T) {
	o := newTestOracle()
	o.Ingest(tick(50000, 50400, 50*time.Minute, 10*time.Minute))
	// 0.8% move saturates price confidence.
	if c := o.Snapshot().Confidence; c != 1 {
		t.Errorf("expected confidence 1, got %v", c)
	}
}

func TestSnapshot_ClampsExtremes(t *testing.T) {
	o := newTestOracle()
	o.Ingest(tick(50000, 90000, 30*time.Minute, 30*time.Minute))
	if p := o.Snapshot().ProbUp; p != MaxProbability {
		t.Errorf("expected clamp to %v, got %v", MaxProbability, p)
	}

	o.Ingest(tick(50000, 10000, 30*time.Minute, 30*time.Minute))
	if p := o.Snapshot().ProbUp; p != MinProbability {
		t.Errorf("expected clamp to %v, got %v", MinProbability, p)
	}
}

func TestSnapshot_DegenerateStdDev(t *testing.T) {
	o := newTestOracle()
	// Tiny open price makes the expected move numerically negligible.
	o.Ingest(tick(1, 1.001, 30*time.Minute, 30*time.Minute))
	if p := o.Snapshot().ProbUp; p != MaxProbability {
		t.Errorf("expected %v, got %v", MaxProbability, p)
	}
	o.Ingest(tick(1, 0.999, 30*time.Minute, 30*time.Minute))
	if p := o.Snapshot().ProbUp; p != MinProbability {
		t.Errorf("expected %v, got %v", MinProbability, p)
	}
}

func TestSnapshot_ComplementaryAndBounded(t *testing.T) {
	o := newTestOracle()
	for _, close := range []float64{1, 30000, 49000, 49999.5, 50000, 50000.5, 51000, 70000, 1e9} {
		for _, remaining := range []time.Duration{time.Second, 5 * time.Minute, 30 * time.Minute, 58 * time.Minute} {
			o.Ingest(tick(50000, close, time.Hour-remaining, remaining))
			s := o.Snapshot()
			if s.ProbUp+s.ProbDown != 1 {
				t.Fatalf("close=%v remaining=%v: probabilities sum to %v", close, remaining, s.ProbUp+s.ProbDown)
			}
			if s.ProbUp < MinProbability || s.ProbUp > MaxProbability {
				t.Fatalf("close=%v remaining=%v: probUp %v out of bounds", close, remaining, s.ProbUp)
			}
		}
	}
}

func TestIngest_BoundsHistory(t *testing.T) {
	o := New(300, logrus.New())
	start := testNow
	i := 0
	o.SetClock(func() time.Time { return start.Add(time.Duration(i) * time.Second) })

	for i = 0; i < 350; i++ {
		o.Ingest(tick(50000, 50000+float64(i), 30*time.Minute, 30*time.Minute))
	}

	history := o.History()
	if len(history) != 300 {
		t.Fatalf("expected 300 samples, got %d", len(history))
	}
	if history[0].Price != 50050 {
		t.Errorf("expected oldest sample 50050, got %v", history[0].Price)
	}
	if history[299].Price != 50349 {
		t.Errorf("expected newest sample 50349, got %v", history[299].Price)
	}
}

func TestIngest_ReplacesCandle(t *testing.T) {
	o := newTestOracle()
	o.Ingest(tick(50000, 50100, 30*time.Minute, 30*time.Minute))
	o.Ingest(models.CandleTick{Open: 51000, Close: 50900, StartTime: testNow, CloseTime: testNow.Add(time.Hour)})

	c := o.Candle()
	if c.OpenPrice != 51000 || c.CurrentPrice != 50900 {
		t.Errorf("expected candle replaced, got %+v", c)
	}
	if c.HighPrice != 0 || c.LowPrice != 0 {
		t.Errorf("expected high/low not merged from previous candle, got %+v", c)
	}
}

func TestOnSnapshot_NotifiedPerTick(t *testing.T) {
	o := newTestOracle()
	var got []models.ProbabilitySnapshot
	o.OnSnapshot(func(s models.ProbabilitySnapshot) { got = append(got, s) })

	o.Ingest(tick(50000, 50100, 30*time.Minute, 30*time.Minute))
	o.Ingest(tick(50000, 49900, 30*time.Minute, 30*time.Minute))

	if len(got) != 2 {
		t.Fatalf("expected 2 snapshots, got %d", len(got))
	}
	if got[0].ProbUp <= 0.5 || got[1].ProbUp >= 0.5 {
		t.Errorf("unexpected snapshot sequence %v, %v", got[0].ProbUp, got[1].ProbUp)
	}
}
