package analysis

import (
	"testing"

	"github.com/claude/gbinsight/internal/models"
)

// TestCalculateActivityAmounts verifies per-kind time and steps, with gaps
// capped at one sample period.
func TestCalculateActivityAmounts(t *testing.T) {
	samples := []models.Sample{
		{Timestamp: 0, Kind: models.KindWalking, Steps: models.Int(50)},
		{Timestamp: 60, Kind: models.KindWalking, Steps: models.Int(30)},
		{Timestamp: 120, Kind: models.KindLightSleep},
		{Timestamp: 3000, Kind: models.KindLightSleep},
		{Timestamp: 3030, Kind: models.KindDeepSleep},
	}
	got := CalculateActivityAmounts(samples, 60)

	if got.Seconds(models.KindWalking) != 120 {
		t.Errorf("walking = %d, want 120", got.Seconds(models.KindWalking))
	}
	if got.Seconds(models.KindLightSleep) != 120 {
		t.Errorf("light sleep = %d, want 120", got.Seconds(models.KindLightSleep))
	}
	if got.AsleepSeconds() != 150 {
		t.Errorf("AsleepSeconds() = %d, want 150", got.AsleepSeconds())
	}
	if got.TotalSec != 270 || got.TotalSteps != 80 {
		t.Errorf("totals = %d sec, %d steps", got.TotalSec, got.TotalSteps)
	}
	if len(got.Amounts) != 3 || got.Amounts[0].Kind != models.KindWalking {
		t.Errorf("Amounts = %+v, want walking first", got.Amounts)
	}
}
