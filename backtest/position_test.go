package backtest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/cvdtrader/market"
	"github.com/rustyeddy/cvdtrader/trendline"
)

var day = time.Date(2025, 5, 1, 13, 30, 0, 0, time.UTC)

func TestLongStopLossBeatsTarget(t *testing.T) {
	pm := NewPositionManager(RiskConfig{Mode: RiskFixed, StopPoints: 4, TargetPoints: 9})

	p, err := pm.Enter(Long, market.Bar{Close: 100, Time: day}, nil)
	require.NoError(t, err)
	assert.Equal(t, 96.0, p.StopPrice)
	assert.Equal(t, 109.0, p.TargetPrice)

	// inside the bar's range neither level is touched
	_, ok := pm.CheckExit(market.Bar{High: 108, Low: 97, Time: day.Add(time.Minute)})
	assert.False(t, ok)

	tr, ok := pm.CheckExit(market.Bar{High: 108, Low: 95, Time: day.Add(2 * time.Minute)})
	require.True(t, ok)
	assert.Equal(t, StopLoss, tr.ExitReason)
	assert.Equal(t, 96.0, tr.ExitPrice)
	assert.Equal(t, -4.0, tr.Profit)
	assert.Equal(t, Loss, tr.Outcome)
	assert.False(t, pm.InPosition())
	assert.False(t, tr.ExitTime.Before(tr.EntryTime))
}

func TestExitPriority(t *testing.T) {
	tests := []struct {
		name   string
		dir    Direction
		bar    market.Bar
		reason ExitReason
		exit   float64
		profit float64
	}{
		{"long target", Long, market.Bar{High: 103, Low: 99}, TakeProfit, 103, 3},
		{"long both stop first", Long, market.Bar{High: 110, Low: 90}, StopLoss, 96, -4},
		{"short stop", Short, market.Bar{High: 104, Low: 99}, StopLoss, 104, -4},
		{"short target", Short, market.Bar{High: 101, Low: 97}, TakeProfit, 97, 3},
		{"short both stop first", Short, market.Bar{High: 105, Low: 90}, StopLoss, 104, -4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pm := NewPositionManager(RiskConfig{Mode: RiskFixed, StopPoints: 4, TargetPoints: 3})
			_, err := pm.Enter(tt.dir, market.Bar{Close: 100, Time: day}, nil)
			require.NoError(t, err)

			tt.bar.Time = day.Add(time.Minute)
			tr, ok := pm.CheckExit(tt.bar)
			require.True(t, ok)
			assert.Equal(t, tt.reason, tr.ExitReason)
			assert.Equal(t, tt.exit, tr.ExitPrice)
			assert.Equal(t, tt.profit, tr.Profit)
			assert.Equal(t, tt.dir, tr.Direction)
		})
	}
}

func TestRMultipleLevels(t *testing.T) {
	pm := NewPositionManager(RiskConfig{Mode: RiskRMultiple, RMultiple: 2})

	p, err := pm.Enter(Long, market.Bar{Close: 105}, []float64{101, 100, 103, 104, 105})
	require.NoError(t, err)
	assert.Equal(t, 100.0, p.StopPrice)
	assert.Equal(t, 115.0, p.TargetPrice)

	pm = NewPositionManager(RiskConfig{Mode: RiskRMultiple, RMultiple: 2})
	p, err = pm.Enter(Short, market.Bar{Close: 95}, []float64{99, 100, 97, 96, 95})
	require.NoError(t, err)
	assert.Equal(t, 100.0, p.StopPrice)
	assert.Equal(t, 85.0, p.TargetPrice)

	pm = NewPositionManager(RiskConfig{Mode: RiskRMultiple, RMultiple: 2})
	_, err = pm.Enter(Long, market.Bar{Close: 100}, []float64{100, 100, 100})
	assert.ErrorIs(t, err, ErrNoRisk)
	assert.False(t, pm.InPosition())
}

func TestSinglePosition(t *testing.T) {
	pm := NewPositionManager(RiskConfig{Mode: RiskFixed, StopPoints: 1, TargetPoints: 1})

	_, err := pm.Enter(Long, market.Bar{Close: 10}, nil)
	require.NoError(t, err)
	_, err = pm.Enter(Short, market.Bar{Close: 10}, nil)
	assert.ErrorIs(t, err, ErrPositionOpen)

	p, ok := pm.Open()
	require.True(t, ok)
	assert.Equal(t, Long, p.Direction)

	tr, ok := pm.CloseAt(10.5, day, EndOfSession)
	require.True(t, ok)
	assert.Equal(t, EndOfSession, tr.ExitReason)
	assert.Equal(t, Win, tr.Outcome)

	_, ok = pm.CloseAt(10, day, EndOfSession)
	assert.False(t, ok)
}

func TestDirectionOf(t *testing.T) {
	d, ok := DirectionOf(trendline.Bullish)
	assert.True(t, ok)
	assert.Equal(t, Long, d)

	d, ok = DirectionOf(trendline.Bearish)
	assert.True(t, ok)
	assert.Equal(t, Short, d)

	_, ok = DirectionOf(trendline.None)
	assert.False(t, ok)
}

func TestRiskConfigValidate(t *testing.T) {
	assert.NoError(t, RiskConfig{StopPoints: 4, TargetPoints: 3}.Validate())
	assert.Error(t, RiskConfig{StopPoints: 0, TargetPoints: 3}.Validate())
	assert.Error(t, RiskConfig{StopPoints: 4}.Validate())
	assert.NoError(t, RiskConfig{Mode: RiskRMultiple, RMultiple: 2}.Validate())
	assert.Error(t, RiskConfig{Mode: RiskRMultiple}.Validate())
}
