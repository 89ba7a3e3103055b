// Package storetest holds the behavior every domain.HistoryStore must share.
// Backend packages call Run from their own tests.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/skycastle-service/internal/domain"
)

// Factory returns an empty store. It is called once per subtest.
type Factory func(t *testing.T) domain.HistoryStore

func date(s string) time.Time {
	d, err := domain.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Predicted returns a fully populated predicted group.
func Predicted(fog, castle, event float64, label domain.EventLabel) domain.PredictedFields {
	return domain.PredictedFields{
		Temp:              domain.Float(9.58),
		Humidity:          domain.Float(90.25),
		Wind:              domain.Float(6.55),
		Cloud:             domain.Float(66),
		Rain:              domain.Float(0.18),
		FogProbability:    domain.Float(fog),
		CastleProbability: domain.Float(castle),
		EventProbability:  domain.Float(event),
		FogScore:          domain.Float(55.9),
		CastleScore:       domain.Float(55.9),
		DewPoint:          domain.Float(8.06),
		DewSpread:         domain.Float(1.52),
		Event:             label,
		UpdatedAt:         time.Date(2024, 11, 1, 21, 0, 0, 0, time.UTC),
	}
}

// Run executes the conformance suite.
func Run(t *testing.T, newStore Factory) {
	ctx := context.Background()

	t.Run("predicted insert defaults observed group", func(t *testing.T) {
		s := newStore(t)
		d := date("2024-11-02")

		require.NoError(t, s.UpsertPredicted(ctx, d, Predicted(0.82, 0.41, 0.336, domain.LabelFogOnly)))

		rec, ok, err := s.Get(ctx, d)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, d, rec.Date)
		assert.InDelta(t, 0.82, *rec.FogProbability, 1e-12)
		assert.InDelta(t, 0.336, *rec.EventProbability, 1e-12)
		assert.Equal(t, domain.LabelFogOnly, rec.Event)
		assert.False(t, rec.FogObserved)
		assert.False(t, rec.CastleVisible)
		assert.Empty(t, rec.Note)
		assert.True(t, rec.UpdatedAt.Equal(time.Date(2024, 11, 1, 21, 0, 0, 0, time.UTC)))
	})

	t.Run("predicted upsert preserves observed group", func(t *testing.T) {
		s := newStore(t)
		d := date("2024-10-15")
		obs := domain.ObservedFields{FogObserved: true, CastleVisible: false, Note: "thin"}

		require.NoError(t, s.UpsertObserved(ctx, d, obs))
		require.NoError(t, s.UpsertPredicted(ctx, d, Predicted(0.9, 0.2, 0.18, domain.LabelFogOnly)))

		rec, ok, err := s.Get(ctx, d)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, obs, rec.ObservedFields)
		assert.InDelta(t, 0.9, *rec.FogProbability, 1e-12)
	})

	t.Run("observed upsert preserves predicted group", func(t *testing.T) {
		s := newStore(t)
		d := date("2024-10-16")
		pred := Predicted(0.7, 0.65, 0.6, domain.LabelCastle)

		require.NoError(t, s.UpsertPredicted(ctx, d, pred))
		before, _, err := s.Get(ctx, d)
		require.NoError(t, err)

		require.NoError(t, s.UpsertObserved(ctx, d, domain.ObservedFields{CastleVisible: true, FogObserved: true, Note: "🏯"}))

		after, _, err := s.Get(ctx, d)
		require.NoError(t, err)
		assert.Equal(t, before.PredictedFields, after.PredictedFields)
		assert.Equal(t, "🏯", after.Note)
		assert.True(t, after.CastleVisible)
	})

	t.Run("observed insert leaves predicted group null", func(t *testing.T) {
		s := newStore(t)
		d := date("2024-10-17")

		require.NoError(t, s.UpsertObserved(ctx, d, domain.ObservedFields{FogObserved: true}))

		rec, ok, err := s.Get(ctx, d)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Nil(t, rec.Temp)
		assert.Nil(t, rec.FogProbability)
		assert.Empty(t, rec.Event)
		assert.True(t, rec.UpdatedAt.IsZero())
		assert.False(t, rec.HasPrediction())
	})

	t.Run("predicted upsert is idempotent", func(t *testing.T) {
		s := newStore(t)
		d := date("2024-10-18")
		pred := Predicted(0.5, 0.5, 0.25, domain.LabelFogOnly)

		require.NoError(t, s.UpsertPredicted(ctx, d, pred))
		first, _, err := s.Get(ctx, d)
		require.NoError(t, err)
		require.NoError(t, s.UpsertPredicted(ctx, d, pred))
		second, _, err := s.Get(ctx, d)
		require.NoError(t, err)

		assert.Equal(t, first, second)
		all, err := s.List(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 1)
	})

	t.Run("null predicted values round trip", func(t *testing.T) {
		s := newStore(t)
		d := date("2024-10-19")
		pred := domain.PredictedFields{Temp: domain.Float(5), Event: domain.LabelNone}

		require.NoError(t, s.UpsertPredicted(ctx, d, pred))
		rec, _, err := s.Get(ctx, d)
		require.NoError(t, err)
		require.NotNil(t, rec.Temp)
		assert.Nil(t, rec.Humidity)
		assert.Nil(t, rec.CastleScore)
	})

	t.Run("get missing date", func(t *testing.T) {
		s := newStore(t)
		_, ok, err := s.Get(ctx, date("2000-01-01"))
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("latest before is strict and needs weather", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.UpsertPredicted(ctx, date("2024-10-01"), Predicted(0.1, 0.1, 0.01, domain.LabelNone)))
		require.NoError(t, s.UpsertPredicted(ctx, date("2024-10-03"), Predicted(0.2, 0.1, 0.02, domain.LabelNone)))
		require.NoError(t, s.UpsertObserved(ctx, date("2024-10-04"), domain.ObservedFields{FogObserved: true}))
		require.NoError(t, s.UpsertPredicted(ctx, date("2024-10-05"), Predicted(0.3, 0.1, 0.03, domain.LabelNone)))

		rec, ok, err := s.LatestBefore(ctx, date("2024-10-05"))
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, date("2024-10-03"), rec.Date, "observation-only row skipped, same-day row excluded")

		_, ok, err = s.LatestBefore(ctx, date("2024-10-01"))
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("list is sorted", func(t *testing.T) {
		s := newStore(t)
		for _, d := range []string{"2024-12-01", "2024-01-15", "2024-06-30"} {
			require.NoError(t, s.UpsertObserved(ctx, date(d), domain.ObservedFields{}))
		}

		all, err := s.List(ctx)
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, date("2024-01-15"), all[0].Date)
		assert.Equal(t, date("2024-06-30"), all[1].Date)
		assert.Equal(t, date("2024-12-01"), all[2].Date)
	})

	t.Run("bulk replace and delete", func(t *testing.T) {
		s := newStore(t)
		ed, ok := s.(domain.HistoryEditor)
		if !ok {
			t.Skip("store does not support bulk edits")
		}
		require.NoError(t, s.UpsertPredicted(ctx, date("2024-10-01"), Predicted(0.1, 0.1, 0.01, domain.LabelNone)))

		rec := domain.HistoryRecord{Date: date("2024-10-01")}
		rec.PredictedFields = Predicted(0.95, 0.9, 0.88, domain.LabelCastle)
		rec.ObservedFields = domain.ObservedFields{FogObserved: true, CastleVisible: true, Note: "imported"}
		other := domain.HistoryRecord{Date: date("2024-10-02")}
		other.Note = "only a note"

		require.NoError(t, ed.Replace(ctx, []domain.HistoryRecord{rec, other}))

		got, _, err := s.Get(ctx, date("2024-10-01"))
		require.NoError(t, err)
		assert.Equal(t, domain.LabelCastle, got.Event)
		assert.Equal(t, "imported", got.Note)

		require.NoError(t, ed.Delete(ctx, []time.Time{date("2024-10-01")}))
		all, err := s.List(ctx)
		require.NoError(t, err)
		require.Len(t, all, 1)
		assert.Equal(t, "only a note", all[0].Note)
	})
}
