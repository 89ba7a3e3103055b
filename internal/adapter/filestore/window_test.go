package filestore

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/skycastle-service/internal/domain"
)

func writeWindow(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), WindowFile)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestWindow_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	code := 3
	in := []domain.Reading{
		{Date: time.Date(2024, 11, 2, 0, 0, 0, 0, time.UTC), Temp: 9.5049, Humidity: 95, Wind: 1.2, Cloud: 60, Rain: 0, WeatherCode: &code},
		{Date: time.Date(2024, 11, 3, 0, 0, 0, 0, time.UTC), Temp: 7, Humidity: 88.333, Wind: 2, Cloud: 10, Rain: 0.25},
	}
	require.NoError(t, s.WriteWindow(in))

	got, err := s.ReadWindow()
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 9.5, got[0].Temp)
	assert.Equal(t, 88.33, got[1].Humidity)
	require.NotNil(t, got[0].WeatherCode)
	assert.Equal(t, 3, *got[0].WeatherCode)
	assert.Nil(t, got[1].WeatherCode)
}

func TestReadWindowFile_NumericStrings(t *testing.T) {
	path := writeWindow(t, `[{"date":"2024-11-02","temp":"9.5","humidity":95,"wind":" 1.2 ","cloud":60,"rain":0,"weathercode":"45"}]`)

	got, err := ReadWindowFile(path)
	require.NoError(t, err)
	assert.Equal(t, 9.5, got[0].Temp)
	assert.Equal(t, 1.2, got[0].Wind)
	assert.Equal(t, 45, *got[0].WeatherCode)
}

func TestReadWindowFile_NullWeatherCode(t *testing.T) {
	path := writeWindow(t, `[{"date":"2024-11-02","temp":9.5,"humidity":95,"wind":1.2,"cloud":60,"rain":0,"weathercode":null}]`)

	got, err := ReadWindowFile(path)
	require.NoError(t, err)
	assert.Nil(t, got[0].WeatherCode)
}

func TestReadWindowFile_Malformed(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		field string
	}{
		{"bad number", `[{"date":"2024-11-02","temp":"warm","humidity":95,"wind":1,"cloud":1,"rain":0}]`, "temp"},
		{"missing field", `[{"date":"2024-11-02","temp":9,"humidity":95,"cloud":1,"rain":0}]`, "wind"},
		{"null field", `[{"date":"2024-11-02","temp":9,"humidity":null,"wind":1,"cloud":1,"rain":0}]`, "humidity"},
		{"bad date", `[{"date":"02/11/2024","temp":9,"humidity":95,"wind":1,"cloud":1,"rain":0}]`, "date"},
		{"nan string", `[{"date":"2024-11-02","temp":9,"humidity":95,"wind":1,"cloud":"NaN","rain":0}]`, "cloud"},
		{"bad weathercode", `[{"date":"2024-11-02","temp":9,"humidity":95,"wind":1,"cloud":1,"rain":0,"weathercode":"fog"}]`, "weathercode"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeWindow(t, tt.body)
			_, err := ReadWindowFile(path)
			var malformed *domain.MalformedRecordError
			require.ErrorAs(t, err, &malformed)
			assert.Equal(t, tt.field, malformed.Field)
			assert.Equal(t, "entry 0", malformed.Record)
			assert.Equal(t, path, malformed.Source)
		})
	}
}

func TestReadWindowFile_SecondEntryBadRejectsAll(t *testing.T) {
	path := writeWindow(t, `[
		{"date":"2024-11-02","temp":9,"humidity":95,"wind":1,"cloud":1,"rain":0},
		{"date":"2024-11-03","temp":9,"humidity":95,"wind":"x","cloud":1,"rain":0}
	]`)

	got, err := ReadWindowFile(path)
	require.Error(t, err)
	assert.Nil(t, got)
	assert.Contains(t, err.Error(), "entry 1")
}

func TestReadWindowFile_NotAList(t *testing.T) {
	path := writeWindow(t, `{"date":"2024-11-02"}`)
	_, err := ReadWindowFile(path)
	var malformed *domain.MalformedRecordError
	require.ErrorAs(t, err, &malformed)
}

func TestReadWindowFile_Missing(t *testing.T) {
	_, err := ReadWindowFile(filepath.Join(t.TempDir(), "nope.json"))
	var missing *domain.MissingInputError
	require.ErrorAs(t, err, &missing)
}
