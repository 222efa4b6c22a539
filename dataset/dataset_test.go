package dataset

import (
	"context"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleCSV = `age,anaemia,creatinine_phosphokinase,diabetes,ejection_fraction,high_blood_pressure,platelets,serum_creatinine,serum_sodium,sex,smoking,time,DEATH_EVENT
75,0,582,0,20,1,265000,1.9,130,1,0,4,1
55,0,7861,0,38,0,263358.03,1.1,136,1,0,6,1
65,0,146,0,20,0,162000,1.3,129,1,1,7,0
`

func TestParse(t *testing.T) {
	ds, err := Parse(strings.NewReader(sampleCSV))
	require.NoError(t, err)
	require.Equal(t, 3, ds.Len())

	first := ds.Records[0]
	assert.Equal(t, 75.0, first.Features.Age)
	assert.Equal(t, 582.0, first.Features.CreatininePhosphokinase)
	assert.Equal(t, 1.0, first.Features.HighBloodPressure)
	assert.True(t, first.HasLabel)
	assert.Equal(t, 1, first.Label)

	severity := 582.0/265000 + 1.9/130 + 75.0/20
	assert.InDelta(t, 1/severity, first.Features.RecoveryPotential, 1e-12)

	labels, err := ds.Labels()
	require.NoError(t, err)
	assert.Equal(t, []int{1, 1, 0}, labels)

	matrix := ds.FeatureMatrix()
	require.Len(t, matrix, 3)
	assert.Len(t, matrix[0], 13)
}

func TestParseRecoveryColumnAndNoLabel(t *testing.T) {
	csv := "age,anemia,creatinine_phosphokinase,diabetes,ejection_fraction,high_blood_pressure,platelets,serum_creatinine,serum_sodium,sex,smoking,time,recovery_potential\n" +
		"50,1,100,1,40,0,200000,1,140,0,1,30,0.75\n"
	ds, err := Parse(strings.NewReader(csv))
	require.NoError(t, err)
	assert.Equal(t, 0.75, ds.Records[0].Features.RecoveryPotential)
	assert.False(t, ds.Records[0].HasLabel)

	_, err = ds.Labels()
	assert.True(t, errors.Is(err, ErrMissingColumn))
}

func TestParseErrors(t *testing.T) {
	_, err := Parse(strings.NewReader("age,sex\n1,0\n"))
	assert.ErrorIs(t, err, ErrMissingColumn)

	bad := strings.Replace(sampleCSV, "582", "abc", 1)
	_, err = Parse(strings.NewReader(bad))
	assert.Error(t, err)

	zero := strings.Replace(sampleCSV, ",130,", ",0,", 1)
	_, err = Parse(strings.NewReader(zero))
	assert.Error(t, err)
}

func TestPage(t *testing.T) {
	ds, err := Parse(strings.NewReader(sampleCSV))
	require.NoError(t, err)

	assert.Len(t, ds.Page(0, 2), 2)
	assert.Len(t, ds.Page(2, 10), 1)
	assert.Empty(t, ds.Page(5, 10))
	assert.Empty(t, ds.Page(0, 0))
	assert.Len(t, ds.Page(-1, 1), 1)
	assert.Len(t, ds.Page(1, math.MaxInt), 2)
	assert.Len(t, ds.Page(0, math.MaxInt), 3)
}

func TestFetchHTTPAndFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing.csv" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(sampleCSV))
	}))
	defer srv.Close()

	ds, err := Fetch(context.Background(), srv.Client(), srv.URL+"/data.csv")
	require.NoError(t, err)
	assert.Equal(t, 3, ds.Len())
	assert.Equal(t, srv.URL+"/data.csv", ds.Source)

	_, err = Fetch(context.Background(), srv.Client(), srv.URL+"/missing.csv")
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "data.csv")
	require.NoError(t, os.WriteFile(path, []byte(sampleCSV), 0o644))
	ds, err = Fetch(context.Background(), nil, path)
	require.NoError(t, err)
	assert.Equal(t, 3, ds.Len())
}

func TestLoaderCachesBySource(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Write([]byte(sampleCSV))
	}))
	defer srv.Close()

	loader := NewLoader(srv.Client(), time.Minute)
	for i := 0; i < 3; i++ {
		ds, err := loader.Load(context.Background(), srv.URL)
		require.NoError(t, err)
		assert.Equal(t, 3, ds.Len())
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestLoaderRefetchesAfterTTL(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Write([]byte(sampleCSV))
	}))
	defer srv.Close()

	loader := NewLoader(srv.Client(), 50*time.Millisecond)
	_, err := loader.Load(context.Background(), srv.URL)
	require.NoError(t, err)

	time.Sleep(120 * time.Millisecond)
	_, err = loader.Load(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
}

func TestLoaderSharedFetchSurvivesCancelledCaller(t *testing.T) {
	var hits int32
	started := make(chan struct{})
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) == 1 {
			close(started)
		}
		<-release
		w.Write([]byte(sampleCSV))
	}))
	defer srv.Close()

	loader := NewLoader(srv.Client(), time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := loader.Load(ctx, srv.URL)
		firstErr <- err
	}()
	<-started
	cancel()
	assert.ErrorIs(t, <-firstErr, context.Canceled)

	second := make(chan error, 1)
	go func() {
		ds, err := loader.Load(context.Background(), srv.URL)
		if err == nil && ds.Len() != 3 {
			err = errors.New("unexpected dataset size")
		}
		second <- err
	}()
	// let the second caller join the in-flight fetch before it completes
	time.Sleep(50 * time.Millisecond)
	close(release)

	require.NoError(t, <-second)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestRecoveryPotentialIsFinite(t *testing.T) {
	ds, err := Parse(strings.NewReader(sampleCSV))
	require.NoError(t, err)
	for _, r := range ds.Records {
		assert.False(t, math.IsInf(r.Features.RecoveryPotential, 0))
	}
}
