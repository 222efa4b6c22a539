package ml

import (
	"errors"
	"math"
	"testing"
)

func TestEncodeYesNo(t *testing.T) {
	tests := []struct {
		input string
		want  int
	}{
		{"Ya", 1},
		{"Tidak", 0},
		{"", 0},
		{"ya", 0},
		{"Yes", 0},
	}
	for _, tt := range tests {
		if got := EncodeYesNo(tt.input); got != tt.want {
			t.Errorf("EncodeYesNo(%q) = %d, want %d", tt.input, got, tt.want)
		}
	}
}

func TestEncodeSex(t *testing.T) {
	tests := []struct {
		input string
		want  int
	}{
		{"Laki-laki", 1},
		{"Perempuan", 0},
		{"male", 0},
		{"", 0},
	}
	for _, tt := range tests {
		if got := EncodeSex(tt.input); got != tt.want {
			t.Errorf("EncodeSex(%q) = %d, want %d", tt.input, got, tt.want)
		}
	}
}

func TestRecoveryPotential(t *testing.T) {
	// 100/200 + 1/100 + 60/30 = 2.51
	got, err := RecoveryPotential(100, 200, 1, 100, 60, 30)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := 1 / 2.51
	if math.Abs(got-want) > 1e-12 {
		t.Fatalf("expected %f, got %f", want, got)
	}
}

func TestRecoveryPotentialFormDefaults(t *testing.T) {
	m := DefaultMeasurements()
	got, err := RecoveryPotential(m.CreatininePhosphokinase, m.Platelets, m.SerumCreatinine, m.SerumSodium, m.Age, m.EjectionFraction)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	severity := 23.0/25100.0 + 0.1/100.0 + 35.0/10.0
	if math.Abs(got-1/severity) > 1e-12 {
		t.Fatalf("expected %f, got %f", 1/severity, got)
	}
}

func TestRecoveryPotentialZeroDivisor(t *testing.T) {
	cases := [][6]float64{
		{100, 0, 1, 100, 60, 30},
		{100, 200, 1, 0, 60, 30},
		{100, 200, 1, 100, 60, 0},
		{0, 200, 0, 100, 0, 30},
	}
	for _, c := range cases {
		_, err := RecoveryPotential(c[0], c[1], c[2], c[3], c[4], c[5])
		if !errors.Is(err, ErrZeroDivisor) {
			t.Errorf("inputs %v: expected ErrZeroDivisor, got %v", c, err)
		}
	}
}

func TestBuildFeatures(t *testing.T) {
	m := Measurements{
		Age:                     60,
		Anemia:                  "Ya",
		CreatininePhosphokinase: 100,
		Diabetes:                "Tidak",
		EjectionFraction:        30,
		HighBloodPressure:       "Ya",
		Platelets:               200,
		SerumCreatinine:         1,
		SerumSodium:             100,
		Sex:                     "Perempuan",
		Smoking:                 "unknown",
		Time:                    12,
	}
	features, err := BuildFeatures(m)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	vector := FeatureVector(features)
	if len(vector) != len(FeatureNames()) {
		t.Fatalf("vector has %d values, names has %d", len(vector), len(FeatureNames()))
	}
	want := []float64{60, 1, 100, 0, 30, 1, 200, 1, 100, 0, 0, 12}
	for i, v := range want {
		if vector[i] != v {
			t.Errorf("%s: expected %v, got %v", FeatureNames()[i], v, vector[i])
		}
	}
	if math.Abs(vector[12]-1/2.51) > 1e-12 {
		t.Errorf("recovery_potential: got %v", vector[12])
	}
}

func TestResultLabel(t *testing.T) {
	if got := ResultLabel(0); got != "Sehat" {
		t.Fatalf("unexpected label for 0: %q", got)
	}
	for _, class := range []int{1, 2, -1} {
		if got := ResultLabel(class); got != "Indikasi gagal jantung" {
			t.Fatalf("unexpected label for %d: %q", class, got)
		}
	}
}
