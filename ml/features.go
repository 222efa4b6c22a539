package ml

import (
	"errors"
	"math"
)

const (
	AnswerYes     = "Ya"
	AnswerNo      = "Tidak"
	SexMale       = "Laki-laki"
	SexFemale     = "Perempuan"
	ResultHealthy = "Sehat"
	ResultFailure = "Indikasi gagal jantung"
)

var ErrZeroDivisor = errors.New("recovery potential: zero divisor")

// Measurements holds the raw values entered in the form. Categorical answers
// stay as the literal radio strings until BuildFeatures encodes them.
type Measurements struct {
	Age                     float64 `json:"age" validate:"gte=35"`
	Anemia                  string  `json:"anemia"`
	CreatininePhosphokinase float64 `json:"creatinine_phosphokinase" validate:"gte=1,lte=8000"`
	Diabetes                string  `json:"diabetes"`
	EjectionFraction        float64 `json:"ejection_fraction" validate:"gte=1,lte=100"`
	HighBloodPressure       string  `json:"high_blood_pressure"`
	Platelets               float64 `json:"platelets" validate:"gte=1,lte=850000"`
	SerumCreatinine         float64 `json:"serum_creatinine" validate:"gte=0,lte=10"`
	SerumSodium             float64 `json:"serum_sodium" validate:"gt=0,lte=150"`
	Sex                     string  `json:"sex"`
	Smoking                 string  `json:"smoking"`
	Time                    float64 `json:"time" validate:"gte=1,lte=300"`
}

// DefaultMeasurements mirrors the initial state of the form widgets.
func DefaultMeasurements() Measurements {
	return Measurements{
		Age:                     35,
		Anemia:                  AnswerYes,
		CreatininePhosphokinase: 23,
		Diabetes:                AnswerYes,
		EjectionFraction:        10,
		HighBloodPressure:       AnswerYes,
		Platelets:               25100,
		SerumCreatinine:         0.1,
		SerumSodium:             100,
		Sex:                     SexMale,
		Smoking:                 AnswerYes,
		Time:                    1,
	}
}

type ClinicalFeatures struct {
	Age                     float64 `json:"age"`
	Anemia                  float64 `json:"anemia"`
	CreatininePhosphokinase float64 `json:"creatinine_phosphokinase"`
	Diabetes                float64 `json:"diabetes"`
	EjectionFraction        float64 `json:"ejection_fraction"`
	HighBloodPressure       float64 `json:"high_blood_pressure"`
	Platelets               float64 `json:"platelets"`
	SerumCreatinine         float64 `json:"serum_creatinine"`
	SerumSodium             float64 `json:"serum_sodium"`
	Sex                     float64 `json:"sex"`
	Smoking                 float64 `json:"smoking"`
	Time                    float64 `json:"time"`
	RecoveryPotential       float64 `json:"recovery_potential"`
}

func EncodeYesNo(answer string) int {
	switch answer {
	case AnswerYes:
		return 1
	case AnswerNo:
		return 0
	default:
		return 0
	}
}

func EncodeSex(sex string) int {
	switch sex {
	case SexMale:
		return 1
	case SexFemale:
		return 0
	default:
		return 0
	}
}

// RecoveryPotential is the inverse of a severity score built from three ratios:
// CPK over platelets, serum creatinine over serum sodium and age over ejection fraction.
func RecoveryPotential(cpk, platelets, serumCreatinine, serumSodium, age, ejectionFraction float64) (float64, error) {
	if platelets == 0 || serumSodium == 0 || ejectionFraction == 0 {
		return 0, ErrZeroDivisor
	}
	severity := cpk / platelets
	severity += serumCreatinine / serumSodium
	severity += age / ejectionFraction
	if severity == 0 || math.IsNaN(severity) || math.IsInf(severity, 0) {
		return 0, ErrZeroDivisor
	}
	return 1 / severity, nil
}

func BuildFeatures(m Measurements) (ClinicalFeatures, error) {
	recovery, err := RecoveryPotential(m.CreatininePhosphokinase, m.Platelets, m.SerumCreatinine, m.SerumSodium, m.Age, m.EjectionFraction)
	if err != nil {
		return ClinicalFeatures{}, err
	}
	return ClinicalFeatures{
		Age:                     m.Age,
		Anemia:                  float64(EncodeYesNo(m.Anemia)),
		CreatininePhosphokinase: m.CreatininePhosphokinase,
		Diabetes:                float64(EncodeYesNo(m.Diabetes)),
		EjectionFraction:        m.EjectionFraction,
		HighBloodPressure:       float64(EncodeYesNo(m.HighBloodPressure)),
		Platelets:               m.Platelets,
		SerumCreatinine:         m.SerumCreatinine,
		SerumSodium:             m.SerumSodium,
		Sex:                     float64(EncodeSex(m.Sex)),
		Smoking:                 float64(EncodeYesNo(m.Smoking)),
		Time:                    m.Time,
		RecoveryPotential:       recovery,
	}, nil
}

func FeatureVector(f ClinicalFeatures) []float64 {
	return []float64{
		f.Age,
		f.Anemia,
		f.CreatininePhosphokinase,
		f.Diabetes,
		f.EjectionFraction,
		f.HighBloodPressure,
		f.Platelets,
		f.SerumCreatinine,
		f.SerumSodium,
		f.Sex,
		f.Smoking,
		f.Time,
		f.RecoveryPotential,
	}
}

// FeatureNames returns the column order the model was trained on.
func FeatureNames() []string {
	return []string{
		"age",
		"anemia",
		"creatinine_phosphokinase",
		"diabetes",
		"ejection_fraction",
		"high_blood_pressure",
		"platelets",
		"serum_creatinine",
		"serum_sodium",
		"sex",
		"smoking",
		"time",
		"recovery_potential",
	}
}

func ResultLabel(class int) string {
	if class == 0 {
		return ResultHealthy
	}
	return ResultFailure
}
