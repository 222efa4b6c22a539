// Package report renders the thirteen-field feature row as a labelled table
// with locale-aware number formatting.
package report

import (
	"math"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"heartfail/ml"
)

type Row struct {
	Key     string  `json:"key"`
	Label   string  `json:"label"`
	Value   float64 `json:"value"`
	Display string  `json:"display"`
}

type Report struct {
	Locale string `json:"locale"`
	Rows   []Row  `json:"rows"`
}

type column struct {
	labelID string
	labelEN string
	format  string
}

var columns = map[string]column{
	"age":                      {"Age", "Age", "%d"},
	"anemia":                   {"Menderita Anemia", "Anaemia", "%d"},
	"creatinine_phosphokinase": {"Kadar enzim CPK dalam darah (mcg/L)", "CPK enzyme level (mcg/L)", "%d"},
	"diabetes":                 {"Menderita Diabetes", "Diabetes", "%d"},
	"ejection_fraction":        {"Persentase darah yang meninggalkan jantung pada setiap kontraksi", "Ejection fraction (%)", "%d"},
	"high_blood_pressure":      {"Menderita Hipertensi", "Hypertension", "%d"},
	"platelets":                {"Trombosit dalam darah (kiloplatelet/mL)", "Platelets (kiloplatelets/mL)", "%.2f"},
	"serum_creatinine":         {"Kadar kreatinin serum dalam darah (mg/dL)", "Serum creatinine (mg/dL)", "%.2f"},
	"serum_sodium":             {"Kadar sodium serum dalam darah (mEq/L)", "Serum sodium (mEq/L)", "%.1f"},
	"sex":                      {"Jenis Kelamin", "Sex", "%d"},
	"smoking":                  {"Perokok", "Smoking", "%d"},
	"time":                     {"Periode tindak lanjut", "Follow-up period", "%d"},
	"recovery_potential":       {"Potensi pemulihan", "Recovery potential", "%.4f"},
}

func tagFor(locale string) language.Tag {
	if locale == "en" {
		return language.English
	}
	return language.Indonesian
}

func Build(features ml.ClinicalFeatures, locale string) Report {
	if locale != "en" {
		locale = "id"
	}
	printer := message.NewPrinter(tagFor(locale))
	names := ml.FeatureNames()
	values := ml.FeatureVector(features)

	rows := make([]Row, len(names))
	for i, name := range names {
		col := columns[name]
		label := col.labelID
		if locale == "en" {
			label = col.labelEN
		}
		var display string
		if col.format == "%d" {
			// Value keeps the exact input; only the display is rounded.
			display = printer.Sprintf(col.format, int64(math.Round(values[i])))
		} else {
			display = printer.Sprintf(col.format, values[i])
		}
		rows[i] = Row{Key: name, Label: label, Value: values[i], Display: display}
	}
	return Report{Locale: locale, Rows: rows}
}
