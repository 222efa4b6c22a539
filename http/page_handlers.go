package http

import (
	"bytes"
	_ "embed"
	"errors"
	"html/template"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"heartfail/apperr"
	"heartfail/classify"
	"heartfail/dataset"
	"heartfail/logger"
	"heartfail/ml"
	"heartfail/report"
)

const (
	pageTitle = "Prediksi Gagal Jantung"
	pageIntro = "Penyakit Cardiovascular (CVD) merupakan penyebab kematian nomor 1 di dunia. " +
		"Sekitar 17,9 juta jiwa atau 31% kematian disebabkan oleh CVD. " +
		"Gagal jantung merupakan kejadian yang umum disebabkan oleh penyakit kardiovaskular. " +
		"Mayoritas penyakit kardiovaskular dapat dicegah dengan mengatasi faktor-faktor penyebab, " +
		"seperti rokok, pola makan yang tidak sehat, aktivitas fisik yang kurang, dan konsumsi alkohol. " +
		"Sehingga prediksi gagal jantung perlu dilakukan untuk menghindari risiko yang lebih parah"
)

//go:embed templates/index.html
var indexHTML string

var pageTemplate = template.Must(template.New("index").Parse(indexHTML))

// formField describes one sidebar widget. Bounds follow ml.Measurements'
// validate tags.
type formField struct {
	Name    string
	Label   string
	Kind    string
	Min     string
	Max     string
	Step    string
	Value   string
	Options []string
}

type datasetView struct {
	Columns []string
	Rows    [][]string
	Shown   int
	Total   int
}

type pageData struct {
	Title        string
	Intro        string
	Fields       []formField
	FieldErrors  map[string]string
	ModelError   string
	Error        string
	ShowDataset  bool
	Dataset      *datasetView
	DatasetError string
	Report       *report.Report
	Result       *classify.Result
}

var yesNo = []string{ml.AnswerYes, ml.AnswerNo}

func formFields(m ml.Measurements) []formField {
	return []formField{
		{Name: "age", Label: "Age", Kind: "number", Min: "35", Step: "1", Value: formatNumber(m.Age)},
		{Name: "anemia", Label: "Menderita Anemia", Kind: "radio", Value: m.Anemia, Options: yesNo},
		{Name: "creatinine_phosphokinase", Label: "Kadar enzim CPK dalam darah (mcg/L)", Kind: "range", Min: "1", Max: "8000", Step: "1", Value: formatNumber(m.CreatininePhosphokinase)},
		{Name: "diabetes", Label: "Menderita Diabetes", Kind: "radio", Value: m.Diabetes, Options: yesNo},
		{Name: "ejection_fraction", Label: "Persentase darah yang meninggalkan jantung pada setiap kontraksi", Kind: "range", Min: "1", Max: "100", Step: "1", Value: formatNumber(m.EjectionFraction)},
		{Name: "high_blood_pressure", Label: "Menderita Hipertensi", Kind: "radio", Value: m.HighBloodPressure, Options: yesNo},
		{Name: "platelets", Label: "Trombosit dalam darah (kiloplatelet/mL)", Kind: "range", Min: "1", Max: "850000", Step: "0.01", Value: formatNumber(m.Platelets)},
		{Name: "serum_creatinine", Label: "Kadar kreatinin serum dalam darah (mg/dL)", Kind: "range", Min: "0", Max: "10", Step: "0.01", Value: formatNumber(m.SerumCreatinine)},
		{Name: "serum_sodium", Label: "Kadar sodium serum dalam darah (mEq/L)", Kind: "range", Min: "0", Max: "150", Step: "0.1", Value: formatNumber(m.SerumSodium)},
		{Name: "sex", Label: "Jenis Kelamin", Kind: "radio", Value: m.Sex, Options: []string{ml.SexMale, ml.SexFemale}},
		{Name: "smoking", Label: "Perokok", Kind: "radio", Value: m.Smoking, Options: yesNo},
		{Name: "time", Label: "Periode tindak lanjut", Kind: "range", Min: "1", Max: "300", Step: "1", Value: formatNumber(m.Time)},
	}
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func RegisterPageHandlers(mux *http.ServeMux) {
	handle(mux, http.MethodGet, "/", handleIndex)
	handle(mux, http.MethodPost, "/classify", handleClassifyForm)
}

// handleIndex re-renders the form and report for the values in the query
// string, like the widget rerun of the form.
func handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		respondError(w, apperr.NotFound("page not found"))
		return
	}
	query := r.URL.Query()
	m, err := parseMeasurements(query)
	data := newPageData(m, query)
	var status int
	if err != nil {
		status = applyError(&data, err)
	} else {
		status = fillReport(r, &data, m)
	}
	fillDataset(r, &data)
	renderPage(w, status, data)
}

func handleClassifyForm(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		respondError(w, apperr.BadRequest("invalid form body", err))
		return
	}
	m, err := parseMeasurements(r.PostForm)
	data := newPageData(m, r.PostForm)
	status := http.StatusOK

	switch {
	case err != nil:
		status = applyError(&data, err)
	default:
		status = fillReport(r, &data, m)
		if status != http.StatusOK {
			break
		}
		svc, err := currentClassifier()
		if err == nil {
			var result *classify.Result
			result, err = svc.Classify(r.Context(), m)
			data.Result = result
		}
		if err != nil {
			logRequestError(r, "classification failed", err)
			status = applyError(&data, err)
		}
	}
	fillDataset(r, &data)
	renderPage(w, status, data)
}

func newPageData(m ml.Measurements, values url.Values) pageData {
	data := pageData{
		Title:       pageTitle,
		Intro:       pageIntro,
		Fields:      formFields(m),
		FieldErrors: map[string]string{},
		ShowDataset: values.Get("show_dataset") != "",
	}
	if !modelLoaded() {
		data.ModelError = apperr.ModelUnavailable(nil).Message
	}
	return data
}

func fillReport(r *http.Request, data *pageData, m ml.Measurements) int {
	svc, err := currentClassifier()
	if err != nil {
		return applyError(data, err)
	}
	rep, err := svc.Report(m)
	if err != nil {
		return applyError(data, err)
	}
	data.Report = &rep
	return http.StatusOK
}

// applyError puts field errors next to their widgets and everything else in
// the banner. The model banner is already shown, so it is not repeated.
func applyError(data *pageData, err error) int {
	appErr := apperr.From(err)
	for field, msg := range appErr.Details {
		data.FieldErrors[field] = msg
	}
	if appErr.Code != apperr.CodeModelMissing || data.ModelError == "" {
		data.Error = appErr.Message
	}
	return appErr.StatusCode
}

func fillDataset(r *http.Request, data *pageData) {
	if !data.ShowDataset {
		return
	}
	source := currentDatasets()
	if source == nil {
		data.DatasetError = "dataset not configured"
		return
	}
	ds, err := source.Dataset(r.Context())
	if err != nil {
		logRequestError(r, "loading dataset", err)
		data.DatasetError = "dataset unavailable"
		return
	}
	data.Dataset = newDatasetView(ds, defaultPageSize())
}

func newDatasetView(ds *dataset.Dataset, limit int) *datasetView {
	records := ds.Page(0, limit)
	columns := append(ml.FeatureNames(), dataset.LabelColumn)
	rows := make([][]string, len(records))
	for i, record := range records {
		row := make([]string, 0, len(columns))
		for _, v := range ml.FeatureVector(record.Features) {
			row = append(row, formatNumber(v))
		}
		if record.HasLabel {
			row = append(row, strconv.Itoa(record.Label))
		} else {
			row = append(row, "")
		}
		rows[i] = row
	}
	return &datasetView{Columns: columns, Rows: rows, Shown: len(records), Total: ds.Len()}
}

// parseMeasurements starts from the form defaults and overrides each field
// present in values. Unparseable numbers are reported per field.
func parseMeasurements(values url.Values) (ml.Measurements, error) {
	m := ml.DefaultMeasurements()
	numbers := map[string]*float64{
		"age":                      &m.Age,
		"creatinine_phosphokinase": &m.CreatininePhosphokinase,
		"ejection_fraction":        &m.EjectionFraction,
		"platelets":                &m.Platelets,
		"serum_creatinine":         &m.SerumCreatinine,
		"serum_sodium":             &m.SerumSodium,
		"time":                     &m.Time,
	}
	choices := map[string]*string{
		"anemia":              &m.Anemia,
		"diabetes":            &m.Diabetes,
		"high_blood_pressure": &m.HighBloodPressure,
		"sex":                 &m.Sex,
		"smoking":             &m.Smoking,
	}

	var invalid *apperr.AppError
	for name, dst := range numbers {
		raw := strings.TrimSpace(values.Get(name))
		if raw == "" {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			if invalid == nil {
				invalid = apperr.Validation("invalid measurements")
			}
			invalid.WithDetail(name, "must be a number")
			continue
		}
		*dst = v
	}
	for name, dst := range choices {
		if raw, ok := values[name]; ok && len(raw) > 0 {
			*dst = raw[0]
		}
	}
	if invalid != nil {
		return m, invalid
	}
	return m, nil
}

func renderPage(w http.ResponseWriter, status int, data pageData) {
	var buf bytes.Buffer
	if err := pageTemplate.Execute(&buf, data); err != nil {
		logger.Log.Error("rendering page", zap.Error(err))
		respondError(w, apperr.Internal(errors.New("rendering page")))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}
