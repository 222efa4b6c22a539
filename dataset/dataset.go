// Package dataset loads the reference heart-failure CSV used for the
// "Show Dataset" view, scaler fitting and offline training.
package dataset

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"

	"heartfail/ml"
)

const LabelColumn = "DEATH_EVENT"

var ErrMissingColumn = errors.New("dataset: missing column")

var columnAliases = map[string]string{
	"anaemia": "anemia",
}

// Record is one patient row. Categorical columns are already 0/1 encoded in
// the CSV, so they land directly in the feature row.
type Record struct {
	Features ml.ClinicalFeatures `json:"features"`
	Label    int                 `json:"death_event"`
	HasLabel bool                `json:"-"`
}

type Dataset struct {
	Source  string   `json:"source"`
	Columns []string `json:"columns"`
	Records []Record `json:"records"`
}

func Parse(r io.Reader) (*Dataset, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	index := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
		if alias, ok := columnAliases[name]; ok {
			name = alias
		}
		index[name] = i
	}

	raw := ml.FeatureNames()[:12]
	for _, name := range raw {
		if _, ok := index[name]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingColumn, name)
		}
	}
	recoveryIdx, hasRecovery := index["recovery_potential"]
	labelIdx, hasLabel := index[LabelColumn]

	ds := &Dataset{Columns: header}
	line := 1
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		values := make([]float64, len(raw))
		for i, name := range raw {
			v, err := parseFloat(row[index[name]])
			if err != nil {
				return nil, fmt.Errorf("line %d column %s: %w", line, name, err)
			}
			values[i] = v
		}
		features := ml.ClinicalFeatures{
			Age:                     values[0],
			Anemia:                  values[1],
			CreatininePhosphokinase: values[2],
			Diabetes:                values[3],
			EjectionFraction:        values[4],
			HighBloodPressure:       values[5],
			Platelets:               values[6],
			SerumCreatinine:         values[7],
			SerumSodium:             values[8],
			Sex:                     values[9],
			Smoking:                 values[10],
			Time:                    values[11],
		}
		if hasRecovery {
			if features.RecoveryPotential, err = parseFloat(row[recoveryIdx]); err != nil {
				return nil, fmt.Errorf("line %d column recovery_potential: %w", line, err)
			}
		} else {
			features.RecoveryPotential, err = ml.RecoveryPotential(features.CreatininePhosphokinase, features.Platelets,
				features.SerumCreatinine, features.SerumSodium, features.Age, features.EjectionFraction)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
		}

		record := Record{Features: features}
		if hasLabel {
			label, err := parseFloat(row[labelIdx])
			if err != nil {
				return nil, fmt.Errorf("line %d column %s: %w", line, LabelColumn, err)
			}
			record.Label = int(label)
			record.HasLabel = true
		}
		ds.Records = append(ds.Records, record)
	}
	return ds, nil
}

func parseFloat(s string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}

// Fetch reads the CSV from an http(s) URL or, for anything else, a local path.
func Fetch(ctx context.Context, client *http.Client, source string) (*Dataset, error) {
	var body io.ReadCloser
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		if client == nil {
			client = http.DefaultClient
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
		if err != nil {
			return nil, err
		}
		resp, err := client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("fetch dataset: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, fmt.Errorf("fetch dataset: unexpected status %s", resp.Status)
		}
		body = resp.Body
	} else {
		file, err := os.Open(source)
		if err != nil {
			return nil, fmt.Errorf("open dataset: %w", err)
		}
		body = file
	}
	defer body.Close()

	ds, err := Parse(body)
	if err != nil {
		return nil, err
	}
	ds.Source = source
	return ds, nil
}

func (d *Dataset) Len() int {
	return len(d.Records)
}

func (d *Dataset) Page(offset, limit int) []Record {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(d.Records) || limit <= 0 {
		return []Record{}
	}
	// compare against the remainder so offset+limit cannot overflow
	if remaining := len(d.Records) - offset; limit > remaining {
		limit = remaining
	}
	return d.Records[offset : offset+limit]
}

func (d *Dataset) FeatureMatrix() [][]float64 {
	rows := make([][]float64, len(d.Records))
	for i, record := range d.Records {
		rows[i] = ml.FeatureVector(record.Features)
	}
	return rows
}

func (d *Dataset) Labels() ([]int, error) {
	labels := make([]int, len(d.Records))
	for i, record := range d.Records {
		if !record.HasLabel {
			return nil, fmt.Errorf("%w: %s", ErrMissingColumn, LabelColumn)
		}
		labels[i] = record.Label
	}
	return labels, nil
}
