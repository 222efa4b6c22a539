package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"heartfail/ml"
)

var measurements = ml.DefaultMeasurements()

var classifyCmd = &cobra.Command{
	Use:   "classify",
	Short: "Classify one set of measurements and print the result as JSON",
	Long: `classify runs the same pipeline as the form's Classify button once.
Flags default to the initial form values. --input reads a JSON object with the
same field names as POST /api/predict; flags given explicitly override it.`,
	RunE: runClassify,
}

var inputPath string

func init() {
	f := classifyCmd.Flags()
	f.StringVar(&inputPath, "input", "", "JSON file with measurements (- for stdin)")
	f.Float64Var(&measurements.Age, "age", measurements.Age, "Age in years (>= 35)")
	f.StringVar(&measurements.Anemia, "anemia", measurements.Anemia, "Menderita Anemia (Ya/Tidak)")
	f.Float64Var(&measurements.CreatininePhosphokinase, "cpk", measurements.CreatininePhosphokinase, "CPK enzyme level, mcg/L (1-8000)")
	f.StringVar(&measurements.Diabetes, "diabetes", measurements.Diabetes, "Menderita Diabetes (Ya/Tidak)")
	f.Float64Var(&measurements.EjectionFraction, "ejection-fraction", measurements.EjectionFraction, "Ejection fraction percent (1-100)")
	f.StringVar(&measurements.HighBloodPressure, "hypertension", measurements.HighBloodPressure, "Menderita Hipertensi (Ya/Tidak)")
	f.Float64Var(&measurements.Platelets, "platelets", measurements.Platelets, "Platelets, kiloplatelets/mL (1-850000)")
	f.Float64Var(&measurements.SerumCreatinine, "serum-creatinine", measurements.SerumCreatinine, "Serum creatinine, mg/dL (0-10)")
	f.Float64Var(&measurements.SerumSodium, "serum-sodium", measurements.SerumSodium, "Serum sodium, mEq/L (0-150, not 0)")
	f.StringVar(&measurements.Sex, "sex", measurements.Sex, "Jenis Kelamin (Laki-laki/Perempuan)")
	f.StringVar(&measurements.Smoking, "smoking", measurements.Smoking, "Perokok (Ya/Tidak)")
	f.Float64Var(&measurements.Time, "time", measurements.Time, "Follow-up period in days (1-300)")
}

func runClassify(cmd *cobra.Command, args []string) error {
	m, err := readMeasurements(cmd)
	if err != nil {
		return err
	}

	svc, err := bootstrap(cmd.Context(), cfg, false)
	if err != nil {
		return err
	}
	result, err := svc.service.Classify(cmd.Context(), m)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// readMeasurements layers explicitly set flags over the --input document.
func readMeasurements(cmd *cobra.Command) (ml.Measurements, error) {
	if inputPath == "" {
		return measurements, nil
	}
	var data []byte
	var err error
	if inputPath == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(inputPath)
	}
	if err != nil {
		return ml.Measurements{}, fmt.Errorf("read input: %w", err)
	}

	m := ml.DefaultMeasurements()
	if err := json.Unmarshal(data, &m); err != nil {
		return ml.Measurements{}, fmt.Errorf("decode input: %w", err)
	}
	overrides := map[string]func(){
		"age":               func() { m.Age = measurements.Age },
		"anemia":            func() { m.Anemia = measurements.Anemia },
		"cpk":               func() { m.CreatininePhosphokinase = measurements.CreatininePhosphokinase },
		"diabetes":          func() { m.Diabetes = measurements.Diabetes },
		"ejection-fraction": func() { m.EjectionFraction = measurements.EjectionFraction },
		"hypertension":      func() { m.HighBloodPressure = measurements.HighBloodPressure },
		"platelets":         func() { m.Platelets = measurements.Platelets },
		"serum-creatinine":  func() { m.SerumCreatinine = measurements.SerumCreatinine },
		"serum-sodium":      func() { m.SerumSodium = measurements.SerumSodium },
		"sex":               func() { m.Sex = measurements.Sex },
		"smoking":           func() { m.Smoking = measurements.Smoking },
		"time":              func() { m.Time = measurements.Time },
	}
	for name, apply := range overrides {
		if cmd.Flags().Changed(name) {
			apply()
		}
	}
	return m, nil
}
