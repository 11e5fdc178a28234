package sign

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// ParseReferenceRow reads one exported training row: a label followed by
// FeatureLength numeric fields. Missing, unparsable or non-finite fields
// become 0 so the row keeps the fixed feature layout; extra fields are ignored.
func ParseReferenceRow(fields []string) ReferenceSample {
	sample := ReferenceSample{Features: make(FeatureVector, FeatureLength)}
	if len(fields) == 0 {
		return sample
	}

	sample.Label = strings.TrimSpace(fields[0])
	for i, raw := range fields[1:] {
		if i >= FeatureLength {
			break
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		sample.Features[i] = v
	}
	return sample
}

// ReadReferenceCSV reads a training export. A first row whose first column
// is "label" is treated as a header. Rows with a blank label are skipped
// and counted.
func ReadReferenceCSV(r io.Reader) (samples []ReferenceSample, skipped int, err error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	for line := 1; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, skipped, fmt.Errorf("read reference row %d: %w", line, err)
		}

		if line == 1 && len(record) > 0 && strings.EqualFold(strings.TrimSpace(record[0]), "label") {
			continue
		}

		sample := ParseReferenceRow(record)
		if sample.Label == "" {
			skipped++
			continue
		}
		samples = append(samples, sample)
	}

	return samples, skipped, nil
}

// WriteReferenceCSV writes samples in the layout ReadReferenceCSV expects.
func WriteReferenceCSV(w io.Writer, samples []ReferenceSample) error {
	writer := csv.NewWriter(w)

	header := make([]string, 0, FeatureLength+1)
	header = append(header, "label")
	for hand := 0; hand < MaxHands; hand++ {
		for lm := 0; lm < HandFeatures/3; lm++ {
			for _, axis := range []string{"x", "y", "z"} {
				header = append(header, fmt.Sprintf("h%d_%s%d", hand, axis, lm))
			}
		}
	}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, s := range samples {
		row := make([]string, 0, FeatureLength+1)
		row = append(row, s.Label)
		for i := 0; i < FeatureLength; i++ {
			v := 0.0
			if i < len(s.Features) {
				v = s.Features[i]
			}
			row = append(row, strconv.FormatFloat(v, 'g', -1, 64))
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}
