// Package provenance describes a fusion run as a CycloneDX BOM: the fusion
// model with its model card, one data component per sensing modality and the
// digest of the exported grid.
package provenance

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	cdx "github.com/CycloneDX/cyclonedx-go"
	"github.com/google/uuid"

	"github.com/idlab-discover/anomalyfusion-cli/internal/grid"
	"github.com/idlab-discover/anomalyfusion-cli/internal/logging"
	"github.com/idlab-discover/anomalyfusion-cli/internal/sensor"
)

const (
	DefaultToolVendor = "idlab-discover"
	DefaultToolName   = "anomalyfusion-cli"

	ModelName = "multi-sensor-anomaly-fusion"
	modelRef  = "model:" + ModelName
)

// Options tune BOM construction.
type Options struct {
	ToolName    string
	ToolVersion string

	// Build is recorded on the tool component; zero means CurrentBuild.
	Build BuildStamp

	// Threshold overrides the anomaly threshold recorded on the grid.
	Threshold float64
}

// DatasetRef is the BOM reference of a modality's data component.
func DatasetRef(m sensor.Modality) string { return "modality:" + m.String() }

// GridRef is the BOM reference of the exported grid component.
func GridRef(runID string) string { return "fusion-grid:" + runID }

// Build describes g as a BOM.
func Build(g *grid.Grid, opts Options) (*cdx.BOM, error) {
	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("provenance: %w", err)
	}
	threshold := opts.Threshold
	if threshold <= 0 {
		threshold = g.Methodology.AnomalyThreshold
	}
	summary := grid.Summarize(g, threshold)
	digest, err := Digest(g)
	if err != nil {
		return nil, err
	}
	logf(g.RunID, "build bom (threshold %.2f, digest %s)", threshold, digest[:12])

	bom := cdx.NewBOM()
	bom.SerialNumber = "urn:uuid:" + serial(g.RunID)
	bom.Metadata = &cdx.Metadata{
		Timestamp: timestamp(g.CreatedAt),
		Component: modelComponent(g, summary),
	}
	addTool(bom, opts)

	components := make([]cdx.Component, 0, len(g.Availability)+1)
	for _, a := range g.Availability {
		components = append(components, modalityComponent(a))
	}
	components = append(components, gridComponent(g, digest))
	bom.Components = &components

	bom.Properties = &[]cdx.Property{
		{Name: "anomalyfusion:run-id", Value: g.RunID},
		{Name: "anomalyfusion:center", Value: g.Center.String()},
		{Name: "anomalyfusion:radius-m", Value: formatFloat(g.RadiusMeters)},
		{Name: "anomalyfusion:grid", Value: fmt.Sprintf("%dx%d", g.Rows, g.Cols)},
		{Name: "anomalyfusion:digest", Value: DigestAlgorithm + ":" + digest},
	}

	logkv(g.RunID, "bom ok", logging.F("components", len(components)))
	return bom, nil
}

func serial(runID string) string {
	if _, err := uuid.Parse(runID); err == nil {
		return runID
	}
	return uuid.NewString()
}

func timestamp(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.Format(time.RFC3339)
}

func addTool(bom *cdx.BOM, opts Options) {
	name := opts.ToolName
	if name == "" {
		name = DefaultToolName
	}
	stamp := opts.Build
	if stamp == (BuildStamp{}) {
		stamp = CurrentBuild()
	}
	version := opts.ToolVersion
	if version == "" {
		version = stamp.String()
	}
	tool := cdx.Component{
		Type:         cdx.ComponentTypeApplication,
		Manufacturer: &cdx.OrganizationalEntity{Name: DefaultToolVendor},
		Name:         name,
		Version:      version,
	}
	if props := stamp.properties(); len(props) > 0 {
		tool.Properties = &props
	}
	bom.Metadata.Tools = &cdx.ToolsChoice{Components: &[]cdx.Component{tool}}
}

func modelComponent(g *grid.Grid, s grid.Summary) *cdx.Component {
	var datasets []cdx.MLDatasetChoice
	for _, a := range g.Availability {
		if a.Used() {
			datasets = append(datasets, cdx.MLDatasetChoice{Ref: DatasetRef(a.Modality)})
		}
	}

	params := &cdx.MLModelParameters{
		Approach:           &cdx.MLModelParametersApproach{Type: cdx.MLModelParametersApproachType("unsupervised")},
		Task:               "anomaly-detection",
		ArchitectureFamily: "weighted likelihood-ratio fusion",
		ModelArchitecture:  "normalized weighted log-odds pooling with agreement bonus",
		Inputs:             &[]cdx.MLInputOutputParameters{{Format: "per-modality raw measurement grid"}},
		Outputs:            &[]cdx.MLInputOutputParameters{{Format: "fused anomaly probability grid"}},
	}
	if len(datasets) > 0 {
		params.Datasets = &datasets
	}

	metrics := []cdx.MLPerformanceMetric{
		{Type: "max-probability", Value: formatFloat(s.MaxProbability)},
		{Type: "mean-probability", Value: formatFloat(s.MeanProbability)},
		{Type: "anomalies-above-threshold", Value: strconv.Itoa(s.AboveThreshold), Slice: "threshold=" + formatFloat(s.Threshold)},
		{Type: "anomaly-ratio", Value: formatFloat(s.AnomalyRatio)},
		{Type: "sensor-coverage", Value: formatFloat(s.Quality.Coverage), Slice: "confidence=" + string(s.Quality.Confidence)},
	}

	limitations := []string{s.Quality.Recommendation}
	for _, a := range g.Availability {
		switch a.Status {
		case grid.StatusUnavailable:
			limitations = append(limitations, fmt.Sprintf("%s unavailable: %s", a.Modality, a.Reason))
		case grid.StatusPartial:
			limitations = append(limitations, fmt.Sprintf("%s covered %d of %d cells", a.Modality, a.CellsCovered, len(g.Cells)))
		}
	}
	useCases := []string{"Prioritising archaeological survey and excavation targets"}

	return &cdx.Component{
		BOMRef:      modelRef,
		Type:        cdx.ComponentTypeMachineLearningModel,
		Name:        ModelName,
		Description: "Fuses independent SAR, thermal, seismic, gravity and magnetic anomaly scores into one probability per grid cell",
		ModelCard: &cdx.MLModelCard{
			ModelParameters:      params,
			QuantitativeAnalysis: &cdx.MLQuantitativeAnalysis{PerformanceMetrics: &metrics},
			Considerations: &cdx.MLModelCardConsiderations{
				UseCases:             &useCases,
				TechnicalLimitations: &limitations,
			},
		},
		Properties: methodologyProperties(g.Methodology),
	}
}

func methodologyProperties(m grid.Methodology) *[]cdx.Property {
	var props []cdx.Property
	for _, mod := range sensor.All() {
		if w, ok := m.Weights[mod]; ok {
			props = append(props, cdx.Property{Name: "fusion:weight:" + mod.String(), Value: formatFloat(w)})
		}
	}
	tiers := append([]grid.AgreementTier(nil), m.AgreementTiers...)
	sort.Slice(tiers, func(i, j int) bool { return tiers[i].Count > tiers[j].Count })
	for _, t := range tiers {
		props = append(props, cdx.Property{Name: "fusion:agreement-tier:" + strconv.Itoa(t.Count), Value: formatFloat(t.Bonus)})
	}
	props = append(props,
		cdx.Property{Name: "fusion:agreement-threshold", Value: formatFloat(m.AgreementThreshold)},
		cdx.Property{Name: "fusion:anomaly-threshold", Value: formatFloat(m.AnomalyThreshold)},
	)
	return &props
}

func modalityComponent(a grid.Availability) cdx.Component {
	props := []cdx.Property{
		{Name: "sensor:status", Value: string(a.Status)},
		{Name: "sensor:cells-covered", Value: strconv.Itoa(a.CellsCovered)},
		{Name: "sensor:weight", Value: formatFloat(a.Weight)},
		{Name: "sensor:baseline", Value: formatFloat(a.Baseline) + " " + a.Modality.Unit()},
		{Name: "sensor:unit", Value: a.Modality.Unit()},
	}
	if a.Source != "" {
		props = append(props, cdx.Property{Name: "sensor:source", Value: a.Source})
	}
	if a.Reason != "" {
		props = append(props, cdx.Property{Name: "sensor:reason", Value: a.Reason})
	}
	return cdx.Component{
		BOMRef: DatasetRef(a.Modality),
		Type:   cdx.ComponentTypeData,
		Name:   a.Modality.String(),
		Data: &[]cdx.ComponentData{{
			Type: cdx.ComponentDataTypeDataset,
			Name: a.Modality.Label(),
		}},
		Properties: &props,
	}
}

func gridComponent(g *grid.Grid, digest string) cdx.Component {
	return cdx.Component{
		BOMRef:  GridRef(g.RunID),
		Type:    cdx.ComponentTypeData,
		Name:    "fusion-grid",
		Version: g.RunID,
		Hashes:  &[]cdx.Hash{{Algorithm: cdx.HashAlgoBlake2b_256, Value: digest}},
		Data: &[]cdx.ComponentData{{
			Type: cdx.ComponentDataTypeDataset,
			Name: fmt.Sprintf("%dx%d fused probability grid", g.Rows, g.Cols),
		}},
		Properties: &[]cdx.Property{
			{Name: "grid:bounds", Value: fmt.Sprintf("N%.5f S%.5f E%.5f W%.5f", g.Bounds.North, g.Bounds.South, g.Bounds.East, g.Bounds.West)},
		},
	}
}

func formatFloat(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
