package annotation

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/binods1313/MutationMechanic-sub000/store/cache"
)

// CacheKeyPrefix namespaces annotation bundles in the tiered cache.
const CacheKeyPrefix = "genomic_ctx_"

// Annotation sources. Each names a field of the bundle.
const (
	SourceFrequency    = "frequency"
	SourceConservation = "conservation"
	SourceImpact       = "impact"
	SourceOrthologs    = "orthologs"
	SourceRegulatory   = "regulatory"
	SourceClinical     = "clinicalSignificance"
)

// Sources lists every annotation source in bundle order.
var Sources = []string{
	SourceFrequency, SourceConservation, SourceImpact,
	SourceOrthologs, SourceRegulatory, SourceClinical,
}

// SourceMetadata is the provenance of one dataset.
type SourceMetadata struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	URL     string `json:"url"`
}

// Manifest is the fixed provenance attached to every bundle.
var Manifest = map[string]SourceMetadata{
	SourceFrequency:    {Name: "gnomAD", Version: "4.1", URL: "https://gnomad.broadinstitute.org"},
	SourceConservation: {Name: "UCSC phyloP 100-way", Version: "hg38", URL: "https://genome.ucsc.edu"},
	SourceImpact:       {Name: "Ensembl VEP", Version: "112", URL: "https://www.ensembl.org/vep"},
	SourceOrthologs:    {Name: "Ensembl Compara", Version: "112", URL: "https://www.ensembl.org/info/genome/compara"},
	SourceRegulatory:   {Name: "ENCODE SCREEN", Version: "4", URL: "https://screen.encodeproject.org"},
	SourceClinical:     {Name: "ClinVar", Version: "2024-05", URL: "https://www.ncbi.nlm.nih.gov/clinvar"},
}

// Query identifies the variant to annotate.
type Query struct {
	Gene        string   `json:"gene"`
	Variant     string   `json:"variant"`
	Identifiers []string `json:"identifiers,omitempty"`
}

// CacheKey is deterministic in gene, variant and the set of identifiers.
func (q *Query) CacheKey() string {
	ids := append([]string(nil), q.Identifiers...)
	for i := range ids {
		ids[i] = strings.ToLower(strings.TrimSpace(ids[i]))
	}
	sort.Strings(ids)
	return cache.GenerateCacheKey(CacheKeyPrefix, q.Gene, q.Variant, strings.Join(ids, ","))
}

// Bundle is the merged annotation of one variant.
// Provider payloads are kept as the provider returned them.
type Bundle struct {
	Gene                 string                    `json:"gene"`
	Variant              string                    `json:"variant"`
	Identifiers          []string                  `json:"identifiers,omitempty"`
	Frequency            json.RawMessage           `json:"frequency,omitempty"`
	Conservation         json.RawMessage           `json:"conservation,omitempty"`
	Impact               json.RawMessage           `json:"impact,omitempty"`
	Orthologs            json.RawMessage           `json:"orthologs,omitempty"`
	Regulatory           json.RawMessage           `json:"regulatory,omitempty"`
	ClinicalSignificance json.RawMessage           `json:"clinicalSignificance,omitempty"`
	Metadata             map[string]SourceMetadata `json:"metadata"`
	Missing              []string                  `json:"missing,omitempty"`
	FetchedAt            int64                     `json:"fetchedAt"`
}

func (b *Bundle) set(source string, data json.RawMessage) {
	switch source {
	case SourceFrequency:
		b.Frequency = data
	case SourceConservation:
		b.Conservation = data
	case SourceImpact:
		b.Impact = data
	case SourceOrthologs:
		b.Orthologs = data
	case SourceRegulatory:
		b.Regulatory = data
	case SourceClinical:
		b.ClinicalSignificance = data
	}
}

func manifest() map[string]SourceMetadata {
	m := make(map[string]SourceMetadata, len(Manifest))
	for k, v := range Manifest {
		m[k] = v
	}
	return m
}
