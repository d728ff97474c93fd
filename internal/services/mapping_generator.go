package services

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"

	"multi-org-integration-platform/internal/config"
	"multi-org-integration-platform/internal/logger"
	"multi-org-integration-platform/internal/models"

	"gopkg.in/yaml.v2"
)

//go:embed schema_aliases.yaml
var schemaAliasesYAML []byte

const (
	defaultConfidenceThreshold = 0.70
	defaultMaxMappings         = 20
	reverseCrossSchemaPenalty  = 0.9
)

// AliasTable lists a schema's canonical fields in declaration order with their aliases
type AliasTable struct {
	Fields  []string
	Aliases map[string][]string
}

type crossSchemaEntry struct {
	Source     string  `yaml:"source"`
	Target     string  `yaml:"target"`
	Confidence float64 `yaml:"confidence"`
}

type aliasCatalogFile struct {
	Schemas     map[string]yaml.MapSlice      `yaml:"schemas"`
	CrossSchema map[string][]crossSchemaEntry `yaml:"cross_schema"`
}

type aliasCatalog struct {
	schemas     map[string]AliasTable
	crossSchema map[string][]crossSchemaEntry
}

// MappingGenerator proposes ranked field mappings between two schemas
type MappingGenerator struct {
	logger      *logger.Logger
	scorer      *SimilarityScorer
	catalog     *aliasCatalog
	catalogErr  error
	threshold   float64
	maxMappings int
}

// NewMappingGenerator creates a mapping generator backed by the built-in alias catalog
func NewMappingGenerator(logger *logger.Logger, cfg *config.Config, scorer *SimilarityScorer) *MappingGenerator {
	return newMappingGenerator(logger, scorer, schemaAliasesYAML, cfg.Sync.MappingConfidenceThreshold, cfg.Sync.MaxSuggestedMappings)
}

func newMappingGenerator(logger *logger.Logger, scorer *SimilarityScorer, catalogData []byte, threshold float64, maxMappings int) *MappingGenerator {
	if threshold <= 0 {
		threshold = defaultConfidenceThreshold
	}
	if maxMappings <= 0 {
		maxMappings = defaultMaxMappings
	}

	catalog, err := parseAliasCatalog(catalogData)
	if err != nil {
		logger.WithError(err).Error("Failed to load schema alias catalog")
	}

	return &MappingGenerator{
		logger:      logger,
		scorer:      scorer,
		catalog:     catalog,
		catalogErr:  err,
		threshold:   threshold,
		maxMappings: maxMappings,
	}
}

func parseAliasCatalog(data []byte) (*aliasCatalog, error) {
	var file aliasCatalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse alias catalog: %w", err)
	}

	catalog := &aliasCatalog{
		schemas:     make(map[string]AliasTable, len(file.Schemas)),
		crossSchema: file.CrossSchema,
	}

	for schema, entries := range file.Schemas {
		table := AliasTable{Aliases: make(map[string][]string, len(entries))}
		for _, item := range entries {
			field, ok := item.Key.(string)
			if !ok {
				return nil, fmt.Errorf("schema %s: field name %v is not a string", schema, item.Key)
			}
			var aliases []string
			if list, ok := item.Value.([]interface{}); ok {
				for _, alias := range list {
					aliases = append(aliases, fmt.Sprint(alias))
				}
			}
			table.Fields = append(table.Fields, field)
			table.Aliases[field] = aliases
		}
		catalog.schemas[schema] = table
	}

	return catalog, nil
}

// AliasTable returns the alias table of a schema; unknown schemas yield an empty table
func (g *MappingGenerator) AliasTable(schema string) AliasTable {
	if g.catalog == nil {
		return AliasTable{}
	}
	return g.catalog.schemas[schema]
}

// Generate proposes mappings from sourceSchema to targetSchema, sorted by
// descending confidence. It never fails: internal errors yield the fallback mappings.
func (g *MappingGenerator) Generate(sourceSchema, targetSchema string) (mappings []models.FieldMapping) {
	defer func() {
		if r := recover(); r != nil {
			mappings = g.fallback(sourceSchema, targetSchema, fmt.Errorf("panic: %v", r))
		}
	}()

	if g.catalogErr != nil {
		return g.fallback(sourceSchema, targetSchema, g.catalogErr)
	}

	source := g.AliasTable(sourceSchema)
	target := g.AliasTable(targetSchema)

	candidates := make([]models.FieldMapping, 0)
	seen := make(map[string]int)
	add := func(m models.FieldMapping) {
		key := m.SourceField + "\x00" + m.TargetField
		if idx, ok := seen[key]; ok {
			if m.Confidence > candidates[idx].Confidence {
				candidates[idx].Confidence = m.Confidence
			}
			return
		}
		seen[key] = len(candidates)
		candidates = append(candidates, m)
	}

	for _, sourceField := range source.Fields {
		for _, targetField := range target.Fields {
			confidence := g.scorer.Score(sourceField, targetField, source.Aliases[sourceField], target.Aliases[targetField])
			if confidence > g.threshold {
				add(models.FieldMapping{
					SourceField:        sourceField,
					TargetField:        targetField,
					TransformationRule: SuggestTransformationRule(sourceField, targetField),
					Confidence:         confidence,
				})
			}
		}
	}

	if sourceSchema != targetSchema {
		for _, m := range g.crossSchemaMappings(sourceSchema, targetSchema) {
			add(m)
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Confidence > candidates[j].Confidence
	})

	if len(candidates) > g.maxMappings {
		candidates = candidates[:g.maxMappings]
	}
	for i := range candidates {
		candidates[i].Position = i
	}

	g.logger.WithField("source_schema", sourceSchema).
		WithField("target_schema", targetSchema).
		WithField("mappings", len(candidates)).
		Debug("Generated field mappings")

	return candidates
}

// crossSchemaMappings returns the well-known correspondences between two schemas,
// deriving them from the reverse direction when only that one is declared
func (g *MappingGenerator) crossSchemaMappings(sourceSchema, targetSchema string) []models.FieldMapping {
	var result []models.FieldMapping

	if entries, ok := g.catalog.crossSchema[sourceSchema+"->"+targetSchema]; ok {
		for _, e := range entries {
			result = append(result, models.FieldMapping{
				SourceField:        e.Source,
				TargetField:        e.Target,
				TransformationRule: SuggestTransformationRule(e.Source, e.Target),
				Confidence:         roundConfidence(e.Confidence),
			})
		}
		return result
	}

	if entries, ok := g.catalog.crossSchema[targetSchema+"->"+sourceSchema]; ok {
		for _, e := range entries {
			result = append(result, models.FieldMapping{
				SourceField:        e.Target,
				TargetField:        e.Source,
				TransformationRule: SuggestTransformationRule(e.Target, e.Source),
				Confidence:         roundConfidence(e.Confidence * reverseCrossSchemaPenalty),
			})
		}
	}

	return result
}

func (g *MappingGenerator) fallback(sourceSchema, targetSchema string, cause error) []models.FieldMapping {
	err := &MappingError{SourceSchema: sourceSchema, TargetSchema: targetSchema, Err: cause}
	g.logger.WithError(err).Warn("Falling back to static field mappings")
	return FallbackMappings()
}

// FallbackMappings returns the identifier and display name passthrough mappings
func FallbackMappings() []models.FieldMapping {
	return []models.FieldMapping{
		{SourceField: "Id", TargetField: "Id", TransformationRule: models.TransformDirect, Confidence: 0.9, Position: 0},
		{SourceField: "Name", TargetField: "Name", TransformationRule: models.TransformName, Confidence: 0.8, Position: 1},
	}
}

// SuggestTransformationRule picks a transformation rule from the field names
func SuggestTransformationRule(sourceField, targetField string) models.TransformationRule {
	source := strings.ToLower(sourceField)
	target := strings.ToLower(targetField)
	both := func(token string) bool {
		return strings.Contains(source, token) && strings.Contains(target, token)
	}

	switch {
	case both("phone"):
		return models.TransformPhone
	case both("email"):
		return models.TransformEmail
	case both("date"):
		return models.TransformDate
	case strings.Contains(source, "amount") || strings.Contains(source, "revenue"):
		return models.TransformCurrency
	case both("name"):
		return models.TransformName
	}
	return models.TransformDirect
}
