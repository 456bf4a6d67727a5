package history

import (
	"github.com/google/cel-go/cel"
	"github.com/pkg/errors"

	"github.com/binods1313/MutationMechanic-sub000/store"
)

// Filter is a compiled CEL expression over history record fields, e.g.
//
//	gene == "BRCA1" && pathogenicityScore >= 20.0
//	"Lynch syndrome" in diseaseAssociations
type Filter struct {
	expr    string
	program cel.Program
}

var filterEnv *cel.Env

func init() {
	env, err := cel.NewEnv(
		cel.Variable("id", cel.StringType),
		cel.Variable("gene", cel.StringType),
		cel.Variable("variant", cel.StringType),
		cel.Variable("timestamp", cel.IntType),
		cel.Variable("riskLevel", cel.StringType),
		cel.Variable("pathogenicityScore", cel.DoubleType),
		cel.Variable("pathogenicityLabel", cel.StringType),
		cel.Variable("confidence", cel.DoubleType),
		cel.Variable("diseaseAssociations", cel.ListType(cel.StringType)),
		cel.Variable("therapies", cel.ListType(cel.StringType)),
		cel.Variable("analysisType", cel.StringType),
		cel.Variable("variantType", cel.StringType),
		cel.Variable("position", cel.IntType),
		cel.Variable("archived", cel.BoolType),
	)
	if err != nil {
		panic(err)
	}
	filterEnv = env
}

// CompileFilter parses and type-checks expr. The expression must evaluate to a bool.
func CompileFilter(expr string) (*Filter, error) {
	ast, issues := filterEnv.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, errors.Wrapf(issues.Err(), "invalid filter %q", expr)
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, errors.Errorf("filter %q must evaluate to a bool, got %s", expr, ast.OutputType())
	}
	program, err := filterEnv.Program(ast)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to build filter %q", expr)
	}
	return &Filter{expr: expr, program: program}, nil
}

// Match evaluates the filter against record.
func (f *Filter) Match(record *store.HistoryRecord) (bool, error) {
	var position int64
	if record.Position != nil {
		position = *record.Position
	}
	out, _, err := f.program.Eval(map[string]any{
		"id":                  record.ID,
		"gene":                record.Gene,
		"variant":             record.Variant,
		"timestamp":           record.Timestamp,
		"riskLevel":           string(record.RiskLevel),
		"pathogenicityScore":  record.PathogenicityScore,
		"pathogenicityLabel":  string(record.PathogenicityLabel),
		"confidence":          record.Confidence,
		"diseaseAssociations": orEmpty(record.DiseaseAssociations),
		"therapies":           orEmpty(record.Therapies),
		"analysisType":        string(record.Type),
		"variantType":         string(record.VariantType),
		"position":            position,
		"archived":            record.Archived,
	})
	if err != nil {
		return false, errors.Wrapf(err, "failed to evaluate filter %q", f.expr)
	}
	matched, ok := out.Value().(bool)
	if !ok {
		return false, errors.Errorf("filter %q returned %T", f.expr, out.Value())
	}
	return matched, nil
}

// String returns the source expression.
func (f *Filter) String() string {
	return f.expr
}
