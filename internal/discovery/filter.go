package discovery

// Filter is the portable metadata filter contract (spec §4.6 "Filter
// model"): `{key: value}` collapses to equality, `{key: {$op: value}}`
// applies a comparison operator, and `$and`/`$or` combine sub-filters. List
// values auto-expand to `$in`. Adapters translate a Filter to their backend's
// native filter object; the translation is compositional and total (spec §9
// "Dict -> native-filter translation": "Keep the translator pure and total").
type Filter map[string]any

// Op is one of the supported comparison operators.
type Op string

const (
	OpEq  Op = "$eq"
	OpNe  Op = "$ne"
	OpGt  Op = "$gt"
	OpGte Op = "$gte"
	OpLt  Op = "$lt"
	OpLte Op = "$lte"
	OpIn  Op = "$in"
)

const (
	keyAnd = "$and"
	keyOr  = "$or"
)

// Condition is one decomposed leaf or boolean node of a Filter, produced by
// Walk for adapters that want a flat, typed representation instead of
// re-parsing the map themselves.
type Condition struct {
	// Leaf fields; Key is empty for And/Or nodes.
	Key   string
	Op    Op
	Value any

	// Boolean nodes.
	And []Condition
	Or  []Condition
}

// IsBoolean reports whether c is an $and/$or combinator rather than a leaf.
func (c Condition) IsBoolean() bool {
	return len(c.And) > 0 || len(c.Or) > 0
}

// Walk decomposes a Filter into a Condition tree. It is pure and total: any
// map shape the Filter type allows is translated without error, because an
// unrecognized single-key map collapses to an equality leaf.
func Walk(f Filter) Condition {
	if len(f) == 0 {
		return Condition{}
	}
	if and, ok := f[keyAnd]; ok {
		return Condition{And: walkList(and)}
	}
	if or, ok := f[keyOr]; ok {
		return Condition{Or: walkList(or)}
	}

	// Multiple keys at the top level implicitly AND together.
	if len(f) > 1 {
		conds := make([]Condition, 0, len(f))
		for k, v := range f {
			conds = append(conds, leafCondition(k, v))
		}
		return Condition{And: conds}
	}

	for k, v := range f {
		return leafCondition(k, v)
	}
	return Condition{}
}

func walkList(raw any) []Condition {
	var out []Condition
	switch list := raw.(type) {
	case []Filter:
		for _, f := range list {
			out = append(out, Walk(f))
		}
	case []any:
		for _, item := range list {
			if m, ok := item.(map[string]any); ok {
				out = append(out, Walk(Filter(m)))
			} else if f, ok := item.(Filter); ok {
				out = append(out, Walk(f))
			}
		}
	}
	return out
}

// leafCondition builds a single {key: value} or {key: {$op: value}} leaf.
// A list value auto-expands to $in (spec §4.6).
func leafCondition(key string, value any) Condition {
	if opMap, ok := value.(map[string]any); ok && len(opMap) == 1 {
		for opKey, opVal := range opMap {
			if op, ok := asOp(opKey); ok {
				return Condition{Key: key, Op: normalizeOpValue(op, opVal), Value: opVal}
			}
		}
	}
	if isListValue(value) {
		return Condition{Key: key, Op: OpIn, Value: value}
	}
	return Condition{Key: key, Op: OpEq, Value: value}
}

// normalizeOpValue exists only to give leafCondition a single return
// expression; list values under an explicit $in still pass through.
func normalizeOpValue(op Op, _ any) Op { return op }

func asOp(s string) (Op, bool) {
	switch Op(s) {
	case OpEq, OpNe, OpGt, OpGte, OpLt, OpLte, OpIn:
		return Op(s), true
	default:
		return "", false
	}
}

func isListValue(v any) bool {
	switch v.(type) {
	case []string, []int, []float64, []any:
		return true
	default:
		return false
	}
}
