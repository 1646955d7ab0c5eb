package types

// Operator names a comparison in the abstract criteria language.
type Operator string

const (
	OpEq         Operator = "eq"
	OpNe         Operator = "ne"
	OpLt         Operator = "lt"
	OpLte        Operator = "lte"
	OpGt         Operator = "gt"
	OpGte        Operator = "gte"
	OpIn         Operator = "in"
	OpNin        Operator = "nin"
	OpLike       Operator = "like"
	OpContains   Operator = "contains"
	OpStartsWith Operator = "startsWith"
	OpEndsWith   Operator = "endsWith"
	OpExists     Operator = "exists"
)

// Operators lists every supported comparison operator.
var Operators = []Operator{
	OpEq, OpNe, OpLt, OpLte, OpGt, OpGte, OpIn, OpNin,
	OpLike, OpContains, OpStartsWith, OpEndsWith, OpExists,
}

// Valid reports whether o is a known operator.
func (o Operator) Valid() bool {
	for _, op := range Operators {
		if op == o {
			return true
		}
	}
	return false
}

// Node is a where-clause tree node. The set of implementations is closed:
// Comparison, And, Or and Not.
type Node interface {
	whereNode()
}

// Comparison tests a single field against a value.
type Comparison struct {
	Field string
	Op    Operator
	Value any
}

// And matches when every child matches.
type And struct {
	Nodes []Node
}

// Or matches when at least one child matches.
type Or struct {
	Nodes []Node
}

// Not inverts its child.
type Not struct {
	Node Node
}

func (Comparison) whereNode() {}
func (And) whereNode()        {}
func (Or) whereNode()         {}
func (Not) whereNode()        {}

// Eq is shorthand for an equality comparison.
func Eq(field string, value any) Comparison {
	return Comparison{Field: field, Op: OpEq, Value: value}
}

// Cmp builds a comparison with an arbitrary operator.
func Cmp(field string, op Operator, value any) Comparison {
	return Comparison{Field: field, Op: op, Value: value}
}

// SortClause orders results by one field.
type SortClause struct {
	Field      string
	Descending bool
}

// Criteria is the ORM's query description for a single model.
//
// Skip and Limit are optional; nil means not set. Select is accepted but has
// no effect on results.
type Criteria struct {
	Where  Node
	Sort   []SortClause
	Skip   *int
	Limit  *int
	Select []string
}

// WithoutSelect returns a copy of c with the projection removed.
func (c Criteria) WithoutSelect() Criteria {
	c.Select = nil
	return c
}

// Where returns criteria holding only a where clause.
func Where(node Node) Criteria {
	return Criteria{Where: node}
}

// IntPtr returns a pointer to n. Handy for Skip and Limit literals.
func IntPtr(n int) *int {
	return &n
}
