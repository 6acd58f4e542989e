package queryir

// Query represents a query in the IR. Sealed: only Select implements it.
type Query interface {
	queryNode()
}

// Predicate represents a filter condition. Sealed to this package.
type Predicate interface {
	predicateNode()
}

// Column is one selected expression.
//
// Table and Field describe a plain column reference ("Table"."Field").
// Expr replaces them with a raw expression whose ? placeholders are
// filled from Args, in order.
type Column struct {
	Table string
	Field string
	Expr  string
	Args  []any
	Alias string
}

// JoinKind selects the SQL join operator.
type JoinKind int

const (
	// LeftJoin keeps rows of the source with no match.
	LeftJoin JoinKind = iota
	// InnerJoin drops rows of the source with no match.
	InnerJoin
)

func (k JoinKind) String() string {
	if k == InnerJoin {
		return "INNER JOIN"
	}
	return "LEFT JOIN"
}

// Join adds a table to the query's source.
type Join struct {
	Kind  JoinKind
	Table string
	On    Predicate
}

// Order is one sort key. Table may be empty for aliases or unqualified fields.
type Order struct {
	Table string
	Field string
	Desc  bool
}

// Select represents:
//
//	SELECT <columns> FROM <from> <joins> WHERE <where>
//	GROUP BY <group_by> ORDER BY <order_by> LIMIT <limit> OFFSET <offset>
//
// Limit 0 means no limit. Count wraps the whole select in COUNT(*).
type Select struct {
	Columns  []Column
	From     string
	Joins    []Join
	Where    Predicate
	GroupBy  []Column
	OrderBy  []Order
	Limit    int
	Offset   int
	Distinct bool
	Count    bool
}

func (Select) queryNode() {}

// AddColumn appends a column.
func (s *Select) AddColumn(c Column) {
	s.Columns = append(s.Columns, c)
}

// AddJoin appends a join unless one for the same table already exists.
func (s *Select) AddJoin(j Join) {
	for _, existing := range s.Joins {
		if existing.Table == j.Table {
			return
		}
	}
	s.Joins = append(s.Joins, j)
}

// AddWhere conjoins p with the existing filter.
func (s *Select) AddWhere(p Predicate) {
	if p == nil {
		return
	}
	if s.Where == nil {
		s.Where = p
		return
	}
	if and, ok := s.Where.(And); ok {
		s.Where = And{Predicates: append(append([]Predicate{}, and.Predicates...), p)}
		return
	}
	s.Where = And{Predicates: []Predicate{s.Where, p}}
}

// HasColumn reports whether a column with the given output name is selected.
func (s *Select) HasColumn(name string) bool {
	for _, c := range s.Columns {
		if c.Alias == name || (c.Alias == "" && c.Field == name) {
			return true
		}
	}
	return false
}

// Equals represents "Table"."Field" = ?.
type Equals struct {
	Table string
	Field string
	Value any
}

func (Equals) predicateNode() {}

// ColumnEquals compares two columns: "LeftTable"."LeftField" = "RightTable"."RightField".
type ColumnEquals struct {
	LeftTable  string
	LeftField  string
	RightTable string
	RightField string
}

func (ColumnEquals) predicateNode() {}

// In represents "Table"."Field" IN (?, ?, ...).
// An empty Values list matches nothing.
type In struct {
	Table  string
	Field  string
	Values []any
}

func (In) predicateNode() {}

// Raw is caller-written SQL. Placeholders in SQL are filled from Args.
type Raw struct {
	SQL  string
	Args []any
}

func (Raw) predicateNode() {}

// And is a conjunction. Empty means always true.
type And struct {
	Predicates []Predicate
}

func (And) predicateNode() {}

// Or is a disjunction. Empty means always false.
type Or struct {
	Predicates []Predicate
}

func (Or) predicateNode() {}
