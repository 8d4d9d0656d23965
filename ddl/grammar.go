package ddl

import (
	"strings"

	"github.com/alecthomas/participle/v2/lexer"
)

// file is a sequence of statements separated by semicolons.
type file struct {
	Statements []*statement `parser:"( @@ | ';' )*"`
}

// statement is one of the supported DDL statements. Anything else is
// captured as raw tokens and ignored.
type statement struct {
	Pos lexer.Position

	CreateTable *createTable `parser:"  @@"`
	CreateIndex *createIndex `parser:"| @@"`
	AlterTable  *alterTable  `parser:"| @@"`
	Ignored     []string     `parser:"| @( Ident | QuotedIdent | String | DollarString | Number | Op | Punct | Char )+"`
}

type createTable struct {
	Pos lexer.Position

	Name     *qualifiedName  `parser:"'CREATE' ( 'GLOBAL' | 'LOCAL' )? ( 'TEMP' | 'TEMPORARY' | 'UNLOGGED' )? 'TABLE' ( 'IF' 'NOT' 'EXISTS' )? @@"`
	Elements []*tableElement `parser:"'(' @@ ( ',' @@ )* ')'"`
	Options  []string        `parser:"@( Ident | QuotedIdent | String | Number | Op | Punct | Char )*"`
}

type createIndex struct {
	Pos lexer.Position

	Unique  bool           `parser:"'CREATE' @'UNIQUE'? ( 'CLUSTERED' | 'NONCLUSTERED' )? 'INDEX' 'CONCURRENTLY'? ( 'IF' 'NOT' 'EXISTS' )?"`
	Name    *qualifiedName `parser:"@@"`
	Table   *qualifiedName `parser:"'ON' 'ONLY'? @@"`
	Using   string         `parser:"( 'USING' @Ident )?"`
	Columns *keyColumns    `parser:"@@"`
	Rest    []string       `parser:"@( Ident | QuotedIdent | String | Number | Op | Punct | Char )*"`
}

type alterTable struct {
	Pos lexer.Position

	Table   *qualifiedName     `parser:"'ALTER' 'TABLE' ( 'IF' 'EXISTS' )? 'ONLY'? @@"`
	Add     []*tableConstraint `parser:"(   'ADD' @@ ( ',' 'ADD' @@ )*"`
	Ignored []string           `parser:"  | @( Ident | QuotedIdent | String | DollarString | Number | Op | Punct | Char )+ )"`
	Rest    []string           `parser:"@( Ident | QuotedIdent | String | Number | Op | Punct | Char )*"`
}

type qualifiedName struct {
	Parts []string `parser:"@( Ident | QuotedIdent ) ( '.' @( Ident | QuotedIdent ) )*"`
}

// Name returns the unqualified object name.
func (q *qualifiedName) Name() string {
	return q.Parts[len(q.Parts)-1]
}

// Namespace returns the schema qualifier, if any.
func (q *qualifiedName) Namespace() string {
	if len(q.Parts) < 2 {
		return ""
	}

	return q.Parts[len(q.Parts)-2]
}

// tableElement tries the constraint form first so that PRIMARY KEY (...)
// is not read as a column called "primary".
type tableElement struct {
	Constraint *tableConstraint `parser:"  @@"`
	Column     *columnDef       `parser:"| @@"`
}

type columnDef struct {
	Name        string              `parser:"@( Ident | QuotedIdent )"`
	Type        *dataType           `parser:"@@"`
	Constraints []*columnConstraint `parser:"@@*"`
}

type dataType struct {
	Name      string   `parser:"@( Ident | QuotedIdent )"`
	Words     []string `parser:"@( 'PRECISION' | 'VARYING' )*"`
	Args      []string `parser:"( '(' @( Number | Ident | String ) ( ',' @( Number | Ident | String ) )* ')' )?"`
	Modifiers []string `parser:"@( 'UNSIGNED' | 'SIGNED' | 'ZEROFILL' | 'WITH' | 'WITHOUT' | 'TIME' | 'ZONE' | 'LOCAL' )*"`
	Array     bool     `parser:"@( '[' ']' )*"`
}

func (d *dataType) String() string {
	var b strings.Builder

	b.WriteString(strings.ToLower(strings.Join(append([]string{d.Name}, d.Words...), " ")))

	if len(d.Args) > 0 {
		b.WriteString("(")
		b.WriteString(strings.Join(d.Args, ","))
		b.WriteString(")")
	}

	for _, m := range d.Modifiers {
		b.WriteString(" ")
		b.WriteString(strings.ToLower(m))
	}

	if d.Array {
		b.WriteString("[]")
	}

	return b.String()
}

type columnConstraint struct {
	Name string `parser:"( 'CONSTRAINT' @( Ident | QuotedIdent ) )?"`

	NotNull       bool              `parser:"(   @( 'NOT' 'NULL' )"`
	Null          bool              `parser:"  | @'NULL'"`
	PrimaryKey    bool              `parser:"  | @( 'PRIMARY' 'KEY' ) ( 'ASC' | 'DESC' )?"`
	Unique        bool              `parser:"  | @( 'UNIQUE' 'KEY'? )"`
	AutoIncrement bool              `parser:"  | @( 'AUTO_INCREMENT' | 'AUTOINCREMENT' )"`
	Default       *value            `parser:"  | 'DEFAULT' @@"`
	References    *referencesClause `parser:"  | @@"`
	Check         *parens           `parser:"  | 'CHECK' @@"`
	Collate       string            `parser:"  | 'COLLATE' @( Ident | QuotedIdent | String )"`
	Charset       string            `parser:"  | ( 'CHARACTER' 'SET' | 'CHARSET' ) @( Ident | String )"`
	Comment       string            `parser:"  | 'COMMENT' @String"`
	OnUpdate      *value            `parser:"  | 'ON' 'UPDATE' @@"`
	Generated     *generatedClause  `parser:"  | @@"`
	Identity      *identityClause   `parser:"  | @@"`
	Deferral      []string          `parser:"  | @( 'NOT'? 'DEFERRABLE' | 'INITIALLY' ( 'DEFERRED' | 'IMMEDIATE' ) ) )"`
}

type generatedClause struct {
	Identity bool    `parser:"'GENERATED' ( 'ALWAYS' | 'BY' 'DEFAULT' ) 'AS' ( @'IDENTITY'"`
	Options  *parens `parser:"  @@?"`
	Expr     *parens `parser:"| @@ ( 'STORED' | 'VIRTUAL' )? )"`
}

type identityClause struct {
	Keyword bool    `parser:"@'IDENTITY'"`
	Seed    *parens `parser:"@@?"`
}

type tableConstraint struct {
	Name string `parser:"( 'CONSTRAINT' @( Ident | QuotedIdent ) )?"`

	PrimaryKey *keyColumns       `parser:"(   'PRIMARY' 'KEY' ( 'CLUSTERED' | 'NONCLUSTERED' )? @@"`
	ForeignKey *foreignKeyClause `parser:"  | 'FOREIGN' 'KEY' @@"`
	Unique     *indexClause      `parser:"  | 'UNIQUE' ( 'KEY' | 'INDEX' )? @@"`
	Index      *indexClause      `parser:"  | ( 'FULLTEXT' | 'SPATIAL' )? ( 'KEY' | 'INDEX' ) @@"`
	Check      *parens           `parser:"  | 'CHECK' @@ )"`
	Deferral   []string          `parser:"@( 'NOT'? 'DEFERRABLE' | 'INITIALLY' ( 'DEFERRED' | 'IMMEDIATE' ) | 'NOT' 'VALID' )*"`
}

type foreignKeyClause struct {
	Name       string            `parser:"@( Ident | QuotedIdent )?"`
	Columns    *keyColumns       `parser:"@@"`
	References *referencesClause `parser:"@@"`
}

type indexClause struct {
	Name    string      `parser:"@( Ident | QuotedIdent )?"`
	Using   string      `parser:"( 'USING' @Ident )?"`
	Columns *keyColumns `parser:"@@"`
}

type keyColumns struct {
	Columns []*keyColumn `parser:"'(' @@ ( ',' @@ )* ')'"`
}

// Names returns the plain column names.
func (k *keyColumns) Names() []string {
	names := make([]string, len(k.Columns))
	for i, c := range k.Columns {
		names[i] = c.Name
	}

	return names
}

// keyColumn is an entry of a key or index column list. Args holds a MySQL
// prefix length or, for expression indexes, the call arguments.
type keyColumn struct {
	Name    string   `parser:"@( Ident | QuotedIdent )"`
	Args    *parens  `parser:"@@?"`
	Options []string `parser:"@( Ident | QuotedIdent | String )*"`
}

type referencesClause struct {
	Table   *qualifiedName       `parser:"'REFERENCES' @@"`
	Columns []string             `parser:"( '(' @( Ident | QuotedIdent ) ( ',' @( Ident | QuotedIdent ) )* ')' )?"`
	Match   string               `parser:"( 'MATCH' @( 'FULL' | 'PARTIAL' | 'SIMPLE' ) )?"`
	Actions []*referentialAction `parser:"@@*"`
}

type referentialAction struct {
	Event  string `parser:"'ON' @( 'DELETE' | 'UPDATE' )"`
	Action string `parser:"@( 'CASCADE' | 'RESTRICT' | 'SET' 'NULL' | 'SET' 'DEFAULT' | 'NO' 'ACTION' )"`
}

// value is a DEFAULT or ON UPDATE expression: a literal, identifier, or call,
// optionally followed by Postgres casts.
type value struct {
	Nested *parens  `parser:"(   @@"`
	Sign   string   `parser:"  | @( '-' | '+' )?"`
	Token  string   `parser:"    @( String | Number | Ident ) )"`
	Call   *parens  `parser:"@@?"`
	Casts  []string `parser:"( '::' @Ident ( 'VARYING' | 'PRECISION' )? ( '[' ']' )? )*"`
}

func (v *value) String() string {
	var b strings.Builder

	if v.Nested != nil {
		b.WriteString(v.Nested.String())
	} else {
		b.WriteString(v.Sign)
		b.WriteString(v.Token)
	}

	if v.Call != nil {
		b.WriteString(v.Call.String())
	}

	for _, c := range v.Casts {
		b.WriteString("::")
		b.WriteString(c)
	}

	return b.String()
}

// parens is a balanced parenthesised token group whose contents are kept as
// text.
type parens struct {
	Items []*parenItem `parser:"'(' @@* ')'"`
}

type parenItem struct {
	Nested *parens `parser:"  @@"`
	Token  string  `parser:"| @( Ident | QuotedIdent | String | Number | Op | Char | ',' | '.' | '=' | '[' | ']' )"`
}

func (p *parens) String() string {
	var b strings.Builder

	b.WriteString("(")

	for i, it := range p.Items {
		if i > 0 && spaceBetween(p.Items[i-1], it) {
			b.WriteString(" ")
		}

		b.WriteString(it.String())
	}

	b.WriteString(")")

	return b.String()
}

func (it *parenItem) String() string {
	if it.Nested != nil {
		return it.Nested.String()
	}

	return it.Token
}

func spaceBetween(prev, next *parenItem) bool {
	switch next.Token {
	case ",", ".", "::", "]", "[":
		return false
	}

	switch prev.Token {
	case ".", "::", "[":
		return false
	}

	// f(x) is a call, not two terms.
	return next.Nested == nil || prev.Nested != nil
}
