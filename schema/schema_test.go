package schema

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func blogSchema() *Schema {
	return &Schema{
		Name: "blog",
		Tables: []Table{
			{
				Name: "users",
				Columns: []Column{
					{Name: "id", Type: "integer"},
					{Name: "email", Type: "varchar(255)", Unique: true},
				},
				PrimaryKey: []string{"id"},
			},
			{
				Name: "posts",
				Columns: []Column{
					{Name: "id", Type: "integer"},
					{Name: "user_id", Type: "integer"},
					{Name: "title", Type: "text", Nullable: true},
				},
				PrimaryKey: []string{"id"},
				ForeignKeys: []ForeignKey{
					{Columns: []string{"user_id"}, ReferencedTable: "users", OnDelete: "cascade"},
				},
			},
			{
				Name: "tags",
				Columns: []Column{
					{Name: "id", Type: "integer"},
					{Name: "name", Type: "varchar(50)"},
				},
				PrimaryKey: []string{"id"},
			},
			{
				Name: "post_tags",
				Columns: []Column{
					{Name: "post_id", Type: "integer"},
					{Name: "tag_id", Type: "integer"},
				},
				PrimaryKey: []string{"post_id", "tag_id"},
				ForeignKeys: []ForeignKey{
					{Columns: []string{"post_id"}, ReferencedTable: "posts", ReferencedColumns: []string{"id"}},
					{Columns: []string{"tag_id"}, ReferencedTable: "tags", ReferencedColumns: []string{"id"}},
				},
			},
		},
	}
}

func TestDerive(t *testing.T) {
	t.Parallel()

	in := blogSchema()
	out := in.Derive()

	posts, ok := out.Table("posts")
	require.True(t, ok)

	fk := posts.ForeignKeys[0]
	assert.True(t, fk.CascadeDelete)
	assert.False(t, fk.Nullable)
	assert.False(t, fk.Unique)
	assert.Equal(t, ActionCascade, fk.OnDelete)
	assert.Equal(t, []string{"id"}, fk.ReferencedColumns)

	// The input is left untouched.
	orig, _ := in.Table("posts")
	assert.Empty(t, orig.ForeignKeys[0].ReferencedColumns)
	assert.False(t, orig.ForeignKeys[0].CascadeDelete)
}

func TestDerive_UniqueAndNullable(t *testing.T) {
	t.Parallel()

	s := &Schema{Tables: []Table{
		{Name: "users", Columns: []Column{{Name: "id", Type: "int"}}, PrimaryKey: []string{"id"}},
		{
			Name: "profiles",
			Columns: []Column{
				{Name: "user_id", Type: "int"},
				{Name: "reviewer_id", Type: "int", Nullable: true},
			},
			PrimaryKey: []string{"user_id"},
			ForeignKeys: []ForeignKey{
				{Columns: []string{"user_id"}, ReferencedTable: "users"},
				{Columns: []string{"reviewer_id"}, ReferencedTable: "users"},
			},
			Indexes: []Index{{Name: "profiles_reviewer", Columns: []string{"reviewer_id"}, Unique: true}},
		},
	}}

	profiles, _ := s.Derive().Table("profiles")

	assert.True(t, profiles.ForeignKeys[0].Unique)
	assert.False(t, profiles.ForeignKeys[0].Nullable)
	assert.True(t, profiles.ForeignKeys[1].Unique)
	assert.True(t, profiles.ForeignKeys[1].Nullable)
}

func TestNormalizeAction(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"cascade":   ActionCascade,
		"SETNULL":   ActionSetNull,
		"set  null": ActionSetNull,
		"noaction":  ActionNoAction,
		"SET_NULL":  ActionSetNull,
		"NO_ACTION": ActionNoAction,
		"":          "",
	}

	for in, want := range tests {
		assert.Equal(t, want, NormalizeAction(in), in)
	}
}

func TestValidate_OK(t *testing.T) {
	t.Parallel()

	require.NoError(t, blogSchema().Derive().Validate())
}

func TestValidate_Dangling(t *testing.T) {
	t.Parallel()

	s := blogSchema()
	s.Tables[1].ForeignKeys = append(s.Tables[1].ForeignKeys, ForeignKey{
		Columns: []string{"category_id"}, ReferencedTable: "categories",
	})

	err := s.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSchemaIntegrity))

	problems := IntegrityErrors(err)
	require.Len(t, problems, 2)
	assert.Equal(t, "category_id", problems[0].Column)
	assert.Equal(t, "foreign key column does not exist", problems[0].Reason)
	assert.Equal(t, "categories", problems[1].Reference)
	assert.Equal(t, "foreign key references unknown table", problems[1].Reason)
	assert.Contains(t, err.Error(), "posts.category_id")
}

func TestValidate_UnknownReferencedColumn(t *testing.T) {
	t.Parallel()

	s := blogSchema()
	s.Tables[3].ForeignKeys[1].ReferencedColumns = []string{"uuid"}

	problems := IntegrityErrors(s.Validate())
	require.Len(t, problems, 1)
	assert.Equal(t, "post_tags", problems[0].Table)
	assert.Equal(t, "tags.uuid", problems[0].Reference)
}

func TestValidate_MissingPrimaryKey(t *testing.T) {
	t.Parallel()

	s := &Schema{Tables: []Table{
		{Name: "events", Columns: []Column{{Name: "code", Type: "text"}}},
		{
			Name:        "logs",
			Columns:     []Column{{Name: "id", Type: "int"}, {Name: "event", Type: "text"}},
			PrimaryKey:  []string{"id"},
			ForeignKeys: []ForeignKey{{Columns: []string{"event"}, ReferencedTable: "events"}},
		},
	}}

	problems := IntegrityErrors(s.Validate())
	require.Len(t, problems, 1)
	assert.Equal(t, "referenced table has no primary key", problems[0].Reason)

	// An explicit referenced column does not need a primary key.
	s.Tables[1].ForeignKeys[0].ReferencedColumns = []string{"code"}
	require.NoError(t, s.Validate())
}

func TestValidate_Duplicates(t *testing.T) {
	t.Parallel()

	s := &Schema{Tables: []Table{
		{Name: "a", Columns: []Column{{Name: "id"}, {Name: "id"}}, PrimaryKey: []string{"id", "missing"}},
		{Name: "a", Columns: []Column{{Name: "id"}}},
	}}

	var reasons []string
	for _, p := range IntegrityErrors(s.Validate()) {
		reasons = append(reasons, p.Reason)
	}

	want := []string{"duplicate column", "primary key column does not exist", "duplicate table"}
	if diff := cmp.Diff(want, reasons); diff != "" {
		t.Errorf("Validate() mismatch (-want +got):\n%s", diff)
	}
}

func TestIsJunction(t *testing.T) {
	t.Parallel()

	s := blogSchema()

	postTags, _ := s.Table("post_tags")
	posts, _ := s.Table("posts")

	assert.True(t, postTags.IsJunction())
	assert.True(t, postTags.IsKeyedByForeignKeys())
	assert.False(t, posts.IsJunction())
	assert.Empty(t, postTags.NonKeyColumns())
}

func TestStats(t *testing.T) {
	t.Parallel()

	got := blogSchema().Stats()
	want := Stats{Tables: 4, Columns: 9, ForeignKeys: 3, CompositeKeys: 1, Junctions: 1}

	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Stats() mismatch (-want +got):\n%s", diff)
	}
}

func TestFilterTables(t *testing.T) {
	t.Parallel()

	s := blogSchema()

	filtered := FilterTables(s, nil, []string{"tags"})
	assert.Equal(t, []string{"users", "posts", "post_tags"}, filtered.TableNames())

	postTags, _ := filtered.Table("post_tags")
	require.Len(t, postTags.ForeignKeys, 1)
	assert.Equal(t, "posts", postTags.ForeignKeys[0].ReferencedTable)
	require.NoError(t, filtered.Validate())

	// Original still has every table and key.
	assert.Len(t, s.Tables, 4)
	orig, _ := s.Table("post_tags")
	assert.Len(t, orig.ForeignKeys, 2)

	only := FilterTables(s, []string{"users", "posts"}, nil)
	assert.Equal(t, []string{"users", "posts"}, only.TableNames())
}

func TestMerge_KeepsDuplicates(t *testing.T) {
	t.Parallel()

	a := &Schema{Tables: []Table{{Name: "x", Columns: []Column{{Name: "id"}}}}}
	b := &Schema{Tables: []Table{{Name: "x", Columns: []Column{{Name: "id"}}}, {Name: "y"}}}

	m := Merge("m", a, nil, b)
	assert.Equal(t, []string{"x", "x", "y"}, m.TableNames())
	assert.ErrorIs(t, m.Validate(), ErrSchemaIntegrity)
}

func TestYAMLRoundTrip(t *testing.T) {
	t.Parallel()

	s := blogSchema().Derive()

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, s))

	loaded, err := Load(&buf)
	require.NoError(t, err)

	if diff := cmp.Diff(s, loaded); diff != "" {
		t.Errorf("Load(Write()) mismatch (-want +got):\n%s", diff)
	}
}

func TestLoad_UnknownField(t *testing.T) {
	t.Parallel()

	_, err := Load(strings.NewReader("tables:\n  - name: a\n    colums: []\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "schema: decoding yaml")
}

func TestLoad_DerivesFlags(t *testing.T) {
	t.Parallel()

	doc := `
name: shop
tables:
  - name: orders
    columns:
      - {name: id, type: int}
    primary_key: [id]
  - name: order_items
    columns:
      - {name: order_id, type: int}
      - {name: line_no, type: int}
    primary_key: [order_id, line_no]
    foreign_keys:
      - columns: [order_id]
        references: orders
        on_delete: cascade
`

	s, err := Load(strings.NewReader(doc))
	require.NoError(t, err)

	items, ok := s.Table("order_items")
	require.True(t, ok)

	fk := items.ForeignKeys[0]
	assert.True(t, fk.CascadeDelete)
	assert.Equal(t, []string{"id"}, fk.ReferencedColumns)
}
