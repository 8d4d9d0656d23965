package ddl

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rlch/relgraph"
	"github.com/rlch/relgraph/schema"
)

func ptr(s string) *string { return &s }

func TestParseFile_Postgres(t *testing.T) {
	t.Parallel()

	s, err := ParseFile(filepath.Join("testdata", "blog_postgres.sql"))
	require.NoError(t, err)

	assert.Equal(t, "blog_postgres", s.Name)
	assert.Equal(t, []string{"users", "posts", "tags", "post_tags"}, s.TableNames())
	require.NoError(t, s.Validate())

	users, _ := s.Table("users")
	wantUsers := schema.Table{
		Name: "users",
		Columns: []schema.Column{
			{Name: "id", Type: "serial", AutoIncrement: true},
			{Name: "email", Type: "varchar(255)", Unique: true},
			{Name: "created_at", Type: "timestamp with time zone", Nullable: true, Default: ptr("now()")},
		},
		PrimaryKey: []string{"id"},
	}

	if diff := cmp.Diff(wantUsers, *users); diff != "" {
		t.Errorf("users mismatch (-want +got):\n%s", diff)
	}

	posts, _ := s.Table("posts")
	wantPosts := schema.Table{
		Name:   "posts",
		Schema: "public",
		Columns: []schema.Column{
			{Name: "id", Type: "integer"},
			{Name: "user_id", Type: "integer"},
			{Name: "title", Type: "character varying(200)", Nullable: true},
			{Name: "body", Type: "text", Nullable: true},
			{Name: "score", Type: "double precision", Nullable: true, Default: ptr("0.0")},
			{Name: "meta", Type: "jsonb", Nullable: true, Default: ptr("'{}'::jsonb")},
		},
		PrimaryKey: []string{"id"},
		ForeignKeys: []schema.ForeignKey{{
			Columns:           []string{"user_id"},
			ReferencedTable:   "users",
			ReferencedColumns: []string{"id"},
			CascadeDelete:     true,
			OnDelete:          schema.ActionCascade,
		}},
		Indexes: []schema.Index{{Name: "posts_title_idx", Columns: []string{"title"}, Unique: true}},
	}

	if diff := cmp.Diff(wantPosts, *posts); diff != "" {
		t.Errorf("posts mismatch (-want +got):\n%s", diff)
	}

	postTags, _ := s.Table("post_tags")
	wantFKs := []schema.ForeignKey{
		{
			Name:              "post_tags_post_fk",
			Columns:           []string{"post_id"},
			ReferencedTable:   "posts",
			ReferencedColumns: []string{"id"},
			CascadeDelete:     true,
			OnDelete:          schema.ActionCascade,
		},
		{
			Columns:           []string{"tag_id"},
			ReferencedTable:   "tags",
			ReferencedColumns: []string{"id"},
			OnDelete:          schema.ActionSetNull,
			OnUpdate:          schema.ActionNoAction,
		},
	}

	if diff := cmp.Diff(wantFKs, postTags.ForeignKeys); diff != "" {
		t.Errorf("post_tags foreign keys mismatch (-want +got):\n%s", diff)
	}

	assert.True(t, postTags.IsJunction())
}

func TestParseFile_MySQL(t *testing.T) {
	t.Parallel()

	s, err := ParseFile(filepath.Join("testdata", "company_mysql.sql"))
	require.NoError(t, err)
	require.NoError(t, s.Validate())

	departments, _ := s.Table("departments")
	assert.Equal(t, []schema.Index{{Name: "departments_name_uq", Columns: []string{"name"}, Unique: true}}, departments.Indexes)

	id, _ := departments.Column("id")
	assert.Equal(t, "int(11) unsigned", id.Type)
	assert.True(t, id.AutoIncrement)
	assert.False(t, id.Nullable)

	name, _ := departments.Column("name")
	require.NotNil(t, name.Default)
	assert.Equal(t, "''", *name.Default)

	employees, _ := s.Table("employees")
	require.Len(t, employees.ForeignKeys, 2)

	dept := employees.ForeignKeys[0]
	assert.Equal(t, "employees_department_fk", dept.Name)
	assert.Equal(t, schema.ActionSetNull, dept.OnDelete)
	assert.True(t, dept.Nullable)
	assert.False(t, dept.CascadeDelete)

	manager := employees.ForeignKeys[1]
	assert.True(t, manager.Self("employees"))
	assert.True(t, manager.Nullable)

	updated, _ := employees.Column("updated_at")
	assert.Equal(t, "datetime", updated.Type)
	assert.Equal(t, "CURRENT_TIMESTAMP", *updated.Default)

	assert.True(t, employees.IsIndexed("department_id"))
}

func TestParseString_SQLiteAndIdentity(t *testing.T) {
	t.Parallel()

	s, err := ParseString("mixed.sql", `
		CREATE TABLE notes (id INTEGER PRIMARY KEY AUTOINCREMENT, body TEXT);
		CREATE TABLE IF NOT EXISTS audit (
			id bigint GENERATED ALWAYS AS IDENTITY,
			note_id integer CONSTRAINT audit_note_fk REFERENCES notes ON DELETE CASCADE,
			amount numeric(10, 2) CHECK (amount > 0),
			labels text[],
			PRIMARY KEY (id)
		);
	`)
	require.NoError(t, err)
	require.NoError(t, s.Validate())

	notes, _ := s.Table("notes")
	id, _ := notes.Column("id")
	assert.True(t, id.AutoIncrement)
	assert.Equal(t, []string{"id"}, notes.PrimaryKey)

	audit, _ := s.Table("audit")
	auditID, _ := audit.Column("id")
	assert.True(t, auditID.AutoIncrement)
	assert.False(t, auditID.Nullable)

	amount, _ := audit.Column("amount")
	assert.Equal(t, "numeric(10,2)", amount.Type)

	labels, _ := audit.Column("labels")
	assert.Equal(t, "text[]", labels.Type)

	require.Len(t, audit.ForeignKeys, 1)
	fk := audit.ForeignKeys[0]
	assert.Equal(t, "audit_note_fk", fk.Name)
	// Derive fills an omitted column list from the referenced primary key.
	assert.Equal(t, []string{"id"}, fk.ReferencedColumns)
	assert.True(t, fk.CascadeDelete)
	assert.True(t, fk.Nullable)
}

func TestParse_UnknownTable(t *testing.T) {
	t.Parallel()

	_, err := ParseString("bad.sql", `ALTER TABLE ghosts ADD PRIMARY KEY (id);`)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownTable))

	_, err = ParseString("bad.sql", `CREATE INDEX ghost_idx ON ghosts (id);`)
	assert.ErrorIs(t, err, ErrUnknownTable)
}

func TestParse_SyntaxError(t *testing.T) {
	t.Parallel()

	_, err := ParseString("broken.sql", `CREATE TABLE broken (id int NOT NULL, );`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ddl:")
	assert.Contains(t, err.Error(), "broken.sql")
}

func TestParse_DuplicateTable(t *testing.T) {
	t.Parallel()

	_, err := ParseString("dup.sql", `CREATE TABLE a (id int); CREATE TABLE A (id int);`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `table "A" declared twice`)
}

func TestParse_IgnoresOtherStatements(t *testing.T) {
	t.Parallel()

	s, err := ParseString("misc.sql", `
		SET statement_timeout = 0;
		CREATE EXTENSION IF NOT EXISTS "uuid-ossp";
		CREATE FUNCTION touch() RETURNS trigger AS $$ BEGIN NEW.updated = now(); RETURN NEW; END; $$ LANGUAGE plpgsql;
		CREATE TABLE things (id uuid PRIMARY KEY DEFAULT uuid_generate_v4());
		COMMENT ON TABLE things IS 'stuff';
	`)
	require.NoError(t, err)
	assert.Equal(t, []string{"things"}, s.TableNames())

	things, _ := s.Table("things")
	id, _ := things.Column("id")
	assert.Equal(t, "uuid_generate_v4()", *id.Default)
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestSource_Directory(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "02_posts.sql", `
		create table posts (id int primary key, user_id int not null);
		alter table posts add foreign key (user_id) references users(id);
	`)
	writeFile(t, dir, "01_users.sql", `create table users (id int primary key);`)
	writeFile(t, dir, "README.md", `not ddl`)

	files, err := ListFiles(dir)
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "01_users.sql", filepath.Base(files[0]))

	src, err := relgraph.NewSource(&relgraph.SourceConfig{Path: dir, Concurrency: 2})
	require.NoError(t, err)
	assert.Equal(t, relgraph.SourceDDL, src.Name())

	s, err := src.Load(t.Context())
	require.NoError(t, err)
	require.NoError(t, src.Close())

	assert.Equal(t, []string{"users", "posts"}, s.TableNames())

	posts, _ := s.Table("posts")
	require.Len(t, posts.ForeignKeys, 1)
	assert.Equal(t, "users", posts.ForeignKeys[0].ReferencedTable)
	assert.False(t, posts.ForeignKeys[0].Nullable)
}

func TestSource_EmptyDirectory(t *testing.T) {
	t.Parallel()

	_, err := NewSource(t.TempDir(), 1).Load(t.Context())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no [sql ddl] files")
}
