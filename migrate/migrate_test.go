package migrate_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rlch/relgraph"
	"github.com/rlch/relgraph/ddl"
	"github.com/rlch/relgraph/graph"
	"github.com/rlch/relgraph/inference"
	"github.com/rlch/relgraph/mapper"
	"github.com/rlch/relgraph/migrate"
	"github.com/rlch/relgraph/migrate/migratetest"
	"github.com/rlch/relgraph/schema"
)

const blogDDL = `
CREATE TABLE users (id int PRIMARY KEY, email varchar(255) NOT NULL UNIQUE, created_at timestamp);
CREATE TABLE posts (id int PRIMARY KEY, user_id int NOT NULL REFERENCES users (id), title text);
CREATE TABLE tags (id int PRIMARY KEY, name text);
CREATE TABLE post_tags (
	post_id int NOT NULL REFERENCES posts (id),
	tag_id int NOT NULL REFERENCES tags (id),
	added_at date,
	PRIMARY KEY (post_id, tag_id)
);
`

const companyDDL = `
CREATE TABLE departments (id int PRIMARY KEY, name text NOT NULL);
CREATE TABLE person (person_id int PRIMARY KEY, name text NOT NULL);
CREATE TABLE employee (
	person_id int PRIMARY KEY REFERENCES person (person_id),
	department_id int REFERENCES departments (id),
	salary numeric
);
CREATE TABLE manager (person_id int PRIMARY KEY REFERENCES employee (person_id), budget numeric);
`

func parse(t *testing.T, src string) *schema.Schema {
	t.Helper()

	s, err := ddl.ParseString("test.sql", src)
	require.NoError(t, err)

	return s
}

func direct(t *testing.T, s *schema.Schema) *graph.Schema {
	t.Helper()

	gs, err := mapper.New(s, nil).Map()
	require.NoError(t, err)

	return gs
}

func enriched(t *testing.T, s *schema.Schema) *graph.Schema {
	t.Helper()

	e, err := inference.New()
	require.NoError(t, err)

	model, _, err := e.Infer(s)
	require.NoError(t, err)

	gs, err := mapper.New(s, model).Map()
	require.NoError(t, err)

	return gs
}

func col(table, column string) relgraph.ColumnRef {
	return relgraph.ColumnRef{Table: table, Column: column}
}

func TestNewPlan_Direct(t *testing.T) {
	t.Parallel()

	s := parse(t, blogDDL)

	plan, err := migrate.NewPlan(s, direct(t, s))
	require.NoError(t, err)
	require.Len(t, plan.Nodes, 3)
	require.Len(t, plan.Relationships, 2)
	assert.Empty(t, plan.Skipped)

	wantUser := migrate.NodePlan{
		Label:      "User",
		Merge:      "User",
		Key:        []string{"id"},
		Properties: []string{"id", "email", "createdAt"},
		Select: relgraph.Selection{
			From:    relgraph.TableRef{Name: "users"},
			Columns: []relgraph.ColumnRef{col("users", "id"), col("users", "email"), col("users", "created_at")},
			OrderBy: []relgraph.ColumnRef{col("users", "id")},
		},
	}

	if diff := cmp.Diff(wantUser, plan.Nodes[0]); diff != "" {
		t.Errorf("User plan mismatch (-want +got):\n%s", diff)
	}

	wantFK := migrate.RelationshipPlan{
		Type: "FK_POSTS_USERS",
		From: relgraph.Endpoint{Label: "User", Key: []string{"id"}},
		To:   relgraph.Endpoint{Label: "Post", Key: []string{"id"}},
		Select: relgraph.Selection{
			From:    relgraph.TableRef{Name: "posts"},
			Columns: []relgraph.ColumnRef{col("posts", "user_id"), col("posts", "id")},
			NotNull: []relgraph.ColumnRef{col("posts", "user_id")},
		},
	}

	if diff := cmp.Diff(wantFK, plan.Relationships[0]); diff != "" {
		t.Errorf("foreign key plan mismatch (-want +got):\n%s", diff)
	}

	wantJunction := migrate.RelationshipPlan{
		Type:       "POST_TAGS",
		From:       relgraph.Endpoint{Label: "Post", Key: []string{"id"}},
		To:         relgraph.Endpoint{Label: "Tag", Key: []string{"id"}},
		Properties: []string{"addedAt"},
		Select: relgraph.Selection{
			From: relgraph.TableRef{Name: "post_tags"},
			Columns: []relgraph.ColumnRef{
				col("post_tags", "post_id"), col("post_tags", "tag_id"), col("post_tags", "added_at"),
			},
			NotNull: []relgraph.ColumnRef{col("post_tags", "post_id"), col("post_tags", "tag_id")},
		},
	}

	if diff := cmp.Diff(wantJunction, plan.Relationships[1]); diff != "" {
		t.Errorf("junction plan mismatch (-want +got):\n%s", diff)
	}

	assert.Equal(t, "Post-POST_TAGS->Tag", plan.Relationships[1].Name())
}

func TestNewPlan_EnrichedJoinsLineage(t *testing.T) {
	t.Parallel()

	s := parse(t, companyDDL)

	plan, err := migrate.NewPlan(s, enriched(t, s))
	require.NoError(t, err)
	require.Len(t, plan.Nodes, 4)
	require.Len(t, plan.Relationships, 1)

	wantManager := migrate.NodePlan{
		Label:      "Manager",
		Merge:      "Person",
		Labels:     []string{"Employee", "Manager"},
		Key:        []string{"personId"},
		Properties: []string{"personId", "name", "salary", "budget"},
		Select: relgraph.Selection{
			From: relgraph.TableRef{Name: "manager"},
			Joins: []relgraph.Join{
				{
					Table: relgraph.TableRef{Name: "employee"},
					On:    []relgraph.JoinColumn{{Column: "person_id", Equals: col("manager", "person_id")}},
				},
				{
					Table: relgraph.TableRef{Name: "person"},
					On:    []relgraph.JoinColumn{{Column: "person_id", Equals: col("employee", "person_id")}},
				},
			},
			Columns: []relgraph.ColumnRef{
				col("person", "person_id"), col("person", "name"), col("employee", "salary"), col("manager", "budget"),
			},
			OrderBy: []relgraph.ColumnRef{col("manager", "person_id")},
		},
	}

	if diff := cmp.Diff(wantManager, plan.Nodes[3]); diff != "" {
		t.Errorf("Manager plan mismatch (-want +got):\n%s", diff)
	}

	wantEmploys := migrate.RelationshipPlan{
		Type: "EMPLOYS",
		From: relgraph.Endpoint{Label: "Department", Key: []string{"id"}},
		To:   relgraph.Endpoint{Label: "Employee", Key: []string{"personId"}},
		Select: relgraph.Selection{
			From:    relgraph.TableRef{Name: "employee"},
			Columns: []relgraph.ColumnRef{col("employee", "department_id"), col("employee", "person_id")},
			NotNull: []relgraph.ColumnRef{col("employee", "department_id")},
		},
	}

	if diff := cmp.Diff(wantEmploys, plan.Relationships[0]); diff != "" {
		t.Errorf("EMPLOYS plan mismatch (-want +got):\n%s", diff)
	}
}

func TestNewPlan_SkipsKeylessChild(t *testing.T) {
	t.Parallel()

	s := parse(t, blogDDL+`CREATE TABLE audit (user_id int REFERENCES users (id), note text);`)

	plan, err := migrate.NewPlan(s, direct(t, s))
	require.NoError(t, err)
	require.Len(t, plan.Skipped, 1)
	assert.Equal(t, "table audit has no primary key", plan.Skipped[0].Reason)
	assert.Len(t, plan.Relationships, 2)
}

func TestNewPlan_UnknownTable(t *testing.T) {
	t.Parallel()

	s := parse(t, blogDDL)
	gs := direct(t, s)

	_, err := migrate.NewPlan(parse(t, `CREATE TABLE tags (id int PRIMARY KEY);`), gs)
	require.ErrorIs(t, err, migrate.ErrUnknownTable)
}

func companySource(t *testing.T, departmentOf3 int64) *migratetest.Source {
	t.Helper()

	return &migratetest.Source{
		Schema: parse(t, companyDDL),
		Tables: map[string][]map[string]any{
			"departments": {{"id": int64(10), "name": "R&D"}},
			"person": {
				{"person_id": int64(1), "name": "Ada"},
				{"person_id": int64(2), "name": "Grace"},
				{"person_id": int64(3), "name": "Edsger"},
			},
			"employee": {
				{"person_id": int64(2), "department_id": int64(10), "salary": "100.00"},
				{"person_id": int64(3), "department_id": departmentOf3, "salary": "200.00"},
			},
			"manager": {{"person_id": int64(3), "budget": "5000.00"}},
		},
	}
}

func TestRun_LoadsAndVerifies(t *testing.T) {
	t.Parallel()

	src := companySource(t, 10)

	plan, err := migrate.NewPlan(src.Schema, enriched(t, src.Schema))
	require.NoError(t, err)

	g := &migratetest.Graph{}

	rep, err := migrate.New(src, g, migrate.WithBatchSize(1), migrate.WithVerify(true)).Run(t.Context(), plan)
	require.NoError(t, err)

	want := &migrate.Report{
		Nodes: []migrate.Count{
			{Name: "Department", Read: 1, Written: 1, Source: 1, Target: 1},
			{Name: "Person", Read: 3, Written: 3, Source: 3, Target: 3},
			{Name: "Employee", Read: 2, Written: 2, Source: 2, Target: 2},
			{Name: "Manager", Read: 1, Written: 1, Source: 1, Target: 1},
		},
		Relationships: []migrate.Count{
			{Name: "Department-EMPLOYS->Employee", Read: 2, Written: 2, Source: 2, Target: 2},
		},
		Verified: true,
	}

	if diff := cmp.Diff(want, rep); diff != "" {
		t.Errorf("report mismatch (-want +got):\n%s", diff)
	}

	assert.Len(t, g.Nodes, 4, "subclass rows merge onto their superclass node")
	assert.Equal(t, 7, rep.NodesWritten())
	assert.Equal(t, 2, rep.RelationshipsWritten())

	edsger, ok := g.Node("Person", map[string]any{"personId": int64(3)})
	require.True(t, ok)
	assert.Equal(t, []string{"Person", "Employee", "Manager"}, edsger.Labels)
	assert.Equal(t, map[string]any{
		"personId": int64(3),
		"name":     "Edsger",
		"salary":   "200.00",
		"budget":   "5000.00",
	}, edsger.Properties)
}

func TestRun_CountMismatch(t *testing.T) {
	t.Parallel()

	src := companySource(t, 99)

	plan, err := migrate.NewPlan(src.Schema, enriched(t, src.Schema))
	require.NoError(t, err)

	rep, err := migrate.New(src, &migratetest.Graph{}, migrate.WithVerify(true)).Run(t.Context(), plan)
	require.ErrorIs(t, err, migrate.ErrCountMismatch)
	assert.Contains(t, err.Error(), "Department-EMPLOYS->Employee (source 2, graph 1)")

	require.NotNil(t, rep)

	bad := rep.Mismatches()
	require.Len(t, bad, 1)
	assert.Equal(t, 1, bad[0].Written)
}

func TestRun_WithoutVerify(t *testing.T) {
	t.Parallel()

	src := companySource(t, 99)

	plan, err := migrate.NewPlan(src.Schema, enriched(t, src.Schema))
	require.NoError(t, err)

	rep, err := migrate.New(src, &migratetest.Graph{}).Run(t.Context(), plan)
	require.NoError(t, err)
	assert.False(t, rep.Verified)
	assert.Empty(t, rep.Mismatches())
	assert.Equal(t, int64(-1), rep.Relationships[0].Target)
}

func TestRun_DirectJunction(t *testing.T) {
	t.Parallel()

	src := &migratetest.Source{
		Schema: parse(t, blogDDL),
		Tables: map[string][]map[string]any{
			"users": {{"id": int64(1), "email": "ada@example.com", "created_at": nil}},
			"posts": {
				{"id": int64(1), "user_id": int64(1), "title": "Hello"},
				{"id": int64(2), "user_id": int64(1), "title": "Again"},
			},
			"tags": {{"id": int64(1), "name": "go"}, {"id": int64(2), "name": "graphs"}},
			"post_tags": {
				{"post_id": int64(1), "tag_id": int64(1), "added_at": "2024-01-01"},
				{"post_id": int64(1), "tag_id": int64(2), "added_at": nil},
			},
		},
	}

	plan, err := migrate.NewPlan(src.Schema, direct(t, src.Schema))
	require.NoError(t, err)

	g := &migratetest.Graph{}

	rep, err := migrate.New(src, g, migrate.WithVerify(true)).Run(t.Context(), plan)
	require.NoError(t, err)
	assert.Equal(t, 5, rep.NodesWritten())
	assert.Equal(t, 4, rep.RelationshipsWritten())

	var tagged []any

	for _, r := range g.Relationships {
		if r.Type == "POST_TAGS" {
			tagged = append(tagged, r.Properties["addedAt"])
		}
	}

	assert.Equal(t, []any{"2024-01-01", nil}, tagged)
}

func TestRun_DryRun(t *testing.T) {
	t.Parallel()

	src := companySource(t, 10)

	plan, err := migrate.NewPlan(src.Schema, enriched(t, src.Schema))
	require.NoError(t, err)

	rep, err := migrate.New(src, nil, migrate.WithDryRun(true)).Run(t.Context(), plan)
	require.NoError(t, err)
	assert.True(t, rep.DryRun)
	assert.Equal(t, migrate.Count{Name: "Person", Source: 3, Target: -1}, rep.Nodes[1])
	assert.Equal(t, int64(2), rep.Relationships[0].Source)
	assert.Zero(t, rep.NodesWritten())
}

func TestRun_NeedsLoader(t *testing.T) {
	t.Parallel()

	_, err := migrate.New(&migratetest.Source{}, nil).Run(t.Context(), &migrate.Plan{})
	require.ErrorIs(t, err, relgraph.ErrNoLoader)
}
