package schema_test

import (
	"testing"

	. "github.com/pseudomuto/leaf/pkg/schema"
	"github.com/stretchr/testify/require"
)

func TestNewReplace_TableOracle(t *testing.T) {
	old := def("hr", "emp", KindTable, `CREATE TABLE HR.EMP (
  "ID" NUMBER NOT NULL,
  "NAME" VARCHAR2(100),
  "OLD_COL" DATE,
  CONSTRAINT EMP_PK PRIMARY KEY ("ID")
)`, &t0)
	new := def("hr", "emp", KindTable, `CREATE TABLE HR.EMP (
  "ID" NUMBER NOT NULL,
  "NAME" VARCHAR2(200), -- widened
  "SALARY" NUMBER(10,2) DEFAULT 0,
  CONSTRAINT EMP_PK PRIMARY KEY ("ID")
)`, &t2)

	op := NewReplace(old, new, AlterSyntaxOracle, false)
	require.Equal(t, OpReplace, op.Type)
	require.Empty(t, op.Warning)
	require.Equal(t, []string{
		`ALTER TABLE HR.EMP ADD ("SALARY" NUMBER(10,2) DEFAULT 0)`,
		`ALTER TABLE HR.EMP MODIFY ("NAME" VARCHAR2(200))`,
		`ALTER TABLE HR.EMP DROP COLUMN "OLD_COL"`,
	}, op.Statements)

	require.NotNil(t, op.Inverse)
	require.Nil(t, op.Inverse.Inverse)
	require.Equal(t, old, op.Inverse.New)
	require.Equal(t, []string{
		`ALTER TABLE HR.EMP ADD ("OLD_COL" DATE)`,
		`ALTER TABLE HR.EMP MODIFY ("NAME" VARCHAR2(100))`,
		`ALTER TABLE HR.EMP DROP COLUMN "SALARY"`,
	}, op.Inverse.Statements)
}

func TestNewReplace_TableDialects(t *testing.T) {
	tests := []struct {
		name     string
		schema   string
		old      string
		new      string
		syntax   AlterSyntax
		suppress bool
		forward  []string
		inverse  []string
		warning  string
	}{
		{
			name:    "postgres changes the column type",
			schema:  "public",
			old:     "CREATE TABLE public.emp (id integer NOT NULL, name varchar(100) NOT NULL)",
			new:     "CREATE TABLE public.emp (id integer NOT NULL, name varchar(200) NOT NULL)",
			syntax:  AlterSyntaxPostgres,
			forward: []string{"ALTER TABLE PUBLIC.EMP ALTER COLUMN name TYPE varchar(200)"},
			inverse: []string{"ALTER TABLE PUBLIC.EMP ALTER COLUMN name TYPE varchar(100)"},
		},
		{
			name:    "modify column syntax",
			schema:  "app",
			old:     "CREATE TABLE app.emp (`id` int NOT NULL, `name` varchar(100))",
			new:     "CREATE TABLE app.emp (`id` int NOT NULL, `name` varchar(200), `age` int)",
			syntax:  AlterSyntaxModifyColumn,
			forward: []string{"ALTER TABLE APP.EMP ADD COLUMN `age` int", "ALTER TABLE APP.EMP MODIFY COLUMN `name` varchar(200)"},
			inverse: []string{"ALTER TABLE APP.EMP MODIFY COLUMN `name` varchar(100)", "ALTER TABLE APP.EMP DROP COLUMN `age`"},
		},
		{
			name:    "sqlite cannot modify columns",
			schema:  "main",
			old:     "CREATE TABLE main.emp (id INTEGER, name TEXT)",
			new:     "CREATE TABLE main.emp (id INTEGER, name TEXT NOT NULL)",
			syntax:  AlterSyntaxSQLite,
			warning: "column name changed but cannot be modified in place",
		},
		{
			name:    "sqlite adds columns",
			schema:  "main",
			old:     "CREATE TABLE main.emp (id INTEGER)",
			new:     "CREATE TABLE main.emp (id INTEGER, name TEXT)",
			syntax:  AlterSyntaxSQLite,
			forward: []string{"ALTER TABLE MAIN.EMP ADD COLUMN name TEXT"},
			inverse: []string{"ALTER TABLE MAIN.EMP DROP COLUMN name"},
		},
		{
			name:     "column drops suppressed",
			schema:   "HR",
			old:      "CREATE TABLE HR.EMP (ID NUMBER, OLD_COL DATE)",
			new:      "CREATE TABLE HR.EMP (ID NUMBER)",
			syntax:   AlterSyntaxOracle,
			suppress: true,
			warning:  "drop of column OLD_COL suppressed",
		},
		{
			name:    "unparseable table body",
			schema:  "HR",
			old:     "CREATE TABLE HR.EMP AS SELECT * FROM HR.EMP_SRC",
			new:     "CREATE TABLE HR.EMP (ID NUMBER)",
			syntax:  AlterSyntaxOracle,
			warning: "target table definition could not be parsed; no statements generated",
		},
		{
			name:    "change outside columns",
			schema:  "HR",
			old:     "CREATE TABLE HR.EMP (ID NUMBER) TABLESPACE USERS",
			new:     "CREATE TABLE HR.EMP (ID NUMBER) TABLESPACE DATA",
			syntax:  AlterSyntaxOracle,
			warning: "table definition changed outside its columns; no statements generated",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			old := def(tt.schema, "emp", KindTable, tt.old, nil)
			new := def(tt.schema, "emp", KindTable, tt.new, nil)

			op := NewReplace(old, new, tt.syntax, tt.suppress)
			require.Equal(t, tt.forward, op.Statements)
			require.Equal(t, tt.inverse, op.Inverse.Statements)
			require.Equal(t, tt.warning, op.Warning)
		})
	}
}

func TestNewReplace_UsesSQLName(t *testing.T) {
	old := def("public", "emp", KindTable, `CREATE TABLE public.emp (id integer)`, nil)
	old.SQLName = `"public"."emp"`
	new := def("public", "emp", KindTable, `CREATE TABLE public.emp (id integer, name text)`, nil)
	new.SQLName = `"public"."emp"`

	op := NewReplace(old, new, AlterSyntaxPostgres, false)
	require.Equal(t, []string{`ALTER TABLE "public"."emp" ADD COLUMN name text`}, op.Statements)
}

func TestNewReplace_NonTable(t *testing.T) {
	t.Run("create or replace runs in place", func(t *testing.T) {
		old := def("hr", "v", KindView, "CREATE OR REPLACE VIEW HR.V AS SELECT 1 FROM DUAL", nil)
		new := def("hr", "v", KindView, "CREATE OR REPLACE VIEW HR.V AS SELECT 2 FROM DUAL", nil)

		op := NewReplace(old, new, AlterSyntaxOracle, false)
		require.Equal(t, []string{new.Body}, op.Statements)
		require.Equal(t, []string{old.Body}, op.Inverse.Statements)
	})

	t.Run("other bodies are dropped first", func(t *testing.T) {
		old := def("hr", "emp_idx", KindIndex, "CREATE INDEX HR.EMP_IDX ON HR.EMP (ID)", nil)
		new := def("hr", "emp_idx", KindIndex, "CREATE INDEX HR.EMP_IDX ON HR.EMP (NAME)", nil)

		op := NewReplace(old, new, AlterSyntaxOracle, false)
		require.Equal(t, []string{"DROP INDEX HR.EMP_IDX", new.Body}, op.Statements)
		require.Equal(t, []string{"DROP INDEX HR.EMP_IDX", old.Body}, op.Inverse.Statements)
	})
}

func TestNewDrop(t *testing.T) {
	d := def("hr", "emp_pkg", KindPackageBody, "CREATE OR REPLACE PACKAGE BODY HR.EMP_PKG AS END;", nil)

	op := NewDrop(d)
	require.Equal(t, []string{"DROP PACKAGE BODY HR.EMP_PKG"}, op.Statements)
	require.Equal(t, OpCreate, op.Inverse.Type)
	require.Equal(t, []string{"CREATE OR REPLACE PACKAGE BODY HR.EMP_PKG AS END;"}, op.Inverse.Statements)

	d.DropStatement = "DROP TABLE IF EXISTS `db`.`t` SYNC"
	require.Equal(t, []string{d.DropStatement}, NewDrop(d).Statements)
}

func TestChangeOp_Script(t *testing.T) {
	op := &ChangeOp{Statements: []string{"DROP INDEX HR.EMP_IDX", "CREATE INDEX HR.EMP_IDX ON HR.EMP (NAME);\n"}}
	require.Equal(t, "DROP INDEX HR.EMP_IDX;\nCREATE INDEX HR.EMP_IDX ON HR.EMP (NAME);", op.Script())
	require.Empty(t, (&ChangeOp{}).Script())
}

func TestChangeSet_SummaryAndInverses(t *testing.T) {
	a := def("hr", "a", KindTable, "CREATE TABLE HR.A (ID NUMBER)", nil)
	b := def("hr", "b", KindView, "CREATE OR REPLACE VIEW HR.B AS SELECT 1 FROM DUAL", nil)
	b2 := def("hr", "b", KindView, "CREATE OR REPLACE VIEW HR.B AS SELECT 2 FROM DUAL", nil)
	c := def("hr", "c", KindSequence, "CREATE SEQUENCE HR.C", nil)

	cs := &ChangeSet{Ops: []*ChangeOp{NewCreate(a), NewReplace(b, b2, "", false), NewDrop(c)}}
	require.False(t, cs.Empty())
	require.Equal(t, Summary{Creates: 1, Replaces: 1, Drops: 1}, cs.Summary())
	require.Equal(t, []string{"CREATE SEQUENCE HR.C", "REPLACE VIEW HR.B", "DROP TABLE HR.A"}, opNames(cs.Inverses()))
	require.True(t, (&ChangeSet{}).Empty())
}

func TestSnapshot_Apply(t *testing.T) {
	emp := def("hr", "emp", KindTable, "CREATE TABLE HR.EMP (ID NUMBER)", nil)
	other := def("hr", "other", KindTable, "CREATE TABLE HR.OTHER (ID NUMBER)", nil)
	snap := snapshot(t, emp)

	_, err := snap.Apply(NewCreate(emp))
	require.ErrorIs(t, err, ErrObjectExists)

	_, err = snap.Apply(NewDrop(other))
	require.ErrorIs(t, err, ErrObjectMissing)

	_, err = snap.Apply(NewReplace(other, other, "", false))
	require.ErrorIs(t, err, ErrObjectMissing)

	_, err = snap.Apply(&ChangeOp{Type: "RENAME", Identity: emp.Identity})
	require.Error(t, err)

	dropped, err := snap.Apply(NewDrop(emp))
	require.NoError(t, err)
	require.Equal(t, 0, dropped.Len())
	require.Equal(t, 1, snap.Len())
}
