// Package pgcollab is the Postgres collaborator: it takes a generated
// plan.Plan plus the object tree it was derived from and carries out the
// plan's build/drop/diff/rebuild steps against a live database, translating
// context arrive/depart events into session-scoped SET/RESET statements and
// object arrive/depart events into no-ops (they exist only to tell a human
// reader, or a different collaborator, where execution is logically
// "standing"; no SQL is needed to enter or leave an object itself).
package pgcollab

import (
	"context"
	"fmt"
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v6"
	"github.com/jackc/pgx/v5"
	"golang.org/x/sync/errgroup"

	"github.com/objectplan/objectplan/internal/logger"
	"github.com/objectplan/objectplan/internal/model"
	"github.com/objectplan/objectplan/internal/plan"
)

// Executor runs a plan's steps against one pgx connection.
type Executor struct {
	conn *pgx.Conn
	tree *model.Tree
}

// New returns an Executor bound to conn, resolving each step's DDL text from
// tree (the differ's merged tree the plan was generated from).
func New(conn *pgx.Conn, tree *model.Tree) *Executor {
	return &Executor{conn: conn, tree: tree}
}

// Validate parses the DDL text attached to every build/drop/diff/rebuild step
// of p with pg_query_go, concurrently, before anything touches the database.
// A syntax error here means the plan is broken independent of what the
// database happens to contain, so it's worth catching before acquiring a
// single lock.
func (e *Executor) Validate(ctx context.Context, p *plan.Plan) error {
	g, _ := errgroup.WithContext(ctx)
	for _, step := range p.Steps {
		stmt := step
		g.Go(func() error {
			sql, ok := e.sqlFor(stmt)
			if !ok || sql == "" {
				return nil
			}
			if _, err := pg_query.Parse(sql); err != nil {
				return fmt.Errorf("pgcollab: invalid DDL for %s %s: %w", stmt.Type, stmt.FQN, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// Apply executes p's steps in order, one at a time, inside a single
// transaction. Plan order already encodes every dependency constraint the
// pipeline discovered, so steps never run out of order or concurrently here;
// the Validate pass above is the only place execution fans out.
func (e *Executor) Apply(ctx context.Context, p *plan.Plan) error {
	log := logger.Get()
	tx, err := e.conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("pgcollab: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, step := range p.Steps {
		sql, ok := e.sqlFor(step)
		if !ok {
			continue
		}
		log.Debug("executing step", "action", step.Action, "type", step.Type, "fqn", step.FQN, "sql", sql)
		if _, err := tx.Exec(ctx, sql); err != nil {
			return fmt.Errorf("pgcollab: step %s %s %s: %w", step.Action, step.Type, step.FQN, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("pgcollab: commit: %w", err)
	}
	return nil
}

// sqlFor returns the one SQL statement a plan.Step translates to, and
// whether it translates to any SQL at all (object arrive/depart never do).
func (e *Executor) sqlFor(step plan.Step) (string, bool) {
	switch step.Action {
	case "arrive":
		if step.Type != "context" {
			return "", false
		}
		return fmt.Sprintf("SET %s TO %s", step.FQN, quoteIdentLike(step.Value)), true
	case "depart":
		if step.Type != "context" {
			return "", false
		}
		return fmt.Sprintf("RESET %s", step.FQN), true
	case "drop":
		obj, ok := e.tree.ByFQN(model.FQN(step.FQN))
		if !ok {
			return "", false
		}
		return dropSQL(obj), true
	default: // build, diff, rebuild
		obj, ok := e.tree.ByFQN(model.FQN(step.FQN))
		if !ok {
			return "", false
		}
		ddl := ddlFromContents(obj)
		return ddl, ddl != ""
	}
}

// dropSQL renders the DROP statement for an object being removed. The object
// tree format doesn't carry an explicit "drop" DDL string per object (only
// its forward-state contents), so drops are synthesized from type and fqn;
// a rule set wanting a different DROP form (CASCADE, IF EXISTS) attaches it
// as a contents attribute named "drop_sql", checked first.
func dropSQL(obj *model.DbObject) string {
	if obj.Contents != nil {
		if custom := obj.Contents.Attr("drop_sql"); custom != "" {
			return custom
		}
	}
	return fmt.Sprintf("DROP %s %s", strings.ToUpper(obj.Type), pqnOrFQN(obj))
}

func pqnOrFQN(obj *model.DbObject) string {
	if obj.PQN != "" {
		return string(obj.PQN)
	}
	return string(obj.FQN)
}

// ddlFromContents reads the forward-state DDL text a rule set attaches to an
// object's contents under the "sql" attribute. objectplan's core never
// generates SQL itself (spec's domain-agnostic core has no notion of DDL);
// this is the one place that convention is consumed.
func ddlFromContents(obj *model.DbObject) string {
	if obj.Contents == nil {
		return ""
	}
	return obj.Contents.Attr("sql")
}

// quoteIdentLike renders a context value for use in a SET statement. A value
// made only of letters, digits, '_', ',' and '.' passes through unquoted;
// anything else is quoted as a string literal, and an empty value becomes
// DEFAULT. The context's name plays no part.
func quoteIdentLike(value string) string {
	if value == "" {
		return "DEFAULT"
	}
	for _, r := range value {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == ',', r == '.':
		default:
			return "'" + strings.ReplaceAll(value, "'", "''") + "'"
		}
	}
	return value
}
