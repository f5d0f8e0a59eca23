package backup

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gorm.io/gorm"
)

// DumpSQL writes the live store as a plain SQL script: schema first, then
// one INSERT per row. The schema statements are rewritten to CREATE TABLE IF
// NOT EXISTS so the script can be replayed into a database that already has
// the schema. Stored payload bytes are dumped as-is, encrypted or not.
func (e *Engine) DumpSQL(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create dump file: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	db := e.store.DB()

	type schemaRow struct {
		Name string
		SQL  string
	}
	// The migrations ledger is engine bookkeeping, not user data; the target
	// of a replay keeps its own.
	var schema []schemaRow
	if err := db.Raw(
		`SELECT name, sql FROM sqlite_master
		 WHERE type = 'table' AND sql IS NOT NULL
		   AND name NOT LIKE 'sqlite_%' AND name != 'migrations'
		 ORDER BY name`,
	).Scan(&schema).Error; err != nil {
		return fmt.Errorf("read schema: %w", err)
	}

	fmt.Fprintln(w, "-- finledger SQL dump")
	fmt.Fprintln(w, "BEGIN TRANSACTION;")
	for _, s := range schema {
		stmt := strings.Replace(s.SQL, "CREATE TABLE", "CREATE TABLE IF NOT EXISTS", 1)
		fmt.Fprintf(w, "%s;\n", stmt)
	}
	for _, s := range schema {
		if err := dumpTable(db, w, s.Name); err != nil {
			return err
		}
	}
	fmt.Fprintln(w, "COMMIT;")

	if err := w.Flush(); err != nil {
		return fmt.Errorf("write dump file: %w", err)
	}
	return nil
}

func dumpTable(db *gorm.DB, w *bufio.Writer, table string) error {
	rows, err := db.Raw(fmt.Sprintf("SELECT * FROM %q", table)).Rows()
	if err != nil {
		return fmt.Errorf("dump table %s: %w", table, err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return fmt.Errorf("dump table %s: %w", table, err)
	}

	values := make([]any, len(columns))
	pointers := make([]any, len(columns))
	for i := range values {
		pointers[i] = &values[i]
	}

	for rows.Next() {
		if err := rows.Scan(pointers...); err != nil {
			return fmt.Errorf("dump table %s: %w", table, err)
		}
		literals := make([]string, len(values))
		for i, v := range values {
			literals[i] = sqlLiteral(v)
		}
		fmt.Fprintf(w, "INSERT INTO %q (%s) VALUES (%s);\n",
			table,
			strings.Join(columns, ", "),
			strings.Join(literals, ", "))
	}
	return rows.Err()
}

func sqlLiteral(v any) string {
	switch val := v.(type) {
	case nil:
		return "NULL"
	case bool:
		if val {
			return "1"
		}
		return "0"
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	case []byte:
		return "X'" + hex.EncodeToString(val) + "'"
	case string:
		return "'" + strings.ReplaceAll(val, "'", "''") + "'"
	default:
		return "'" + strings.ReplaceAll(fmt.Sprint(val), "'", "''") + "'"
	}
}

// RestoreSQL replays a SQL script produced by DumpSQL against the live
// store, inside one transaction. It does not clear existing content first;
// replaying into a non-empty store fails on the first conflicting row and
// rolls back.
func (e *Engine) RestoreSQL(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read dump file: %w", err)
	}

	return e.store.DB().Transaction(func(tx *gorm.DB) error {
		for _, stmt := range strings.Split(string(raw), ";") {
			stmt = strings.TrimSpace(stmt)
			if stmt == "" || strings.HasPrefix(stmt, "--") {
				continue
			}
			// The script's own transaction framing is redundant here.
			upper := strings.ToUpper(stmt)
			if upper == "BEGIN TRANSACTION" || upper == "COMMIT" {
				continue
			}
			if err := tx.Exec(stmt).Error; err != nil {
				return fmt.Errorf("replay statement %q: %w", stmt, err)
			}
		}
		return nil
	})
}
