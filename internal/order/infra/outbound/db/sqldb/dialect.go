package sqldb

import (
	"fmt"
	"strings"
)

// Dialect abstrae las diferencias entre SQLite y Postgres que usa el store.
type Dialect int

const (
	SQLite Dialect = iota
	Postgres
)

// DriverName es el nombre registrado en database/sql para cada dialecto.
func (d Dialect) DriverName() string {
	if d == Postgres {
		return "pgx"
	}
	return "sqlite"
}

// ParseDialect traduce el valor de configuración (sqlite | postgres).
func ParseDialect(name string) (Dialect, error) {
	switch strings.ToLower(name) {
	case "sqlite":
		return SQLite, nil
	case "postgres", "postgresql", "pgx":
		return Postgres, nil
	}
	return 0, fmt.Errorf("unsupported sql dialect %q", name)
}

// rebind convierte los placeholders '?' a '$n' en Postgres.
func (d Dialect) rebind(query string) string {
	if d != Postgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// forUpdate añade el bloqueo de fila; SQLite serializa escrituras por sí mismo.
func (d Dialect) forUpdate(query string) string {
	if d == Postgres {
		return query + " FOR UPDATE"
	}
	return query
}
