package orm

// Table provides table-level metadata
type Table struct {
	Name        string   `json:"name" yaml:"name"`
	PrimaryKeys []string `json:"primary_keys" yaml:"primary_keys"`
	Schema      string   `json:"schema,omitempty" yaml:"schema,omitempty"`
}

func (t Table) FullName() string {
	if t.Schema != "" {
		return t.Schema + "." + t.Name
	}
	return t.Name
}

func (t Table) HasPrimaryKey(column string) bool {
	for _, pk := range t.PrimaryKeys {
		if pk == column {
			return true
		}
	}
	return false
}
