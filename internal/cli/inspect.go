package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/eleven-am/storm-composite/examples/auction"
	"github.com/eleven-am/storm-composite/pkg/composite"
	orm "github.com/eleven-am/storm-composite/pkg/storm-orm"
)

// ModelLayout is the inspect view of one model
type ModelLayout struct {
	Model       string         `yaml:"model"`
	Table       string         `yaml:"table"`
	HostPK      string         `yaml:"host_pk,omitempty"`
	PrimaryKeys []string       `yaml:"primary_keys,omitempty"`
	Columns     []ColumnLayout `yaml:"columns"`
}

// ColumnLayout is the inspect view of one column
type ColumnLayout struct {
	Field      string `yaml:"field"`
	Column     string `yaml:"column"`
	PrimaryKey bool   `yaml:"primary_key,omitempty"`
	References string `yaml:"references,omitempty"`
}

func newInspectCommand() *cobra.Command {
	var table string

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Show the key layout of the example models",
		Long: `Print the example models as YAML: their tables, columns and, for
composite models, the ordered primary key fields that pk lookups expand to.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			layouts, err := exampleLayouts()
			if err != nil {
				return err
			}
			if table != "" {
				layouts = filterLayouts(layouts, table)
				if len(layouts) == 0 {
					return fmt.Errorf("no example model uses table %q", table)
				}
			}
			return writeYAML(cmd.OutOrStdout(), layouts)
		},
	}

	cmd.Flags().StringVarP(&table, "table", "t", "", "Inspect the model of this table only")

	return cmd
}

func exampleLayouts() ([]ModelLayout, error) {
	auctions, err := orm.ParseModel[auction.Auction]()
	if err != nil {
		return nil, err
	}

	return []ModelLayout{
		compositeLayout(auction.PersonModel),
		layoutOf(auctions, nil),
		compositeLayout(auction.LotModel),
	}, nil
}

func compositeLayout(m *composite.Model) ModelLayout {
	return layoutOf(m.Metadata(), m.PrimaryKeys())
}

func layoutOf(md *orm.ModelMetadata, keys []string) ModelLayout {
	layout := ModelLayout{
		Model:       md.Type.Name(),
		Table:       md.TableName,
		HostPK:      md.PrimaryKey,
		PrimaryKeys: keys,
	}
	for _, col := range md.Columns {
		layout.Columns = append(layout.Columns, ColumnLayout{
			Field:      col.Name,
			Column:     col.DBName,
			PrimaryKey: col.IsPrimaryKey,
			References: col.References,
		})
	}
	return layout
}

func filterLayouts(layouts []ModelLayout, table string) []ModelLayout {
	var filtered []ModelLayout
	for _, l := range layouts {
		if l.Table == table {
			filtered = append(filtered, l)
		}
	}
	return filtered
}

func writeYAML(w io.Writer, v interface{}) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	return enc.Close()
}
