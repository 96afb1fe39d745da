package schema

import (
	"testing"

	"github.com/stratumhq/stratum/pkg/connector"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMissingColumnsFindsNewSourceColumns(t *testing.T) {
	source := connector.TableMetadata{Columns: []connector.ColumnMeta{{Name: "id"}, {Name: "email"}}}
	dest := connector.TableMetadata{Columns: []connector.ColumnMeta{{Name: "id"}}}
	missing := MissingColumns(source, dest)
	require.Len(t, missing, 1)
	assert.Equal(t, "email", missing[0].Name)
}

func TestValidateAdditiveAcceptsAddColumn(t *testing.T) {
	err := ValidateAdditive("ALTER TABLE `orders` ADD COLUMN `region` varchar(32)")
	assert.NoError(t, err)
}

func TestValidateAdditiveRejectsDropColumn(t *testing.T) {
	err := ValidateAdditive("ALTER TABLE `orders` DROP COLUMN `region`")
	assert.Error(t, err)
}

func TestValidateAdditiveAcceptsCreateTable(t *testing.T) {
	err := ValidateAdditive("CREATE TABLE `orders` (`id` bigint PRIMARY KEY)")
	assert.NoError(t, err)
}

func TestCascadeOrderPlacesReferencedTableFirst(t *testing.T) {
	tables := map[string]connector.TableMetadata{
		"orders":    {Columns: []connector.ColumnMeta{{Name: "customer_id", References: "customers.id"}}},
		"customers": {Columns: []connector.ColumnMeta{{Name: "id"}}},
	}
	order, err := CascadeOrder(tables)
	require.NoError(t, err)
	require.Len(t, order, 2)
	assert.Equal(t, "customers", order[0])
	assert.Equal(t, "orders", order[1])
}

func TestCascadeOrderDetectsCycle(t *testing.T) {
	tables := map[string]connector.TableMetadata{
		"a": {Columns: []connector.ColumnMeta{{Name: "b_id", References: "b.id"}}},
		"b": {Columns: []connector.ColumnMeta{{Name: "a_id", References: "a.id"}}},
	}
	_, err := CascadeOrder(tables)
	assert.Error(t, err)
}
