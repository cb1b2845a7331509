package cypher

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Blackdeer1524/airgraph/src/ingest"
)

func TestConstraintQuery(t *testing.T) {
	q := constraintQuery(ingest.ConstraintPlan{Label: "People", Property: "_aid"})

	assert.Equal(
		t,
		"CREATE CONSTRAINT IF NOT EXISTS FOR (n:`People`) REQUIRE n.`_aid` IS UNIQUE",
		q,
	)
}

func TestNodeMergeQuery(t *testing.T) {
	q := nodeMergeQuery(ingest.NodeMergePlan{Label: "People", IDProperty: "_aid"})

	assert.Equal(
		t,
		"UNWIND $rows AS row MERGE (n:`People` {`_aid`: row.`_aid`}) SET n += row",
		q,
	)
}

func TestEdgeMergeQuery(t *testing.T) {
	q := edgeMergeQuery("_aid", "FRIENDS")

	assert.Equal(
		t,
		"UNWIND $rows AS row "+
			"MERGE (a {`_aid`: row.source}) "+
			"MERGE (b {`_aid`: row.target}) "+
			"MERGE (a)-[:`FRIENDS`]->(b)",
		q,
	)
}

func TestEscapeName(t *testing.T) {
	assert.Equal(t, "`People`", escapeName("People"))
	assert.Equal(t, "`Weird ``Label```", escapeName("Weird `Label`"))
}
