package cli

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dirsync/internal/app"
	"github.com/roach88/dirsync/internal/model"
	"github.com/roach88/dirsync/internal/session"
)

var researcher = session.Actor{ID: "researcher-1"}

// seed opens db, creates two unsynced publications and returns their ids.
func seed(t *testing.T, db string) (string, string) {
	t.Helper()
	ctx := context.Background()
	a, err := app.Open(ctx, app.Options{Database: db})
	require.NoError(t, err)
	defer a.Close()

	first, err := a.CreateItem(ctx, researcher, app.NewItem{
		EntityType: "CvPublication",
		Metadata:   model.Metadata{"dc.title": {model.V("Grafeno")}},
	})
	require.NoError(t, err)
	second, err := a.CreateItem(ctx, researcher, app.NewItem{
		EntityType: "CvPublication",
		Metadata:   model.Metadata{"dc.title": {model.V("Graphene")}},
	})
	require.NoError(t, err)
	return first.ID, second.ID
}

func TestDiffText(t *testing.T) {
	db := tempDB(t)
	a, b := seed(t, db)

	out, err := execute(t, "diff", a, b, "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, a+" <- "+b)
	assert.Contains(t, out, "dc.title")
	assert.Contains(t, out, "Graphene")
}

func TestDiffSameItem(t *testing.T) {
	db := tempDB(t)
	a, _ := seed(t, db)

	out, err := execute(t, "diff", a, a, "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "(no changes)")
}

func TestDiffJSON(t *testing.T) {
	db := tempDB(t)
	a, b := seed(t, db)

	out, err := execute(t, "diff", a, b, "--db", db, "--format", "json")
	require.NoError(t, err)

	var resp struct {
		Data DiffResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, a, resp.Data.Target)
	require.Len(t, resp.Data.Correction.Corrections, 1)
	assert.Equal(t, "dc.title", resp.Data.Correction.Corrections[0].Field)
}

func TestDiffUnknownItem(t *testing.T) {
	db := tempDB(t)
	a, _ := seed(t, db)

	out, err := execute(t, "diff", a, "missing", "--db", db)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, ErrCodeNotFound)
}

func TestDiffRequiresTwoArgs(t *testing.T) {
	_, err := execute(t, "diff", "only-one")
	require.Error(t, err)
}
