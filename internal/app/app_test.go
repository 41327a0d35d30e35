package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"publication/api/internal/config"
	"publication/api/internal/document"
	"publication/api/internal/store"
	"publication/api/internal/wfrecord"
)

const workflowsYAML = `workflows:
  - ref: Workflows.Default
    defaultDraftSpace: Drafts
    contributors: [XWiki.Contributors]
    moderators: [XWiki.Moderators]
    validators: [XWiki.Validators]
`

const actor = "XWiki.Alice"

var (
	draftRef  = document.NewRef("xwiki", "Drafts", "Page")
	targetRef = document.NewRef("xwiki", "Main", "Page")
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "workflows.yaml")
	require.NoError(t, os.WriteFile(path, []byte(workflowsYAML), 0o644))
	return &config.Config{
		DatabaseDriver:        store.DriverSQLite,
		DatabaseURL:           filepath.Join(dir, "publication.db"),
		HistoryDir:            filepath.Join(dir, "history"),
		WorkflowsFile:         path,
		Language:              "en",
		ConfigCacheTTLSeconds: 60,
		LockTTLSeconds:        30,
		Wiki:                  "xwiki",
		Actor:                 "XWiki.Admin",
	}
}

func publishCycle(t *testing.T, a *App) {
	t.Helper()
	ctx := context.Background()

	draft := document.New(draftRef)
	draft.Title = "Page"
	draft.Content = "first version"
	draft.Author = actor
	require.NoError(t, a.Store.Save(ctx, draft, store.SaveOptions{}))

	steps := []func() (string, error){
		func() (string, error) {
			res, err := a.Service.Start(ctx, actor, draftRef, "Workflows.Default", targetRef)
			return string(res.Reason), err
		},
		func() (string, error) {
			res, err := a.Service.SubmitForModeration(ctx, actor, draftRef)
			return string(res.Reason), err
		},
		func() (string, error) {
			res, err := a.Service.SubmitForValidation(ctx, "XWiki.Moderator", draftRef)
			return string(res.Reason), err
		},
		func() (string, error) {
			res, err := a.Service.Validate(ctx, "XWiki.Validator", draftRef)
			return string(res.Reason), err
		},
		func() (string, error) {
			res, err := a.Service.Publish(ctx, "XWiki.Validator", draftRef)
			return string(res.Reason), err
		},
	}
	for i, step := range steps {
		reason, err := step()
		require.NoError(t, err, "step %d", i)
		require.Empty(t, reason, "step %d declined", i)
	}

	target, err := a.Store.Get(ctx, targetRef)
	require.NoError(t, err)
	require.False(t, target.IsNew)
	assert.False(t, target.Hidden)
	assert.Equal(t, "first version", target.Content)
	rec, ok := wfrecord.Of(target)
	require.True(t, ok)
	assert.True(t, rec.IsTarget())
	assert.Equal(t, wfrecord.StatusPublished, rec.Status())
}

func TestBuildWithSQLiteAndRedis(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	cfg := testConfig(t)
	a, err := Build(ctx, cfg, zerolog.Nop(), Options{Redis: client})
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })

	require.NoError(t, a.Migrate(ctx))
	refs, err := a.Bootstrap(ctx, cfg.WorkflowsFile)
	require.NoError(t, err)
	require.Equal(t, []document.Ref{document.NewRef("xwiki", "Workflows", "Default")}, refs)

	refs, err = a.Bootstrap(ctx, cfg.WorkflowsFile)
	require.NoError(t, err)
	assert.Empty(t, refs, "unchanged configurations are not saved again")

	publishCycle(t, a)

	assert.True(t, mr.Exists("wfconfig:xwiki:Workflows.Default"), "config should be cached in redis")
	for _, key := range mr.Keys() {
		assert.NotContains(t, key, "publication:lock:", "no lock should be left behind")
	}

	revisions, err := a.History.History(targetRef, 0)
	require.NoError(t, err)
	assert.Len(t, revisions, 1)

	health := a.Health(ctx)
	assert.Equal(t, map[string]bool{"database": true, "redis": true}, health)

	n, err := a.Reindex(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "search is disabled without MEILI_URL")
}

func TestBuildWithMemoryStore(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	cfg.HistoryDir = ""
	cfg.Language = "fr"

	a, err := Build(ctx, cfg, zerolog.Nop(), Options{Store: store.NewMemory(nil)})
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })

	require.NoError(t, a.Migrate(ctx))
	_, err = a.Bootstrap(ctx, cfg.WorkflowsFile)
	require.NoError(t, err)

	publishCycle(t, a)
	assert.Nil(t, a.History)
	assert.Empty(t, a.Health(ctx))
}

func TestBootstrapWithoutFile(t *testing.T) {
	cfg := testConfig(t)
	a, err := Build(context.Background(), cfg, zerolog.Nop(), Options{Store: store.NewMemory(nil)})
	require.NoError(t, err)

	_, err = a.Bootstrap(context.Background(), "")
	assert.Error(t, err)
}

func TestBuildFailsOnUnreachableRedis(t *testing.T) {
	cfg := testConfig(t)
	cfg.RedisURL = "redis://127.0.0.1:1/0"
	_, err := Build(context.Background(), cfg, zerolog.Nop(), Options{Store: store.NewMemory(nil)})
	assert.Error(t, err)
}
