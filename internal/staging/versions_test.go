package staging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fpang/vista-staging/internal/chathistory"
	"github.com/fpang/vista-staging/internal/events"
)

func TestSave_CommitsDraft(t *testing.T) {
	env := newTestEnv(t, Options{})
	ctx := context.Background()
	sess := env.newSession(t)

	gen, err := env.svc.Generate(ctx, GenerateInput{SessionID: sess.SessionID, ImageIndex: 1})
	require.NoError(t, err)

	res, err := env.svc.Save(ctx, sess.SessionID)
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, 1, res.ImageIndex)
	assert.Equal(t, gen.ImageURL, res.ImageURL)
	assert.Nil(t, res.Version)

	got := env.reload(t, sess.SessionID)
	assert.Equal(t, []string{env.panos[0], gen.ImageURL}, got.PanoramicImages)
	assert.Empty(t, got.WorkingImages)
	assert.False(t, got.HasUnsavedChanges())
	require.Len(t, got.GenerationHistory, 1)
	assert.True(t, got.GenerationHistory[0].Saved)
	require.NotNil(t, got.GenerationHistory[0].SavedAt)
	require.NotNil(t, got.CompletedAt)
	assert.Empty(t, got.SavedVersions)
	assert.Equal(t, events.TypeImageSaved, env.events.Types()[len(env.events.Types())-1])

	completed := *got.CompletedAt
	_, err = env.svc.Generate(ctx, GenerateInput{SessionID: sess.SessionID, ImageIndex: 0})
	require.NoError(t, err)
	_, err = env.svc.Save(ctx, sess.SessionID)
	require.NoError(t, err)
	assert.Equal(t, completed, *env.reload(t, sess.SessionID).CompletedAt)
}

func TestSave_NoWorkingImage(t *testing.T) {
	env := newTestEnv(t, Options{})
	sess := env.newSession(t)

	_, err := env.svc.Save(context.Background(), sess.SessionID)
	require.Error(t, err)
	assert.Equal(t, KindNoWorkingImage, KindOf(err))
	assert.Equal(t, sess.Version, env.reload(t, sess.SessionID).Version)
}

func TestSave_AlreadySavedIsNoop(t *testing.T) {
	env := newTestEnv(t, Options{})
	ctx := context.Background()
	sess := env.newSession(t)

	_, err := env.svc.Generate(ctx, GenerateInput{SessionID: sess.SessionID})
	require.NoError(t, err)
	_, err = env.svc.Save(ctx, sess.SessionID)
	require.NoError(t, err)
	version := env.reload(t, sess.SessionID).Version
	published := len(env.events.Types())

	res, err := env.svc.Save(ctx, sess.SessionID)
	require.NoError(t, err)
	assert.False(t, res.Changed)
	assert.Equal(t, version, env.reload(t, sess.SessionID).Version)
	assert.Len(t, env.events.Types(), published)
}

func TestSave_OnlyCurrentPanorama(t *testing.T) {
	env := newTestEnv(t, Options{})
	ctx := context.Background()
	sess := env.newSession(t)

	for _, idx := range []int{0, 1} {
		_, err := env.svc.Generate(ctx, GenerateInput{SessionID: sess.SessionID, ImageIndex: idx})
		require.NoError(t, err)
	}
	_, err := env.svc.Save(ctx, sess.SessionID)
	require.NoError(t, err)

	got := env.reload(t, sess.SessionID)
	_, pending0 := got.WorkingImage(0)
	_, pending1 := got.WorkingImage(1)
	assert.True(t, pending0)
	assert.False(t, pending1)
	assert.True(t, got.HasUnsavedChanges())
}

func TestRevert_DisabledWithoutVersioning(t *testing.T) {
	env := newTestEnv(t, Options{})
	sess := env.newSession(t)

	_, err := env.svc.Revert(context.Background(), sess.SessionID, "ver_anything")
	require.Error(t, err)
	assert.Equal(t, KindUnsupported, KindOf(err))
}

func TestVersioning_SaveAndRevert(t *testing.T) {
	env := newTestEnv(t, Options{VersioningEnabled: true, MaxVersions: 2})
	ctx := context.Background()
	sess := env.newSession(t)

	var saved []*SaveResult
	for i := 0; i < 3; i++ {
		_, err := env.svc.Generate(ctx, GenerateInput{SessionID: sess.SessionID, Parameters: Parameters{Style: "modern"}})
		require.NoError(t, err)
		res, err := env.svc.Save(ctx, sess.SessionID)
		require.NoError(t, err)
		require.NotNil(t, res.Version)
		assert.Equal(t, i+1, res.Version.VersionNumber)
		saved = append(saved, res)
	}

	hist, err := env.svc.VersionHistory(ctx, sess.SessionID)
	require.NoError(t, err)
	assert.Equal(t, 2, hist.TotalVersions)
	assert.Equal(t, 3, hist.CurrentVersion)
	assert.Equal(t, 2, hist.Versions[0].VersionNumber)
	assert.False(t, hist.HasUnsavedChanges)

	_, err = env.svc.Revert(ctx, sess.SessionID, saved[0].Version.VersionID)
	assert.Equal(t, KindNotFound, KindOf(err), "trimmed versions cannot be restored")

	_, err = env.svc.Generate(ctx, GenerateInput{SessionID: sess.SessionID})
	require.NoError(t, err)

	target := saved[1].Version
	res, err := env.svc.Revert(ctx, sess.SessionID, target.VersionID)
	require.NoError(t, err)
	assert.Equal(t, target.ImageURL, res.ImageURL)
	assert.Equal(t, 2, res.VersionNumber)

	got := env.reload(t, sess.SessionID)
	assert.Equal(t, target.ImageURL, got.PanoramicImages[0])
	assert.Equal(t, target.ImageURL, got.CurrentImageURL)
	assert.Empty(t, got.WorkingImages)
	last := got.GenerationHistory[len(got.GenerationHistory)-1]
	assert.Equal(t, EntryRevert, last.Type)
	assert.True(t, last.Saved)

	h, err := env.svc.ChatHistory(ctx, sess.SessionID)
	require.NoError(t, err)
	note := h.Messages[len(h.Messages)-1]
	assert.Equal(t, chathistory.RoleSystem, note.Role)
	assert.Equal(t, "Reverted panorama 0 to saved version 2", note.Content)

	_, err = env.svc.Revert(ctx, sess.SessionID, "")
	assert.Equal(t, KindValidation, KindOf(err))
}

func TestVersionHistory_Empty(t *testing.T) {
	env := newTestEnv(t, Options{VersioningEnabled: true})
	sess := env.newSession(t)

	hist, err := env.svc.VersionHistory(context.Background(), sess.SessionID)
	require.NoError(t, err)
	assert.Equal(t, 0, hist.TotalVersions)
	assert.Equal(t, 0, hist.CurrentVersion)
	assert.NotNil(t, hist.Versions)
}
