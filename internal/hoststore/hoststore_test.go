package hoststore_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"ratchetcore/internal/hoststore"
	"ratchetcore/internal/identity"
	"ratchetcore/internal/suite"
)

func TestIdentityStore_SaveLoad_RoundTrips(t *testing.T) {
	home := t.TempDir()
	s := suite.NewClassic()

	idStore, err := identity.New(s, 0)
	require.NoError(t, err)
	want := idStore.Export()

	store := hoststore.NewIdentityStore(home)
	exists, err := store.Exists()
	require.NoError(t, err)
	require.False(t, exists)

	require.NoError(t, store.Save("correct horse battery staple", want))

	exists, err = store.Exists()
	require.NoError(t, err)
	require.True(t, exists)

	got, err := store.Load("correct horse battery staple")
	require.NoError(t, err)
	require.Equal(t, want.Identity.IKPub, got.Identity.IKPub)
	require.Equal(t, want.Identity.SIGPub, got.Identity.SIGPub)
	require.Equal(t, want.Current.ID, got.Current.ID)
	require.Equal(t, want.Current.Pub, got.Current.Pub)
}

func TestIdentityStore_WrongPassphrase_Fails(t *testing.T) {
	home := t.TempDir()
	s := suite.NewClassic()
	idStore, err := identity.New(s, 0)
	require.NoError(t, err)

	store := hoststore.NewIdentityStore(home)
	require.NoError(t, store.Save("right", idStore.Export()))

	_, err = store.Load("wrong")
	require.Error(t, err)
}

func TestSessionStore_SaveLoad_RoundTrips(t *testing.T) {
	home := t.TempDir()
	store := hoststore.NewSessionStore(home)

	blob := []byte(`{"suite_id":1,"contact_id":"alice"}`)
	require.NoError(t, store.Save("pw", "alice", blob))

	got, ok, err := store.Load("pw", "alice")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, blob, got)

	_, ok, err = store.Load("pw", "nobody")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestSessionStore_ContactIDIsSanitizedForFilesystem(t *testing.T) {
	home := t.TempDir()
	store := hoststore.NewSessionStore(home)
	require.NoError(t, store.Save("pw", "../../etc/passwd", []byte("x")))

	got, ok, err := store.Load("pw", "../../etc/passwd")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("x"), got)
}
